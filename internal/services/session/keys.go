package session

import (
	"fmt"

	"go.uber.org/zap"

	"duet/internal/crypto"
	"duet/internal/domain"
)

// loadDH loads the X25519 key stored under label.
func (o *Orchestrator) loadDH(label domain.KeyLabel) (domain.X25519Private, error) {
	k, err := o.keys.Load(label)
	if err != nil {
		return domain.X25519Private{}, err
	}
	if k.Kind != domain.KeyDH {
		return domain.X25519Private{}, fmt.Errorf("%s holds a %s key", label, k.Kind)
	}
	return k.DH, nil
}

// generateDH creates an X25519 key under label and returns its public half.
func (o *Orchestrator) generateDH(label domain.KeyLabel) (domain.X25519Public, error) {
	k, err := o.keys.Generate(label, domain.KeyDH)
	if err != nil {
		return domain.X25519Public{}, err
	}
	return crypto.PublicX25519(k.DH)
}

// dropKeys deletes per-chat or consumed keys. Failures are logged only.
func (o *Orchestrator) dropKeys(labels ...domain.KeyLabel) {
	for _, l := range labels {
		if err := o.keys.Delete(l); err != nil {
			o.log.Warn("failed to delete key", zap.String("label", l.String()), zap.Error(err))
		}
	}
}
