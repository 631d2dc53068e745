package identity

import "duet/internal/domain"

// generateOneTimePreKeys creates n one-time prekeys numbered 1..n. The relay
// hands them out lowest id first, two per chat request.
func (s *Service) generateOneTimePreKeys(n int) ([]domain.NumberedKey, error) {
	out := make([]domain.NumberedKey, 0, n)
	for i := 1; i <= n; i++ {
		pub, err := s.generateDH(domain.OneTimePreKeyLabel(i))
		if err != nil {
			return nil, err
		}
		out = append(out, domain.NumberedKey{ID: i, Pub: pub})
	}
	return out, nil
}
