package relay_test

import (
	"errors"

	"duet/internal/domain"
)

func isTransient(err error) bool { return errors.Is(err, domain.ErrTransientNetwork) }
