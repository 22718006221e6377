package session

import (
	"github.com/amaralBruno27866/member-platform-test-sub015/internal/registration/models"
)

// runExecute applies validate and mutate to a working copy of s and hands
// it to persist with the version that was read.
func runExecute(s *models.Session, validate ValidateFunc, mutate MutateFunc, persist func(*models.Session, int64) error) (*models.Session, error) {
	if validate != nil {
		if err := validate(s); err != nil {
			return s, err
		}
	}
	version := s.Version
	working, err := clone(s)
	if err != nil {
		return nil, err
	}
	if mutate != nil {
		if err := mutate(working); err != nil {
			return s, err
		}
	}
	if err := persist(working, version); err != nil {
		return nil, err
	}
	return working, nil
}

func clone(s *models.Session) (*models.Session, error) {
	data, err := encode(s)
	if err != nil {
		return nil, err
	}
	return decode(data)
}
