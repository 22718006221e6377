package session

import (
	"context"
	"errors"
	"strings"

	"github.com/amaralBruno27866/member-platform-test-sub015/internal/registration/models"
	"github.com/amaralBruno27866/member-platform-test-sub015/pkg/platform/sentinel"
)

type emailIndex interface {
	PendingSessionForEmail(ctx context.Context, address string) (models.SessionID, error)
}

// PendingEmailChecker reports an email as taken while a live registration
// holds its reservation. Values that are not email addresses are never taken.
type PendingEmailChecker struct {
	index emailIndex
}

func NewPendingEmailChecker(index emailIndex) *PendingEmailChecker {
	return &PendingEmailChecker{index: index}
}

func (c *PendingEmailChecker) ExistsByEmailOrBusinessID(ctx context.Context, value string) (bool, error) {
	if !strings.Contains(value, "@") {
		return false, nil
	}
	_, err := c.index.PendingSessionForEmail(ctx, value)
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
