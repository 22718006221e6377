package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuditEventCategory(t *testing.T) {
	assert.Equal(t, CategoryCompliance, EventRegistrationEntitiesCreated.Category())
	assert.Equal(t, CategorySecurity, EventRegistrationCompensationFailed.Category())
	assert.Equal(t, CategoryOperations, EventRegistrationStaged.Category())
	assert.Equal(t, CategoryOperations, AuditEvent("something_new").Category())
}
