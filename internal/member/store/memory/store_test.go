package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amaralBruno27866/member-platform-test-sub015/internal/registration/creation"
	"github.com/amaralBruno27866/member-platform-test-sub015/internal/registration/models"
	"github.com/amaralBruno27866/member-platform-test-sub015/pkg/platform/sentinel"
)

func accountRecord(addr string) creation.Record {
	return creation.Record{
		Kind: models.EntityAccount,
		Data: models.Account{Email: addr, PasswordHash: "hash", FirstName: "Ada", LastName: "Lovelace"},
	}
}

func TestCreateDeleteExists(t *testing.T) {
	ctx := context.Background()
	s := New()
	repo := s.Repositories()[models.EntityAccount]

	id, err := repo.Create(ctx, accountRecord("a@b.com"))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	ok, err := repo.Exists(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, repo.Delete(ctx, id))
	ok, err = repo.Exists(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	// unknown ids delete cleanly
	assert.NoError(t, repo.Delete(ctx, "missing"))
}

func TestDuplicateEmailIsConflict(t *testing.T) {
	ctx := context.Background()
	s := New()
	repo := s.Repositories()[models.EntityAccount]

	_, err := repo.Create(ctx, accountRecord("a@b.com"))
	require.NoError(t, err)
	_, err = repo.Create(ctx, accountRecord("A@B.com"))
	assert.ErrorIs(t, err, sentinel.ErrConflict)
}

func TestUniquenessAndCapacity(t *testing.T) {
	ctx := context.Background()
	s := New()
	repos := s.Repositories()

	_, err := repos[models.EntityAccount].Create(ctx, accountRecord("a@b.com"))
	require.NoError(t, err)
	_, err = repos[models.EntityIdentity].Create(ctx, creation.Record{
		Kind: models.EntityIdentity,
		Data: &models.Identity{CotoStatus: models.CotoStatusGeneral, CotoRegistration: "G12345"},
	})
	require.NoError(t, err)
	for range 2 {
		_, err = repos[models.EntityOrganizationLink].Create(ctx, creation.Record{
			Kind:           models.EntityOrganizationLink,
			OrganizationID: "org-1",
			Data:           models.Membership{Role: "member"},
		})
		require.NoError(t, err)
	}

	taken, err := s.ExistsByEmailOrBusinessID(ctx, " A@b.com ")
	require.NoError(t, err)
	assert.True(t, taken)

	taken, err = s.ExistsByEmailOrBusinessID(ctx, "g12345")
	require.NoError(t, err)
	assert.True(t, taken)

	taken, err = s.ExistsByEmailOrBusinessID(ctx, "c@d.com")
	require.NoError(t, err)
	assert.False(t, taken)

	n, err := s.CountByOrganization(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestKindMismatchRejected(t *testing.T) {
	s := New()
	_, err := s.Repositories()[models.EntityContact].Create(context.Background(), accountRecord("a@b.com"))
	assert.Error(t, err)
	assert.Equal(t, 0, s.Count(models.EntityContact))
}
