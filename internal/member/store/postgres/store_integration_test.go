//go:build integration

package postgres_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/amaralBruno27866/member-platform-test-sub015/internal/member/store/postgres"
	"github.com/amaralBruno27866/member-platform-test-sub015/internal/registration/creation"
	"github.com/amaralBruno27866/member-platform-test-sub015/internal/registration/models"
	"github.com/amaralBruno27866/member-platform-test-sub015/pkg/platform/sentinel"
	"github.com/amaralBruno27866/member-platform-test-sub015/pkg/testutil/containers"
)

type MemberStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *postgres.Store
	repos    creation.Repositories
}

func TestMemberStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(MemberStoreSuite))
}

func (s *MemberStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = postgres.New(s.postgres.Pool)
	s.repos = s.store.Repositories()
}

func (s *MemberStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(),
		"member_accounts", "member_addresses", "member_contacts",
		"member_identities", "member_educations", "member_organization_links",
	))
}

func (s *MemberStoreSuite) createAccount(addr string) string {
	id, err := s.repos[models.EntityAccount].Create(context.Background(), creation.Record{
		Kind: models.EntityAccount,
		Data: models.Account{
			Email:        addr,
			PasswordHash: "$2a$10$hash",
			FirstName:    "Ada",
			LastName:     "Lovelace",
			DateOfBirth:  "1990-12-10",
		},
	})
	s.Require().NoError(err)
	return id
}

func (s *MemberStoreSuite) TestFullRecordSetRoundTrip() {
	ctx := context.Background()
	accountID := s.createAccount("a@b.com")

	records := []creation.Record{
		{Kind: models.EntityAddress, Data: &models.Address{Street: "1 Main St", City: "Toronto", Province: "ON", PostalCode: "M5V 2T6", Country: "CA"}},
		{Kind: models.EntityContact, Data: &models.Contact{Phone: "+1 416 555 0100", PreferredChannel: "email"}},
		{Kind: models.EntityIdentity, Data: &models.Identity{CotoStatus: models.CotoStatusGeneral, CotoRegistration: "g12345", Language: "en"}},
		{Kind: models.EntityEducation, Data: &models.Education{Institution: "U of T", Degree: "master", GraduationYear: 2015}},
		{Kind: models.EntityOrganizationLink, OrganizationID: "org-1", Data: models.Membership{Role: "member"}},
	}
	for _, rec := range records {
		rec.AccountID = accountID
		id, err := s.repos[rec.Kind].Create(ctx, rec)
		s.Require().NoError(err, rec.Kind)
		ok, err := s.repos[rec.Kind].Exists(ctx, id)
		s.Require().NoError(err)
		s.True(ok, rec.Kind)
	}

	taken, err := s.store.ExistsByEmailOrBusinessID(ctx, "A@B.COM")
	s.Require().NoError(err)
	s.True(taken)

	taken, err = s.store.ExistsByEmailOrBusinessID(ctx, "G12345")
	s.Require().NoError(err)
	s.True(taken)

	n, err := s.store.CountByOrganization(ctx, "org-1")
	s.Require().NoError(err)
	s.Equal(1, n)
}

func (s *MemberStoreSuite) TestDuplicateEmailMapsToConflict() {
	s.createAccount("dup@b.com")
	_, err := s.repos[models.EntityAccount].Create(context.Background(), creation.Record{
		Kind: models.EntityAccount,
		Data: models.Account{Email: "DUP@b.com", PasswordHash: "x", FirstName: "A", LastName: "B"},
	})
	s.ErrorIs(err, sentinel.ErrConflict)
}

func (s *MemberStoreSuite) TestDeleteIsIdempotent() {
	ctx := context.Background()
	id := s.createAccount("del@b.com")
	repo := s.repos[models.EntityAccount]

	s.Require().NoError(repo.Delete(ctx, id))
	s.Require().NoError(repo.Delete(ctx, id))
	s.Require().NoError(repo.Delete(ctx, "not-a-uuid"))

	ok, err := repo.Exists(ctx, id)
	s.Require().NoError(err)
	s.False(ok)
}
