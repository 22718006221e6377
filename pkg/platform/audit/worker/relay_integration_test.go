//go:build integration

package worker_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	audit "github.com/amaralBruno27866/member-platform-test-sub015/pkg/platform/audit"
	"github.com/amaralBruno27866/member-platform-test-sub015/pkg/platform/audit/store/kafka"
	"github.com/amaralBruno27866/member-platform-test-sub015/pkg/platform/audit/store/postgres"
	"github.com/amaralBruno27866/member-platform-test-sub015/pkg/platform/audit/worker"
	"github.com/amaralBruno27866/member-platform-test-sub015/pkg/testutil/containers"
)

type RelaySuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	broker   *containers.RedpandaContainer
	outbox   *postgres.Store
}

func TestRelaySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RelaySuite))
}

func (s *RelaySuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.broker = containers.GetManager().GetRedpanda(s.T())
	s.outbox = postgres.New(s.postgres.DB)
}

func (s *RelaySuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "outbox"))
}

func (s *RelaySuite) TestOutboxRowsReachTheTopicOnce() {
	ctx := context.Background()
	sessionID := uuid.NewString()
	actions := []audit.AuditEvent{
		audit.EventRegistrationStaged,
		audit.EventRegistrationEmailVerified,
		audit.EventRegistrationApproved,
	}
	for _, action := range actions {
		s.Require().NoError(s.outbox.Append(ctx, audit.Event{
			Timestamp: time.Now().UTC(),
			SessionID: sessionID,
			Subject:   sessionID,
			Action:    string(action),
		}))
	}

	cfg := s.broker.Topic()
	relay := worker.NewRelay(s.outbox, kafka.New(s.broker.Producer(s.T(), cfg), cfg.Topic), worker.WithBatchSize(10))

	n, err := relay.RelayOnce(ctx)
	s.Require().NoError(err)
	s.Equal(len(actions), n)

	n, err = relay.RelayOnce(ctx)
	s.Require().NoError(err)
	s.Zero(n, "processed rows are not sent again")

	pending, err := s.outbox.Pending(ctx, 10)
	s.Require().NoError(err)
	s.Empty(pending)

	records := s.broker.ReadRecords(s.T(), cfg.Topic, len(actions), 30*time.Second)
	s.Require().Len(records, len(actions))
	for i, rec := range records {
		var msg kafka.Message
		s.Require().NoError(json.Unmarshal(rec.Value, &msg))
		s.Equal(sessionID, msg.SessionID)
		s.Equal(string(actions[i]), msg.Action)
	}
}
