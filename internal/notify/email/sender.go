// Package email is the development email collaborator: it logs each
// verification message instead of delivering it and keeps the most recent
// messages so local tooling and tests can read the token back.
package email

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/amaralBruno27866/member-platform-test-sub015/internal/registration/notification"
)

const defaultCapacity = 100

// Message is one logged send.
type Message struct {
	ID        string
	From      string
	Template  string
	Recipient string
	Vars      map[string]string
}

type LogSender struct {
	logger   *slog.Logger
	from     string
	capacity int

	mu   sync.Mutex
	sent []Message
}

type Option func(*LogSender)

func WithLogger(logger *slog.Logger) Option {
	return func(s *LogSender) {
		s.logger = logger
	}
}

// WithFrom sets the sender address recorded on each message.
func WithFrom(from string) Option {
	return func(s *LogSender) {
		s.from = from
	}
}

// WithCapacity bounds how many messages are retained.
func WithCapacity(n int) Option {
	return func(s *LogSender) {
		if n > 0 {
			s.capacity = n
		}
	}
}

func NewLogSender(opts ...Option) *LogSender {
	s := &LogSender{logger: slog.Default(), capacity: defaultCapacity}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *LogSender) Send(ctx context.Context, template, recipient string, vars map[string]string) (notification.Delivery, error) {
	if err := ctx.Err(); err != nil {
		return notification.Delivery{}, err
	}
	msg := Message{
		ID:        uuid.NewString(),
		From:      s.from,
		Template:  template,
		Recipient: recipient,
		Vars:      make(map[string]string, len(vars)),
	}
	for k, v := range vars {
		msg.Vars[k] = v
	}

	s.mu.Lock()
	s.sent = append(s.sent, msg)
	if len(s.sent) > s.capacity {
		s.sent = s.sent[len(s.sent)-s.capacity:]
	}
	s.mu.Unlock()

	// verify_url embeds the token; this sender is for local use only
	s.logger.InfoContext(ctx, "email sent",
		"message_id", msg.ID,
		"from", msg.From,
		"template", template,
		"recipient", recipient,
		"verify_url", vars["verify_url"],
	)
	return notification.Delivery{Delivered: true, MessageID: msg.ID}, nil
}

// Last returns the newest message for recipient.
func (s *LogSender) Last(recipient string) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.sent) - 1; i >= 0; i-- {
		if s.sent[i].Recipient == recipient {
			return s.sent[i], true
		}
	}
	return Message{}, false
}

func (s *LogSender) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}
