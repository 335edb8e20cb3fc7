package identity

import (
	"context"
	"log/slog"
	"sync"
)

// Mailer delivers password reset tokens.
type Mailer interface {
	SendPasswordReset(ctx context.Context, email, token string) error
}

// LogMailer writes reset tokens to the log. Development only.
type LogMailer struct{}

func (LogMailer) SendPasswordReset(ctx context.Context, email, token string) error {
	slog.InfoContext(ctx, "password reset requested",
		slog.String("email", email),
		slog.String("token", token),
	)
	return nil
}

// MemoryMailer records sent tokens by email.
type MemoryMailer struct {
	mu   sync.Mutex
	sent map[string][]string
}

func NewMemoryMailer() *MemoryMailer {
	return &MemoryMailer{sent: make(map[string][]string)}
}

func (m *MemoryMailer) SendPasswordReset(_ context.Context, email, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent[email] = append(m.sent[email], token)
	return nil
}

// Last returns the most recent token sent to email.
func (m *MemoryMailer) Last(email string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tokens := m.sent[email]
	if len(tokens) == 0 {
		return "", false
	}
	return tokens[len(tokens)-1], true
}
