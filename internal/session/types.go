package session

import (
	"errors"
	"time"

	"github.com/intellisearch/synthesizer/internal/synthesis"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
)

// Status is the lifecycle state of a research session.
type Status string

const (
	StatusPending    Status = "pending"
	StatusPlanning   Status = "planning"
	StatusGenerating Status = "generating"
	StatusFinalizing Status = "finalizing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Progress tracks how far a running synthesis has gotten.
type Progress struct {
	SectionsPlanned   int    `json:"sections_planned"`
	SectionsCompleted int    `json:"sections_completed"`
	CurrentStage      string `json:"current_stage,omitempty"`
}

// Session is one research report request and, once finished, its result.
type Session struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	Profile   string    `json:"profile"`
	Status    Status    `json:"status"`
	Progress  Progress  `json:"progress"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt time.Time `json:"expires_at"`

	Result *synthesis.Result `json:"result,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// IsExpired reports whether the session's TTL has elapsed.
func (s *Session) IsExpired() bool {
	return !s.ExpiresAt.IsZero() && time.Now().After(s.ExpiresAt)
}

// IsTerminal reports whether the session can no longer change state.
func (s *Session) IsTerminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusFailed
}
