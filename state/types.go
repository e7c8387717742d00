package state

import (
	"fmt"
	"strings"
	"time"
)

type SessionRecord struct {
	SessionID  string    `json:"sessionId"`
	UserID     string    `json:"userId,omitempty"`
	CompanyURL string    `json:"companyUrl,omitempty"`
	Query      string    `json:"query,omitempty"`
	Stage      string    `json:"stage,omitempty"`
	Status     string    `json:"status,omitempty"`
	Revision   int       `json:"revision"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type CheckpointRecord struct {
	SessionID string         `json:"sessionId"`
	Seq       int            `json:"seq"`
	Stage     string         `json:"stage"`
	Status    string         `json:"status"`
	State     map[string]any `json:"state"`
	CreatedAt time.Time      `json:"createdAt"`
}

type ListSessionsQuery struct {
	UserID string
	Status string
	Limit  int
	Offset int
}

// Normalize fills defaults and validates required fields.
func (s *SessionRecord) Normalize() error {
	if strings.TrimSpace(s.SessionID) == "" {
		return fmt.Errorf("session_id is required")
	}
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = now
	}
	return nil
}

func (c *CheckpointRecord) Normalize() error {
	if strings.TrimSpace(c.SessionID) == "" {
		return fmt.Errorf("session_id is required")
	}
	if c.Seq < 1 {
		return fmt.Errorf("seq must be >= 1")
	}
	if c.State == nil {
		c.State = map[string]any{}
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	return nil
}
