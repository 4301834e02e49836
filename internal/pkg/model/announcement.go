package model

import "time"

type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityNormal Priority = "NORMAL"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// Rank orders priorities from LOW (0) to URGENT (3). Unknown values rank as NORMAL.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityHigh:
		return 2
	case PriorityUrgent:
		return 3
	default:
		return 1
	}
}

type Announcement struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Priority    Priority  `json:"priority,omitempty"`
	TargetRoles []Role    `json:"targetRoles,omitempty"`
	IsPinned    bool      `json:"isPinned"`
	IsActive    bool      `json:"isActive"`
	AuthorID    string    `json:"authorId,omitempty"`
	AuthorName  string    `json:"authorName,omitempty"`
	AuthorRole  Role      `json:"authorRole,omitempty"`
	Views       int       `json:"views"`
	CreatedAt   Timestamp `json:"createdAt,omitzero"`
	UpdatedAt   Timestamp `json:"updatedAt,omitzero"`
	ExpiresAt   Timestamp `json:"expiresAt,omitzero"`
}

// Expired reports whether ExpiresAt is set and already past.
func (a Announcement) Expired(now time.Time) bool {
	return !a.ExpiresAt.IsZero() && now.After(a.ExpiresAt.Time)
}

// VisibleTo reports whether role is targeted. No targets means everyone.
func (a Announcement) VisibleTo(role Role) bool {
	if len(a.TargetRoles) == 0 {
		return true
	}
	for _, r := range a.TargetRoles {
		if r == role {
			return true
		}
	}
	return false
}

// EffectivePriority defaults an empty priority to NORMAL.
func (a Announcement) EffectivePriority() Priority {
	if a.Priority == "" {
		return PriorityNormal
	}
	return a.Priority
}
