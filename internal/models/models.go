// Package models defines the data structures used across the application.
// These map to the PostgreSQL schema in internal/database/migrations.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Role is the account role carried in credentials.
type Role string

const (
	RoleCitizen   Role = "citizen"
	RoleAuthority Role = "authority"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleCitizen || r == RoleAuthority
}

// Status is the incident lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
	StatusRejected   Status = "rejected"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusResolved, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether s is resolved or rejected. Terminal states are a
// convention only: they still accept further status writes.
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusRejected
}

// Priority is the triage priority of an incident.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Account is a citizen or authority profile. PasswordHash never leaves the
// server.
type Account struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	FullName     string    `json:"full_name" db:"full_name"`
	Phone        *string   `json:"phone" db:"phone"`
	Role         Role      `json:"role" db:"role"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// Category is read-only reference data for incidents.
type Category struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description *string   `json:"description" db:"description"`
	Color       string    `json:"color" db:"color"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Incident is a reported incident joined with its category and owner display
// fields. Images and Videos are only populated on detail reads; the Latest*
// fields only on list reads.
type Incident struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	UserID       uuid.UUID  `json:"user_id" db:"user_id"`
	CategoryID   uuid.UUID  `json:"category_id" db:"category_id"`
	Title        string     `json:"title" db:"title"`
	Description  string     `json:"description" db:"description"`
	Latitude     *float64   `json:"latitude" db:"latitude"`
	Longitude    *float64   `json:"longitude" db:"longitude"`
	Address      *string    `json:"address" db:"address"`
	Status       Status     `json:"status" db:"status"`
	Priority     Priority   `json:"priority" db:"priority"`
	IncidentDate time.Time  `json:"incident_date" db:"incident_date"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
	ResolvedAt   *time.Time `json:"resolved_at" db:"resolved_at"`
	ResolvedBy   *uuid.UUID `json:"resolved_by" db:"resolved_by"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`

	CategoryName  string `json:"category_name" db:"category_name"`
	CategoryColor string `json:"category_color" db:"category_color"`
	FullName      string `json:"full_name" db:"full_name"`
	Email         string `json:"email" db:"email"`

	LatestImageURL *string `json:"latest_image_url,omitempty" db:"latest_image_url"`
	LatestVideoURL *string `json:"latest_video_url,omitempty" db:"latest_video_url"`

	Images []Media `json:"images,omitempty"`
	Videos []Media `json:"videos,omitempty"`
}

// MediaKind selects the media table.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// Media is an image or video reference owned by exactly one incident.
type Media struct {
	ID         uuid.UUID `json:"id" db:"id"`
	IncidentID uuid.UUID `json:"incident_id" db:"incident_id"`
	URL        string    `json:"url" db:"url"`
	Position   int       `json:"-" db:"position"`
	UploadedAt time.Time `json:"uploaded_at" db:"uploaded_at"`
}

// IncidentUpdate is one append-only audit record of an authority action.
type IncidentUpdate struct {
	ID         uuid.UUID `json:"id" db:"id"`
	IncidentID uuid.UUID `json:"incident_id" db:"incident_id"`
	UserID     uuid.UUID `json:"user_id" db:"user_id"`
	OldStatus  *Status   `json:"old_status" db:"old_status"`
	NewStatus  Status    `json:"new_status" db:"new_status"`
	Comment    *string   `json:"comment" db:"comment"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	ActorName  string    `json:"full_name" db:"full_name"`
}

// PasswordReset is a single-use reset token record. Only the token hash is
// stored.
type PasswordReset struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	UserID    uuid.UUID  `json:"user_id" db:"user_id"`
	TokenHash string     `json:"-" db:"token_hash"`
	ExpiresAt time.Time  `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UsedAt    *time.Time `json:"used_at" db:"used_at"`
}

// CountByKey is one bucket of an aggregate count.
type CountByKey struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// CategoryCount for dashboard charts
type CategoryCount struct {
	Name  string `json:"name"`
	Color string `json:"color"`
	Count int    `json:"count"`
}

// Stats summarises the incidents visible to a requester.
type Stats struct {
	Total      int             `json:"total"`
	ByStatus   map[Status]int  `json:"by_status"`
	ByPriority []CountByKey    `json:"by_priority"`
	ByCategory []CategoryCount `json:"by_category"`
}

// HealthStatus represents the server health check response
type HealthStatus struct {
	Status   string `json:"status"`
	Version  string `json:"version,omitempty"`
	Uptime   string `json:"uptime,omitempty"`
	Database string `json:"database,omitempty"`
}
