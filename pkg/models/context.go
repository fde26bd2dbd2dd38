package models

import "time"

// ContextStatus represents the lifecycle state of a browsing context
type ContextStatus string

const (
	StatusOpen     ContextStatus = "OPEN"
	StatusClosed   ContextStatus = "CLOSED"
	StatusTimedOut ContextStatus = "TIMED_OUT"
)

// Context describes a live browsing context owned by the browser
type Context struct {
	ID        string          `json:"id"`
	Engine    string          `json:"engine"`
	Status    ContextStatus   `json:"status"`
	CreatedAt time.Time       `json:"createdAt"`
	ExpiresAt *time.Time      `json:"expiresAt,omitempty"`
	Options   *ContextOptions `json:"options"`
}

// CreateContextRequest is the payload for creating a context
type CreateContextRequest struct {
	Options *ContextOptions `json:"options,omitempty"`
	// Timeout in seconds after which the context is closed automatically, 0 disables it
	Timeout int `json:"timeout,omitempty"`
	// StorageStateID restores the cookies of a previously saved context
	StorageStateID string `json:"storageStateId,omitempty"`
}

// Page describes an open page inside a context
type Page struct {
	ID  string `json:"id"`
	URL string `json:"url,omitempty"`
}

// PermissionsRequest is the payload for granting permissions
type PermissionsRequest struct {
	Origin      string   `json:"origin"`
	Permissions []string `json:"permissions"`
}

// NewPageRequest is the payload for opening a page
type NewPageRequest struct {
	URL string `json:"url,omitempty"`
}

// StorageState is a saved snapshot of a context's cookies
type StorageState struct {
	ContextID string    `json:"contextId"`
	SavedAt   time.Time `json:"savedAt"`
	Cookies   []Cookie  `json:"cookies"`
}
