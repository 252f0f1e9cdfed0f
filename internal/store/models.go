package store

import "time"

// Status is a Session's lifecycle state.
type Status string

const (
	StatusActive     Status = "active"
	StatusIdle       Status = "idle"
	StatusTerminated Status = "terminated"
)

// Session is the durable record for one session row.
type Session struct {
	ID                string
	Name              string
	Shell             string
	Cwd               string
	CreatedAt         time.Time
	LastAccessedAt    time.Time
	OwnerID           string
	Status            Status
	Cols              int
	Rows              int
	ExternalMuxHandle string
	CategoryID        *string
	SortOrder         int
}

// Category is the durable record for one category row.
type Category struct {
	ID        string
	Name      string
	SortOrder int
	Collapsed bool
	OwnerID   string
	CreatedAt time.Time
}

// Preferences is a per-user notification preference record. All fields
// default to true.
type Preferences struct {
	UserID               string
	BrowserEnabled       bool
	VisualEnabled        bool
	NotifyOnInput        bool
	NotifyOnCompleted    bool
	UpdatedAt            time.Time
}

// EventKind enumerates the session_logs.event_type values.
type EventKind string

const (
	EventCreate        EventKind = "create"
	EventAttachClient  EventKind = "attach-client"
	EventDetachClient  EventKind = "detach-client"
	EventRename        EventKind = "rename"
	EventMove          EventKind = "move"
	EventTerminate     EventKind = "terminate"
	EventDelete        EventKind = "delete"
	EventExit          EventKind = "exit"
)

// Event is one row of the append-only session event log.
type Event struct {
	ID        int64
	SessionID string
	Type      EventKind
	Details   string
	CreatedAt time.Time
}

func DefaultPreferences(userID string) Preferences {
	return Preferences{
		UserID:            userID,
		BrowserEnabled:    true,
		VisualEnabled:     true,
		NotifyOnInput:     true,
		NotifyOnCompleted: true,
	}
}
