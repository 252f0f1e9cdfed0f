package protocol

import "time"

// SessionRecord is the wire representation of a session, shared by
// session.list/created/attached/renamed/moved/terminated.
type SessionRecord struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	Shell             string     `json:"shell"`
	Cwd               string     `json:"cwd"`
	CreatedAt         time.Time  `json:"createdAt"`
	LastAccessedAt    time.Time  `json:"lastAccessedAt"`
	OwnerID           string     `json:"ownerId,omitempty"`
	Status            string     `json:"status"`
	Cols              int        `json:"cols"`
	Rows              int        `json:"rows"`
	ExternalMuxHandle string     `json:"externalMuxHandle,omitempty"`
	CategoryID        *string    `json:"categoryId"`
	SortOrder         int        `json:"sortOrder"`
	Attachable        bool       `json:"attachable"`
}

// SessionListPayload is the body of a session.list reply.
type SessionListPayload struct {
	Sessions []SessionRecord `json:"sessions"`
}

// SessionRecordPayload wraps a single session record, used by
// session.created/renamed/moved/terminated. session.deleted carries a
// SessionIDPayload instead.
type SessionRecordPayload struct {
	Session SessionRecord `json:"session"`
}

// SessionAttachedPayload is the body of a session.attached reply: the
// session record plus the joined scrollback the client should render.
// PendingNotificationKind restores a badge the client may have missed
// while detached — e.g. "needs-input" raised and never dismissed — and is
// omitted when nothing is pending for this session.
type SessionAttachedPayload struct {
	Session                 SessionRecord `json:"session"`
	Scrollback              string        `json:"scrollback"`
	PendingNotificationKind string        `json:"pendingNotificationKind,omitempty"`
}

// CategoryRecord is the wire representation of a category.
type CategoryRecord struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	SortOrder int       `json:"sortOrder"`
	Collapsed bool      `json:"collapsed"`
	OwnerID   string    `json:"ownerId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// CategoryListPayload is the body of a category.list reply.
type CategoryListPayload struct {
	Categories []CategoryRecord `json:"categories"`
}

// CategoryRecordPayload wraps a single category record.
type CategoryRecordPayload struct {
	Category CategoryRecord `json:"category"`
}

// CategoryToggledPayload is the body of a category.toggled reply.
type CategoryToggledPayload struct {
	CategoryID string `json:"categoryId"`
	Collapsed  bool   `json:"collapsed"`
}

// PreferencesPayload is the body of notification.preferences{,.updated}.
type PreferencesPayload struct {
	BrowserNotifyEnabled bool `json:"browserNotifyEnabled"`
	VisualBadgeEnabled   bool `json:"visualBadgeEnabled"`
	NotifyOnInput        bool `json:"notifyOnInput"`
	NotifyOnCompleted    bool `json:"notifyOnCompleted"`
}

// NotificationPayload is the body of an unsolicited notification frame.
type NotificationPayload struct {
	SessionID string `json:"sessionId"`
	Kind      string `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
}

// PongPayload echoes a timestamp on pong.
type PongPayload struct {
	Timestamp time.Time `json:"timestamp"`
}

// SessionCreatePayload is the body of a session.create request.
type SessionCreatePayload struct {
	Name  string            `json:"name,omitempty"`
	Shell string            `json:"shell,omitempty"`
	Cwd   string            `json:"cwd,omitempty"`
	Cols  int               `json:"cols,omitempty"`
	Rows  int               `json:"rows,omitempty"`
	Env   map[string]string `json:"env,omitempty"`
}

// SessionAttachPayload is the body of a session.attach request.
type SessionAttachPayload struct {
	SessionID string `json:"sessionId"`
}

// SessionRenamePayload is the body of a session.rename request.
type SessionRenamePayload struct {
	SessionID string `json:"sessionId"`
	Name      string `json:"name"`
}

// SessionMovePayload is the body of a session.move request.
type SessionMovePayload struct {
	SessionID  string  `json:"sessionId"`
	CategoryID *string `json:"categoryId"`
}

// SessionIDPayload is shared by session.detach/terminate/delete requests.
type SessionIDPayload struct {
	SessionID string `json:"sessionId"`
}

// TerminalDataPayload carries raw input bound for a session's PTY.
type TerminalDataPayload struct {
	SessionID string `json:"sessionId"`
	Data      string `json:"data"`
}

// TerminalResizePayload requests a new terminal size for a session.
type TerminalResizePayload struct {
	SessionID string `json:"sessionId"`
	Cols      int    `json:"cols"`
	Rows      int    `json:"rows"`
}

// CategoryCreatePayload is the body of a category.create request.
type CategoryCreatePayload struct {
	Name string `json:"name"`
}

// CategoryRenamePayload is the body of a category.rename request.
type CategoryRenamePayload struct {
	CategoryID string `json:"categoryId"`
	Name       string `json:"name"`
}

// CategoryIDPayload is shared by category.delete/toggle requests.
type CategoryIDPayload struct {
	CategoryID string `json:"categoryId"`
}

// CategoryReorderPayload carries the full ordered list of category IDs.
type CategoryReorderPayload struct {
	CategoryIDs []string `json:"categoryIds"`
}

// PreferencesSetPayload is the body of a notification.preferences.set
// request.
type PreferencesSetPayload struct {
	BrowserNotifyEnabled *bool `json:"browserNotifyEnabled,omitempty"`
	VisualBadgeEnabled   *bool `json:"visualBadgeEnabled,omitempty"`
	NotifyOnInput        *bool `json:"notifyOnInput,omitempty"`
	NotifyOnCompleted    *bool `json:"notifyOnCompleted,omitempty"`
}

// NotificationDismissPayload is the body of a notification.dismiss
// request.
type NotificationDismissPayload struct {
	SessionID string `json:"sessionId"`
}

// ErrorPayload is the body of error and session.error replies.
type ErrorPayload struct {
	Message string `json:"message"`
}

// TerminalExitPayload is the body of a terminal.exit push: the PTY's own
// exit code, distinct from the session.terminated record that accompanies
// it.
type TerminalExitPayload struct {
	SessionID string `json:"sessionId"`
	ExitCode  int    `json:"exitCode"`
}
