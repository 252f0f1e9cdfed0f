package connection

import (
	"github.com/termhub/termhubd/internal/protocol"
	"github.com/termhub/termhubd/internal/session"
	"github.com/termhub/termhubd/internal/store"
)

func toSessionRecord(s store.Session, attachable bool) protocol.SessionRecord {
	return protocol.SessionRecord{
		ID: s.ID, Name: s.Name, Shell: s.Shell, Cwd: s.Cwd,
		CreatedAt: s.CreatedAt, LastAccessedAt: s.LastAccessedAt, OwnerID: s.OwnerID,
		Status: string(s.Status), Cols: s.Cols, Rows: s.Rows,
		ExternalMuxHandle: s.ExternalMuxHandle, CategoryID: s.CategoryID,
		SortOrder: s.SortOrder, Attachable: attachable,
	}
}

func toSessionViews(views []session.SessionView) []protocol.SessionRecord {
	out := make([]protocol.SessionRecord, 0, len(views))
	for _, v := range views {
		out = append(out, toSessionRecord(v.Session, v.Attachable))
	}
	return out
}

func toCategoryRecord(c store.Category) protocol.CategoryRecord {
	return protocol.CategoryRecord{
		ID: c.ID, Name: c.Name, SortOrder: c.SortOrder, Collapsed: c.Collapsed,
		OwnerID: c.OwnerID, CreatedAt: c.CreatedAt,
	}
}

func toCategoryRecords(cats []store.Category) []protocol.CategoryRecord {
	out := make([]protocol.CategoryRecord, 0, len(cats))
	for _, c := range cats {
		out = append(out, toCategoryRecord(c))
	}
	return out
}

func toPreferencesPayload(p store.Preferences) protocol.PreferencesPayload {
	return protocol.PreferencesPayload{
		BrowserNotifyEnabled: p.BrowserEnabled, VisualBadgeEnabled: p.VisualEnabled,
		NotifyOnInput: p.NotifyOnInput, NotifyOnCompleted: p.NotifyOnCompleted,
	}
}
