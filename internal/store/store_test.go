package store

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsertGetListSession(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().Truncate(time.Second)
	sess := Session{
		ID: "s1", Name: "T", Shell: "/bin/sh", Cwd: "/tmp",
		CreatedAt: now, LastAccessedAt: now, Status: StatusActive,
		Cols: 80, Rows: 24, SortOrder: 1,
	}
	if err := s.InsertSession(sess); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := s.GetSession("s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "T" || got.Status != StatusActive {
		t.Fatalf("got %+v", got)
	}

	list, err := s.ListSessions()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 session, got %d", len(list))
	}
}

func TestDeleteSessionCascadesScrollbackAndEvents(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()
	sess := Session{ID: "s1", Name: "T", Shell: "/bin/sh", CreatedAt: now, LastAccessedAt: now, Status: StatusActive, Cols: 80, Rows: 24}
	if err := s.InsertSession(sess); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.SaveScrollback("s1", "hello"); err != nil {
		t.Fatalf("save scrollback: %v", err)
	}
	if err := s.AppendEvent("s1", EventCreate, ""); err != nil {
		t.Fatalf("append event: %v", err)
	}

	if err := s.DeleteSession("s1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := s.GetSession("s1"); err == nil {
		t.Fatalf("expected session to be absent after delete")
	}
	content, err := s.GetScrollback("s1")
	if err != nil {
		t.Fatalf("get scrollback: %v", err)
	}
	if content != "" {
		t.Fatalf("expected scrollback cascaded away, got %q", content)
	}
	events, err := s.ListEvents("s1")
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected events cascaded away, got %d", len(events))
	}
}

func TestCountNonTerminated(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()
	for i, status := range []Status{StatusActive, StatusIdle, StatusTerminated} {
		id := string(rune('a' + i))
		if err := s.InsertSession(Session{ID: id, Name: id, Shell: "/bin/sh", CreatedAt: now, LastAccessedAt: now, Status: status, Cols: 80, Rows: 24}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	n, err := s.CountNonTerminated()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 non-terminated, got %d", n)
	}
}

func TestCategoryDeleteUncategorizesSessions(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()
	if err := s.InsertCategory(Category{ID: "c1", Name: "Work", CreatedAt: now}); err != nil {
		t.Fatalf("insert category: %v", err)
	}
	cid := "c1"
	if err := s.InsertSession(Session{ID: "s1", Name: "T", Shell: "/bin/sh", CreatedAt: now, LastAccessedAt: now, Status: StatusActive, Cols: 80, Rows: 24, CategoryID: &cid}); err != nil {
		t.Fatalf("insert session: %v", err)
	}

	if err := s.DeleteCategory("c1"); err != nil {
		t.Fatalf("delete category: %v", err)
	}

	got, err := s.GetSession("s1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.CategoryID != nil {
		t.Fatalf("expected session uncategorized, got %v", *got.CategoryID)
	}
}

func TestPreferencesDefaultAllTrue(t *testing.T) {
	s := openTestStore(t)
	p, err := s.GetPreferences("unknown-user")
	if err != nil {
		t.Fatalf("get preferences: %v", err)
	}
	if !p.BrowserEnabled || !p.VisualEnabled || !p.NotifyOnInput || !p.NotifyOnCompleted {
		t.Fatalf("expected all defaults true, got %+v", p)
	}
}

func TestUpsertPreferencesRoundTrip(t *testing.T) {
	s := openTestStore(t)
	p := Preferences{UserID: "u1", BrowserEnabled: true, VisualEnabled: false, NotifyOnInput: true, NotifyOnCompleted: false}
	if err := s.UpsertPreferences(p); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, err := s.GetPreferences("u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.VisualEnabled || got.NotifyOnCompleted {
		t.Fatalf("got %+v", got)
	}
}

func TestMaxSortOrderScopedByCategory(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()
	cid := "c1"
	if err := s.InsertCategory(Category{ID: cid, Name: "Work", CreatedAt: now}); err != nil {
		t.Fatalf("insert category: %v", err)
	}
	if err := s.InsertSession(Session{ID: "s1", Name: "T", Shell: "/bin/sh", CreatedAt: now, LastAccessedAt: now, Status: StatusActive, Cols: 80, Rows: 24, CategoryID: &cid, SortOrder: 5}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	max, err := s.MaxSortOrder(&cid)
	if err != nil {
		t.Fatalf("max sort order: %v", err)
	}
	if max != 5 {
		t.Fatalf("expected 5, got %d", max)
	}
	maxNil, err := s.MaxSortOrder(nil)
	if err != nil {
		t.Fatalf("max sort order nil: %v", err)
	}
	if maxNil != 0 {
		t.Fatalf("expected 0 for uncategorized, got %d", maxNil)
	}
}
