package category

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/termhub/termhubd/internal/apierr"
	"github.com/termhub/termhubd/internal/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return NewService(st)
}

func TestCreateAssignsIncrementingSortOrder(t *testing.T) {
	s := newTestService(t)
	a, err := s.Create("Work", "u1")
	if err != nil {
		t.Fatalf("create a: %v", err)
	}
	b, err := s.Create("Personal", "u1")
	if err != nil {
		t.Fatalf("create b: %v", err)
	}
	if b.SortOrder <= a.SortOrder {
		t.Fatalf("expected increasing sort order, got a=%d b=%d", a.SortOrder, b.SortOrder)
	}
}

func TestCreateRejectsEmptyName(t *testing.T) {
	s := newTestService(t)
	if _, err := s.Create("   ", "u1"); apierr.KindOf(err) != apierr.InvalidInput {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestDeleteUncategorizesRatherThanCascades(t *testing.T) {
	s := newTestService(t)
	c, err := s.Create("Work", "u1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	cid := c.ID
	now := time.Now()
	if err := s.st.InsertSession(store.Session{
		ID: "s1", Name: "T", Shell: "/bin/sh", CreatedAt: now, LastAccessedAt: now,
		Status: store.StatusIdle, Cols: 80, Rows: 24, CategoryID: &cid,
	}); err != nil {
		t.Fatalf("insert session: %v", err)
	}
	if err := s.Delete(c.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.st.GetCategory(c.ID); err == nil {
		t.Fatalf("expected category to be gone after delete")
	}
	got, err := s.st.GetSession("s1")
	if err != nil {
		t.Fatalf("expected session to survive category delete: %v", err)
	}
	if got.CategoryID != nil {
		t.Fatalf("expected session uncategorized, got %v", *got.CategoryID)
	}
}

func TestPreferencesDefaultAllTrueThenUpsertEchoes(t *testing.T) {
	s := newTestService(t)
	p, err := s.GetPreferences("u1")
	if err != nil {
		t.Fatalf("get preferences: %v", err)
	}
	if !p.BrowserEnabled || !p.VisualEnabled || !p.NotifyOnInput || !p.NotifyOnCompleted {
		t.Fatalf("expected all-true defaults, got %+v", p)
	}

	p.NotifyOnCompleted = false
	got, err := s.SetPreferences(p)
	if err != nil {
		t.Fatalf("set preferences: %v", err)
	}
	if got.NotifyOnCompleted {
		t.Fatalf("expected echoed preferences to reflect the update, got %+v", got)
	}
}
