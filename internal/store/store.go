// Package store is the Metadata Store: a transactional SQLite-backed
// record of sessions, categories, per-session scrollback blobs, the event
// log, and per-user notification preferences. It is the durable owner of
// these records; in-memory session objects in package session are a
// transient projection of what is here.
//
// Grounded in the teacher's uvm-api process.ProcessManager
// (sql.Open("sqlite3", ...) + CREATE TABLE IF NOT EXISTS), generalized
// from one flat table into the full schema the design names and adding a
// numbered migration runner plus a cached prepared-statement set.
package store

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// Store wraps a SQLite connection. Each statement is prepared once, on its
// first use, and cached; the cache is invalidated (statements closed) on
// Close.
type Store struct {
	db *sql.DB

	mu    sync.Mutex
	stmts map[string]*sql.Stmt
}

// Open opens (creating if necessary) the SQLite database at path and
// applies any pending migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite3 driver serializes writers anyway

	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	return &Store{db: db, stmts: make(map[string]*sql.Stmt)}, nil
}

// Close releases all cached prepared statements and the underlying
// connection.
func (s *Store) Close() error {
	s.mu.Lock()
	for _, stmt := range s.stmts {
		stmt.Close()
	}
	s.stmts = make(map[string]*sql.Stmt)
	s.mu.Unlock()
	return s.db.Close()
}

func (s *Store) prepared(query string) (*sql.Stmt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stmt, ok := s.stmts[query]; ok {
		return stmt, nil
	}
	stmt, err := s.db.Prepare(query)
	if err != nil {
		return nil, err
	}
	s.stmts[query] = stmt
	return stmt, nil
}

// ---- Sessions -------------------------------------------------------

const insertSessionSQL = `INSERT INTO sessions
	(id, name, shell, cwd, created_at, last_accessed_at, owner_id, status, cols, rows, external_mux_handle, category_id, sort_order)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (s *Store) InsertSession(sess Session) error {
	stmt, err := s.prepared(insertSessionSQL)
	if err != nil {
		return err
	}
	_, err = stmt.Exec(sess.ID, sess.Name, sess.Shell, sess.Cwd, sess.CreatedAt, sess.LastAccessedAt,
		sess.OwnerID, string(sess.Status), sess.Cols, sess.Rows, sess.ExternalMuxHandle, sess.CategoryID, sess.SortOrder)
	return err
}

const updateSessionSQL = `UPDATE sessions SET name=?, shell=?, cwd=?, last_accessed_at=?, owner_id=?,
	status=?, cols=?, rows=?, external_mux_handle=?, category_id=?, sort_order=? WHERE id=?`

func (s *Store) UpdateSession(sess Session) error {
	stmt, err := s.prepared(updateSessionSQL)
	if err != nil {
		return err
	}
	_, err = stmt.Exec(sess.Name, sess.Shell, sess.Cwd, sess.LastAccessedAt, sess.OwnerID,
		string(sess.Status), sess.Cols, sess.Rows, sess.ExternalMuxHandle, sess.CategoryID, sess.SortOrder, sess.ID)
	return err
}

const getSessionSQL = `SELECT id, name, shell, cwd, created_at, last_accessed_at, owner_id, status, cols, rows, external_mux_handle, category_id, sort_order FROM sessions WHERE id=?`

func (s *Store) GetSession(id string) (Session, error) {
	stmt, err := s.prepared(getSessionSQL)
	if err != nil {
		return Session{}, err
	}
	return scanSession(stmt.QueryRow(id))
}

const listSessionsSQL = `SELECT id, name, shell, cwd, created_at, last_accessed_at, owner_id, status, cols, rows, external_mux_handle, category_id, sort_order FROM sessions ORDER BY sort_order ASC`

func (s *Store) ListSessions() ([]Session, error) {
	stmt, err := s.prepared(listSessionsSQL)
	if err != nil {
		return nil, err
	}
	rows, err := stmt.Query()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

const deleteSessionSQL = `DELETE FROM sessions WHERE id=?`

func (s *Store) DeleteSession(id string) error {
	stmt, err := s.prepared(deleteSessionSQL)
	if err != nil {
		return err
	}
	_, err = stmt.Exec(id)
	return err
}

const countNonTerminatedSQL = `SELECT COUNT(1) FROM sessions WHERE status != ?`

func (s *Store) CountNonTerminated() (int, error) {
	stmt, err := s.prepared(countNonTerminatedSQL)
	if err != nil {
		return 0, err
	}
	var n int
	err = stmt.QueryRow(string(StatusTerminated)).Scan(&n)
	return n, err
}

const maxSortOrderSQL = `SELECT COALESCE(MAX(sort_order), 0) FROM sessions WHERE category_id IS ?`

// MaxSortOrder returns the highest sort_order among sessions in the given
// category (nil for uncategorized).
func (s *Store) MaxSortOrder(categoryID *string) (int, error) {
	stmt, err := s.prepared(maxSortOrderSQL)
	if err != nil {
		return 0, err
	}
	var n int
	err = stmt.QueryRow(categoryID).Scan(&n)
	return n, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (Session, error) {
	var sess Session
	var status string
	var categoryID sql.NullString
	err := row.Scan(&sess.ID, &sess.Name, &sess.Shell, &sess.Cwd, &sess.CreatedAt, &sess.LastAccessedAt,
		&sess.OwnerID, &status, &sess.Cols, &sess.Rows, &sess.ExternalMuxHandle, &categoryID, &sess.SortOrder)
	if err != nil {
		return Session{}, err
	}
	sess.Status = Status(status)
	if categoryID.Valid {
		v := categoryID.String
		sess.CategoryID = &v
	}
	return sess, nil
}

// ---- Categories -------------------------------------------------------

const insertCategorySQL = `INSERT INTO categories (id, name, sort_order, collapsed, owner_id, created_at) VALUES (?, ?, ?, ?, ?, ?)`

func (s *Store) InsertCategory(c Category) error {
	stmt, err := s.prepared(insertCategorySQL)
	if err != nil {
		return err
	}
	_, err = stmt.Exec(c.ID, c.Name, c.SortOrder, boolToInt(c.Collapsed), c.OwnerID, c.CreatedAt)
	return err
}

const updateCategorySQL = `UPDATE categories SET name=?, sort_order=?, collapsed=? WHERE id=?`

func (s *Store) UpdateCategory(c Category) error {
	stmt, err := s.prepared(updateCategorySQL)
	if err != nil {
		return err
	}
	_, err = stmt.Exec(c.Name, c.SortOrder, boolToInt(c.Collapsed), c.ID)
	return err
}

const getCategorySQL = `SELECT id, name, sort_order, collapsed, owner_id, created_at FROM categories WHERE id=?`

func (s *Store) GetCategory(id string) (Category, error) {
	stmt, err := s.prepared(getCategorySQL)
	if err != nil {
		return Category{}, err
	}
	return scanCategory(stmt.QueryRow(id))
}

const listCategoriesSQL = `SELECT id, name, sort_order, collapsed, owner_id, created_at FROM categories ORDER BY sort_order ASC`

func (s *Store) ListCategories() ([]Category, error) {
	stmt, err := s.prepared(listCategoriesSQL)
	if err != nil {
		return nil, err
	}
	rows, err := stmt.Query()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const deleteCategorySQL = `DELETE FROM categories WHERE id=?`
const uncategorizeSessionsSQL = `UPDATE sessions SET category_id = NULL WHERE category_id = ?`

// DeleteCategory removes the category and uncategorizes any sessions that
// referenced it, in a single transaction (deletion does not cascade into
// sessions per the design).
func (s *Store) DeleteCategory(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(uncategorizeSessionsSQL, id); err != nil {
		tx.Rollback()
		return err
	}
	if _, err := tx.Exec(deleteCategorySQL, id); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

const maxCategorySortOrderSQL = `SELECT COALESCE(MAX(sort_order), 0) FROM categories`

func (s *Store) MaxCategorySortOrder() (int, error) {
	stmt, err := s.prepared(maxCategorySortOrderSQL)
	if err != nil {
		return 0, err
	}
	var n int
	err = stmt.QueryRow().Scan(&n)
	return n, err
}

// ReorderCategories applies a full set of (id, sortOrder) updates in a
// single transaction.
func (s *Store) ReorderCategories(order map[string]int) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`UPDATE categories SET sort_order=? WHERE id=?`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for id, order := range order {
		if _, err := stmt.Exec(order, id); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func scanCategory(row rowScanner) (Category, error) {
	var c Category
	var collapsed int
	err := row.Scan(&c.ID, &c.Name, &c.SortOrder, &collapsed, &c.OwnerID, &c.CreatedAt)
	if err != nil {
		return Category{}, err
	}
	c.Collapsed = collapsed != 0
	return c, nil
}

// ---- Scrollback (fallback persistence) ---------------------------------

const saveScrollbackSQL = `INSERT INTO scrollback (id, session_id, content, created_at) VALUES (?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET content=excluded.content, created_at=excluded.created_at`

// SaveScrollback upserts the stored-scrollback blob for a session, keyed by
// session ID (one row per session).
func (s *Store) SaveScrollback(sessionID, content string) error {
	stmt, err := s.prepared(saveScrollbackSQL)
	if err != nil {
		return err
	}
	_, err = stmt.Exec(sessionID, sessionID, content, time.Now())
	return err
}

const getScrollbackSQL = `SELECT content FROM scrollback WHERE session_id=?`

// GetScrollback returns the stored blob for a session, or "" if none was
// ever persisted.
func (s *Store) GetScrollback(sessionID string) (string, error) {
	stmt, err := s.prepared(getScrollbackSQL)
	if err != nil {
		return "", err
	}
	var content string
	err = stmt.QueryRow(sessionID).Scan(&content)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return content, err
}

// ---- Event log ----------------------------------------------------------

const appendEventSQL = `INSERT INTO session_logs (session_id, event_type, details, created_at) VALUES (?, ?, ?, ?)`

func (s *Store) AppendEvent(sessionID string, kind EventKind, details string) error {
	stmt, err := s.prepared(appendEventSQL)
	if err != nil {
		return err
	}
	_, err = stmt.Exec(sessionID, string(kind), details, time.Now())
	if err != nil {
		logrus.WithError(err).WithField("session_id", sessionID).Warn("store: append event failed")
	}
	return err
}

const listEventsSQL = `SELECT id, session_id, event_type, details, created_at FROM session_logs WHERE session_id=? ORDER BY id ASC`

func (s *Store) ListEvents(sessionID string) ([]Event, error) {
	stmt, err := s.prepared(listEventsSQL)
	if err != nil {
		return nil, err
	}
	rows, err := stmt.Query(sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var kind string
		if err := rows.Scan(&e.ID, &e.SessionID, &kind, &e.Details, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Type = EventKind(kind)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ---- Preferences ----------------------------------------------------------

const getPreferencesSQL = `SELECT user_id, browser_enabled, visual_enabled, notify_on_input, notify_on_completed, updated_at FROM notification_preferences WHERE user_id=?`

func (s *Store) GetPreferences(userID string) (Preferences, error) {
	stmt, err := s.prepared(getPreferencesSQL)
	if err != nil {
		return Preferences{}, err
	}
	var p Preferences
	var browser, visual, input, completed int
	err = stmt.QueryRow(userID).Scan(&p.UserID, &browser, &visual, &input, &completed, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return DefaultPreferences(userID), nil
	}
	if err != nil {
		return Preferences{}, err
	}
	p.BrowserEnabled = browser != 0
	p.VisualEnabled = visual != 0
	p.NotifyOnInput = input != 0
	p.NotifyOnCompleted = completed != 0
	return p, nil
}

const upsertPreferencesSQL = `INSERT INTO notification_preferences
	(user_id, browser_enabled, visual_enabled, notify_on_input, notify_on_completed, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		browser_enabled=excluded.browser_enabled,
		visual_enabled=excluded.visual_enabled,
		notify_on_input=excluded.notify_on_input,
		notify_on_completed=excluded.notify_on_completed,
		updated_at=excluded.updated_at`

func (s *Store) UpsertPreferences(p Preferences) error {
	stmt, err := s.prepared(upsertPreferencesSQL)
	if err != nil {
		return err
	}
	_, err = stmt.Exec(p.UserID, boolToInt(p.BrowserEnabled), boolToInt(p.VisualEnabled),
		boolToInt(p.NotifyOnInput), boolToInt(p.NotifyOnCompleted), time.Now())
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
