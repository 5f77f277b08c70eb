// Package sqlite implements the note store on an embedded SQLite file.
//
// It lets import, export and sync run without a Trilium server: the note
// tree, labels and attachments live in a single database file opened in WAL
// mode so a watch daemon and a CLI invocation can share it.
//
// Layout:
//   - notes: id, title, type, mime, content, timestamps
//   - branches: parent/child edges with position
//   - attributes: labels and relations
//   - attachments: blobs owned by a note
package sqlite

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/noteport/noteport/internal/store"
)

const timeLayout = time.RFC3339Nano

// DB is a note store backed by SQLite.
type DB struct {
	conn *sql.DB
	path string
}

var _ store.Store = (*DB)(nil)

// Open creates or opens the database at path and ensures the schema.
//
// The caller MUST call Close() when done so the WAL is checkpointed.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// SQLite serializes writers; a single connection avoids SQLITE_BUSY
	// between our own goroutines.
	conn.SetMaxOpenConns(1)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{conn: conn, path: path}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.conn.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	if err := db.InitSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// RawDB returns the underlying sql.DB connection.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// Close checkpoints the WAL and closes the connection.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}
	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	db.conn = nil
	return nil
}

// InitSchema creates the tables and the root note. Idempotent.
func (db *DB) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS notes (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		type TEXT NOT NULL DEFAULT 'text',
		mime TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		date_created TEXT NOT NULL,
		date_modified TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS branches (
		parent_id TEXT NOT NULL,
		note_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (parent_id, note_id),
		FOREIGN KEY (parent_id) REFERENCES notes(id) ON DELETE CASCADE,
		FOREIGN KEY (note_id) REFERENCES notes(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS attributes (
		id TEXT PRIMARY KEY,
		note_id TEXT NOT NULL,
		type TEXT NOT NULL,
		name TEXT NOT NULL,
		value TEXT NOT NULL DEFAULT '',
		position INTEGER NOT NULL,
		FOREIGN KEY (note_id) REFERENCES notes(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS attachments (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		role TEXT NOT NULL,
		title TEXT NOT NULL,
		mime TEXT NOT NULL DEFAULT '',
		content BLOB,
		date_modified TEXT NOT NULL,
		FOREIGN KEY (owner_id) REFERENCES notes(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_branches_note ON branches(note_id);
	CREATE INDEX IF NOT EXISTS idx_attributes_note ON attributes(note_id);
	CREATE INDEX IF NOT EXISTS idx_attributes_name_value ON attributes(name, value);
	CREATE INDEX IF NOT EXISTS idx_attachments_owner ON attachments(owner_id);
	`
	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	now := time.Now().UTC().Format(timeLayout)
	_, err := db.conn.ExecContext(ctx, `
		INSERT OR IGNORE INTO notes (id, title, type, date_created, date_modified)
		VALUES (?, 'root', ?, ?, ?)`, store.RootNoteID, store.TypeBook, now, now)
	if err != nil {
		return fmt.Errorf("failed to create root note: %w", err)
	}
	return nil
}

func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, store.ErrNotFound)
}

func (db *DB) CreateNote(ctx context.Context, p store.CreateNoteParams) (string, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM notes WHERE id = ?", p.ParentID).Scan(&exists); err != nil {
		return "", fmt.Errorf("failed to check parent: %w", err)
	}
	if exists == 0 {
		return "", notFound("parent", p.ParentID)
	}

	id := newID()
	now := time.Now().UTC().Format(timeLayout)
	typ := p.Type
	if typ == "" {
		typ = store.TypeText
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO notes (id, title, type, mime, content, date_created, date_modified)
		VALUES (?, ?, ?, ?, ?, ?, ?)`, id, p.Title, typ, p.Mime, p.Content, now, now); err != nil {
		return "", fmt.Errorf("failed to insert note: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO branches (parent_id, note_id, position)
		VALUES (?, ?, (SELECT COALESCE(MAX(position), 0) + 10 FROM branches WHERE parent_id = ?))`,
		p.ParentID, id, p.ParentID); err != nil {
		return "", fmt.Errorf("failed to insert branch: %w", err)
	}
	for i, a := range p.Attributes {
		if a.Type == "" {
			a.Type = store.AttributeLabel
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO attributes (id, note_id, type, name, value, position)
			VALUES (?, ?, ?, ?, ?, ?)`, newID(), id, a.Type, a.Name, a.Value, (i+1)*10); err != nil {
			return "", fmt.Errorf("failed to insert attribute %s: %w", a.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}
	return id, nil
}

func (db *DB) GetNote(ctx context.Context, id string) (*store.Note, error) {
	var n store.Note
	var created, modified string
	err := db.conn.QueryRowContext(ctx, `
		SELECT id, title, type, mime, date_created, date_modified FROM notes WHERE id = ?`, id).
		Scan(&n.ID, &n.Title, &n.Type, &n.Mime, &created, &modified)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("note", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get note %s: %w", id, err)
	}
	n.DateCreated, _ = time.Parse(timeLayout, created)
	n.DateModified, _ = time.Parse(timeLayout, modified)

	if n.ParentIDs, err = db.column(ctx, "SELECT parent_id FROM branches WHERE note_id = ? ORDER BY parent_id", id); err != nil {
		return nil, err
	}
	if n.ChildIDs, err = db.column(ctx, "SELECT note_id FROM branches WHERE parent_id = ? ORDER BY position", id); err != nil {
		return nil, err
	}
	if n.Attributes, err = db.GetNoteAttributes(ctx, id); err != nil {
		return nil, err
	}
	return &n, nil
}

func (db *DB) column(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (db *DB) GetNoteContent(ctx context.Context, id string) (string, error) {
	var content string
	err := db.conn.QueryRowContext(ctx, "SELECT content FROM notes WHERE id = ?", id).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", notFound("note", id)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get content of %s: %w", id, err)
	}
	return content, nil
}

func (db *DB) exec(ctx context.Context, kind, id, query string, args ...any) error {
	res, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update %s %s: %w", kind, id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound(kind, id)
	}
	return nil
}

func (db *DB) UpdateNote(ctx context.Context, id string, u store.NoteUpdate) error {
	sets := []string{"date_modified = ?"}
	args := []any{time.Now().UTC().Format(timeLayout)}
	if u.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *u.Title)
	}
	if u.Type != nil {
		sets = append(sets, "type = ?")
		args = append(args, *u.Type)
	}
	if u.Mime != nil {
		sets = append(sets, "mime = ?")
		args = append(args, *u.Mime)
	}
	args = append(args, id)
	return db.exec(ctx, "note", id, "UPDATE notes SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
}

func (db *DB) UpdateNoteContent(ctx context.Context, id, content string) error {
	return db.exec(ctx, "note", id, "UPDATE notes SET content = ?, date_modified = ? WHERE id = ?",
		content, time.Now().UTC().Format(timeLayout), id)
}

// DeleteNote removes the note and every descendant that has no other parent.
func (db *DB) DeleteNote(ctx context.Context, id string) error {
	if id == store.RootNoteID {
		return fmt.Errorf("cannot delete root note")
	}
	query := `
	WITH RECURSIVE subtree(id) AS (
		SELECT ?
		UNION
		SELECT b.note_id FROM branches b JOIN subtree s ON b.parent_id = s.id
	)
	DELETE FROM notes WHERE id IN (SELECT id FROM subtree)`
	return db.exec(ctx, "note", id, query, id)
}

func (db *DB) CreateAttachment(ctx context.Context, p store.CreateAttachmentParams) (string, error) {
	data, err := base64.StdEncoding.DecodeString(p.Base64)
	if err != nil {
		return "", fmt.Errorf("decode attachment %s: %w", p.Title, err)
	}
	var exists int
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM notes WHERE id = ?", p.OwnerID).Scan(&exists); err != nil {
		return "", fmt.Errorf("failed to check owner: %w", err)
	}
	if exists == 0 {
		return "", notFound("owner", p.OwnerID)
	}
	role := p.Role
	if role == "" {
		role = "file"
	}
	id := newID()
	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO attachments (id, owner_id, role, title, mime, content, date_modified)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, p.OwnerID, role, p.Title, p.Mime, data, time.Now().UTC().Format(timeLayout))
	if err != nil {
		return "", fmt.Errorf("failed to insert attachment: %w", err)
	}
	return id, nil
}

func (db *DB) ListAttachments(ctx context.Context, noteID string) ([]store.Attachment, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, owner_id, role, title, mime, length(content), date_modified
		FROM attachments WHERE owner_id = ? ORDER BY title`, noteID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	defer rows.Close()

	var out []store.Attachment
	for rows.Next() {
		var a store.Attachment
		var size sql.NullInt64
		var modified string
		if err := rows.Scan(&a.ID, &a.OwnerID, &a.Role, &a.Title, &a.Mime, &size, &modified); err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		a.Size = size.Int64
		a.DateModified, _ = time.Parse(timeLayout, modified)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (db *DB) GetAttachmentContent(ctx context.Context, id string) ([]byte, error) {
	var data []byte
	err := db.conn.QueryRowContext(ctx, "SELECT content FROM attachments WHERE id = ?", id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("attachment", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read attachment %s: %w", id, err)
	}
	return data, nil
}

func (db *DB) UpdateAttachmentContent(ctx context.Context, id, b64 string) error {
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return fmt.Errorf("decode attachment %s: %w", id, err)
	}
	return db.exec(ctx, "attachment", id, "UPDATE attachments SET content = ?, date_modified = ? WHERE id = ?",
		data, time.Now().UTC().Format(timeLayout), id)
}

func (db *DB) SearchNotes(ctx context.Context, q store.Query) ([]store.Note, error) {
	var conditions []string
	var args []any

	conditions = append(conditions, "a.type = 'label'", "a.name = ?")
	args = append(args, q.Label)
	if q.MatchValue {
		conditions = append(conditions, "a.value = ?")
		args = append(args, q.Value)
	}

	query := "SELECT DISTINCT a.note_id FROM attributes a WHERE " + strings.Join(conditions, " AND ")
	if q.AncestorID != "" {
		query = `
		WITH RECURSIVE subtree(id) AS (
			SELECT note_id FROM branches WHERE parent_id = ?
			UNION
			SELECT b.note_id FROM branches b JOIN subtree s ON b.parent_id = s.id
		)
		SELECT DISTINCT a.note_id FROM attributes a
		WHERE ` + strings.Join(conditions, " AND ") + ` AND a.note_id IN (SELECT id FROM subtree)`
		args = append([]any{q.AncestorID}, args...)
	}
	query += " ORDER BY a.note_id"

	ids, err := db.column(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search notes: %w", err)
	}
	out := make([]store.Note, 0, len(ids))
	for _, id := range ids {
		n, err := db.GetNote(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, nil
}

func (db *DB) CreateAttribute(ctx context.Context, a store.Attribute) (string, error) {
	if a.Type == "" {
		a.Type = store.AttributeLabel
	}
	id := newID()
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO attributes (id, note_id, type, name, value, position)
		VALUES (?, ?, ?, ?, ?, (SELECT COALESCE(MAX(position), 0) + 10 FROM attributes WHERE note_id = ?))`,
		id, a.NoteID, a.Type, a.Name, a.Value, a.NoteID)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY") {
			return "", notFound("note", a.NoteID)
		}
		return "", fmt.Errorf("failed to insert attribute: %w", err)
	}
	return id, nil
}

func (db *DB) GetNoteAttributes(ctx context.Context, noteID string) ([]store.Attribute, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, note_id, type, name, value FROM attributes WHERE note_id = ? ORDER BY position`, noteID)
	if err != nil {
		return nil, fmt.Errorf("failed to query attributes: %w", err)
	}
	defer rows.Close()

	var out []store.Attribute
	for rows.Next() {
		var a store.Attribute
		if err := rows.Scan(&a.ID, &a.NoteID, &a.Type, &a.Name, &a.Value); err != nil {
			return nil, fmt.Errorf("failed to scan attribute: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (db *DB) UpdateAttribute(ctx context.Context, a store.Attribute) error {
	return db.exec(ctx, "attribute", a.ID, "UPDATE attributes SET value = ? WHERE id = ?", a.Value, a.ID)
}

func (db *DB) DeleteAttribute(ctx context.Context, id string) error {
	return db.exec(ctx, "attribute", id, "DELETE FROM attributes WHERE id = ?", id)
}

// Stats reports row counts for the status command.
type Stats struct {
	Notes       int
	Attachments int
	Attributes  int
}

// Stats counts the stored rows.
func (db *DB) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := db.conn.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM notes), (SELECT COUNT(*) FROM attachments), (SELECT COUNT(*) FROM attributes)`).
		Scan(&s.Notes, &s.Attachments, &s.Attributes)
	if err != nil {
		return s, fmt.Errorf("failed to count rows: %w", err)
	}
	return s, nil
}
