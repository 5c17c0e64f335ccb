package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/aquilax/treeboard/database"
	"github.com/aquilax/treeboard/tree"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS trees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		species TEXT NOT NULL,
		age INTEGER,
		location TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		latitude REAL,
		longitude REAL,
		photo_url TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS tree_likes (
		tree_id TEXT NOT NULL,
		device_id TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (tree_id, device_id)
	)`,
	`CREATE TABLE IF NOT EXISTS tree_comments (
		id TEXT PRIMARY KEY,
		tree_id TEXT NOT NULL,
		author_name TEXT NOT NULL,
		comment TEXT NOT NULL,
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS tree_comments_tree_created ON tree_comments (tree_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS admins (
		email TEXT PRIMARY KEY,
		password_hash TEXT NOT NULL,
		created_at INTEGER NOT NULL
	)`,
}

// Timestamps are stored as unix nanoseconds so ORDER BY created_at is exact.
type treeRow struct {
	tree.Tree
	CreatedAt int64 `db:"created_at"`
}

type commentRow struct {
	tree.Comment
	CreatedAt int64 `db:"created_at"`
}

type adminRow struct {
	tree.Admin
	CreatedAt int64 `db:"created_at"`
}

func fromNano(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func (r treeRow) toTree() tree.Tree {
	t := r.Tree
	t.Created = fromNano(r.CreatedAt)
	return t
}

type SQLite struct {
	db *sqlx.DB
}

func New() *SQLite {
	return &SQLite{}
}

func (m *SQLite) Open(driver, DSN string) error {
	var err error
	sqlx.BindDriver(driver, sqlx.QUESTION)
	m.db, err = sqlx.Open(driver, DSN)
	if err != nil {
		return err
	}
	// a second connection to ":memory:" would see an empty database
	m.db.SetMaxOpenConns(1)
	return m.db.Ping()
}

func (m *SQLite) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (m *SQLite) GetTrees(ctx context.Context, count, offset int) (*tree.TreeList, error) {
	var rows []treeRow
	err := m.db.SelectContext(ctx, &rows, "SELECT * FROM trees ORDER BY created_at DESC, id LIMIT ? OFFSET ?", count, offset)
	tl := make(tree.TreeList, 0, len(rows))
	for _, r := range rows {
		tl = append(tl, r.toTree())
	}
	return &tl, err
}

func (m *SQLite) GetTotalTrees(ctx context.Context) (int, error) {
	var total int
	err := m.db.GetContext(ctx, &total, "SELECT count(*) FROM trees")
	return total, err
}

func (m *SQLite) GetTree(ctx context.Context, id tree.TreeID) (*tree.Tree, error) {
	var r treeRow
	err := m.db.GetContext(ctx, &r, "SELECT * FROM trees WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t := r.toTree()
	return &t, nil
}

func (m *SQLite) AddTree(ctx context.Context, t *tree.Tree) (tree.TreeID, error) {
	if t.Created.IsZero() {
		t.Created = time.Now().UTC()
	}
	id := uuid.NewString()
	_, err := m.db.ExecContext(ctx, `INSERT INTO trees (
			id, name, species, age, location, description, latitude, longitude, photo_url, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, t.Name, t.Species, t.Age, t.Location, t.Description, t.Latitude, t.Longitude, t.PhotoURL, t.Created.UnixNano())
	if err != nil {
		return "", err
	}
	t.ID = id
	return id, nil
}

func (m *SQLite) DeleteTree(ctx context.Context, id tree.TreeID) error {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	res, err := tx.ExecContext(ctx, "DELETE FROM trees WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return database.ErrNotFound
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM tree_likes WHERE tree_id = ?", id); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM tree_comments WHERE tree_id = ?", id); err != nil {
		return err
	}
	return tx.Commit()
}

func (m *SQLite) CountLikes(ctx context.Context, treeID tree.TreeID) (int, error) {
	var total int
	err := m.db.GetContext(ctx, &total, "SELECT count(*) FROM tree_likes WHERE tree_id = ?", treeID)
	return total, err
}

func (m *SQLite) HasLike(ctx context.Context, treeID tree.TreeID, deviceID tree.DeviceID) (bool, error) {
	var exists bool
	err := m.db.GetContext(ctx, &exists, "SELECT EXISTS (SELECT 1 FROM tree_likes WHERE tree_id = ? AND device_id = ?)", treeID, deviceID)
	return exists, err
}

func (m *SQLite) AddLike(ctx context.Context, treeID tree.TreeID, deviceID tree.DeviceID) error {
	_, err := m.db.ExecContext(ctx, `INSERT INTO tree_likes (tree_id, device_id, created_at) VALUES (?, ?, ?)
		ON CONFLICT (tree_id, device_id) DO NOTHING`, treeID, deviceID, time.Now().UnixNano())
	return err
}

func (m *SQLite) DeleteLike(ctx context.Context, treeID tree.TreeID, deviceID tree.DeviceID) error {
	_, err := m.db.ExecContext(ctx, "DELETE FROM tree_likes WHERE tree_id = ? AND device_id = ?", treeID, deviceID)
	return err
}

func (m *SQLite) GetComments(ctx context.Context, treeID tree.TreeID) (*tree.CommentList, error) {
	var rows []commentRow
	err := m.db.SelectContext(ctx, &rows, "SELECT * FROM tree_comments WHERE tree_id = ? ORDER BY created_at DESC", treeID)
	cl := make(tree.CommentList, 0, len(rows))
	for _, r := range rows {
		c := r.Comment
		c.Created = fromNano(r.CreatedAt)
		cl = append(cl, c)
	}
	return &cl, err
}

func (m *SQLite) AddComment(ctx context.Context, c *tree.Comment) (tree.CommentID, error) {
	if c.Created.IsZero() {
		c.Created = time.Now().UTC()
	}
	id := uuid.NewString()
	_, err := m.db.ExecContext(ctx, "INSERT INTO tree_comments (id, tree_id, author_name, comment, created_at) VALUES (?, ?, ?, ?, ?)",
		id, c.TreeID, c.AuthorName, c.Body, c.Created.UnixNano())
	if err != nil {
		return "", err
	}
	c.ID = id
	return id, nil
}

func (m *SQLite) GetAdmin(ctx context.Context, email string) (*tree.Admin, error) {
	var r adminRow
	err := m.db.GetContext(ctx, &r, "SELECT * FROM admins WHERE email = ?", email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a := r.Admin
	a.Created = fromNano(r.CreatedAt)
	return &a, nil
}

func (m *SQLite) AddAdmin(ctx context.Context, a *tree.Admin) error {
	if a.Created.IsZero() {
		a.Created = time.Now().UTC()
	}
	res, err := m.db.ExecContext(ctx, `INSERT INTO admins (email, password_hash, created_at) VALUES (?, ?, ?)
		ON CONFLICT (email) DO NOTHING`, a.Email, a.PasswordHash, a.Created.UnixNano())
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return database.ErrDuplicate
	}
	return nil
}

func (m *SQLite) Close() error {
	return m.db.Close()
}
