package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/aquilax/treeboard/database"
	"github.com/aquilax/treeboard/tree"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS trees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		species TEXT NOT NULL,
		age INTEGER CHECK (age >= 0),
		location TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		latitude DOUBLE PRECISION,
		longitude DOUBLE PRECISION,
		photo_url TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS tree_likes (
		tree_id TEXT NOT NULL REFERENCES trees (id) ON DELETE CASCADE,
		device_id TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (tree_id, device_id)
	)`,
	`CREATE TABLE IF NOT EXISTS tree_comments (
		id TEXT PRIMARY KEY,
		tree_id TEXT NOT NULL REFERENCES trees (id) ON DELETE CASCADE,
		author_name TEXT NOT NULL,
		comment TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS tree_comments_tree_created ON tree_comments (tree_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS admins (
		email TEXT PRIMARY KEY,
		password_hash TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// Postgres works with both the "postgres" (lib/pq) and "pgx" drivers.
type Postgres struct {
	db *sqlx.DB
}

func New() *Postgres {
	return &Postgres{}
}

func (m *Postgres) Open(driver, DSN string) error {
	var err error
	m.db, err = sqlx.Open(driver, DSN)
	if err != nil {
		return err
	}
	return m.db.Ping()
}

func (m *Postgres) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (m *Postgres) GetTrees(ctx context.Context, count, offset int) (*tree.TreeList, error) {
	tl := tree.TreeList{}
	err := m.db.SelectContext(ctx, &tl, "SELECT * FROM trees ORDER BY created_at DESC, id LIMIT $1 OFFSET $2", count, offset)
	return &tl, err
}

func (m *Postgres) GetTotalTrees(ctx context.Context) (int, error) {
	var total int
	err := m.db.GetContext(ctx, &total, "SELECT count(*) FROM trees")
	return total, err
}

func (m *Postgres) GetTree(ctx context.Context, id tree.TreeID) (*tree.Tree, error) {
	var t tree.Tree
	err := m.db.GetContext(ctx, &t, "SELECT * FROM trees WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (m *Postgres) AddTree(ctx context.Context, t *tree.Tree) (tree.TreeID, error) {
	if t.Created.IsZero() {
		t.Created = time.Now().UTC()
	}
	t.ID = uuid.NewString()
	_, err := m.db.NamedExecContext(ctx, `INSERT INTO trees (
			id,
			name,
			species,
			age,
			location,
			description,
			latitude,
			longitude,
			photo_url,
			created_at
		) VALUES (
			:id,
			:name,
			:species,
			:age,
			:location,
			:description,
			:latitude,
			:longitude,
			:photo_url,
			:created_at
		)`, t)
	if err != nil {
		t.ID = ""
		return "", err
	}
	return t.ID, nil
}

// DeleteTree relies on ON DELETE CASCADE for likes and comments.
func (m *Postgres) DeleteTree(ctx context.Context, id tree.TreeID) error {
	res, err := m.db.ExecContext(ctx, "DELETE FROM trees WHERE id = $1", id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return database.ErrNotFound
	}
	return nil
}

func (m *Postgres) CountLikes(ctx context.Context, treeID tree.TreeID) (int, error) {
	var total int
	err := m.db.GetContext(ctx, &total, "SELECT count(*) FROM tree_likes WHERE tree_id = $1", treeID)
	return total, err
}

func (m *Postgres) HasLike(ctx context.Context, treeID tree.TreeID, deviceID tree.DeviceID) (bool, error) {
	var exists bool
	err := m.db.GetContext(ctx, &exists, "SELECT EXISTS (SELECT 1 FROM tree_likes WHERE tree_id = $1 AND device_id = $2)", treeID, deviceID)
	return exists, err
}

func (m *Postgres) AddLike(ctx context.Context, treeID tree.TreeID, deviceID tree.DeviceID) error {
	_, err := m.db.ExecContext(ctx, `INSERT INTO tree_likes (tree_id, device_id) VALUES ($1, $2)
		ON CONFLICT (tree_id, device_id) DO NOTHING`, treeID, deviceID)
	return err
}

func (m *Postgres) DeleteLike(ctx context.Context, treeID tree.TreeID, deviceID tree.DeviceID) error {
	_, err := m.db.ExecContext(ctx, "DELETE FROM tree_likes WHERE tree_id = $1 AND device_id = $2", treeID, deviceID)
	return err
}

func (m *Postgres) GetComments(ctx context.Context, treeID tree.TreeID) (*tree.CommentList, error) {
	cl := tree.CommentList{}
	err := m.db.SelectContext(ctx, &cl, "SELECT * FROM tree_comments WHERE tree_id = $1 ORDER BY created_at DESC", treeID)
	return &cl, err
}

func (m *Postgres) AddComment(ctx context.Context, c *tree.Comment) (tree.CommentID, error) {
	if c.Created.IsZero() {
		c.Created = time.Now().UTC()
	}
	id := uuid.NewString()
	_, err := m.db.ExecContext(ctx, "INSERT INTO tree_comments (id, tree_id, author_name, comment, created_at) VALUES ($1, $2, $3, $4, $5)",
		id, c.TreeID, c.AuthorName, c.Body, c.Created)
	if err != nil {
		return "", err
	}
	c.ID = id
	return id, nil
}

func (m *Postgres) GetAdmin(ctx context.Context, email string) (*tree.Admin, error) {
	var a tree.Admin
	err := m.db.GetContext(ctx, &a, "SELECT * FROM admins WHERE email = $1", email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (m *Postgres) AddAdmin(ctx context.Context, a *tree.Admin) error {
	if a.Created.IsZero() {
		a.Created = time.Now().UTC()
	}
	res, err := m.db.ExecContext(ctx, `INSERT INTO admins (email, password_hash, created_at) VALUES ($1, $2, $3)
		ON CONFLICT (email) DO NOTHING`, a.Email, a.PasswordHash, a.Created)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return database.ErrDuplicate
	}
	return nil
}

func (m *Postgres) Close() error {
	return m.db.Close()
}
