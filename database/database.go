package database

import (
	"context"
	"errors"

	"github.com/aquilax/treeboard/tree"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("database: not found")
	// ErrDuplicate is returned when a unique key is already taken.
	ErrDuplicate = errors.New("database: duplicate key")
)

type Database interface {
	Open(driver, dsn string) error
	Close() error
	Migrate(ctx context.Context) error

	GetTrees(ctx context.Context, count, offset int) (*tree.TreeList, error)
	GetTotalTrees(ctx context.Context) (int, error)
	GetTree(ctx context.Context, id tree.TreeID) (*tree.Tree, error)
	AddTree(ctx context.Context, t *tree.Tree) (tree.TreeID, error)
	DeleteTree(ctx context.Context, id tree.TreeID) error

	CountLikes(ctx context.Context, treeID tree.TreeID) (int, error)
	HasLike(ctx context.Context, treeID tree.TreeID, deviceID tree.DeviceID) (bool, error)
	AddLike(ctx context.Context, treeID tree.TreeID, deviceID tree.DeviceID) error
	DeleteLike(ctx context.Context, treeID tree.TreeID, deviceID tree.DeviceID) error

	GetComments(ctx context.Context, treeID tree.TreeID) (*tree.CommentList, error)
	AddComment(ctx context.Context, c *tree.Comment) (tree.CommentID, error)

	GetAdmin(ctx context.Context, email string) (*tree.Admin, error)
	AddAdmin(ctx context.Context, a *tree.Admin) error
}
