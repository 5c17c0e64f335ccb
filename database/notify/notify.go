// Package notify wraps a database and announces every successful write on a
// change feed, standing in for the row-level triggers of a managed backend.
package notify

import (
	"context"

	"github.com/aquilax/treeboard/changefeed"
	"github.com/aquilax/treeboard/database"
	"github.com/aquilax/treeboard/log"
	"github.com/aquilax/treeboard/tree"
)

type Notify struct {
	db   database.Database
	feed changefeed.Feed
	// OnPublish, when set, is called after every announced event.
	OnPublish func(changefeed.Event)
}

func New(db database.Database, feed changefeed.Feed) *Notify {
	return &Notify{db: db, feed: feed}
}

// publish never fails the write: the row is already committed.
func (n *Notify) publish(ctx context.Context, table changefeed.Table, op changefeed.Op, treeID tree.TreeID) {
	e := changefeed.NewEvent(table, op, treeID)
	if err := n.feed.Publish(context.WithoutCancel(ctx), e); err != nil {
		log.Warn.Printf("notify: publish %s %s for tree %s: %v", e.Table, e.Op, treeID, err)
		return
	}
	if n.OnPublish != nil {
		n.OnPublish(e)
	}
}

func (n *Notify) Open(driver, dsn string) error {
	return n.db.Open(driver, dsn)
}

func (n *Notify) Migrate(ctx context.Context) error {
	return n.db.Migrate(ctx)
}

func (n *Notify) GetTrees(ctx context.Context, count, offset int) (*tree.TreeList, error) {
	return n.db.GetTrees(ctx, count, offset)
}

func (n *Notify) GetTotalTrees(ctx context.Context) (int, error) {
	return n.db.GetTotalTrees(ctx)
}

func (n *Notify) GetTree(ctx context.Context, id tree.TreeID) (*tree.Tree, error) {
	return n.db.GetTree(ctx, id)
}

func (n *Notify) AddTree(ctx context.Context, t *tree.Tree) (tree.TreeID, error) {
	id, err := n.db.AddTree(ctx, t)
	if err == nil {
		n.publish(ctx, changefeed.TableTrees, changefeed.OpInsert, id)
	}
	return id, err
}

func (n *Notify) DeleteTree(ctx context.Context, id tree.TreeID) error {
	err := n.db.DeleteTree(ctx, id)
	if err == nil {
		n.publish(ctx, changefeed.TableTrees, changefeed.OpDelete, id)
	}
	return err
}

func (n *Notify) CountLikes(ctx context.Context, treeID tree.TreeID) (int, error) {
	return n.db.CountLikes(ctx, treeID)
}

func (n *Notify) HasLike(ctx context.Context, treeID tree.TreeID, deviceID tree.DeviceID) (bool, error) {
	return n.db.HasLike(ctx, treeID, deviceID)
}

func (n *Notify) AddLike(ctx context.Context, treeID tree.TreeID, deviceID tree.DeviceID) error {
	err := n.db.AddLike(ctx, treeID, deviceID)
	if err == nil {
		n.publish(ctx, changefeed.TableLikes, changefeed.OpInsert, treeID)
	}
	return err
}

func (n *Notify) DeleteLike(ctx context.Context, treeID tree.TreeID, deviceID tree.DeviceID) error {
	err := n.db.DeleteLike(ctx, treeID, deviceID)
	if err == nil {
		n.publish(ctx, changefeed.TableLikes, changefeed.OpDelete, treeID)
	}
	return err
}

func (n *Notify) GetComments(ctx context.Context, treeID tree.TreeID) (*tree.CommentList, error) {
	return n.db.GetComments(ctx, treeID)
}

func (n *Notify) AddComment(ctx context.Context, c *tree.Comment) (tree.CommentID, error) {
	id, err := n.db.AddComment(ctx, c)
	if err == nil {
		n.publish(ctx, changefeed.TableComments, changefeed.OpInsert, c.TreeID)
	}
	return id, err
}

func (n *Notify) GetAdmin(ctx context.Context, email string) (*tree.Admin, error) {
	return n.db.GetAdmin(ctx, email)
}

func (n *Notify) AddAdmin(ctx context.Context, a *tree.Admin) error {
	return n.db.AddAdmin(ctx, a)
}

func (n *Notify) Close() error {
	return n.db.Close()
}
