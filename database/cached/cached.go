package cached

import (
	"context"
	"fmt"
	"sync"

	"github.com/aquilax/treeboard/database"
	"github.com/aquilax/treeboard/tree"
)

type GetTreeCache map[tree.TreeID]*tree.Tree
type GetTreesCache map[string]*tree.TreeList

// Cached keeps tree reads in memory until the next tree write. Likes and
// comments always go to the underlying database.
type Cached struct {
	db         database.Database
	mu         sync.RWMutex
	treeCache  GetTreeCache
	treesCache GetTreesCache
	total      *int
}

func New(db database.Database) *Cached {
	return &Cached{
		db:         db,
		treeCache:  make(GetTreeCache),
		treesCache: make(GetTreesCache),
	}
}

func (m *Cached) clear() {
	m.mu.Lock()
	m.treeCache = make(GetTreeCache)
	m.treesCache = make(GetTreesCache)
	m.total = nil
	m.mu.Unlock()
}

func (m *Cached) Open(driver, dsn string) error {
	return m.db.Open(driver, dsn)
}

func (m *Cached) Migrate(ctx context.Context) error {
	return m.db.Migrate(ctx)
}

func (m *Cached) GetTrees(ctx context.Context, count, offset int) (*tree.TreeList, error) {
	key := fmt.Sprintf("%d|%d", count, offset)
	m.mu.RLock()
	result, found := m.treesCache[key]
	m.mu.RUnlock()
	if found {
		return result, nil
	}
	result, err := m.db.GetTrees(ctx, count, offset)
	if err == nil {
		m.mu.Lock()
		m.treesCache[key] = result
		m.mu.Unlock()
	}
	return result, err
}

func (m *Cached) GetTotalTrees(ctx context.Context) (int, error) {
	m.mu.RLock()
	total := m.total
	m.mu.RUnlock()
	if total != nil {
		return *total, nil
	}
	result, err := m.db.GetTotalTrees(ctx)
	if err == nil {
		m.mu.Lock()
		m.total = &result
		m.mu.Unlock()
	}
	return result, err
}

func (m *Cached) GetTree(ctx context.Context, id tree.TreeID) (*tree.Tree, error) {
	m.mu.RLock()
	result, found := m.treeCache[id]
	m.mu.RUnlock()
	if found {
		return result, nil
	}
	result, err := m.db.GetTree(ctx, id)
	if err == nil {
		m.mu.Lock()
		m.treeCache[id] = result
		m.mu.Unlock()
	}
	return result, err
}

func (m *Cached) AddTree(ctx context.Context, t *tree.Tree) (tree.TreeID, error) {
	result, err := m.db.AddTree(ctx, t)
	if err == nil {
		m.clear()
	}
	return result, err
}

func (m *Cached) DeleteTree(ctx context.Context, id tree.TreeID) error {
	err := m.db.DeleteTree(ctx, id)
	if err == nil {
		m.clear()
	}
	return err
}

func (m *Cached) CountLikes(ctx context.Context, treeID tree.TreeID) (int, error) {
	return m.db.CountLikes(ctx, treeID)
}

func (m *Cached) HasLike(ctx context.Context, treeID tree.TreeID, deviceID tree.DeviceID) (bool, error) {
	return m.db.HasLike(ctx, treeID, deviceID)
}

func (m *Cached) AddLike(ctx context.Context, treeID tree.TreeID, deviceID tree.DeviceID) error {
	return m.db.AddLike(ctx, treeID, deviceID)
}

func (m *Cached) DeleteLike(ctx context.Context, treeID tree.TreeID, deviceID tree.DeviceID) error {
	return m.db.DeleteLike(ctx, treeID, deviceID)
}

func (m *Cached) GetComments(ctx context.Context, treeID tree.TreeID) (*tree.CommentList, error) {
	return m.db.GetComments(ctx, treeID)
}

func (m *Cached) AddComment(ctx context.Context, c *tree.Comment) (tree.CommentID, error) {
	return m.db.AddComment(ctx, c)
}

func (m *Cached) GetAdmin(ctx context.Context, email string) (*tree.Admin, error) {
	return m.db.GetAdmin(ctx, email)
}

func (m *Cached) AddAdmin(ctx context.Context, a *tree.Admin) error {
	return m.db.AddAdmin(ctx, a)
}

func (m *Cached) Close() error {
	return m.db.Close()
}
