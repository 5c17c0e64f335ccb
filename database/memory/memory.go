package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aquilax/treeboard/database"
	"github.com/aquilax/treeboard/tree"
	"github.com/google/uuid"
)

type likeKey struct {
	treeID   tree.TreeID
	deviceID tree.DeviceID
}

type Memory struct {
	mu       sync.RWMutex
	trees    tree.TreeList
	likes    map[likeKey]struct{}
	comments tree.CommentList
	admins   map[string]tree.Admin
}

func New() *Memory {
	return &Memory{
		likes:  make(map[likeKey]struct{}),
		admins: make(map[string]tree.Admin),
	}
}

func min(value int, values ...int) int {
	for _, v := range values {
		if v < value {
			value = v
		}
	}
	return value
}

func (m *Memory) Open(driver, dsn string) error {
	return nil
}

func (m *Memory) Migrate(ctx context.Context) error {
	return nil
}

func (m *Memory) GetTrees(ctx context.Context, count, offset int) (*tree.TreeList, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sorted := make(tree.TreeList, len(m.trees))
	copy(sorted, m.trees)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Created.After(sorted[j].Created)
	})
	if offset < 0 {
		offset = 0
	}
	result := tree.TreeList{}
	if count > 0 && offset < len(sorted) {
		result = sorted[offset : offset+min(len(sorted)-offset, count)]
	}
	return &result, nil
}

func (m *Memory) GetTotalTrees(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.trees), nil
}

func (m *Memory) GetTree(ctx context.Context, id tree.TreeID) (*tree.Tree, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := range m.trees {
		if m.trees[i].ID == id {
			t := m.trees[i]
			return &t, nil
		}
	}
	return nil, database.ErrNotFound
}

func (m *Memory) AddTree(ctx context.Context, t *tree.Tree) (tree.TreeID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.ID = uuid.NewString()
	if t.Created.IsZero() {
		t.Created = time.Now().UTC()
	}
	m.trees = append(m.trees, *t)
	return t.ID, nil
}

func (m *Memory) DeleteTree(ctx context.Context, id tree.TreeID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	found := false
	trees := m.trees[:0]
	for _, t := range m.trees {
		if t.ID == id {
			found = true
			continue
		}
		trees = append(trees, t)
	}
	if !found {
		return database.ErrNotFound
	}
	m.trees = trees
	for k := range m.likes {
		if k.treeID == id {
			delete(m.likes, k)
		}
	}
	comments := m.comments[:0]
	for _, c := range m.comments {
		if c.TreeID != id {
			comments = append(comments, c)
		}
	}
	m.comments = comments
	return nil
}

func (m *Memory) CountLikes(ctx context.Context, treeID tree.TreeID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for k := range m.likes {
		if k.treeID == treeID {
			total++
		}
	}
	return total, nil
}

func (m *Memory) HasLike(ctx context.Context, treeID tree.TreeID, deviceID tree.DeviceID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, found := m.likes[likeKey{treeID, deviceID}]
	return found, nil
}

func (m *Memory) AddLike(ctx context.Context, treeID tree.TreeID, deviceID tree.DeviceID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.likes[likeKey{treeID, deviceID}] = struct{}{}
	return nil
}

func (m *Memory) DeleteLike(ctx context.Context, treeID tree.TreeID, deviceID tree.DeviceID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.likes, likeKey{treeID, deviceID})
	return nil
}

func (m *Memory) GetComments(ctx context.Context, treeID tree.TreeID) (*tree.CommentList, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := tree.CommentList{}
	for _, c := range m.comments {
		if c.TreeID == treeID {
			result = append(result, c)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Created.After(result[j].Created)
	})
	return &result, nil
}

func (m *Memory) AddComment(ctx context.Context, c *tree.Comment) (tree.CommentID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = uuid.NewString()
	if c.Created.IsZero() {
		c.Created = time.Now().UTC()
	}
	m.comments = append(m.comments, *c)
	return c.ID, nil
}

func (m *Memory) GetAdmin(ctx context.Context, email string) (*tree.Admin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, found := m.admins[email]
	if !found {
		return nil, database.ErrNotFound
	}
	return &a, nil
}

func (m *Memory) AddAdmin(ctx context.Context, a *tree.Admin) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, found := m.admins[a.Email]; found {
		return database.ErrDuplicate
	}
	if a.Created.IsZero() {
		a.Created = time.Now().UTC()
	}
	m.admins[a.Email] = *a
	return nil
}

func (m *Memory) Close() error {
	return nil
}
