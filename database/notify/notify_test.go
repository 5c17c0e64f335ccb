package notify

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/aquilax/treeboard/changefeed"
	feedmemory "github.com/aquilax/treeboard/changefeed/memory"
	"github.com/aquilax/treeboard/database"
	"github.com/aquilax/treeboard/database/databasetest"
	"github.com/aquilax/treeboard/database/memory"
	"github.com/aquilax/treeboard/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImplementsDatabase(t *testing.T) {
	inter := reflect.TypeOf((*database.Database)(nil)).Elem()

	if !reflect.TypeOf(New(memory.New(), feedmemory.New())).Implements(inter) {
		t.Errorf("Notify does not implement the database interface")
	}
}

func TestNotify(t *testing.T) {
	databasetest.Run(t, func(t *testing.T) database.Database {
		return New(memory.New(), feedmemory.New())
	})
}

func TestWritesAreAnnounced(t *testing.T) {
	ctx := context.Background()
	hub := feedmemory.New()
	db := New(memory.New(), hub)

	var mu sync.Mutex
	var published []changefeed.Event
	db.OnPublish = func(e changefeed.Event) {
		mu.Lock()
		published = append(published, e)
		mu.Unlock()
	}

	id, err := db.AddTree(ctx, &tree.Tree{Name: "Ancient Oak", Species: "Quercus robur", Location: "Main Quad"})
	require.NoError(t, err)

	var seen []changefeed.Event
	sub, err := hub.Subscribe(ctx, id, func(e changefeed.Event) { seen = append(seen, e) })
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, db.AddLike(ctx, id, "dev-A"))
	require.NoError(t, db.DeleteLike(ctx, id, "dev-A"))
	_, err = db.AddComment(ctx, &tree.Comment{TreeID: id, AuthorName: "Ann", Body: "hi"})
	require.NoError(t, err)
	require.NoError(t, db.DeleteTree(ctx, id))

	type tableOp struct {
		table changefeed.Table
		op    changefeed.Op
	}
	var got []tableOp
	for _, e := range seen {
		assert.Equal(t, id, e.TreeID)
		got = append(got, tableOp{e.Table, e.Op})
	}
	assert.Equal(t, []tableOp{
		{changefeed.TableLikes, changefeed.OpInsert},
		{changefeed.TableLikes, changefeed.OpDelete},
		{changefeed.TableComments, changefeed.OpInsert},
		{changefeed.TableTrees, changefeed.OpDelete},
	}, got)
	assert.Len(t, published, 5, "tree insert plus four writes")
}

type failingDB struct {
	*memory.Memory
}

func (failingDB) AddLike(context.Context, tree.TreeID, tree.DeviceID) error {
	return errors.New("store down")
}

func TestFailedWritesAreSilent(t *testing.T) {
	hub := feedmemory.New()
	db := New(failingDB{memory.New()}, hub)

	var seen int
	sub, err := hub.Subscribe(context.Background(), "oak", func(changefeed.Event) { seen++ })
	require.NoError(t, err)
	defer sub.Unsubscribe()

	assert.Error(t, db.AddLike(context.Background(), "oak", "dev-A"))
	assert.Zero(t, seen)
}

func TestClosedFeedDoesNotFailWrite(t *testing.T) {
	hub := feedmemory.New()
	require.NoError(t, hub.Close())
	db := New(memory.New(), hub)
	_, err := db.AddTree(context.Background(), &tree.Tree{Name: "Elm", Species: "Ulmus", Location: "Library"})
	assert.NoError(t, err)
}
