// Package feedtest holds the behaviour every changefeed.Feed backend must
// share.
package feedtest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aquilax/treeboard/changefeed"
	"github.com/aquilax/treeboard/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wait = 2 * time.Second

type recorder struct {
	mu     sync.Mutex
	events []changefeed.Event
}

func (r *recorder) handle(e changefeed.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *recorder) snapshot() []changefeed.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]changefeed.Event(nil), r.events...)
}

// Run exercises feed. The caller owns closing it.
func Run(t *testing.T, feed changefeed.Feed) {
	ctx := context.Background()

	t.Run("delivers only the subscribed tree", func(t *testing.T) {
		var oak, elm recorder
		s1, err := feed.Subscribe(ctx, "oak", oak.handle)
		require.NoError(t, err)
		defer s1.Unsubscribe()
		s2, err := feed.Subscribe(ctx, "elm", elm.handle)
		require.NoError(t, err)
		defer s2.Unsubscribe()

		require.NoError(t, feed.Publish(ctx, changefeed.NewEvent(changefeed.TableLikes, changefeed.OpInsert, "oak")))
		require.NoError(t, feed.Publish(ctx, changefeed.NewEvent(changefeed.TableComments, changefeed.OpInsert, "oak")))

		assert.Eventually(t, func() bool { return oak.len() == 2 }, wait, 10*time.Millisecond)
		got := oak.snapshot()
		assert.Equal(t, changefeed.TableLikes, got[0].Table)
		assert.Equal(t, changefeed.OpInsert, got[0].Op)
		assert.Equal(t, tree.TreeID("oak"), got[0].TreeID)
		assert.Equal(t, changefeed.TableComments, got[1].Table)
		assert.Zero(t, elm.len())
	})

	t.Run("fans out to every subscriber", func(t *testing.T) {
		var a, b recorder
		s1, err := feed.Subscribe(ctx, "birch", a.handle)
		require.NoError(t, err)
		defer s1.Unsubscribe()
		s2, err := feed.Subscribe(ctx, "birch", b.handle)
		require.NoError(t, err)
		defer s2.Unsubscribe()

		require.NoError(t, feed.Publish(ctx, changefeed.NewEvent(changefeed.TableLikes, changefeed.OpDelete, "birch")))
		assert.Eventually(t, func() bool { return a.len() == 1 && b.len() == 1 }, wait, 10*time.Millisecond)
	})

	t.Run("unsubscribe stops delivery", func(t *testing.T) {
		var before, after recorder
		sub, err := feed.Subscribe(ctx, "maple", before.handle)
		require.NoError(t, err)
		require.NoError(t, sub.Unsubscribe())

		// a second subscriber proves the publish went through
		probe, err := feed.Subscribe(ctx, "maple", after.handle)
		require.NoError(t, err)
		defer probe.Unsubscribe()

		require.NoError(t, feed.Publish(ctx, changefeed.NewEvent(changefeed.TableLikes, changefeed.OpInsert, "maple")))
		assert.Eventually(t, func() bool { return after.len() == 1 }, wait, 10*time.Millisecond)
		assert.Zero(t, before.len())
	})
}
