package memory

import (
	"context"
	"testing"

	"github.com/aquilax/treeboard/changefeed"
	"github.com/aquilax/treeboard/changefeed/feedtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub(t *testing.T) {
	h := New()
	defer h.Close()
	feedtest.Run(t, h)
}

func TestSubscribers(t *testing.T) {
	h := New()
	sub, err := h.Subscribe(context.Background(), "oak", func(changefeed.Event) {})
	require.NoError(t, err)
	assert.Equal(t, 1, h.Subscribers("oak"))

	require.NoError(t, sub.Unsubscribe())
	require.NoError(t, sub.Unsubscribe())
	assert.Equal(t, 0, h.Subscribers("oak"))
}

func TestClosed(t *testing.T) {
	h := New()
	require.NoError(t, h.Close())
	_, err := h.Subscribe(context.Background(), "oak", func(changefeed.Event) {})
	assert.ErrorIs(t, err, ErrClosed)
	err = h.Publish(context.Background(), changefeed.NewEvent(changefeed.TableLikes, changefeed.OpInsert, "oak"))
	assert.ErrorIs(t, err, ErrClosed)
}
