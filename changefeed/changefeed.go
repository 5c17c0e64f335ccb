// Package changefeed delivers row change notifications scoped to a single
// tree. Subscribers treat every event as an invalidation signal and re-read
// the authoritative state, so lost or reordered events are harmless.
package changefeed

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aquilax/treeboard/tree"
)

type Table string

const (
	TableTrees    Table = "trees"
	TableLikes    Table = "tree_likes"
	TableComments Table = "tree_comments"
)

type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

type Event struct {
	Table  Table       `json:"table"`
	Op     Op          `json:"op"`
	TreeID tree.TreeID `json:"tree_id"`
	At     time.Time   `json:"at"`
}

// Handler must not block; slow work belongs on another goroutine.
type Handler func(Event)

type Subscription interface {
	Unsubscribe() error
}

type Feed interface {
	Publish(ctx context.Context, e Event) error
	Subscribe(ctx context.Context, treeID tree.TreeID, handler Handler) (Subscription, error)
	Close() error
}

func NewEvent(table Table, op Op, treeID tree.TreeID) Event {
	return Event{Table: table, Op: op, TreeID: treeID, At: time.Now().UTC()}
}

func Encode(e Event) ([]byte, error) {
	return json.Marshal(e)
}

func Decode(data []byte) (Event, error) {
	var e Event
	err := json.Unmarshal(data, &e)
	return e, err
}

// SubscriptionFunc adapts a plain function to Subscription.
type SubscriptionFunc func() error

func (f SubscriptionFunc) Unsubscribe() error {
	return f()
}
