// Package nats shares the change feed between server instances over NATS
// core subjects, one subject per tree.
package nats

import (
	"context"
	"time"

	"github.com/aquilax/treeboard/changefeed"
	"github.com/aquilax/treeboard/log"
	"github.com/aquilax/treeboard/tree"
	"github.com/nats-io/nats.go"
)

const (
	subjectPrefix = "treeboard.tree."
	flushTimeout  = 2 * time.Second
)

type Feed struct {
	conn *nats.Conn
}

func New(conn *nats.Conn) *Feed {
	return &Feed{conn: conn}
}

func Dial(url string) (*Feed, error) {
	conn, err := nats.Connect(url, nats.Name("treeboard"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, err
	}
	return New(conn), nil
}

func Subject(treeID tree.TreeID) string {
	return subjectPrefix + treeID
}

func (f *Feed) Publish(ctx context.Context, e changefeed.Event) error {
	data, err := changefeed.Encode(e)
	if err != nil {
		return err
	}
	return f.conn.Publish(Subject(e.TreeID), data)
}

func (f *Feed) Subscribe(ctx context.Context, treeID tree.TreeID, handler changefeed.Handler) (changefeed.Subscription, error) {
	sub, err := f.conn.Subscribe(Subject(treeID), func(m *nats.Msg) {
		e, err := changefeed.Decode(m.Data)
		if err != nil {
			log.Warn.Printf("changefeed: bad payload on %s: %v", m.Subject, err)
			return
		}
		handler(e)
	})
	if err != nil {
		return nil, err
	}
	// make sure the server registered the interest before returning
	if err := f.conn.FlushTimeout(flushTimeout); err != nil {
		sub.Unsubscribe()
		return nil, err
	}
	return sub, nil
}

func (f *Feed) Close() error {
	return f.conn.Drain()
}
