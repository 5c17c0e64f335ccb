// Package redis shares the change feed between server instances over redis
// PUBLISH/SUBSCRIBE.
package redis

import (
	"context"
	"sync"

	"github.com/aquilax/treeboard/changefeed"
	"github.com/aquilax/treeboard/log"
	"github.com/aquilax/treeboard/tree"
	"github.com/go-redis/redis"
)

const channelPrefix = "treeboard:tree:"

type Feed struct {
	client *redis.Client
}

func New(client *redis.Client) *Feed {
	return &Feed{client: client}
}

// Dial connects using a redis:// URL.
func Dial(url string) (*Feed, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opt)
	if err := client.Ping().Err(); err != nil {
		client.Close()
		return nil, err
	}
	return New(client), nil
}

func Channel(treeID tree.TreeID) string {
	return channelPrefix + treeID
}

func (f *Feed) Publish(ctx context.Context, e changefeed.Event) error {
	data, err := changefeed.Encode(e)
	if err != nil {
		return err
	}
	return f.client.Publish(Channel(e.TreeID), data).Err()
}

func (f *Feed) Subscribe(ctx context.Context, treeID tree.TreeID, handler changefeed.Handler) (changefeed.Subscription, error) {
	ps := f.client.Subscribe(Channel(treeID))
	// wait for the subscription confirmation so no publish is missed
	if _, err := ps.Receive(); err != nil {
		ps.Close()
		return nil, err
	}
	ch := ps.Channel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range ch {
			e, err := changefeed.Decode([]byte(msg.Payload))
			if err != nil {
				log.Warn.Printf("changefeed: bad payload on %s: %v", msg.Channel, err)
				continue
			}
			handler(e)
		}
	}()
	var once sync.Once
	return changefeed.SubscriptionFunc(func() error {
		var err error
		once.Do(func() {
			err = ps.Close()
			<-done
		})
		return err
	}), nil
}

func (f *Feed) Close() error {
	return f.client.Close()
}
