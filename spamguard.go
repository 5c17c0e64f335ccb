package main

import (
	"sync"
	"time"
)

// SpamGuard throttles comment posting per device.
type SpamGuard struct {
	duration time.Duration
	posts    map[string]time.Time
	mutex    *sync.Mutex
	now      func() time.Time
}

func NewSpamGuard(duration time.Duration) *SpamGuard {
	return &SpamGuard{
		duration: duration,
		posts:    make(map[string]time.Time),
		mutex:    &sync.Mutex{},
		now:      time.Now,
	}
}

// CanPost reports whether id may post now and, if so, blocks it for the
// guard's duration.
func (sg *SpamGuard) CanPost(id string) bool {
	if sg.duration <= 0 {
		return true
	}
	result := true
	now := sg.now()
	sg.mutex.Lock()
	expires, found := sg.posts[id]
	if found && expires.After(now) {
		// Blocked
		result = false
	} else {
		sg.posts[id] = now.Add(sg.duration)
	}
	sg.clean(now)
	sg.mutex.Unlock()
	return result
}

// Release forgets id, used when the post it was reserved for was rejected.
func (sg *SpamGuard) Release(id string) {
	sg.mutex.Lock()
	delete(sg.posts, id)
	sg.mutex.Unlock()
}

func (sg *SpamGuard) clean(now time.Time) {
	for key, expires := range sg.posts {
		if expires.Before(now) {
			delete(sg.posts, key)
		}
	}
}
