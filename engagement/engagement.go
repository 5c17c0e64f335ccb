// Package engagement keeps one tree view's like state and comment list in
// step with the shared store. Change-feed events are treated as cache
// invalidations: the controller re-reads the full state instead of applying
// deltas, which stays correct when events are lost or reordered.
package engagement

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/aquilax/treeboard/changefeed"
	"github.com/aquilax/treeboard/database"
	"github.com/aquilax/treeboard/log"
	"github.com/aquilax/treeboard/tree"
)

var (
	// ErrEmptyComment is returned before any store call when the author
	// name or the body is blank.
	ErrEmptyComment = errors.New("engagement: name and comment are required")
	ErrAlreadyOpen  = errors.New("engagement: view already opened")
)

type State int

const (
	Unloaded State = iota
	Loading
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "unloaded"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type LikeState struct {
	Count    int  `json:"count"`
	HasLiked bool `json:"has_liked"`
}

// View is a point-in-time copy of the controller state.
type View struct {
	State    State            `json:"state"`
	Tree     *tree.Tree       `json:"tree"`
	Likes    LikeState        `json:"likes"`
	Comments tree.CommentList `json:"comments"`
}

const (
	dirtyLikes = 1 << iota
	dirtyComments
)

type Controller struct {
	db       database.Database
	feed     changefeed.Feed
	treeID   tree.TreeID
	deviceID tree.DeviceID

	mu       sync.Mutex
	state    State
	tree     *tree.Tree
	likes    LikeState
	comments tree.CommentList
	dirty    int
	closed   bool

	cancel      context.CancelFunc
	unsubscribe func()
	kick        chan struct{}
	updates     chan View
	done        chan struct{}
	closeOnce   sync.Once
}

// New binds a controller to one tree and one device identity.
func New(db database.Database, feed changefeed.Feed, treeID tree.TreeID, deviceID tree.DeviceID) *Controller {
	return &Controller{
		db:       db,
		feed:     feed,
		treeID:   treeID,
		deviceID: deviceID,
		comments: tree.CommentList{},
		kick:     make(chan struct{}, 1),
		updates:  make(chan View, 1),
	}
}

func (c *Controller) TreeID() tree.TreeID {
	return c.treeID
}

func (c *Controller) DeviceID() tree.DeviceID {
	return c.deviceID
}

// LoadLikeState reads the like count and whether this device liked the tree.
// On failure the previous state is returned together with the error.
func (c *Controller) LoadLikeState(ctx context.Context) (LikeState, error) {
	count, err := c.db.CountLikes(ctx, c.treeID)
	if err != nil {
		return c.currentLikes(), err
	}
	liked, err := c.db.HasLike(ctx, c.treeID, c.deviceID)
	if err != nil {
		return c.currentLikes(), err
	}
	ls := LikeState{Count: count, HasLiked: liked}
	c.mu.Lock()
	if !c.closed {
		c.likes = ls
	}
	c.mu.Unlock()
	return ls, nil
}

func (c *Controller) currentLikes() LikeState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.likes
}

// ToggleLike removes this device's like when present and adds it otherwise.
// It reports the state it wrote. Two tabs toggling at once can race; the
// next change-feed refresh reconciles them.
func (c *Controller) ToggleLike(ctx context.Context) (bool, error) {
	liked, err := c.db.HasLike(ctx, c.treeID, c.deviceID)
	if err != nil {
		return false, err
	}
	if liked {
		return false, c.db.DeleteLike(ctx, c.treeID, c.deviceID)
	}
	return true, c.db.AddLike(ctx, c.treeID, c.deviceID)
}

// LoadComments reads the full comment history, newest first.
func (c *Controller) LoadComments(ctx context.Context) (tree.CommentList, error) {
	cl, err := c.db.GetComments(ctx, c.treeID)
	if err != nil {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.comments, err
	}
	c.mu.Lock()
	if !c.closed {
		c.comments = *cl
	}
	c.mu.Unlock()
	return *cl, nil
}

// PostComment stores a new comment. The local list is not touched; the
// comment shows up once the change feed triggers a reload.
func (c *Controller) PostComment(ctx context.Context, authorName, body string) error {
	authorName = strings.TrimSpace(authorName)
	body = strings.TrimSpace(body)
	if authorName == "" || body == "" {
		return ErrEmptyComment
	}
	_, err := c.db.AddComment(ctx, &tree.Comment{
		TreeID:     c.treeID,
		AuthorName: authorName,
		Body:       body,
	})
	return err
}

// Subscribe listens for like and comment changes on this tree. The callbacks
// run on the feed's delivery goroutine and must return quickly. The returned
// function releases the subscription.
func (c *Controller) Subscribe(ctx context.Context, onLikeChange, onCommentChange func()) (func(), error) {
	sub, err := c.feed.Subscribe(ctx, c.treeID, func(e changefeed.Event) {
		switch e.Table {
		case changefeed.TableLikes:
			onLikeChange()
		case changefeed.TableComments:
			onCommentChange()
		}
	})
	if err != nil {
		return nil, err
	}
	return func() {
		if err := sub.Unsubscribe(); err != nil {
			log.Warn.Printf("engagement: unsubscribe tree %s: %v", c.treeID, err)
		}
	}, nil
}

// Open loads the tree and its engagement state and starts following the
// change feed. A failed tree fetch leaves the view in Failed for good.
// The view lives until ctx is done or Close is called.
func (c *Controller) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.state != Unloaded {
		c.mu.Unlock()
		return ErrAlreadyOpen
	}
	c.state = Loading
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	t, err := c.db.GetTree(ctx, c.treeID)
	if err != nil {
		c.fail()
		return err
	}
	// subscribe before reading so nothing written in between is missed
	unsubscribe, err := c.Subscribe(ctx, c.invalidator(dirtyLikes), c.invalidator(dirtyComments))
	if err != nil {
		c.fail()
		return err
	}
	c.unsubscribe = unsubscribe

	c.mu.Lock()
	c.tree = t
	c.mu.Unlock()
	if _, err := c.LoadLikeState(ctx); err != nil {
		log.Warn.Printf("engagement: load likes for tree %s: %v", c.treeID, err)
	}
	if _, err := c.LoadComments(ctx); err != nil {
		log.Warn.Printf("engagement: load comments for tree %s: %v", c.treeID, err)
	}
	c.setState(Ready)
	c.emit()

	c.done = make(chan struct{})
	go c.loop(ctx)
	return nil
}

func (c *Controller) fail() {
	c.setState(Failed)
	c.cancel()
	c.emit()
}

func (c *Controller) invalidator(flag int) func() {
	return func() {
		c.mu.Lock()
		c.dirty |= flag
		c.mu.Unlock()
		select {
		case c.kick <- struct{}{}:
		default:
		}
	}
}

func (c *Controller) loop(ctx context.Context) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.kick:
		}
		c.mu.Lock()
		flags := c.dirty
		c.dirty = 0
		c.mu.Unlock()
		if flags == 0 {
			continue
		}
		c.setState(Loading)
		if flags&dirtyLikes != 0 {
			if _, err := c.LoadLikeState(ctx); err != nil && ctx.Err() == nil {
				log.Warn.Printf("engagement: reload likes for tree %s: %v", c.treeID, err)
			}
		}
		if flags&dirtyComments != 0 {
			if _, err := c.LoadComments(ctx); err != nil && ctx.Err() == nil {
				log.Warn.Printf("engagement: reload comments for tree %s: %v", c.treeID, err)
			}
		}
		if ctx.Err() != nil {
			return
		}
		c.setState(Ready)
		c.emit()
	}
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	if !c.closed {
		c.state = s
	}
	c.mu.Unlock()
}

// emit replaces any unread view with the latest one.
func (c *Controller) emit() {
	v := c.Snapshot()
	select {
	case <-c.updates:
	default:
	}
	select {
	case c.updates <- v:
	default:
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Snapshot() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	comments := make(tree.CommentList, len(c.comments))
	copy(comments, c.comments)
	return View{
		State:    c.state,
		Tree:     c.tree,
		Likes:    c.likes,
		Comments: comments,
	}
}

// Updates delivers a view after the initial load and after every refresh.
// Only the latest unread view is kept.
func (c *Controller) Updates() <-chan View {
	return c.updates
}

// Close cancels in-flight reads, drops their late results and releases the
// change-feed subscription.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		if c.cancel != nil {
			c.cancel()
		}
		if c.unsubscribe != nil {
			c.unsubscribe()
		}
		if c.done != nil {
			<-c.done
		}
	})
}
