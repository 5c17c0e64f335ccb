package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/aquilax/treeboard/log"
)

const keepAlive = 25 * time.Second

// eventsHandler streams the tree view as server-sent events. Each connection
// owns one engagement controller which follows the change feed and pushes a
// fresh view after every reload.
func (l *TreeBoard) eventsHandler(w http.ResponseWriter, r *http.Request) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return HTTPError{Message: "Streaming unsupported", Code: http.StatusNotImplemented}
	}
	c := l.controller(r)
	if err := c.Open(r.Context()); err != nil {
		if _, terr := l.getTree(r); terr != nil {
			return terr
		}
		return err
	}
	defer c.Close()
	l.metrics.openViews.Inc()
	defer l.metrics.openViews.Dec()

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return nil
		case <-l.streams.Done():
			return nil
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return nil
			}
			flusher.Flush()
		case v := <-c.Updates():
			data, err := json.Marshal(newAPIView(v))
			if err != nil {
				log.Error.Printf("events: encode view for tree %s: %v", c.TreeID(), err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", v.State, data); err != nil {
				return nil
			}
			flusher.Flush()
		}
	}
}
