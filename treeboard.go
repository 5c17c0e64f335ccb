package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/aquilax/treeboard/auth"
	"github.com/aquilax/treeboard/changefeed"
	feedmemory "github.com/aquilax/treeboard/changefeed/memory"
	feednats "github.com/aquilax/treeboard/changefeed/nats"
	feedredis "github.com/aquilax/treeboard/changefeed/redis"
	"github.com/aquilax/treeboard/database"
	"github.com/aquilax/treeboard/database/cached"
	"github.com/aquilax/treeboard/database/memory"
	"github.com/aquilax/treeboard/database/notify"
	"github.com/aquilax/treeboard/database/postgres"
	"github.com/aquilax/treeboard/database/sqlite"
	"github.com/aquilax/treeboard/device"
	"github.com/aquilax/treeboard/log"
	"github.com/aquilax/treeboard/objectstore"
	"github.com/aquilax/treeboard/qrcode"
	"github.com/gorilla/mux"
)

// TreeBoard is the catalog web application.
type TreeBoard struct {
	config    *Config
	db        database.Database
	feed      changefeed.Feed
	auth      *auth.Auth
	photos    *objectstore.Dir
	tp        *TransPool
	sg        *SpamGuard
	metrics   *Metrics
	qr        qrcode.Options
	templates map[string]*template.Template

	// streams ends every open event stream when the server shuts down.
	streams     context.Context
	stopStreams context.CancelFunc
}

type HTTPError struct {
	Err     error
	Message string
	Code    int
	// ErrorCode is a stable machine readable reason for JSON clients.
	ErrorCode string
}

func (e HTTPError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e HTTPError) Unwrap() error {
	return e.Err
}

type appHandler func(http.ResponseWriter, *http.Request) error

func (fn appHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := fn(w, r); err != nil {
		code, message := errorStatus(err)
		if code >= http.StatusInternalServerError {
			log.Error.Printf("%s %s: %v", r.Method, r.URL.Path, err)
		}
		http.Error(w, message, code)
	}
}

// jsonHandler reports errors as JSON bodies.
type jsonHandler func(http.ResponseWriter, *http.Request) error

func (fn jsonHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := fn(w, r); err != nil {
		code, message := errorStatus(err)
		if code >= http.StatusInternalServerError {
			log.Error.Printf("%s %s: %v", r.Method, r.URL.Path, err)
		}
		errorCode := "internal_error"
		var he HTTPError
		if errors.As(err, &he) && he.ErrorCode != "" {
			errorCode = he.ErrorCode
		} else if code == http.StatusNotFound {
			errorCode = "not_found"
		}
		writeJSON(w, code, map[string]string{
			"status":     "error",
			"error":      message,
			"error_code": errorCode,
		})
	}
}

func errorStatus(err error) (int, string) {
	var he HTTPError
	if errors.As(err, &he) {
		msg := he.Message
		if msg == "" {
			msg = http.StatusText(he.Code)
		}
		return he.Code, msg
	}
	if errors.Is(err, database.ErrNotFound) {
		return http.StatusNotFound, "Not found"
	}
	if errors.Is(err, context.Canceled) {
		// client went away
		return 499, "Client closed request"
	}
	// Default to 500 Internal Server Error
	return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	return json.NewEncoder(w).Encode(v)
}

// openDatabase returns the configured store, opened but not migrated.
func openDatabase(c DatabaseConfig) (database.Database, error) {
	var db database.Database
	switch c.Driver {
	case "memory":
		db = memory.New()
	case "sqlite":
		db = sqlite.New()
	case "postgres", "pgx":
		db = postgres.New()
	default:
		return nil, fmt.Errorf("unknown database driver %q", c.Driver)
	}
	if err := db.Open(c.Driver, c.Dsn); err != nil {
		return nil, fmt.Errorf("open %s database: %w", c.Driver, err)
	}
	if c.Cached {
		db = cached.New(db)
	}
	return db, nil
}

func openFeed(c FeedConfig) (changefeed.Feed, error) {
	switch c.Driver {
	case "memory":
		return feedmemory.New(), nil
	case "redis":
		return feedredis.Dial(c.URL)
	case "nats":
		return feednats.Dial(c.URL)
	}
	return nil, fmt.Errorf("unknown feed driver %q", c.Driver)
}

// NewTreeBoard wires the application from its configuration. Writes go
// through a notifying store so every open view hears about them.
func NewTreeBoard(c *Config) (*TreeBoard, error) {
	db, err := openDatabase(c.Database)
	if err != nil {
		return nil, err
	}
	feed, err := openFeed(c.Feed)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open %s feed: %w", c.Feed.Driver, err)
	}
	return newTreeBoard(c, db, feed)
}

func newTreeBoard(c *Config, db database.Database, feed changefeed.Feed) (*TreeBoard, error) {
	qr, err := qrOptions(c.QR)
	if err != nil {
		return nil, err
	}
	templates, err := parseTemplates()
	if err != nil {
		return nil, err
	}
	metrics := NewMetrics()
	n := notify.New(db, feed)
	n.OnPublish = metrics.published

	a := auth.New(n, auth.NewCookieStore([]byte(c.Auth.SessionSecret), c.Auth.SecureCookie))
	a.AllowSignUp = c.Auth.AllowSignUp

	streams, stop := context.WithCancel(context.Background())
	return &TreeBoard{
		config:    c,
		db:        n,
		feed:      feed,
		auth:      a,
		photos:    objectstore.NewDir(c.Photos.Dir, "/photos", c.Photos.MaxSize),
		tp:        NewTransPool(c.Translations),
		sg:        NewSpamGuard(c.PostBlockExpire),
		metrics:   metrics,
		qr:        qr,
		templates: templates,

		streams:     streams,
		stopStreams: stop,
	}, nil
}

func qrOptions(c QRConfig) (qrcode.Options, error) {
	opts := qrcode.DefaultOptions()
	opts.Size = c.Size
	opts.Margin = c.Margin
	var err error
	if c.Dark != "" {
		if opts.Dark, err = qrcode.ParseHexColor(c.Dark); err != nil {
			return opts, fmt.Errorf("qr.dark: %w", err)
		}
	}
	if c.Light != "" {
		if opts.Light, err = qrcode.ParseHexColor(c.Light); err != nil {
			return opts, fmt.Errorf("qr.light: %w", err)
		}
	}
	return opts, nil
}

func (l *TreeBoard) Migrate(ctx context.Context) error {
	return l.db.Migrate(ctx)
}

// Server returns the HTTP server for the catalog. Shutting it down also
// closes the open event streams, which would otherwise keep their
// connections busy until the shutdown deadline.
func (l *TreeBoard) Server(addr string) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           l.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv.RegisterOnShutdown(l.stopStreams)
	return srv
}

func (l *TreeBoard) Close() error {
	l.stopStreams()
	ferr := l.feed.Close()
	if err := l.db.Close(); err != nil {
		return err
	}
	return ferr
}

func (l *TreeBoard) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(device.Middleware)

	r.Handle("/", appHandler(l.indexHandler)).Methods("GET")
	r.Handle("/tree/{id}", appHandler(l.treeHandler)).Methods("GET")
	r.Handle("/tree/{id}/like", appHandler(l.likeHandler)).Methods("POST")
	r.Handle("/tree/{id}/comments", appHandler(l.commentHandler)).Methods("POST")
	r.Handle("/tree/{id}/events", appHandler(l.eventsHandler)).Methods("GET")
	r.Handle("/api/trees/{id}", jsonHandler(l.apiTreeHandler)).Methods("GET")
	r.Handle("/feed.xml", appHandler(l.feedHandler)).Methods("GET")
	r.Handle("/sitemap.xml", appHandler(l.sitemapHandler)).Methods("GET")
	r.Handle("/trees.geojson", appHandler(l.geojsonHandler)).Methods("GET")
	r.Handle("/metrics", l.metrics.Handler()).Methods("GET")

	r.Handle("/auth", appHandler(l.authHandler)).Methods("GET", "POST")
	r.Handle("/auth/signout", appHandler(l.signOutHandler)).Methods("POST")

	admin := r.PathPrefix("/admin").Subrouter()
	admin.Use(l.auth.Require)
	admin.Handle("", appHandler(l.adminHandler)).Methods("GET")
	admin.Handle("/trees/new", appHandler(l.addTreeHandler)).Methods("GET", "POST")
	admin.Handle("/trees/{id}/delete", appHandler(l.deleteTreeHandler)).Methods("POST")
	admin.Handle("/trees/{id}/qr.png", appHandler(l.qrHandler)).Methods("GET")

	// Uploaded photos
	r.PathPrefix("/photos/").Handler(http.StripPrefix("/photos/", http.FileServer(http.Dir(l.config.Photos.Dir))))
	return r
}

func (l *TreeBoard) siteConfig() *SiteConfig {
	return &l.config.Site
}

func (l *TreeBoard) language() *Language {
	return l.tp.Get(l.config.Site.Language)
}

// newSession prepares a page and pops the pending flashes.
func (l *TreeBoard) newSession(w http.ResponseWriter, r *http.Request) *Session {
	s := NewSession(l.siteConfig(), l.language())
	s.SetFlashes(l.auth.Flashes(w, r))
	return s
}

func (l *TreeBoard) flash(w http.ResponseWriter, r *http.Request, kind, message string) {
	if err := l.auth.AddFlash(w, r, kind, l.language().Lang(message)); err != nil {
		log.Warn.Printf("flash: %v", err)
	}
}

func (l *TreeBoard) baseURL(r *http.Request) string {
	return l.config.baseURL(r.Host, r.TLS != nil)
}

func treeURL(baseURL, id string) string {
	return baseURL + "/tree/" + id
}

func deviceID(r *http.Request) string {
	id, _ := device.FromContext(r.Context())
	return id
}
