package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	feedmemory "github.com/aquilax/treeboard/changefeed/memory"
	"github.com/aquilax/treeboard/database/memory"
	"github.com/aquilax/treeboard/log"
	"github.com/aquilax/treeboard/tree"
	"github.com/makiuchi-d/gozxing"
	zxqrcode "github.com/makiuchi-d/gozxing/qrcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	log.SetOutput(io.Discard)
}

type fixture struct {
	board  *TreeBoard
	hub    *feedmemory.Hub
	server *httptest.Server
	client *http.Client
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	c := DefaultConfig()
	c.Database = DatabaseConfig{Driver: "memory"}
	c.Auth.SessionSecret = strings.Repeat("s", 32)
	c.Photos.Dir = t.TempDir()
	c.Translations = ""
	c.PostBlockExpire = 0
	require.NoError(t, c.Validate())

	hub := feedmemory.New()
	l, err := newTreeBoard(c, memory.New(), hub)
	require.NoError(t, err)
	l.auth.Cost = bcrypt.MinCost
	require.NoError(t, l.Migrate(context.Background()))

	srv := httptest.NewServer(l.Router())
	t.Cleanup(func() {
		srv.Close()
		l.Close()
	})
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &fixture{board: l, hub: hub, server: srv, client: &http.Client{Jar: jar}}
}

func (f *fixture) addTree(t *testing.T, tr *tree.Tree) tree.TreeID {
	t.Helper()
	id, err := f.board.db.AddTree(context.Background(), tr)
	require.NoError(t, err)
	return id
}

func (f *fixture) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	res, err := f.client.Get(f.server.URL + path)
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, string(body)
}

func (f *fixture) post(t *testing.T, path string, form url.Values) (*http.Response, string) {
	t.Helper()
	res, err := f.client.PostForm(f.server.URL+path, form)
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, string(body)
}

func (f *fixture) signIn(t *testing.T) {
	t.Helper()
	require.NoError(t, f.board.auth.Register(context.Background(), "admin@college.edu", "secret1"))
	res, body := f.post(t, "/auth", url.Values{"mode": {"signin"}, "email": {"admin@college.edu"}, "password": {"secret1"}})
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "/admin", res.Request.URL.Path)
	require.Contains(t, body, "Logged in successfully")
}

func oak() *tree.Tree {
	age := 150
	return &tree.Tree{Name: "Ancient Oak", Species: "Quercus robur", Age: &age, Location: "Main Quad"}
}

func TestAdminAddsTree(t *testing.T) {
	f := newFixture(t)
	f.signIn(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range map[string]string{
		"name":     "Ancient Oak",
		"species":  "Quercus robur",
		"age":      "150",
		"location": "Main Quad",
	} {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	res, err := f.client.Post(f.server.URL+"/admin/trees/new", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	body, _ := io.ReadAll(res.Body)
	res.Body.Close()

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "/admin", res.Request.URL.Path)
	assert.Contains(t, string(body), "Ancient Oak")
	assert.Contains(t, string(body), "Tree added successfully!")

	trees, err := f.board.db.GetTrees(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, *trees, 1)
	got := (*trees)[0]
	require.NotNil(t, got.Age)
	assert.Equal(t, 150, *got.Age)
	assert.Equal(t, "", got.PhotoURL)
	assert.Nil(t, got.Latitude)
}

func TestAdminAddTreeWithPhoto(t *testing.T) {
	f := newFixture(t)
	f.signIn(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("name", "Copper Beech"))
	require.NoError(t, mw.WriteField("species", "Fagus sylvatica"))
	require.NoError(t, mw.WriteField("location", "Library Lawn"))
	fw, err := mw.CreateFormFile("photo", "beech.JPG")
	require.NoError(t, err)
	fw.Write([]byte("not really a jpeg"))
	require.NoError(t, mw.Close())

	res, err := f.client.Post(f.server.URL+"/admin/trees/new", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, "/admin", res.Request.URL.Path)

	trees, err := f.board.db.GetTrees(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, *trees, 1)
	photo := (*trees)[0].PhotoURL
	assert.True(t, strings.HasPrefix(photo, "/photos/tree-photos/"), photo)
	assert.True(t, strings.HasSuffix(photo, ".jpg"), photo)

	_, body := f.get(t, photo)
	assert.Equal(t, "not really a jpeg", body)
}

func TestAdminFormErrors(t *testing.T) {
	f := newFixture(t)
	f.signIn(t)

	res, body := f.post(t, "/admin/trees/new", url.Values{"name": {"Elm"}, "age": {"-3"}})
	assert.Equal(t, "/admin/trees/new", res.Request.URL.Path)
	assert.Contains(t, body, "Species is required")
	assert.Contains(t, body, "Age must be a whole number of years")
	assert.Contains(t, body, `value="Elm"`)

	total, err := f.board.db.GetTotalTrees(context.Background())
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestAdminRequiresSignIn(t *testing.T) {
	f := newFixture(t)
	res, body := f.get(t, "/admin")
	assert.Equal(t, "/auth", res.Request.URL.Path)
	assert.Contains(t, body, "Create Admin Account")

	res, _ = f.post(t, "/admin/trees/new", url.Values{"name": {"Elm"}})
	assert.Equal(t, "/auth", res.Request.URL.Path)
}

func TestSignUpAndOut(t *testing.T) {
	f := newFixture(t)
	res, body := f.post(t, "/auth", url.Values{"mode": {"signup"}, "email": {"new@college.edu"}, "password": {"123"}})
	assert.Equal(t, "/auth", res.Request.URL.Path)
	assert.Contains(t, body, "Password should be at least 6 characters")

	res, body = f.post(t, "/auth", url.Values{"mode": {"signup"}, "email": {"new@college.edu"}, "password": {"123456"}})
	assert.Equal(t, "signin", res.Request.URL.Query().Get("mode"))
	assert.Contains(t, body, "Account created successfully! You can now sign in.")
	assert.Contains(t, body, "Admin Login")

	res, _ = f.post(t, "/auth", url.Values{"mode": {"signin"}, "email": {"new@college.edu"}, "password": {"123456"}})
	assert.Equal(t, "/admin", res.Request.URL.Path)

	res, body = f.post(t, "/auth/signout", nil)
	assert.Equal(t, "/auth", res.Request.URL.Path)
	assert.Contains(t, body, "You have been signed out successfully")
	res, _ = f.get(t, "/admin")
	assert.Equal(t, "/auth", res.Request.URL.Path)
}

func TestDeleteTree(t *testing.T) {
	f := newFixture(t)
	f.signIn(t)
	id := f.addTree(t, oak())

	res, body := f.post(t, "/admin/trees/"+id+"/delete", nil)
	assert.Equal(t, "/admin", res.Request.URL.Path)
	assert.Contains(t, body, "Tree deleted successfully")

	res, _ = f.get(t, "/tree/"+id)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestTreePage(t *testing.T) {
	f := newFixture(t)
	tr := oak()
	tr.Description = "Planted in **1874**"
	id := f.addTree(t, tr)

	res, body := f.get(t, "/tree/"+id)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, body, "Ancient Oak")
	assert.Contains(t, body, "Quercus robur")
	assert.Contains(t, body, "150 years")
	assert.Contains(t, body, "<strong>1874</strong>")
	assert.Contains(t, body, "0 Likes")
	assert.Contains(t, body, "No comments yet. Be the first to share a memory!")

	res, _ = f.get(t, "/tree/does-not-exist")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestLikeToggle(t *testing.T) {
	f := newFixture(t)
	id := f.addTree(t, oak())

	_, body := f.post(t, "/tree/"+id+"/like", nil)
	assert.Contains(t, body, "1 Like<")
	count, err := f.board.db.CountLikes(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, body = f.post(t, "/tree/"+id+"/like", nil)
	assert.Contains(t, body, "0 Likes")
	count, err = f.board.db.CountLikes(context.Background(), id)
	require.NoError(t, err)
	assert.Zero(t, count)

	_, body = f.get(t, "/metrics")
	assert.Contains(t, body, `treeboard_likes_toggled_total{liked="true"} 1`)
	assert.Contains(t, body, `treeboard_change_events_total{op="insert",table="tree_likes"} 1`)
}

func TestComments(t *testing.T) {
	f := newFixture(t)
	id := f.addTree(t, oak())

	_, body := f.post(t, "/tree/"+id+"/comments", url.Values{"author_name": {"  "}, "comment": {"hello"}})
	assert.Contains(t, body, "Please fill in both name and comment")
	cl, err := f.board.db.GetComments(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, *cl)

	_, body = f.post(t, "/tree/"+id+"/comments", url.Values{"author_name": {"Ann"}, "comment": {"<b>first</b> kiss under it"}})
	assert.Contains(t, body, "Comment posted!")
	assert.Contains(t, body, "&lt;b&gt;first&lt;/b&gt; kiss under it")
	assert.NotContains(t, body, "No comments yet")

	// honeypot submissions are dropped silently
	f.post(t, "/tree/"+id+"/comments", url.Values{"author_name": {"Bot"}, "comment": {"spam"}, "website": {"http://spam"}})
	cl, err = f.board.db.GetComments(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, *cl, 1)
}

func TestCommentThrottle(t *testing.T) {
	f := newFixture(t)
	f.board.sg = NewSpamGuard(time.Hour)
	id := f.addTree(t, oak())

	f.post(t, "/tree/"+id+"/comments", url.Values{"author_name": {"Ann"}, "comment": {"one"}})
	_, body := f.post(t, "/tree/"+id+"/comments", url.Values{"author_name": {"Ann"}, "comment": {"two"}})
	assert.Contains(t, body, "Please wait before posting again")

	cl, err := f.board.db.GetComments(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, *cl, 1)
}

func TestAPITree(t *testing.T) {
	f := newFixture(t)
	id := f.addTree(t, oak())
	require.NoError(t, f.board.db.AddLike(context.Background(), id, "device-other"))

	res, body := f.get(t, "/api/trees/"+id)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var v apiView
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	assert.Equal(t, "Ancient Oak", v.Tree.Name)
	assert.Equal(t, 1, v.Likes)
	assert.False(t, v.HasLiked)
	assert.NotNil(t, v.Comments)

	res, body = f.get(t, "/api/trees/nope")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	var e map[string]string
	require.NoError(t, json.Unmarshal([]byte(body), &e))
	assert.Equal(t, "error", e["status"])
	assert.Equal(t, "tree_not_found", e["error_code"])
}

func TestQRDownload(t *testing.T) {
	f := newFixture(t)
	f.board.qr.Margin = 4
	f.signIn(t)
	id := f.addTree(t, oak())

	res, err := f.client.Get(f.server.URL + "/admin/trees/" + id + "/qr.png")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "image/png", res.Header.Get("Content-Type"))
	assert.Contains(t, res.Header.Get("Content-Disposition"), `filename="ancient-oak-qr.png"`)

	img, err := png.Decode(res.Body)
	require.NoError(t, err)
	assert.Equal(t, 512, img.Bounds().Dx())
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	require.NoError(t, err)
	out, err := zxqrcode.NewQRCodeReader().Decode(bmp, nil)
	require.NoError(t, err)
	assert.Equal(t, f.server.URL+"/tree/"+id, out.GetText())
}

func TestEventsStream(t *testing.T) {
	f := newFixture(t)
	id := f.addTree(t, oak())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.server.URL+"/tree/"+id+"/events", nil)
	require.NoError(t, err)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, "text/event-stream", res.Header.Get("Content-Type"))

	sc := bufio.NewScanner(res.Body)
	next := func() apiView {
		t.Helper()
		for sc.Scan() {
			line := sc.Text()
			if strings.HasPrefix(line, "data: ") {
				var v apiView
				require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &v))
				return v
			}
		}
		t.Fatalf("stream ended: %v", sc.Err())
		return apiView{}
	}

	v := next()
	assert.Equal(t, 0, v.Likes)
	assert.Empty(t, v.Comments)
	assert.Equal(t, 1, f.hub.Subscribers(id))

	require.NoError(t, f.board.db.AddLike(context.Background(), id, "device-B"))
	v = next()
	assert.Equal(t, 1, v.Likes)

	_, err = f.board.db.AddComment(context.Background(), &tree.Comment{TreeID: id, AuthorName: "Ann", Body: "hi"})
	require.NoError(t, err)
	v = next()
	require.Len(t, v.Comments, 1)
	assert.Equal(t, "hi", v.Comments[0].Body)

	cancel()
	assert.Eventually(t, func() bool { return f.hub.Subscribers(id) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestEventsMissingTree(t *testing.T) {
	f := newFixture(t)
	res, _ := f.get(t, "/tree/nope/events")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestCatalogFeeds(t *testing.T) {
	f := newFixture(t)
	tr := oak()
	lat, lon := 42.3601, -71.0942
	tr.Latitude, tr.Longitude = &lat, &lon
	id := f.addTree(t, tr)
	f.addTree(t, &tree.Tree{Name: "Young Maple", Species: "Acer", Location: "Gym"})

	res, body := f.get(t, "/feed.xml")
	assert.Equal(t, "application/rss+xml", res.Header.Get("Content-Type"))
	assert.Contains(t, body, "Ancient Oak")
	assert.Contains(t, body, "/tree/"+id)

	_, body = f.get(t, "/sitemap.xml")
	assert.Contains(t, body, "<loc>"+f.server.URL+"/tree/"+id+"</loc>")

	_, body = f.get(t, "/trees.geojson")
	var fc struct {
		Features []struct {
			ID       string `json:"id"`
			Geometry struct {
				Coordinates []float64 `json:"coordinates"`
			} `json:"geometry"`
			Properties map[string]interface{} `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &fc))
	require.Len(t, fc.Features, 1, "trees without coordinates are left out")
	assert.Equal(t, id, fc.Features[0].ID)
	assert.Equal(t, []float64{lon, lat}, fc.Features[0].Geometry.Coordinates)
	assert.Equal(t, "Ancient Oak", fc.Features[0].Properties["name"])
}

func TestIndexPagination(t *testing.T) {
	f := newFixture(t)
	f.board.config.Site.PerPage = 2
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, name := range []string{"Alder", "Birch", "Cedar"} {
		f.addTree(t, &tree.Tree{Name: name, Species: "x", Location: "y", Created: base.Add(time.Duration(i) * time.Hour)})
	}

	_, body := f.get(t, "/")
	assert.Contains(t, body, "Cedar")
	assert.Contains(t, body, "Birch")
	assert.NotContains(t, body, "Alder")
	assert.Contains(t, body, `href="?page=2"`)

	_, body = f.get(t, "/?page=2")
	assert.Contains(t, body, "Alder")
	assert.NotContains(t, body, "Cedar")
}

func TestIndexPageOutOfRange(t *testing.T) {
	f := newFixture(t)
	f.board.config.Site.PerPage = 2
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, name := range []string{"Alder", "Birch", "Cedar"} {
		f.addTree(t, &tree.Tree{Name: name, Species: "x", Location: "y", Created: base.Add(time.Duration(i) * time.Hour)})
	}

	for _, page := range []string{"9223372036854775807", "4611686018427387904", "3"} {
		res, body := f.get(t, "/?page="+page)
		require.Equal(t, http.StatusOK, res.StatusCode, page)
		assert.Contains(t, body, "Alder", "page %s shows the last page", page)
		assert.NotContains(t, body, "Cedar")
	}

	f.signIn(t)
	res, body := f.get(t, "/admin?page=9223372036854775807")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, body, "Alder")
}

func TestQRDownloadFailure(t *testing.T) {
	f := newFixture(t)
	f.signIn(t)
	id := f.addTree(t, oak())
	// too long to fit in any QR symbol
	f.board.config.Site.BaseURL = "https://trees.college.edu/" + strings.Repeat("x", 5000)

	res, body := f.get(t, "/admin/trees/"+id+"/qr.png")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "/admin", res.Request.URL.Path)
	assert.Contains(t, body, "Failed to generate QR code")
}

func TestShutdownClosesEventStreams(t *testing.T) {
	f := newFixture(t)
	id := f.addTree(t, oak())

	srv := f.board.Server("127.0.0.1:0")
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()

	res, err := http.Get("http://" + ln.Addr().String() + "/tree/" + id + "/events")
	require.NoError(t, err)
	defer res.Body.Close()
	sc := bufio.NewScanner(res.Body)
	for sc.Scan() {
		if strings.HasPrefix(sc.Text(), "data: ") {
			break
		}
	}
	require.Equal(t, 1, f.hub.Subscribers(id))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	start := time.Now()
	require.NoError(t, srv.Shutdown(ctx))
	assert.Less(t, time.Since(start), time.Second)
	assert.ErrorIs(t, <-served, http.ErrServerClosed)
	assert.Eventually(t, func() bool { return f.hub.Subscribers(id) == 0 }, 2*time.Second, 10*time.Millisecond)
}
