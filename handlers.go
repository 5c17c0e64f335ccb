package main

import (
	"errors"
	"net/http"
	"strings"

	"github.com/aquilax/treeboard/auth"
	"github.com/aquilax/treeboard/database"
	"github.com/aquilax/treeboard/engagement"
	"github.com/aquilax/treeboard/log"
	"github.com/aquilax/treeboard/tree"
	"github.com/gorilla/mux"
)

func (l *TreeBoard) indexHandler(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	perPage := l.config.Site.PerPage
	total, err := l.db.GetTotalTrees(ctx)
	if err != nil {
		return err
	}
	page := clampPage(getPageNumber(r.URL.Query().Get("page")), perPage, total)
	trees, err := l.db.GetTrees(ctx, perPage, page*perPage)
	if err != nil {
		return err
	}
	s := l.newSession(w, r)
	s.AddPath("", s.Lang("Home"))
	s.Set("Trees", trees)
	s.Set("Pagination", Pagination(PaginationConfig{
		page:  page + 1,
		ipp:   perPage,
		total: total,
		url:   "?",
		param: "page",
	}))
	return s.render(w, l.templates, "index.html")
}

func (l *TreeBoard) controller(r *http.Request) *engagement.Controller {
	return engagement.New(l.db, l.feed, mux.Vars(r)["id"], deviceID(r))
}

func (l *TreeBoard) getTree(r *http.Request) (*tree.Tree, error) {
	t, err := l.db.GetTree(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, database.ErrNotFound) {
		return nil, HTTPError{Err: err, Message: l.language().Lang("Tree not found"), Code: http.StatusNotFound, ErrorCode: "tree_not_found"}
	}
	return t, err
}

func (l *TreeBoard) treeHandler(w http.ResponseWriter, r *http.Request) error {
	t, err := l.getTree(r)
	if err != nil {
		return err
	}
	c := l.controller(r)
	likes, err := c.LoadLikeState(r.Context())
	if err != nil {
		// the page stays usable without the counter
		log.Warn.Printf("tree %s: load likes: %v", t.ID, err)
	}
	comments, err := c.LoadComments(r.Context())
	if err != nil {
		log.Warn.Printf("tree %s: load comments: %v", t.ID, err)
	}

	s := l.newSession(w, r)
	s.AddPath("/", s.Lang("Home"))
	s.AddPath("", t.Name)
	s.Set("Subtitle", t.Name)
	s.Set("Description", t.Species+", "+t.Location)
	s.Set("Tree", t)
	s.Set("Likes", likes.Count)
	s.Set("HasLiked", likes.HasLiked)
	s.Set("Comments", comments)
	s.Set("Form", tree.Comment{})
	return s.render(w, l.templates, "tree.html")
}

func (l *TreeBoard) likeHandler(w http.ResponseWriter, r *http.Request) error {
	t, err := l.getTree(r)
	if err != nil {
		return err
	}
	liked, err := l.controller(r).ToggleLike(r.Context())
	if err != nil {
		log.Error.Printf("tree %s: toggle like: %v", t.ID, err)
		l.flash(w, r, auth.FlashError, "Failed to update like")
	} else {
		l.metrics.liked(liked)
	}
	http.Redirect(w, r, "/tree/"+t.ID, http.StatusSeeOther)
	return nil
}

func (l *TreeBoard) commentHandler(w http.ResponseWriter, r *http.Request) error {
	t, err := l.getTree(r)
	if err != nil {
		return err
	}
	back := "/tree/" + t.ID + "#comments"
	if inHoneypot(r.FormValue("website")) {
		http.Redirect(w, r, back, http.StatusSeeOther)
		return nil
	}
	author := authorName(r.FormValue("author_name"))
	body := r.FormValue("comment")
	if strings.TrimSpace(author) == "" || strings.TrimSpace(body) == "" {
		l.flash(w, r, auth.FlashError, "Please fill in both name and comment")
		http.Redirect(w, r, back, http.StatusSeeOther)
		return nil
	}
	dev := deviceID(r)
	if !l.sg.CanPost(dev) {
		l.metrics.commentsBlocked.Inc()
		l.flash(w, r, auth.FlashError, "Please wait before posting again")
		http.Redirect(w, r, back, http.StatusSeeOther)
		return nil
	}
	err = l.controller(r).PostComment(r.Context(), author, body)
	switch {
	case err == nil:
		l.metrics.commentsPosted.Inc()
		l.flash(w, r, auth.FlashSuccess, "Comment posted!")
	case errors.Is(err, engagement.ErrEmptyComment):
		l.sg.Release(dev)
		l.flash(w, r, auth.FlashError, "Please fill in both name and comment")
	default:
		l.sg.Release(dev)
		log.Error.Printf("tree %s: post comment: %v", t.ID, err)
		l.flash(w, r, auth.FlashError, "Failed to post comment")
	}
	http.Redirect(w, r, back, http.StatusSeeOther)
	return nil
}

// apiView is the JSON shape of a tree page.
type apiView struct {
	Tree     *tree.Tree       `json:"tree"`
	Likes    int              `json:"likes"`
	HasLiked bool             `json:"hasLiked"`
	Comments tree.CommentList `json:"comments"`
}

func newAPIView(v engagement.View) apiView {
	comments := v.Comments
	if comments == nil {
		comments = tree.CommentList{}
	}
	return apiView{Tree: v.Tree, Likes: v.Likes.Count, HasLiked: v.Likes.HasLiked, Comments: comments}
}

func (l *TreeBoard) apiTreeHandler(w http.ResponseWriter, r *http.Request) error {
	t, err := l.getTree(r)
	if err != nil {
		return err
	}
	c := l.controller(r)
	likes, err := c.LoadLikeState(r.Context())
	if err != nil {
		return err
	}
	comments, err := c.LoadComments(r.Context())
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, newAPIView(engagement.View{
		State:    engagement.Ready,
		Tree:     t,
		Likes:    likes,
		Comments: comments,
	}))
}
