package main

import (
	"net/http/httptest"
	"testing"

	"github.com/aquilax/treeboard/auth"
	"github.com/aquilax/treeboard/tree"
	. "github.com/smartystreets/goconvey/convey"
)

func TestSessionRender(t *testing.T) {
	Convey("Given parsed templates", t, func() {
		templates, err := parseTemplates()
		So(err, ShouldBeNil)
		So(templates, ShouldContainKey, "tree.html")

		sc := DefaultConfig().Site
		s := NewSession(&sc, NewTransPool("").Get("en"))

		Convey("A tree page renders its engagement", func() {
			s.AddPath("/", "Home")
			s.AddPath("", "Ancient Oak")
			s.Set("Tree", &tree.Tree{ID: "t1", Name: "Ancient Oak", Species: "Quercus robur", Location: "Main Quad"})
			s.Set("Likes", 1)
			s.Set("HasLiked", true)
			s.Set("Comments", tree.CommentList{{AuthorName: "Ann", Body: "<i>hi</i>"}})
			s.Set("Form", tree.Comment{})
			s.SetFlashes([]auth.Flash{{Kind: auth.FlashSuccess, Message: "Comment posted!"}})

			w := httptest.NewRecorder()
			So(s.render(w, templates, "tree.html"), ShouldBeNil)
			body := w.Body.String()
			So(body, ShouldContainSubstring, "1 Like<")
			So(body, ShouldContainSubstring, `aria-pressed="true"`)
			So(body, ShouldContainSubstring, "&lt;i&gt;hi&lt;/i&gt;")
			So(body, ShouldContainSubstring, "toast-success")
			So(body, ShouldContainSubstring, `<a href="/">Home</a>`)
			So(body, ShouldNotContainSubstring, "No comments yet")
		})

		Convey("Unknown pages fail", func() {
			So(s.render(httptest.NewRecorder(), templates, "nope.html"), ShouldNotBeNil)
		})
	})
}
