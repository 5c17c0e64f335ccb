package main

import (
	"strings"
	"testing"

	"github.com/aquilax/tripcode"
	. "github.com/smartystreets/goconvey/convey"
)

func TestAuthorName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Ann", "Ann"},
		{"  Ann  ", "Ann"},
		{"Ann#", "Ann#"},
		{"Ann#secret", "Ann !" + tripcode.Tripcode("secret")},
		{"#secret", "Anonymous !" + tripcode.Tripcode("secret")},
	}
	for _, tt := range tests {
		if got := authorName(tt.in); got != tt.want {
			t.Errorf("authorName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestQRFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Ancient Oak", "ancient-oak-qr.png"},
		{"  ", "tree-qr.png"},
	}
	for _, tt := range tests {
		if got := qrFilename(tt.in); got != tt.want {
			t.Errorf("qrFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRenderText(t *testing.T) {
	Convey("Given a markdown description", t, func() {
		Convey("Markup is rendered", func() {
			So(renderText("Planted in **1874**"), ShouldContainSubstring, "<strong>1874</strong>")
		})
		Convey("Scripts are stripped", func() {
			out := renderText("hello <script>alert(1)</script>")
			So(strings.Contains(out, "<script"), ShouldBeFalse)
			So(out, ShouldContainSubstring, "hello")
		})
	})
}

func TestPlural(t *testing.T) {
	if got := hfPlural(1, "Like", "Likes"); got != "Like" {
		t.Errorf("got %q", got)
	}
	for _, n := range []int{0, 2} {
		if got := hfPlural(n, "Like", "Likes"); got != "Likes" {
			t.Errorf("hfPlural(%d) = %q", n, got)
		}
	}
}
