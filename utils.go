package main

import (
	"html/template"
	"strings"
	"time"

	"github.com/aquilax/tripcode"
	"github.com/gosimple/slug"
	"github.com/microcosm-cc/bluemonday"
	"github.com/russross/blackfriday/v2"
)

func hfTime(t time.Time) string {
	return t.Format("01.02.2006 15:04")
}

func hfSlug(s string) string {
	return slug.Make(s)
}

// hfPlural picks the singular form for exactly one.
func hfPlural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// qrFilename names the downloadable QR image after the tree.
func qrFilename(name string) string {
	s := slug.Make(name)
	if s == "" {
		s = "tree"
	}
	return s + "-qr.png"
}

// authorName turns "name#secret" into "name !tripcode" so regulars can be
// recognised without accounts.
func authorName(raw string) string {
	raw = strings.TrimSpace(raw)
	name, secret, found := strings.Cut(raw, "#")
	if !found || secret == "" {
		return raw
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = "Anonymous"
	}
	return name + " !" + tripcode.Tripcode(secret)
}

func inHoneypot(t string) bool {
	return len(t) > 0
}

var ugc = bluemonday.UGCPolicy()

func renderText(t string) string {
	extensions := blackfriday.CommonExtensions |
		blackfriday.HardLineBreak |
		blackfriday.Autolink |
		blackfriday.NoIntraEmphasis

	renderer := blackfriday.NewHTMLRenderer(blackfriday.HTMLRendererParameters{
		Flags: blackfriday.UseXHTML | blackfriday.Smartypants | blackfriday.SmartypantsFractions,
	})
	unsafe := blackfriday.Run([]byte(t), blackfriday.WithExtensions(extensions), blackfriday.WithRenderer(renderer))
	return string(ugc.SanitizeBytes(unsafe))
}

// hfMarkdown is the template helper for tree descriptions.
func hfMarkdown(t string) template.HTML {
	return template.HTML(renderText(t))
}
