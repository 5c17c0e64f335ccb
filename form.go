package main

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/aquilax/treeboard/tree"
)

const nameMaxLen = 255

type ValidationErrors []string

// TreeForm echoes the submitted values back into the form on errors.
type TreeForm struct {
	Name        string
	Species     string
	Age         string
	Location    string
	Description string
	Latitude    string
	Longitude   string
}

func treeFormFromRequest(r *http.Request) TreeForm {
	return TreeForm{
		Name:        r.FormValue("name"),
		Species:     r.FormValue("species"),
		Age:         r.FormValue("age"),
		Location:    r.FormValue("location"),
		Description: r.FormValue("description"),
		Latitude:    r.FormValue("latitude"),
		Longitude:   r.FormValue("longitude"),
	}
}

// sanitizeRequired trims s and checks it is present, short enough and UTF-8.
func sanitizeRequired(field, s string, ln *Language) (string, string) {
	s = strings.TrimSpace(s)
	switch {
	case len(s) == 0:
		return "", ln.Lang(field) + " " + ln.Lang("is required")
	case utf8.RuneCountInString(s) > nameMaxLen:
		return "", ln.Lang(field) + " " + ln.Lang("must be at most 255 characters")
	case !utf8.ValidString(s):
		return "", ln.Lang(field) + " " + ln.Lang("is not valid UTF-8")
	}
	return s, ""
}

func parseCoordinate(field, s string, limit float64, ln *Language) (*float64, string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ""
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.Abs(v) > limit {
		return nil, ln.Lang(field) + " " + ln.Lang("must be between") + " " +
			strconv.FormatFloat(-limit, 'f', -1, 64) + " " + ln.Lang("and") + " " + strconv.FormatFloat(limit, 'f', -1, 64)
	}
	return &v, ""
}

// Validate builds the tree record. Empty optional fields stay nil; a zero age
// or coordinate is kept as a value.
func (f TreeForm) Validate(ln *Language) (*tree.Tree, ValidationErrors) {
	errors := ValidationErrors{}
	add := func(msg string) {
		if msg != "" {
			errors = append(errors, msg)
		}
	}
	t := &tree.Tree{
		Description: strings.TrimSpace(f.Description),
	}
	var msg string
	t.Name, msg = sanitizeRequired("Tree Name", f.Name, ln)
	add(msg)
	t.Species, msg = sanitizeRequired("Species", f.Species, ln)
	add(msg)
	t.Location, msg = sanitizeRequired("Location", f.Location, ln)
	add(msg)

	if age := strings.TrimSpace(f.Age); age != "" {
		n, err := strconv.Atoi(age)
		if err != nil || n < 0 {
			add(ln.Lang("Age must be a whole number of years"))
		} else {
			t.Age = &n
		}
	}
	t.Latitude, msg = parseCoordinate("Latitude", f.Latitude, 90, ln)
	add(msg)
	t.Longitude, msg = parseCoordinate("Longitude", f.Longitude, 180, ln)
	add(msg)
	return t, errors
}
