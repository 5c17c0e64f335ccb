package main

import (
	"net/http"
	"time"

	"github.com/gorilla/feeds"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/sourcegraph/sitemap"
)

const (
	feedItems    = 20
	sitemapLimit = 1000
)

func (l *TreeBoard) feedHandler(w http.ResponseWriter, r *http.Request) error {
	sc := l.siteConfig()
	trees, err := l.db.GetTrees(r.Context(), feedItems, 0)
	if err != nil {
		return err
	}
	baseURL := l.baseURL(r)
	feed := &feeds.Feed{
		Title:       sc.Title,
		Link:        &feeds.Link{Href: baseURL},
		Description: sc.Description,
		Author:      &feeds.Author{Name: sc.AuthorName, Email: sc.AuthorEmail},
		Created:     time.Now(),
	}
	for _, t := range *trees {
		item := &feeds.Item{
			Id:          t.ID,
			Title:       t.Name,
			Link:        &feeds.Link{Href: treeURL(baseURL, t.ID)},
			Description: t.Species + ", " + t.Location,
			Created:     t.Created,
		}
		if t.Description != "" {
			item.Content = renderText(t.Description)
		}
		feed.Items = append(feed.Items, item)
	}
	w.Header().Set("Content-Type", "application/rss+xml")
	return feed.WriteRss(w)
}

func (l *TreeBoard) sitemapHandler(w http.ResponseWriter, r *http.Request) error {
	trees, err := l.db.GetTrees(r.Context(), sitemapLimit, 0)
	if err != nil {
		return err
	}
	baseURL := l.baseURL(r)
	urlSet := sitemap.URLSet{
		URLs: []sitemap.URL{{Loc: baseURL + "/", ChangeFreq: sitemap.Daily, Priority: 1}},
	}
	for i := range *trees {
		t := &(*trees)[i]
		urlSet.URLs = append(urlSet.URLs, sitemap.URL{
			Loc:        treeURL(baseURL, t.ID),
			LastMod:    &t.Created,
			ChangeFreq: sitemap.Daily,
			Priority:   0.7,
		})
	}
	xml, err := sitemap.Marshal(&urlSet)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/xml")
	_, err = w.Write(xml)
	return err
}

// geojsonHandler maps every tree with known coordinates.
func (l *TreeBoard) geojsonHandler(w http.ResponseWriter, r *http.Request) error {
	trees, err := l.db.GetTrees(r.Context(), sitemapLimit, 0)
	if err != nil {
		return err
	}
	baseURL := l.baseURL(r)
	fc := geojson.NewFeatureCollection()
	for _, t := range *trees {
		if !t.HasLocation() {
			continue
		}
		f := geojson.NewFeature(orb.Point{*t.Longitude, *t.Latitude})
		f.ID = t.ID
		f.Properties["name"] = t.Name
		f.Properties["species"] = t.Species
		f.Properties["location"] = t.Location
		f.Properties["url"] = treeURL(baseURL, t.ID)
		if t.Age != nil {
			f.Properties["age"] = *t.Age
		}
		fc.Append(f)
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/geo+json")
	_, err = w.Write(data)
	return err
}
