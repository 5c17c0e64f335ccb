package main

import (
	"math"
	"net/url"
	"strconv"

	"github.com/aquilax/treeboard/log"
)

type Page struct {
	Num int
	URL string
}

func (p Page) Current() bool {
	return p.URL == ""
}

type Pages []Page

type PaginationConfig struct {
	ipp   int
	page  int
	total int
	url   string
	param string
}

// Pagination lists the catalog pages; the current page has no URL. A single
// page needs no navigation and yields an empty list.
func Pagination(pc PaginationConfig) Pages {
	if pc.ipp <= 0 || pc.total <= pc.ipp {
		return make(Pages, 0)
	}
	pCount := int(math.Ceil(float64(pc.total) / float64(pc.ipp)))
	pages := make(Pages, pCount)
	// Normalize first page
	if pc.page == 0 {
		pc.page = 1
	}
	pURL, err := url.Parse(pc.url)
	if err != nil {
		pURL = &url.URL{}
	}
	val := pURL.Query()
	for i := 1; i <= pCount; i++ {
		tURL := ""
		if i != pc.page {
			val.Set(pc.param, strconv.Itoa(i))
			pURL.RawQuery = val.Encode()
			tURL = pURL.String()
		}
		pages[i-1] = Page{i, tURL}
	}
	return pages
}

// getPageNumber returns the zero based page from the query value.
func getPageNumber(pageStr string) int {
	if pageStr == "" {
		return 0
	}
	page, err := strconv.Atoi(pageStr)
	if err != nil || page < 1 {
		log.Warn.Printf("%q is not a valid page number", pageStr)
		return 0
	}
	return page - 1
}

// clampPage keeps a zero based page inside the catalog so the offset never
// overflows. Pages past the end show the last page.
func clampPage(page, perPage, total int) int {
	if page <= 0 || perPage <= 0 || total <= 0 {
		return 0
	}
	last := (total - 1) / perPage
	if page > last {
		return last
	}
	return page
}
