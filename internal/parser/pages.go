package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var pageNumberPattern = regexp.MustCompile(`[?&]L=(\d+)`)

// ParseTotalPages returns the number of activity pages advertised by the
// pager links on an activity page. A page without a pager has one page.
func ParseTotalPages(page string) int {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return 1
	}

	total := 1
	doc.Find("div#pages a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		m := pageNumberPattern.FindStringSubmatch(href)
		if m == nil {
			return
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n > total {
			total = n
		}
	})
	return total
}
