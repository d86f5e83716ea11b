package crawler

import (
	"fmt"
	"net/url"
	"strings"
)

// Cache keys of the raw pages. Each logical page has its own key so
// different pages of one manager never collide.
const rosterKey = "general/managers_page.html"

func holdingsKey(code string) string {
	return "managers/" + code + "/holdings.html"
}

func activityKey(code string, page int) string {
	return fmt.Sprintf("managers/%s/activity_page%d.html", code, page)
}

// rosterURL is the page listing every manager.
func (c *Crawler) rosterURL() string {
	return c.resolve("home.php")
}

// holdingsURL is a manager's current portfolio.
func (c *Crawler) holdingsURL(code string) string {
	return c.resolve("holdings.php?m=" + url.QueryEscape(code))
}

// activityURL is one page of a manager's trade history. Page 1 has no
// pager parameters.
func (c *Crawler) activityURL(code string, page int) string {
	path := "m_activity.php?m=" + url.QueryEscape(code) + "&typ=a"
	if page > 1 {
		path += fmt.Sprintf("&L=%d&o=a", page)
	}
	return c.resolve(path)
}

func (c *Crawler) resolve(path string) string {
	return strings.TrimSuffix(c.baseURL, "/") + "/" + path
}
