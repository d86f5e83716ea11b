package parser

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"
)

// tickerPattern is what a plausible ticker looks like. A stock cell that
// yields anything else means the column offsets drifted.
var tickerPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9.\-]{0,9}$`)

// normalizeText applies NFKC (folding NBSP and full-width digits) and
// collapses runs of whitespace.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(norm.NFKC.String(s)), " ")
}

// cellText returns the normalized text of a selection.
func cellText(s *goquery.Selection) string {
	return normalizeText(s.Text())
}

// nodeText returns the normalized text of a node and its descendants.
func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return normalizeText(b.String())
}

// getAttr returns the value of the attribute key, or "".
func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// hasClass reports whether the node's class list contains class.
func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(getAttr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

// queryParam returns the value of name in href, tolerating relative and
// malformed URLs.
func queryParam(href, name string) string {
	if u, err := url.Parse(href); err == nil {
		if v := u.Query().Get(name); v != "" {
			return v
		}
	}
	idx := strings.Index(href, name+"=")
	if idx < 0 {
		return ""
	}
	v := href[idx+len(name)+1:]
	if end := strings.IndexAny(v, "&#"); end >= 0 {
		v = v[:end]
	}
	return v
}

// stockInfo extracts (ticker, company) from a stock cell. The ticker comes
// from the anchor's "sym=" parameter, falling back to the first word of the
// anchor text; the company comes from the nested span with its "- " prefix
// stripped. A cell without an anchor yields an empty ticker.
func stockInfo(cell *goquery.Selection) (string, string) {
	link := cell.Find("a").First()
	if link.Length() == 0 {
		return "", ""
	}

	href, _ := link.Attr("href")
	symbol := strings.TrimSpace(queryParam(href, "sym"))

	span := link.Find("span").First()
	company := ""
	if span.Length() > 0 {
		company = strings.TrimSpace(strings.TrimLeft(cellText(span), "- "))
	}

	if symbol == "" {
		text := cellText(link)
		if span.Length() > 0 {
			text = strings.TrimSpace(strings.Replace(text, cellText(span), "", 1))
		}
		if fields := strings.Fields(text); len(fields) > 0 {
			symbol = fields[0]
		}
	}

	if company == "" {
		full := cellText(link)
		if _, after, ok := strings.Cut(full, " - "); ok {
			company = strings.TrimSpace(after)
		} else {
			company = symbol
		}
	}

	return symbol, company
}

// validTicker reports whether s looks like an exchange ticker.
func validTicker(s string) bool {
	return tickerPattern.MatchString(s)
}
