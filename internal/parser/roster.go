package parser

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/nao1215/dataroma/internal/model"
)

// updatedSuffix is the "Updated 14 Nov 2024" tail the roster appends to
// some entries.
var updatedSuffix = regexp.MustCompile(`\s+Updated\s+\d{1,2}\s+\w+\s+\d{4}$`)

// holdingsLinkMarker identifies anchors that point to a manager's holdings.
const holdingsLinkMarker = "holdings.php?m="

// ParseManagerRoster returns the managers linked from the roster page in
// first-seen order, one per code. Link text "Name - Firm" is split on the
// first separator; text without one becomes the name with an empty firm.
// A page without manager links yields an empty slice.
func (p *Parser) ParseManagerRoster(html string) []model.Manager {
	managers := make([]model.Manager, 0)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		p.logger.Warn("failed to parse roster page", "error", err)
		return managers
	}

	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if !strings.Contains(href, holdingsLinkMarker) {
			return
		}
		code := strings.TrimSpace(queryParam(href, "m"))
		if code == "" {
			return
		}
		if _, dup := seen[code]; dup {
			return
		}
		seen[code] = struct{}{}

		name, firm := splitManagerText(cellText(a))
		managers = append(managers, model.Manager{
			ID:   code,
			Name: name,
			Firm: firm,
			URL:  href,
		})
	})

	p.logger.Debug("parsed manager roster", "managers", len(managers))
	return managers
}

// splitManagerText splits "Warren Buffett - Berkshire Hathaway" into its
// two halves and strips any trailing update stamp from both.
func splitManagerText(text string) (string, string) {
	name, firm, ok := strings.Cut(text, " - ")
	if !ok {
		return cleanManagerField(text), ""
	}
	return cleanManagerField(name), cleanManagerField(firm)
}

func cleanManagerField(s string) string {
	return strings.TrimSpace(updatedSuffix.ReplaceAllString(strings.TrimSpace(s), ""))
}
