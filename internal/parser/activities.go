package parser

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/nao1215/dataroma/internal/model"
)

// activityGroupSize is the number of cells that make up one activity:
// history link, stock, action, share delta, portfolio percentage.
const activityGroupSize = 5

// quarterHeaderClass marks the rows that open a new quarter.
const quarterHeaderClass = "q_chg"

var quarterPattern = regexp.MustCompile(`(Q[1-4])\s+(\d{4})`)

// scanState is the state of the activity scanner.
type scanState int

const (
	// stateNoQuarter drops cell groups: nothing dates them yet.
	stateNoQuarter scanState = iota
	// stateInQuarter stamps every complete group with the current quarter.
	stateInQuarter
)

// String returns the state name.
func (s scanState) String() string {
	switch s {
	case stateNoQuarter:
		return "NoQuarter"
	case stateInQuarter:
		return "InQuarter"
	default:
		return "Unknown"
	}
}

// activityScanner folds a stream of header and cell tokens into dated
// cell groups. It is a two-state machine:
//
//	NoQuarter --header(Qn YYYY)--> InQuarter(Qn, YYYY)
//	InQuarter --header(Qn YYYY)--> InQuarter(Qn, YYYY)
//	any       --header(garbage)--> NoQuarter
//	InQuarter --5 cells--> emit group, stay
//	NoQuarter --5 cells--> drop group, stay
//
// A header always discards a partially collected group, and a partial
// group left when the stream ends is never emitted.
type activityScanner struct {
	state   scanState
	quarter string
	year    string
	pending []*html.Node

	emit    func(label string, cells []*html.Node)
	dropped int
}

func newActivityScanner(emit func(label string, cells []*html.Node)) *activityScanner {
	return &activityScanner{
		state:   stateNoQuarter,
		pending: make([]*html.Node, 0, activityGroupSize),
		emit:    emit,
	}
}

// header handles a quarter header row with the given text.
func (s *activityScanner) header(text string) {
	s.dropped += len(s.pending)
	s.pending = s.pending[:0]

	m := quarterPattern.FindStringSubmatch(text)
	if m == nil {
		s.state = stateNoQuarter
		s.quarter, s.year = "", ""
		return
	}
	s.state = stateInQuarter
	s.quarter, s.year = m[1], m[2]
}

// cell handles one bare cell.
func (s *activityScanner) cell(n *html.Node) {
	s.pending = append(s.pending, n)
	if len(s.pending) < activityGroupSize {
		return
	}

	group := s.pending
	s.pending = make([]*html.Node, 0, activityGroupSize)

	if s.state != stateInQuarter {
		s.dropped += len(group)
		return
	}
	s.emit(s.label(), group)
}

// finish ends the stream and returns how many cells were dropped.
func (s *activityScanner) finish() int {
	s.dropped += len(s.pending)
	s.pending = s.pending[:0]
	return s.dropped
}

func (s *activityScanner) label() string {
	return s.quarter + " " + s.year
}

// ParseActivities returns the dated trades on one activity page. Every
// returned activity carries the "Q# YYYY" label of the header that
// precedes it; cells seen before the first header are discarded, as is
// an incomplete trailing group.
func (p *Parser) ParseActivities(page, managerCode string) []model.Activity {
	activities := make([]model.Activity, 0)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		p.logger.Warn("failed to parse activity page", "manager", managerCode, "error", err)
		return activities
	}

	table := doc.Find("table#grid").First()
	if table.Length() == 0 {
		p.logger.Warn("no activity table found", "manager", managerCode)
		return activities
	}
	bodies := table.ChildrenFiltered("tbody")
	if bodies.Length() == 0 {
		p.logger.Warn("no tbody in activity table", "manager", managerCode)
		return activities
	}

	scanner := newActivityScanner(func(label string, cells []*html.Node) {
		a, ok := p.activityFromCells(cells, managerCode, label)
		if ok {
			activities = append(activities, a)
		}
	})

	for _, body := range bodies.Nodes {
		scanBody(body, scanner)
	}
	if dropped := scanner.finish(); dropped > 0 {
		p.logger.Debug("dropped undated or incomplete activity cells", "manager", managerCode, "cells", dropped)
	}

	p.logger.Debug("parsed activities", "manager", managerCode, "activities", len(activities))
	return activities
}

// scanBody feeds the children of a tbody to the scanner in document
// order. The HTML parser wraps bare cells in implied rows, so cells are
// taken from every non-header row and from the body itself.
func scanBody(body *html.Node, s *activityScanner) {
	for c := body.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		switch c.Data {
		case "tr":
			if hasClass(c, quarterHeaderClass) {
				s.header(nodeText(c))
				continue
			}
			for td := c.FirstChild; td != nil; td = td.NextSibling {
				if td.Type == html.ElementNode && td.Data == "td" {
					s.cell(td)
				}
			}
		case "td":
			s.cell(c)
		}
	}
}

// activityFromCells decodes one five-cell group.
func (p *Parser) activityFromCells(cells []*html.Node, managerCode, label string) (model.Activity, bool) {
	stock := goquery.NewDocumentFromNode(cells[1]).Selection
	symbol, company := stockInfo(stock)
	if symbol == "" {
		if fields := strings.Fields(cellText(stock)); len(fields) > 0 {
			symbol = fields[0]
		}
	}
	if !validTicker(symbol) {
		p.logger.Warn("skipping activity with malformed ticker", "manager", managerCode, "quarter", label, "symbol", symbol)
		return model.Activity{}, false
	}

	action := nodeText(cells[2])
	return model.Activity{
		Symbol:              symbol,
		CompanyName:         company,
		ManagerID:           managerCode,
		Action:              action,
		ActionType:          ClassifyAction(action),
		PercentageChange:    PercentFromAction(action),
		Shares:              ParseInt(nodeText(cells[3])),
		PortfolioPercentage: ParsePercent(nodeText(cells[4])),
		Date:                label,
	}, true
}
