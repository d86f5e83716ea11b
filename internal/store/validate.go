package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"sort"

	"github.com/nao1215/dataroma/internal/model"
)

// DefaultValueTolerance is the relative gap between a holding's value and
// shares times current price above which validation warns.
const DefaultValueTolerance = 0.5

// Check names reported by Validate.
const (
	CheckFiles      = "json_files_valid"
	CheckManagers   = "managers_valid"
	CheckHoldings   = "holdings_valid"
	CheckActivities = "activities_valid"
	CheckCrossRef   = "cross_validation"
)

var quarterLabelPattern = regexp.MustCompile(`^Q[1-4] \d{4}$`)

// CheckResult is the outcome of one validation check. Errors fail the
// check; warnings do not.
type CheckResult struct {
	Name     string   `json:"name"`
	Passed   bool     `json:"passed"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

func (c *CheckResult) errorf(format string, args ...any) {
	c.Errors = append(c.Errors, fmt.Sprintf(format, args...))
}

func (c *CheckResult) warnf(format string, args ...any) {
	c.Warnings = append(c.Warnings, fmt.Sprintf(format, args...))
}

// ValidationReport is the result of Store.Validate.
type ValidationReport struct {
	Checks     []CheckResult `json:"checks"`
	Managers   int           `json:"managers"`
	Holdings   int           `json:"holdings"`
	Activities int           `json:"activities"`
}

// OK reports whether every check passed.
func (r ValidationReport) OK() bool {
	for _, c := range r.Checks {
		if !c.Passed {
			return false
		}
	}
	return true
}

// Failed returns the number of failed checks.
func (r ValidationReport) Failed() int {
	n := 0
	for _, c := range r.Checks {
		if !c.Passed {
			n++
		}
	}
	return n
}

// Check returns the named check result.
func (r ValidationReport) Check(name string) (CheckResult, bool) {
	for _, c := range r.Checks {
		if c.Name == name {
			return c, true
		}
	}
	return CheckResult{}, false
}

// Validate inspects the saved collections without modifying them.
// Corrupt documents are reported, not quarantined. tolerance is the
// value-consistency threshold; zero or less selects DefaultValueTolerance.
func (s *Store) Validate(tolerance float64) ValidationReport {
	if tolerance <= 0 {
		tolerance = DefaultValueTolerance
	}

	files := CheckResult{Name: CheckFiles}
	var (
		managers   []model.Manager
		holdings   []model.Holding
		activities []model.Activity
	)
	s.inspect(&files, ManagersFile, &managers)
	s.inspect(&files, HoldingsFile, &holdings)
	s.inspect(&files, HistoryFile, &activities)
	files.Passed = len(files.Errors) == 0

	report := ValidationReport{
		Managers:   len(managers),
		Holdings:   len(holdings),
		Activities: len(activities),
	}
	report.Checks = append(report.Checks,
		files,
		validateManagers(managers),
		validateHoldings(holdings, tolerance),
		validateActivities(activities),
		crossValidate(managers, holdings, activities),
	)
	return report
}

// inspect decodes name into v, recording problems on c.
func (s *Store) inspect(c *CheckResult, name string, v any) {
	data, err := os.ReadFile(s.Path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.errorf("missing %s", name)
			return
		}
		c.errorf("cannot read %s: %v", name, err)
		return
	}
	if err := json.Unmarshal(data, v); err != nil {
		c.errorf("%s is not a valid record list: %v", name, err)
	}
}

func validateManagers(managers []model.Manager) CheckResult {
	c := CheckResult{Name: CheckManagers}
	if len(managers) == 0 {
		c.warnf("no managers saved")
	}
	seen := make(map[string]struct{}, len(managers))
	for i, m := range managers {
		if m.ID == "" {
			c.errorf("manager %d has no id", i)
			continue
		}
		if m.Name == "" {
			c.errorf("manager %s has no name", m.ID)
		}
		if _, dup := seen[m.ID]; dup {
			c.errorf("manager %s listed more than once", m.ID)
		}
		seen[m.ID] = struct{}{}
	}
	c.Passed = len(c.Errors) == 0
	return c
}

func validateHoldings(holdings []model.Holding, tolerance float64) CheckResult {
	c := CheckResult{Name: CheckHoldings}
	if len(holdings) == 0 {
		c.warnf("no holdings saved")
	}
	seen := make(map[string]struct{}, len(holdings))
	for i, h := range holdings {
		if h.Symbol == "" || !tickerLike(h.Symbol) {
			c.errorf("holding %d of %s has malformed ticker %q", i, h.ManagerID, h.Symbol)
			continue
		}
		if h.ManagerID == "" {
			c.errorf("holding %s has no manager", h.Symbol)
			continue
		}
		if _, dup := seen[h.Key()]; dup {
			c.errorf("holding %s appears more than once", h.Key())
		}
		seen[h.Key()] = struct{}{}

		if h.Value < 0 || h.Shares < 0 {
			c.errorf("holding %s has negative value or shares", h.Key())
		}
		if dev, ok := h.ValueDeviation(); ok && dev > tolerance {
			c.warnf("holding %s value deviates %.0f%% from shares x current price", h.Key(), dev*100)
		}
	}
	c.Passed = len(c.Errors) == 0
	return c
}

func validateActivities(activities []model.Activity) CheckResult {
	c := CheckResult{Name: CheckActivities}
	if len(activities) == 0 {
		c.warnf("no activities saved")
	}
	for i, a := range activities {
		if a.Symbol == "" || a.ManagerID == "" {
			c.errorf("activity %d is missing ticker or manager", i)
		}
		if !quarterLabelPattern.MatchString(a.Date) {
			c.errorf("activity %d (%s/%s) has bad quarter label %q", i, a.ManagerID, a.Symbol, a.Date)
		}
		if !a.ActionType.Valid() {
			c.errorf("activity %d (%s/%s) has unknown action type %q", i, a.ManagerID, a.Symbol, a.ActionType)
		}
	}
	c.Passed = len(c.Errors) == 0
	return c
}

func crossValidate(managers []model.Manager, holdings []model.Holding, activities []model.Activity) CheckResult {
	c := CheckResult{Name: CheckCrossRef, Passed: true}

	known := make(map[string]model.Manager, len(managers))
	for _, m := range managers {
		known[m.ID] = m
	}

	counts := make(map[string]int)
	unknown := make(map[string]struct{})
	for _, h := range holdings {
		counts[h.ManagerID]++
		if _, ok := known[h.ManagerID]; !ok {
			unknown[h.ManagerID] = struct{}{}
		}
	}
	for _, a := range activities {
		if _, ok := known[a.ManagerID]; !ok {
			unknown[a.ManagerID] = struct{}{}
		}
	}
	for _, id := range sortedKeys(unknown) {
		c.warnf("records reference unknown manager %s", id)
	}

	for _, m := range managers {
		if m.NumHoldings != counts[m.ID] {
			c.warnf("manager %s reports %d holdings but %d are saved", m.ID, m.NumHoldings, counts[m.ID])
		}
	}
	return c
}

// tickerLike rejects placeholders such as the history glyph that show up
// when columns are read at the wrong offset.
func tickerLike(s string) bool {
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') && r != '.' && r != '-' {
			return false
		}
	}
	return len(s) <= 10
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
