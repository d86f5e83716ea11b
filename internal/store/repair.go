package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/kaptinlin/jsonrepair"

	"github.com/nao1215/dataroma/internal/model"
)

var quarantineSuffix = regexp.MustCompile(`\.corrupt-\d+$`)

// RepairResult describes a repaired document.
type RepairResult struct {
	// Source is the file that was repaired.
	Source string `json:"source"`
	// Restored is where the repaired document was written.
	Restored string `json:"restored"`
	// Changed is false when the source already decoded cleanly.
	Changed bool `json:"changed"`
}

// Quarantined lists quarantined documents, relative to the store directory.
func (s *Store) Quarantined() ([]string, error) {
	var out []string
	for _, pattern := range []string{"*.corrupt-*", filepath.Join(HoldingsShardDir, "*.corrupt-*"), filepath.Join(HistoryShardDir, "*.corrupt-*")} {
		matches, err := filepath.Glob(filepath.Join(s.dir, pattern))
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			rel, err := filepath.Rel(s.dir, m)
			if err != nil {
				return nil, err
			}
			out = append(out, rel)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Repair runs a JSON repair over name (a document or a quarantined copy,
// relative to the store directory), checks that the result decodes as the
// record type the document holds, and writes it back under its original
// name. A quarantined source is removed once restored.
func (s *Store) Repair(name string) (RepairResult, error) {
	if filepath.IsAbs(name) {
		rel, err := filepath.Rel(s.dir, name)
		if err != nil {
			return RepairResult{}, fmt.Errorf("%w: %s is outside %s", ErrRepairFailed, name, s.dir)
		}
		name = rel
	}
	if !filepath.IsLocal(name) {
		return RepairResult{}, fmt.Errorf("%w: %s is outside %s", ErrRepairFailed, name, s.dir)
	}

	source := s.Path(name)
	raw, err := os.ReadFile(source) //nolint:gosec // confined to the store directory above
	if err != nil {
		return RepairResult{}, fmt.Errorf("failed to read %s: %w", name, err)
	}

	target := quarantineSuffix.ReplaceAllString(name, "")
	result := RepairResult{Source: name, Restored: target}

	fixed := string(raw)
	if !json.Valid(raw) {
		fixed, err = jsonrepair.JSONRepair(fixed)
		if err != nil {
			return result, fmt.Errorf("%w: %s: %v", ErrRepairFailed, name, err)
		}
		result.Changed = true
	}

	v := recordTypeFor(target)
	if err := json.Unmarshal([]byte(fixed), v); err != nil {
		return result, fmt.Errorf("%w: %s does not hold %T after repair: %v", ErrRepairFailed, name, v, err)
	}
	if err := s.writeJSON(target, v); err != nil {
		return result, err
	}

	if target != name {
		if err := os.Remove(source); err != nil {
			return result, fmt.Errorf("failed to remove %s: %w", name, err)
		}
	}
	s.logger.Info("repaired cache document", "source", name, "restored", target, "changed", result.Changed)
	return result, nil
}

// recordTypeFor returns a pointer to the Go type stored under name.
func recordTypeFor(name string) any {
	switch filepath.Dir(name) {
	case HoldingsShardDir:
		return &HoldingsShard{}
	case HistoryShardDir:
		return &HistoryShard{}
	}

	switch filepath.Base(name) {
	case ManagersFile:
		return &[]model.Manager{}
	case HoldingsFile:
		return &[]model.Holding{}
	case HistoryFile:
		return &[]model.Activity{}
	case StocksFile:
		return &map[string]model.MarketData{}
	case MetadataFile:
		return &model.Metadata{}
	case OverviewFile:
		return &Overview{}
	default:
		var v any
		return &v
	}
}
