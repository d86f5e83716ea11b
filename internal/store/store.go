package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/pretty"

	"github.com/nao1215/dataroma/internal/model"
)

// Document names inside the store directory.
const (
	ManagersFile   = "managers.json"
	HoldingsFile   = "holdings.json"
	HistoryFile    = "history.json"
	StocksFile     = "stocks.json"
	MetadataFile   = "metadata.json"
	OverviewFile   = "overview.json"
	LastUpdateFile = "last_update.json"

	HoldingsShardDir = "holdings_by_manager"
	HistoryShardDir  = "history_by_manager"
)

// DefaultShardWorkers bounds concurrent shard writes.
const DefaultShardWorkers = 8

// scrapedDateLayout is the day stamp written into shard documents.
const scrapedDateLayout = "2006-01-02"

// Store reads and writes the structured cache under one directory.
type Store struct {
	dir          string
	logger       *slog.Logger
	shardWorkers int

	// now is replaced in tests.
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// WithClock sets the clock used for timestamps and validity checks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithShardWorkers sets how many shard files are written concurrently.
func WithShardWorkers(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.shardWorkers = n
		}
	}
}

// New opens the store rooted at dir, creating the directory layout.
func New(dir string, opts ...Option) (*Store, error) {
	s := &Store{
		dir:          dir,
		shardWorkers: DefaultShardWorkers,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	for _, d := range []string{dir, filepath.Join(dir, HoldingsShardDir), filepath.Join(dir, HistoryShardDir)} {
		if err := os.MkdirAll(d, 0750); err != nil {
			return nil, fmt.Errorf("failed to create store directory %s: %w", d, err)
		}
	}
	return s, nil
}

// Dir returns the store directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the absolute path of a document name.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// SaveManagers replaces managers.json.
func (s *Store) SaveManagers(managers []model.Manager) error {
	if managers == nil {
		managers = []model.Manager{}
	}
	if err := s.writeJSON(ManagersFile, managers); err != nil {
		return err
	}
	s.logger.Debug("saved managers", "count", len(managers))
	return nil
}

// LoadManagers reads managers.json. A missing file yields an empty slice.
func (s *Store) LoadManagers() ([]model.Manager, error) {
	managers := []model.Manager{}
	if err := s.readJSON(ManagersFile, &managers); err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return managers, nil
}

// SaveHoldings replaces holdings.json and rewrites the shard of every
// manager present in holdings. Shards of other managers are left alone.
func (s *Store) SaveHoldings(ctx context.Context, holdings []model.Holding) error {
	if holdings == nil {
		holdings = []model.Holding{}
	}
	if err := s.writeJSON(HoldingsFile, holdings); err != nil {
		return err
	}

	groups := groupByManager(holdings, func(h model.Holding) string { return h.ManagerID })
	now := s.now()
	err := writeShards(ctx, s, HoldingsShardDir, groups, func(id string, items []model.Holding) any {
		return HoldingsShard{
			ManagerID:   id,
			Holdings:    items,
			Timestamp:   now,
			ScrapedDate: now.Format(scrapedDateLayout),
		}
	})
	if err != nil {
		return err
	}

	s.logger.Debug("saved holdings", "count", len(holdings), "shards", len(groups))
	return nil
}

// LoadHoldings reads holdings.json. A missing file yields an empty slice.
func (s *Store) LoadHoldings() ([]model.Holding, error) {
	holdings := []model.Holding{}
	if err := s.readJSON(HoldingsFile, &holdings); err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return holdings, nil
}

// SaveActivities replaces history.json and rewrites the shard of every
// manager present in activities.
func (s *Store) SaveActivities(ctx context.Context, activities []model.Activity) error {
	if activities == nil {
		activities = []model.Activity{}
	}
	if err := s.writeJSON(HistoryFile, activities); err != nil {
		return err
	}

	groups := groupByManager(activities, func(a model.Activity) string { return a.ManagerID })
	now := s.now()
	err := writeShards(ctx, s, HistoryShardDir, groups, func(id string, items []model.Activity) any {
		return HistoryShard{
			ManagerID:   id,
			Activities:  items,
			Timestamp:   now,
			ScrapedDate: now.Format(scrapedDateLayout),
		}
	})
	if err != nil {
		return err
	}

	s.logger.Debug("saved activities", "count", len(activities), "shards", len(groups))
	return nil
}

// LoadActivities reads history.json. A missing file yields an empty slice.
func (s *Store) LoadActivities() ([]model.Activity, error) {
	activities := []model.Activity{}
	if err := s.readJSON(HistoryFile, &activities); err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return activities, nil
}

// LoadManagerHoldings reads one manager's holdings shard.
func (s *Store) LoadManagerHoldings(managerID string) (HoldingsShard, error) {
	var shard HoldingsShard
	name, err := shardName(HoldingsShardDir, managerID)
	if err != nil {
		return shard, err
	}
	err = s.readJSON(name, &shard)
	return shard, err
}

// LoadManagerActivities reads one manager's activity shard.
func (s *Store) LoadManagerActivities(managerID string) (HistoryShard, error) {
	var shard HistoryShard
	name, err := shardName(HistoryShardDir, managerID)
	if err != nil {
		return shard, err
	}
	err = s.readJSON(name, &shard)
	return shard, err
}

// SaveStockData replaces stocks.json.
func (s *Store) SaveStockData(data map[string]model.MarketData) error {
	if data == nil {
		data = map[string]model.MarketData{}
	}
	return s.writeJSON(StocksFile, data)
}

// LoadStockData reads stocks.json. A missing file yields an empty map.
func (s *Store) LoadStockData() (map[string]model.MarketData, error) {
	data := map[string]model.MarketData{}
	if err := s.readJSON(StocksFile, &data); err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return data, nil
}

// SaveMetadata stamps md.LastUpdated with the current time and writes
// metadata.json together with the overview and last-update summaries.
// It returns the stamped metadata.
func (s *Store) SaveMetadata(md model.Metadata) (model.Metadata, error) {
	md.LastUpdated = s.now()

	if err := s.writeJSON(MetadataFile, md); err != nil {
		return md, err
	}

	overview := Overview{
		Timestamp:     md.LastUpdated,
		NumManagers:   md.NumManagers,
		NumHoldings:   md.NumHoldings,
		NumActivities: md.NumActivities,
		UniqueStocks:  md.UniqueStocks,
		Progress:      md.Progress,
	}
	if err := s.writeJSON(OverviewFile, overview); err != nil {
		return md, err
	}
	if err := s.writeJSON(LastUpdateFile, map[string]time.Time{"timestamp": md.LastUpdated}); err != nil {
		return md, err
	}
	return md, nil
}

// LoadMetadata reads metadata.json. It returns ErrNotFound if no run has
// been saved.
func (s *Store) LoadMetadata() (model.Metadata, error) {
	var md model.Metadata
	err := s.readJSON(MetadataFile, &md)
	return md, err
}

// IsValid reports whether saved metadata is younger than maxAge. A store
// without readable metadata is never valid, and neither is one whose last
// write was a mid-run checkpoint.
func (s *Store) IsValid(maxAge time.Duration) bool {
	md, err := s.LoadMetadata()
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Warn("cannot read cache metadata", "error", err)
		}
		return false
	}
	if md.LastUpdated.IsZero() || md.Checkpoint {
		return false
	}
	return s.now().Sub(md.LastUpdated) < maxAge
}

// Age returns how long ago metadata was last written.
func (s *Store) Age() (time.Duration, error) {
	md, err := s.LoadMetadata()
	if err != nil {
		return 0, err
	}
	return s.now().Sub(md.LastUpdated), nil
}

// SaveResult persists all three collections and the metadata of a run.
func (s *Store) SaveResult(ctx context.Context, res *model.Result, md model.Metadata) (model.Metadata, error) {
	if err := s.SaveManagers(res.Managers); err != nil {
		return md, err
	}
	if err := s.SaveHoldings(ctx, res.Holdings); err != nil {
		return md, err
	}
	if err := s.SaveActivities(ctx, res.Activities); err != nil {
		return md, err
	}
	return s.SaveMetadata(md)
}

// LoadAll reads the three collections and the run progress.
func (s *Store) LoadAll() (*model.Result, error) {
	res := model.NewResult()

	var err error
	if res.Managers, err = s.LoadManagers(); err != nil {
		return nil, err
	}
	if res.Holdings, err = s.LoadHoldings(); err != nil {
		return nil, err
	}
	if res.Activities, err = s.LoadActivities(); err != nil {
		return nil, err
	}

	md, err := s.LoadMetadata()
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	res.Progress = md.Progress
	res.UniqueTickers = len(model.Tickers(res.Holdings, res.Activities))
	res.FromCache = true
	return res, nil
}

// Clear removes every top-level document and both shard directories.
// Quarantined files are kept.
func (s *Store) Clear() error {
	for _, name := range []string{
		ManagersFile, HoldingsFile, HistoryFile, StocksFile,
		MetadataFile, OverviewFile, LastUpdateFile,
	} {
		if err := os.Remove(s.Path(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove %s: %w", name, err)
		}
	}
	for _, dir := range []string{HoldingsShardDir, HistoryShardDir} {
		if err := os.RemoveAll(s.Path(dir)); err != nil {
			return fmt.Errorf("failed to remove %s: %w", dir, err)
		}
		if err := os.MkdirAll(s.Path(dir), 0750); err != nil {
			return fmt.Errorf("failed to recreate %s: %w", dir, err)
		}
	}
	s.logger.Info("cleared structured cache", "dir", s.dir)
	return nil
}

// writeJSON encodes v, pretty-prints it and replaces name atomically.
func (s *Store) writeJSON(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}
	if err := WriteFileAtomic(s.Path(name), pretty.Pretty(data)); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// readJSON decodes name into v. A document that does not decode is
// quarantined and reported as ErrCorruptCache.
func (s *Store) readJSON(name string, v any) error {
	path := s.Path(name)
	data, err := os.ReadFile(path) //nolint:gosec // path is built from fixed names and validated shard ids
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return fmt.Errorf("failed to read %s: %w", name, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		moved, qerr := s.quarantine(path)
		if qerr != nil {
			s.logger.Error("failed to quarantine corrupt document", "path", path, "error", qerr)
			return fmt.Errorf("%w: %s: %v", ErrCorruptCache, name, err)
		}
		s.logger.Warn("quarantined corrupt cache document", "path", path, "moved_to", moved, "error", err)
		return fmt.Errorf("%w: %s (moved to %s): %v", ErrCorruptCache, name, filepath.Base(moved), err)
	}
	return nil
}

// quarantine renames path out of the way and returns the new path.
func (s *Store) quarantine(path string) (string, error) {
	dest := fmt.Sprintf("%s.corrupt-%d", path, s.now().Unix())
	if err := os.Rename(path, dest); err != nil {
		return "", err
	}
	return dest, nil
}

// shardName returns the document name of a manager's shard.
func shardName(dir, managerID string) (string, error) {
	if managerID == "" || strings.ContainsAny(managerID, `/\`) || !filepath.IsLocal(managerID) {
		return "", fmt.Errorf("%w: %q", ErrInvalidManagerID, managerID)
	}
	return filepath.Join(dir, managerID+".json"), nil
}

// WriteFileAtomic writes data to a temporary file next to path and renames
// it into place, creating the parent directory if needed. Readers never
// observe a partially written file. The result has mode 0600.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck,gosec
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
