package store

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/dataroma/internal/model"
)

// newTestStore returns a store in a temp dir with a controllable clock.
func newTestStore(t *testing.T) (*Store, *time.Time) {
	t.Helper()

	now := time.Date(2024, 11, 15, 12, 0, 0, 0, time.UTC)
	s, err := New(t.TempDir(),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(func() time.Time { return now }),
		WithShardWorkers(2),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s, &now
}

func sampleResult() *model.Result {
	res := model.NewResult()
	res.Managers = []model.Manager{
		{ID: "BRK", Name: "Warren Buffett", Firm: "Berkshire Hathaway", NumHoldings: 2},
		{ID: "GLRE", Name: "David Einhorn", Firm: "Greenlight Capital", NumHoldings: 1},
	}
	res.Holdings = []model.Holding{
		{Symbol: "AAPL", ManagerID: "BRK", Shares: 100, Value: 23600, CurrentPrice: 236},
		{Symbol: "KO", ManagerID: "BRK", Shares: 10, Value: 700, CurrentPrice: 70},
		{Symbol: "GRBK", ManagerID: "GLRE", Shares: 5, Value: 100, CurrentPrice: 20},
	}
	res.Activities = []model.Activity{
		{Symbol: "AAPL", ManagerID: "BRK", Action: "Reduce 25.00%", ActionType: model.ActionReduce, Date: "Q3 2024"},
		{Symbol: "GRBK", ManagerID: "GLRE", Action: "Buy", ActionType: model.ActionBuy, Date: "Q2 2024"},
	}
	return res
}

// TestStore_SaveAndLoad tests collections, shards and metadata round trip.
func TestStore_SaveAndLoad(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	ctx := context.Background()
	res := sampleResult()

	md, err := s.SaveResult(ctx, res, model.Metadata{NumManagers: 2, NumHoldings: 3, NumActivities: 2})
	if err != nil {
		t.Fatalf("SaveResult() error = %v", err)
	}
	if md.LastUpdated.IsZero() {
		t.Error("expected LastUpdated to be stamped")
	}

	loaded, err := s.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	if len(loaded.Managers) != 2 || len(loaded.Holdings) != 3 || len(loaded.Activities) != 2 {
		t.Errorf("unexpected counts: %d/%d/%d", len(loaded.Managers), len(loaded.Holdings), len(loaded.Activities))
	}
	if !loaded.FromCache || loaded.UniqueTickers != 3 {
		t.Errorf("unexpected result flags: %+v", loaded)
	}

	shard, err := s.LoadManagerHoldings("BRK")
	if err != nil {
		t.Fatalf("LoadManagerHoldings() error = %v", err)
	}
	if shard.ManagerID != "BRK" || len(shard.Holdings) != 2 || shard.ScrapedDate != "2024-11-15" {
		t.Errorf("unexpected shard: %+v", shard)
	}

	history, err := s.LoadManagerActivities("GLRE")
	if err != nil {
		t.Fatalf("LoadManagerActivities() error = %v", err)
	}
	if len(history.Activities) != 1 || history.Activities[0].Date != "Q2 2024" {
		t.Errorf("unexpected history shard: %+v", history)
	}

	for _, name := range []string{OverviewFile, LastUpdateFile} {
		if _, err := os.Stat(s.Path(name)); err != nil {
			t.Errorf("expected %s: %v", name, err)
		}
	}
}

// TestStore_PrettyJSON tests that documents are written indented.
func TestStore_PrettyJSON(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	if err := s.SaveManagers(sampleResult().Managers); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(s.Path(ManagersFile))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "\n  ") {
		t.Errorf("expected indented JSON, got %s", data)
	}

	var managers []map[string]any
	if err := json.Unmarshal(data, &managers); err != nil {
		t.Fatal(err)
	}
	if managers[0]["id"] != "BRK" || managers[0]["firm"] != "Berkshire Hathaway" {
		t.Errorf("unexpected document: %v", managers[0])
	}
}

// TestStore_MissingFiles tests that an empty store loads as empty collections.
func TestStore_MissingFiles(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)

	res, err := s.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	if !res.Empty() {
		t.Errorf("expected empty result, got %+v", res)
	}
	if _, err := s.LoadMetadata(); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// TestStore_IsValid tests max-age validity against the injected clock.
func TestStore_IsValid(t *testing.T) {
	t.Parallel()

	s, now := newTestStore(t)

	if s.IsValid(time.Hour) {
		t.Error("expected store without metadata to be invalid")
	}

	if _, err := s.SaveMetadata(model.Metadata{NumManagers: 1}); err != nil {
		t.Fatal(err)
	}
	if !s.IsValid(time.Hour) {
		t.Error("expected fresh metadata to be valid")
	}

	*now = now.Add(time.Hour + time.Second)
	if s.IsValid(time.Hour) {
		t.Error("expected metadata older than max age to be invalid")
	}

	if age, err := s.Age(); err != nil || age != time.Hour+time.Second {
		t.Errorf("Age() = %v, %v", age, err)
	}
}

// TestStore_IsValidCheckpoint tests that a mid-run checkpoint is never fresh.
func TestStore_IsValidCheckpoint(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	if _, err := s.SaveMetadata(model.Metadata{Checkpoint: true}); err != nil {
		t.Fatal(err)
	}
	if s.IsValid(time.Hour) {
		t.Error("expected checkpoint metadata to be invalid")
	}
}

// TestStore_Corrupt tests quarantine of undecodable documents.
func TestStore_Corrupt(t *testing.T) {
	t.Parallel()

	s, now := newTestStore(t)
	if err := os.WriteFile(s.Path(HoldingsFile), []byte(`[{"symbol": "AAPL"`), 0600); err != nil {
		t.Fatal(err)
	}

	_, err := s.LoadHoldings()
	if !errors.Is(err, ErrCorruptCache) {
		t.Fatalf("expected ErrCorruptCache, got %v", err)
	}

	if _, err := os.Stat(s.Path(HoldingsFile)); !os.IsNotExist(err) {
		t.Error("expected corrupt file to be moved away")
	}
	moved := s.Path(HoldingsFile) + ".corrupt-" + strconv.FormatInt(now.Unix(), 10)
	if _, err := os.Stat(moved); err != nil {
		t.Errorf("expected quarantined copy at %s: %v", moved, err)
	}

	holdings, err := s.LoadHoldings()
	if err != nil || len(holdings) != 0 {
		t.Errorf("expected empty holdings after quarantine, got %v, %v", holdings, err)
	}

	if _, err := s.LoadAll(); err != nil {
		t.Errorf("expected LoadAll to succeed after quarantine, got %v", err)
	}
}

// TestStore_ShardsOfOtherManagersKept tests that a partial save leaves other shards.
func TestStore_ShardsOfOtherManagersKept(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveHoldings(ctx, sampleResult().Holdings); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveHoldings(ctx, []model.Holding{{Symbol: "MSFT", ManagerID: "BRK"}}); err != nil {
		t.Fatal(err)
	}

	brk, err := s.LoadManagerHoldings("BRK")
	if err != nil {
		t.Fatal(err)
	}
	if len(brk.Holdings) != 1 || brk.Holdings[0].Symbol != "MSFT" {
		t.Errorf("expected BRK shard to be replaced, got %+v", brk.Holdings)
	}
	if _, err := s.LoadManagerHoldings("GLRE"); err != nil {
		t.Errorf("expected GLRE shard to survive, got %v", err)
	}
}

// TestStore_InvalidManagerID tests shard name validation.
func TestStore_InvalidManagerID(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	for _, id := range []string{"", "../x", "a/b", ".."} {
		if _, err := s.LoadManagerHoldings(id); !errors.Is(err, ErrInvalidManagerID) {
			t.Errorf("id %q: expected ErrInvalidManagerID, got %v", id, err)
		}
	}

	err := s.SaveHoldings(context.Background(), []model.Holding{{Symbol: "X", ManagerID: "../evil"}})
	if err != nil {
		t.Fatalf("expected bad shard to be skipped, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.Dir(), "evil.json")); !os.IsNotExist(err) {
		t.Error("expected no file outside the store")
	}
}

// TestStore_Clear tests removal of all documents.
func TestStore_Clear(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	if _, err := s.SaveResult(context.Background(), sampleResult(), model.Metadata{}); err != nil {
		t.Fatal(err)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}

	res, err := s.LoadAll()
	if err != nil {
		t.Fatal(err)
	}
	if !res.Empty() {
		t.Errorf("expected empty store after Clear, got %+v", res)
	}
	if _, err := s.LoadManagerHoldings("BRK"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected shard to be gone, got %v", err)
	}
}

// TestStore_StockData tests the market data document.
func TestStore_StockData(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	in := map[string]model.MarketData{"AAPL": {Symbol: "AAPL", Price: 236, Sector: "Technology"}}
	if err := s.SaveStockData(in); err != nil {
		t.Fatal(err)
	}
	out, err := s.LoadStockData()
	if err != nil {
		t.Fatal(err)
	}
	if out["AAPL"].Sector != "Technology" {
		t.Errorf("unexpected stock data: %+v", out)
	}
}


// TestWriteFileAtomic tests that the shared writer creates parents, replaces content and leaves no temp files.
func TestWriteFileAtomic(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "managers", "BRK", "holdings_page.html")

	for _, body := range []string{"first", "second"} {
		if err := WriteFileAtomic(path, []byte(body)); err != nil {
			t.Fatalf("WriteFileAtomic(%q) failed: %v", body, err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != body {
			t.Errorf("expected %q, got %q", body, data)
		}
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("expected only the target file, got %v", names)
	}

	if runtime.GOOS == "windows" {
		return
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("expected mode 0600, got %o", perm)
	}
}
