package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/dataroma/internal/config"
	"github.com/nao1215/dataroma/internal/fetch"
	"github.com/nao1215/dataroma/internal/model"
	"github.com/nao1215/dataroma/internal/store"
)

// fakeFetcher serves pages by cache key.
type fakeFetcher struct {
	mu       sync.Mutex
	pages    map[string]string
	failures map[string]fetch.FailureKind
	onGet    func(key string)
	keys     []string
	useCache []bool
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		pages:    make(map[string]string),
		failures: make(map[string]fetch.FailureKind),
	}
}

func (f *fakeFetcher) Get(ctx context.Context, _ string, key string, useCache bool) fetch.Result {
	f.mu.Lock()
	f.keys = append(f.keys, key)
	f.useCache = append(f.useCache, useCache)
	onGet := f.onGet
	f.mu.Unlock()

	if onGet != nil {
		onGet(key)
	}
	if err := ctx.Err(); err != nil {
		return fetch.Result{Failure: fetch.FailureCanceled, Err: err}
	}
	if kind, ok := f.failures[key]; ok {
		return fetch.Result{Failure: kind, StatusCode: 503, Retries: 3}
	}
	body, ok := f.pages[key]
	if !ok {
		return fetch.Result{Failure: fetch.FailureHTTP, StatusCode: 404}
	}
	return fetch.Result{Body: body, StatusCode: 200}
}

func (f *fakeFetcher) requested() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.keys)
}

// fakeJournal records journal calls.
type fakeJournal struct {
	mu          sync.Mutex
	started     []string
	checkpoints []model.Progress
	fetches     int
	finished    []model.RunStatus
}

func (j *fakeJournal) StartRun(_ context.Context, runID string, _ time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.started = append(j.started, runID)
	return nil
}

func (j *fakeJournal) RecordCheckpoint(_ context.Context, _ string, p model.Progress, _ time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.checkpoints = append(j.checkpoints, p)
	return nil
}

func (j *fakeJournal) RecordFetch(_ context.Context, _ string, _ model.FetchEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.fetches++
	return nil
}

func (j *fakeJournal) FinishRun(_ context.Context, _ string, status model.RunStatus, _ model.Progress, _ time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.finished = append(j.finished, status)
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.New(t.TempDir(), store.WithLogger(quietLogger()))
	if err != nil {
		t.Fatal(err)
	}
	return st
}

func rosterPage(codes ...string) string {
	var b strings.Builder
	b.WriteString("<html><body><ul>")
	for _, code := range codes {
		fmt.Fprintf(&b, `<li><a href="/m/holdings.php?m=%s">Manager %s - Firm %s</a></li>`, code, code, code)
	}
	b.WriteString("</ul></body></html>")
	return b.String()
}

func holdingsPage(symbols ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body><p>Period: Q3 2024</p><table id="grid"><tbody>`)
	for _, sym := range symbols {
		fmt.Fprintf(&b, `<tr><td class="hist"></td><td class="stock"><a href="/m/stock.php?sym=%s">%s<span> - %s Inc.</span></a></td>`+
			`<td>10.0</td><td>Buy</td><td>1,000</td><td>$10.00</td><td>$10,000</td><td></td><td>$10.00</td><td>0%%</td><td>$8.00</td><td>$12.00</td></tr>`,
			sym, sym, sym)
	}
	b.WriteString("</tbody></table></body></html>")
	return b.String()
}

func activityPageHTML(quarter string, totalPages int, symbols ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body><table id="grid"><tbody>`)
	fmt.Fprintf(&b, `<tr class="q_chg"><td colspan="5">%s</td></tr>`, quarter)
	for _, sym := range symbols {
		fmt.Fprintf(&b, `<td class="hist"></td><td><a href="/m/stock.php?sym=%s">%s<span> - %s Inc.</span></a></td><td>Add 5.00%%</td><td>100</td><td>0.10</td>`, sym, sym, sym)
	}
	b.WriteString(`</tbody></table>`)
	if totalPages > 1 {
		b.WriteString(`<div id="pages">`)
		for p := 2; p <= totalPages; p++ {
			fmt.Fprintf(&b, `<a href="m_activity.php?m=X&amp;typ=a&amp;L=%d&amp;o=a">%d</a>`, p, p)
		}
		b.WriteString(`</div>`)
	}
	b.WriteString(`</body></html>`)
	return b.String()
}

// addManager serves one manager with the given holdings and one activity per page.
func (f *fakeFetcher) addManager(code string, pages int, holdings ...string) {
	f.pages[holdingsKey(code)] = holdingsPage(holdings...)
	for p := 1; p <= pages; p++ {
		f.pages[activityKey(code, p)] = activityPageHTML(fmt.Sprintf("Q%d 2024", (p-1)%4+1), pages, fmt.Sprintf("%sP%d", code, p))
	}
}

func newTestCrawler(f Fetcher, st *store.Store, opts ...Option) *Crawler {
	base := []Option{
		WithLogger(quietLogger()),
		WithBaseURL("https://example.test/m/"),
	}
	return New(f, st, append(base, opts...)...)
}

// TestRun_EndToEnd tests a full crawl over two managers.
func TestRun_EndToEnd(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.pages[rosterKey] = rosterPage("BRK", "GLRE")
	f.addManager("BRK", 3, "AAPL", "KO")
	f.addManager("GLRE", 1, "GRBK")

	st := newTestStore(t)
	j := &fakeJournal{}
	res, err := newTestCrawler(f, st, WithJournal(j)).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(res.Managers) != 2 || len(res.Holdings) != 3 || len(res.Activities) != 4 {
		t.Fatalf("unexpected counts: %d managers, %d holdings, %d activities", len(res.Managers), len(res.Holdings), len(res.Activities))
	}
	if res.Progress.ManagersProcessed != 2 || res.Progress.HoldingsFound != 3 || res.Progress.ActivitiesFound != 4 || res.Progress.ErrorsEncountered != 0 {
		t.Errorf("unexpected progress: %+v", res.Progress)
	}
	if res.UniqueTickers != 7 {
		t.Errorf("expected 7 unique tickers, got %d", res.UniqueTickers)
	}

	brk := res.Managers[0]
	if brk.ID != "BRK" || brk.Name != "Manager BRK" || brk.NumHoldings != 2 || brk.PortfolioValue != 20000 {
		t.Errorf("unexpected manager: %+v", brk)
	}

	wantKeys := []string{
		rosterKey,
		"managers/BRK/holdings.html",
		"managers/BRK/activity_page1.html",
		"managers/BRK/activity_page2.html",
		"managers/BRK/activity_page3.html",
		"managers/GLRE/holdings.html",
		"managers/GLRE/activity_page1.html",
	}
	if got := f.requested(); !slices.Equal(got, wantKeys) {
		t.Errorf("unexpected request order:\n got %v\nwant %v", got, wantKeys)
	}

	for _, a := range res.Activities {
		if a.Date == "" {
			t.Errorf("activity %s has no quarter", a.Symbol)
		}
	}

	md, err := st.LoadMetadata()
	if err != nil {
		t.Fatal(err)
	}
	if md.Checkpoint || md.NumManagers != 2 || md.NumHoldings != 3 || md.Fetch.Requests != 7 {
		t.Errorf("unexpected metadata: %+v", md)
	}

	if len(j.started) != 1 || !slices.Equal(j.finished, []model.RunStatus{model.RunCompleted}) || j.fetches != 7 {
		t.Errorf("unexpected journal: %+v", j)
	}
}

// TestRun_ActivityPageCap tests that pagination honors the page cap.
func TestRun_ActivityPageCap(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.pages[rosterKey] = rosterPage("BRK")
	f.addManager("BRK", 7, "AAPL")

	res, err := newTestCrawler(f, newTestStore(t), WithMaxActivityPages(2)).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Activities) != 2 {
		t.Errorf("expected 2 pages of activities, got %d", len(res.Activities))
	}
	if slices.Contains(f.requested(), activityKey("BRK", 3)) {
		t.Error("expected page 3 not to be fetched")
	}
}

// TestRun_PaginationStopsOnFailure tests that a failed page ends pagination.
func TestRun_PaginationStopsOnFailure(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.pages[rosterKey] = rosterPage("BRK")
	f.addManager("BRK", 4, "AAPL")
	f.failures[activityKey("BRK", 2)] = fetch.FailureHTTP

	res, err := newTestCrawler(f, newTestStore(t)).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Activities) != 1 || res.Activities[0].Symbol != "BRKP1" {
		t.Errorf("expected only page 1 activities, got %+v", res.Activities)
	}
	if res.Progress.ErrorsEncountered != 1 {
		t.Errorf("expected 1 error, got %d", res.Progress.ErrorsEncountered)
	}
	for _, key := range []string{activityKey("BRK", 3), activityKey("BRK", 4)} {
		if slices.Contains(f.requested(), key) {
			t.Errorf("expected %s not to be fetched", key)
		}
	}
}

// TestRun_ManagerFailureDoesNotAbort tests per-manager failure isolation.
func TestRun_ManagerFailureDoesNotAbort(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.pages[rosterKey] = rosterPage("BAD", "GOOD")
	f.addManager("GOOD", 1, "MSFT")
	f.failures[holdingsKey("BAD")] = fetch.FailureTimeout
	f.failures[activityKey("BAD", 1)] = fetch.FailureConnection

	res, err := newTestCrawler(f, newTestStore(t)).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Progress.ManagersProcessed != 2 || res.Progress.ErrorsEncountered != 2 {
		t.Errorf("unexpected progress: %+v", res.Progress)
	}
	if res.Managers[0].NumHoldings != 0 || len(res.Holdings) != 1 || res.Holdings[0].ManagerID != "GOOD" {
		t.Errorf("expected BAD to contribute nothing, got %+v", res.Holdings)
	}
}

// TestRun_EmptyRoster tests that an empty roster ends the run without error.
func TestRun_EmptyRoster(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		setup func(*fakeFetcher)
	}{
		{
			name:  "roster without managers",
			setup: func(f *fakeFetcher) { f.pages[rosterKey] = "<html><body>maintenance</body></html>" },
		},
		{
			name:  "roster fetch failure",
			setup: func(f *fakeFetcher) { f.failures[rosterKey] = fetch.FailureConnection },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFakeFetcher()
			tt.setup(f)
			st := newTestStore(t)
			j := &fakeJournal{}

			res, err := newTestCrawler(f, st, WithJournal(j)).Run(context.Background())
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if !res.Empty() {
				t.Errorf("expected empty result, got %+v", res)
			}
			p := res.Progress
			if p.ManagersProcessed != 0 || p.HoldingsFound != 0 || p.ActivitiesFound != 0 || p.ErrorsEncountered != 0 {
				t.Errorf("unexpected progress: %+v", p)
			}
			if _, err := st.LoadMetadata(); !errors.Is(err, store.ErrNotFound) {
				t.Errorf("expected nothing persisted, got %v", err)
			}
			if !slices.Equal(j.finished, []model.RunStatus{model.RunEmpty}) {
				t.Errorf("unexpected journal status: %v", j.finished)
			}
			if j.fetches != 1 {
				t.Errorf("expected the roster request to be journaled, got %d fetches", j.fetches)
			}
		})
	}
}

// TestRun_UniqueStocksFromHoldings tests that metadata counts distinct holding symbols only.
func TestRun_UniqueStocksFromHoldings(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.pages[rosterKey] = rosterPage("BRK")
	f.addManager("BRK", 1, "AAPL")

	st := newTestStore(t)
	res, err := newTestCrawler(f, st).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.Holdings) != 1 || len(res.Activities) != 1 || res.Activities[0].Symbol == "AAPL" {
		t.Fatalf("unexpected records: %+v %+v", res.Holdings, res.Activities)
	}
	if res.UniqueTickers != 2 {
		t.Errorf("expected 2 tickers across holdings and activities, got %d", res.UniqueTickers)
	}

	md, err := st.LoadMetadata()
	if err != nil {
		t.Fatal(err)
	}
	if md.UniqueStocks != 1 {
		t.Errorf("expected unique_stocks 1, got %d", md.UniqueStocks)
	}
}

// TestRun_FreshCache tests the cache short-circuit and forced refresh.
func TestRun_FreshCache(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	cached := model.NewResult()
	cached.Managers = []model.Manager{{ID: "BRK", Name: "Warren Buffett"}}
	cached.Holdings = []model.Holding{{Symbol: "AAPL", ManagerID: "BRK"}}
	if _, err := st.SaveResult(context.Background(), cached, model.Metadata{NumManagers: 1}); err != nil {
		t.Fatal(err)
	}

	f := newFakeFetcher()
	f.pages[rosterKey] = rosterPage("GLRE")
	f.addManager("GLRE", 1, "GRBK")

	j := &fakeJournal{}
	res, err := newTestCrawler(f, st, WithMaxCacheAge(time.Hour), WithJournal(j)).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !res.FromCache || len(res.Managers) != 1 || res.Managers[0].ID != "BRK" {
		t.Errorf("expected cached result, got %+v", res)
	}
	if n := len(f.requested()); n != 0 {
		t.Errorf("expected no network activity, got %d requests", n)
	}
	if !slices.Equal(j.finished, []model.RunStatus{model.RunCached}) {
		t.Errorf("unexpected journal status: %v", j.finished)
	}

	res, err = newTestCrawler(f, st, WithMaxCacheAge(time.Hour), WithForceRefresh(true)).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.FromCache || res.Managers[0].ID != "GLRE" {
		t.Errorf("expected forced crawl, got %+v", res.Managers)
	}
}

// TestRun_CorruptCacheIsMiss tests that a corrupt cache triggers a crawl.
func TestRun_CorruptCacheIsMiss(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	if _, err := st.SaveResult(context.Background(), model.NewResult(), model.Metadata{}); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(st.Path(store.HoldingsFile), []byte("[{"), 0600); err != nil {
		t.Fatal(err)
	}

	f := newFakeFetcher()
	f.pages[rosterKey] = rosterPage("BRK")
	f.addManager("BRK", 1, "AAPL")

	res, err := newTestCrawler(f, st).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.FromCache || len(res.Holdings) != 1 {
		t.Errorf("expected a fresh crawl, got %+v", res)
	}
}

// TestRun_CrashCheckpoint tests what survives a crash mid-run.
func TestRun_CrashCheckpoint(t *testing.T) {
	t.Parallel()

	const every = 3
	codes := []string{"M1", "M2", "M3", "M4", "M5", "M6", "M7"}

	tests := []struct {
		name         string
		crashAt      string
		wantManagers int
	}{
		{name: "crash after K-1 managers leaves no checkpoint", crashAt: "M3", wantManagers: 0},
		{name: "crash after K managers keeps K", crashAt: "M4", wantManagers: every},
		{name: "crash after 2K-1 managers keeps K", crashAt: "M6", wantManagers: every},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFakeFetcher()
			f.pages[rosterKey] = rosterPage(codes...)
			for _, code := range codes {
				f.addManager(code, 1, code+"X")
			}
			f.onGet = func(key string) {
				if key == holdingsKey(tt.crashAt) {
					panic("simulated crash")
				}
			}

			st := newTestStore(t)
			c := newTestCrawler(f, st, WithCheckpointPolicy(CheckpointPolicy{Every: every}))

			func() {
				defer func() {
					if recover() == nil {
						t.Fatal("expected simulated crash")
					}
				}()
				_, _ = c.Run(context.Background())
			}()

			managers, err := st.LoadManagers()
			if err != nil {
				t.Fatal(err)
			}
			if len(managers) != tt.wantManagers {
				t.Fatalf("expected %d managers in checkpoint, got %d", tt.wantManagers, len(managers))
			}
			holdings, _ := st.LoadHoldings()
			activities, _ := st.LoadActivities()
			if len(holdings) != tt.wantManagers || len(activities) != tt.wantManagers {
				t.Errorf("expected %d holdings and activities, got %d and %d", tt.wantManagers, len(holdings), len(activities))
			}

			if tt.wantManagers == 0 {
				return
			}
			md, err := st.LoadMetadata()
			if err != nil {
				t.Fatal(err)
			}
			if !md.Checkpoint || md.Progress.ManagersProcessed != tt.wantManagers {
				t.Errorf("unexpected checkpoint metadata: %+v", md)
			}
			if st.IsValid(time.Hour) {
				t.Error("expected a checkpoint not to count as a fresh cache")
			}
		})
	}
}

// TestRun_Canceled tests that cancellation checkpoints completed managers.
func TestRun_Canceled(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.pages[rosterKey] = rosterPage("M1", "M2", "M3")
	for _, code := range []string{"M1", "M2", "M3"} {
		f.addManager(code, 1, code+"X")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.onGet = func(key string) {
		if key == holdingsKey("M2") {
			cancel()
		}
	}

	st := newTestStore(t)
	j := &fakeJournal{}
	res, err := newTestCrawler(f, st, WithJournal(j)).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(res.Managers) != 1 || res.Managers[0].ID != "M1" {
		t.Errorf("expected only M1, got %+v", res.Managers)
	}
	if res.Progress.ErrorsEncountered != 0 {
		t.Errorf("expected cancellation not to count as an error, got %d", res.Progress.ErrorsEncountered)
	}

	managers, err := st.LoadManagers()
	if err != nil {
		t.Fatal(err)
	}
	if len(managers) != 1 {
		t.Errorf("expected checkpoint with 1 manager, got %d", len(managers))
	}
	if !slices.Equal(j.finished, []model.RunStatus{model.RunCanceled}) || len(j.checkpoints) != 1 {
		t.Errorf("unexpected journal: %+v", j)
	}
}

// TestRun_ManagerNames tests that configured names override scraped ones.
func TestRun_ManagerNames(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.pages[rosterKey] = rosterPage("BRK", "GLRE")
	f.addManager("BRK", 1)
	f.addManager("GLRE", 1)

	names := config.ManagerNames{"brk": "Warren Buffett"}
	res, err := newTestCrawler(f, newTestStore(t), WithManagerNames(names)).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Managers[0].Name != "Warren Buffett" || res.Managers[1].Name != "Manager GLRE" {
		t.Errorf("unexpected names: %q, %q", res.Managers[0].Name, res.Managers[1].Name)
	}
}

// TestRun_ProgressLog tests the aggregate progress log cadence.
func TestRun_ProgressLog(t *testing.T) {
	t.Parallel()

	codes := []string{"A", "B", "C", "D", "E", "F", "G", "H", "I", "J", "K"}
	f := newFakeFetcher()
	f.pages[rosterKey] = rosterPage(codes...)
	for _, code := range codes {
		f.addManager(code, 1)
	}

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	j := &fakeJournal{}
	c := New(f, newTestStore(t), WithLogger(logger), WithJournal(j), WithUseCache(false))

	if _, err := c.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(logs.String(), "msg=\"crawl progress\""); n != 2 {
		t.Errorf("expected 2 progress lines for 11 managers, got %d", n)
	}
	if len(j.checkpoints) != 1 || j.checkpoints[0].ManagersProcessed != 10 {
		t.Errorf("expected one checkpoint at 10 managers, got %+v", j.checkpoints)
	}
	if slices.Contains(f.useCache, true) {
		t.Error("expected every fetch to bypass the HTML cache")
	}
}

// TestCheckpointPolicy_Due tests the checkpoint cadence.
func TestCheckpointPolicy_Due(t *testing.T) {
	t.Parallel()

	tests := []struct {
		every     int
		processed int
		want      bool
	}{
		{every: 10, processed: 10, want: true},
		{every: 10, processed: 20, want: true},
		{every: 10, processed: 9, want: false},
		{every: 10, processed: 0, want: false},
		{every: 0, processed: 10, want: false},
		{every: 1, processed: 1, want: true},
	}

	for _, tt := range tests {
		if got := (CheckpointPolicy{Every: tt.every}).Due(tt.processed); got != tt.want {
			t.Errorf("Every=%d Due(%d) = %v, want %v", tt.every, tt.processed, got, tt.want)
		}
	}
}

// TestURLs tests the page URLs and cache keys.
func TestURLs(t *testing.T) {
	t.Parallel()

	c := New(newFakeFetcher(), nil, WithBaseURL("https://www.dataroma.com/m"))

	tests := []struct{ got, want string }{
		{c.rosterURL(), "https://www.dataroma.com/m/home.php"},
		{c.holdingsURL("BRK"), "https://www.dataroma.com/m/holdings.php?m=BRK"},
		{c.activityURL("BRK", 1), "https://www.dataroma.com/m/m_activity.php?m=BRK&typ=a"},
		{c.activityURL("BRK", 3), "https://www.dataroma.com/m/m_activity.php?m=BRK&typ=a&L=3&o=a"},
		{activityKey("BRK", 3), "managers/BRK/activity_page3.html"},
		{holdingsKey("BRK"), "managers/BRK/holdings.html"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %s, want %s", tt.got, tt.want)
		}
	}
}
