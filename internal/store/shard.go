package store

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/dataroma/internal/model"
)

// HoldingsShard is the per-manager holdings document.
type HoldingsShard struct {
	ManagerID   string          `json:"manager_id"`
	Holdings    []model.Holding `json:"holdings"`
	Timestamp   time.Time       `json:"timestamp"`
	ScrapedDate string          `json:"scraped_date"`
}

// HistoryShard is the per-manager activity document.
type HistoryShard struct {
	ManagerID   string           `json:"manager_id"`
	Activities  []model.Activity `json:"activities"`
	Timestamp   time.Time        `json:"timestamp"`
	ScrapedDate string           `json:"scraped_date"`
}

// Overview is the lightweight run summary written next to metadata.json.
type Overview struct {
	Timestamp     time.Time      `json:"timestamp"`
	NumManagers   int            `json:"num_managers"`
	NumHoldings   int            `json:"num_holdings"`
	NumActivities int            `json:"num_activities"`
	UniqueStocks  int            `json:"unique_stocks"`
	Progress      model.Progress `json:"progress"`
}

// managerGroup is the records of one manager, in input order.
type managerGroup[T any] struct {
	id    string
	items []T
}

// groupByManager splits records by manager, keeping first-seen manager
// order and record order within each manager.
func groupByManager[T any](records []T, key func(T) string) []managerGroup[T] {
	index := make(map[string]int)
	var groups []managerGroup[T]
	for _, r := range records {
		id := key(r)
		i, ok := index[id]
		if !ok {
			i = len(groups)
			index[id] = i
			groups = append(groups, managerGroup[T]{id: id})
		}
		groups[i].items = append(groups[i].items, r)
	}
	return groups
}

// writeShards writes one document per group under dir with at most
// s.shardWorkers writes in flight. A group with an unusable manager id is
// skipped with a warning.
func writeShards[T any](ctx context.Context, s *Store, dir string, groups []managerGroup[T], doc func(string, []T) any) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.shardWorkers)

	for _, grp := range groups {
		name, err := shardName(dir, grp.id)
		if err != nil {
			s.logger.Warn("skipping shard", "dir", dir, "error", err)
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := s.writeJSON(name, doc(grp.id, grp.items)); err != nil {
				return fmt.Errorf("shard %s: %w", grp.id, err)
			}
			return nil
		})
	}
	return g.Wait()
}
