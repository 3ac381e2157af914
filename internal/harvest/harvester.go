package harvest

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/italolelis/asset_harvester/internal/logctx"
)

const defaultPageSize = 1000

// Options configures the harvester.
type Options struct {
	// PageSize is the number of rows requested per page.
	// Default: 1000
	PageSize int

	// Parallel is the number of resources fetched at once.
	// Default: 1
	Parallel int
}

type Harvester struct {
	fetcher Fetcher
	opts    Options
}

func NewHarvester(fetcher Fetcher, opts Options) *Harvester {
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}

	if opts.Parallel <= 0 {
		opts.Parallel = 1
	}

	return &Harvester{fetcher: fetcher, opts: opts}
}

// Harvest fetches every named resource. Failures are kept in the result and
// never abort the run. Duplicate names are fetched once.
func (h *Harvester) Harvest(ctx context.Context, names []string) *Result {
	logger := logctx.LoggerFromContext(ctx)

	names = UniqueNames(names)
	slots := make([]Entry, len(names))

	var g errgroup.Group

	g.SetLimit(h.opts.Parallel)

	for i, name := range names {
		if err := ctx.Err(); err != nil {
			slots[i] = Entry{Name: name, Err: err}

			continue
		}

		g.Go(func() error {
			slots[i] = h.harvestOne(ctx, name)

			return nil
		})
	}

	// Workers never return errors; failures live in the slots.
	_ = g.Wait()

	result := newResult(len(names))
	failed := 0

	for _, e := range slots {
		result.put(e)

		if !e.OK() {
			failed++
		}
	}

	logger.Info("harvest finished", "resources", len(names), "failed", failed)

	return result
}

func (h *Harvester) harvestOne(ctx context.Context, name string) Entry {
	logger := logctx.LoggerFromContext(ctx).With("table", name)

	logger.Info("fetching table")

	records, err := h.fetcher.FetchAll(ctx, name, h.opts.PageSize)
	if err != nil {
		logger.Warn("failed to fetch table", "err", err)

		return Entry{Name: name, Err: err}
	}

	logger.Info("fetched table", "rows", len(records))

	return Entry{Name: name, Records: records}
}
