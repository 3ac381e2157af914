package supabase

import (
	"context"

	"github.com/italolelis/asset_harvester/internal/harvest"
	"github.com/italolelis/asset_harvester/internal/telemetry"
)

// InstrumentedClient wraps a harvest.Fetcher with telemetry.
type InstrumentedClient struct {
	fetcher   harvest.Fetcher
	telemetry *telemetry.Telemetry
}

var _ harvest.Fetcher = (*InstrumentedClient)(nil)

// NewInstrumentedClient creates a new instrumented fetcher.
func NewInstrumentedClient(fetcher harvest.Fetcher, tel *telemetry.Telemetry) *InstrumentedClient {
	return &InstrumentedClient{
		fetcher:   fetcher,
		telemetry: tel,
	}
}

// FetchAll paginates one resource inside a harvest span.
func (c *InstrumentedClient) FetchAll(ctx context.Context, resource string, pageSize int) (harvest.RecordSet, error) {
	var result harvest.RecordSet

	var err error

	instrumentedErr := c.telemetry.InstrumentHarvest(ctx, resource, func(ctx context.Context) error {
		result, err = c.fetcher.FetchAll(ctx, resource, pageSize)

		return err
	})

	if instrumentedErr != nil {
		return nil, instrumentedErr
	}

	return result, nil
}
