package collector

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"

	"hhresearch/common/cache"
	"hhresearch/common/telemetry"
	"hhresearch/services/research/internal/errors"
	"hhresearch/services/research/internal/models"
	"hhresearch/services/research/internal/parser"

	"go.uber.org/zap"
)

type fetchStats struct {
	fromCache   int32
	fetched     int32
	failed      int32
	cacheErrors int32
}

// outcome is sent once per id; listing is nil when the id failed.
type outcome struct {
	id      string
	listing *models.Listing
}

// fetchAll runs at most q.MaxWorkers workers and never more than there are ids.
func (c *Collector) fetchAll(ctx context.Context, q models.QuerySpec, ids []string, report *models.FetchReport, progress ProgressFunc) ([]models.Listing, error) {
	ctx, span := tracer.Start(ctx, "Collector.fetchAll")
	defer span.End()

	stats := &fetchStats{}
	idChan := make(chan string)
	workers := min(q.MaxWorkers, len(ids))
	outcomes := make(chan outcome, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range idChan {
				outcomes <- outcome{id: id, listing: c.processListing(ctx, id, q.Refresh, stats)}
			}
		}()
	}

	go feedIDs(ctx, ids, idChan)

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	listings := make([]models.Listing, 0, len(ids))
	done := 0
	for o := range outcomes {
		done++
		if o.listing != nil {
			listings = append(listings, *o.listing)
		}
		progress(Progress{Stage: StageFetch, Done: done, Total: len(ids)})
	}

	report.FromCache = int(atomic.LoadInt32(&stats.fromCache))
	report.Fetched = int(atomic.LoadInt32(&stats.fetched))
	report.Failed = int(atomic.LoadInt32(&stats.failed))
	report.CacheErrors = int(atomic.LoadInt32(&stats.cacheErrors))

	span.SetAttributes(
		telemetry.Int("fetch.processed", done),
		telemetry.Int("fetch.failed", report.Failed),
	)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return listings, nil
}

func feedIDs(ctx context.Context, ids []string, idChan chan<- string) {
	defer close(idChan)
	for _, id := range ids {
		select {
		case idChan <- id:
		case <-ctx.Done():
			return
		}
	}
}

// processListing serves one id from the cache or the network. Failures are
// counted and logged, never returned.
func (c *Collector) processListing(ctx context.Context, id string, refresh bool, stats *fetchStats) *models.Listing {
	ctx, span := tracer.Start(ctx, "Collector.processListing")
	defer span.End()
	span.SetAttributes(telemetry.String("listing.id", id))

	if !refresh && c.cache != nil {
		cached, err := c.cache.Get(ctx, id)
		switch {
		case err == nil && cached.ID != id:
			span.SetAttributes(telemetry.String("cache.result", "invalid"))
			c.logger.Warn("cached listing has a different id, refetching",
				zap.String("id", id),
				zap.String("cached_id", cached.ID))
		case err == nil:
			if err := parser.NormalizeSalary(cached); err != nil {
				span.SetAttributes(telemetry.String("cache.result", "invalid"))
				c.logger.Warn("cached listing is invalid, refetching", zap.String("id", id), zap.Error(err))
				break
			}
			span.SetAttributes(telemetry.String("cache.result", "hit"))
			atomic.AddInt32(&stats.fromCache, 1)
			return cached
		case stderrors.Is(err, cache.ErrNotFound):
			span.SetAttributes(telemetry.String("cache.result", "miss"))
		default:
			span.SetAttributes(telemetry.String("cache.result", "error"))
			span.RecordError(err)
			atomic.AddInt32(&stats.cacheErrors, 1)
			c.logger.Warn("cache read failed, fetching from network", zap.String("id", id), zap.Error(err))
		}
	}

	fetchCtx := ctx
	if c.opts.ItemTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, c.opts.ItemTimeout)
		defer cancel()
	}

	raw, err := c.source.FetchListing(fetchCtx, id)
	if err != nil {
		c.recordFailure(ctx, id, errors.ListingFetchFailed("fetching listing "+id, err), stats)
		return nil
	}

	listing, err := parser.ParseListing(raw)
	if err != nil {
		c.recordFailure(ctx, id, errors.ListingFetchFailed("parsing listing "+id, err), stats)
		return nil
	}
	if listing.ID != id {
		c.logger.Debug("listing id differs from requested id",
			zap.String("requested", id),
			zap.String("returned", listing.ID))
		listing.ID = id
	}
	atomic.AddInt32(&stats.fetched, 1)

	if c.cache != nil {
		if err := c.cache.Put(ctx, listing); err != nil {
			atomic.AddInt32(&stats.cacheErrors, 1)
			c.logger.Warn("cache write failed", zap.String("id", id), zap.Error(err))
		}
	}

	return listing
}

func (c *Collector) recordFailure(ctx context.Context, id string, err error, stats *fetchStats) {
	atomic.AddInt32(&stats.failed, 1)
	if ctx.Err() != nil {
		return
	}
	c.logger.Warn("dropping listing", zap.String("id", id), zap.Error(err))
}
