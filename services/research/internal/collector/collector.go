package collector

import (
	"context"
	"sort"
	"time"

	"hhresearch/common/telemetry"
	"hhresearch/services/research/internal/api"
	"hhresearch/services/research/internal/errors"
	"hhresearch/services/research/internal/models"
	"hhresearch/services/research/internal/storage"

	"go.uber.org/zap"
)

var tracer = telemetry.GetTracer("hhresearch/research/collector")

type Stage string

const (
	StageSearch Stage = "search"
	StageFetch  Stage = "fetch"
)

type Progress struct {
	Stage Stage `json:"stage"`
	Done  int   `json:"done"`
	Total int   `json:"total"`
}

type ProgressFunc func(Progress)

type Options struct {
	MaxPages    int
	ItemTimeout time.Duration // zero means no per-item limit
}

type Collector struct {
	source api.ListingSource
	cache  storage.ResultCache
	rates  models.RateTable
	logger *zap.Logger
	opts   Options
}

func New(source api.ListingSource, cache storage.ResultCache, rates models.RateTable, logger *zap.Logger, opts Options) *Collector {
	if opts.MaxPages < 1 {
		opts.MaxPages = 1
	}
	return &Collector{
		source: source,
		cache:  cache,
		rates:  rates,
		logger: logger,
		opts:   opts,
	}
}

// Collect returns the normalized listings matching q sorted by id. A query
// that matches nothing yields an empty collection and no error.
func (c *Collector) Collect(ctx context.Context, q models.QuerySpec, progress ProgressFunc) (*models.Collection, error) {
	ctx, span := tracer.Start(ctx, "Collector.Collect")
	defer span.End()
	span.SetAttributes(
		telemetry.String("query.text", q.Text),
		telemetry.Int("query.max_workers", q.MaxWorkers),
		telemetry.Bool("query.refresh", q.Refresh),
	)

	if err := q.Validate(); err != nil {
		return nil, err
	}
	if progress == nil {
		progress = func(Progress) {}
	}

	ids, err := c.searchIDs(ctx, q, progress)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	collection := &models.Collection{Report: models.FetchReport{Found: len(ids)}}
	span.SetAttributes(telemetry.Int("listings.found", len(ids)))
	if len(ids) == 0 {
		c.logger.Info("no listings matched", zap.String("query", q.Text))
		return collection, nil
	}

	listings, err := c.fetchAll(ctx, q, ids, &collection.Report, progress)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	collection.Listings = c.normalize(listings, &collection.Report)
	sort.Slice(collection.Listings, func(i, j int) bool {
		return collection.Listings[i].ID < collection.Listings[j].ID
	})

	r := collection.Report
	span.SetAttributes(
		telemetry.Int("listings.returned", len(collection.Listings)),
		telemetry.Int("listings.failed", r.Failed),
		telemetry.Int("listings.from_cache", r.FromCache),
	)
	c.logger.Info("collected listings",
		zap.String("query", q.Text),
		zap.Int("found", r.Found),
		zap.Int("returned", len(collection.Listings)),
		zap.Int("from_cache", r.FromCache),
		zap.Int("fetched", r.Fetched),
		zap.Int("failed", r.Failed),
		zap.Int("dropped", r.Dropped),
		zap.Int("cache_errors", r.CacheErrors))

	return collection, nil
}

// searchIDs pages sequentially; each request depends on the page count the
// previous one reported.
func (c *Collector) searchIDs(ctx context.Context, q models.QuerySpec, progress ProgressFunc) ([]string, error) {
	seen := make(map[string]struct{})
	var ids []string

	for page := 0; page < c.opts.MaxPages; page++ {
		result, err := c.source.SearchPage(ctx, q, page)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if page == 0 {
				return nil, errors.Unavailable("searching listings", err)
			}
			c.logger.Warn("stopping pagination after failed page",
				zap.Int("page", page),
				zap.Error(err))
			break
		}

		for _, id := range result.IDs {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
		progress(Progress{Stage: StageSearch, Done: page + 1, Total: min(result.Pages, c.opts.MaxPages)})

		if len(result.IDs) == 0 || page+1 >= result.Pages {
			break
		}
		if page+1 == c.opts.MaxPages {
			c.logger.Info("search page cap reached",
				zap.Int("max_pages", c.opts.MaxPages),
				zap.Int("pages", result.Pages))
		}
	}

	return ids, nil
}

func (c *Collector) normalize(listings []models.Listing, report *models.FetchReport) []models.Listing {
	out := make([]models.Listing, 0, len(listings))
	for _, l := range listings {
		if !l.HasSalary || l.Currency == "" {
			out = append(out, l)
			continue
		}
		m, ok := c.rates.Multiplier(l.Currency)
		if !ok {
			report.Dropped++
			c.logger.Warn("dropping listing with unknown currency",
				zap.String("id", l.ID),
				zap.String("currency", l.Currency))
			continue
		}
		out = append(out, l.Scaled(m))
	}
	return out
}
