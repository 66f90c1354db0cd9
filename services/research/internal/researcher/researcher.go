// Package researcher runs one research from settings to summary.
package researcher

import (
	"context"
	"time"

	"hhresearch/common/telemetry"
	"hhresearch/services/research/internal/analyzer"
	"hhresearch/services/research/internal/api"
	"hhresearch/services/research/internal/collector"
	"hhresearch/services/research/internal/exchange"
	"hhresearch/services/research/internal/models"
	"hhresearch/services/research/internal/predictor"
	"hhresearch/services/research/internal/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var tracer = telemetry.GetTracer("hhresearch/research/researcher")

type Options struct {
	Collector    collector.Options
	BaseCurrency string
}

type Researcher struct {
	source    api.ListingSource
	cache     storage.ResultCache
	rates     exchange.RateProvider
	analyzer  *analyzer.Analyzer
	predictor *predictor.Predictor
	logger    *zap.Logger
	opts      Options
}

func New(
	source api.ListingSource,
	cache storage.ResultCache,
	rates exchange.RateProvider,
	analyzer *analyzer.Analyzer,
	predictor *predictor.Predictor,
	logger *zap.Logger,
	opts Options,
) *Researcher {
	if opts.BaseCurrency == "" {
		opts.BaseCurrency = models.BaseCurrency
	}
	return &Researcher{
		source:    source,
		cache:     cache,
		rates:     rates,
		analyzer:  analyzer,
		predictor: predictor,
		logger:    logger,
		opts:      opts,
	}
}

// Run resolves rates, collects listings and summarizes them. Statistics are
// always computed on real salaries. Predicted salaries are reported apart in
// Result.Imputed.
func (r *Researcher) Run(ctx context.Context, settings models.Settings, progress collector.ProgressFunc) (*models.Result, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	ctx, span := tracer.Start(ctx, "Researcher.Run")
	defer span.End()
	span.SetAttributes(
		telemetry.String("run.id", runID),
		telemetry.String("query.text", settings.Query),
		telemetry.Bool("run.predict", settings.Predict),
	)

	logger := r.logger.With(zap.String("run_id", runID), zap.String("query", settings.Query))
	start := time.Now()
	logger.Info("starting research",
		zap.Int("max_workers", settings.MaxWorkers),
		zap.Bool("refresh", settings.Refresh),
		zap.Strings("currencies", settings.Currencies))

	requested := append([]string{r.opts.BaseCurrency}, settings.Currencies...)
	rates, err := r.rates.FetchRates(ctx, requested)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	c := collector.New(r.source, r.cache, rates, logger, r.opts.Collector)
	collection, err := c.Collect(ctx, settings.Spec(), progress)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	result := &models.Result{
		RunID:  runID,
		Query:  settings.Query,
		Report: collection.Report,
	}
	if collection.Empty() {
		logger.Info("research found nothing", zap.Duration("elapsed", time.Since(start)))
		return result, nil
	}

	summary := r.analyzer.Summarize(collection.Listings)
	result.Found = true
	result.Count = summary.Count
	result.Keywords = summary.Keywords
	result.Words = summary.Words
	if s := summary.Salary; s != nil {
		result.Max = r.descriptor(models.LabelMax, s.Max)
		result.Min = r.descriptor(models.LabelMin, s.Min)
		result.Mean = r.descriptor(models.LabelMean, s.Mean)
		result.Median = r.descriptor(models.LabelMedian, s.Median)
	}

	if settings.Predict {
		if imputed, report, err := r.predictor.FitAndImpute(collection.Listings); err != nil {
			logger.Warn("salary imputation skipped", zap.Error(err))
			result.PredictionError = err.Error()
		} else {
			result.Prediction = report
			result.Imputed = imputedSalaries(imputed)
		}
	}

	logger.Info("research finished",
		zap.Int("count", result.Count),
		zap.Int("failed", result.Report.Failed),
		zap.Duration("elapsed", time.Since(start)))
	return result, nil
}

func (r *Researcher) descriptor(label string, value float64) *models.Descriptor {
	return &models.Descriptor{Label: label, Value: value, Currency: r.opts.BaseCurrency}
}

func imputedSalaries(listings []models.Listing) map[string]float64 {
	var out map[string]float64
	for _, l := range listings {
		if l.HasSalary || l.SalaryAverage == nil {
			continue
		}
		if out == nil {
			out = make(map[string]float64)
		}
		out[l.ID] = *l.SalaryAverage
	}
	return out
}
