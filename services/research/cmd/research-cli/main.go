package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"hhresearch/services/research/internal/app"
	"hhresearch/services/research/internal/collector"
	"hhresearch/services/research/internal/config"
	"hhresearch/services/research/internal/models"

	"go.uber.org/zap"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		query      = flag.String("query", "", "search text, e.g. \"Data Science\"")
		area       = flag.String("area", "", "hh.ru area id")
		perPage    = flag.Int("per-page", 0, "listings per search page (1..100)")
		workers    = flag.Int("workers", 0, "concurrent detail fetches")
		refresh    = flag.Bool("refresh", false, "ignore cached listings and fetch again")
		predict    = flag.Bool("predict", false, "impute missing salaries")
		currencies = flag.String("currencies", "", "comma-separated currency codes to normalize")
	)
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("failed to load config: %v", err)
		return 2
	}

	logger, err := app.NewLogger(cfg)
	if err != nil {
		log.Printf("failed to create logger: %v", err)
		return 2
	}
	defer logger.Sync()

	// Only flags given on the command line override the configured defaults.
	var patch models.SettingsPatch
	patch.Query = query
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "area":
			patch.Area = area
		case "per-page":
			patch.PerPage = perPage
		case "workers":
			patch.MaxWorkers = workers
		case "refresh":
			patch.Refresh = refresh
		case "predict":
			patch.Predict = predict
		case "currencies":
			patch.Currencies = strings.Split(*currencies, ",")
		}
	})
	settings := patch.Apply(cfg.DefaultSettings())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := app.InitTracing(ctx, cfg)
	if err != nil {
		logger.Error("failed to initialize tracing", zap.Error(err))
		return 1
	}
	defer shutdownTracing(context.Background())

	cache, closeCache, err := app.OpenCache(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open listing cache", zap.Error(err))
		return 1
	}
	defer closeCache()

	result, err := app.NewResearcher(cfg, logger, cache).Run(ctx, settings, printProgress)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		logger.Error("research failed", zap.Error(err))
		return 1
	}

	printResult(os.Stdout, result)
	return 0
}

func printProgress(p collector.Progress) {
	fmt.Fprintf(os.Stderr, "\r%-6s %d/%d", p.Stage, p.Done, p.Total)
}

func printResult(w io.Writer, r *models.Result) {
	fmt.Fprintf(w, "Query: %s\n", r.Query)
	if !r.Found {
		fmt.Fprintln(w, "No listings found.")
		return
	}

	fmt.Fprintf(w, "Listings: %d (%s)\n", r.Count, r.Report)
	for _, d := range []*models.Descriptor{r.Max, r.Min, r.Mean, r.Median} {
		if d != nil {
			fmt.Fprintln(w, d)
		}
	}

	printRanking(w, "Keywords", r.Keywords)
	printRanking(w, "Description words", r.Words)

	switch {
	case r.Prediction != nil:
		p := r.Prediction
		fmt.Fprintf(w, "\nImputed %d salaries from %d labeled listings: min %d, mean %d, max %d\n",
			p.Imputed, p.Labeled, int64(p.Min), int64(p.Mean), int64(p.Max))
		fmt.Fprintf(w, "Top terms: %s\n", strings.Join(p.TopTerms, ", "))
	case r.PredictionError != "":
		fmt.Fprintf(w, "\nPrediction skipped: %s\n", r.PredictionError)
	}
}

func printRanking(w io.Writer, title string, terms []models.TermCount) {
	if len(terms) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s:\n", title)
	for _, t := range terms {
		fmt.Fprintf(w, "  %-24s %d\n", t.Term, t.Count)
	}
}
