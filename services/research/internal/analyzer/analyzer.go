package analyzer

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"hhresearch/services/research/internal/models"
	"hhresearch/services/research/internal/stopwords"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const DefaultTopN = 12

// entityDenylist holds HTML entity names left behind by tag stripping.
var entityDenylist = []string{"amp", "quot", "nbsp", "laquo", "raquo", "mdash", "ndash"}

var (
	digitsPattern     = regexp.MustCompile(`\d+`)
	whitespacePattern = regexp.MustCompile(`\s+`)
	wordPattern       = regexp.MustCompile(`[a-zA-Z]+`)
)

type Analyzer struct {
	topN      int
	stopwords stopwords.Set
	logger    *zap.Logger
}

type Option func(*Analyzer)

func WithTopN(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.topN = n
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(a *Analyzer) { a.logger = logger }
}

func New(opts ...Option) *Analyzer {
	a := &Analyzer{
		topN:      DefaultTopN,
		stopwords: stopwords.English().With(entityDenylist...),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Summarize is a pure function of listings; it never touches the network or cache.
func (a *Analyzer) Summarize(listings []models.Listing) models.AnalysisSummary {
	summary := models.AnalysisSummary{
		Count:    len(listings),
		Salary:   SalaryStats(listings),
		Keywords: a.RankKeywords(listings),
		Words:    a.RankWords(listings),
	}

	if summary.Salary == nil {
		a.logger.Info("no salary data among listings", zap.Int("count", summary.Count))
	} else {
		a.logger.Debug("summarized listings",
			zap.Int("count", summary.Count),
			zap.Int("salary_samples", summary.Salary.Samples),
			zap.Float64("median", summary.Salary.Median))
	}
	return summary
}

// SalaryStats aggregates per-listing salary averages. It returns nil when no
// listing has a salary bound.
func SalaryStats(listings []models.Listing) *models.SalaryStats {
	averages := make([]float64, 0, len(listings))
	for _, l := range listings {
		if avg, ok := l.Average(); ok && !math.IsNaN(avg) {
			averages = append(averages, avg)
		}
	}
	if len(averages) == 0 {
		return nil
	}

	return &models.SalaryStats{
		Max:     floats.Max(averages),
		Min:     floats.Min(averages),
		Mean:    stat.Mean(averages, nil),
		Median:  median(averages),
		Samples: len(averages),
	}
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

func (a *Analyzer) RankKeywords(listings []models.Listing) []models.TermCount {
	fold := cases.Fold()
	c := newCounter()
	for _, l := range listings {
		for _, kw := range l.Keywords {
			kw = strings.ReplaceAll(strings.TrimSpace(fold.String(kw)), "'", "")
			if kw == "" {
				continue
			}
			c.add(kw)
		}
	}
	return c.top(a.topN)
}

func (a *Analyzer) RankWords(listings []models.Listing) []models.TermCount {
	fold := cases.Fold()
	parts := make([]string, 0, len(listings))
	for _, l := range listings {
		text := fold.String(strings.TrimSpace(l.Description))
		text = digitsPattern.ReplaceAllString(text, "")
		parts = append(parts, whitespacePattern.ReplaceAllString(text, " "))
	}

	c := newCounter()
	for _, word := range wordPattern.FindAllString(strings.Join(parts, " "), -1) {
		if len(word) <= 2 || a.stopwords.Contains(word) {
			continue
		}
		c.add(word)
	}
	return c.top(a.topN)
}

// counter remembers first-seen order so equal counts rank deterministically.
type counter struct {
	index map[string]int
	terms []models.TermCount
}

func newCounter() *counter {
	return &counter{index: make(map[string]int)}
}

func (c *counter) add(term string) {
	if i, ok := c.index[term]; ok {
		c.terms[i].Count++
		return
	}
	c.index[term] = len(c.terms)
	c.terms = append(c.terms, models.TermCount{Term: term, Count: 1})
}

func (c *counter) top(n int) []models.TermCount {
	ranked := append([]models.TermCount(nil), c.terms...)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Count > ranked[j].Count })
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}
