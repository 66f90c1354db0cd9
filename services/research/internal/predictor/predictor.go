// Package predictor imputes missing salary averages with a ridge regression
// over keyword TF-IDF and one-hot categorical features.
package predictor

import (
	"strings"

	"hhresearch/services/research/internal/errors"
	"hhresearch/services/research/internal/models"
	"hhresearch/services/research/internal/stopwords"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const (
	DefaultMinDF = 5
	DefaultAlpha = 1.0

	topTermCount = 7
)

type Predictor struct {
	minDF     int
	alpha     float64
	stopwords stopwords.Set
	logger    *zap.Logger
}

type Option func(*Predictor)

func WithMinDF(n int) Option {
	return func(p *Predictor) {
		if n > 0 {
			p.minDF = n
		}
	}
}

func WithAlpha(alpha float64) Option {
	return func(p *Predictor) {
		if alpha > 0 {
			p.alpha = alpha
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(p *Predictor) { p.logger = logger }
}

func New(opts ...Option) *Predictor {
	p := &Predictor{
		minDF:     DefaultMinDF,
		alpha:     DefaultAlpha,
		stopwords: stopwords.EnglishRussian().With("amp", "quot"),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// FitAndImpute trains on listings with a salary bound and returns a copy of
// listings where every listing without bounds carries a predicted
// SalaryAverage. Labeled listings are returned unchanged.
func (p *Predictor) FitAndImpute(listings []models.Listing) ([]models.Listing, *models.PredictionReport, error) {
	var (
		labeled   []models.Listing
		targets   []float64
		unlabeled []int
	)
	for i, l := range listings {
		if avg, ok := l.Average(); ok {
			labeled = append(labeled, l)
			targets = append(targets, avg)
		} else {
			unlabeled = append(unlabeled, i)
		}
	}
	if len(labeled) == 0 {
		return nil, nil, errors.InsufficientTrainingData("no listings with salary to train on", nil)
	}

	docs := make([]string, len(labeled))
	for i, l := range labeled {
		docs[i] = strings.Join(l.Keywords, " ")
	}
	vec := newTFIDF(p.minDF, p.stopwords)
	vec.fit(docs)
	if len(vec.terms) == 0 {
		return nil, nil, errors.InsufficientTrainingData("keyword vocabulary is empty", nil)
	}

	text := vec.transform(docs)
	enc := &oneHot{}
	enc.fit(labeled)

	var train mat.Dense
	train.Augment(text, enc.transform(labeled))

	model := &ridge{alpha: p.alpha}
	if err := model.fit(&train, targets); err != nil {
		return nil, nil, errors.InsufficientTrainingData("failed to fit salary model", err)
	}

	report := &models.PredictionReport{
		Labeled:    len(labeled),
		Imputed:    len(unlabeled),
		Vocabulary: len(vec.terms),
		TopTerms:   vec.topTerms(text, topTermCount),
	}

	out := append([]models.Listing(nil), listings...)
	if len(unlabeled) > 0 {
		rows := make([]models.Listing, len(unlabeled))
		descriptions := make([]string, len(unlabeled))
		for i, idx := range unlabeled {
			rows[i] = listings[idx]
			descriptions[i] = listings[idx].Description
		}

		var test mat.Dense
		test.Augment(vec.transform(descriptions), enc.transform(rows))
		preds := model.predict(&test)
		for i, idx := range unlabeled {
			out[idx].SalaryAverage = models.Float(preds[i])
		}

		report.Min = floats.Min(preds)
		report.Max = floats.Max(preds)
		report.Mean = stat.Mean(preds, nil)
	}

	p.logger.Info("imputed missing salaries",
		zap.Int("labeled", report.Labeled),
		zap.Int("imputed", report.Imputed),
		zap.Int("vocabulary", report.Vocabulary),
		zap.Float64("mean", report.Mean),
		zap.Strings("top_terms", report.TopTerms))

	return out, report, nil
}
