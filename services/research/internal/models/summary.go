package models

import "fmt"

type SearchPage struct {
	IDs     []string
	Page    int
	Pages   int
	Found   int
	PerPage int
}

type FetchReport struct {
	Found       int `json:"found"`
	FromCache   int `json:"from_cache"`
	Fetched     int `json:"fetched"`
	Failed      int `json:"failed"`
	Dropped     int `json:"dropped"`
	CacheErrors int `json:"cache_errors"`
}

func (r FetchReport) String() string {
	return fmt.Sprintf("%d of %d listings failed, %d dropped for unknown currency", r.Failed, r.Found, r.Dropped)
}

// Collection is the collector's output, sorted by listing id.
type Collection struct {
	Listings []Listing
	Report   FetchReport
}

func (c *Collection) Empty() bool {
	return c == nil || len(c.Listings) == 0
}

type TermCount struct {
	Term  string `json:"term"`
	Count int    `json:"count"`
}

type SalaryStats struct {
	Max     float64 `json:"max"`
	Min     float64 `json:"min"`
	Mean    float64 `json:"mean"`
	Median  float64 `json:"median"`
	Samples int     `json:"samples"`
}

// AnalysisSummary is nil-Salary when no listing carried a salary bound.
type AnalysisSummary struct {
	Count    int          `json:"count"`
	Salary   *SalaryStats `json:"salary,omitempty"`
	Keywords []TermCount  `json:"keywords"`
	Words    []TermCount  `json:"words"`
}

type PredictionReport struct {
	Labeled    int      `json:"labeled"`
	Imputed    int      `json:"imputed"`
	Vocabulary int      `json:"vocabulary"`
	Min        float64  `json:"min"`
	Mean       float64  `json:"mean"`
	Max        float64  `json:"max"`
	TopTerms   []string `json:"top_terms"`
}

const (
	LabelMax    = "Максимальная зарплата"
	LabelMin    = "Минимальная зарплата"
	LabelMean   = "Средняя зарплата"
	LabelMedian = "Медианная зарплата"
)

type Descriptor struct {
	Label    string  `json:"label"`
	Value    float64 `json:"value"`
	Currency string  `json:"currency"`
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s: %d %s", d.Label, int64(d.Value), d.Currency)
}

// Result statistics are nil when Found is false.
type Result struct {
	RunID           string             `json:"run_id"`
	Query           string             `json:"query"`
	Found           bool               `json:"found"`
	Count           int                `json:"count"`
	Max             *Descriptor        `json:"max,omitempty"`
	Min             *Descriptor        `json:"min,omitempty"`
	Mean            *Descriptor        `json:"mean,omitempty"`
	Median          *Descriptor        `json:"median,omitempty"`
	Keywords        []TermCount        `json:"keywords,omitempty"`
	Words           []TermCount        `json:"words,omitempty"`
	Report          FetchReport        `json:"report"`
	Prediction      *PredictionReport  `json:"prediction,omitempty"`
	PredictionError string             `json:"prediction_error,omitempty"`
	Imputed         map[string]float64 `json:"imputed,omitempty"`
}
