package predictor

import (
	"sort"

	"hhresearch/services/research/internal/models"

	"gonum.org/v1/gonum/mat"
)

// oneHot encodes categorical fields as "<Field>=<value>" indicator columns.
type oneHot struct {
	features []string
	index    map[string]int
}

func categories(l models.Listing) []string {
	return []string{"Experience=" + l.ExperienceLevel, "Name=" + l.Title}
}

func (e *oneHot) fit(listings []models.Listing) {
	seen := make(map[string]struct{})
	e.features = e.features[:0]
	for _, l := range listings {
		for _, f := range categories(l) {
			if _, ok := seen[f]; !ok {
				seen[f] = struct{}{}
				e.features = append(e.features, f)
			}
		}
	}
	sort.Strings(e.features)

	e.index = make(map[string]int, len(e.features))
	for i, f := range e.features {
		e.index[f] = i
	}
}

// transform maps values unseen during fit to all-zero columns.
func (e *oneHot) transform(listings []models.Listing) *mat.Dense {
	out := mat.NewDense(len(listings), len(e.features), nil)
	for i, l := range listings {
		for _, f := range categories(l) {
			if j, ok := e.index[f]; ok {
				out.Set(i, j, 1)
			}
		}
	}
	return out
}
