package predictor

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"hhresearch/services/research/internal/stopwords"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)

// tfidf is a term-frequency/inverse-document-frequency vectorizer with a
// sorted vocabulary, smoothed idf and L2-normalized rows.
type tfidf struct {
	minDF     int
	stopwords stopwords.Set

	terms []string
	index map[string]int
	idf   []float64
}

func newTFIDF(minDF int, stop stopwords.Set) *tfidf {
	return &tfidf{minDF: minDF, stopwords: stop}
}

func (v *tfidf) tokenize(doc string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(doc), -1)
	tokens := raw[:0]
	for _, tok := range raw {
		if !v.stopwords.Contains(tok) {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

func (v *tfidf) fit(docs []string) {
	df := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]struct{})
		for _, tok := range v.tokenize(doc) {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}

	v.terms = v.terms[:0]
	for term, n := range df {
		if n >= v.minDF {
			v.terms = append(v.terms, term)
		}
	}
	sort.Strings(v.terms)

	n := float64(len(docs))
	v.index = make(map[string]int, len(v.terms))
	v.idf = make([]float64, len(v.terms))
	for i, term := range v.terms {
		v.index[term] = i
		v.idf[i] = math.Log((1+n)/(1+float64(df[term]))) + 1
	}
}

// transform encodes docs against the fitted vocabulary. Out-of-vocabulary
// tokens are ignored and an all-unknown document stays a zero row.
func (v *tfidf) transform(docs []string) *mat.Dense {
	out := mat.NewDense(len(docs), len(v.terms), nil)
	row := make([]float64, len(v.terms))
	for i, doc := range docs {
		for j := range row {
			row[j] = 0
		}
		for _, tok := range v.tokenize(doc) {
			if j, ok := v.index[tok]; ok {
				row[j]++
			}
		}
		floats.Mul(row, v.idf)
		if norm := floats.Norm(row, 2); norm > 0 {
			floats.Scale(1/norm, row)
		}
		out.SetRow(i, row)
	}
	return out
}

func (v *tfidf) topTerms(x *mat.Dense, n int) []string {
	type mass struct {
		term  string
		value float64
	}
	masses := make([]mass, len(v.terms))
	for j, term := range v.terms {
		masses[j] = mass{term: term, value: floats.Sum(mat.Col(nil, j, x))}
	}
	sort.SliceStable(masses, func(i, j int) bool { return masses[i].value > masses[j].value })

	if len(masses) > n {
		masses = masses[:n]
	}
	top := make([]string, len(masses))
	for i, m := range masses {
		top[i] = m.term
	}
	return top
}
