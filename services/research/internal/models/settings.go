package models

import (
	"fmt"
	"regexp"
	"strings"

	"hhresearch/services/research/internal/errors"
)

const (
	maxPerPage = 100
	MaxWorkers = 64
)

var currencyCodePattern = regexp.MustCompile(`^[A-Z]{3}$`)

// QuerySpec is the collector's immutable input.
type QuerySpec struct {
	Text       string
	Area       string
	PerPage    int
	MaxWorkers int
	Refresh    bool
}

func (q QuerySpec) Validate() error {
	if strings.TrimSpace(q.Text) == "" {
		return errors.InvalidInput("query text is required", nil)
	}
	if q.PerPage < 1 || q.PerPage > maxPerPage {
		return errors.InvalidInput(fmt.Sprintf("per_page must be within 1..%d, got %d", maxPerPage, q.PerPage), nil)
	}
	if q.MaxWorkers < 1 || q.MaxWorkers > MaxWorkers {
		return errors.InvalidInput(fmt.Sprintf("max_workers must be within 1..%d, got %d", MaxWorkers, q.MaxWorkers), nil)
	}
	return nil
}

// Settings is the validated input of one research run.
type Settings struct {
	Query      string   `json:"query"`
	Area       string   `json:"area,omitempty"`
	PerPage    int      `json:"per_page"`
	Refresh    bool     `json:"refresh"`
	MaxWorkers int      `json:"max_workers"`
	Currencies []string `json:"currencies"`
	Predict    bool     `json:"predict"`
}

func (s Settings) Validate() error {
	if err := s.Spec().Validate(); err != nil {
		return err
	}
	if len(s.Currencies) == 0 {
		return errors.InvalidInput("at least one currency is required", nil)
	}
	for _, code := range s.Currencies {
		if !currencyCodePattern.MatchString(code) {
			return errors.InvalidInput(fmt.Sprintf("invalid currency code %q", code), nil)
		}
	}
	return nil
}

// Spec returns the collector query for these settings.
func (s Settings) Spec() QuerySpec {
	return QuerySpec{
		Text:       strings.TrimSpace(s.Query),
		Area:       s.Area,
		PerPage:    s.PerPage,
		MaxWorkers: s.MaxWorkers,
		Refresh:    s.Refresh,
	}
}

// SettingsPatch carries caller overrides; nil fields keep the base value.
type SettingsPatch struct {
	Query      *string  `json:"query,omitempty"`
	Area       *string  `json:"area,omitempty"`
	PerPage    *int     `json:"per_page,omitempty"`
	Refresh    *bool    `json:"refresh,omitempty"`
	MaxWorkers *int     `json:"max_workers,omitempty"`
	Currencies []string `json:"currencies,omitempty"`
	Predict    *bool    `json:"predict,omitempty"`
}

func (p SettingsPatch) Apply(base Settings) Settings {
	out := base
	out.Currencies = append([]string(nil), base.Currencies...)
	if p.Query != nil {
		out.Query = *p.Query
	}
	if p.Area != nil {
		out.Area = *p.Area
	}
	if p.PerPage != nil {
		out.PerPage = *p.PerPage
	}
	if p.Refresh != nil {
		out.Refresh = *p.Refresh
	}
	if p.MaxWorkers != nil {
		out.MaxWorkers = *p.MaxWorkers
	}
	if len(p.Currencies) > 0 {
		out.Currencies = make([]string, 0, len(p.Currencies))
		for _, c := range p.Currencies {
			out.Currencies = append(out.Currencies, strings.ToUpper(strings.TrimSpace(c)))
		}
	}
	if p.Predict != nil {
		out.Predict = *p.Predict
	}
	return out
}
