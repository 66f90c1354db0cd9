package models

import (
	"encoding/json"
	"time"
)

// Listing is one vacancy. Salary bounds are in the listing's own currency
// until the collector scales them into the base currency.
type Listing struct {
	ID              string    `json:"id"`
	Employer        string    `json:"employer"`
	HasSalary       bool      `json:"has_salary"`
	SalaryFrom      *float64  `json:"salary_from,omitempty"`
	SalaryTo        *float64  `json:"salary_to,omitempty"`
	Currency        string    `json:"currency,omitempty"`
	Gross           bool      `json:"gross,omitempty"`
	ExperienceLevel string    `json:"experience_level"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Keywords        []string  `json:"keywords"`
	SalaryAverage   *float64  `json:"salary_average,omitempty"`
	FetchedAt       time.Time `json:"fetched_at"`
}

func (l Listing) MarshalBinary() ([]byte, error) {
	return json.Marshal(l)
}

func (l *Listing) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, l)
}

func (l Listing) Average() (float64, bool) {
	switch {
	case l.SalaryFrom != nil && l.SalaryTo != nil:
		return (*l.SalaryFrom + *l.SalaryTo) / 2, true
	case l.SalaryFrom != nil:
		return *l.SalaryFrom, true
	case l.SalaryTo != nil:
		return *l.SalaryTo, true
	default:
		return 0, false
	}
}

// Scaled returns a copy with both salary bounds multiplied by m.
func (l Listing) Scaled(m float64) Listing {
	out := l
	if l.SalaryFrom != nil {
		v := *l.SalaryFrom * m
		out.SalaryFrom = &v
	}
	if l.SalaryTo != nil {
		v := *l.SalaryTo * m
		out.SalaryTo = &v
	}
	return out
}

func Float(v float64) *float64 {
	return &v
}
