package parser

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"hhresearch/services/research/internal/models"
)

type rawListing struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Employer *struct {
		Name string `json:"name"`
	} `json:"employer"`
	Salary *struct {
		From     *float64 `json:"from"`
		To       *float64 `json:"to"`
		Currency string   `json:"currency"`
		Gross    *bool    `json:"gross"`
	} `json:"salary"`
	Experience *struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"experience"`
	Description string `json:"description"`
	KeySkills   []struct {
		Name string `json:"name"`
	} `json:"key_skills"`
}

var (
	tagPattern        = regexp.MustCompile(`<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// ParseListing decodes a vacancy detail document. Salary bounds stay in the
// listing's own currency.
func ParseListing(raw []byte) (*models.Listing, error) {
	var r rawListing
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decoding listing: %w", err)
	}
	if r.ID == "" {
		return nil, fmt.Errorf("listing has no id")
	}
	if r.Name == "" {
		return nil, fmt.Errorf("listing %s has no name", r.ID)
	}

	listing := &models.Listing{
		ID:          r.ID,
		Title:       r.Name,
		Description: cleanDescription(r.Description),
		Keywords:    make([]string, 0, len(r.KeySkills)),
		FetchedAt:   time.Now().UTC(),
	}
	if r.Employer != nil {
		listing.Employer = r.Employer.Name
	}
	if r.Experience != nil {
		listing.ExperienceLevel = r.Experience.Name
	}
	for _, skill := range r.KeySkills {
		listing.Keywords = append(listing.Keywords, skill.Name)
	}

	if s := r.Salary; s != nil && (s.From != nil || s.To != nil) {
		listing.HasSalary = true
		listing.SalaryFrom = s.From
		listing.SalaryTo = s.To
		listing.Currency = s.Currency
		listing.Gross = s.Gross != nil && *s.Gross
	}
	if err := NormalizeSalary(listing); err != nil {
		return nil, err
	}

	return listing, nil
}

// NormalizeSalary orders the salary bounds and canonicalizes the currency
// code. It rejects a salary with no bounds or no currency.
func NormalizeSalary(l *models.Listing) error {
	if !l.HasSalary {
		if l.SalaryFrom != nil || l.SalaryTo != nil {
			return fmt.Errorf("listing %s has salary bounds but no salary flag", l.ID)
		}
		return nil
	}
	if l.SalaryFrom == nil && l.SalaryTo == nil {
		return fmt.Errorf("listing %s has a salary without bounds", l.ID)
	}
	l.Currency = strings.ToUpper(strings.TrimSpace(l.Currency))
	if l.Currency == "" {
		return fmt.Errorf("listing %s has a salary without currency", l.ID)
	}
	if l.SalaryFrom != nil && l.SalaryTo != nil && *l.SalaryFrom > *l.SalaryTo {
		l.SalaryFrom, l.SalaryTo = l.SalaryTo, l.SalaryFrom
	}
	return nil
}

func cleanDescription(html string) string {
	text := tagPattern.ReplaceAllString(html, " ")
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(text, " "))
}
