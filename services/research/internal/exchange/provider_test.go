package exchange

import (
	"context"
	stderrors "errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"hhresearch/services/research/internal/config"
	"hhresearch/services/research/internal/errors"

	"go.uber.org/zap"
)

const ratesBody = `{"base":"RUB","date":"2024-03-01","rates":{"RUB":1,"USD":0.012641,"EUR":0.010831,"UAH":0.35902,"KZT":0}}`

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewProvider(zap.NewNop(), &config.Config{
		RatesAPIBaseURL:   srv.URL,
		RatesBaseCurrency: "RUB",
		RatesTimeout:      2 * time.Second,
	})
}

func TestFetchRatesInvertsQuotes(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/latest/RUB" {
			t.Errorf("got path %s, want /latest/RUB", r.URL.Path)
		}
		fmt.Fprint(w, ratesBody)
	})

	table, err := p.FetchRates(context.Background(), []string{"RUR", "USD", "EUR", "UAH"})
	if err != nil {
		t.Fatalf("FetchRates: %v", err)
	}

	if table["RUB"] != 1 {
		t.Errorf("got base multiplier %v, want 1", table["RUB"])
	}
	if m, ok := table.Multiplier("RUR"); !ok || m != 1 {
		t.Errorf("RUR: got (%v, %v), want (1, true)", m, ok)
	}
	if got, want := table["USD"], 1/0.012641; math.Abs(got-want) > 1e-9 {
		t.Errorf("USD: got %v, want %v", got, want)
	}
	if len(table) != 4 {
		t.Errorf("got %d entries, want 4", len(table))
	}
}

func TestFetchRatesMissingCode(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"base":"RUB","rates":{"USD":0.012641}}`)
	})

	_, err := p.FetchRates(context.Background(), []string{"USD", "EUR"})
	if !errors.IsType(err, errors.ErrTypeExchangeUnavailable) {
		t.Fatalf("got %v, want EXCHANGE_UNAVAILABLE", err)
	}
}

func TestFetchRatesRejectsNonPositiveQuote(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, ratesBody)
	})

	if _, err := p.FetchRates(context.Background(), []string{"KZT"}); !errors.IsType(err, errors.ErrTypeExchangeUnavailable) {
		t.Errorf("got %v, want EXCHANGE_UNAVAILABLE", err)
	}
}

func TestFetchRatesUpstreamFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) }},
		{"bad json", func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, `{"rates":`) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProvider(t, tt.handler)
			if _, err := p.FetchRates(context.Background(), []string{"USD"}); !errors.IsType(err, errors.ErrTypeExchangeUnavailable) {
				t.Errorf("got %v, want EXCHANGE_UNAVAILABLE", err)
			}
		})
	}
}

func TestFetchRatesUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p := NewProvider(zap.NewNop(), &config.Config{RatesAPIBaseURL: url, RatesBaseCurrency: "RUB", RatesTimeout: time.Second})
	if _, err := p.FetchRates(context.Background(), []string{"USD"}); !errors.IsType(err, errors.ErrTypeExchangeUnavailable) {
		t.Errorf("got %v, want EXCHANGE_UNAVAILABLE", err)
	}
}

func TestFetchRatesCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
			fmt.Fprint(w, ratesBody)
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	p := NewProvider(zap.NewNop(), &config.Config{RatesAPIBaseURL: srv.URL, RatesBaseCurrency: "RUB", RatesTimeout: 5 * time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	table, err := p.FetchRates(ctx, []string{"USD"})
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("cancellation took %v", elapsed)
	}
	if table != nil {
		t.Errorf("got table %v, want none", table)
	}
	if !errors.IsType(err, errors.ErrTypeExchangeUnavailable) || !stderrors.Is(err, context.Canceled) {
		t.Errorf("got %v, want EXCHANGE_UNAVAILABLE wrapping context.Canceled", err)
	}
}
