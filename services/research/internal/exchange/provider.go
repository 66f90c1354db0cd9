package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"hhresearch/common/telemetry"
	"hhresearch/services/research/internal/config"
	"hhresearch/services/research/internal/errors"
	"hhresearch/services/research/internal/models"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

var tracer = telemetry.GetTracer("hhresearch/research/exchange")

// RateProvider resolves conversion multipliers into the base currency.
type RateProvider interface {
	FetchRates(ctx context.Context, requested []string) (models.RateTable, error)
}

// Provider reads an exchangerate-api style endpoint, which quotes units of
// each currency per one unit of the base currency.
type Provider struct {
	client  *fasthttp.Client
	logger  *zap.Logger
	baseURL string
	base    string
	timeout time.Duration
}

var _ RateProvider = (*Provider)(nil)

func NewProvider(logger *zap.Logger, config *config.Config) *Provider {
	return &Provider{
		client: &fasthttp.Client{
			ReadTimeout:  config.RatesTimeout,
			WriteTimeout: config.RatesTimeout,
		},
		logger:  logger,
		baseURL: config.RatesAPIBaseURL,
		base:    models.CanonicalCurrency(config.RatesBaseCurrency),
		timeout: config.RatesTimeout,
	}
}

func (p *Provider) FetchRates(ctx context.Context, requested []string) (models.RateTable, error) {
	ctx, span := tracer.Start(ctx, "FetchRates")
	defer span.End()
	span.SetAttributes(telemetry.String("rates.requested", strings.Join(requested, ",")))

	if err := ctx.Err(); err != nil {
		return nil, errors.ExchangeUnavailable("fetching rates", err)
	}

	timeout := p.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	reqURL := fmt.Sprintf("%s/latest/%s", p.baseURL, p.base)
	// fasthttp has no context support, so the request runs aside and is
	// abandoned on cancellation.
	done := make(chan ratesResponse, 1)
	go func() { done <- p.get(reqURL, timeout) }()

	var res ratesResponse
	select {
	case res = <-done:
	case <-ctx.Done():
		span.RecordError(ctx.Err())
		p.logger.Warn("rates request cancelled", zap.String("url", reqURL), zap.Error(ctx.Err()))
		return nil, errors.ExchangeUnavailable("requesting rates", ctx.Err())
	}

	if res.err != nil {
		span.RecordError(res.err)
		p.logger.Error("rates request failed", zap.String("url", reqURL), zap.Error(res.err))
		return nil, errors.ExchangeUnavailable("requesting rates", res.err)
	}

	span.SetAttributes(telemetry.Int("http.status_code", res.status))
	if res.status != fasthttp.StatusOK {
		p.logger.Error("unexpected rates status", zap.Int("status_code", res.status))
		return nil, errors.ExchangeUnavailable(fmt.Sprintf("unexpected status code: %d", res.status), nil)
	}

	var payload struct {
		Base  string             `json:"base"`
		Rates map[string]float64 `json:"rates"`
	}
	if err := json.Unmarshal(res.body, &payload); err != nil {
		return nil, errors.ExchangeUnavailable("decoding rates", err)
	}

	table, err := p.buildTable(payload.Rates, requested)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	p.logger.Info("fetched exchange rates",
		zap.String("base", p.base),
		zap.Int("currencies", len(table)))
	return table, nil
}

type ratesResponse struct {
	status int
	body   []byte
	err    error
}

func (p *Provider) get(reqURL string, timeout time.Duration) ratesResponse {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(reqURL)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", "application/json")

	if err := p.client.DoTimeout(req, resp, timeout); err != nil {
		return ratesResponse{err: err}
	}
	return ratesResponse{
		status: resp.StatusCode(),
		body:   append([]byte(nil), resp.Body()...),
	}
}

func (p *Provider) buildTable(quotes map[string]float64, requested []string) (models.RateTable, error) {
	table := models.RateTable{p.base: 1}
	var missing []string
	for _, code := range requested {
		iso := models.CanonicalCurrency(code)
		if iso == p.base {
			continue
		}
		quote, ok := quotes[iso]
		if !ok || quote <= 0 {
			missing = append(missing, code)
			continue
		}
		table[iso] = 1 / quote
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, errors.ExchangeUnavailable(fmt.Sprintf("no rate for %s", strings.Join(missing, ", ")), nil)
	}
	return table, nil
}
