package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"hhresearch/common/telemetry"
	"hhresearch/services/research/internal/config"
	"hhresearch/services/research/internal/errors"
	"hhresearch/services/research/internal/models"

	"go.uber.org/zap"
)

var tracer = telemetry.GetTracer("hhresearch/research/api")

const maxBodySize = 4 << 20

// ListingSource is the remote vacancy API.
type ListingSource interface {
	SearchPage(ctx context.Context, q models.QuerySpec, page int) (*models.SearchPage, error)
	FetchListing(ctx context.Context, id string) ([]byte, error)
}

type hhClient struct {
	client    *http.Client
	logger    *zap.Logger
	baseURL   string
	userAgent string
}

func NewListingSource(logger *zap.Logger, config *config.Config) ListingSource {
	return &hhClient{
		client: &http.Client{
			Timeout: config.HHAPITimeout,
		},
		logger:    logger,
		baseURL:   config.HHAPIBaseURL,
		userAgent: config.HHUserAgent,
	}
}

func (c *hhClient) SearchPage(ctx context.Context, q models.QuerySpec, page int) (*models.SearchPage, error) {
	ctx, span := tracer.Start(ctx, "SearchPage")
	defer span.End()

	params := url.Values{}
	params.Set("text", q.Text)
	if q.Area != "" {
		params.Set("area", q.Area)
	}
	params.Set("page", strconv.Itoa(page))
	params.Set("per_page", strconv.Itoa(q.PerPage))

	reqURL := fmt.Sprintf("%s/vacancies?%s", c.baseURL, params.Encode())
	span.SetAttributes(
		telemetry.String("http.url", reqURL),
		telemetry.Int("search.page", page),
	)

	body, err := c.get(ctx, reqURL)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	var result struct {
		Items []struct {
			ID string `json:"id"`
		} `json:"items"`
		Found   int `json:"found"`
		Pages   int `json:"pages"`
		Page    int `json:"page"`
		PerPage int `json:"per_page"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		c.logger.Error("failed to decode search response", zap.Int("page", page), zap.Error(err))
		return nil, errors.Internal("decoding search response", err)
	}

	ids := make([]string, 0, len(result.Items))
	for _, item := range result.Items {
		if item.ID == "" {
			c.logger.Warn("search item without id", zap.Int("page", page))
			continue
		}
		ids = append(ids, item.ID)
	}

	span.SetAttributes(
		telemetry.Int("search.pages", result.Pages),
		telemetry.Int("search.found", result.Found),
		telemetry.Int("search.items", len(ids)),
	)
	c.logger.Debug("fetched search page",
		zap.Int("page", page),
		zap.Int("pages", result.Pages),
		zap.Int("items", len(ids)))

	return &models.SearchPage{
		IDs:     ids,
		Page:    result.Page,
		Pages:   result.Pages,
		Found:   result.Found,
		PerPage: result.PerPage,
	}, nil
}

func (c *hhClient) FetchListing(ctx context.Context, id string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "FetchListing")
	defer span.End()
	span.SetAttributes(telemetry.String("hh.vacancy.id", id))

	reqURL := fmt.Sprintf("%s/vacancies/%s", c.baseURL, url.PathEscape(id))
	body, err := c.get(ctx, reqURL)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(telemetry.Int("http.response_size", len(body)))
	return body, nil
}

func (c *hhClient) get(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, errors.Internal("creating request", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("HH-User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("request failed", zap.String("url", reqURL), zap.Error(err))
		return nil, errors.Unavailable("executing request", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Warn("failed to close response body", zap.Error(cerr))
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, errors.Unavailable("reading response", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, errors.NotFound(fmt.Sprintf("resource not found: %s", reqURL), nil)
	case resp.StatusCode == http.StatusForbidden:
		return nil, errors.Unauthorized("request forbidden by listing API", nil)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, errors.RateLimit("listing API rate limit exceeded", nil)
	default:
		c.logger.Warn("unexpected status code",
			zap.String("url", reqURL),
			zap.Int("status_code", resp.StatusCode))
		return nil, errors.Unavailable(fmt.Sprintf("unexpected status code: %d", resp.StatusCode), nil)
	}
}
