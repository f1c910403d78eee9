package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/miradorstack/mirador-sentinel/internal/cache"
)

// Sample is a single labelled scalar returned by an instant query.
type Sample struct {
	Labels map[string]string `json:"labels,omitempty"`
	Value  float64           `json:"value"`
}

// Series is the ordered result of an instant query. It may be empty;
// callers treat an empty series as "unknown" rather than zero.
type Series []Sample

// Scalar returns the first value in the series, or false when empty.
func (s Series) Scalar() (float64, bool) {
	if len(s) == 0 {
		return 0, false
	}
	return s[0].Value, true
}

// QueryError reports a metrics backend failure for a specific expression.
// Callers are expected to skip the affected rule, never to abort the pass.
type QueryError struct {
	Expr string
	Err  error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query %q: %v", e.Expr, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// PromClient queries a Prometheus-compatible instant query API.
type PromClient struct {
	baseURL     string
	queryPath   string
	httpClient  *http.Client
	cache       cache.Provider
	baselineTTL time.Duration
}

// NewPromClient constructs a client targeting the configured backend.
// Baseline query results are cached through the provider when a positive
// TTL is supplied; historical values do not change between passes.
func NewPromClient(baseURL, queryPath string, timeout time.Duration, cacheProvider cache.Provider, baselineTTL time.Duration) *PromClient {
	if queryPath == "" {
		queryPath = "/api/v1/query"
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if cacheProvider == nil {
		cacheProvider = cache.NoopProvider{}
	}
	return &PromClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		queryPath:   "/" + strings.TrimLeft(queryPath, "/"),
		httpClient:  &http.Client{Timeout: timeout},
		cache:       cacheProvider,
		baselineTTL: baselineTTL,
	}
}

// Query evaluates the expression and returns its result series. An empty
// result is not an error.
func (c *PromClient) Query(ctx context.Context, expr string) (Series, error) {
	if c == nil || c.baseURL == "" {
		return nil, &QueryError{Expr: expr, Err: fmt.Errorf("metrics backend not configured")}
	}

	endpoint := c.baseURL + c.queryPath + "?query=" + url.QueryEscape(expr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &QueryError{Expr: expr, Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &QueryError{Expr: expr, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &QueryError{Expr: expr, Err: fmt.Errorf("metrics backend returned %s", resp.Status)}
	}

	var response struct {
		Status string `json:"status"`
		Data   struct {
			ResultType string          `json:"resultType"`
			Result     json.RawMessage `json:"result"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, &QueryError{Expr: expr, Err: fmt.Errorf("decode response: %w", err)}
	}
	if response.Status != "success" {
		return nil, &QueryError{Expr: expr, Err: fmt.Errorf("metrics backend status %q", response.Status)}
	}

	series, err := parseResult(response.Data.ResultType, response.Data.Result)
	if err != nil {
		return nil, &QueryError{Expr: expr, Err: err}
	}
	return series, nil
}

// QueryBaseline evaluates a historical expression, consulting the cache
// first. Cache failures degrade to a direct query.
func (c *PromClient) QueryBaseline(ctx context.Context, expr string) (Series, error) {
	if c.baselineTTL <= 0 {
		return c.Query(ctx, expr)
	}

	key := "sentinel:baseline:v1:" + expr
	if cached, err := c.cache.Get(ctx, key); err == nil {
		var series Series
		if unmarshalErr := json.Unmarshal(cached, &series); unmarshalErr == nil {
			return series, nil
		}
	}

	series, err := c.Query(ctx, expr)
	if err != nil {
		return nil, err
	}

	if payload, marshalErr := json.Marshal(series); marshalErr == nil {
		_ = c.cache.Set(ctx, key, payload, c.baselineTTL)
	}
	return series, nil
}

func parseResult(resultType string, raw json.RawMessage) (Series, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	switch resultType {
	case "scalar":
		var value promValue
		if err := json.Unmarshal(raw, &value); err != nil {
			return nil, fmt.Errorf("parse scalar result: %w", err)
		}
		v, err := value.float()
		if err != nil {
			return nil, err
		}
		return Series{{Value: v}}, nil
	default:
		var vector []struct {
			Metric map[string]string `json:"metric"`
			Value  promValue         `json:"value"`
		}
		if err := json.Unmarshal(raw, &vector); err != nil {
			return nil, fmt.Errorf("parse vector result: %w", err)
		}
		series := make(Series, 0, len(vector))
		for _, entry := range vector {
			v, err := entry.Value.float()
			if err != nil {
				return nil, err
			}
			series = append(series, Sample{Labels: entry.Metric, Value: v})
		}
		return series, nil
	}
}

// promValue is the [timestamp, "number"] pair used by the instant query API.
type promValue [2]json.RawMessage

func (p promValue) float() (float64, error) {
	if p[1] == nil {
		return 0, fmt.Errorf("missing sample value")
	}
	var text string
	if err := json.Unmarshal(p[1], &text); err != nil {
		return 0, fmt.Errorf("parse sample value: %w", err)
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, fmt.Errorf("parse sample value %q: %w", text, err)
	}
	return v, nil
}
