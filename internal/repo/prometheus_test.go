package repo

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"
)

func TestQueryParsesVectorResult(t *testing.T) {
	client := NewPromClient("https://prom.example.com", "/api/v1/query", time.Second, nil, 0)
	client.httpClient = newTestClient(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/api/v1/query" {
			t.Fatalf("unexpected path: %s", req.URL.Path)
		}
		if got := req.URL.Query().Get("query"); got != `up{service="checkout"}` {
			t.Fatalf("unexpected expression: %s", got)
		}
		body := `{"status":"success","data":{"resultType":"vector","result":[{"metric":{"service":"checkout"},"value":[1700000000,"0.9987"]}]}}`
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(bytes.NewReader([]byte(body))),
			Header:     make(http.Header),
		}, nil
	})

	series, err := client.Query(context.Background(), `up{service="checkout"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	value, ok := series.Scalar()
	if !ok {
		t.Fatal("expected a scalar value")
	}
	if value != 0.9987 {
		t.Fatalf("unexpected value: %v", value)
	}
	if series[0].Labels["service"] != "checkout" {
		t.Fatalf("unexpected labels: %+v", series[0].Labels)
	}
}

func TestQueryParsesScalarResult(t *testing.T) {
	client := NewPromClient("https://prom.example.com", "", time.Second, nil, 0)
	client.httpClient = newTestClient(func(_ *http.Request) (*http.Response, error) {
		body := `{"status":"success","data":{"resultType":"scalar","result":[1700000000,"42"]}}`
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(bytes.NewReader([]byte(body))),
			Header:     make(http.Header),
		}, nil
	})

	series, err := client.Query(context.Background(), "42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value, ok := series.Scalar(); !ok || value != 42 {
		t.Fatalf("unexpected scalar: %v %v", value, ok)
	}
}

func TestQueryEmptyResultIsNotAnError(t *testing.T) {
	client := NewPromClient("https://prom.example.com", "", time.Second, nil, 0)
	client.httpClient = newTestClient(func(_ *http.Request) (*http.Response, error) {
		body := `{"status":"success","data":{"resultType":"vector","result":[]}}`
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(bytes.NewReader([]byte(body))),
			Header:     make(http.Header),
		}, nil
	})

	series, err := client.Query(context.Background(), "absent_metric")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := series.Scalar(); ok {
		t.Fatal("expected empty series to report no scalar")
	}
}

func TestQuerySurfacesBackendErrorsAsQueryError(t *testing.T) {
	client := NewPromClient("https://prom.example.com", "", time.Second, nil, 0)
	client.httpClient = newTestClient(func(_ *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusBadGateway,
			Status:     "502 Bad Gateway",
			Body:       io.NopCloser(bytes.NewReader(nil)),
			Header:     make(http.Header),
		}, nil
	})

	_, err := client.Query(context.Background(), "up")
	if err == nil {
		t.Fatal("expected an error")
	}
	var queryErr *QueryError
	if !errors.As(err, &queryErr) {
		t.Fatalf("expected *QueryError, got %T", err)
	}
	if queryErr.Expr != "up" {
		t.Fatalf("unexpected expression in error: %s", queryErr.Expr)
	}
}

func TestQueryBaselineCachesResults(t *testing.T) {
	hits := 0
	cacheStub := newStubCache()
	client := NewPromClient("https://prom.example.com", "", time.Second, cacheStub, time.Minute)
	client.httpClient = newTestClient(func(_ *http.Request) (*http.Response, error) {
		hits++
		body := `{"status":"success","data":{"resultType":"vector","result":[{"metric":{},"value":[1700000000,"10"]}]}}`
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(bytes.NewReader([]byte(body))),
			Header:     make(http.Header),
		}, nil
	})

	ctx := context.Background()
	expr := `sum(rate(http_requests_total{service="checkout"}[5m] offset 1h))`

	first, err := client.QueryBaseline(ctx, expr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hits != 1 {
		t.Fatalf("expected one upstream request, got %d", hits)
	}

	second, err := client.QueryBaseline(ctx, expr)
	if err != nil {
		t.Fatalf("unexpected cached error: %v", err)
	}
	if hits != 1 {
		t.Fatalf("cache miss triggered network call; hits=%d", hits)
	}

	firstValue, _ := first.Scalar()
	secondValue, _ := second.Scalar()
	if firstValue != 10 || secondValue != 10 {
		t.Fatalf("unexpected values: %v %v", firstValue, secondValue)
	}
}
