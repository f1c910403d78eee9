package probe

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/miradorstack/mirador-sentinel/internal/config"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func testService() config.ServiceConfig {
	return config.ServiceConfig{
		Name:      "order-service",
		HealthURL: "http://order-service.internal/health",
	}
}

func TestCheckHealthyService(t *testing.T) {
	checker := NewChecker(time.Second)
	checker.httpClient = &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.URL.String() != "http://order-service.internal/health" {
			t.Fatalf("unexpected URL: %s", req.URL)
		}
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(bytes.NewReader([]byte(`{"status":"healthy"}`))),
			Header:     make(http.Header),
		}, nil
	})}

	result := checker.Check(context.Background(), testService())
	if !result.Healthy {
		t.Fatalf("expected healthy, got %+v", result)
	}
	if result.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status code: %d", result.StatusCode)
	}
	if result.Error != "" {
		t.Fatalf("unexpected error: %s", result.Error)
	}
}

func TestCheckDegradedSelfReportIsUnhealthy(t *testing.T) {
	checker := NewChecker(time.Second)
	checker.httpClient = &http.Client{Transport: roundTripFunc(func(_ *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(bytes.NewReader([]byte(`{"status":"degraded"}`))),
			Header:     make(http.Header),
		}, nil
	})}

	result := checker.Check(context.Background(), testService())
	if result.Healthy {
		t.Fatal("expected 200 with degraded self-report to be unhealthy")
	}
	if !strings.Contains(result.Error, "degraded") {
		t.Fatalf("expected self-reported status in error, got %q", result.Error)
	}
}

func TestCheckNon200IsUnhealthy(t *testing.T) {
	checker := NewChecker(time.Second)
	checker.httpClient = &http.Client{Transport: roundTripFunc(func(_ *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusServiceUnavailable,
			Status:     "503 Service Unavailable",
			Body:       io.NopCloser(bytes.NewReader(nil)),
			Header:     make(http.Header),
		}, nil
	})}

	result := checker.Check(context.Background(), testService())
	if result.Healthy {
		t.Fatal("expected unhealthy")
	}
	if result.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("unexpected status code: %d", result.StatusCode)
	}
}

func TestCheckTransportErrorIsCaptured(t *testing.T) {
	checker := NewChecker(time.Second)
	checker.httpClient = &http.Client{Transport: roundTripFunc(func(_ *http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})}

	result := checker.Check(context.Background(), testService())
	if result.Healthy {
		t.Fatal("expected unhealthy")
	}
	if !strings.Contains(result.Error, "connection refused") {
		t.Fatalf("expected transport error to be captured, got %q", result.Error)
	}
}
