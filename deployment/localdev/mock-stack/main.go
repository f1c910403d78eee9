// mock-stack is a local development stand-in for the sentinel's external
// dependencies: a Prometheus query API, service health endpoints, and
// notification webhook receivers that log whatever they are sent.
//
// Toggle a simulated outage with:
//
//	curl -X POST 'localhost:9090/toggle?service=order-service'
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"
)

type serviceState struct {
	mu   sync.Mutex
	down map[string]bool
}

func (s *serviceState) isDown(service string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.down[service]
}

func (s *serviceState) toggle(service string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down[service] = !s.down[service]
	return s.down[service]
}

func main() {
	state := &serviceState{down: make(map[string]bool)}
	logger := log.New(log.Writer(), "mock-stack ", log.LstdFlags|log.Lmicroseconds)

	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/query", func(w http.ResponseWriter, r *http.Request) {
		expr := r.URL.Query().Get("query")
		writeJSON(w, queryResponse(expr, state))
	})

	for _, service := range []string{"order-service", "checkout", "search"} {
		service := service
		mux.HandleFunc("/services/"+service+"/healthz", func(w http.ResponseWriter, _ *http.Request) {
			if state.isDown(service) {
				w.WriteHeader(http.StatusServiceUnavailable)
				writeJSON(w, map[string]string{"status": "unavailable"})
				return
			}
			writeJSON(w, map[string]string{"status": "healthy"})
		})
	}

	mux.HandleFunc("/toggle", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		service := r.URL.Query().Get("service")
		if service == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		down := state.toggle(service)
		logger.Printf("toggled %s down=%v", service, down)
		writeJSON(w, map[string]any{"service": service, "down": down})
	})

	// Webhook receivers standing in for PagerDuty and Slack.
	mux.HandleFunc("/pagerduty/v2/enqueue", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		logger.Printf("pagerduty event: %s", body)
		w.WriteHeader(http.StatusAccepted)
		writeJSON(w, map[string]string{"status": "success", "dedup_key": "mock"})
	})
	mux.HandleFunc("/slack/webhook", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		logger.Printf("slack message: %s", body)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:    ":9090",
		Handler: logRequests(logger, mux),
	}

	logger.Println("listening on :9090")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

// queryResponse fabricates a plausible instant vector for the expressions
// the sentinel issues. A downed service reports empty results, matching a
// target that has stopped being scraped.
func queryResponse(expr string, state *serviceState) map[string]any {
	service := extractServiceLabel(expr)
	if service != "" && state.isDown(service) {
		return vectorResult(nil)
	}

	var value float64
	switch {
	case strings.Contains(expr, "histogram_quantile"):
		value = 0.050 + rand.Float64()*0.200 // seconds
	case strings.Contains(expr, `code=~"5.."`):
		value = rand.Float64() * 0.5 // errors/s
	case strings.Contains(expr, `code!~"5.."`) && strings.Contains(expr, "/"):
		value = 0.995 + rand.Float64()*0.005 // availability ratio
	default:
		value = 50 + rand.Float64()*20 // request rate
	}
	if strings.Contains(expr, "offset") {
		value *= 0.9
	}

	return vectorResult(map[string]any{
		"metric": map[string]string{"service": service},
		"value":  []any{float64(time.Now().Unix()), fmt.Sprintf("%f", value)},
	})
}

func extractServiceLabel(expr string) string {
	const marker = `service="`
	i := strings.Index(expr, marker)
	if i < 0 {
		return ""
	}
	rest := expr[i+len(marker):]
	j := strings.Index(rest, `"`)
	if j < 0 {
		return ""
	}
	return rest[:j]
}

func vectorResult(sample map[string]any) map[string]any {
	result := []any{}
	if sample != nil {
		result = append(result, sample)
	}
	return map[string]any{
		"status": "success",
		"data": map[string]any{
			"resultType": "vector",
			"result":     result,
		},
	}
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
