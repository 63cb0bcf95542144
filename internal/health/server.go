package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

type Checker struct {
	DBPing  func(ctx context.Context) error
	RPCPing func(ctx context.Context) error
}

// Handler returns the /healthz handler; Metrics, if set, is mounted at /metrics.
func Handler(checker Checker, metrics http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := map[string]string{"status": "ok"}
		code := http.StatusOK

		if checker.DBPing != nil {
			if err := checker.DBPing(ctx); err != nil {
				status["db"] = "fail"
				code = http.StatusServiceUnavailable
			} else {
				status["db"] = "ok"
			}
		}
		if checker.RPCPing != nil {
			if err := checker.RPCPing(ctx); err != nil {
				status["rpc"] = "fail"
				status["rpc_error"] = err.Error()
				code = http.StatusServiceUnavailable
			} else {
				status["rpc"] = "ok"
			}
		}
		if code != http.StatusOK {
			status["status"] = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(status)
	})
	if metrics != nil {
		mux.Handle("/metrics", metrics)
	}
	return mux
}

// Serve starts an HTTP server for Handler in the background.
func Serve(addr string, checker Checker, metrics http.Handler) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           Handler(checker, metrics),
		ReadHeaderTimeout: 3 * time.Second,
	}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

// Shutdown gracefully shuts down the health server.
func Shutdown(ctx context.Context, srv *http.Server) error {
	return srv.Shutdown(ctx)
}
