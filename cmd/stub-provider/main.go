// A stub email provider for local development. Speaks the same wire
// format as the real transactional endpoint (POST /email) and can inject
// latency and failures to exercise the worker's retry path.
package main

import (
	"encoding/json"
	"flag"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/newsletter/internal/pkg/logger"
)

type sendEmailRequest struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Subject  string `json:"subject"`
	HTMLBody string `json:"html_body"`
	TextBody string `json:"text_body"`
}

func main() {
	addr := flag.String("addr", ":8090", "listen address")
	token := flag.String("token", "stub-token", "expected X-Server-Token value")
	delay := flag.Duration("delay", 0, "artificial latency per send")
	failFirst := flag.Int("fail-first", 0, "respond 500 to the first N sends")
	flag.Parse()

	var calls atomic.Int64

	r := chi.NewRouter()
	r.Post("/email", func(w http.ResponseWriter, req *http.Request) {
		if req.Header.Get("X-Server-Token") != *token {
			http.Error(w, "invalid server token", http.StatusUnauthorized)
			return
		}

		var body sendEmailRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			http.Error(w, "malformed body", http.StatusBadRequest)
			return
		}

		if *delay > 0 {
			time.Sleep(*delay)
		}

		n := calls.Add(1)
		if n <= int64(*failFirst) {
			logger.Warn("stub provider injecting failure",
				"call", n, "to", body.To)
			http.Error(w, "injected failure", http.StatusInternalServerError)
			return
		}

		logger.Info("stub provider accepted email",
			"call", n, "to", body.To, "subject", body.Subject)
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte("ok"))
	})

	logger.Info("stub provider listening", "addr", *addr)
	if err := http.ListenAndServe(*addr, r); err != nil {
		logger.Error("stub provider exited", "error", err.Error())
	}
}
