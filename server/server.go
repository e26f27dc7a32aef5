package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"auto_social_publisher/compose"
)

// WebhookPath receives Telegram updates in webhook mode, under a secret
// trailing segment checked by the handler.
const WebhookPath = "/telegram/webhook"

// Deliveries lists recent journal entries. *journal.Store implements it.
type Deliveries interface {
	Recent(ctx context.Context, limit int) ([]compose.Record, error)
}

type Server struct {
	webhook    http.Handler
	gatherer   prometheus.Gatherer
	deliveries Deliveries
	apiToken   string
	logger     *slog.Logger
}

type Option func(*Server)

// WithWebhook mounts the Telegram update handler.
func WithWebhook(h http.Handler) Option { return func(s *Server) { s.webhook = h } }

// WithDeliveries exposes the journal under /api/deliveries to callers
// presenting "Authorization: Bearer <token>". An empty token leaves the
// endpoint unmounted.
func WithDeliveries(d Deliveries, token string) Option {
	return func(s *Server) { s.deliveries, s.apiToken = d, token }
}

func New(gatherer prometheus.Gatherer, logger *slog.Logger, opts ...Option) (*Server, error) {
	if gatherer == nil {
		return nil, errors.New("metrics gatherer required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{gatherer: gatherer, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	if s.webhook != nil {
		mux.Handle(WebhookPath+"/", s.webhook)
	}
	if s.deliveries != nil && s.apiToken != "" {
		mux.Handle("/api/deliveries", s.requireToken(http.HandlerFunc(s.handleDeliveries)))
	}
	return s.logMiddleware(mux)
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Routes(), ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.logger.Info("http server listening", "addr", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

type deliveryResp struct {
	FlowID    string     `json:"flow_id"`
	Kind      string     `json:"kind"`
	Op        string     `json:"op"`
	ReceiptID string     `json:"receipt_id"`
	URL       string     `json:"url,omitempty"`
	When      *time.Time `json:"when,omitempty"`
	Excerpt   string     `json:"excerpt"`
	CreatedAt time.Time  `json:"created_at"`
}

func (s *Server) handleDeliveries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	records, err := s.deliveries.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("list deliveries", "err", err)
		http.Error(w, "journal unavailable", http.StatusInternalServerError)
		return
	}
	out := make([]deliveryResp, 0, len(records))
	for _, rec := range records {
		d := deliveryResp{
			FlowID:    rec.FlowID,
			Kind:      rec.Kind,
			Op:        rec.Op,
			ReceiptID: rec.ReceiptID,
			URL:       rec.URL,
			Excerpt:   rec.Excerpt,
			CreatedAt: rec.CreatedAt,
		}
		if !rec.When.IsZero() {
			when := rec.When
			d.When = &when
		}
		out = append(out, d)
	}
	writeJSON(w, out)
}

// --- Helpers ---

func (s *Server) requireToken(next http.Handler) http.Handler {
	want := []byte("Bearer " + s.apiToken)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if subtle.ConstantTimeCompare([]byte(r.Header.Get("Authorization")), want) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("http request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "took", time.Since(start))
	})
}
