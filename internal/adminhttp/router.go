// Package adminhttp is the gateway's thin operational HTTP surface:
// liveness/readiness, Prometheus metrics, an on-demand tick trigger, and a
// few operator one-shots (HEV probe, HTD account import, quarantine
// re-ingest, connection backup export/import). It is deliberately not a
// JSON account-management API: there are no routes to list, edit or delete
// connections, accounts, or payments.
package adminhttp

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	chiprometheus "github.com/766b/chi-prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/paynet/ebics-gateway/internal/account"
	"github.com/paynet/ebics-gateway/internal/connection"
	"github.com/paynet/ebics-gateway/internal/ebics/download"
	"github.com/paynet/ebics-gateway/internal/ebics/transport"
	"github.com/paynet/ebics-gateway/internal/ledger"
	"github.com/paynet/ebics-gateway/internal/scheduler"
	"github.com/paynet/ebics-gateway/pkg/clock"
	"github.com/paynet/ebics-gateway/pkg/log"
)

// Server is the admin HTTP server.
type Server struct {
	router      *chi.Mux
	scheduler   *scheduler.Scheduler
	logger      *zap.Logger
	handshake   *connection.HandshakeService
	importer    *account.Importer
	ingestion   *ledger.IngestionService
	connections connection.Repository
	clock       clock.Clock
}

// New builds the router: base middleware, CORS, Prometheus instrumentation,
// then the gateway's own routes.
func New(sched *scheduler.Scheduler, logger *zap.Logger) *Server {
	s := &Server{scheduler: sched, logger: logger, clock: clock.System{}}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
	}))
	r.Use(chiprometheus.NewMiddleware("ebics_gateway"))

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Handle("/metrics", promHandler())
	r.Post("/admin/tick", s.handleTick)
	r.Post("/admin/hosts/probe", s.handleProbe)
	r.Post("/admin/connections/{id}/import-accounts", s.handleImportAccounts)
	r.Post("/admin/connections/{id}/reingest-quarantined", s.handleReingestQuarantined)
	r.Get("/admin/connections/{id}/backup", s.handleExportBackup)
	r.Post("/admin/connections/import", s.handleImportBackup)

	s.router = r
	return s
}

// WithHandshake wires the HEV-probe admin route to a real handshake
// service.
func (s *Server) WithHandshake(h *connection.HandshakeService) *Server {
	s.handshake = h
	return s
}

// WithAccountImporter wires the HTD-based account-discovery admin route.
func (s *Server) WithAccountImporter(imp *account.Importer, connections connection.Repository) *Server {
	s.importer = imp
	s.connections = connections
	return s
}

// WithIngestion wires the quarantine-reingest admin route.
func (s *Server) WithIngestion(ing *ledger.IngestionService) *Server {
	s.ingestion = ing
	return s
}

// WithConnections wires the backup export/import admin routes. Safe to
// call alongside WithAccountImporter, which sets the same field.
func (s *Server) WithConnections(connections connection.Repository) *Server {
	s.connections = connections
	return s
}

// WithClock overrides the admin server's time source, mainly for tests of
// the backup-import route's CreatedAt stamping.
func (s *Server) WithClock(c clock.Clock) *Server {
	s.clock = c
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	otelhttp.NewHandler(s.router, "ebics-gateway.admin").ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleReadyz reports ready once a scheduler has been wired in; a
// gateway instance with no scheduler (e.g. worker-less deployments) is
// never considered ready for operator traffic.
func (s *Server) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	if s.scheduler == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

// handleTick runs one scheduler tick synchronously, for operators who
// want to force a submission/ingestion pass without waiting for the next
// interval (e.g. after fixing a connection's key material).
func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	s.scheduler.Tick(r.Context())
	w.WriteHeader(http.StatusAccepted)
}

type probeRequest struct {
	URL    string `json:"url"`
	HostID string `json:"host_id"`
}

// handleProbe queries a bank host's supported EBICS versions via HEV,
// without requiring a provisioned connection.
func (s *Server) handleProbe(w http.ResponseWriter, r *http.Request) {
	if s.handshake == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	var req probeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	versions, err := s.handshake.Probe(r.Context(), req.URL, req.HostID)
	if err != nil {
		w.WriteHeader(http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(versions)
}

// handleImportAccounts runs HTD against connectionID and upserts any newly
// discovered accounts. Operator-triggered only, never part of the
// scheduler's regular tick.
func (s *Server) handleImportAccounts(w http.ResponseWriter, r *http.Request) {
	if s.importer == nil || s.connections == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	id := chi.URLParam(r, "id")
	ctx := r.Context()

	c, err := s.connections.Get(ctx, id)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if !c.Ready() {
		w.WriteHeader(http.StatusConflict)
		return
	}

	now := s.clock.Now()
	client := transport.New(c.URL)
	sub := download.Subscriber{
		HostID:    c.HostID,
		PartnerID: c.PartnerID,
		UserID:    c.UserID,
		AuthPriv:  c.Keys.Authentication,
		EncPriv:   c.Keys.Encryption,
	}

	result, err := download.Fetch(ctx, client, sub, "HTD", nil, now)
	if err != nil {
		w.WriteHeader(http.StatusBadGateway)
		return
	}

	accounts, err := s.importer.Import(ctx, id, result, now)
	if err != nil {
		w.WriteHeader(http.StatusUnprocessableEntity)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(accounts)
}

// handleReingestQuarantined retries ISO 20022 parsing for every raw message
// quarantined for this connection.
func (s *Server) handleReingestQuarantined(w http.ResponseWriter, r *http.Request) {
	if s.ingestion == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	id := chi.URLParam(r, "id")
	n, err := s.ingestion.ReingestQuarantined(r.Context(), id, s.clock.Now())
	if err != nil {
		w.WriteHeader(http.StatusUnprocessableEntity)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]int{"reingested": n})
}

// handleExportBackup encrypts connectionID's private key material under
// the passphrase supplied via the X-Backup-Passphrase header and returns
// the resulting JSON blob.
func (s *Server) handleExportBackup(w http.ResponseWriter, r *http.Request) {
	if s.connections == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	passphrase := r.Header.Get("X-Backup-Passphrase")
	if passphrase == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	id := chi.URLParam(r, "id")
	c, err := s.connections.Get(r.Context(), id)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	data, err := connection.ExportBackup(c, passphrase)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

// handleImportBackup decrypts a backup blob under the passphrase supplied
// via the X-Backup-Passphrase header and saves the recreated connection.
func (s *Server) handleImportBackup(w http.ResponseWriter, r *http.Request) {
	if s.connections == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	passphrase := r.Header.Get("X-Backup-Passphrase")
	if passphrase == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	c, err := connection.ImportBackup(data, passphrase, s.clock.Now())
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := s.connections.Save(r.Context(), c); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
}

func promHandler() http.Handler {
	return promhttp.Handler()
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := log.WithLogger(r.Context(), logger)
			next.ServeHTTP(w, r.WithContext(ctx))
			logger.Info("admin request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
