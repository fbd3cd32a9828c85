package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Wieedze/intuition-fee-proxy/internal/config"
	"github.com/Wieedze/intuition-fee-proxy/internal/events"
	"github.com/Wieedze/intuition-fee-proxy/internal/ledger"
	"github.com/Wieedze/intuition-fee-proxy/internal/proxy"
	"github.com/Wieedze/intuition-fee-proxy/internal/vault"
)

// Server exposes the proxy over HTTP: the four payment entry points, the
// read-only vault passthroughs, the admin setters and a websocket event
// feed. It plays the role the contract ABI plays on chain.
type Server struct {
	logger *zap.Logger
	cfg    config.ServerConfig

	proxy  *proxy.Proxy
	ledger *ledger.Ledger
	bus    *events.Bus

	router   *mux.Router
	server   *http.Server
	upgrader websocket.Upgrader
}

// Response is the common API response envelope.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Time    time.Time   `json:"time"`
}

// NewServer creates the API server.
func NewServer(logger *zap.Logger, cfg config.ServerConfig, px *proxy.Proxy, l *ledger.Ledger, bus *events.Bus) *Server {
	s := &Server{
		logger: logger,
		cfg:    cfg,
		proxy:  px,
		ledger: l,
		bus:    bus,
		router: mux.NewRouter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	s.routes()

	s.server = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.Use(s.authMiddleware)

	// Payment entry points.
	v1.HandleFunc("/atoms", s.handleCreateAtoms).Methods(http.MethodPost)
	v1.HandleFunc("/triples", s.handleCreateTriples).Methods(http.MethodPost)
	v1.HandleFunc("/deposit", s.handleDeposit).Methods(http.MethodPost)
	v1.HandleFunc("/deposits", s.handleDepositBatch).Methods(http.MethodPost)

	// Vault passthrough.
	v1.HandleFunc("/costs/atom", s.handleAtomCost).Methods(http.MethodGet)
	v1.HandleFunc("/costs/triple", s.handleTripleCost).Methods(http.MethodGet)
	v1.HandleFunc("/terms/{id}", s.handleIsTermCreated).Methods(http.MethodGet)
	v1.HandleFunc("/shares/{owner}/{term}/{curve}", s.handleSharesOf).Methods(http.MethodGet)

	// Fee schedule and quotes.
	v1.HandleFunc("/fees", s.handleFees).Methods(http.MethodGet)
	v1.HandleFunc("/fees/quote", s.handleFeeQuote).Methods(http.MethodGet)
	v1.HandleFunc("/fees/collections", s.handleFeeCollections).Methods(http.MethodGet)

	// Ledger queries and funding.
	v1.HandleFunc("/balances/{address}", s.handleBalance).Methods(http.MethodGet)

	// Admin-gated configuration.
	v1.HandleFunc("/admin/fees/fixed", s.handleSetFixedFee).Methods(http.MethodPut)
	v1.HandleFunc("/admin/fees/percentage", s.handleSetPercentageFee).Methods(http.MethodPut)
	v1.HandleFunc("/admin/fees/recipient", s.handleSetRecipient).Methods(http.MethodPut)
	v1.HandleFunc("/admin/admins", s.handleListAdmins).Methods(http.MethodGet)
	v1.HandleFunc("/admin/admins/{address}", s.handleSetAdmin).Methods(http.MethodPut)
	v1.HandleFunc("/admin/mint", s.handleMint).Methods(http.MethodPost)

	// Event feed.
	v1.HandleFunc("/ws", s.handleWebsocket).Methods(http.MethodGet)
}

// Handler returns the HTTP handler, used directly by tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("API server listening", zap.String("addr", s.cfg.ListenAddr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Response{
		Success: status < http.StatusBadRequest,
		Data:    data,
		Time:    time.Now().UTC(),
	})
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Response{
		Success: false,
		Error:   msg,
		Time:    time.Now().UTC(),
	})
}

// writeProxyError maps the proxy and vault error taxonomy onto HTTP status
// codes. Vault error text reaches the caller unmodified.
func (s *Server) writeProxyError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, proxy.ErrInsufficientValue),
		errors.Is(err, vault.ErrInsufficientValue),
		errors.Is(err, ledger.ErrInsufficientFunds):
		status = http.StatusPaymentRequired
	case errors.Is(err, proxy.ErrWrongArrayLengths),
		errors.Is(err, vault.ErrWrongArrayLengths),
		errors.Is(err, proxy.ErrZeroAddress),
		errors.Is(err, proxy.ErrFeePercentageTooHigh),
		errors.Is(err, proxy.ErrNegativeFixedFee):
		status = http.StatusBadRequest
	case errors.Is(err, proxy.ErrNotWhitelistedAdmin):
		status = http.StatusForbidden
	case errors.Is(err, vault.ErrTermNotFound):
		status = http.StatusNotFound
	case errors.Is(err, vault.ErrTermExists),
		errors.Is(err, vault.ErrSlippage):
		status = http.StatusConflict
	case errors.Is(err, proxy.ErrTransferFailed):
		status = http.StatusBadGateway
	}
	s.writeError(w, status, err.Error())
}
