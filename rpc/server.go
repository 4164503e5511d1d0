package rpc

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"matrixchain/core"
	"matrixchain/observability"
	"matrixchain/observability/logging"
	telemetry "matrixchain/observability/otel"
)

const (
	defaultMaxBodyBytes = 1 << 20 // 1 MiB
	limiterIdleTTL      = 10 * time.Minute
	requestIDHeader     = "X-Request-ID"
)

type ServerConfig struct {
	// AuthToken guards mutating methods. Empty disables them.
	AuthToken         string
	RateLimit         float64
	RateBurst         int
	MaxBodyBytes      int64
	TrustProxyHeaders bool
}

type handlerFunc func(ctx context.Context, params []json.RawMessage) (interface{}, *RPCError)

// method describes one RPC entry point. signer names the parameter holding
// the account that must sign the request; it is empty for reads.
type method struct {
	auth   bool
	signer string
	fn     handlerFunc
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type Server struct {
	node    *core.Node
	cfg     ServerConfig
	logger  *slog.Logger
	tracer  trace.Tracer
	methods map[string]method

	mu       sync.Mutex
	limiters map[string]*clientLimiter
	clockNow func() time.Time

	replayMu sync.Mutex
	seen     map[string]time.Time
}

type requestIDKey struct{}

func NewServer(node *core.Node, cfg ServerConfig, logger *slog.Logger) (*Server, error) {
	if node == nil {
		return nil, errNodeUnavailable
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	cfg.AuthToken = strings.TrimSpace(cfg.AuthToken)
	s := &Server{
		node:     node,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "rpc")),
		tracer:   telemetry.Tracer("matrixchain/rpc"),
		limiters: make(map[string]*clientLimiter),
		clockNow: time.Now,
		seen:     make(map[string]time.Time),
	}
	s.methods = s.matrixMethods()
	return s, nil
}

// Router returns the HTTP surface: JSON-RPC on POST /, the event stream on
// /ws/events, prometheus on /metrics and a liveness probe.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestID)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws/events", s.handleEventsWS)
	r.Post("/", s.handle)
	return r
}

// Serve runs the router on addr until ctx is cancelled. wrap, when set,
// decorates the router, for example with otelhttp.
func (s *Server) Serve(ctx context.Context, addr string, wrap func(http.Handler) http.Handler) error {
	handler := s.Router()
	if wrap != nil {
		handler = wrap(handler)
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("json-rpc server listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// handle decodes one JSON-RPC request and dispatches it.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	defer func() {
		_ = reader.Close()
	}()
	w.Header().Set("Content-Type", "application/json")

	if !s.allowSource(s.clientIP(r)) {
		observability.RPC().RecordThrottle("rate_limit")
		writeError(w, nil, &RPCError{Code: codeRateLimited, Message: "rate limit exceeded"})
		return
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			message = fmt.Sprintf("request body exceeds %d bytes", s.cfg.MaxBodyBytes)
		}
		writeError(w, nil, &RPCError{Code: codeInvalidRequest, Message: message, Data: err.Error()})
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, nil, &RPCError{Code: codeInvalidRequest, Message: "request body required"})
		return
	}
	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, nil, &RPCError{Code: codeParseError, Message: "invalid JSON payload", Data: err.Error()})
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, req.ID, &RPCError{Code: codeInvalidRequest, Message: "unsupported jsonrpc version", Data: req.JSONRPC})
		return
	}
	if req.Method == "" {
		writeError(w, req.ID, &RPCError{Code: codeInvalidRequest, Message: "method required"})
		return
	}

	start := time.Now()
	ctx, span := s.tracer.Start(r.Context(), "rpc."+req.Method, trace.WithAttributes(
		attribute.String("rpc.method", req.Method),
		attribute.String("rpc.request_id", requestIDFrom(r.Context())),
	))
	defer span.End()

	result, rpcErr := s.dispatch(ctx, r, req)
	code := 0
	if rpcErr != nil {
		code = rpcErr.Code
		span.SetStatus(codes.Error, rpcErr.Message)
		span.SetAttributes(attribute.Int("rpc.error_code", rpcErr.Code))
	}
	observability.RPC().Observe(req.Method, code, time.Since(start))
	if rpcErr != nil {
		s.logger.Warn("rpc request failed",
			slog.String("method", req.Method),
			slog.String("request_id", requestIDFrom(r.Context())),
			slog.Int("code", rpcErr.Code),
			slog.String("reason", rpcErr.Message))
		writeError(w, req.ID, rpcErr)
		return
	}
	writeResult(w, req.ID, result)
}

func (s *Server) dispatch(ctx context.Context, r *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	m, ok := s.methods[req.Method]
	if !ok {
		return nil, &RPCError{Code: codeMethodNotFound, Message: fmt.Sprintf("unknown method %s", req.Method)}
	}
	if m.auth {
		if authErr := s.requireAuth(r); authErr != nil {
			observability.RPC().RecordThrottle("unauthorized")
			return nil, authErr
		}
	}
	if m.signer != "" {
		if sigErr := s.verifySigner(req.Method, req.Params, m.signer); sigErr != nil {
			observability.RPC().RecordThrottle("signature")
			return nil, sigErr
		}
	}
	return m.fn(ctx, req.Params)
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.cfg.AuthToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication token not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AuthToken)) != 1 {
		s.logger.Warn("rejected bearer token", logging.MaskField("token", token))
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}

// allowSource applies the per-client token bucket. A non-positive rate
// disables limiting.
func (s *Server) allowSource(source string) bool {
	if s.cfg.RateLimit <= 0 {
		return true
	}
	if source == "" {
		source = "unknown"
	}
	now := s.clockNow()
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, entry := range s.limiters {
		if now.Sub(entry.lastSeen) > limiterIdleTTL {
			delete(s.limiters, key)
		}
	}
	entry, ok := s.limiters[source]
	if !ok {
		burst := s.cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		entry = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(s.cfg.RateLimit), burst)}
		s.limiters[source] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

func (s *Server) clientIP(r *http.Request) string {
	if s.cfg.TrustProxyHeaders {
		if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if parsed := net.ParseIP(strings.TrimSpace(first)); parsed != nil {
				return parsed.String()
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
