// Package httphandler is the HTTP driving adapter: a catch-all relay that
// authenticates the caller, leases a credential, and forwards the request.
package httphandler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/ericfisherdev/keyrelay/internal/application"
	"github.com/ericfisherdev/keyrelay/internal/domain/port/driven"
)

// Handler serves every inbound request: any method, any path, any query.
type Handler struct {
	auth      application.Authenticator
	scheduler *application.Scheduler
	forwarder driven.UpstreamForwarder
	logger    *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(
	auth application.Authenticator,
	scheduler *application.Scheduler,
	forwarder driven.UpstreamForwarder,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		auth:      auth,
		scheduler: scheduler,
		forwarder: forwarder,
		logger:    logger,
	}
}

// NewServeMux creates an http.Handler with the catch-all relay route
// registered and wrapped with logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", h.Relay)

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// Relay authenticates the caller, leases the least-recently-used eligible
// credential, forwards the request, and returns the upstream response
// verbatim.
func (h *Handler) Relay(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		writeUnauthenticated(w)
		return
	}

	pool, err := h.auth.ResolvePool(token)
	if err != nil {
		writeUnauthenticated(w)
		return
	}

	cred, err := h.scheduler.Lease(r.Context(), pool)
	if err != nil {
		h.writeLeaseError(w, err)
		return
	}

	resp, err := h.forwarder.Forward(r.Context(), cred, r)
	if err != nil {
		// No retry, no failover: a dead upstream or bad key must surface
		// immediately rather than silently burning through the pool.
		h.logger.Error("upstream request failed", "credential_id", cred.ID, "error", err)
		writeError(w, http.StatusBadGateway, "upstream_error", "upstream request failed")
		return
	}
	defer resp.Body.Close()

	copyHeader(w.Header(), resp.Header)

	// Announce upstream trailers before the header write; their values are
	// copied once the body completes.
	if len(resp.Trailer) > 0 {
		keys := make([]string, 0, len(resp.Trailer))
		for k := range resp.Trailer {
			keys = append(keys, k)
		}
		w.Header().Add("Trailer", strings.Join(keys, ", "))
	}

	w.WriteHeader(resp.StatusCode)

	if err := copyAndFlush(w, resp.Body); err != nil {
		// Headers are already out; nothing to send the caller.
		h.logger.Error("copy upstream response", "credential_id", cred.ID, "error", err)
		return
	}

	for k, vv := range resp.Trailer {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
}

// copyAndFlush streams src to w, flushing after every chunk so open-ended
// upstream streams (server-sent events) reach the caller as they arrive
// instead of sitting in server buffers until the upstream closes.
func copyAndFlush(w http.ResponseWriter, src io.Reader) error {
	rc := http.NewResponseController(w)
	buf := make([]byte, 32*1024)
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return err
			}
			if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
				return err
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				return nil
			}
			return readErr
		}
	}
}

// writeLeaseError maps scheduler failures to the fixed response bodies.
func (h *Handler) writeLeaseError(w http.ResponseWriter, err error) {
	var rl *application.RateLimitedError
	switch {
	case errors.As(err, &rl):
		w.Header().Set("Retry-After", strconv.Itoa(rl.RetryAfterSeconds()))
		writeRateLimited(w)
	case errors.Is(err, driven.ErrNoCredential):
		// In pool-token mode a token naming an unknown pool never
		// authenticated; in static mode an empty provisioned pool is
		// unavailability.
		if h.auth.EmptyPoolUnauthenticated() {
			writeUnauthenticated(w)
			return
		}
		writeRateLimited(w)
	default:
		h.logger.Error("lease credential", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

// bearerToken extracts the bearer value from the authorization header.
func bearerToken(r *http.Request) (string, bool) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		return "", false
	}
	return token, true
}

// copyHeader adds every value of src to dst, preserving multi-valued
// headers.
func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}
