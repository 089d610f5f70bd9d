// Package httpapi exposes a network map service over HTTP.
//
// Handlers only translate between HTTP and the service; every verification
// and signing decision is made behind the Backend interface.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"xdao.co/netmap/builder"
	"xdao.co/netmap/cert"
	"xdao.co/netmap/digest"
	"xdao.co/netmap/envelope"
	"xdao.co/netmap/metrics"
	"xdao.co/netmap/model"
	"xdao.co/netmap/netmap"
)

// DefaultMaxBodyBytes bounds a published node info.
const DefaultMaxBodyBytes = 1 << 20

const binaryContentType = "application/octet-stream"

// Backend is the service the handlers call into.
type Backend interface {
	Submit(raw []byte) (digest.SecureHash, error)
	Get(h digest.SecureHash) ([]byte, error)
	ListAll() ([]digest.SecureHash, error)
	Build(reason string) (*builder.Result, error)
	NetworkMap() ([]byte, error)
	NetworkParameters(h digest.SecureHash) ([]byte, error)
	Trust() *cert.TrustStore
}

type Options struct {
	Logger       *zap.Logger
	MaxBodyBytes int64
	// Metrics mounts the Prometheus handler at /metrics.
	Metrics bool
}

type handler struct {
	b       Backend
	logger  *zap.Logger
	maxBody int64
}

// NewHandler returns the HTTP routes for b.
func NewHandler(b Backend, opts Options) http.Handler {
	h := &handler{b: b, logger: opts.Logger, maxBody: opts.MaxBodyBytes}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	h.logger = h.logger.Named("http")
	if h.maxBody <= 0 {
		h.maxBody = DefaultMaxBodyBytes
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ping", h.ping)
	mux.HandleFunc("POST /network-map/publish", h.publish)
	mux.HandleFunc("GET /network-map", h.networkMap)
	mux.HandleFunc("GET /network-map/node-info/{hash}", h.nodeInfo)
	mux.HandleFunc("GET /network-map/node-infos", h.nodeInfos)
	mux.HandleFunc("GET /network-map/network-parameters/{hash}", h.networkParameters)
	mux.HandleFunc("GET /generate", h.generate)
	mux.HandleFunc("POST /generate", h.generate)
	if opts.Metrics {
		mux.Handle("GET /metrics", metrics.Handler())
	}
	return mux
}

func (h *handler) ping(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "OK")
}

func (h *handler) publish(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.fail(w, r, &model.CodedError{Code: model.ErrInvalidRequest, Message: "node info too large"}, http.StatusRequestEntityTooLarge)
			return
		}
		h.fail(w, r, model.NewError(model.ErrInvalidRequest, err.Error()), 0)
		return
	}
	hash, err := h.b.Submit(body)
	if err != nil {
		h.fail(w, r, err, 0)
		return
	}
	if wantsJSON(r) {
		h.writeJSON(w, http.StatusOK, model.NewSubmitResponse(hash))
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, hash.String())
}

func (h *handler) networkMap(w http.ResponseWriter, r *http.Request) {
	raw, err := h.b.NetworkMap()
	if err != nil {
		h.fail(w, r, err, 0)
		return
	}
	if !wantsJSON(r) {
		writeBinary(w, raw)
		return
	}
	s, nm, err := envelope.Open[netmap.NetworkMap](raw, h.b.Trust(), cert.VerifyOptions{
		LeafRoles: []cert.Role{cert.RoleNetworkMap},
	})
	if err != nil {
		h.fail(w, r, err, 0)
		return
	}
	h.writeJSON(w, http.StatusOK, model.NewNetworkMapView(s.Hash(), nm, s.Signer()))
}

func (h *handler) nodeInfo(w http.ResponseWriter, r *http.Request) {
	hash, ok := h.pathHash(w, r)
	if !ok {
		return
	}
	raw, err := h.b.Get(hash)
	if err != nil {
		h.fail(w, r, err, 0)
		return
	}
	if !wantsJSON(r) {
		writeBinary(w, raw)
		return
	}
	// Stored entries were checked against the clock on submission.
	s, info, err := envelope.Open[netmap.NodeInfo](raw, h.b.Trust(), cert.VerifyOptions{
		LeafRoles: []cert.Role{cert.RoleNodeIdentity},
	})
	if err != nil {
		h.fail(w, r, err, 0)
		return
	}
	h.writeJSON(w, http.StatusOK, model.NewNodeInfoView(s.Hash(), info, s.Signer()))
}

func (h *handler) nodeInfos(w http.ResponseWriter, r *http.Request) {
	hashes, err := h.b.ListAll()
	if err != nil {
		h.fail(w, r, err, 0)
		return
	}
	h.writeJSON(w, http.StatusOK, model.Hashes(digest.SortedUnique(hashes)))
}

func (h *handler) networkParameters(w http.ResponseWriter, r *http.Request) {
	hash, ok := h.pathHash(w, r)
	if !ok {
		return
	}
	raw, err := h.b.NetworkParameters(hash)
	if err != nil {
		h.fail(w, r, err, 0)
		return
	}
	writeBinary(w, raw)
}

func (h *handler) generate(w http.ResponseWriter, r *http.Request) {
	res, err := h.b.Build("http")
	if err != nil {
		h.fail(w, r, err, 0)
		return
	}
	if wantsJSON(r) {
		s, err := envelope.Parse[netmap.NetworkMap](res.SignedNetworkMap)
		if err != nil {
			h.fail(w, r, err, 0)
			return
		}
		h.writeJSON(w, http.StatusOK, model.NewNetworkMapView(res.MapHash, res.NetworkMap, s.Signer()))
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "OK")
}

func (h *handler) pathHash(w http.ResponseWriter, r *http.Request) (digest.SecureHash, bool) {
	hash, err := digest.Parse(r.PathValue("hash"))
	if err != nil {
		h.fail(w, r, model.NewError(model.ErrInvalidHash, err.Error()), 0)
		return digest.Zero, false
	}
	return hash, true
}

// fail writes err as a coded JSON error. A zero status derives it from the code.
func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error, status int) {
	ce := model.FromError(err)
	if status == 0 {
		status = ce.HTTPStatus()
	}
	fields := []zap.Field{
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.String("code", string(ce.Code)),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", fields...)
	} else {
		h.logger.Debug("request rejected", fields...)
	}
	h.writeJSON(w, status, ce)
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("write response", zap.Error(err))
	}
}

func writeBinary(w http.ResponseWriter, b []byte) {
	w.Header().Set("Content-Type", binaryContentType)
	_, _ = w.Write(b)
}

func wantsJSON(r *http.Request) bool {
	return r.URL.Query().Get("format") == "json"
}

// Server runs the handler until its context is cancelled.
type Server struct {
	srv    *http.Server
	logger *zap.Logger
}

func NewServer(addr string, h http.Handler, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           h,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger.Named("http"),
	}
}

// Serve accepts connections on l until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", zap.Stringer("addr", l.Addr()))
		errc <- s.srv.Serve(l)
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	// ctx is already cancelled; give in-flight requests a fresh budget.
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(sctx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on the configured address and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	l, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, l)
}
