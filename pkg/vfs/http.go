package vfs

import (
	"errors"
	"io"
	"io/fs"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/procvfs/pkg/httputil"
	"github.com/platinummonkey/procvfs/pkg/plugins"
)

// MaxBodySize bounds a PUT body
const MaxBodySize = 1 << 20

// Handlers serves FS over HTTP
type Handlers struct {
	fs  *FS
	log *logrus.Logger
}

// NewHandlers creates the HTTP handlers for fsys
func NewHandlers(fsys *FS, log *logrus.Logger) *Handlers {
	if log == nil {
		log = fsys.log
	}
	return &Handlers{fs: fsys, log: log}
}

// RegisterRoutes registers the file system routes
func (h *Handlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/modules", h.modules).Methods(http.MethodGet)
	r.HandleFunc("/ls/{path:.*}", h.list).Methods(http.MethodGet)
	r.HandleFunc("/fs/{path:.*}", h.read).Methods(http.MethodGet)
	r.HandleFunc("/fs/{path:.*}", h.write).Methods(http.MethodPut)
	r.HandleFunc("/refresh", h.refresh).Methods(http.MethodPost)
}

// NewServerHandler wraps router with request IDs, logging, panic recovery,
// a body limit and server spans
func NewServerHandler(router *mux.Router, log *logrus.Logger) http.Handler {
	handler := httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(log),
		httputil.RecoveryMiddleware(log),
		httputil.MaxBytesMiddleware(MaxBodySize),
	)(router)
	return otelhttp.NewHandler(handler, "procvfs")
}

// ListResponse is returned by GET /ls
type ListResponse struct {
	Path    string          `json:"path"`
	Entries plugins.Entries `json:"entries"`
}

// WriteResponse is returned by PUT /fs
type WriteResponse struct {
	Path    string `json:"path"`
	Written int    `json:"written"`
}

func (h *Handlers) modules(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, h.fs.Modules())
}

func (h *Handlers) list(w http.ResponseWriter, r *http.Request) {
	p, err := httputil.ParsePathString(r, "path")
	if err != nil {
		httputil.WriteRequestError(w, r, http.StatusBadRequest, err)
		return
	}

	entries, err := h.fs.List(r.Context(), p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if entries == nil {
		entries = plugins.Entries{}
	}
	httputil.WriteSuccess(w, ListResponse{Path: "/" + p, Entries: entries.Sorted()})
}

func (h *Handlers) read(w http.ResponseWriter, r *http.Request) {
	p, err := httputil.ParsePathString(r, "path")
	if err != nil {
		httputil.WriteRequestError(w, r, http.StatusBadRequest, err)
		return
	}
	offset, err := httputil.ParseQueryUint64(r, "offset", 0)
	if err != nil {
		httputil.WriteRequestError(w, r, http.StatusBadRequest, err)
		return
	}

	data, err := h.fs.ReadFile(r.Context(), p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if offset > uint64(len(data)) {
		offset = uint64(len(data))
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	w.Write(data[offset:])
}

func (h *Handlers) write(w http.ResponseWriter, r *http.Request) {
	p, err := httputil.ParsePathString(r, "path")
	if err != nil {
		httputil.WriteRequestError(w, r, http.StatusBadRequest, err)
		return
	}
	offset, err := httputil.ParseQueryUint64(r, "offset", 0)
	if err != nil {
		httputil.WriteRequestError(w, r, http.StatusBadRequest, err)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			httputil.WriteRequestError(w, r, http.StatusRequestEntityTooLarge, err)
			return
		}
		httputil.WriteRequestError(w, r, http.StatusBadRequest, err)
		return
	}

	n, err := h.fs.Write(r.Context(), p, body, offset)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteSuccess(w, WriteResponse{Path: "/" + p, Written: n})
}

func (h *Handlers) refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.fs.Refresh(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.WithError(err).WithField("request_id", httputil.RequestID(r)).Error("File system request failed")
	}
	httputil.WriteRequestError(w, r, status, err)
}

// StatusFor maps a file system error to an HTTP status
func StatusFor(err error) int {
	switch {
	case errors.Is(err, plugins.ErrNotFound),
		errors.Is(err, ErrNoProcess),
		errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, plugins.ErrUnsupported):
		return http.StatusMethodNotAllowed
	case errors.Is(err, fs.ErrPermission):
		return http.StatusForbidden
	case errors.Is(err, ErrIsDir),
		errors.Is(err, ErrInvalidPath),
		errors.Is(err, fs.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusInternalServerError
}
