// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Response Helpers
//
//	httputil.WriteJSON(w, http.StatusOK, entries)
//	httputil.WriteNoContent(w)
//	httputil.WriteRequestError(w, r, http.StatusBadRequest, err)
//
// # Request Parsing
//
//	path, _ := httputil.ParsePathString(r, "path")
//	offset, err := httputil.ParseQueryUint64(r, "offset", 0)
//
// # Middleware
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware(logger),
//		httputil.MaxBytesMiddleware(1<<20),
//	)(router)
//
// RequestIDMiddleware stores a UUID request ID in the request context where
// observability.FromContext picks it up for log entries.
package httputil
