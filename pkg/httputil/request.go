package httputil

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

// ParsePathString extracts a path parameter. Empty values are allowed for
// catch-all routes.
func ParsePathString(r *http.Request, key string) (string, error) {
	str, ok := mux.Vars(r)[key]
	if !ok {
		return "", fmt.Errorf("missing path parameter: %s", key)
	}
	return str, nil
}

// ParseQueryUint64 extracts and parses an unsigned query parameter such as a
// file offset
func ParseQueryUint64(r *http.Request, key string, defaultVal uint64) (uint64, error) {
	str := r.URL.Query().Get(key)
	if str == "" {
		return defaultVal, nil
	}
	val, err := strconv.ParseUint(str, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid unsigned integer for query param %s: %s", key, str)
	}
	return val, nil
}
