package api

import (
	"net/http"
	"slices"
	"strings"

	"github.com/kuitang/notekeeper/internal/errs"
	"github.com/kuitang/notekeeper/internal/obs"
)

// probeMethods are tried against the mux to tell a 405 from a 404.
var probeMethods = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodPatch,
	http.MethodDelete,
}

// NewRouter returns mux with a catch-all that answers unknown routes with a JSON 404,
// and known routes hit with the wrong method with a JSON 405 and an Allow header.
// Routes must be registered on mux before it serves requests.
func NewRouter(mux *http.ServeMux) http.Handler {
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		var allowed []string
		for _, method := range probeMethods {
			probe := r.Clone(r.Context())
			probe.Method = method
			if _, pattern := mux.Handler(probe); pattern != "" && pattern != "/" {
				allowed = append(allowed, method)
			}
		}
		if len(allowed) > 0 {
			if slices.Contains(allowed, http.MethodGet) {
				allowed = append(allowed, http.MethodHead)
			}
			w.Header().Set("Allow", strings.Join(append(allowed, http.MethodOptions), ", "))
			writeError(w, http.StatusMethodNotAllowed, "The method is not allowed for the requested URL.")
			return
		}
		writeError(w, http.StatusNotFound, "The requested URL was not found on the server.")
	})
	return mux
}

// CORSMiddleware allows cross-origin calls from origins. "*" allows every origin.
// Preflight requests are answered directly with 204.
func CORSMiddleware(origins []string, next http.Handler) http.Handler {
	allowAll := slices.Contains(origins, "*")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			switch {
			case allowAll:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case slices.Contains(origins, origin):
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Expose-Headers", "Location, Retry-After, X-Request-Id")
		}

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
				w.Header().Set("Access-Control-Allow-Headers", reqHeaders)
			}
			w.Header().Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RecoverMiddleware turns a handler panic into a logged JSON 500.
func RecoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				obs.From(r.Context()).With("pkg", "api").Error("api_panic", "panic", rec, "path", r.URL.Path)
				writeError(w, http.StatusInternalServerError, msgUnexpected)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// RateLimited writes the JSON 429 used by the rate limit middleware.
func RateLimited(w http.ResponseWriter, r *http.Request) {
	writeErr(w, r, errs.New(errs.ResourceExhausted, "Too many requests, slow down."))
}
