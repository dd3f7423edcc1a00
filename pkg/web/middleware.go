package web

import (
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/middleware"
	"go.uber.org/zap"
)

// CanonicalURL permanently redirects requests to the canonical form of their URL:
//
//  - the query string is dropped
//  - the path is cleaned from empty, "." and ".." segments (a trailing slash is kept)
//  - the HEAD reference is spelled in upper case
func CanonicalURL(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := r.URL.Path
		target := canonicalPath(p)
		if target == p && r.URL.RawQuery == "" && !r.URL.ForceQuery {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("Location", (&url.URL{Path: target}).EscapedPath())
		w.WriteHeader(http.StatusMovedPermanently)
	})
}

func canonicalPath(p string) string {
	if p == "" {
		return "/"
	}
	clean := path.Clean("/" + p)
	if strings.HasSuffix(p, "/") && clean != "/" {
		clean += "/"
	}

	const head = "/HEAD"
	if len(clean) >= len(head) && strings.EqualFold(clean[:len(head)], head) &&
		(len(clean) == len(head) || clean[len(head)] == '/') {
		clean = head + clean[len(head):]
	}
	return clean
}

// RequestLogger logs every request with zap
func RequestLogger(l *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			t0 := time.Now()
			defer func() {
				l.Info("request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(t0)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
