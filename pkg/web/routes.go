// Package web exposes the files served by smartes over HTTP.
//
// URLs have the form /{treeish}/{path}, where treeish is a branch, a tag or a commit hash.
package web

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	jsoniter "github.com/json-iterator/go"
	"github.com/oneconcern/smartes/pkg/core"
	"github.com/oneconcern/smartes/pkg/core/status"
	"github.com/oneconcern/smartes/pkg/errors"
	"go.uber.org/zap"
)

const (
	cacheForever = "public, max-age=31536000, immutable"
	cacheNever   = "no-cache"

	// RevisionHeader carries the commit a file was served from
	RevisionHeader = "X-Smartes-Revision"
)

// Service serves files
type Service interface {
	Serve(ctx context.Context, treeish, path string) (*core.Response, error)
}

// ServerParams configures the web server
type ServerParams struct {
	// Debug exposes schemas and error details in responses
	Debug  bool
	Logger *zap.Logger
}

// Server handles HTTP requests
type Server struct {
	svc    Service
	params ServerParams
	l      *zap.Logger
}

// NewServer for some file service
func NewServer(svc Service, params ServerParams) (*Server, error) {
	if svc == nil {
		return nil, errors.New("a file service is required")
	}
	l := params.Logger
	if l == nil {
		l = zap.NewNop()
	}
	return &Server{svc: svc, params: params, l: l}, nil
}

/* handlers */

// HandleFile serves a file of a reference
func (s *Server) HandleFile() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		treeish := urlParam(r, "treeish")
		p := urlParam(r, "*")
		if p == "" {
			s.HandleNotFound()(w, r)
			return
		}

		resp, err := s.svc.Serve(r.Context(), treeish, p)
		if err != nil {
			s.writeError(w, r, treeish, err)
			return
		}

		h := w.Header()
		h.Set("Content-Type", resp.ContentType)
		h.Set("Content-Encoding", "gzip")
		h.Set("Content-Length", strconv.Itoa(len(resp.Body)))
		h.Set(RevisionHeader, resp.Revision.ID)
		if resp.Immutable {
			h.Set("Cache-Control", cacheForever)
		} else {
			h.Set("Cache-Control", cacheNever)
		}
		w.WriteHeader(http.StatusOK)
		if r.Method != http.MethodHead {
			_, _ = w.Write(resp.Body)
		}
	}
}

// HandleNotFound answers requests which do not designate a file
func (s *Server) HandleNotFound() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeText(w, http.StatusNotFound, "404 Not found.")
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, treeish string, err error) {
	switch {
	case errors.Is(err, status.ErrInvalidReference):
		writeText(w, http.StatusBadRequest, `Invalid branch/hash/tag "`+treeish+`"`)

	case errors.Is(err, status.ErrNotFound):
		msg := "No such file."
		var missing *core.MissingFileError
		if s.params.Debug && errors.As(err, &missing) {
			if dump, e := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(missing.Schema, "", "  "); e == nil {
				msg += "\n\n" + string(dump)
			}
		}
		writeText(w, http.StatusNotFound, msg)

	default:
		fields := []zap.Field{
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		}
		if errors.Is(err, status.ErrInterrupted) {
			s.l.Info("request abandoned", fields...)
		} else {
			s.l.Error("request failed", fields...)
		}
		msg := "500 Internal Server Error"
		if s.params.Debug {
			msg += "\n\n" + err.Error()
		}
		writeText(w, http.StatusInternalServerError, msg)
	}
}

func writeText(w http.ResponseWriter, code int, msg string) {
	h := w.Header()
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(msg))
}

// urlParam yields a decoded route parameter
func urlParam(r *http.Request, key string) string {
	v := chi.URLParam(r, key)
	if r.URL.RawPath == "" {
		return v
	}
	if decoded, err := url.PathUnescape(v); err == nil {
		return decoded
	}
	return v
}

// InitRouter builds the routes of the server
func InitRouter(srv *Server) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(srv.l))
	r.Use(middleware.Recoverer)
	r.Use(CanonicalURL)

	r.Get("/{treeish}/*", srv.HandleFile())
	r.Head("/{treeish}/*", srv.HandleFile())
	r.NotFound(srv.HandleNotFound())

	return r
}
