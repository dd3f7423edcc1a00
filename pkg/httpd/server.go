// Package httpd runs HTTP listeners until interrupted, then shuts them down gracefully.
package httpd

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	units "github.com/docker/go-units"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/net/netutil"
)

const (
	defaultHost = "localhost"

	// DefaultPort when neither configured nor set in the environment
	DefaultPort = 3000
)

var (
	cleanupTimeout time.Duration
	maxHeaderSize  = byteSize(units.MiB)

	listenLimit  int
	keepAlive    time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration
)

// RegisterFlags for the tuning of listeners to the specified pflag set
func RegisterFlags(fs *flag.FlagSet) {
	fs.DurationVar(&cleanupTimeout, "cleanup-timeout", 10*time.Second, "grace period for which to wait before shutting down the server")
	fs.Var(&maxHeaderSize, "max-header-size", "controls the maximum number of bytes the server will read parsing the request header's keys and values, including the request line (e.g. 64KiB, 1MiB)")

	fs.IntVar(&listenLimit, "listen-limit", 0, "limit the number of outstanding requests")
	fs.DurationVar(&keepAlive, "keep-alive", 3*time.Minute, "sets the TCP keep-alive timeouts on accepted connections")
	fs.DurationVar(&readTimeout, "read-timeout", 30*time.Second, "maximum duration before timing out read of the request")
	fs.DurationVar(&writeTimeout, "write-timeout", 2*time.Minute, "maximum duration before timing out write of the response")
}

// byteSize is a pflag value for human readable sizes
type byteSize int64

func (b *byteSize) Set(s string) error {
	v, err := units.RAMInBytes(s)
	if err != nil {
		return err
	}
	*b = byteSize(v)
	return nil
}

func (b byteSize) String() string {
	return units.BytesSize(float64(b))
}

func (b byteSize) Type() string {
	return "byte-size"
}

// PortFromEnv picks the first valid port set in the environment variables keys, or returns orig
func PortFromEnv(orig int, keys ...string) (int, error) {
	for _, k := range keys {
		v := os.Getenv(k)
		if v == "" {
			continue
		}
		p, err := strconv.Atoi(v)
		if err != nil || p < 0 || p > 65535 {
			return 0, fmt.Errorf("%s is not a valid port: %q", k, v)
		}
		return p, nil
	}
	return orig, nil
}

// Option for the server
type Option func(*defaultServer)

// HandlesRequestsWith handles the http requests to the server
func HandlesRequestsWith(h http.Handler) Option {
	return func(s *defaultServer) {
		s.handler = h
	}
}

// ListensOn some host and port. Port 0 picks a random port.
func ListensOn(host string, port int) Option {
	return func(s *defaultServer) {
		if host != "" {
			s.Host = host
		}
		s.Port = port
	}
}

// Named server, for logs
func Named(name string) Option {
	return func(s *defaultServer) {
		s.name = name
	}
}

// LogsWith provides a logger to the server
func LogsWith(l *zap.Logger) Option {
	return func(s *defaultServer) {
		if l != nil {
			s.logger = l
		}
	}
}

// OnShutdown runs the provided functions on shutdown
func OnShutdown(handlers ...func()) Option {
	return func(s *defaultServer) {
		if len(handlers) == 0 {
			return
		}
		s.onShutdown = func() {
			for _, run := range handlers {
				run()
			}
		}
	}
}

// New creates a new server but does not start listening
func New(opts ...Option) Server {
	s := &defaultServer{
		name:           "http",
		CleanupTimeout: cleanupTimeout,
		MaxHeaderSize:  int64(maxHeaderSize),
		Host:           defaultHost,
		Port:           DefaultPort,
		ListenLimit:    listenLimit,
		KeepAlive:      keepAlive,
		ReadTimeout:    readTimeout,
		WriteTimeout:   writeTimeout,
		shutdown:       make(chan struct{}),
		interrupt:      make(chan os.Signal, 1),
		logger:         zap.NewNop(),
		onShutdown:     func() {},
	}

	for _, apply := range opts {
		apply(s)
	}
	s.logger = s.logger.With(zap.String("server", s.name))
	return s
}

type defaultServer struct {
	name           string
	CleanupTimeout time.Duration
	MaxHeaderSize  int64

	Host         string
	Port         int
	ListenLimit  int
	KeepAlive    time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	httpServerL  net.Listener

	handler      http.Handler
	hasListeners bool
	shutdown     chan struct{}
	shuttingDown int32
	interrupted  bool
	interrupt    chan os.Signal
	logger       *zap.Logger
	onShutdown   func()
}

// Serve until shut down, either by Shutdown or by an interrupt signal
func (s *defaultServer) Serve() error {
	if !s.hasListeners {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	var wg sync.WaitGroup
	once := new(sync.Once)
	signalNotify(s.interrupt)
	defer signal.Stop(s.interrupt)
	go handleInterrupt(once, s)

	httpServer := &http.Server{
		Handler:        s.handler,
		MaxHeaderBytes: int(s.MaxHeaderSize),
		ReadTimeout:    s.ReadTimeout,
		WriteTimeout:   s.WriteTimeout,
	}
	httpServer.SetKeepAlivesEnabled(int64(s.KeepAlive) > 0)
	if int64(s.CleanupTimeout) > 0 {
		httpServer.IdleTimeout = s.CleanupTimeout
	}
	if s.ListenLimit > 0 {
		s.httpServerL = netutil.LimitListener(s.httpServerL, s.ListenLimit)
	}

	wg.Add(1)
	go s.handleShutdown(&wg, httpServer)

	addr := s.httpServerL.Addr().String()
	s.logger.Info("serving", zap.String("address", "http://"+addr))
	serveErr := httpServer.Serve(s.httpServerL)
	if serveErr == http.ErrServerClosed {
		serveErr = nil
	}
	if serveErr != nil {
		_ = s.Shutdown()
	}
	wg.Wait()
	s.logger.Info("stopped serving", zap.String("address", "http://"+addr))
	return serveErr
}

// Listen creates the listener for the server
func (s *defaultServer) Listen() error {
	if s.hasListeners {
		return nil
	}

	listener, err := net.Listen("tcp", net.JoinHostPort(s.Host, strconv.Itoa(s.Port)))
	if err != nil {
		return err
	}

	h, p, err := net.SplitHostPort(listener.Addr().String())
	if err != nil {
		_ = listener.Close()
		return err
	}
	s.Host = h
	if s.Port, err = strconv.Atoi(p); err != nil {
		_ = listener.Close()
		return err
	}
	s.httpServerL = listener
	s.hasListeners = true
	return nil
}

// Shutdown server and clean up resources
func (s *defaultServer) Shutdown() error {
	if atomic.CompareAndSwapInt32(&s.shuttingDown, 0, 1) {
		close(s.shutdown)
	}
	return nil
}

func (s *defaultServer) handleShutdown(wg *sync.WaitGroup, server *http.Server) {
	defer wg.Done()

	<-s.shutdown

	grace := s.CleanupTimeout
	if grace <= 0 {
		grace = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		s.logger.Warn("shutdown", zap.Error(err))
		return
	}
	s.onShutdown()
}

// GetHandler returns a handler useful for testing
func (s *defaultServer) GetHandler() http.Handler {
	return s.handler
}

// HTTPListener returns the http listener
func (s *defaultServer) HTTPListener() (net.Listener, error) {
	if !s.hasListeners {
		if err := s.Listen(); err != nil {
			return nil, err
		}
	}
	return s.httpServerL, nil
}

func handleInterrupt(once *sync.Once, s *defaultServer) {
	once.Do(func() {
		for {
			select {
			case <-s.shutdown:
				return
			case <-s.interrupt:
				if s.interrupted {
					continue
				}
				s.logger.Info("shutting down")
				s.interrupted = true
				_ = s.Shutdown()
			}
		}
	})
}

func signalNotify(interrupt chan<- os.Signal) {
	signal.Notify(interrupt, syscall.SIGINT, syscall.SIGTERM)
}

// Server is the interface a server implements
type Server interface {
	GetHandler() http.Handler
	HTTPListener() (net.Listener, error)
	Listen() error
	Serve() error
	Shutdown() error
}
