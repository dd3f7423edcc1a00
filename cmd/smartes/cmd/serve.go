package cmd

import (
	"net"
	"strconv"

	"github.com/oneconcern/smartes/pkg/httpd"
	"github.com/oneconcern/smartes/pkg/web"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the files of the repository over HTTP",
	Long: `Serve the files of the repository at /{branch|tag|hash}/{path}.

The entry module is served under its own path and must be revalidated by clients.
All other files are served under their versioned path and may be cached forever.

The port is taken from the --port flag, then the PORT environment variable, then the
configuration (SMARTES_PORT or the config file), and defaults to 3000.
`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if !cmd.Flags().Changed(portFlag) {
			port, err := httpd.PortFromEnv(config.Port, "PORT")
			if err != nil {
				wrapFatalln("invalid configuration", err)
				return
			}
			config.Port = port
		}

		l, err := config.logger()
		if err != nil {
			wrapFatalln("invalid logging configuration", err)
			return
		}
		defer func() { _ = l.Sync() }()

		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		unlock, err := config.lockCache()
		if err != nil {
			wrapFatalln("failed to lock the schema cache", err)
			return
		}
		defer unlock()

		svc, schemas, err := config.newService(cmd.Context(), l, reg)
		if err != nil {
			wrapFatalln("failed to initialize smartes", err)
			return
		}
		srv, err := web.NewServer(svc, web.ServerParams{Debug: config.Debug, Logger: l})
		if err != nil {
			wrapFatalln("server init error", err)
			return
		}

		servers := []httpd.Server{
			httpd.New(
				httpd.Named("smartes"),
				httpd.ListensOn(config.Host, config.Port),
				httpd.LogsWith(l),
				httpd.HandlesRequestsWith(web.InitRouter(srv)),
			),
		}
		if config.Metrics.Addr != "" {
			host, port, err := splitAddr(config.Metrics.Addr)
			if err != nil {
				wrapFatalln("invalid metrics address", err)
				return
			}
			servers = append(servers, httpd.New(
				httpd.Named("admin"),
				httpd.ListensOn(host, port),
				httpd.LogsWith(l),
				httpd.HandlesRequestsWith(web.AdminRouter(reg)),
			))
		}
		for _, s := range servers {
			if err = s.Listen(); err != nil {
				wrapFatalln("server listen error", err)
				return
			}
		}

		l.Info("smartes is running",
			zap.String("entry", svc.Entry()),
			zap.String("repository", config.Repository),
			zap.String("cache", schemas.String()),
			zap.Int("cached_revisions", schemas.Len()),
			zap.Bool("debug", config.Debug),
		)

		var g errgroup.Group
		for _, s := range servers {
			s := s
			g.Go(func() error {
				// when a server stops, stop them all
				defer shutdownAll(servers)
				return s.Serve()
			})
		}
		if err = g.Wait(); err != nil {
			wrapFatalln("server error", err)
		}
	},
}

func shutdownAll(servers []httpd.Server) {
	for _, s := range servers {
		_ = s.Shutdown()
	}
}

func splitAddr(addr string) (string, int, error) {
	host, p, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}

func init() {
	addHostFlag(serveCmd)
	addPortFlag(serveCmd)
	addDebugFlag(serveCmd)
	addCacheBypassFlag(serveCmd)
	addMetricsAddrFlag(serveCmd)
	httpd.RegisterFlags(serveCmd.Flags())

	rootCmd.AddCommand(serveCmd)
}
