package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"quiz-proctor/internal/config"
	"quiz-proctor/internal/domain"
	"quiz-proctor/internal/infra/kvstore"
	transport "quiz-proctor/internal/transport/http"
)

// NewServeCmd builds the CLI subcommand to start the attempt host.
func NewServeCmd(configPath, port *string) *cobra.Command {
	var seeds []string
	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Start the websocket attempt host",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port, seeds)
		},
	}
	cmd.Flags().StringArrayVar(&seeds, "seed", nil, "quiz YAML file to import before serving (repeatable)")
	return cmd
}

// seedCatalog imports quiz files into the server's own catalog, which is the only way to
// get quizzes into the memory backend.
func seedCatalog(catalog *kvstore.Catalog, paths []string) ([]domain.Quiz, error) {
	created := make([]domain.Quiz, 0, len(paths))
	for _, path := range paths {
		quiz, err := readQuizFile(path)
		if err != nil {
			return nil, err
		}
		quiz, err = catalog.Create(quiz)
		if err != nil {
			return nil, fmt.Errorf("seed %s: %w", path, err)
		}
		created = append(created, quiz)
	}
	return created, nil
}

func runServer(ctx context.Context, configPath, portFlag string, seeds []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	b, err := openBackend(ctx, configPath, reg)
	if err != nil {
		return err
	}
	defer b.Close()
	log := b.log.With().Str("component", "server").Logger()

	seeded, err := seedCatalog(b.catalog, seeds)
	if err != nil {
		return err
	}
	for _, q := range seeded {
		log.Info().Str("join_code", q.ID).Str("quiz", q.Name).Msg("quiz seeded")
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = b.cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	wsHandler := transport.NewWSHandler(b.service,
		transport.WithTick(config.Duration(b.cfg.Session.Tick, time.Second)),
		transport.WithLogger(b.log),
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           mux,
		ReadHeaderTimeout: 15 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Str("backend", b.cfg.Storage.Backend).Msg("starting quiz proctor")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
