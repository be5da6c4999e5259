package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"feedspool/internal/graphql"
	"feedspool/internal/readmodel"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the GraphQL HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Pool().Close()

		resolver := graphql.NewResolver(readmodel.New(st))

		mux := http.NewServeMux()
		mux.Handle("/graphql", graphql.NewHandler(resolver))
		mux.Handle("/graphiql", graphql.GraphiQLHandler())
		mux.Handle("/metrics", promhttp.Handler())
		mux.Handle("/", http.FileServer(http.Dir(cfg.HTTPServerStaticPath)))

		server := &http.Server{
			Addr:              cfg.HTTPServerAddress,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			slog.Info("http server listening", "address", cfg.HTTPServerAddress)
			errCh <- server.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				fmt.Fprintf(os.Stderr, "server error: %v\n", err)
				return err
			}
			return nil
		case <-ctx.Done():
			slog.Info("shutting down")
			return server.Close()
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
