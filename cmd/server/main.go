package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/poornimagithubrit/Agentic-RAG/internal/api"
	"github.com/poornimagithubrit/Agentic-RAG/internal/config"
	"github.com/poornimagithubrit/Agentic-RAG/internal/logging"
	"github.com/poornimagithubrit/Agentic-RAG/internal/service"
)

var version = "dev"

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "server",
		Short:        "Answer questions about uploaded CSV files over HTTP",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ./configs/config.{json,yaml} or /etc/nlq/)")

	root.AddCommand(newAskCmd(&configPath), newVersionCmd())
	return root
}

func serve(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer a.Close()

	handler := api.NewHandler(a.datasets, a.pipeline, a.index, a.llm, logger)
	if cfg.Server.MaxUploadSize > 0 {
		handler.MaxUploadSize = cfg.Server.MaxUploadSize
	}
	defer handler.Close()

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:           api.NewRouter(handler, cfg.Server.CORSOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infow("starting server",
			"addr", srv.Addr,
			"strategy", cfg.Translator.Strategy,
			"llm", cfg.LLM.Provider,
			"storage", cfg.Storage.Kind,
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server failed to start")
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newAskCmd(configPath *string) *cobra.Command {
	var (
		file     string
		strategy string
	)
	cmd := &cobra.Command{
		Use:   "ask --file data.csv QUESTION",
		Short: "Answer one question about a local CSV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Log)
			if err != nil {
				return err
			}
			defer logger.Sync()

			raw, err := os.ReadFile(file)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), cfg, logger, false)
			if err != nil {
				return err
			}
			defer a.Close()

			ds, err := a.datasets.Upload(cmd.Context(), file, raw)
			if err != nil {
				return err
			}

			req := service.Request{Dataset: ds.Key, Question: args[0]}
			if strategy != "" {
				if req.Strategy, err = service.ParseStrategy(strategy); err != nil {
					return err
				}
			}
			ans, err := a.pipeline.Ask(cmd.Context(), req)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(ans)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "CSV file to query")
	cmd.Flags().StringVar(&strategy, "strategy", "", "translator strategy: model, rules or auto")
	cmd.MarkFlagRequired("file")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
