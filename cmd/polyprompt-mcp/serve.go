package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"github.com/tb0hdan/polyprompt-mcp/pkg/api"
	"github.com/tb0hdan/polyprompt-mcp/pkg/config"
	"github.com/tb0hdan/polyprompt-mcp/pkg/fanout"
	"github.com/tb0hdan/polyprompt-mcp/pkg/gateway"
	"github.com/tb0hdan/polyprompt-mcp/pkg/runs"
	"github.com/tb0hdan/polyprompt-mcp/pkg/server"
	"github.com/tb0hdan/polyprompt-mcp/pkg/storage"
	"github.com/tb0hdan/polyprompt-mcp/pkg/tools"
	"github.com/tb0hdan/polyprompt-mcp/pkg/tools/catalog"
	"github.com/tb0hdan/polyprompt-mcp/pkg/tools/evals"
	"github.com/tb0hdan/polyprompt-mcp/pkg/tools/runprompt"
	runstool "github.com/tb0hdan/polyprompt-mcp/pkg/tools/runs"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP and REST server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if !cmd.Flags().Changed("log-level") {
		if err := setLogLevel(cfg.Log.Level); err != nil {
			return err
		}
	}

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.New(cfg.Storage())
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}
	logger.Info().Str("driver", cfg.Database.Driver).Msg("Database initialized")

	if cfg.Gateway.APIKey == "" {
		logger.Warn().Msg("No gateway API key configured; upstream calls will be unauthenticated")
	}

	reg := cfg.Registry()
	client := gateway.NewClient(logger, cfg.GatewayClient(), reg)
	svc := runs.NewService(logger, store, fanout.New(logger, client, store))

	impl := &mcp.Implementation{
		Name:    ServerName,
		Version: version(),
	}
	srv := server.NewServer(impl, store, svc, reg)

	toolList := []tools.Tool{
		runstool.New(logger),
		runprompt.New(logger),
		evals.New(logger),
		catalog.New(logger),
	}
	for _, tool := range toolList {
		if err := tool.Register(srv); err != nil {
			logger.Error().Msgf("Failed to register tool: %v", err)
		}
	}

	// Stateless mode avoids "session not found" errors after server restart
	mcpHandler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return &srv.Server
	}, &mcp.StreamableHTTPOptions{
		Stateless: true,
	})

	httpServer := api.NewServer(logger, api.Config{
		Listen:          cfg.Server.Listen,
		CORSOrigins:     cfg.Server.CORSOrigins,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		ServiceName:     ServiceName,
		Version:         version(),
	}, svc, reg, mcpHandler)

	if err := httpServer.Start(signalCtx); err != nil {
		_ = srv.Shutdown(context.Background())
		return fmt.Errorf("starting server: %w", err)
	}
	logger.Info().Msgf("%s starting on address %s", ServiceName, cfg.Server.Listen)
	logger.Info().Msgf("MCP endpoint available at: http://%s/mcp", cfg.Server.Listen)

	<-signalCtx.Done()
	logger.Info().Msg("Shutting down")

	// Shutdown uses a fresh context; signalCtx is already cancelled.
	if err := httpServer.Stop(context.Background()); err != nil {
		logger.Error().Msgf("%s HTTP shutdown error: %v", ServiceName, err)
	}
	if err := srv.Shutdown(context.Background()); err != nil {
		logger.Error().Msgf("%s shutdown error: %v", ServiceName, err)
	} else {
		logger.Info().Msgf("%s shutdown complete", ServiceName)
	}

	return nil
}
