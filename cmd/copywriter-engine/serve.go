package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/document"
	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/plugin"
	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/rpc"
)

var serveNoWatch bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the plugin UI over JSON-RPC on stdio",
	Long: `Reads newline-delimited JSON-RPC requests from stdin and writes responses and
event notifications to stdout. The document file is watched; external edits
refresh the extracted segments.

Logs go to the data directory when COPYWRITER_DEBUG or --verbose is set.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveNoWatch, "no-watch", false, "Do not reload the document on external edits")
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := requireDocument(); err != nil {
		return err
	}
	env, err := bootstrap(true)
	if err != nil {
		return err
	}
	defer env.close()
	logger := env.logger

	doc, err := document.Open(documentPath, document.WithLogger(logger))
	if err != nil {
		logger.Error("engine.init_failed", "error", err.Error())
		return fmt.Errorf("open document: %w", err)
	}
	current := env.loadSettings()
	client := env.newGeminiClient(current, "")

	ctrl := plugin.New(doc, client,
		plugin.WithLogger(logger),
		plugin.WithKeySource(env.secrets),
		plugin.WithEnvKey(env.envKey),
		plugin.WithSettings(env.settings),
		plugin.WithPersist(doc.Save),
		plugin.WithModelID(client.Model()),
	)
	bridge := plugin.NewBridge(ctrl, plugin.BridgeConfig{
		Keys:      env.secrets,
		Settings:  env.settings,
		Validator: client,
		EnvKey:    env.envKey,
		ModelID:   client.Model(),
		Transport: current.Transport,
		Logger:    logger,
	})
	server := rpc.NewServer(plugin.APIVersion, os.Stdin, os.Stdout, logger)
	bridge.Register(server)

	sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(sigCtx)
	ctx, cancel := context.WithCancel(gctx)
	defer cancel()

	g.Go(func() error {
		defer cancel()
		if err := server.Serve(ctx); err != nil {
			logger.Error("rpc.server_error", "error", err.Error())
			return err
		}
		return nil
	})
	g.Go(func() error {
		defer cancel()
		return ctrl.Run(ctx, bridge.Commands())
	})
	g.Go(func() error {
		bridge.Forward(server.Notify)
		return nil
	})
	if !serveNoWatch {
		watcher, err := document.NewWatcher(doc, func() {
			if _, info := bridge.HostSelectionChanged(ctx, nil); info != nil {
				logger.Debug("document.refresh_skipped", "error_code", info.ErrorCode)
			}
		}, document.WithReloadGate(ctrl.TryExclusive))
		if err != nil {
			logger.Warn("document.watch_failed", "path", doc.Path(), "error", err.Error())
		} else {
			g.Go(func() error { return watcher.Run(ctx) })
		}
	}

	logger.Info("engine.started", "document", doc.Path(), "api_version", plugin.APIVersion, "version", plugin.EngineVersion)
	if err := g.Wait(); err != nil {
		return fmt.Errorf("rpc server error: %w", err)
	}
	logger.Info("engine.stopped")
	return nil
}
