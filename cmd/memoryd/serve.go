package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kittclouds/memoryd/internal/config"
	"github.com/kittclouds/memoryd/internal/engine"
	"github.com/kittclouds/memoryd/internal/logging"
	"github.com/kittclouds/memoryd/internal/metrics"
	"github.com/kittclouds/memoryd/internal/rpc"
)

var (
	serveWorkspace string
	serveConfig    string
	serveAddr      string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the memoryd JSON-RPC server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveWorkspace, "workspace", "", "initial project path; sets the default scope for requests that omit project_id")
	serveCmd.Flags().StringVar(&serveConfig, "config", "", "path to a YAML configuration file")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "stdio", `transport: "stdio" or "unix:///path/to.sock"`)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, v, err := config.Load(serveConfig)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	format := logging.FormatJSON
	if cfg.Log.Format == "console" {
		format = logging.FormatConsole
	}
	log, err := logging.New(cfg.Log.Level, format)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer log.Sync()

	m := metrics.New()

	eng, err := engine.New(cfg, cfg.Storage.Root, log, m)
	if err != nil {
		return fmt.Errorf("init engine: %w", err)
	}
	defer eng.Shutdown()

	if serveWorkspace != "" {
		eng.SetActiveProject(serveWorkspace)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng.StartMaintenance(ctx)

	config.WatchAndReload(v, func(updated *config.Config) {
		log.Info("configuration reloaded")
	})

	dispatcher := rpc.NewDispatcher(eng, log, m, cfg.RPC.RateLimits)
	server := rpc.NewServer(dispatcher, log)

	log.Info("memoryd starting", zap.String("addr", serveAddr), zap.String("storage_root", cfg.Storage.Root))

	return serveTransport(ctx, serveAddr, server, log)
}

func serveTransport(ctx context.Context, addr string, server *rpc.Server, log *zap.Logger) error {
	if addr == "" || addr == "stdio" {
		return server.Serve(ctx, os.Stdin, os.Stdout)
	}

	path, ok := strings.CutPrefix(addr, "unix://")
	if !ok {
		return fmt.Errorf("unrecognized --addr %q: expected \"stdio\" or \"unix:///path\"", addr)
	}
	_ = os.Remove(path)
	ln, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", path, err)
	}
	defer ln.Close()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		log.Info("accepted connection", zap.String("addr", conn.RemoteAddr().String()))
		if err := server.Serve(ctx, conn, conn); err != nil {
			log.Warn("connection closed", zap.Error(err))
		}
		conn.Close()
	}
}
