// Command rtcp-server runs the Server side of the tunnel: it listens for
// Client control channels on a fixed port and relays Users through
// Client-originated data sockets.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/rtcplabs/rtcp/internal/config"
	"github.com/rtcplabs/rtcp/internal/logging"
	"github.com/rtcplabs/rtcp/internal/server"
)

func main() {
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "text", "log format (text, json)")
	rewriteHost := flag.String("rewrite-host", "127.0.0.1", "Host header value substituted on relayed HTTP requests")
	flag.Parse()

	cfg := config.ServerConfig{LogLevel: *logLevel, LogFormat: *logFormat}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info("shutdown signal received")
		cancel()
	}()

	srv := server.New(log, *rewriteHost)
	if err := srv.Run(ctx); err != nil {
		log.WithError(err).Fatal("server exited")
	}
}
