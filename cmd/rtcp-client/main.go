// Command rtcp-client runs the Client side of the tunnel: it dials a
// Server, requests an access port, and answers new-connection signals by
// pairing a local Backend with a fresh data socket.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/rtcplabs/rtcp/internal/client"
	"github.com/rtcplabs/rtcp/internal/config"
	"github.com/rtcplabs/rtcp/internal/logging"
)

func main() {
	ip := flag.StringP("ip", "i", "", "Backend host (required)")
	port := flag.IntP("port", "p", 0, "Backend TCP port (required)")
	accessPort := flag.IntP("access-port", "a", 0, "public access port to request on the Server (required)")
	serverHost := flag.StringP("server", "s", "", "Server host (required)")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "text", "log format (text, json)")
	flag.Parse()

	if *ip == "" || *port == 0 || *accessPort == 0 || *serverHost == "" {
		flag.Usage()
		os.Exit(2)
	}

	log := logging.New(*logLevel, *logFormat)

	cfg := config.ClientConfig{
		BackendIP:   *ip,
		BackendPort: *port,
		AccessPort:  *accessPort,
		ServerHost:  *serverHost,
		LogLevel:    *logLevel,
		LogFormat:   *logFormat,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info("shutdown signal received")
		cancel()
	}()

	c := client.New(cfg, log)
	if err := c.Run(ctx); err != nil {
		log.WithError(err).Fatal("client exited")
	}
}
