package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"

	"github.com/simp-lee/mqttbench/internal/agent"
	"github.com/simp-lee/mqttbench/internal/logging"
)

// Set at build time with -ldflags "-X main.version=... -X main.buildTime=...".
var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	app := kingpin.New("mqttbench-slave", "MQTT load generator agent controlled by the mqttbench master")
	app.Version(fmt.Sprintf("mqttbench-slave %s (built %s)", version, buildTime))
	masterHost := app.Flag("ip", "Master control plane address").Default("127.0.0.1").String()
	masterPort := app.Flag("port", "Master control plane port").Default("8888").Int()
	listen := app.Flag("listen", "Control listener address; port 0 picks a free port").Default(":0").String()
	rampRate := app.Flag("ramp-rate", "MQTT connections opened per second (0 for unlimited)").Default("100").Float64()
	heartbeat := app.Flag("heartbeat", "Heartbeat interval").Default("5s").Duration()
	pprofAddr := app.Flag("pprof", "Serve pprof on this address, e.g. :6060").String()
	logLevel := app.Flag("log-level", "Log level: debug, info, warn or error").Default("info").Enum("debug", "info", "warn", "error")
	logFormat := app.Flag("log-format", "Console log format: text, json or custom").Default("custom").Enum("text", "json", "custom")

	kingpin.MustParse(app.Parse(os.Args[1:]))

	if *masterPort <= 0 || *masterPort > 65535 {
		app.Fatalf("invalid master port %d", *masterPort)
	}

	log, err := logging.Setup(&logging.Config{Level: *logLevel, Format: *logFormat})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()
	logger := log.Logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ident, err := agent.MachineIdentifier(ctx)
	if err != nil {
		logger.Error("failed to read machine identifier", slog.String("error", err.Error()))
		os.Exit(1)
	}
	id := agent.SlaveID(ident)

	ln, err := net.Listen("tcp", *listen)
	if err != nil {
		logger.Error("failed to start control listener", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if *pprofAddr != "" {
		go servePprof(*pprofAddr, logger)
	}

	master := agent.NewMasterClient(*masterHost, *masterPort, 10*time.Second)
	stats := &agent.Stats{}
	a := agent.New(id, agent.Config{
		HeartbeatInterval: *heartbeat,
		RampRate:          *rampRate,
	}, master, agent.NewPahoFactory(stats, logger), stats, logger)

	logger.Info("starting slave agent",
		slog.Int("slave_id", id),
		slog.String("master", master.BaseURL()),
		slog.String("version", version),
	)
	if err := a.Run(ctx, ln); err != nil {
		logger.Error("slave agent failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func servePprof(addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	logger.Info("pprof listening", slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("pprof server failed", slog.String("error", err.Error()))
	}
}
