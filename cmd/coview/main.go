package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"coview/internal/core/domain"
	"coview/internal/core/services"
	httphandlers "coview/internal/handlers/http"
	"coview/internal/infrastructure/bridge"
	"coview/internal/infrastructure/clipboard"
	"coview/internal/infrastructure/console"
	"coview/internal/infrastructure/middleware"
	"coview/internal/infrastructure/monitoring"
	webrtctransport "coview/internal/infrastructure/webrtc"
	"coview/pkg/config"
	"coview/pkg/logger"
	"coview/pkg/tracing"
	"coview/pkg/utils"

	"github.com/gin-gonic/gin"
	pion "github.com/pion/webrtc/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	roleFlag := flag.String("role", "", "session role: host (produces the offer) or join (answers one)")
	configFlag := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	var role domain.Role
	switch *roleFlag {
	case "host":
		role = domain.RoleInitiator
	case "join":
		role = domain.RoleResponder
	default:
		log.Fatalf("invalid -role %q: must be host or join", *roleFlag)
	}

	cfg := loadConfig(*configFlag)

	zlog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zlog.Sync()
	sugar := zlog.Sugar()

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "coview",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		sugar.Fatalw("failed to initialize tracing", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := services.NewMetricsService()

	playerBridge := bridge.NewPlayerBridge(cfg.Bridge.PingInterval, cfg.Bridge.PongTimeout, zlog)
	notifier := console.NewNotifier(zlog)

	engine := services.NewSyncEngine(services.SyncConfig{
		SenderID:       utils.GenerateSenderID(),
		SendInterval:   cfg.Sync.SendInterval,
		SettleWindow:   cfg.Sync.SettleWindow,
		DriftTolerance: cfg.Sync.DriftTolerance,
	}, playerBridge, notifier, metrics, nil, zlog)
	playerBridge.SetSyncService(engine)

	transport := webrtctransport.NewTransport(webrtcConfig(cfg), zlog)
	session := services.NewSessionService(
		role,
		transport,
		clipboard.NewSystemClipboard(),
		notifier,
		engine,
		metrics,
		zlog,
	)

	// Local player bridge.
	bridgeMux := http.NewServeMux()
	bridgeMux.HandleFunc("/player", playerBridge.HandleWebSocket)
	go func() {
		sugar.Infow("starting player bridge", "address", cfg.Bridge.Address)
		if err := http.ListenAndServe(cfg.Bridge.Address, bridgeMux); err != nil {
			sugar.Errorw("player bridge stopped", "error", err)
		}
	}()

	// Local HTTP API.
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(sugar))
	router.Use(middleware.RequestLoggingMiddleware(sugar))
	httphandlers.NewSessionHandler(session, playerBridge).SetupRoutes(router)

	httpServer := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		sugar.Infow("starting HTTP server", "address", cfg.Server.Address)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Errorw("HTTP server stopped", "error", err)
		}
	}()

	if cfg.Monitoring.PrometheusEnabled {
		collector := monitoring.NewPrometheusCollector()
		go collector.Run(ctx, metrics, 15*time.Second)
		go func() {
			addr := fmt.Sprintf(":%d", cfg.Monitoring.PrometheusPort)
			sugar.Infow("starting metrics endpoint", "address", addr)
			if err := http.ListenAndServe(addr, promhttp.Handler()); err != nil {
				sugar.Errorw("metrics endpoint stopped", "error", err)
			}
		}()
	}

	if role == domain.RoleInitiator {
		if err := session.Start(); err != nil {
			sugar.Fatalw("failed to start session", "error", err)
		}
		fmt.Println("Generating your offer signal...")
	} else {
		fmt.Println("Paste the host's offer signal below.")
	}

	// The out-of-band exchange: read pasted signal blobs line by line.
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if err := session.SubmitRemoteSignal(line); err != nil {
				fmt.Printf("Could not accept signal: %v\n", err)
			}
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	sugar.Infow("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
	_ = session.Close()
	_ = tp.Shutdown(shutdownCtx)
}

func loadConfig(explicit string) *config.Config {
	paths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"config.yaml",
	}
	if explicit != "" {
		paths = []string{explicit}
	}

	for _, path := range paths {
		cfg, err := config.Load(path)
		if err == nil {
			return cfg
		}
		log.Printf("could not load config from %s: %v", path, err)
	}

	log.Printf("using default configuration")
	return config.DefaultConfig()
}

func webrtcConfig(cfg *config.Config) webrtctransport.Config {
	var out webrtctransport.Config
	for _, server := range cfg.WebRTC.ICEServers {
		ice := pion.ICEServer{URLs: server.URLs}
		if server.Username != "" {
			ice.Username = server.Username
			ice.Credential = server.Credential
		}
		out.ICEServers = append(out.ICEServers, ice)
	}
	out.PortRange.Min = cfg.WebRTC.PortRange.Min
	out.PortRange.Max = cfg.WebRTC.PortRange.Max
	out.GatherTimeout = cfg.WebRTC.GatherTimeout
	return out
}
