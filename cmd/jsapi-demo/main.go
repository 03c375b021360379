package main

import (
	"context"
	_ "embed"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/redforks/wx-js-sdk/internal/config"
	"github.com/redforks/wx-js-sdk/internal/host"
	"github.com/redforks/wx-js-sdk/internal/host/jshost"
	"github.com/redforks/wx-js-sdk/internal/jsapi"
	"github.com/redforks/wx-js-sdk/internal/platform/privacylog"
	"github.com/redforks/wx-js-sdk/internal/platform/ratelimiter"
	"github.com/redforks/wx-js-sdk/internal/signing"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

//go:embed simulated_wx.js
var simulatedWX string

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "Path to jsapi.yaml (optional)")
	scriptPath := flag.String("script", "", "JavaScript file defining the global wx object (default: built-in simulator)")
	pageURL := flag.String("page-url", "", "URL of the page being configured; the signing endpoint resolves against it")
	metricsAddr := flag.String("metrics-addr", "", "Serve Prometheus metrics on this address while running (optional)")
	pick := flag.Bool("pick", false, "After checkJsApi, choose and upload images")
	flag.Parse()
	if *showVersion {
		fmt.Printf("jsapi-demo version=%s commit=%s build_date=%s\n", version, commit, buildDate)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadFromPath(*configPath)
	if err != nil {
		log.Fatalf("jsapi-demo config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("jsapi-demo config: %v", err)
	}

	logger := privacylog.NewLogger(slog.NewJSONHandler(os.Stdout, nil))

	script, scriptName := simulatedWX, "simulated_wx.js"
	if *scriptPath != "" {
		data, err := os.ReadFile(*scriptPath)
		if err != nil {
			log.Fatalf("jsapi-demo script: %v", err)
		}
		script, scriptName = string(data), *scriptPath
	}
	rt, err := jshost.New(jshost.Options{Script: script, ScriptName: scriptName, PageURL: *pageURL, Logger: logger})
	if err != nil {
		log.Fatalf("jsapi-demo failed to start js host: %v", err)
	}
	defer rt.Close()

	capabilities := host.NewRegistry()
	capabilities.Forward(rt,
		host.CapConfig,
		host.CapCheckJSAPI,
		host.CapChooseImage,
		host.CapUploadImage,
		host.CapPay,
		host.CapCloseWindow,
	)
	logger.Info("js host ready", "script", scriptName, "capabilities", strings.Join(capabilities.Names(), ","))

	reg := prometheus.NewRegistry()
	if *metricsAddr != "" {
		srv := &http.Server{
			Addr:              *metricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer func() { _ = srv.Close() }()
	}

	signer := signing.NewClient(rt, signing.Options{
		Path:       cfg.SignPath,
		HTTPClient: &http.Client{Timeout: cfg.HTTPTimeout},
		Limiter:    ratelimiter.NewPageLimiter(ratelimiter.Config{RPS: cfg.SignRateLimitRPS, Burst: cfg.SignRateLimitBurst}),
		Logger:     logger,
	})
	gw := jsapi.New(signer, capabilities, jsapi.Options{
		Settings: jsapi.Settings{
			AppID:       cfg.AppID,
			Debug:       cfg.Debug,
			JSAPIList:   cfg.JSAPIList,
			OpenTagList: cfg.OpenTagList,
		},
		AwaitHandshake: cfg.AwaitHandshake,
		Metrics:        jsapi.NewMetrics(reg),
		Logger:         logger,
	})

	log.Println("jsapi-demo starting")
	if err := run(ctx, gw, cfg.JSAPIList, *pick, logger); err != nil {
		log.Fatalf("jsapi-demo failed: %s: %v", jsapi.Kind(err), err)
	}
	log.Println("jsapi-demo done")
}

func run(ctx context.Context, gw *jsapi.Gateway, apis []string, pick bool, logger *slog.Logger) error {
	checks, err := gw.CheckJSAPI(ctx, apis)
	if err != nil {
		return err
	}
	supported := make([]string, 0, len(checks))
	for _, check := range checks {
		if check.Supported {
			supported = append(supported, check.Name)
		}
	}
	logger.Info("checkJsApi", "supported", strings.Join(supported, ","), "listed", len(checks))
	if !pick {
		return nil
	}

	out, err := gw.ChooseImage(ctx, jsapi.DefaultChooseImageOptions())
	if err != nil {
		return err
	}
	if out.Kind == jsapi.OutcomeCancelled {
		logger.Info("chooseImage cancelled")
		return nil
	}
	for _, localID := range out.Value.LocalIDs {
		res, err := gw.UploadImage(ctx, jsapi.UploadImageOptions{LocalID: localID})
		if err != nil {
			return err
		}
		logger.Info("uploaded", "local_id", localID, "server_id", res.ServerID)
	}
	return nil
}
