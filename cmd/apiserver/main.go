package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Arknight38/wplacer-autologin/browser"
	"github.com/Arknight38/wplacer-autologin/config"
	"github.com/Arknight38/wplacer-autologin/phone"
	"github.com/Arknight38/wplacer-autologin/solver"
)

func main() {
	config.LoadEnv()
	cfg := config.LoadServer()

	flag.StringVar(&cfg.Host, "host", cfg.Host, "bind address")
	flag.IntVar(&cfg.Port, "port", cfg.Port, "bind port")
	flag.IntVar(&cfg.Threads, "threads", cfg.Threads, "browser thread count")
	flag.IntVar(&cfg.PageCount, "pages", cfg.PageCount, "pages per thread")
	flag.BoolVar(&cfg.Headless, "headless", cfg.Headless, "run browser headless")
	flag.Parse()

	engine, err := browser.Launch(browser.LaunchOptions{
		Headless: cfg.Headless,
		Browser:  cfg.Browser,
	})
	if err != nil {
		log.Fatalf("browser launch failed: %v", err)
	}
	defer engine.Close()

	factory := func() (*solver.PoolPage, error) {
		bctx, err := engine.NewContext(browser.ContextOptions{UserAgent: cfg.UserAgent})
		if err != nil {
			return nil, err
		}
		page, err := bctx.NewPage()
		if err != nil {
			_ = bctx.Close()
			return nil, err
		}
		return &solver.PoolPage{Page: page, Context: bctx}, nil
	}

	pool := solver.NewPagePool(cfg.MaxTasks(), factory)
	{
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := pool.Fill(ctx); err != nil {
			log.Fatalf("pool init failed: %v", err)
		}
	}
	defer pool.Close()

	var metricsReg *prometheus.Registry
	var metrics *solver.Metrics
	if cfg.MetricsEnabled {
		metricsReg = prometheus.NewRegistry()
		metricsReg.MustRegister(collectors.NewGoCollector())
		metrics = solver.NewMetrics(metricsReg)
	}

	registry := solver.NewRegistry(cfg.MaxTasks())
	sv := solver.New(pool, registry, metrics, solver.Options{
		AcquireTimeout: cfg.AcquireTimeout,
		PollAttempts:   cfg.PollAttempts,
		PollInterval:   cfg.PollInterval,
	})

	var phones *phone.Service
	if cfg.PhoneAPIKey != "" {
		provider, err := phone.NewProvider(cfg.PhoneProvider, cfg.PhoneAPIKey)
		if err != nil {
			log.Fatalf("phone provider init failed: %v", err)
		}
		phones = phone.NewService(provider)
		log.Printf("[main] phone API enabled: %s", provider.Name())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sv.RunMaintenance(ctx, 5*time.Minute, 60*time.Minute, func(now time.Time) {
		if phones != nil {
			if n := phones.Sweep(now); n > 0 {
				log.Printf("[phone] swept %d expired activations", n)
			}
		}
	})

	srv := solver.NewServer(sv, phones, metricsReg)
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("api listening on %s (max tasks %d)", addr, cfg.MaxTasks())
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen error: %v", err)
		}
	}()

	// graceful shutdown
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch
	log.Printf("shutting down...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)
}
