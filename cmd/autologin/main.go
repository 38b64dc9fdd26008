package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Arknight38/wplacer-autologin/autologin"
	"github.com/Arknight38/wplacer-autologin/browser"
	"github.com/Arknight38/wplacer-autologin/config"
	"github.com/Arknight38/wplacer-autologin/tor"
)

func main() {
	config.LoadEnv()
	cfg := config.LoadLogin()

	pairs, err := autologin.ParseEmails(cfg.EmailsFile)
	if err != nil {
		log.Fatalf("emails load failed: %v", err)
	}
	proxies, err := autologin.LoadProxies(cfg.ProxyFile)
	if err != nil {
		log.Fatalf("proxies load failed: %v", err)
	}

	state := autologin.LoadOrInitState(cfg.StateFile, pairs, autologin.StateConfig{
		SocksAddr:   cfg.TorSocksAddr,
		ControlAddr: cfg.TorControlAddr,
	})

	engine, err := browser.Launch(browser.LaunchOptions{Headless: true})
	if err != nil {
		log.Fatalf("browser launch failed: %v", err)
	}
	defer engine.Close()

	sink, err := autologin.NewSinks(cfg.Sinks, autologin.SinkConfig{
		CollectorURL: cfg.CollectorURL,
		JSONLPath:    filepath.Join(cfg.DataDir, "results.jsonl"),
		RedisAddr:    cfg.RedisAddr,
		RedisPass:    cfg.RedisPass,
		RedisDB:      cfg.RedisDB,
		RedisPrefix:  cfg.RedisPrefix,
		MySQLDSN:     cfg.MySQLDSN,
		MySQLTable:   cfg.MySQLTable,
	})
	if err != nil {
		log.Fatalf("sink init failed: %v", err)
	}
	defer sink.Close()

	var renewer autologin.TorRenewer
	if ctrl, err := tor.Dial(cfg.TorControlAddr, cfg.TorPassword); err != nil {
		log.Printf("[main] tor control unavailable, renewal disabled: %v", err)
	} else {
		defer ctrl.Close()
		renewer = ctrl
	}

	solverClient := autologin.NewSolverClient(cfg.SolverURL)
	solverClient.MaxRetries = cfg.MaxTries

	flow := &autologin.LoginFlow{
		Engine:        engine,
		Solver:        solverClient,
		Phone:         autologin.NewPhoneClient(cfg.SolverURL),
		Proxies:       autologin.NewProxyCycle(proxies),
		TorSocks:      cfg.TorSocksAddr,
		BackendURL:    cfg.BackendURL,
		Sitekey:       cfg.Sitekey,
		CookieTimeout: cfg.CookieTimeout,
		SMSTimeout:    cfg.SMSTimeout,
	}

	runner := &autologin.Runner{
		State:    state,
		Flow:     flow,
		Sink:     sink,
		Tor:      renewer,
		MaxTries: cfg.MaxTries,
		DelayMin: 15 * time.Second,
		DelayMax: 30 * time.Second,
	}
	if err := runner.Validate(); err != nil {
		log.Fatalf("runner config invalid: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		log.Printf("interrupt received, finishing current account...")
		cancel()
	}()

	if err := runner.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalf("run failed: %v", err)
	}
	log.Printf("done")
}
