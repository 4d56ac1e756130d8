package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/reputable-ai/browserhub/internal/config"
	"github.com/reputable-ai/browserhub/internal/session"
	"github.com/reputable-ai/browserhub/internal/worker"
	"github.com/reputable-ai/browserhub/internal/ws"
)

func main() {
	demoMode := flag.Bool("demo", false, "Use the scripted demo worker instead of a command backend")
	configPath := flag.String("config", "", "Path to config file")
	port := flag.Int("port", 0, "Override server port")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}

	if *port > 0 {
		cfg.Server.Port = *port
	}

	var w worker.Worker
	switch {
	case *demoMode:
		log.Println("Starting with scripted demo worker")
		w = worker.DemoScript()
	case len(flag.Args()) > 0:
		log.Printf("Starting with command worker: %v", flag.Args())
		w = &worker.Command{Argv: flag.Args()}
	default:
		log.Fatal("No worker backend: pass -demo or a worker command, e.g. `server -- browser-agent --headless`")
	}

	registry := session.NewRegistry(session.Options{
		MaxConcurrent:   cfg.Sessions.MaxConcurrent,
		RunTimeout:      cfg.Sessions.RunTimeout,
		CancelGrace:     cfg.Sessions.CancelGrace,
		CreatedIdle:     cfg.Sessions.CreatedIdle,
		Retention:       cfg.Sessions.Retention,
		SweepInterval:   cfg.Sessions.SweepInterval,
		BacklogCapacity: cfg.Stream.BacklogCapacity,
		SubscriberQueue: cfg.Stream.SubscriberQueue,
	}, w)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go registry.Run(ctx)

	server := ws.NewServer(registry, cfg.Server.AllowedOrigins, cfg.Server.AuthToken)
	mux := http.NewServeMux()
	server.SetupRoutes(mux)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Shutting down...")
		cancel()
		os.Exit(0)
	}()

	if err := ws.ListenAndServe(cfg.Server.Host, cfg.Server.Port, mux); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
