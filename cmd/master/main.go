package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/avoronin/fleetling/internal/config"
	"github.com/avoronin/fleetling/internal/master/api"
	"github.com/avoronin/fleetling/internal/master/manager"
	"github.com/avoronin/fleetling/internal/master/poller"
	"github.com/avoronin/fleetling/internal/master/registry"
	"github.com/avoronin/fleetling/internal/master/remote"
	"github.com/avoronin/fleetling/internal/master/scheduler"
)

func main() {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	sshUser := os.Getenv("SSH_USER")
	if sshUser == "" {
		log.Fatal("no SSH_USER env variable provided for ssh remote VMs")
	}

	configPath := os.Getenv("CONFIG_MASTER")
	if configPath == "" {
		log.Fatal("CONFIG_MASTER env variable is required")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("failed to load master config: %v", err)
	}

	apiPort := 8000
	if portEnv := os.Getenv("MASTER_API_PORT"); portEnv != "" {
		apiPort, err = strconv.Atoi(portEnv)
		if err != nil {
			log.Fatalf("invalid MASTER_API_PORT %q: %v", portEnv, err)
		}
	}

	// One HTTP client shared by every caller that talks to worker agents
	httpClient := &http.Client{Timeout: 5 * time.Second}

	reg := registry.New()
	client := remote.NewClient(httpClient, sshUser, cfg.AppInfo, cfg.WorkerInfo)
	mgr := manager.New(reg, client, scheduler.NewFirstFree(), cfg.WorkerLimits, cfg.VirtualMachines)
	server := api.NewServer(reg, mgr, cfg)

	e := echo.New()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	server.RegisterRoutes(e)

	pollCtx, cancelPoll := context.WithCancel(context.Background())
	defer cancelPoll()

	p := poller.New(mgr)
	go p.Run(pollCtx)

	go func() {
		addr := fmt.Sprintf("0.0.0.0:%d", apiPort)
		log.Printf("master API listening on %s", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.Logger.Fatal("shutting down the server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	e.Logger.Info("shutting down server...")
	cancelPoll()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		e.Logger.Fatal(err)
	}

	e.Logger.Info("server stopped")
}
