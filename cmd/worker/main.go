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

	"github.com/avoronin/fleetling/internal/worker/agent"
	"github.com/avoronin/fleetling/internal/worker/docker"
)

func main() {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	workerName := requireEnv("WORKER_NAME")
	appImage := requireEnv("APP_IMAGE")
	appGitRepo := requireEnv("APP_GIT_REPO")
	appDockerfile := requireEnv("APP_DOCKERFILE")
	healthcheck := os.Getenv("HEALTHCHECK_API")

	appPort := requireIntEnv("APP_PORT")
	workerPort := requireIntEnv("WORKER_PORT")

	dockerClient, err := docker.NewClient()
	if err != nil {
		log.Fatalf("failed to create docker client: %v", err)
	}
	defer func() { _ = dockerClient.Close() }()

	httpClient := &http.Client{Timeout: 10 * time.Second}
	runner := agent.NewAppRunner(
		dockerClient, httpClient,
		appImage, appPort, healthcheck, appDockerfile, appGitRepo,
	)
	server := agent.NewServer(workerName, runner)

	e := echo.New()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	server.RegisterRoutes(e)

	go func() {
		addr := fmt.Sprintf("0.0.0.0:%d", workerPort)
		log.Printf("worker agent %s listening on %s", workerName, addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.Logger.Fatal("shutting down the server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	e.Logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		e.Logger.Fatal(err)
	}

	e.Logger.Info("server stopped")
}

func requireEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		log.Fatalf("%s env variable is required", key)
	}
	return value
}

func requireIntEnv(key string) int {
	value, err := strconv.Atoi(requireEnv(key))
	if err != nil {
		log.Fatalf("invalid %s: %v", key, err)
	}
	return value
}
