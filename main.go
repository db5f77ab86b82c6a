package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	config "taskdeck/app/configs"
	"taskdeck/app/core/interaction/http"
	"taskdeck/app/core/orchestrator/assistant"
	"taskdeck/app/core/orchestrator/chat"
	"taskdeck/app/core/orchestrator/db"
	"taskdeck/app/core/orchestrator/llm"
	"taskdeck/app/core/orchestrator/prompt"
	"taskdeck/app/core/orchestrator/task"
	"taskdeck/app/pkg/logger"
)

func main() {
	if err := logger.Init("output/logs"); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	logger.Info("Taskdeck Starting...")

	cfgManager, err := config.NewManager(config.DefaultPath())
	if err != nil {
		logger.Error("Failed to load config: %v", err)
		os.Exit(1)
	}
	cfg := cfgManager.Get()

	database, err := db.NewSQLiteDB("output/db")
	if err != nil {
		logger.Error("Failed to initialize DB: %v", err)
		os.Exit(1)
	}
	defer database.Close()
	logger.Info("Database initialized successfully")

	taskStore := task.NewStore(database)
	promptStore := prompt.NewStore(database)
	chatStore := chat.NewStore(database)

	model, err := llm.NewClient(config.APIKey(), cfg.AI.Model, cfg.AI.NarrateTemperature, cfg.AI.StructureTemperature)
	if err != nil {
		logger.Error("Failed to initialize model client: %v", err)
		os.Exit(1)
	}

	svc := assistant.NewService(model, taskStore, promptStore, chatStore, cfg.AI)

	server := http.NewServer(cfg.Server.Port, svc, taskStore, promptStore, chatStore)
	server.SetShutdownTimeout(time.Duration(cfg.Server.ShutdownTimeoutSec) * time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := server.Start(ctx); err != nil {
			logger.Error("HTTP server crashed: %v", err)
			os.Exit(1)
		}
	}()

	logger.Info("Taskdeck is ready to serve.")
	fmt.Printf("- Assistant API: http://localhost:%d/api/assistant/message (POST)\n", cfg.Server.Port)
	fmt.Printf("- Task API:      http://localhost:%d/api/tasks\n", cfg.Server.Port)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Received signal: %v. Taskdeck Shutting Down...", sig)
	cancel()
}
