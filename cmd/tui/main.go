// ====================================
// File: cmd/tui/main.go
// ====================================
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rovshanmuradov/solana-pnl/internal/app"
	"github.com/rovshanmuradov/solana-pnl/internal/config"
	"github.com/rovshanmuradov/solana-pnl/internal/logger"
	"github.com/rovshanmuradov/solana-pnl/internal/ui"
	"github.com/rovshanmuradov/solana-pnl/internal/utils"
	filelog "github.com/rovshanmuradov/solana-pnl/internal/utils/logger"
)

const (
	logBufferSize = 500
	uiQueueSize   = 64
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	refresh := flag.Duration("refresh", 10*time.Second, "Dashboard refresh interval")
	flag.Parse()

	_ = godotenv.Load()

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Терминал занят TUI: файл плюс буфер для панели логов
	fileCfg := filelog.DefaultConfig()
	fileCfg.Quiet = true
	fileCfg.Development = cfg.DebugLogging
	if cfg.LogFile != "" {
		fileCfg.LogFile = cfg.LogFile
	}
	fileLogger, err := filelog.New(fileCfg)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	buffer, err := logger.NewLogBuffer(logBufferSize, filepath.Join(filepath.Dir(fileCfg.LogFile), "tui_spill.log"), fileLogger.Logger)
	if err != nil {
		log.Fatalf("Failed to init log buffer: %v", err)
	}
	tuiLogger, err := logger.NewTUILogger(cfg.DebugLogging, buffer)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	appLogger := zap.New(zapcore.NewTee(fileLogger.Core(), tuiLogger.Core()))
	defer func() {
		_ = appLogger.Sync()
		utils.CloseWithLog(fileLogger.Logger, "log_buffer", buffer)
	}()

	appLogger.Info("🚀 Starting Solana PnL dashboard")

	a, err := app.New(rootCtx, cfg, appLogger)
	if err != nil {
		appLogger.Error("💥 Failed to initialize", zap.Error(err))
		log.Fatalf("Failed to initialize: %v", err)
	}

	sender := ui.NewUpdateSender(make(chan tea.Msg, uiQueueSize), appLogger)
	defer sender.Close()
	ui.BridgeEvents(a.Bus, sender)

	runCtx, cancelRun := context.WithCancel(rootCtx)
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		utils.HandleError(appLogger, a.Run(runCtx), "Poller stopped with error")
	}()

	dashboard := ui.NewDashboard(a, ui.Options{
		Wallets:      cfg.Wallets,
		RefreshEvery: *refresh,
		Logs:         buffer,
		Updates:      sender,
	}, appLogger)

	program := tea.NewProgram(dashboard, tea.WithAltScreen(), tea.WithContext(rootCtx))
	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		appLogger.Error("💥 TUI application failed", zap.Error(err))
	}

	appLogger.Info("🛑 Shutting down dashboard")
	cancelRun()
	<-runDone

	closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	utils.HandleError(appLogger, a.Close(closeCtx), "Shutdown finished with errors")
}
