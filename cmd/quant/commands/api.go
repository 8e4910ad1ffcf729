package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-etf/internal/api"
	"github.com/wonny/aegis-etf/internal/api/handlers"
	"github.com/wonny/aegis-etf/internal/realtime"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "API 서버 시작",
	Long: `REST API 서버를 시작합니다.

Endpoints:
  GET  /health               - Health check
  GET  /metrics              - Prometheus metrics
  GET  /api/signal/latest    - 최신 Top-K 추천 (?refresh=true 캐시 무시)
  GET  /api/weights/latest   - 마지막 저장된 목표 비중 (DB 필요)
  POST /api/backtest         - 백테스트 실행
  GET  /api/backtest/runs    - 저장된 백테스트 요약 (DB 필요)
  GET  /ws/signal            - 추천 스트림 (WebSocket)

Example:
  go run ./cmd/quant api
  go run ./cmd/quant api --port 8080 --with-scheduler`,
	RunE: runAPIServer,
}

var (
	apiPort          string
	apiWithScheduler bool
)

func init() {
	rootCmd.AddCommand(apiCmd)

	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (기본: PORT)")
	apiCmd.Flags().BoolVar(&apiWithScheduler, "with-scheduler", false, "스케줄러를 같은 프로세스에서 실행")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Aegis ETF API Server ===")

	a, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	if apiPort != "" {
		a.cfg.Port = apiPort
	}

	orch, err := a.orchestrator()
	if err != nil {
		return fmt.Errorf("init orchestrator: %w", err)
	}
	id := a.strategy.Meta.StrategyID

	// typed nil 이 인터페이스로 새지 않도록 명시적으로 분기
	var (
		health  handlers.HealthChecker
		weights handlers.WeightReader
		runs    handlers.RunLister
	)
	if a.db != nil {
		health, weights, runs = a.db, a.weights, a.audit
	}

	// redis 가 없으면 프로세스 내 캐시, 어느 쪽이든 허브가 구독자에게 전파
	var store realtime.Store = realtime.NewMemoryCache(24*time.Hour, a.log)
	if a.redis.Enabled() {
		store = a.cache
	}
	hub := realtime.NewHub(store, id, a.log)
	defer hub.Close()
	orch.WithCache(hub)

	router := api.NewRouter(api.Handlers{
		Health:   handlers.NewHealthHandler(health, "aegis-etf"),
		Signal:   handlers.NewSignalHandler(id, orch, hub, weights, a.metrics, a.log),
		Backtest: handlers.NewBacktestHandler(id, orch, runs, a.log),
		Stream:   hub,
	}, a.metrics, a.log)

	server := api.New(a.cfg, a.log, router)

	if apiWithScheduler {
		sched, err := buildScheduler(a, orch)
		if err != nil {
			return fmt.Errorf("init scheduler: %w", err)
		}
		sched.Start()
		defer sched.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	a.log.Info("API server started successfully")
	fmt.Printf("\n✅ Server running on http://localhost:%s\n", a.cfg.Port)
	fmt.Println("\nPress Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	a.log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	a.log.Info("Server stopped")
	return nil
}
