package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/stockscanner/internal/api"
	"github.com/wonny/stockscanner/internal/api/handlers"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "API 서버 시작",
	Long: `REST API 서버를 시작합니다.

Endpoints:
  GET    /health          - Health check (실행 중 여부 포함)
  POST   /api/collect     - 데이터 수집
  POST   /api/analyze     - 수익률 분석
  POST   /api/scan        - 골든크로스 스캔
  GET    /api/info        - 단일 종목 수익률
  GET    /api/watchlist   - 관심종목 조회
  POST   /api/watchlist   - 관심종목 추가
  DELETE /api/watchlist   - 관심종목 삭제
  GET    /metrics         - Prometheus metrics
  GET    /ws/signals      - 신호 스트림 (WebSocket)

Example:
  go run ./cmd/scanner api
  go run ./cmd/scanner api --port 8080 --with-scheduler`,
	RunE: runAPIServer,
}

var (
	apiPort          string
	apiWithScheduler bool
	apiHistory       int
)

func init() {
	rootCmd.AddCommand(apiCmd)

	// Flags
	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (기본: PORT)")
	apiCmd.Flags().BoolVar(&apiWithScheduler, "with-scheduler", false, "스캔 스케줄러를 같은 프로세스에서 실행")
	apiCmd.Flags().IntVar(&apiHistory, "signal-history", 50, "새 WebSocket 클라이언트에 보낼 최근 신호 수")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Stock Scanner API Server ===")

	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	// Override port if flag is set
	if apiPort != "" {
		a.cfg.Port = apiPort
	}
	log := a.log

	log.WithFields(map[string]interface{}{
		"port": a.cfg.Port,
		"env":  a.cfg.Env,
	}).Info("Initializing API server")

	hub := api.NewHub(apiHistory, log)
	a.service.SetPublisher(hub)

	handler := handlers.NewPipelineHandler(a.service, log)
	router := api.NewRouter(handler, a.service.Gate(), hub, api.RouterOptions{Metrics: a.cfg.MetricsEnabled}, log)
	server := api.New(a.cfg, log, router)

	if apiWithScheduler {
		sched, err := buildScheduler(a)
		if err != nil {
			return err
		}
		sched.Start()
		defer sched.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	log.Info("API server started successfully")
	fmt.Printf("\n✅ Server running on http://localhost:%s\n", a.cfg.Port)
	fmt.Println("\nPress Ctrl+C to stop")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Server stopped")
	return nil
}
