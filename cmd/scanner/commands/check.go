package commands

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/stockscanner/pkg/config"
	"github.com/wonny/stockscanner/pkg/database"
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "설정 · 저장소 · 외부 API 연결 점검",
	Long: `실행 환경을 점검합니다.

이 명령어는:
- config 로드 및 검증
- 저장소 열기 (postgres면 풀 상태까지)
- Redis 연결
- KIS 토큰 발급과 종목 마스터 다운로드
- 네이버 뉴스 / 텔레그램 설정 여부

Example:
  go run ./cmd/scanner check
  go run ./cmd/scanner check --offline
  go run ./cmd/scanner check --notify`,
	RunE: runCheck,
}

var (
	checkOffline bool
	checkNotify  bool
)

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().BoolVar(&checkOffline, "offline", false, "외부 API 호출 생략")
	checkCmd.Flags().BoolVar(&checkNotify, "notify", false, "텔레그램 테스트 메시지 전송")
}

func runCheck(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Stock Scanner Environment Check ===")

	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		PrintError(err.Error())
		return err
	}
	defer a.Close()

	cfg := a.cfg
	PrintSuccess(fmt.Sprintf("Config loaded (ENV: %s)", cfg.Env))
	PrintKeyValue("Store", cfg.Store.Driver, 10)
	PrintKeyValue("Data dir", cfg.Store.DataDir, 10)
	PrintKeyValue("KIS", cfg.KIS.BaseURL, 10)
	PrintKeyValue("Schedule", fmt.Sprintf("%s (%s)", cfg.Scanner.ScanSchedule, cfg.Scanner.ScanTimezone), 10)
	fmt.Println()

	PrintSuccess("Store opened")
	if cfg.Store.Driver == "postgres" {
		if err := checkPostgres(ctx, cfg.Database); err != nil {
			PrintError(err.Error())
			return err
		}
	}

	if a.redis.Enabled() {
		PrintSuccess("Redis connected")
	} else {
		PrintWarning("Redis disabled (cache and shared rate limit off)")
	}

	if a.naver.Enabled() {
		PrintSuccess("Naver news search configured")
	} else {
		PrintWarning("Naver credentials missing, signals will carry no news")
	}
	if a.notify.Enabled() {
		PrintSuccess("Telegram configured")
	} else {
		PrintWarning("Telegram not configured, notifications disabled")
	}

	if checkOffline {
		fmt.Println("\n✅ Offline checks passed")
		return nil
	}

	callCtx, cancelCall := context.WithTimeout(ctx, 60*time.Second)
	defer cancelCall()

	if err := a.kis.Authenticate(callCtx); err != nil {
		PrintError(fmt.Sprintf("KIS token: %v", err))
		return err
	}
	PrintSuccess("KIS token issued")

	quote, err := a.kis.CheckConnection(callCtx)
	if err != nil {
		PrintError(fmt.Sprintf("KIS quotation: %v", err))
		return err
	}
	PrintSuccess(fmt.Sprintf("KIS quotation OK (%s %d원)", quote.Code, quote.Price))

	all, err := a.master.All(callCtx)
	if err != nil {
		PrintError(fmt.Sprintf("Instrument master: %v", err))
		return err
	}
	PrintSuccess(fmt.Sprintf("Instrument master loaded (%d instruments)", len(all)))

	if checkNotify {
		if err := a.notify.Send(callCtx, "✅ stock scanner check"); err != nil {
			PrintError(fmt.Sprintf("Telegram: %v", err))
			return err
		}
		PrintSuccess("Telegram test message sent")
	}

	fmt.Println("\n✅ All checks passed!")
	return nil
}

// checkPostgres opens a short-lived pool and prints its health
func checkPostgres(ctx context.Context, cfg config.DatabaseConfig) error {
	PrintKeyValue("Database", maskPassword(cfg.URL), 10)

	db, err := database.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	status := db.HealthCheck(ctx)
	if !status.Healthy {
		return fmt.Errorf("database unhealthy: %s", status.Error)
	}

	PrintSuccess("Postgres healthy")
	PrintKeyValue("Response", status.ResponseTime.String(), 10)
	PrintKeyValue("Conns", fmt.Sprintf("%d total / %d idle / %d acquired",
		status.TotalConns, status.IdleConns, status.AcquiredConns), 10)
	return nil
}

// maskPassword hides the password of a database URL for display
func maskPassword(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}
