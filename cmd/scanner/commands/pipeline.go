package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/stockscanner/internal/contracts"
	"github.com/wonny/stockscanner/internal/workflow"
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "일봉/재무 데이터 수집",
	Long: `코스피·코스닥 전 종목의 기간 일봉을 수집하고, 상위 종목의 재무비율을 갱신합니다.

이미 저장된 구간을 덮는 종목은 건너뜁니다 (주말/휴일 허용 오차 적용).

Example:
  go run ./cmd/scanner collect --start 20240101 --end 20240331`,
	RunE: runCollect,
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "수익률 랭킹 · 재진입 분석",
	Long: `저장된 일봉으로 시장별/통합 수익률 상위 종목을 산출하고,
직전 스냅샷과 비교해 재진입 종목을 찾은 뒤 리포트를 씁니다.

Example:
  go run ./cmd/scanner analyze --start 20240101 --end 20240331
  go run ./cmd/scanner analyze --start 20240101 --end 20240331 --user 42`,
	RunE: runAnalyze,
}

var scanCmd = &cobra.Command{
	Use:   "scan [종목코드|종목명...]",
	Short: "골든크로스 스캔",
	Long: `분봉 이동평균(MA3/MA5) 골든크로스를 확인합니다.

- 인자 지정: 해당 종목만 스캔
- --user 지정: 그 사용자의 관심종목 스캔 후 알림
- 둘 다 없으면: 기본 플랫폼의 모든 사용자 스캔 후 알림

Example:
  go run ./cmd/scanner scan 005930 카카오
  go run ./cmd/scanner scan --user 42
  go run ./cmd/scanner scan`,
	RunE: runScan,
}

var (
	rangeStart string
	rangeEnd   string
	analyzeUID    int64
	scanUID       int64
	collectNotify bool
)

func init() {
	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(scanCmd)

	for _, c := range []*cobra.Command{collectCmd, analyzeCmd} {
		c.Flags().StringVar(&rangeStart, "start", "", "시작일 (YYYYMMDD)")
		c.Flags().StringVar(&rangeEnd, "end", "", "종료일 (YYYYMMDD)")
		c.MarkFlagRequired("start")
		c.MarkFlagRequired("end")
		c.PreRunE = validateRangeFlags(&rangeStart, &rangeEnd)
	}
	collectCmd.Flags().BoolVar(&collectNotify, "notify", false, "완료 후 텔레그램으로 결과 전송")
	analyzeCmd.Flags().Int64Var(&analyzeUID, "user", 0, "관심종목 섹션을 포함할 사용자 ID")
	scanCmd.Flags().Int64Var(&scanUID, "user", 0, "스캔할 사용자 ID")
}

// validateRangeFlags rejects malformed dates before any connection is opened
func validateRangeFlags(start, end *string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		for _, d := range []string{*start, *end} {
			if err := workflow.ValidateDate(d); err != nil {
				return err
			}
		}
		if *start > *end {
			return fmt.Errorf("start %s is after end %s", *start, *end)
		}
		return nil
	}
}

// signalContext is cancelled on Ctrl+C so a long run stops dispatching
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runCollect(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	PrintHeader("Data Collection", "", rangeStart, rangeEnd)

	res, err := a.service.RunCollection(ctx, rangeStart, rangeEnd)
	if err != nil {
		PrintError(err.Error())
		return err
	}

	widths := []int{8, 8, 8, 8, 8, 10}
	PrintTableHeader([]string{"시장", "종목수", "캐시", "수집", "실패", "저장행"}, widths)
	for _, m := range res.Markets {
		PrintTableRow([]string{
			string(m.Market),
			fmt.Sprintf("%d", m.Instruments),
			fmt.Sprintf("%d", m.Cached),
			fmt.Sprintf("%d", m.Fetched),
			fmt.Sprintf("%d", m.Failed),
			fmt.Sprintf("%d", m.Rows),
		}, widths)
	}
	fmt.Println()
	PrintKeyValue("Price rows", fmt.Sprintf("%d", res.PriceRows), 14)
	PrintKeyValue("Financials", fmt.Sprintf("%d", res.FinancialRows), 14)
	PrintKeyValue("Run ID", res.RunID, 14)
	fmt.Println()
	PrintSuccess(fmt.Sprintf("Collection completed in %.2fs", res.Duration.Seconds()))

	if collectNotify {
		if err := a.notify.Send(ctx, workflow.FormatCollection(res)); err != nil {
			PrintWarning(fmt.Sprintf("Telegram: %v", err))
		}
	}
	return nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var userID *int64
	if cmd.Flags().Changed("user") {
		userID = &analyzeUID
	}

	res, err := a.service.RunAnalysis(ctx, rangeStart, rangeEnd, userID)
	if err != nil {
		PrintError(err.Error())
		return err
	}

	PrintHeader("Return Analysis", res.RunID, res.Start, res.End)
	PrintRanking("통합", res.Combined)
	for _, m := range contracts.Markets {
		PrintRanking(m.DisplayName(), res.ByMarket[m])
	}
	if userID != nil {
		PrintRanking("관심종목", res.Watchlist)
	}

	fmt.Println()
	if res.PreviousSnapshot == "" {
		PrintWarning("비교할 이전 스냅샷이 없습니다")
	} else {
		fmt.Printf("🔁 재진입 (vs %s): %d\n", res.PreviousSnapshot, len(res.Reentry))
		for _, r := range res.Reentry {
			fmt.Printf("   %s %s  %d위 → %d위\n", r.Code, r.Name, r.PreviousRank, r.CurrentRank)
		}
	}

	fmt.Println()
	PrintKeyValue("Snapshot", res.SnapshotPath, 10)
	PrintKeyValue("Report", res.ReportPath, 10)
	return nil
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	switch {
	case len(args) > 0:
		instruments := make([]contracts.Instrument, 0, len(args))
		for _, q := range args {
			inst, err := a.service.Resolve(ctx, q)
			if err != nil {
				PrintWarning(fmt.Sprintf("%s: %v", q, err))
				continue
			}
			instruments = append(instruments, inst)
		}
		if len(instruments) == 0 {
			return fmt.Errorf("no instrument resolved")
		}
		res, err := a.service.ScanWatchlist(ctx, instruments)
		if err != nil {
			return err
		}
		printScan(0, res)

	case cmd.Flags().Changed("user"):
		res, err := a.service.ScanUser(ctx, scanUID)
		if err != nil {
			return err
		}
		printScan(scanUID, res)

	default:
		scans, err := a.service.ScanAll(ctx)
		for _, us := range scans {
			if us.Error != "" {
				PrintError(fmt.Sprintf("user %d: %s", us.UserID, us.Error))
				continue
			}
			printScan(us.UserID, us.Result)
		}
		if err != nil {
			return err
		}
		if len(scans) == 0 {
			PrintWarning("등록된 관심종목이 없습니다")
		}
	}
	return nil
}

func printScan(userID int64, res *workflow.ScanResult) {
	title := "Golden Cross Scan"
	if userID != 0 {
		title = fmt.Sprintf("Golden Cross Scan (user %d)", userID)
	}
	PrintHeader(title, res.RunID, "", "")

	for _, item := range res.Items {
		switch {
		case item.Error != "":
			PrintError(fmt.Sprintf("%s %s: %s", item.Code, item.Name, item.Error))
		case item.Verdict.Signal:
			fmt.Printf("🚀 %s %s  %s\n", item.Code, item.Name, item.Message)
			for _, n := range item.News {
				fmt.Printf("   📰 %s\n      %s\n", n.Title, n.Link)
			}
		default:
			fmt.Printf("   %s %s  %s\n", item.Code, item.Name, item.Message)
		}
	}

	fmt.Println()
	PrintSuccess(fmt.Sprintf("%d scanned, %d signals, %d failed in %s",
		res.Scanned, res.Signals, res.Failed, res.Duration.Round(time.Millisecond)))
}
