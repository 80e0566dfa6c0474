package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/stockscanner/internal/contracts"
)

var infoCmd = &cobra.Command{
	Use:   "info [종목코드|종목명]",
	Short: "단일 종목 기간 수익률",
	Long: `저장소를 거치지 않고 실시간 일봉으로 한 종목의 기간 수익률과
최신 재무비율을 조회합니다.

Example:
  go run ./cmd/scanner info 삼성전자 --start 20240101 --end 20240331`,
	Args:    cobra.ExactArgs(1),
	PreRunE: validateRangeFlags(&infoStart, &infoEnd),
	RunE:    runInfo,
}

var searchCmd = &cobra.Command{
	Use:   "search [검색어]",
	Short: "종목 검색",
	Long: `종목 마스터에서 이름 또는 코드로 종목을 찾습니다.

Example:
  go run ./cmd/scanner search 삼성`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

var (
	infoStart   string
	infoEnd     string
	searchLimit  int
	searchMarket string
)

func init() {
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(searchCmd)

	infoCmd.Flags().StringVar(&infoStart, "start", "", "시작일 (YYYYMMDD)")
	infoCmd.Flags().StringVar(&infoEnd, "end", "", "종료일 (YYYYMMDD)")
	infoCmd.MarkFlagRequired("start")
	infoCmd.MarkFlagRequired("end")

	searchCmd.Flags().IntVar(&searchLimit, "limit", 20, "최대 결과 수")
	searchCmd.Flags().StringVar(&searchMarket, "market", "", "시장 필터 (KOSPI|KOSDAQ)")
}

func runInfo(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	info, err := a.service.Info(ctx, args[0], infoStart, infoEnd)
	if err != nil {
		return err
	}

	PrintHeader(fmt.Sprintf("%s (%s)", info.Name, info.Code), "", info.Start, info.End)
	PrintKeyValue("시장", info.Market.DisplayName(), 10)
	PrintKeyValue("시작가", fmt.Sprintf("%d", info.StartPrice), 10)
	PrintKeyValue("종료가", fmt.Sprintf("%d", info.EndPrice), 10)
	PrintKeyValue("수익률", fmt.Sprintf("%+.2f%%", info.ReturnPct), 10)
	PrintKeyValue("ROE", formatRatio(info.ROE), 10)
	PrintKeyValue("영업이익률", formatRatio(info.OperatingMargin), 10)
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var market contracts.Market
	if searchMarket != "" {
		if market, err = contracts.ParseMarket(searchMarket); err != nil {
			return err
		}
	}

	dir, err := a.service.Directory(ctx)
	if err != nil {
		return err
	}

	found := make([]contracts.Instrument, 0)
	for _, inst := range dir.Search(args[0], dir.Len()) {
		if market != "" && inst.Market != market {
			continue
		}
		found = append(found, inst)
		if len(found) == searchLimit {
			break
		}
	}
	if len(found) == 0 {
		PrintWarning(fmt.Sprintf("'%s' 검색 결과가 없습니다", args[0]))
		return nil
	}

	widths := []int{8, 20, 8}
	PrintTableHeader([]string{"코드", "종목명", "시장"}, widths)
	for _, inst := range found {
		PrintTableRow([]string{inst.Code, inst.Name, string(inst.Market)}, widths)
	}
	return nil
}
