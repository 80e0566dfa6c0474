package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "관심종목 관리",
	Long: `사용자별 관심종목을 추가/삭제/조회합니다.
종목은 6자리 코드, 정확한 종목명, 종목명 일부 순으로 찾습니다.

Example:
  go run ./cmd/scanner watch add --user 42 삼성전자
  go run ./cmd/scanner watch remove --user 42 005930
  go run ./cmd/scanner watch list --user 42`,
}

var (
	watchAddCmd = &cobra.Command{
		Use:   "add [종목코드|종목명]",
		Short: "관심종목 추가",
		Args:  cobra.ExactArgs(1),
		RunE:  runWatchAdd,
	}

	watchRemoveCmd = &cobra.Command{
		Use:   "remove [종목코드|종목명]",
		Short: "관심종목 삭제",
		Args:  cobra.ExactArgs(1),
		RunE:  runWatchRemove,
	}

	watchListCmd = &cobra.Command{
		Use:   "list",
		Short: "관심종목 조회",
		RunE:  runWatchList,
	}
)

var (
	watchUser     int64
	watchPlatform string
)

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.AddCommand(watchAddCmd)
	watchCmd.AddCommand(watchRemoveCmd)
	watchCmd.AddCommand(watchListCmd)

	watchCmd.PersistentFlags().Int64Var(&watchUser, "user", 0, "사용자 ID")
	watchCmd.PersistentFlags().StringVar(&watchPlatform, "platform", "", "플랫폼 (기본: DEFAULT_PLATFORM)")
	watchCmd.MarkPersistentFlagRequired("user")
}

func runWatchAdd(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	change, err := a.service.AddWatch(ctx, watchUser, watchPlatform, args[0])
	if err != nil {
		return err
	}
	if change.Changed {
		PrintSuccess(fmt.Sprintf("%s(%s) 관심종목에 추가", change.Instrument.Name, change.Instrument.Code))
	} else {
		PrintWarning(fmt.Sprintf("%s(%s) 이미 등록된 종목입니다", change.Instrument.Name, change.Instrument.Code))
	}
	return nil
}

func runWatchRemove(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	change, err := a.service.RemoveWatch(ctx, watchUser, watchPlatform, args[0])
	if err != nil {
		return err
	}
	if change.Changed {
		PrintSuccess(fmt.Sprintf("%s(%s) 관심종목에서 삭제", change.Instrument.Name, change.Instrument.Code))
	} else {
		PrintWarning(fmt.Sprintf("%s(%s) 관심종목에 없습니다", change.Instrument.Name, change.Instrument.Code))
	}
	return nil
}

func runWatchList(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := a.service.Watchlist(ctx, watchUser, watchPlatform)
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		PrintWarning("등록된 관심종목이 없습니다")
		return nil
	}

	widths := []int{8, 18, 10, 19}
	PrintTableHeader([]string{"코드", "종목명", "플랫폼", "등록일"}, widths)
	for _, e := range entries {
		PrintTableRow([]string{e.Code, e.Name, e.Platform, e.AddedDate}, widths)
	}
	return nil
}
