package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
	env        string
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "scanner",
	Short: "KOSPI/KOSDAQ 수익률 랭킹 · 골든크로스 스캐너",
	Long: `Stock Scanner CLI

기간 수익률 랭킹, 재진입 종목 비교, 관심종목 골든크로스 스캔.
수집(collect) → 분석(analyze) → 스캔(scan) 순서로 사용합니다.

Usage:
  go run ./cmd/scanner [command]

Examples:
  go run ./cmd/scanner collect --start 20240101 --end 20240331
  go run ./cmd/scanner analyze --start 20240101 --end 20240331
  go run ./cmd/scanner watch add --user 42 삼성전자
  go run ./cmd/scanner api`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().StringVar(&env, "env", "", "environment override (development|staging|production)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
