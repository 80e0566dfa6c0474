package commands

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/wonny/stockscanner/internal/contracts"
)

// ═══════════════════════════════════════════════════════════
// Common Formatting Utilities
// 모든 커맨드가 동일한 출력 포맷을 사용하도록 통일
// ═══════════════════════════════════════════════════════════

// PrintHeader prints a titled block with an optional period line
func PrintHeader(title, runID, start, end string) {
	fmt.Println()
	PrintDoubleSeparator()
	fmt.Printf("  %s\n", title)
	PrintSeparator()
	if runID != "" {
		fmt.Printf("  Run ID    : %s\n", runID)
	}
	if start != "" {
		fmt.Printf("  Period    : %s ~ %s\n", start, end)
	}
	PrintSeparator()
}

// PrintSeparator prints a visual separator
func PrintSeparator() {
	fmt.Println("───────────────────────────────────────────────────────────")
}

// PrintDoubleSeparator prints a double-line separator
func PrintDoubleSeparator() {
	fmt.Println("═══════════════════════════════════════════════════════════")
}

// PrintWarning prints a warning message
func PrintWarning(message string) {
	fmt.Printf("⚠️  %s\n", message)
}

// PrintSuccess prints a success message
func PrintSuccess(message string) {
	fmt.Printf("✅ %s\n", message)
}

// PrintError prints an error message
func PrintError(message string) {
	fmt.Printf("❌ %s\n", message)
}

// PrintTableHeader prints a table header
func PrintTableHeader(columns []string, widths []int) {
	PrintTableRow(columns, widths)

	totalWidth := 0
	for i, width := range widths {
		totalWidth += width
		if i < len(widths)-1 {
			totalWidth += 2 // spacing
		}
	}
	fmt.Println(strings.Repeat("─", totalWidth))
}

// PrintTableRow prints a table row. Widths count runes so Hangul names
// stay roughly aligned.
func PrintTableRow(values []string, widths []int) {
	var b strings.Builder
	for i, val := range values {
		b.WriteString(val)
		if pad := widths[i] - utf8.RuneCountInString(val); pad > 0 && i < len(values)-1 {
			b.WriteString(strings.Repeat(" ", pad))
		}
		if i < len(values)-1 {
			b.WriteString("  ")
		}
	}
	fmt.Println(b.String())
}

// PrintKeyValue prints key-value pairs
func PrintKeyValue(key string, value string, keyWidth int) {
	fmt.Printf("   %-*s : %s\n", keyWidth, key, value)
}

var rankingWidths = []int{4, 8, 18, 8, 10, 10, 9, 8, 8}

// PrintRanking prints return records as a ranked table
func PrintRanking(title string, rows []contracts.ReturnRecord) {
	fmt.Println()
	fmt.Printf("📊 %s (%d)\n", title, len(rows))
	if len(rows) == 0 {
		fmt.Println("   해당 없음")
		return
	}
	PrintTableHeader([]string{"#", "코드", "종목명", "시장", "시작가", "종료가", "수익률", "ROE", "영업이익률"}, rankingWidths)
	for i, r := range rows {
		PrintTableRow([]string{
			fmt.Sprintf("%d", i+1),
			r.Code,
			r.Name,
			string(r.Market),
			fmt.Sprintf("%d", r.StartPrice),
			fmt.Sprintf("%d", r.EndPrice),
			fmt.Sprintf("%+.2f%%", r.ReturnPct),
			formatRatio(r.ROE),
			formatRatio(r.OperatingMargin),
		}, rankingWidths)
	}
}

func formatRatio(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *v)
}
