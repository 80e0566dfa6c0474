package workflow

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.Korean)

// FormatSignal is the chat message for one golden cross
func FormatSignal(userID int64, item ScanItem) string {
	v := item.Verdict
	var b strings.Builder

	b.WriteString(fmt.Sprintf("%s🚨 골든크로스 신호: %s(%s)\n", mention(userID), item.Name, item.Code))
	b.WriteString(fmt.Sprintf("🕒 시각: %s\n", v.Time))
	if v.Close != nil {
		b.WriteString(printer.Sprintf("💰 종가: %.0f원\n", *v.Close))
	}
	if v.MA3 != nil && v.MA5 != nil {
		b.WriteString(printer.Sprintf("MA3: %.2f원 | MA5: %.2f원\n", *v.MA3, *v.MA5))
	}
	b.WriteString(fmt.Sprintf("💡 %s", item.Message))

	if len(item.News) > 0 {
		b.WriteString("\n\n📰 관련 뉴스:")
		for _, n := range item.News {
			b.WriteString(fmt.Sprintf("\n  • %s\n    %s", n.Title, n.Link))
		}
	}
	return b.String()
}

// FormatScanDone is the closing message of one user's scan
func FormatScanDone(userID int64, res *ScanResult) string {
	return fmt.Sprintf("%s스캔 완료: %d개 종목 중 %d개 신호 감지", mention(userID), res.Scanned, res.Signals)
}

// FormatCollection is the chat message of a finished collection
func FormatCollection(res *CollectionResult) string {
	return printer.Sprintf("수집 완료!\n📅 기간: %s ~ %s\n가격 %d건, 재무 %d건 저장됨",
		res.Start, res.End, res.PriceRows, res.FinancialRows)
}

func mention(userID int64) string {
	if userID == 0 {
		return ""
	}
	return fmt.Sprintf("[%d] ", userID)
}
