// Package report writes the analysis report artifact and its chat summary.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wonny/stockscanner/internal/contracts"
	"github.com/wonny/stockscanner/internal/reentry"
)

// NoEntriesMessage fills a section that has nothing to show
const NoEntriesMessage = "해당 없음"

// NoWatchlistMessage fills the watchlist section of a user without data
const NoWatchlistMessage = "등록된 관심종목이 없거나 해당 기간 데이터가 없습니다"

// Report is the document serialized to report_{start}_{end}.yaml
type Report struct {
	Start       string    `yaml:"start"`
	End         string    `yaml:"end"`
	GeneratedAt string    `yaml:"generated_at"`
	Combined    Section   `yaml:"combined"`
	Markets     []Section `yaml:"markets"`
	Reentry     Reentry   `yaml:"reentry"`
	Watchlist   *Section  `yaml:"watchlist,omitempty"`
}

// Section is one ranked table
type Section struct {
	Title   string `yaml:"title"`
	Message string `yaml:"message,omitempty"`
	Rows    []Row  `yaml:"rows,omitempty"`
}

// Row is one ranked instrument
type Row struct {
	Rank            int      `yaml:"rank"`
	Code            string   `yaml:"code"`
	Name            string   `yaml:"name"`
	StartPrice      int64    `yaml:"start_price"`
	EndPrice        int64    `yaml:"end_price"`
	ReturnPct       float64  `yaml:"return_pct"`
	ROE             *float64 `yaml:"roe,omitempty"`
	OperatingMargin *float64 `yaml:"operating_margin,omitempty"`
}

// Reentry is the reentry section
type Reentry struct {
	PreviousSnapshot string           `yaml:"previous_snapshot,omitempty"`
	Message          string           `yaml:"message,omitempty"`
	Entries          []reentry.Result `yaml:"entries,omitempty"`
}

// Input carries everything a report is built from
type Input struct {
	Start, End       string
	Combined         []contracts.ReturnRecord
	ByMarket         map[contracts.Market][]contracts.ReturnRecord
	Reentry          []reentry.Result
	PreviousSnapshot string
	// Watchlist is nil when no user was given; an empty slice still gets a section
	Watchlist []contracts.ReturnRecord
}

// Path returns the report location for a range
func Path(dir, start, end string) string {
	return filepath.Join(dir, fmt.Sprintf("report_%s_%s.yaml", start, end))
}

// Build assembles the report document
func Build(in Input, generatedAt time.Time) Report {
	r := Report{
		Start:       in.Start,
		End:         in.End,
		GeneratedAt: generatedAt.Format(time.RFC3339),
		Combined:    section(fmt.Sprintf("통합 TOP%d", len(in.Combined)), in.Combined, NoEntriesMessage),
	}

	for _, m := range contracts.Markets {
		records := in.ByMarket[m]
		r.Markets = append(r.Markets, section(fmt.Sprintf("%s TOP%d", m.DisplayName(), len(records)), records, NoEntriesMessage))
	}

	r.Reentry = Reentry{PreviousSnapshot: in.PreviousSnapshot, Entries: in.Reentry}
	if len(in.Reentry) == 0 {
		r.Reentry.Message = NoEntriesMessage
	}

	if in.Watchlist != nil {
		wl := section("관심종목", in.Watchlist, NoWatchlistMessage)
		r.Watchlist = &wl
	}
	return r
}

func section(title string, records []contracts.ReturnRecord, empty string) Section {
	s := Section{Title: title}
	if len(records) == 0 {
		s.Message = empty
		return s
	}
	s.Rows = make([]Row, len(records))
	for i, rec := range records {
		s.Rows[i] = Row{
			Rank:            i + 1,
			Code:            rec.Code,
			Name:            rec.Name,
			StartPrice:      rec.StartPrice,
			EndPrice:        rec.EndPrice,
			ReturnPct:       rec.ReturnPct,
			ROE:             rec.ROE,
			OperatingMargin: rec.OperatingMargin,
		}
	}
	return s
}

// Write builds the report and stores it under dir, returning its path
func Write(dir string, in Input, generatedAt time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}

	data, err := yaml.Marshal(Build(in, generatedAt))
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}

	path := Path(dir, in.Start, in.End)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

// Read loads a report written by Write
func Read(path string) (Report, error) {
	var r Report
	data, err := os.ReadFile(path)
	if err != nil {
		return r, fmt.Errorf("read report: %w", err)
	}
	if err := yaml.Unmarshal(data, &r); err != nil {
		return r, fmt.Errorf("parse report: %w", err)
	}
	return r, nil
}

// Summary is the short chat message announcing a finished analysis
func Summary(in Input, reportPath string) string {
	var b strings.Builder
	b.WriteString("📊 코스피/코스닥 수익률 분석 완료\n")
	b.WriteString(fmt.Sprintf("📅 기간: %s ~ %s\n", in.Start, in.End))

	for _, m := range contracts.Markets {
		b.WriteString(fmt.Sprintf("\n🏆 %s TOP 3:\n", m.DisplayName()))
		records := in.ByMarket[m]
		for i := 0; i < len(records) && i < 3; i++ {
			b.WriteString(fmt.Sprintf("%d. %s (%+.2f%%)\n", i+1, records[i].Name, records[i].ReturnPct))
		}
	}

	b.WriteString(fmt.Sprintf("\n🔄 재진입 종목: %d개\n", len(in.Reentry)))
	if reportPath != "" {
		b.WriteString(fmt.Sprintf("📎 상세 리포트: %s", reportPath))
	}
	return b.String()
}
