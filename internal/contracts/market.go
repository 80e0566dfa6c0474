package contracts

import (
	"fmt"
	"strings"
	"time"
)

// Market identifies one of the two exchange segments the scanner covers
// ⭐ SSOT: 시장 구분은 여기서만 정의
type Market string

const (
	MarketKOSPI  Market = "KOSPI"
	MarketKOSDAQ Market = "KOSDAQ"
)

// Markets lists every supported market in collection order
var Markets = []Market{MarketKOSPI, MarketKOSDAQ}

// DisplayName returns the Korean label used in reports and messages
func (m Market) DisplayName() string {
	switch m {
	case MarketKOSPI:
		return "코스피"
	case MarketKOSDAQ:
		return "코스닥"
	default:
		return string(m)
	}
}

// ParseMarket accepts the code or the Korean label, case-insensitively
func ParseMarket(s string) (Market, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "KOSPI", "코스피", "J":
		return MarketKOSPI, nil
	case "KOSDAQ", "코스닥", "Q":
		return MarketKOSDAQ, nil
	}
	return "", fmt.Errorf("unknown market %q", s)
}

// DateLayout is the YYYYMMDD form used for every trading date
const DateLayout = "20060102"

// ParseDate validates an 8-digit calendar date
func ParseDate(s string) (time.Time, error) {
	if len(s) != 8 {
		return time.Time{}, fmt.Errorf("date %q: want YYYYMMDD", s)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return time.Time{}, fmt.Errorf("date %q: want YYYYMMDD", s)
		}
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q: %w", s, err)
	}
	return t, nil
}

// ValidateRange checks both dates and that start does not come after end
func ValidateRange(start, end string) error {
	s, err := ParseDate(start)
	if err != nil {
		return err
	}
	e, err := ParseDate(end)
	if err != nil {
		return err
	}
	if s.After(e) {
		return fmt.Errorf("start %s is after end %s", start, end)
	}
	return nil
}
