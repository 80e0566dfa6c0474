package contracts

// Instrument is one entry of the exchange master listing
type Instrument struct {
	Code   string `json:"code"` // 6자리 종목코드
	Name   string `json:"name"`
	Market Market `json:"market"`
}

// DailyPriceRow is one trading day of one instrument.
// Unique per (Date, Code); re-collection overwrites.
type DailyPriceRow struct {
	Date   string `json:"date"` // YYYYMMDD
	Code   string `json:"code"`
	Name   string `json:"name"`
	Market Market `json:"market"`
	Open   int64  `json:"open"`
	High   int64  `json:"high"`
	Low    int64  `json:"low"`
	Close  int64  `json:"close"`
	Volume int64  `json:"volume"`
}

// ReturnRecord is the derived period return of one instrument
type ReturnRecord struct {
	Code       string  `json:"code" yaml:"code"`
	Name       string  `json:"name" yaml:"name"`
	Market     Market  `json:"market" yaml:"market"`
	StartPrice int64   `json:"start_price" yaml:"start_price"`
	EndPrice   int64   `json:"end_price" yaml:"end_price"`
	ReturnPct  float64 `json:"return_pct" yaml:"return_pct"`

	// 재무 병합 결과 (없으면 nil)
	ROE             *float64 `json:"roe,omitempty" yaml:"roe,omitempty"`
	OperatingMargin *float64 `json:"operating_margin,omitempty" yaml:"operating_margin,omitempty"`
}

// FinancialRow holds the latest ratios of one instrument; refreshed wholesale
type FinancialRow struct {
	Code            string   `json:"code"`
	ROE             *float64 `json:"roe,omitempty"`
	OperatingMargin *float64 `json:"operating_margin,omitempty"`
	UpdatedDate     string   `json:"updated_date"` // YYYYMMDD
}

// WatchlistEntry is one subscribed instrument of one user on one platform
type WatchlistEntry struct {
	UserID    int64  `json:"user_id"`
	Platform  string `json:"platform"`
	Code      string `json:"code"`
	Name      string `json:"name"`
	AddedDate string `json:"added_date"` // YYYY-MM-DD HH:MM:SS
}

// Key identifies the instrument in batch logs
func (i Instrument) Key() string {
	return i.Code
}
