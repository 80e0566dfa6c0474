package signals

import "math"

// Candle is one intraday bar of one instrument, held only for a scan
type Candle struct {
	Time   string `json:"time"` // HHMMSS
	Open   int64  `json:"open"`
	High   int64  `json:"high"`
	Low    int64  `json:"low"`
	Close  int64  `json:"close"`
	Volume int64  `json:"volume"`
}

// Reason identifies which diagnostic state a verdict ended in
type Reason string

const (
	ReasonInsufficientCandles Reason = "insufficient_candles"
	ReasonLatestMAUndefined   Reason = "latest_ma_undefined"
	ReasonPreviousMAUndefined Reason = "previous_ma_undefined"
	ReasonGoldenCross         Reason = "golden_cross"
	ReasonAlreadyAbove        Reason = "already_above"
	ReasonStillBelow          Reason = "still_below"
)

// Message returns the human-readable text for chat and reports
func (r Reason) Message() string {
	switch r {
	case ReasonInsufficientCandles:
		return "데이터 부족 (최소 6개 캔들 필요)"
	case ReasonLatestMAUndefined:
		return "이동평균 계산 불가"
	case ReasonPreviousMAUndefined:
		return "이전 캔들 이동평균 계산 불가"
	case ReasonGoldenCross:
		return "MA3이 MA5를 상향 돌파 (골든크로스)"
	case ReasonAlreadyAbove:
		return "이전 캔들에서 이미 MA3 > MA5"
	case ReasonStillBelow:
		return "MA3이 아직 MA5 하회"
	default:
		return string(r)
	}
}

const (
	shortWindow = 3
	longWindow  = 5

	// MinCandles is the shortest series the detector evaluates
	MinCandles = 6
)

// Verdict is the result of one crossover check. Signal is true only for
// ReasonGoldenCross.
type Verdict struct {
	Signal bool     `json:"signal"`
	Time   string   `json:"time,omitempty"`
	Close  *float64 `json:"close,omitempty"`
	MA3    *float64 `json:"ma3,omitempty"` // 2자리 반올림
	MA5    *float64 `json:"ma5,omitempty"`
	Reason Reason   `json:"reason"`
}

// DetectGoldenCross checks whether MA3 moved from at-or-below MA5 on the
// previous candle to strictly above it on the latest one. candles must be
// ordered oldest first. The check is an edge detector: once the cross is
// one candle old the verdict is ReasonAlreadyAbove.
func DetectGoldenCross(candles []Candle) Verdict {
	if len(candles) < MinCandles {
		return Verdict{Reason: ReasonInsufficientCandles}
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = float64(c.Close)
	}

	last := len(candles) - 1
	latest := candles[last]
	closeVal := closes[last]

	v := Verdict{
		Time:  latest.Time,
		Close: &closeVal,
	}

	ma3, ok3 := sma(closes, last, shortWindow)
	ma5, ok5 := sma(closes, last, longWindow)
	if ok3 {
		v.MA3 = round2(ma3)
	}
	if ok5 {
		v.MA5 = round2(ma5)
	}
	if !ok3 || !ok5 {
		v.Reason = ReasonLatestMAUndefined
		return v
	}

	prevMA3, okPrev3 := sma(closes, last-1, shortWindow)
	prevMA5, okPrev5 := sma(closes, last-1, longWindow)
	if !okPrev3 || !okPrev5 {
		v.Reason = ReasonPreviousMAUndefined
		return v
	}

	prevBelow := prevMA3 <= prevMA5
	currAbove := ma3 > ma5

	switch {
	case prevBelow && currAbove:
		v.Signal = true
		v.Reason = ReasonGoldenCross
	case !prevBelow:
		v.Reason = ReasonAlreadyAbove
	default:
		v.Reason = ReasonStillBelow
	}
	return v
}

// sma is the trailing simple moving average ending at index i. It is
// undefined until window closes exist or when any input is not finite.
func sma(closes []float64, i, window int) (float64, bool) {
	if i < 0 || i+1 < window {
		return 0, false
	}
	sum := 0.0
	for _, c := range closes[i+1-window : i+1] {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return 0, false
		}
		sum += c
	}
	return sum / float64(window), true
}

func round2(v float64) *float64 {
	r := math.Round(v*100) / 100
	return &r
}
