package kis

import (
	"fmt"
	"strconv"
	"strings"
)

type response interface {
	check(trID string) error
}

// envelope is the common result header of every quotation response
type envelope struct {
	RtCd  string `json:"rt_cd"`
	MsgCd string `json:"msg_cd"`
	Msg1  string `json:"msg1"`
}

// msgTokenExpired is the msg_cd KIS returns for an expired access token
const msgTokenExpired = "EGW00123"

func (e *envelope) check(trID string) error {
	if e.RtCd != "0" && e.MsgCd == msgTokenExpired {
		return fmt.Errorf("%w: %w: %s %s", ErrUpstream, errTokenExpired, trID, strings.TrimSpace(e.Msg1))
	}
	if e.RtCd != "0" {
		return fmt.Errorf("%w: %s: rt_cd=%q %s %s", ErrUpstream, trID, e.RtCd, e.MsgCd, strings.TrimSpace(e.Msg1))
	}
	return nil
}

// dailyChartResponse is FHKST03010100; output2 is newest first
type dailyChartResponse struct {
	envelope
	Output2 []struct {
		Date   string `json:"stck_bsop_date"`
		Open   string `json:"stck_oprc"`
		High   string `json:"stck_hgpr"`
		Low    string `json:"stck_lwpr"`
		Close  string `json:"stck_clpr"`
		Volume string `json:"acml_vol"`
	} `json:"output2"`
}

// minuteChartResponse is FHKST03010200; output2 is newest first
type minuteChartResponse struct {
	envelope
	Output2 []struct {
		Date   string `json:"stck_bsop_date"`
		Time   string `json:"stck_cntg_hour"`
		Open   string `json:"stck_oprc"`
		High   string `json:"stck_hgpr"`
		Low    string `json:"stck_lwpr"`
		Close  string `json:"stck_prpr"`
		Volume string `json:"cntg_vol"`
	} `json:"output2"`
}

type priceResponse struct {
	envelope
	Output struct {
		Code   string `json:"stck_shrn_iscd"`
		Price  string `json:"stck_prpr"`
		Open   string `json:"stck_oprc"`
		High   string `json:"stck_hgpr"`
		Low    string `json:"stck_lwpr"`
		Volume string `json:"acml_vol"`
	} `json:"output"`
}

type financialRatioResponse struct {
	envelope
	Output []struct {
		Period string `json:"stac_yymm"`
		ROE    string `json:"roe_val"`
	} `json:"output"`
}

type profitRatioResponse struct {
	envelope
	Output []struct {
		Period        string `json:"stac_yymm"`
		OperatingRate string `json:"sale_oper_rate"`
		TotalRate     string `json:"sale_totl_rate"`
	} `json:"output"`
}

// Quote is the current price of one instrument
type Quote struct {
	Code   string `json:"code"`
	Price  int64  `json:"price"`
	Open   int64  `json:"open"`
	High   int64  `json:"high"`
	Low    int64  `json:"low"`
	Volume int64  `json:"volume"`
}

// Financials holds the latest ratios; either half may be missing
type Financials struct {
	ROE             *float64
	OperatingMargin *float64
}

// parseInt reads a KIS numeric string; blanks and garbage become 0
func parseInt(s string) int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseOptionalFloat(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}
