package reentry

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/wonny/stockscanner/internal/contracts"
)

const snapshotPattern = "growth_combined_*.csv"

// 엑셀에서 한글이 깨지지 않도록 BOM을 붙임
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

var snapshotHeader = []string{
	"rank", "code", "name", "market", "start_price", "end_price", "return_pct", "roe", "operating_margin",
}

// SnapshotPath is the artifact path for a requested date range
func SnapshotPath(dir, start, end string) string {
	return filepath.Join(dir, fmt.Sprintf("growth_combined_%s_%s.csv", start, end))
}

// WriteSnapshot writes the ranked records, best first, replacing any
// artifact of the same range.
func WriteSnapshot(path string, records []contracts.ReturnRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	var buf bytes.Buffer
	buf.Write(utf8BOM)
	w := csv.NewWriter(&buf)
	if err := w.Write(snapshotHeader); err != nil {
		return err
	}
	for i, r := range records {
		row := []string{
			strconv.Itoa(i + 1),
			r.Code,
			r.Name,
			string(r.Market),
			strconv.FormatInt(r.StartPrice, 10),
			strconv.FormatInt(r.EndPrice, 10),
			strconv.FormatFloat(r.ReturnPct, 'f', 2, 64),
			formatOptional(r.ROE),
			formatOptional(r.OperatingMargin),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	// 부분 기록된 파일이 다음 실행에 읽히지 않도록 rename으로 교체
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// ReadSnapshot loads a snapshot written by WriteSnapshot, in file order
func ReadSnapshot(path string) ([]contracts.ReturnRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		br.Discard(len(utf8BOM))
	}

	r := csv.NewReader(br)
	header, err := r.Read()
	if err == io.EOF {
		return []contracts.ReturnRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[h] = i
	}
	for _, required := range []string{"code", "name", "return_pct"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("snapshot %s: missing column %q", path, required)
		}
	}

	get := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	records := make([]contracts.ReturnRecord, 0)
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read snapshot row: %w", err)
		}

		pct, err := strconv.ParseFloat(get(row, "return_pct"), 64)
		if err != nil {
			return nil, fmt.Errorf("snapshot %s: bad return_pct %q", path, get(row, "return_pct"))
		}
		start, _ := strconv.ParseInt(get(row, "start_price"), 10, 64)
		end, _ := strconv.ParseInt(get(row, "end_price"), 10, 64)
		market, err := contracts.ParseMarket(get(row, "market"))
		if err != nil {
			market = contracts.Market(get(row, "market"))
		}

		records = append(records, contracts.ReturnRecord{
			Code:            get(row, "code"),
			Name:            get(row, "name"),
			Market:          market,
			StartPrice:      start,
			EndPrice:        end,
			ReturnPct:       pct,
			ROE:             parseOptional(get(row, "roe")),
			OperatingMargin: parseOptional(get(row, "operating_margin")),
		})
	}
	return records, nil
}

// LatestSnapshotExcept returns the lexicographically last snapshot in dir
// other than exclude, or "" when there is none.
func LatestSnapshotExcept(dir, exclude string) (string, error) {
	files, err := filepath.Glob(filepath.Join(dir, snapshotPattern))
	if err != nil {
		return "", err
	}
	sort.Strings(files)

	excludeAbs := ""
	if exclude != "" {
		if excludeAbs, err = filepath.Abs(exclude); err != nil {
			return "", err
		}
	}

	for i := len(files) - 1; i >= 0; i-- {
		abs, err := filepath.Abs(files[i])
		if err != nil {
			return "", err
		}
		if abs != excludeAbs {
			return files[i], nil
		}
	}
	return "", nil
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

func parseOptional(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}
