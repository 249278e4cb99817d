package parse

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/segmentio/encoding/json"

	"github.com/roach88/filingindex/internal/model"
)

// ParseTickers decodes company_tickers_exchange.json. Each data row is
// [cik, name, ticker, exchange]; the cik is zero-padded to ten digits.
func ParseTickers(data []byte) ([]model.TickerMapping, error) {
	var doc struct {
		Fields []string `json:"fields"`
		Data   [][]any  `json:"data"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse tickers: %w", err)
	}

	out := make([]model.TickerMapping, 0, len(doc.Data))
	for i, row := range doc.Data {
		if len(row) < 4 {
			return nil, model.Errorf(model.ErrCodeBadType, "ticker row %d has %d fields, want 4", i, len(row))
		}
		cik, err := padCIK(row[0])
		if err != nil {
			return nil, fmt.Errorf("ticker row %d: %w", i, err)
		}
		out = append(out, model.TickerMapping{
			CIK:          cik,
			CompanyName:  asString(row[1]),
			TickerSymbol: asString(row[2]),
			Exchange:     asString(row[3]),
		})
	}
	return out, nil
}

// PadCIK zero-pads a numeric CIK to ten digits.
func PadCIK(cik string) string {
	cik = strings.TrimSpace(cik)
	if len(cik) >= 10 {
		return cik
	}
	return strings.Repeat("0", 10-len(cik)) + cik
}

func padCIK(v any) (string, error) {
	switch x := v.(type) {
	case float64:
		return PadCIK(strconv.FormatInt(int64(x), 10)), nil
	case string:
		if _, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64); err != nil {
			return "", model.WrapError(model.ErrCodeBadType, fmt.Sprintf("cik %q is not numeric", x), err)
		}
		return PadCIK(x), nil
	}
	return "", model.Errorf(model.ErrCodeBadType, "cik has type %T", v)
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
