// Package utils provides ticker, number and calendar helpers shared by the
// pipeline and its reports.
package utils

import (
	"fmt"
	"strings"
)

// Common NASDAQ ticker aliases: company names, share-class spellings and
// symbols that changed after a rename.
var tickerAliases = map[string]string{
	"APPLE":     "AAPL",
	"MICROSOFT": "MSFT",
	"NVIDIA":    "NVDA",
	"AMAZON":    "AMZN",
	"ALPHABET":  "GOOGL",
	"GOOGLE":    "GOOGL",
	"META":      "META",
	"FB":        "META",
	"FACEBOOK":  "META",
	"TESLA":     "TSLA",
	"BROADCOM":  "AVGO",
	"NETFLIX":   "NFLX",
	"COSTCO":    "COST",
	"PEPSI":     "PEP",
	"PEPSICO":   "PEP",
	"ADOBE":     "ADBE",
	"INTEL":     "INTC",
	"CISCO":     "CSCO",
	"QUALCOMM":  "QCOM",
	"STARBUCKS": "SBUX",
	"PAYPAL":    "PYPL",
}

// NormalizeTicker normalizes a user-input ticker to the canonical roster
// form: upper case, no "$" prefix, share class separated by a dot.
func NormalizeTicker(ticker string) string {
	ticker = strings.TrimSpace(strings.ToUpper(ticker))
	ticker = strings.TrimPrefix(ticker, "$")

	if canonical, ok := tickerAliases[ticker]; ok {
		return canonical
	}

	// BRK-B / BRK/B -> BRK.B
	ticker = strings.NewReplacer("-", ".", "/", ".").Replace(ticker)
	return ticker
}

// ToYahooTicker converts a roster ticker to Yahoo Finance format, which
// spells share classes with a dash (BRK.B -> BRK-B).
func ToYahooTicker(ticker string) string {
	return strings.ReplaceAll(NormalizeTicker(ticker), ".", "-")
}

// ParseSymbols splits a comma or space separated symbol list, normalizing
// each entry and dropping duplicates while keeping first-seen order.
func ParseSymbols(list string) []string {
	fields := strings.FieldsFunc(list, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	seen := make(map[string]bool, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		s := NormalizeTicker(f)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// FormatScore formats a sentiment score with an explicit sign, e.g. "+0.2000".
func FormatScore(score float64) string {
	return fmt.Sprintf("%+.4f", score)
}

// FormatOptionalScore formats a nullable score; nil renders as "".
func FormatOptionalScore(score *float64) string {
	if score == nil {
		return ""
	}
	return fmt.Sprintf("%.4f", *score)
}

// FormatPct formats a ratio in [0,1] as a percentage with one decimal.
func FormatPct(ratio float64) string {
	return fmt.Sprintf("%.1f%%", ratio*100)
}

// Truncate shortens s to at most n runes, appending "..." when cut.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
