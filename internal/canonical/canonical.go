// Package canonical normalizes raw field values into one comparable form and
// computes reproducible content hashes for deduplication and conditional
// re-fetch.
package canonical

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	wsRun      = regexp.MustCompile(`\s+`)
	dashChars  = strings.NewReplacer("–", "-", "—", "-", "−", "-")
	smartQuote = strings.NewReplacer(
		"‘", "", "’", "", "“", "", "”", "",
	)
)

// abbreviations are expanded on word boundaries, after lower-casing.
var abbreviations = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`(^|\s)w/`), "${1}with "},
	{regexp.MustCompile(`\s*&\s*`), " and "},
	{regexp.MustCompile(`\bpkg\b`), "package"},
	{regexp.MustCompile(`\bhd\b`), "heavy duty"},
	{regexp.MustCompile(`\b4wd\b`), "4x4"},
	{regexp.MustCompile(`\bawd\b`), "all wheel drive"},
}

// Canonical normalizes text into a stable comparable form: NFKC composition,
// trim, lower-case, whitespace collapse, dash and quote normalization, and a
// small fixed set of abbreviation expansions. Idempotent.
func Canonical(s string) string {
	s = norm.NFKC.String(s)
	s = strings.ToLower(strings.TrimSpace(s))
	s = dashChars.Replace(s)
	s = smartQuote.Replace(s)
	for _, a := range abbreviations {
		s = a.re.ReplaceAllString(s, a.repl)
	}
	s = wsRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

var (
	vinJunk     = regexp.MustCompile(`[\s-]+`)
	nonAmount   = regexp.MustCompile(`[^0-9.]`)
	mileageUnit = regexp.MustCompile(`(?i)\s*(miles|mile|mi\.?|km)\s*$`)
	trailingK   = regexp.MustCompile(`(?i)^(\d+(?:\.\d+)?)k$`)
)

// NormalizeVIN strips whitespace and hyphens and upper-cases. It does not
// validate check digits.
func NormalizeVIN(vin string) string {
	return strings.ToUpper(vinJunk.ReplaceAllString(strings.TrimSpace(vin), ""))
}

// NormalizeModel canonicalizes a model name.
func NormalizeModel(model string) string {
	return Canonical(model)
}

// NormalizeLocation canonicalizes "City, ST" style locations, collapsing
// spacing around the comma.
func NormalizeLocation(loc string) string {
	s := Canonical(loc)
	s = regexp.MustCompile(`\s*,\s*`).ReplaceAllString(s, ", ")
	return s
}

// NormalizeAmount strips currency symbols and separators, returning a bare
// numeric string ("$12,500.00" -> "12500.00"). Empty when nothing numeric
// remains.
func NormalizeAmount(amount string) string {
	s := nonAmount.ReplaceAllString(amount, "")
	s = strings.Trim(s, ".")
	return s
}

// NormalizeMileage strips unit suffixes and separators and expands a trailing
// "k" ("45k" -> "45000", "12,345 miles" -> "12345").
func NormalizeMileage(m string) string {
	s := strings.TrimSpace(m)
	s = mileageUnit.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if g := trailingK.FindStringSubmatch(s); g != nil {
		whole := g[1]
		if i := strings.IndexByte(whole, '.'); i >= 0 {
			// "45.5k" -> 45500
			frac := whole[i+1:]
			if len(frac) > 3 {
				frac = frac[:3]
			}
			whole = whole[:i] + frac + strings.Repeat("0", 3-len(frac))
			return whole
		}
		return whole + "000"
	}
	return s
}
