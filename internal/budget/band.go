// Package budget enforces per-site daily spend caps across extraction cost bands.
package budget

// CostBand is an ordered cost tier for extraction work, cheapest first.
type CostBand int

const (
	BandHTTP CostBand = iota
	BandHeadless
	BandLLM
	BandCaptcha
)

// Bands lists all cost bands in ascending cost order.
var Bands = []CostBand{BandHTTP, BandHeadless, BandLLM, BandCaptcha}

func (b CostBand) String() string {
	switch b {
	case BandHTTP:
		return "http"
	case BandHeadless:
		return "headless"
	case BandLLM:
		return "llm"
	case BandCaptcha:
		return "captcha"
	default:
		return "unknown"
	}
}

// ParseBand maps a band name to its CostBand. Unknown names map to BandHTTP.
func ParseBand(name string) (CostBand, bool) {
	switch name {
	case "http":
		return BandHTTP, true
	case "headless":
		return BandHeadless, true
	case "llm":
		return BandLLM, true
	case "captcha":
		return BandCaptcha, true
	default:
		return BandHTTP, false
	}
}

// Free reports whether the band consumes no budget units.
func (b CostBand) Free() bool { return b == BandHTTP }
