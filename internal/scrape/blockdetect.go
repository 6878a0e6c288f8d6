package scrape

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
)

// BlockKind categorizes an anti-bot response.
type BlockKind string

const (
	BlockCaptcha   BlockKind = "captcha"
	BlockRateLimit BlockKind = "rate_limit"
	BlockBot       BlockKind = "bot"
)

// BlockError reports that a response is an anti-bot challenge rather than
// usable content. Recoverable: the orchestrator retries with backoff and
// downgrades to BLOCKED on exhaustion.
type BlockError struct {
	Kind BlockKind
}

func (e *BlockError) Error() string {
	return fmt.Sprintf("scrape: blocked (%s)", e.Kind)
}

// BlockPattern pairs a category with a body pattern. New block signatures are
// additive configuration, not code changes.
type BlockPattern struct {
	Kind    BlockKind
	Pattern *regexp.Regexp
}

// DefaultBlockPatterns returns the built-in block signature table.
func DefaultBlockPatterns() []BlockPattern {
	return []BlockPattern{
		{BlockCaptcha, regexp.MustCompile(`(?i)recaptcha|hcaptcha|h-captcha|solve the captcha|cf-turnstile`)},
		{BlockCaptcha, regexp.MustCompile(`(?i)verify (you are|you're) (a )?human`)},
		{BlockRateLimit, regexp.MustCompile(`(?i)rate limit(ed)?|too many requests|slow down and try again`)},
		{BlockRateLimit, regexp.MustCompile(`(?i)request quota exceeded`)},
		{BlockBot, regexp.MustCompile(`(?i)checking your browser|cf-browser-verification|attention required.{0,40}cloudflare`)},
		{BlockBot, regexp.MustCompile(`(?i)access denied|automated (traffic|requests?) detected|unusual traffic`)},
		{BlockBot, regexp.MustCompile(`(?i)pardon our interruption|are you a robot`)},
	}
}

// Detector matches responses against the block signature table.
type Detector struct {
	patterns []BlockPattern
}

// NewDetector creates a Detector. Extra patterns extend the default table.
func NewDetector(extra ...BlockPattern) *Detector {
	return &Detector{patterns: append(DefaultBlockPatterns(), extra...)}
}

// Detect returns a BlockError when the response looks like an anti-bot
// challenge, nil otherwise.
func (d *Detector) Detect(resp *http.Response, body []byte) *BlockError {
	if resp != nil {
		if resp.StatusCode == http.StatusTooManyRequests {
			return &BlockError{Kind: BlockRateLimit}
		}
		if resp.StatusCode == 403 || resp.StatusCode == 503 {
			if resp.Header.Get("cf-ray") != "" || resp.Header.Get("server") == "cloudflare" {
				return &BlockError{Kind: BlockBot}
			}
		}
	}

	for _, p := range d.patterns {
		if p.Pattern.Match(body) {
			return &BlockError{Kind: p.Kind}
		}
	}
	return nil
}

// IsBlock reports whether err is (or wraps) a BlockError and returns its kind.
func IsBlock(err error) (BlockKind, bool) {
	var be *BlockError
	if errors.As(err, &be) {
		return be.Kind, true
	}
	return "", false
}
