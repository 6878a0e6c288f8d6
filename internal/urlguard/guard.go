// Package urlguard validates scrape targets before any network call is made.
// It fails closed: anything that cannot be parsed and positively allowed is
// rejected.
package urlguard

import (
	"net"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrDenied marks a URL that failed validation. Fail-fast, never retried.
var ErrDenied = eris.New("urlguard: denied")

// Config controls guard behavior.
type Config struct {
	AllowedDomains []string `yaml:"allowed_domains" mapstructure:"allowed_domains"`
	AllowedPorts   []int    `yaml:"allowed_ports" mapstructure:"allowed_ports"`
	BlockPrivate   bool     `yaml:"block_private" mapstructure:"block_private"`
	MaxRedirects   int      `yaml:"max_redirects" mapstructure:"max_redirects"`
}

// DefaultConfig returns a guard config with standard web ports and private
// address blocking enabled.
func DefaultConfig() Config {
	return Config{
		AllowedPorts: []int{80, 443, 8080, 8443},
		BlockPrivate: true,
		MaxRedirects: 5,
	}
}

// Decision is the outcome of validating one URL.
type Decision struct {
	Allowed      bool
	Reason       string
	SanitizedURL string
}

// Guard validates target URLs and tracks redirect chains per original URL.
type Guard struct {
	cfg       Config
	domains   []string
	ports     map[int]bool
	mu        sync.Mutex
	redirects map[string]int
}

// New creates a Guard from cfg.
func New(cfg Config) *Guard {
	g := &Guard{
		cfg:       cfg,
		ports:     make(map[int]bool, len(cfg.AllowedPorts)),
		redirects: make(map[string]int),
	}
	for _, d := range cfg.AllowedDomains {
		g.domains = append(g.domains, strings.ToLower(strings.TrimPrefix(d, ".")))
	}
	for _, p := range cfg.AllowedPorts {
		g.ports[p] = true
	}
	return g
}

var privateBlocks []*net.IPNet

func init() {
	for _, cidr := range []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"169.254.0.0/16",
		"0.0.0.0/8",
		"127.0.0.0/8",
		"::1/128",
		"fe80::/10",
		"fc00::/7",
	} {
		_, block, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(err)
		}
		privateBlocks = append(privateBlocks, block)
	}
}

func isPrivateHost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	for _, block := range privateBlocks {
		if block.Contains(ip) {
			return true
		}
	}
	return false
}

var dupSlash = regexp.MustCompile(`/{2,}`)

// Validate checks rawURL against scheme, allowlist, private-address, and port
// rules. requestID is carried into log context only.
func (g *Guard) Validate(rawURL, requestID string) Decision {
	deny := func(reason string) Decision {
		zap.L().Warn("urlguard: denied",
			zap.String("url", rawURL),
			zap.String("request_id", requestID),
			zap.String("reason", reason),
		)
		return Decision{Allowed: false, Reason: reason}
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		// Fail closed on anything unparseable.
		return deny("unparseable url")
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return deny("scheme not allowed: " + u.Scheme)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return deny("empty hostname")
	}

	if g.cfg.BlockPrivate && isPrivateHost(host) {
		return deny("private or loopback address")
	}

	if !g.domainAllowed(host) {
		return deny("domain not in allowlist: " + host)
	}

	port := defaultPort(u)
	if port == 0 {
		return deny("invalid port: " + u.Port())
	}
	if len(g.ports) > 0 && !g.ports[port] {
		return deny("port not allowed")
	}

	return Decision{Allowed: true, SanitizedURL: sanitize(u)}
}

func (g *Guard) domainAllowed(host string) bool {
	for _, d := range g.domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

func defaultPort(u *url.URL) int {
	p := u.Port()
	if p == "" {
		if u.Scheme == "https" {
			return 443
		}
		return 80
	}
	var n int
	for _, c := range p {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int(c-'0')
	}
	if n < 1 || n > 65535 {
		return 0
	}
	return n
}

// sanitize strips fragment and credentials and collapses duplicate path
// separators.
func sanitize(u *url.URL) string {
	clean := *u
	clean.Fragment = ""
	clean.User = nil
	if clean.Path != "" {
		clean.Path = dupSlash.ReplaceAllString(clean.Path, "/")
		clean.RawPath = ""
	}
	return clean.String()
}

// TrackRedirect increments the redirect counter for the original request URL
// and reports whether another redirect is permitted. The counter survives
// until CompleteRequest is called for that URL.
func (g *Guard) TrackRedirect(originalURL string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.redirects[originalURL]++
	return g.redirects[originalURL] <= g.cfg.MaxRedirects
}

// CompleteRequest clears redirect state for the original URL, whether the
// logical request succeeded or not.
func (g *Guard) CompleteRequest(originalURL string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.redirects, originalURL)
}
