package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pilsonandrew-hub/dealscan-insight-sub000/internal/model"
)

// hashFields is the fixed, ordered subset of semantic fields the content hash
// is computed over. Anything outside this set never affects the hash.
var hashFields = []string{
	"auction_end",
	"condition",
	"description",
	"location",
	"make",
	"mileage",
	"model",
	"price",
	"title",
	"vin",
	"year",
}

func hashInput(l model.Listing) map[string]string {
	m := map[string]string{
		"vin":         l.VIN,
		"make":        l.Make,
		"model":       l.Model,
		"title":       l.Title,
		"location":    l.Location,
		"auction_end": l.AuctionEnd,
		"condition":   l.Condition,
		"description": l.Description,
	}
	if l.Year != 0 {
		m["year"] = strconv.Itoa(l.Year)
	}
	if l.CurrentBid != 0 {
		m["price"] = strconv.FormatFloat(l.CurrentBid, 'f', 2, 64)
	}
	if l.Mileage != 0 {
		m["mileage"] = strconv.Itoa(l.Mileage)
	}
	return m
}

// ContentHash computes a SHA-256 digest over the canonicalized key-field
// subset of a listing, returned as lowercase hex. The output depends only on
// those fields' canonical values, never on input field order, timestamps, or
// extraneous fields.
func ContentHash(l model.Listing) string {
	in := hashInput(l)

	keys := make([]string, 0, len(hashFields))
	for _, k := range hashFields {
		if v, ok := in[k]; ok && strings.TrimSpace(v) != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(Canonical(in[k]))
		b.WriteByte('\n')
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

var (
	scriptBlock  = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleBlock   = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	htmlComment  = regexp.MustCompile(`(?s)<!--.*?-->`)
	isoTimestamp = regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}(:\d{2}(\.\d+)?)?(Z|[+-]\d{2}:?\d{2})?`)
	epochNumber  = regexp.MustCompile(`\b1[5-9]\d{8,11}\b`)
	hexToken     = regexp.MustCompile(`\b[0-9a-fA-F]{16,}\b`)
	sessionToken = regexp.MustCompile(`(?i)(session[_-]?id|sid|csrf[_-]?token)=[\w.-]+`)
	dynAttr      = regexp.MustCompile(`(?i)\s(id|data-id)="[^"]*"`)
)

// HTMLContentHash hashes a page's semantic content, ignoring boilerplate that
// changes between otherwise-identical fetches: scripts, styles, comments,
// timestamps, session tokens, and dynamic id attributes.
func HTMLContentHash(html string) string {
	s := scriptBlock.ReplaceAllString(html, "")
	s = styleBlock.ReplaceAllString(s, "")
	s = htmlComment.ReplaceAllString(s, "")
	s = isoTimestamp.ReplaceAllString(s, "<ts>")
	s = epochNumber.ReplaceAllString(s, "<epoch>")
	s = sessionToken.ReplaceAllString(s, "$1=<token>")
	s = hexToken.ReplaceAllString(s, "<hex>")
	s = dynAttr.ReplaceAllString(s, ` $1="<id>"`)
	s = wsRun.ReplaceAllString(s, " ")

	sum := sha256.Sum256([]byte(strings.TrimSpace(s)))
	return hex.EncodeToString(sum[:])
}

// GenerateETag wraps a hash prefix in quotes per RFC 9110 entity-tag syntax.
func GenerateETag(hash string) string {
	if len(hash) > 16 {
		hash = hash[:16]
	}
	return fmt.Sprintf("%q", hash)
}

// ParseETag extracts the hash prefix from an entity tag. Weak validators
// (W/ prefix) are accepted.
func ParseETag(etag string) string {
	s := strings.TrimPrefix(strings.TrimSpace(etag), "W/")
	return strings.Trim(s, `"`)
}

// CheckConditional decides whether a re-fetch is needed given the client's
// conditional headers and the server's current hash / last-modified values.
// Missing or unmatched headers always fall through to "fetch": the failure
// mode is a redundant fetch, never a silent skip.
func CheckConditional(clientETag, clientLastModified, currentHash, lastModified string) bool {
	if clientETag != "" && currentHash != "" {
		if ParseETag(clientETag) == ParseETag(GenerateETag(currentHash)) {
			return false
		}
	}
	if clientLastModified != "" && lastModified != "" && clientLastModified == lastModified {
		return false
	}
	return true
}

// DedupResult partitions a batch into kept and duplicate listings.
type DedupResult struct {
	Unique     []model.Listing
	Duplicates []model.Listing
}

// DeduplicateByHash partitions listings by content hash. The first occurrence
// in input order is kept; listings without a hash are always unique.
func DeduplicateByHash(items []model.Listing) DedupResult {
	seen := make(map[string]bool, len(items))
	var res DedupResult
	for _, it := range items {
		if it.ContentHash == "" {
			res.Unique = append(res.Unique, it)
			continue
		}
		if seen[it.ContentHash] {
			res.Duplicates = append(res.Duplicates, it)
			continue
		}
		seen[it.ContentHash] = true
		res.Unique = append(res.Unique, it)
	}
	return res
}
