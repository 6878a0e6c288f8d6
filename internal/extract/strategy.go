// Package extract runs the cascading multi-strategy field extractor with
// provenance tracking. Strategies are tried cheapest first; paid attempts are
// charged through the budget enforcer whether they succeed or fail.
package extract

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/pilsonandrew-hub/dealscan-insight-sub000/internal/budget"
	"github.com/pilsonandrew-hub/dealscan-insight-sub000/internal/model"
)

// StrategyName identifies one of the closed set of extraction strategies.
type StrategyName string

const (
	StrategySelector StrategyName = "selector"
	StrategyML       StrategyName = "ml"
	StrategyLLM      StrategyName = "llm"
)

// Attempt is one strategy's raw answer for one field.
type Attempt struct {
	Value      string
	Confidence float64
	Locator    string // CSS selector path or model id+version
}

// Strategy extracts a single field from a page.
type Strategy interface {
	Name() StrategyName
	Band() budget.CostBand
	Extract(ctx context.Context, page *Page, cfg StrategyConfig) (*Attempt, error)
}

// StrategyConfig configures one step of an extraction pipeline.
type StrategyConfig struct {
	Name      StrategyName  `yaml:"name" mapstructure:"name"`
	Threshold float64       `yaml:"threshold" mapstructure:"threshold"`
	Selector  string        `yaml:"selector,omitempty" mapstructure:"selector"`
	Attr      string        `yaml:"attr,omitempty" mapstructure:"attr"` // attribute to read; empty = text
	Units     int           `yaml:"units,omitempty" mapstructure:"units"`
	Timeout   time.Duration `yaml:"timeout,omitempty" mapstructure:"timeout"`
	Retries   int           `yaml:"retries,omitempty" mapstructure:"retries"`

	// fieldName is stamped by the cascade before dispatch.
	fieldName string
}

func (c StrategyConfig) units() int {
	if c.Units <= 0 {
		return 1
	}
	return c.Units
}

// Page wraps a fetched page with lazily parsed views of its content.
type Page struct {
	Raw model.RawPage

	once sync.Once
	doc  *goquery.Document
	text string
	err  error
}

// NewPage wraps a raw fetched page.
func NewPage(raw model.RawPage) *Page {
	return &Page{Raw: raw}
}

func (p *Page) parse() {
	p.once.Do(func() {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(p.Raw.Body))
		if err != nil {
			p.err = eris.Wrap(err, "extract: parse page")
			return
		}
		p.doc = doc
		p.text = strings.Join(strings.Fields(doc.Text()), " ")
	})
}

// Doc returns the parsed document.
func (p *Page) Doc() (*goquery.Document, error) {
	p.parse()
	return p.doc, p.err
}

// Text returns the page's visible text with whitespace collapsed.
func (p *Page) Text() string {
	p.parse()
	if p.err != nil {
		return p.Raw.Body
	}
	return p.text
}
