package crawler

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

// ProbeKind selects how a rendered page is checked for readiness.
type ProbeKind string

// Supported readiness probes.
const (
	// ProbeRegex succeeds when the pattern matches anywhere in the page (dot matches newline).
	ProbeRegex ProbeKind = "regex"
	// ProbeCSS succeeds when the selector matches at least one element.
	ProbeCSS ProbeKind = "css"
	// ProbeCSSText succeeds when the first element matched by the selector contains a substring.
	ProbeCSSText ProbeKind = "css_text"
)

var probeAliases = map[string]ProbeKind{
	"regex":              ProbeRegex,
	"find_text_by_regex": ProbeRegex,
	"css":                ProbeCSS,
	"find_elmt_by_css":   ProbeCSS,
	"css_text":           ProbeCSSText,
	"find_text_by_css":   ProbeCSSText,
}

// Probe is a validated readiness predicate over page source.
type Probe struct {
	kind     ProbeKind
	expr     []string
	pattern  *regexp.Regexp
	selector string
}

// NewProbe validates kind and expression arity. regex and css take one expression;
// css_text takes a selector and a substring.
func NewProbe(kind string, expr ...string) (*Probe, error) {
	k, ok := probeAliases[strings.ToLower(strings.TrimSpace(kind))]
	if !ok {
		return nil, fmt.Errorf("%w: unknown probe kind %q", ErrConfiguration, kind)
	}
	want := 1
	if k == ProbeCSSText {
		want = 2
	}
	if len(expr) != want {
		return nil, fmt.Errorf("%w: probe %s takes %d expression(s), got %d", ErrConfiguration, k, want, len(expr))
	}
	p := &Probe{kind: k, expr: append([]string(nil), expr...)}
	switch k {
	case ProbeRegex:
		re, err := regexp.Compile("(?s)" + expr[0])
		if err != nil {
			return nil, fmt.Errorf("%w: probe regex %q: %v", ErrConfiguration, expr[0], err)
		}
		p.pattern = re
	case ProbeCSS, ProbeCSSText:
		if _, err := cascadia.Compile(expr[0]); err != nil {
			return nil, fmt.Errorf("%w: probe selector %q: %v", ErrConfiguration, expr[0], err)
		}
		p.selector = expr[0]
	}
	return p, nil
}

// MustProbe is NewProbe for package-level spider definitions.
func MustProbe(kind string, expr ...string) *Probe {
	p, err := NewProbe(kind, expr...)
	if err != nil {
		panic(err)
	}
	return p
}

// Kind returns the probe's kind.
func (p *Probe) Kind() ProbeKind {
	return p.kind
}

// String renders the probe for log lines.
func (p *Probe) String() string {
	return fmt.Sprintf("%s%q", p.kind, p.expr)
}

// Ready evaluates the probe against page source.
func (p *Probe) Ready(page string) (bool, error) {
	switch p.kind {
	case ProbeRegex:
		return p.pattern.MatchString(page), nil
	case ProbeCSS, ProbeCSSText:
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
		if err != nil {
			return false, fmt.Errorf("parse page: %w", err)
		}
		sel := doc.Find(p.selector)
		if sel.Length() == 0 {
			return false, nil
		}
		if p.kind == ProbeCSS {
			return true, nil
		}
		return strings.Contains(sel.First().Text(), p.expr[1]), nil
	default:
		return false, fmt.Errorf("%w: unknown probe kind %q", ErrConfiguration, p.kind)
	}
}
