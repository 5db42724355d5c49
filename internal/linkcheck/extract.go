package linkcheck

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Mapping is one extraction rule applied to a fetched page.
type Mapping struct {
	Selector string `yaml:"selector" json:"selector"`
	// Extract is "text" or "attr".
	Extract string `yaml:"extract" json:"extract"`
	Attr    string `yaml:"attr,omitempty" json:"attr,omitempty"`
	Field   string `yaml:"field" json:"field"`
	// Match is an optional regex; group 1 wins when present.
	Match string `yaml:"match,omitempty" json:"match,omitempty"`
}

// DefaultMappings pull the page title and the Open Graph site name, which is
// how Stripe and Zelle landing pages identify themselves.
var DefaultMappings = []Mapping{
	{Selector: "title", Extract: "text", Field: "title"},
	{Selector: `meta[property="og:site_name"]`, Extract: "attr", Attr: "content", Field: "site_name"},
	{Selector: `meta[property="og:title"]`, Extract: "attr", Attr: "content", Field: "og_title"},
}

// ExtractDetails parses an HTML page and applies mappings to the document.
// Selectors that match nothing produce no field.
func ExtractDetails(r io.Reader, mappings []Mapping) (map[string]string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	out := make(map[string]string, len(mappings))
	for _, m := range mappings {
		re, err := compileMatch(m)
		if err != nil {
			return nil, err
		}
		sel := doc.Find(m.Selector).First()
		if sel.Length() == 0 {
			continue
		}
		if v := filter(extractValue(sel, m), re); v != "" {
			out[m.Field] = v
		}
	}
	return out, nil
}

func extractValue(sel *goquery.Selection, m Mapping) string {
	switch m.Extract {
	case "text":
		return strings.Join(strings.Fields(sel.Text()), " ")
	case "attr":
		if m.Attr == "" {
			return ""
		}
		if v, ok := sel.Attr(m.Attr); ok {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func compileMatch(m Mapping) (*regexp.Regexp, error) {
	if strings.TrimSpace(m.Match) == "" {
		return nil, nil
	}
	re, err := regexp.Compile(m.Match)
	if err != nil {
		return nil, fmt.Errorf("invalid match for field %q: %w", m.Field, err)
	}
	return re, nil
}

// filter returns "" when re does not match.
func filter(v string, re *regexp.Regexp) string {
	if v == "" || re == nil {
		return v
	}
	sm := re.FindStringSubmatch(v)
	switch len(sm) {
	case 0:
		return ""
	case 1:
		return sm[0]
	}
	return sm[1]
}
