package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/f4hrenh9it/go-eztest/failure"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// dialect pairs a content predicate with its parser. Dialects are tried in
// order and the first accepting predicate owns the input; a parser failure is
// final and never falls through to later entries.
type dialect struct {
	name   Dialect
	detect func(s *source) bool
	parse  func(p *Parser, s *source) (*Report, error)
}

var dialects = []dialect{
	{DialectRichJSON, isRichJSON, (*Parser).parseRichJSON},
	{DialectMinimalJSON, isMinimalJSON, (*Parser).parseMinimalJSON},
	{DialectGoTestJSON, isGoTestJSON, (*Parser).parseGoTestJSON},
	{DialectExtentHTML, isExtentHTML, (*Parser).parseExtentHTML},
	{DialectTestNGHTML, isTestNGHTML, (*Parser).parseTestNGHTML},
	{DialectGenericHTML, isHTML, (*Parser).parseGenericHTML},
}

// Parser turns raw report bytes into a Report.
type Parser struct {
	l   *zap.SugaredLogger
	now func() time.Time
}

func NewParser(l *zap.SugaredLogger) *Parser {
	if l == nil {
		l = zap.NewNop().Sugar()
	}
	return &Parser{l: l, now: time.Now}
}

// WithClock overrides the time source used for generated timestamps.
func (p *Parser) WithClock(now func() time.Time) *Parser {
	p.now = now
	return p
}

// ParseFile reads and parses a report file. Read errors are of kind
// report_unreadable, distinct from format_unrecognized.
func (p *Parser) ParseFile(path string) (*Report, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, failure.Wrap(err, failure.KindReportUnreadable, "read report")
	}
	return p.Parse(filepath.Base(path), raw)
}

// Parse detects the dialect of raw and parses it. name is only used for its
// extension as a detection hint. A recognized report without results is
// returned together with a no_results error.
func (p *Parser) Parse(name string, raw []byte) (*Report, error) {
	s := newSource(name, raw)
	d, ok := s.match()
	if !ok {
		return nil, failure.New(failure.KindFormatUnrecognized, "no parser accepts %q", name)
	}
	p.l.Debugw("report dialect detected", "file", name, "dialect", d.name)
	r, err := d.parse(p, s)
	if err != nil {
		return nil, err
	}
	r.Dialect = d.name
	if len(r.Results) == 0 {
		return r, failure.New(failure.KindNoResults, "%s report %q contains no test results", d.name, name)
	}
	return r, nil
}

// Detect reports which dialect would handle raw without parsing it.
func Detect(name string, raw []byte) (Dialect, bool) {
	d, ok := newSource(name, raw).match()
	return d.name, ok
}

// keep appends r when it carries a name and logs the drop otherwise.
func (p *Parser) keep(results []Result, r Result) []Result {
	r.tidy()
	if r.Name == "" {
		p.l.Debugw("dropping result without a name", "localId", r.LocalID, "status", r.Status)
		return results
	}
	return append(results, r)
}

// status normalizes text and logs unknown spellings.
func (p *Parser) status(text string) Status {
	s, ok := ParseStatus(text)
	if !ok {
		p.l.Warnw("unknown status, defaulting", "status", text, "default", s)
	}
	return s
}

func (p *Parser) timestamp() string {
	return p.now().UTC().Format(time.RFC3339)
}

// source is the raw input plus lazily decoded views shared by detectors.
type source struct {
	name string
	ext  string
	raw  []byte
	head []byte

	objDone bool
	obj     map[string]json.RawMessage

	docDone bool
	doc     *goquery.Document
}

func newSource(name string, raw []byte) *source {
	head := bytes.TrimLeft(bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf")), " \t\r\n")
	return &source{
		name: name,
		ext:  strings.ToLower(filepath.Ext(name)),
		raw:  raw,
		head: head,
	}
}

func (s *source) match() (dialect, bool) {
	if len(s.head) == 0 {
		return dialect{}, false
	}
	for _, d := range dialects {
		if d.detect(s) {
			return d, true
		}
	}
	return dialect{}, false
}

func (s *source) looksJSON() bool {
	if len(s.head) == 0 {
		return false
	}
	return s.head[0] == '{' || s.head[0] == '['
}

// object decodes the input as a single JSON object, or returns nil.
func (s *source) object() map[string]json.RawMessage {
	if !s.objDone {
		s.objDone = true
		if s.looksJSON() {
			var obj map[string]json.RawMessage
			if err := json.Unmarshal(s.head, &obj); err == nil {
				s.obj = obj
			}
		}
	}
	return s.obj
}

func isHTML(s *source) bool {
	if s.ext == ".html" || s.ext == ".htm" {
		return true
	}
	return len(s.head) > 0 && s.head[0] == '<'
}

// document parses the input as HTML, or returns nil when it is not HTML.
func (s *source) document() *goquery.Document {
	if !s.docDone {
		s.docDone = true
		if isHTML(s) {
			root, err := html.Parse(bytes.NewReader(s.raw))
			if err == nil {
				s.doc = goquery.NewDocumentFromNode(root)
			}
		}
	}
	return s.doc
}

// hasKey reports whether obj has key with a non-null value.
func hasKey(obj map[string]json.RawMessage, key string) bool {
	v, ok := obj[key]
	return ok && !bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

// resultKeys returns true when any element of the results array carries one of keys.
func resultKeys(obj map[string]json.RawMessage, keys ...string) bool {
	raw, ok := obj["results"]
	if !ok {
		return false
	}
	var items []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return false
	}
	for _, item := range items {
		for _, k := range keys {
			if _, ok := item[k]; ok {
				return true
			}
		}
	}
	return false
}

func isArray(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '['
}
