package report

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	// durationCell matches cells such as "3500ms", "1.2 s", "2 min" or "0h 0m 3s+123ms".
	durationCell = regexp.MustCompile(`(?i)^\d+(\.\d+)?\s*(ms|milliseconds?|s|secs?|seconds?|m|mins?|minutes?|h|hours?)([\s+]*\d+(\.\d+)?\s*(ms|s|m|h))*$`)
	// qualifiedClass matches dotted type names such as "com.x.Y".
	qualifiedClass = regexp.MustCompile(`^[A-Za-z_$][\w$]*(\.[A-Za-z_$][\w$]*)+$`)
	statusWords    = []string{"pass", "fail", "skip", "error", "success", "ignore", "blocked", "retest"}
)

func text(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}

// pick returns the trimmed text of the first element matching one of the
// selectors, tried in order.
func pick(s *goquery.Selection, selectors ...string) string {
	for _, sel := range selectors {
		if t := text(s.Find(sel).First()); t != "" {
			return t
		}
	}
	return ""
}

func title(doc *goquery.Document) string {
	return strings.TrimSpace(doc.Find("title").First().Text())
}

func containsStatusWord(lower string) bool {
	for _, w := range statusWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// ExtentReports

const extentNameSel = ".test-name, .name, [class*='name']:not([class*='class'])"

func isExtentHTML(s *source) bool {
	doc := s.document()
	if doc == nil {
		return false
	}
	if doc.Find(".test, .test-name, .test-status").Length() > 0 {
		return true
	}
	extentScript := false
	doc.Find("script").EachWithBreak(func(_ int, sc *goquery.Selection) bool {
		src, _ := sc.Attr("src")
		if strings.Contains(strings.ToLower(sc.Text()+src), "extent") {
			extentScript = true
		}
		return !extentScript
	})
	return extentScript || strings.Contains(strings.ToLower(title(doc)), "extent")
}

// extentTests finds the per-test containers of an Extent layout.
func extentTests(doc *goquery.Document) *goquery.Selection {
	if tests := doc.Find(".test, .test-item"); tests.Length() > 0 {
		return tests
	}
	hasName := func(_ int, s *goquery.Selection) bool { return s.Find(extentNameSel).Length() > 0 }
	// Innermost elements with a test-ish class that still contain a name.
	tests := doc.Find("[class*='test']").FilterFunction(hasName).FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.Find("[class*='test']").FilterFunction(hasName).Length() == 0
	})
	if tests.Length() > 0 {
		return tests
	}
	return doc.Find(".test-name").Parent()
}

func (p *Parser) parseExtentHTML(s *source) (*Report, error) {
	doc := s.document()
	name := title(doc)
	if name == "" {
		name = "ExtentReports Test Run"
	}
	r := &Report{Header: Header{Source: "ExtentReports HTML", ProjectName: name, GeneratedAt: p.timestamp()}}
	extentTests(doc).Each(func(_ int, el *goquery.Selection) {
		r.Results = p.keep(r.Results, p.extentResult(el))
	})
	return r, nil
}

func (p *Parser) extentResult(el *goquery.Selection) Result {
	res := Result{Name: pick(el, ".test-name", ".name", "[class*='name']:not([class*='class'])")}
	if res.Name == "" {
		res.Name = text(el)
	}

	switch st := pick(el, ".test-status", ".status", "[class*='status']"); {
	case st != "":
		res.Status = p.status(st)
	default:
		attr, _ := el.Attr("status")
		class, _ := el.Attr("class")
		res.Status = p.status(attr + " " + class)
	}

	if d, ok := ParseDuration(pick(el, ".duration", ".time", "[class*='duration']")); ok {
		res.SetDuration(d)
	}
	res.ClassName = pick(el, ".class-name", "[class*='class']")
	el.Find(".category, .tag").Each(func(_ int, t *goquery.Selection) {
		res.Tags = append(res.Tags, text(t))
	})
	if res.Status == StatusFailed {
		trace := el.Find(".stack-trace, .exception, pre, textarea").First().Text()
		res.StackTrace = trace
		res.ErrorMessage = pick(el, ".error-message", ".exception-message")
		if res.ErrorMessage == "" {
			res.ErrorMessage = firstLine(CleanText(trace))
		}
	}
	return res
}

// TestNG

func isTestNGHTML(s *source) bool {
	doc := s.document()
	if doc == nil {
		return false
	}
	return doc.Find("table#suites, table.suiteTable").Length() > 0 ||
		strings.Contains(strings.ToLower(title(doc)), "testng")
}

// parseTestNGHTML reads rows of name, class, status and an optional duration.
func (p *Parser) parseTestNGHTML(s *source) (*Report, error) {
	doc := s.document()
	r := &Report{Header: Header{Source: "TestNG HTML Report", ProjectName: title(doc), GeneratedAt: p.timestamp()}}
	doc.Find("table.suiteTable tr, table#suites tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 3 {
			return
		}
		res := Result{
			Name:      text(cells.Eq(0)),
			ClassName: text(cells.Eq(1)),
			Status:    p.status(text(cells.Eq(2))),
		}
		if cells.Length() > 3 {
			if d, ok := ParseDuration(text(cells.Eq(3))); ok {
				res.SetDuration(d)
			}
		}
		r.Results = p.keep(r.Results, res)
	})
	return r, nil
}

// Generic tables

func (p *Parser) parseGenericHTML(s *source) (*Report, error) {
	doc := s.document()
	if doc == nil {
		return &Report{Header: Header{Source: "HTML Report", GeneratedAt: p.timestamp()}}, nil
	}
	r := &Report{Header: Header{Source: "HTML Report", ProjectName: title(doc), GeneratedAt: p.timestamp()}}
	doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.ChildrenFiltered("td")
		if cells.Length() == 0 {
			return
		}
		lower := strings.ToLower(text(row))
		if !strings.Contains(lower, "test") && !strings.Contains(lower, "pass") &&
			!strings.Contains(lower, "fail") && !strings.Contains(lower, "skip") {
			return
		}
		r.Results = p.keep(r.Results, p.genericRow(cells))
	})
	return r, nil
}

// genericRow assigns each cell to at most one column by sniffing its content.
// Only a cell mentioning "test" names the result, so rows without one come
// back nameless and are dropped.
func (p *Parser) genericRow(cells *goquery.Selection) Result {
	var res Result
	var statusText string
	cells.Each(func(_ int, c *goquery.Selection) {
		t := text(c)
		lower := strings.ToLower(t)
		switch {
		case t == "":
		case res.Name == "" && strings.Contains(lower, "test"):
			res.Name = t
		case statusText == "" && containsStatusWord(lower):
			statusText = t
		case !res.HasDuration && durationCell.MatchString(t):
			if d, ok := ParseDuration(t); ok {
				res.SetDuration(d)
			}
		case res.ClassName == "" && (strings.Contains(lower, "class") || qualifiedClass.MatchString(t)):
			res.ClassName = t
		}
	})
	res.Status = p.status(statusText)
	return res
}
