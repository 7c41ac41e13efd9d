package report

import (
	"bufio"
	"bytes"
	"encoding/json"
	"regexp"
	"sort"
	"strings"
	"time"
)

// TestEvent is one line of `go test -json` output.
type TestEvent struct {
	Time    time.Time
	Action  string
	Package string
	Test    string
	Elapsed float64
	Output  string
}

// testcase_id:TC-12 printed by a test links it to a registry case.
var caseRe = regexp.MustCompile(`testcase_id:\s*([A-Za-z0-9_.\-]+)`)

func isTerminal(action string) bool {
	return action == "pass" || action == "fail" || action == "skip"
}

func isGoTestJSON(s *source) bool {
	if s.head[0] != '{' {
		return false
	}
	line := s.head
	if i := bytes.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(line, &probe); err != nil {
		return false
	}
	_, ok := probe["Action"]
	return ok
}

// ParseEvents decodes a go test event stream. Undecodable lines are skipped.
func (p *Parser) ParseEvents(raw []byte) []*TestEvent {
	var events []*TestEvent
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	n := 0
	for scanner.Scan() {
		n++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		te := &TestEvent{}
		if err := json.Unmarshal(line, te); err != nil {
			p.l.Warnw("skipping undecodable test event", "line", n, "err", err)
			continue
		}
		events = append(events, te)
	}
	if err := scanner.Err(); err != nil {
		p.l.Warnw("test event stream truncated", "err", err)
	}
	p.l.Debugf("total events parsed: %d", len(events))
	return events
}

// testEvents is the event list of one test, keyed in first-seen order.
type testEvents struct {
	pkg    string
	test   string
	events []*TestEvent
}

// groupEventsByTest groups test-level events by package and test, keeping the
// order in which tests first appear. Package-level events are ignored.
func (p *Parser) groupEventsByTest(events []*TestEvent) []*testEvents {
	index := map[[2]string]*testEvents{}
	var grouped []*testEvents
	for _, e := range events {
		if e.Test == "" || e.Package == "" {
			continue
		}
		key := [2]string{e.Package, e.Test}
		t, ok := index[key]
		if !ok {
			t = &testEvents{pkg: e.Package, test: e.Test}
			index[key] = t
			grouped = append(grouped, t)
		}
		t.events = append(t.events, e)
	}
	p.l.Debugf("total tests grouped: %d", len(grouped))
	return grouped
}

// deleteBrokenTests drops tests that never started or never finished.
func (p *Parser) deleteBrokenTests(tests []*testEvents) []*testEvents {
	good := tests[:0:0]
	for _, t := range tests {
		withStart, withEnd := false, false
		for _, e := range t.events {
			if isTerminal(e.Action) {
				withEnd = true
			}
			if e.Action == "run" {
				withStart = true
			}
		}
		if !withEnd {
			p.l.Warnw("endless test", "package", t.pkg, "test", t.test)
		}
		if !withStart {
			p.l.Warnw("startless test", "package", t.pkg, "test", t.test)
		}
		if withStart && withEnd {
			good = append(good, t)
		}
	}
	return good
}

func (p *Parser) parseGoTestJSON(s *source) (*Report, error) {
	events := p.ParseEvents(s.raw)
	tests := p.deleteBrokenTests(p.groupEventsByTest(events))

	r := &Report{Header: Header{Source: "go test -json", GeneratedAt: p.timestamp()}}
	if len(events) > 0 {
		start, end := getTimeBounds(events)
		if !start.IsZero() {
			r.Header.StartTime = start.UTC().Format(time.RFC3339)
			r.Header.EndTime = end.UTC().Format(time.RFC3339)
		}
	}
	packages := map[string]bool{}
	for _, t := range tests {
		packages[t.pkg] = true
		r.Results = p.keep(r.Results, eventsToResult(t))
	}
	if len(packages) == 1 {
		for pkg := range packages {
			r.Header.ProjectName = pkg
		}
	}
	return r, nil
}

func eventsToResult(t *testEvents) Result {
	res := Result{Name: t.test, ClassName: t.pkg}
	var output strings.Builder
	for _, e := range t.events {
		if e.Action == "output" {
			output.WriteString(e.Output)
		}
		if res.LocalID == "" {
			if m := caseRe.FindStringSubmatch(e.Output); len(m) > 1 {
				res.LocalID = m[1]
			}
		}
		if isTerminal(e.Action) {
			res.Status = NormalizeStatus(e.Action)
			res.SetDuration(time.Duration(e.Elapsed * float64(time.Second)))
		}
	}
	if res.Status == StatusFailed {
		out := CleanText(output.String())
		res.StackTrace = out
		res.ErrorMessage = failureLine(out)
	}
	return res
}

// failureLine picks the first output line that is not a go test marker.
func failureLine(out string) string {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "=== ") || strings.HasPrefix(line, "--- ") ||
			caseRe.MatchString(line) {
			continue
		}
		return line
	}
	return firstLine(out)
}

func getTimeBounds(events []*TestEvent) (time.Time, time.Time) {
	b := make([]*TestEvent, len(events))
	copy(b, events)
	sort.Slice(b, func(i, j int) bool {
		return b[i].Time.Before(b[j].Time)
	})
	return b[0].Time, b[len(b)-1].Time
}
