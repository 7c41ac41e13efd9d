package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in     string
		want   Status
		wantOk bool
	}{
		{"PASSED", StatusPassed, true},
		{"pass", StatusPassed, true},
		{"Success", StatusPassed, true},
		{"passed with errors", StatusPassed, true},
		{"FAIL", StatusFailed, true},
		{"error", StatusFailed, true},
		{"Skipped", StatusSkipped, true},
		{"ignored", StatusSkipped, true},
		{"blocked", StatusBlocked, true},
		{"RETEST", StatusRetest, true},
		{"needs retest", StatusRetest, true},
		{"", StatusSkipped, false},
		{"   ", StatusSkipped, false},
		{"in progress", StatusSkipped, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseStatus(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOk, ok)
			assert.Equal(t, tt.want, NormalizeStatus(tt.in))
		})
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in     string
		want   time.Duration
		wantOk bool
	}{
		{"5000ms", 5 * time.Second, true},
		{"5s", 5 * time.Second, true},
		{"5", 5 * time.Second, true},
		{"5 sec", 5 * time.Second, true},
		{"1.5 seconds", 1500 * time.Millisecond, true},
		{"250 milliseconds", 250 * time.Millisecond, true},
		{"2 min", 2 * time.Minute, true},
		{"3 hours", 3 * time.Hour, true},
		{"1m30s", 90 * time.Second, true},
		{"0h 0m 3s+123ms", 3123 * time.Millisecond, true},
		{"", 0, false},
		{"n/a", 0, false},
		{"1.2.3 s", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseDuration(tt.in)
			assert.Equal(t, tt.wantOk, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDurationUnitsAgree(t *testing.T) {
	a, _ := ParseDuration("5000ms")
	b, _ := ParseDuration("5s")
	c, _ := ParseDuration("5")
	assert.Equal(t, Seconds(a), Seconds(b))
	assert.Equal(t, Seconds(b), Seconds(c))
}

func TestParseDurationInMilliseconds(t *testing.T) {
	d, ok := ParseDurationIn("1200", time.Millisecond)
	assert.True(t, ok)
	assert.Equal(t, 1200*time.Millisecond, d)
}

func TestSecondsFloors(t *testing.T) {
	assert.Equal(t, int64(3), Seconds(3500*time.Millisecond))
	assert.Equal(t, int64(0), Seconds(999*time.Millisecond))
	assert.Equal(t, int64(0), Seconds(-time.Second))
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "expected 200\ngot 500", CleanText("\x1b[31mexpected 200\x1b[0m\r\ngot 500\n"))
}

func TestResultTidy(t *testing.T) {
	r := Result{
		Name:         "  Login ",
		Status:       StatusPassed,
		Tags:         []string{"smoke", " smoke", "", "ui"},
		ErrorMessage: "leftover",
		StackTrace:   "trace",
	}
	r.tidy()
	assert.Equal(t, "Login", r.Name)
	assert.Equal(t, []string{"smoke", "ui"}, r.Tags)
	assert.Empty(t, r.ErrorMessage)
	assert.Empty(t, r.StackTrace)
}
