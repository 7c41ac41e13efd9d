package importer

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/f4hrenh9it/go-eztest/failure"
	"github.com/f4hrenh9it/go-eztest/integration"
	"github.com/f4hrenh9it/go-eztest/reconcile"
	"github.com/f4hrenh9it/go-eztest/registrytest"
	"github.com/f4hrenh9it/go-eztest/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenarioA = `{"testRunName":"Nightly","environment":"QA","results":[{"testCaseId":"tc1","status":"PASSED","duration":42}]}`

const scenarioB = `{
  "report_meta": {"project_name": "Shop", "report_source": "ExtentReports"},
  "results": [
    {"test_name": "Checkout", "status": "FAIL", "error_message": "expected 200, got 500", "duration_ms": 1500},
    {"test_name": "Login", "status": "PASS", "duration_ms": 800}
  ]
}`

const scenarioC = `<html><body><table>
<tr><td>LoginTest</td><td>com.x.Y</td><td>PASS</td><td>3500ms</td></tr>
</table></body></html>`

func newTestImporter(t *testing.T, o Options) (*Importer, *registrytest.Server) {
	srv := registrytest.New()
	srv.APIKey = "secret"
	t.Cleanup(srv.Close)
	c := srv.Client("proj1")
	t.Cleanup(c.Close)
	o.Logger = integration.NewLogger("debug")
	imp, err := New(c, o)
	require.NoError(t, err)
	return imp, srv
}

func TestImportMinimalReport(t *testing.T) {
	imp, srv := newTestImporter(t, Options{})
	res, err := imp.ImportBytes(context.Background(), "nightly.json", []byte(scenarioA))
	require.NoError(t, err)
	require.NotEmpty(t, res.RunID)
	assert.Equal(t, report.DialectMinimalJSON, res.Dialect)
	assert.Equal(t, "nightly.json", res.Source)

	run, ok := srv.Run(res.RunID)
	require.True(t, ok)
	assert.Equal(t, "Nightly", run.Name)
	assert.Equal(t, "QA", run.Environment)
	assert.Equal(t, "COMPLETED", run.Status)
	require.Len(t, run.Results, 1)
	assert.Equal(t, "PASSED", run.Results[0].Status)
	require.NotNil(t, run.Results[0].Duration)
	assert.Equal(t, int64(42), *run.Results[0].Duration)
	assert.Equal(t, 1, srv.Calls("create_test_case"))
}

func TestImportRichReport(t *testing.T) {
	imp, srv := newTestImporter(t, Options{})
	res, err := imp.ImportBytes(context.Background(), "extent.json", []byte(scenarioB))
	require.NoError(t, err)
	assert.Equal(t, report.DialectRichJSON, res.Dialect)
	assert.Equal(t, 2, res.Outcome.Recorded)
	assert.NoError(t, res.Outcome.Issues)

	run, ok := srv.Run(res.RunID)
	require.True(t, ok)
	assert.Equal(t, "Shop", run.Name)
	assert.Equal(t, reconcile.DefaultEnvironment, run.Environment)
	assert.Len(t, run.TestCaseIDs, 2)
	require.Len(t, run.Results, 2)
	assert.Equal(t, "FAILED", run.Results[0].Status)
	assert.Equal(t, "expected 200, got 500", run.Results[0].ErrorMessage)
	assert.Equal(t, "PASSED", run.Results[1].Status)
	assert.Empty(t, run.Results[1].ErrorMessage)
}

func TestImportGenericHTMLFile(t *testing.T) {
	imp, srv := newTestImporter(t, Options{})
	srv.AddTestCase("proj1", "TC-1", "LoginTest")
	path := filepath.Join(t.TempDir(), "results.html")
	require.NoError(t, os.WriteFile(path, []byte(scenarioC), 0o600))

	res, err := imp.ImportFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, report.DialectGenericHTML, res.Dialect)
	assert.Equal(t, "results.html", res.Source)
	assert.Equal(t, 0, srv.Calls("create_test_case"))

	run, _ := srv.Run(res.RunID)
	require.Len(t, run.Results, 1)
	require.NotNil(t, run.Results[0].Duration)
	assert.Equal(t, int64(3), *run.Results[0].Duration)
}

func TestImportReusesCasesAcrossImports(t *testing.T) {
	imp, srv := newTestImporter(t, Options{})
	_, err := imp.ImportBytes(context.Background(), "a.json", []byte(scenarioB))
	require.NoError(t, err)
	_, err = imp.ImportBytes(context.Background(), "b.json", []byte(scenarioB))
	require.NoError(t, err)
	assert.Equal(t, 2, srv.Calls("create_test_case"))
	assert.Len(t, srv.TestCases(), 2)
	assert.Len(t, srv.Runs(), 2)
}

func TestImportWithReplaceKeepsOneRun(t *testing.T) {
	imp, srv := newTestImporter(t, Options{ReplacePrevious: true})
	_, err := imp.ImportBytes(context.Background(), "a.json", []byte(scenarioA))
	require.NoError(t, err)
	_, err = imp.ImportBytes(context.Background(), "a.json", []byte(scenarioA))
	require.NoError(t, err)
	assert.Len(t, srv.Runs(), 1)
	assert.Equal(t, 1, srv.Calls("delete_test_run"))
}

func TestImportDuringOutage(t *testing.T) {
	imp, srv := newTestImporter(t, Options{})
	srv.Fail("get_test_case", http.StatusServiceUnavailable)
	srv.Fail("search_test_cases", http.StatusServiceUnavailable)
	srv.Fail("create_test_case", http.StatusServiceUnavailable)

	res, err := imp.ImportBytes(context.Background(), "nightly.json", []byte(scenarioA))
	require.Error(t, err)
	assert.True(t, failure.Is(err, failure.KindNoResolvableTestCases))
	assert.Empty(t, res.RunID)
	assert.Equal(t, 0, srv.Calls("create_test_run"))
}

func TestImportPartialRecordFailure(t *testing.T) {
	imp, srv := newTestImporter(t, Options{})
	srv.Fail("record_result", http.StatusInternalServerError)

	res, err := imp.ImportBytes(context.Background(), "extent.json", []byte(scenarioB))
	require.NoError(t, err)
	require.NotEmpty(t, res.RunID)
	assert.Equal(t, 0, res.Outcome.Recorded)
	assert.True(t, failure.Is(res.Outcome.Issues, failure.KindPartialRecord))

	run, _ := srv.Run(res.RunID)
	assert.Equal(t, "COMPLETED", run.Status)
}

func TestImportDirect(t *testing.T) {
	imp, srv := newTestImporter(t, Options{Direct: true})
	tc := srv.AddTestCase("proj1", "TC-1", "Login")
	in := `{"testRunName":"Smoke","environment":"QA","results":[
		{"testCaseId":"TC-1","status":"FAILED","duration":3,"errorMessage":"boom"},
		{"testCaseId":"TC-404","status":"PASSED"}]}`

	res, err := imp.ImportBytes(context.Background(), "smoke.json", []byte(in))
	require.NoError(t, err)
	require.NotNil(t, res.Direct)
	assert.Nil(t, res.Outcome)
	assert.Equal(t, 1, res.Direct.ProcessedCount)
	assert.Equal(t, 1, res.Direct.ErrorCount)
	assert.Equal(t, 0, srv.Calls("create_test_run"))

	run, ok := srv.Run(res.RunID)
	require.True(t, ok)
	require.Len(t, run.Results, 1)
	assert.Equal(t, tc.ID, run.Results[0].TestCaseID)
	assert.Equal(t, "boom", run.Results[0].ErrorMessage)
}

func TestImportDirectFallsBackForUnnamedRuns(t *testing.T) {
	imp, srv := newTestImporter(t, Options{Direct: true})
	res, err := imp.ImportBytes(context.Background(), "extent.json", []byte(scenarioB))
	require.NoError(t, err)
	assert.NotNil(t, res.Outcome)
	assert.Equal(t, 0, srv.Calls("import_automation_report"))
}

func TestImportParseFailures(t *testing.T) {
	imp, srv := newTestImporter(t, Options{})
	_, err := imp.ImportBytes(context.Background(), "notes.txt", []byte("hello"))
	assert.Equal(t, failure.KindFormatUnrecognized, failure.KindOf(err))

	_, err = imp.ImportBytes(context.Background(), "run.json", []byte(`{"testRunName":"Nightly","results":[]}`))
	assert.Equal(t, failure.KindMissingRequiredField, failure.KindOf(err))

	_, err = imp.ImportFile(context.Background(), filepath.Join(t.TempDir(), "missing.html"))
	assert.Equal(t, failure.KindReportUnreadable, failure.KindOf(err))

	for _, op := range []string{"search_test_cases", "create_test_case", "create_test_run"} {
		assert.Equal(t, 0, srv.Calls(op), op)
	}
}

func TestToAutomationReportRequiresRunName(t *testing.T) {
	_, err := ToAutomationReport(&report.Report{Header: report.Header{RunEnvironment: "QA"}})
	assert.True(t, failure.Is(err, failure.KindMissingRequiredField))
}

func TestNewRequiresClient(t *testing.T) {
	_, err := New(nil, Options{})
	assert.Error(t, err)
}
