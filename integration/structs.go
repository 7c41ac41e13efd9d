package integration

import "time"

type envelope[T any] struct {
	Data    T      `json:"data"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

type TestCase struct {
	ID          string `json:"id"`
	TcID        string `json:"tcId"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Priority    string `json:"priority,omitempty"`
	Status      string `json:"status,omitempty"`
}

type CreateTestCasePayload struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Priority    string `json:"priority,omitempty"`
	Status      string `json:"status,omitempty"`
}

type UpdateTestCasePayload struct {
	Title          string `json:"title,omitempty"`
	Description    string `json:"description,omitempty"`
	Priority       string `json:"priority,omitempty"`
	Status         string `json:"status,omitempty"`
	EstimatedTime  *int   `json:"estimatedTime,omitempty"`
	Preconditions  string `json:"preconditions,omitempty"`
	Postconditions string `json:"postconditions,omitempty"`
	ExpectedResult string `json:"expectedResult,omitempty"`
	TestData       string `json:"testData,omitempty"`
	ModuleID       string `json:"moduleId,omitempty"`
	SuiteID        string `json:"suiteId,omitempty"`
}

type CreateTestRunPayload struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Environment string   `json:"environment,omitempty"`
	TestCaseIDs []string `json:"testCaseIds"`
}

type UpdateTestRunPayload struct {
	Name         string `json:"name,omitempty"`
	Description  string `json:"description,omitempty"`
	Status       string `json:"status,omitempty"`
	AssignedToID string `json:"assignedToId,omitempty"`
	Environment  string `json:"environment,omitempty"`
}

type TestRun struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Status      string    `json:"status,omitempty"`
	Environment string    `json:"environment,omitempty"`
	StartedAt   string    `json:"startedAt,omitempty"`
	CompletedAt string    `json:"completedAt,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

type RecordResultPayload struct {
	TestCaseID   string `json:"testCaseId"`
	Status       string `json:"status"`
	Duration     *int64 `json:"duration,omitempty"`
	Comment      string `json:"comment,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	StackTrace   string `json:"stackTrace,omitempty"`
}

type HistoryEntry struct {
	ID           string       `json:"id"`
	TestCaseID   string       `json:"testCaseId"`
	TestRunID    string       `json:"testRunId"`
	Status       string       `json:"status"`
	Duration     *int64       `json:"duration,omitempty"`
	Comment      string       `json:"comment,omitempty"`
	ErrorMessage string       `json:"errorMessage,omitempty"`
	StackTrace   string       `json:"stackTrace,omitempty"`
	ExecutedAt   time.Time    `json:"executedAt"`
	ExecutedBy   *HistoryUser `json:"executedBy,omitempty"`
	TestRun      *HistoryRun  `json:"testRun,omitempty"`
}

type HistoryUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type HistoryRun struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Environment string `json:"environment"`
	Status      string `json:"status"`
}

// AutomationReport is the body accepted by the one-call import endpoint.
type AutomationReport struct {
	TestRunName string             `json:"testRunName"`
	Environment string             `json:"environment"`
	Description string             `json:"description,omitempty"`
	Results     []AutomationResult `json:"results"`
}

type AutomationResult struct {
	TestCaseID   string `json:"testCaseId"`
	Status       string `json:"status"`
	Duration     *int64 `json:"duration,omitempty"`
	Comment      string `json:"comment,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	StackTrace   string `json:"stackTrace,omitempty"`
}

type AutomationReportResponse struct {
	TestRunID      string            `json:"testRunId"`
	TestRunName    string            `json:"testRunName"`
	Environment    string            `json:"environment"`
	ProcessedCount int               `json:"processedCount"`
	ErrorCount     int               `json:"errorCount"`
	Results        []ProcessedResult `json:"results"`
	Errors         []ResultError     `json:"errors"`
}

type ProcessedResult struct {
	TestCaseID string `json:"testCaseId"`
	Status     string `json:"status"`
	ResultID   string `json:"resultId"`
}

type ResultError struct {
	TestCaseID string `json:"testCaseId"`
	Error      string `json:"error"`
}
