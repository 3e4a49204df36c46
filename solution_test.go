package capsolver

import (
	"errors"
	"testing"
)

func TestSolutionAccessors(t *testing.T) {
	solution := Solution{
		"token":     "tok",
		"userAgent": "UA/1.0",
		"cookies": map[string]interface{}{
			"cf_clearance": "abc",
			"__cf_bm":      "xyz",
			"ignored":      42,
		},
		"extra": "kept",
	}

	if solution.Token() != "tok" {
		t.Errorf("Expected token 'tok', got '%s'", solution.Token())
	}
	if solution.UserAgent() != "UA/1.0" {
		t.Errorf("Expected UA/1.0, got '%s'", solution.UserAgent())
	}
	if solution.Clearance() != "abc" {
		t.Errorf("Expected clearance 'abc', got '%s'", solution.Clearance())
	}
	if header := solution.CookieHeader(); header != "__cf_bm=xyz; cf_clearance=abc" {
		t.Errorf("Unexpected cookie header '%s'", header)
	}
	if solution["extra"] != "kept" {
		t.Error("Expected unknown fields to be kept")
	}
}

func TestEmptySolution(t *testing.T) {
	var solution Solution
	if solution.Token() != "" || solution.Clearance() != "" || solution.CookieHeader() != "" {
		t.Error("Expected empty values from nil solution")
	}
}

func TestResultStatusString(t *testing.T) {
	if ResultReady.String() != "ready" || ResultFailed.String() != "failed" || ResultTimedOut.String() != "timeout" {
		t.Error("Unexpected status names")
	}
}

func TestTaskResultErr(t *testing.T) {
	ready := &TaskResult{Status: ResultReady, TaskID: "t1", Solution: Solution{}}
	if err := ready.Err(); err != nil {
		t.Errorf("Expected nil error, got %v", err)
	}

	failed := &TaskResult{Status: ResultFailed, TaskID: "t1", ErrorDescription: "bad proxy"}
	var failedErr *TaskFailedError
	if err := failed.Err(); !errors.As(err, &failedErr) || failedErr.Description != "bad proxy" || failedErr.TaskID != "t1" {
		t.Errorf("Expected TaskFailedError, got %v", err)
	}

	timedOut := &TaskResult{Status: ResultTimedOut, TaskID: "t1", Attempts: 40}
	var timeoutErr *TimeoutError
	if err := timedOut.Err(); !errors.As(err, &timeoutErr) {
		t.Errorf("Expected TimeoutError, got %v", err)
	}
}
