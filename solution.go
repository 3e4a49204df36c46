package capsolver

import (
	"fmt"
	"sort"
	"strings"
)

// TaskHandle is the taskId returned by createTask.
type TaskHandle string

// Solution is the solution object of a ready task, kept verbatim.
type Solution map[string]interface{}

// Token returns the challenge or Turnstile token.
func (s Solution) Token() string {
	return s.str("token")
}

// UserAgent returns the User-Agent the solve ran with. Requests that carry the
// clearance cookie must send exactly this value.
func (s Solution) UserAgent() string {
	return s.str("userAgent")
}

// Cookies returns the cookies issued to the solver.
func (s Solution) Cookies() map[string]string {
	cookies := make(map[string]string)
	raw, ok := s["cookies"].(map[string]interface{})
	if !ok {
		return cookies
	}
	for k, v := range raw {
		if strVal, ok := v.(string); ok {
			cookies[k] = strVal
		}
	}
	return cookies
}

// Clearance returns the cf_clearance cookie, or "" for Turnstile solutions.
func (s Solution) Clearance() string {
	return s.Cookies()["cf_clearance"]
}

// CookieHeader formats the cookies as a Cookie header value, sorted by name.
func (s Solution) CookieHeader() string {
	cookies := s.Cookies()
	names := make([]string, 0, len(cookies))
	for k := range cookies {
		names = append(names, k)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, k := range names {
		parts = append(parts, fmt.Sprintf("%s=%s", k, cookies[k]))
	}
	return strings.Join(parts, "; ")
}

func (s Solution) str(key string) string {
	v, _ := s[key].(string)
	return v
}

// ResultStatus is the terminal state of a poll loop.
type ResultStatus int

const (
	ResultReady ResultStatus = iota
	ResultFailed
	ResultTimedOut
)

func (s ResultStatus) String() string {
	switch s {
	case ResultReady:
		return "ready"
	case ResultFailed:
		return "failed"
	case ResultTimedOut:
		return "timeout"
	default:
		return "unknown"
	}
}

// TaskResult is the terminal value of Poll.
type TaskResult struct {
	Status           ResultStatus
	TaskID           TaskHandle
	Solution         Solution
	ErrorDescription string
	Attempts         int
}

// Err converts a failed or timed out result into its error.
func (r *TaskResult) Err() error {
	switch r.Status {
	case ResultReady:
		return nil
	case ResultFailed:
		return NewTaskFailedError(r.TaskID, r.ErrorDescription)
	default:
		return NewTimeoutError(fmt.Sprintf("no solution for task %s after %d attempts", r.TaskID, r.Attempts), nil)
	}
}
