package capsolver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// getTestAPIKey returns the API key from environment variable for integration tests.
func getTestAPIKey() string {
	return os.Getenv("CAPSOLVER_API_KEY")
}

// skipIfNoAPIKey skips the test if API key is not available.
func skipIfNoAPIKey(t *testing.T) string {
	apiKey := getTestAPIKey()
	if apiKey == "" {
		t.Skip("Skipping integration test: CAPSOLVER_API_KEY not set")
	}
	return apiKey
}

// mockAPI is an in-process CapSolver. getTaskResult answers are served from
// results in order; the last one repeats.
type mockAPI struct {
	t *testing.T

	mu          sync.Mutex
	createResp  interface{}
	createCode  int
	results     []TaskResultResponse
	balanceResp interface{}

	createCalls  int
	resultCalls  int
	balanceCalls int
	lastCreate   map[string]interface{}
	lastTaskID   string
}

func newMockAPI(t *testing.T) (*mockAPI, *httptest.Server) {
	m := &mockAPI{
		t:          t,
		createResp: CreateTaskResponse{TaskID: "task-123"},
		createCode: http.StatusOK,
		results:    []TaskResultResponse{{Status: "processing"}},
	}
	server := httptest.NewServer(http.HandlerFunc(m.serve))
	t.Cleanup(server.Close)
	return m, server
}

func (m *mockAPI) serve(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		m.t.Errorf("Expected POST method, got %s", r.Method)
	}
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		m.t.Errorf("Expected Content-Type application/json, got %s", r.Header.Get("Content-Type"))
	}

	body, _ := io.ReadAll(r.Body)
	var req map[string]interface{}
	if err := json.Unmarshal(body, &req); err != nil {
		m.t.Errorf("Failed to unmarshal request: %v", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/createTask":
		m.createCalls++
		m.lastCreate = req
		w.WriteHeader(m.createCode)
		_ = json.NewEncoder(w).Encode(m.createResp)
	case "/getTaskResult":
		m.resultCalls++
		m.lastTaskID, _ = req["taskId"].(string)
		i := m.resultCalls - 1
		if i >= len(m.results) {
			i = len(m.results) - 1
		}
		_ = json.NewEncoder(w).Encode(m.results[i])
	case "/getBalance":
		m.balanceCalls++
		_ = json.NewEncoder(w).Encode(m.balanceResp)
	default:
		m.t.Errorf("Unexpected path %s", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	}
}

func (m *mockAPI) calls() (create, result int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createCalls, m.resultCalls
}

func newTestClient(serverURL string, opts ...Option) *Client {
	base := []Option{
		WithAPIBase(serverURL),
		WithLogger(zerolog.Nop()),
		WithPolling(time.Millisecond, 5),
	}
	return New("test-api-key", append(base, opts...)...)
}

// =============================================================================
// Unit Tests (no API key required)
// =============================================================================

func TestNew(t *testing.T) {
	client := New("test-api-key")

	if client.apiKey != "test-api-key" {
		t.Errorf("Expected apiKey to be 'test-api-key', got '%s'", client.apiKey)
	}
	if client.apiBase != DefaultAPIBase {
		t.Errorf("Expected default apiBase, got '%s'", client.apiBase)
	}
	if client.timeout != 30*time.Second {
		t.Errorf("Expected default timeout 30s, got %v", client.timeout)
	}
	if client.policy != nil {
		t.Error("Expected no polling override by default")
	}
	if client.cache != nil {
		t.Error("Expected clearance cache to be disabled by default")
	}
	if client.metrics != nil {
		t.Error("Expected metrics to be disabled by default")
	}
}

func TestNewWithOptions(t *testing.T) {
	client := New("test-api-key",
		WithAPIBase("https://custom.api.com"),
		WithAppID("app-1"),
		WithAPIProxy("http://api-proxy:8080"),
		WithTimeout(60*time.Second),
		WithPolling(500*time.Millisecond, 10),
		WithClearanceCache(time.Minute),
		WithLogger(zerolog.Nop()),
	)

	if client.apiBase != "https://custom.api.com" {
		t.Errorf("Expected apiBase 'https://custom.api.com', got '%s'", client.apiBase)
	}
	if client.appID != "app-1" {
		t.Errorf("Expected appID 'app-1', got '%s'", client.appID)
	}
	if client.apiProxy != "http://api-proxy:8080" {
		t.Errorf("Expected apiProxy 'http://api-proxy:8080', got '%s'", client.apiProxy)
	}
	if client.timeout != 60*time.Second {
		t.Errorf("Expected timeout 60s, got %v", client.timeout)
	}
	if client.policy == nil || client.policy.Interval != 500*time.Millisecond || client.policy.MaxAttempts != 10 {
		t.Errorf("Expected polling override 500ms/10, got %+v", client.policy)
	}
	if client.cache == nil || client.cache.ttl != time.Minute {
		t.Error("Expected clearance cache with 1m TTL")
	}
}

func TestAPIBaseTrailingSlash(t *testing.T) {
	client := New("test-api-key", WithAPIBase("https://api.example.com/"))

	if client.apiBase != "https://api.example.com" {
		t.Errorf("Expected trailing slash to be trimmed, got '%s'", client.apiBase)
	}
}

func TestPolicyFor(t *testing.T) {
	client := New("test-api-key")
	if got := client.policyFor(TaskTypeCloudflare); got != (PollPolicy{Interval: 2 * time.Second, MaxAttempts: 60}) {
		t.Errorf("Unexpected Cloudflare policy %+v", got)
	}
	if got := client.policyFor(TaskTypeTurnstile); got != (PollPolicy{Interval: time.Second, MaxAttempts: 40}) {
		t.Errorf("Unexpected Turnstile policy %+v", got)
	}

	client = New("test-api-key", WithPolling(time.Millisecond, 3))
	if got := client.policyFor(TaskTypeCloudflare); got != (PollPolicy{Interval: time.Millisecond, MaxAttempts: 3}) {
		t.Errorf("Expected override to apply, got %+v", got)
	}
}

func TestVersion(t *testing.T) {
	if Version == "" {
		t.Error("Version should not be empty")
	}
}

// =============================================================================
// Error Types Tests
// =============================================================================

func TestConfigurationError(t *testing.T) {
	err := NewConfigurationError("proxy", "proxy is mandatory")
	if !strings.Contains(err.Error(), "proxy is mandatory") {
		t.Errorf("Error message should contain 'proxy is mandatory', got '%s'", err.Error())
	}
	if !strings.Contains(err.Error(), "proxy:") {
		t.Errorf("Error message should name the field, got '%s'", err.Error())
	}
}

func TestTaskCreationError(t *testing.T) {
	err := NewTaskCreationError(1, "ERROR_ZERO_BALANCE", "Insufficient balance")
	if !strings.Contains(err.Error(), "Insufficient balance") {
		t.Errorf("Error message should contain description, got '%s'", err.Error())
	}
	if !err.Fatal() {
		t.Error("ERROR_ZERO_BALANCE should be fatal")
	}

	err = NewTaskCreationError(1, "ERROR_INVALID_TASK_DATA", "")
	if !strings.Contains(err.Error(), "Unknown error") {
		t.Errorf("Empty description should read 'Unknown error', got '%s'", err.Error())
	}
	if err.Fatal() {
		t.Error("ERROR_INVALID_TASK_DATA should not be fatal")
	}
}

func TestTaskFailedError(t *testing.T) {
	err := NewTaskFailedError("task-1", "bad proxy")
	if err.Error() != "task failed: bad proxy" {
		t.Errorf("Unexpected message '%s'", err.Error())
	}
}

func TestTimeoutError(t *testing.T) {
	err := NewTimeoutError("context cancelled", context.Canceled)
	if !errors.Is(err, context.Canceled) {
		t.Error("Expected TimeoutError to unwrap to context.Canceled")
	}
	if !strings.Contains(NewTimeoutError("operation timed out", nil).Error(), "operation timed out") {
		t.Error("Error message should contain 'operation timed out'")
	}
}

func TestConnectionError(t *testing.T) {
	cause := &APIError{Message: "underlying error", StatusCode: 500}
	err := NewConnectionError("connection failed", cause)

	if !strings.Contains(err.Error(), "connection failed") {
		t.Errorf("Error message should contain 'connection failed', got '%s'", err.Error())
	}
	if err.Unwrap() != cause {
		t.Error("Unwrap should return the cause")
	}

	errNoCause := NewConnectionError("no cause", nil)
	if errNoCause.Unwrap() != nil {
		t.Error("Unwrap should return nil when no cause")
	}
}

func TestAPIError(t *testing.T) {
	err := NewAPIError("bad gateway", "", 502)
	if !strings.Contains(err.Error(), "502") {
		t.Errorf("Error message should contain status code, got '%s'", err.Error())
	}
	err = NewAPIError("key not found", "ERROR_KEY_DOES_NOT_EXIST", 200)
	if !strings.Contains(err.Error(), "ERROR_KEY_DOES_NOT_EXIST") {
		t.Errorf("Error message should contain code, got '%s'", err.Error())
	}
}

// =============================================================================
// Integration Tests (require API key)
// =============================================================================

func TestIntegration_Balance(t *testing.T) {
	apiKey := skipIfNoAPIKey(t)

	client := New(apiKey, WithLogger(zerolog.Nop()))
	balance, err := client.Balance(context.Background())
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	t.Logf("Balance: %.4f", balance)
}

func TestIntegration_InvalidTurnstileKey(t *testing.T) {
	apiKey := skipIfNoAPIKey(t)

	client := New(apiKey, WithLogger(zerolog.Nop()))
	_, err := client.SolveTurnstile(context.Background(), "https://example.com", "0x4invalid")
	if err == nil {
		t.Error("Expected error for an invalid sitekey")
	}
	t.Logf("Got expected error: %v", err)
}

func TestIntegration_APIKeyValidation(t *testing.T) {
	if getTestAPIKey() == "" {
		t.Skip("Skipping integration test: CAPSOLVER_API_KEY not set")
	}

	client := New("invalid-api-key", WithLogger(zerolog.Nop()))
	_, err := client.Balance(context.Background())
	if err == nil {
		t.Error("Expected error with invalid API key")
	}
	t.Logf("Got expected error for invalid API key: %v", err)
}

// =============================================================================
// Benchmark Tests
// =============================================================================

func BenchmarkNewCloudflareTask(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = NewCloudflareTask("https://example.com", "  http://proxy：8080  ")
	}
}

func BenchmarkNormalizeProxyString(b *testing.B) {
	for i := 0; i < b.N; i++ {
		normalizeProxyString("  http://proxy：8080  ")
	}
}
