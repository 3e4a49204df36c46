package capsolver

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// DefaultAPIBase is the public CapSolver endpoint.
const DefaultAPIBase = "https://api.capsolver.com"

// Remote task statuses reported by getTaskResult.
const (
	statusReady  = "ready"
	statusFailed = "failed"
)

// Client drives the create -> poll -> resolve lifecycle against the CapSolver API.
// A Client holds no per-task state and may be shared.
type Client struct {
	apiKey   string
	apiBase  string
	appID    string
	apiProxy string
	timeout  time.Duration
	policy   *PollPolicy

	logger   zerolog.Logger
	metrics  *Metrics
	cache    *ClearanceCache
	inflight singleflight.Group

	http *resty.Client
}

// CreateTaskRequest represents the request body for creating a task.
type CreateTaskRequest struct {
	ClientKey string `json:"clientKey"`
	AppID     string `json:"appId,omitempty"`
	Task      Task   `json:"task"`
}

// CreateTaskResponse represents the response from creating a task.
type CreateTaskResponse struct {
	ErrorID          int    `json:"errorId"`
	ErrorCode        string `json:"errorCode"`
	ErrorDescription string `json:"errorDescription"`
	TaskID           string `json:"taskId"`
}

// TaskResultRequest represents the request body for getting a task result.
type TaskResultRequest struct {
	ClientKey string     `json:"clientKey"`
	TaskID    TaskHandle `json:"taskId"`
}

// TaskResultResponse represents one getTaskResult answer.
type TaskResultResponse struct {
	ErrorID          int      `json:"errorId"`
	ErrorCode        string   `json:"errorCode,omitempty"`
	ErrorDescription string   `json:"errorDescription,omitempty"`
	Status           string   `json:"status"`
	Solution         Solution `json:"solution,omitempty"`
}

// BalanceRequest represents the request body for getBalance.
type BalanceRequest struct {
	ClientKey string `json:"clientKey"`
}

// BalanceResponse represents the response from getBalance.
type BalanceResponse struct {
	ErrorID          int     `json:"errorId"`
	ErrorCode        string  `json:"errorCode"`
	ErrorDescription string  `json:"errorDescription"`
	Balance          float64 `json:"balance"`
}

// New creates a new Client with the given API key and options.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:  strings.TrimSpace(apiKey),
		apiBase: DefaultAPIBase,
		timeout: 30 * time.Second,
		logger:  zerolog.New(os.Stderr).With().Timestamp().Logger().Level(zerolog.InfoLevel),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.apiBase = strings.TrimSuffix(c.apiBase, "/")

	c.http = resty.New().
		SetBaseURL(c.apiBase).
		SetTimeout(c.timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "capsolver-golang-sdk/"+Version)
	if c.apiProxy != "" {
		c.http.SetProxy(c.apiProxy)
	}

	return c
}

// Create validates the task and submits it to createTask. Validation failures
// are returned before any request is sent.
func (c *Client) Create(ctx context.Context, task Task) (TaskHandle, error) {
	return c.create(ctx, c.logger, task)
}

// Poll checks the task status every policy.Interval until it is ready, failed,
// or policy.MaxAttempts checks have been made. The first check happens after
// one interval. The returned error is non-nil only when the API could not be
// reached or ctx ended; remote failures and timeouts are reported in the result.
func (c *Client) Poll(ctx context.Context, handle TaskHandle, policy PollPolicy) (*TaskResult, error) {
	return c.poll(ctx, c.logger, handle, policy)
}

// Solve creates the task and polls it with the task type's default policy,
// or the one set by WithPolling.
func (c *Client) Solve(ctx context.Context, task Task) (Solution, error) {
	start := time.Now()
	logger := c.logger.With().
		Str("solve_id", uuid.NewString()).
		Str("task_type", string(task.Type)).
		Logger()

	handle, err := c.create(ctx, logger, task)
	if err != nil {
		c.metrics.ObserveSolve(task.Type, outcomeOf(err), time.Since(start))
		return nil, err
	}

	result, err := c.poll(ctx, logger, handle, c.policyFor(task.Type))
	if err == nil {
		err = result.Err()
	}
	if err != nil {
		c.metrics.ObserveSolve(task.Type, outcomeOf(err), time.Since(start))
		logger.Warn().Err(err).Str("task_id", string(handle)).Msg("Solve failed")
		return nil, err
	}

	elapsed := time.Since(start)
	c.metrics.ObserveSolve(task.Type, ResultReady.String(), elapsed)
	logger.Info().
		Str("task_id", string(handle)).
		Int("attempts", result.Attempts).
		Dur("elapsed", elapsed).
		Msg("Solution received")
	return result.Solution, nil
}

// SolveCloudflare solves the Cloudflare interstitial on websiteURL through proxy.
// With WithClearanceCache, a fresh cached solution for the same host and proxy
// is returned without contacting the API, and concurrent calls for the same
// host and proxy share a single task.
func (c *Client) SolveCloudflare(ctx context.Context, websiteURL, proxy string, opts ...TaskOption) (Solution, error) {
	task := NewCloudflareTask(websiteURL, proxy, opts...)
	if err := c.validate(task); err != nil {
		return nil, err
	}
	if c.cache == nil {
		return c.Solve(ctx, task)
	}

	if cached, ok := c.cache.Get(task.WebsiteURL, task.Proxy); ok {
		c.metrics.IncCacheLookup(true)
		c.logger.Info().Str("website_url", task.WebsiteURL).Msg("Using cached clearance")
		return cached, nil
	}
	c.metrics.IncCacheLookup(false)

	// The shared solve outlives any single caller; each caller stops waiting
	// when its own ctx ends.
	solveCtx := context.WithoutCancel(ctx)
	ch := c.inflight.DoChan(clearanceKey(task.WebsiteURL, task.Proxy), func() (interface{}, error) {
		// Another caller may have stored a solution while this one waited.
		if cached, ok := c.cache.Get(task.WebsiteURL, task.Proxy); ok {
			return cached, nil
		}
		solution, err := c.Solve(solveCtx, task)
		if err != nil {
			return nil, err
		}
		c.cache.Put(task.WebsiteURL, task.Proxy, solution)
		return solution, nil
	})

	select {
	case <-ctx.Done():
		return nil, NewTimeoutError("context cancelled", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			c.logger.Debug().Str("website_url", task.WebsiteURL).Msg("Shared in-flight solve")
		}
		return res.Val.(Solution), nil
	}
}

// SolveTurnstile solves the Turnstile widget identified by websiteKey on websiteURL.
func (c *Client) SolveTurnstile(ctx context.Context, websiteURL, websiteKey string, opts ...TaskOption) (Solution, error) {
	return c.Solve(ctx, NewTurnstileTask(websiteURL, websiteKey, opts...))
}

// Balance returns the account balance in USD.
func (c *Client) Balance(ctx context.Context) (float64, error) {
	if err := validateAPIKey(c.apiKey); err != nil {
		return 0, err
	}

	var resp BalanceResponse
	status, err := c.post(ctx, "/getBalance", BalanceRequest{ClientKey: c.apiKey}, &resp)
	if err != nil {
		return 0, err
	}
	if resp.ErrorID != 0 {
		return 0, NewAPIError(resp.ErrorDescription, resp.ErrorCode, status)
	}
	return resp.Balance, nil
}

// ClearCache drops cached clearances for host, or all of them when host is "".
func (c *Client) ClearCache(host string) {
	if c.cache != nil {
		c.cache.Clear(host)
	}
}

func (c *Client) validate(task Task) error {
	if err := validateAPIKey(c.apiKey); err != nil {
		return err
	}
	return task.Validate()
}

func (c *Client) policyFor(taskType TaskType) PollPolicy {
	if c.policy != nil {
		return *c.policy
	}
	return taskType.DefaultPolicy()
}

func (c *Client) create(ctx context.Context, logger zerolog.Logger, task Task) (TaskHandle, error) {
	task.Proxy = normalizeProxyString(task.Proxy)
	if err := c.validate(task); err != nil {
		return "", err
	}

	if task.HTML != "" && !LooksLikeChallenge(task.HTML) {
		logger.Warn().Msg("HTML snapshot does not look like a Cloudflare challenge page")
	}

	logger.Info().
		Str("website_url", task.WebsiteURL).
		Bool("custom_user_agent", task.UserAgent != "").
		Bool("html", task.HTML != "").
		Msg("Creating task")

	var resp CreateTaskResponse
	_, err := c.post(ctx, "/createTask", CreateTaskRequest{
		ClientKey: c.apiKey,
		AppID:     c.appID,
		Task:      task,
	}, &resp)
	if err != nil {
		return "", err
	}

	if resp.ErrorID != 0 {
		return "", NewTaskCreationError(resp.ErrorID, resp.ErrorCode, resp.ErrorDescription)
	}
	if resp.TaskID == "" {
		return "", NewTaskCreationError(0, "", "no taskId returned")
	}

	c.metrics.IncTaskCreated(task.Type)
	logger.Info().Str("task_id", resp.TaskID).Msg("Task created")
	return TaskHandle(resp.TaskID), nil
}

func (c *Client) poll(ctx context.Context, logger zerolog.Logger, handle TaskHandle, policy PollPolicy) (*TaskResult, error) {
	if handle == "" {
		return nil, NewConfigurationError("taskId", "task handle is empty")
	}
	if err := policy.validate(); err != nil {
		return nil, err
	}

	logger = logger.With().Str("task_id", string(handle)).Logger()
	logger.Info().
		Dur("interval", policy.Interval).
		Int("max_attempts", policy.MaxAttempts).
		Msg("Waiting for solution")

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, NewTimeoutError("context cancelled", ctx.Err())
		case <-time.After(policy.Interval):
		}

		var resp TaskResultResponse
		if _, err := c.post(ctx, "/getTaskResult", TaskResultRequest{
			ClientKey: c.apiKey,
			TaskID:    handle,
		}, &resp); err != nil {
			return nil, err
		}
		c.metrics.IncPollAttempt()

		if resp.ErrorID != 0 || resp.Status == statusFailed {
			desc := resp.ErrorDescription
			if desc == "" {
				desc = "Unknown error"
			}
			return &TaskResult{
				Status:           ResultFailed,
				TaskID:           handle,
				ErrorDescription: desc,
				Attempts:         attempt,
			}, nil
		}

		if resp.Status == statusReady {
			solution := resp.Solution
			if solution == nil {
				solution = Solution{}
			}
			return &TaskResult{
				Status:   ResultReady,
				TaskID:   handle,
				Solution: solution,
				Attempts: attempt,
			}, nil
		}

		logger.Debug().
			Str("status", resp.Status).
			Int("attempt", attempt).
			Int("max_attempts", policy.MaxAttempts).
			Msg("Processing")
	}

	return &TaskResult{
		Status:   ResultTimedOut,
		TaskID:   handle,
		Attempts: policy.MaxAttempts,
	}, nil
}

// post sends one JSON request and decodes the API envelope into out. The HTTP
// status is returned for callers that report it. Nothing is retried.
func (c *Client) post(ctx context.Context, path string, body, out interface{}) (int, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Post(path)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, NewTimeoutError("context cancelled", ctxErr)
		}
		return 0, NewConnectionError("failed to send request", err)
	}

	// The API answers errors with a JSON envelope and a 4xx status. A non-2xx
	// reply without an errorId did not come from the API.
	raw := resp.Body()
	if resp.IsError() && !hasEnvelope(raw) {
		return resp.StatusCode(), NewAPIError(strings.TrimSpace(string(raw)), "", resp.StatusCode())
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return resp.StatusCode(), NewConnectionError("failed to parse response", err)
	}
	return resp.StatusCode(), nil
}

// hasEnvelope reports whether body is a JSON object carrying errorId.
func hasEnvelope(body []byte) bool {
	var envelope struct {
		ErrorID *int `json:"errorId"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return false
	}
	return envelope.ErrorID != nil
}

// outcomeOf maps an error to the outcome label used in metrics.
func outcomeOf(err error) string {
	var failed *TaskFailedError
	var timeout *TimeoutError
	switch {
	case errors.As(err, &failed):
		return ResultFailed.String()
	case errors.As(err, &timeout):
		return ResultTimedOut.String()
	default:
		return "error"
	}
}
