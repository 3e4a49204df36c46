package capsolver

import (
	"net/url"
	"regexp"
	"strings"
	"time"
)

// TaskType is the CapSolver task type literal.
type TaskType string

const (
	// TaskTypeCloudflare solves the 5-second interstitial and returns cf_clearance.
	// The solve is routed through a caller-supplied static or sticky proxy.
	TaskTypeCloudflare TaskType = "AntiCloudflareTask"

	// TaskTypeTurnstile solves a Turnstile widget without a proxy.
	TaskTypeTurnstile TaskType = "AntiTurnstileTaskProxyLess"
)

// Placeholder values shipped in example configurations.
const (
	PlaceholderAPIKey     = "YOUR_API_KEY_HERE"
	PlaceholderProxy      = "ip:port:user:pass"
	PlaceholderWebsiteKey = "0x4XXXXXXXXXXXXXXXXX"
)

var websiteKeyPlaceholder = regexp.MustCompile(`^0x4X+$`)

// PollPolicy controls the getTaskResult cadence.
type PollPolicy struct {
	Interval    time.Duration
	MaxAttempts int
}

// Budget is the longest a poll loop can run, ignoring request latency.
func (p PollPolicy) Budget() time.Duration {
	return p.Interval * time.Duration(p.MaxAttempts)
}

func (p PollPolicy) validate() error {
	if p.Interval < 0 {
		return NewConfigurationError("interval", "poll interval must not be negative")
	}
	if p.MaxAttempts <= 0 {
		return NewConfigurationError("maxAttempts", "max attempts must be positive")
	}
	return nil
}

// DefaultPolicy returns the polling cadence used for the task type.
func (t TaskType) DefaultPolicy() PollPolicy {
	if t == TaskTypeCloudflare {
		return PollPolicy{Interval: 2 * time.Second, MaxAttempts: 60}
	}
	return PollPolicy{Interval: time.Second, MaxAttempts: 40}
}

// Metadata carries the Turnstile widget's data-action and data-cdata values.
type Metadata struct {
	Action string `json:"action,omitempty"`
	CData  string `json:"cdata,omitempty"`
}

// Task is the task description submitted to createTask.
type Task struct {
	Type       TaskType  `json:"type"`
	WebsiteURL string    `json:"websiteURL"`
	WebsiteKey string    `json:"websiteKey,omitempty"`
	Proxy      string    `json:"proxy,omitempty"`
	UserAgent  string    `json:"userAgent,omitempty"`
	HTML       string    `json:"html,omitempty"`
	Metadata   *Metadata `json:"metadata,omitempty"`
}

// TaskOption sets an optional field on a Task under construction.
type TaskOption func(*Task)

// WithTaskUserAgent sets the User-Agent the solver should present.
// Only Chrome user agents are accepted by AntiCloudflareTask.
func WithTaskUserAgent(userAgent string) TaskOption {
	return func(t *Task) {
		t.UserAgent = strings.TrimSpace(userAgent)
	}
}

// WithTaskHTML attaches the challenge page HTML, scraped through the same proxy.
func WithTaskHTML(html string) TaskOption {
	return func(t *Task) {
		t.HTML = html
	}
}

// WithTaskMetadata attaches Turnstile metadata. Nothing is attached when both
// values are empty.
func WithTaskMetadata(action, cdata string) TaskOption {
	return func(t *Task) {
		action, cdata = strings.TrimSpace(action), strings.TrimSpace(cdata)
		if action == "" && cdata == "" {
			t.Metadata = nil
			return
		}
		t.Metadata = &Metadata{Action: action, CData: cdata}
	}
}

// NewCloudflareTask builds an AntiCloudflareTask for websiteURL solved through proxy.
func NewCloudflareTask(websiteURL, proxy string, opts ...TaskOption) Task {
	t := Task{
		Type:       TaskTypeCloudflare,
		WebsiteURL: strings.TrimSpace(websiteURL),
		Proxy:      normalizeProxyString(proxy),
	}
	for _, opt := range opts {
		opt(&t)
	}
	return t
}

// NewTurnstileTask builds an AntiTurnstileTaskProxyLess for the widget identified by websiteKey.
func NewTurnstileTask(websiteURL, websiteKey string, opts ...TaskOption) Task {
	t := Task{
		Type:       TaskTypeTurnstile,
		WebsiteURL: strings.TrimSpace(websiteURL),
		WebsiteKey: strings.TrimSpace(websiteKey),
	}
	for _, opt := range opts {
		opt(&t)
	}
	return t
}

// Validate checks the fields required by the task type.
func (t Task) Validate() error {
	if t.WebsiteURL == "" {
		return NewConfigurationError("websiteURL", "target website URL is not set")
	}
	u, err := url.Parse(t.WebsiteURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return NewConfigurationError("websiteURL", "target website URL must be an absolute http(s) URL")
	}

	switch t.Type {
	case TaskTypeCloudflare:
		if t.Proxy == "" || t.Proxy == PlaceholderProxy {
			return NewConfigurationError("proxy", "proxy is mandatory for AntiCloudflareTask, use a static or sticky proxy")
		}
		if t.WebsiteKey != "" {
			return NewConfigurationError("websiteKey", "websiteKey is not used by AntiCloudflareTask")
		}
		if t.Metadata != nil {
			return NewConfigurationError("metadata", "metadata is only supported by Turnstile tasks")
		}
	case TaskTypeTurnstile:
		if t.WebsiteKey == "" || websiteKeyPlaceholder.MatchString(t.WebsiteKey) {
			return NewConfigurationError("websiteKey", "Turnstile website key (sitekey) is not set")
		}
		if t.Proxy != "" {
			return NewConfigurationError("proxy", "AntiTurnstileTaskProxyLess does not take a proxy")
		}
	default:
		return NewConfigurationError("type", "unsupported task type "+string(t.Type))
	}
	return nil
}

func validateAPIKey(apiKey string) error {
	if apiKey == "" || apiKey == PlaceholderAPIKey {
		return NewConfigurationError("clientKey", "CapSolver API key is not set")
	}
	return nil
}

// normalizeProxyString trims whitespace and replaces full-width colons.
func normalizeProxyString(proxy string) string {
	proxy = strings.TrimSpace(proxy)
	proxy = strings.ReplaceAll(proxy, "：", ":")
	return proxy
}
