package health

import (
	"regexp"
	"strings"
	"time"
)

// Status is the externally visible health of one component, or of the whole
// service when SubStatuses is populated.
type Status struct {
	Component   string    `json:"component"`
	Healthy     bool      `json:"healthy"` // true if status is "healthy"
	Status      string    `json:"status"`  // "healthy", "unhealthy", "degraded"
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
	Metrics     *Metrics  `json:"metrics,omitempty"`
}

// Metrics contains health-related metrics
type Metrics struct {
	Uptime           time.Duration `json:"uptime"`
	ErrorCount       int           `json:"error_count"`
	UpdatesDelivered int64         `json:"updates_delivered,omitempty"`
	LastActivity     time.Time     `json:"last_activity,omitempty"`
}

// CheckResult captures the outcome of a component's periodic health probe
type CheckResult struct {
	Healthy    bool          `json:"healthy"`
	LastError  string        `json:"last_error,omitempty"`
	LastCheck  time.Time     `json:"last_check"`
	ErrorCount int           `json:"error_count"`
	Uptime     time.Duration `json:"uptime"`
}

// Predicates over the Status string.
func (s Status) IsHealthy() bool { return s.Status == "healthy" }

func (s Status) IsDegraded() bool { return s.Status == "degraded" }

func (s Status) IsUnhealthy() bool { return s.Status == "unhealthy" }

// WithMetrics returns a copy of the status with metrics attached
func (s Status) WithMetrics(metrics *Metrics) Status {
	s.Metrics = metrics
	return s
}

// WithSubStatus returns a copy of the status with subStatus appended. The
// sub-status slice is reallocated so two statuses derived from the same
// parent never share storage.
func (s Status) WithSubStatus(subStatus Status) Status {
	grown := make([]Status, len(s.SubStatuses), len(s.SubStatuses)+1)
	copy(grown, s.SubStatuses)
	s.SubStatuses = append(grown, subStatus)
	return s
}

// sanitizeRules run in order against error text before it is exposed in a
// status message. Order matters: URL rules come before the path rules
// because every URL contains a path, and the path rules come before the IP
// rule because dotted quads inside a path belong to the [PATH] replacement.
var sanitizeRules = []struct {
	re          *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`https?://[^\s]+`), "[URL]"},
	{regexp.MustCompile(`nats://[^\s]+`), "[URL]"},
	{regexp.MustCompile(`wss?://[^\s]+`), "[URL]"},
	{regexp.MustCompile(`/[a-zA-Z0-9/_.-]+`), "[PATH]"},
	{regexp.MustCompile(`[A-Z]:\\[^:\s]+`), "[PATH]"},
	{regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`), "[IP]"},
	{regexp.MustCompile(`:\d{2,5}\b`), "[PORT]"},
}

// credentialRegex matches key:value or key=value forms whose key names a
// secret. It only runs when one of credentialKeywords appears in the text,
// which keeps the common no-secret case to a handful of Contains calls.
var (
	credentialRegex    = regexp.MustCompile(`(?i)(password|token|key|secret|credential)[^a-zA-Z]*[:=][^,\s}]+`)
	credentialKeywords = []string{"password", "token", "key", "secret", "credential"}
)

// sanitizeErrorMessage strips URLs, file paths, addresses and credentials
// from error text. FromCheckResult applies it to every message it builds, so
// upstream errors can be recorded verbatim and still surface safely on the
// health endpoints.
func sanitizeErrorMessage(err string) string {
	if err == "" {
		return ""
	}

	sanitized := err
	for _, rule := range sanitizeRules {
		sanitized = rule.re.ReplaceAllString(sanitized, rule.replacement)
	}

	lower := strings.ToLower(sanitized)
	for _, keyword := range credentialKeywords {
		if strings.Contains(lower, keyword) {
			sanitized = credentialRegex.ReplaceAllString(sanitized, "[REDACTED]")
			break
		}
	}

	return sanitized
}

// FromCheckResult converts a probe result to a health.Status
func FromCheckResult(name string, cr CheckResult) Status {
	status := "unhealthy"
	if cr.Healthy {
		status = "healthy"
	}

	message := "Component healthy"
	if cr.LastError != "" {
		message = sanitizeErrorMessage(cr.LastError)
	}

	return Status{
		Component: name,
		Healthy:   cr.Healthy,
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
		Metrics: &Metrics{
			Uptime:       cr.Uptime,
			ErrorCount:   cr.ErrorCount,
			LastActivity: cr.LastCheck,
		},
	}
}
