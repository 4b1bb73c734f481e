// Package health runs the matcher's readiness checks (corpus, model
// breakers, Redis, PostgreSQL) in parallel and serves liveness and
// readiness probes.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

type Status string

const (
	StatusUp       Status = "up"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

func (s Status) rank() int {
	switch s {
	case StatusUp:
		return 0
	case StatusDegraded:
		return 1
	}
	return 2
}

// Check probes one dependency.
type Check func(ctx context.Context) ComponentHealth

// ComponentHealth is one check's outcome. Name, Latency and Optional are
// filled in by the Checker.
type ComponentHealth struct {
	Name     string `json:"name"`
	Status   Status `json:"status"`
	Message  string `json:"message,omitempty"`
	Latency  string `json:"latency,omitempty"`
	Optional bool   `json:"optional,omitempty"`
}

// Report lists components in registration order.
type Report struct {
	Status     Status            `json:"status"`
	Components []ComponentHealth `json:"components"`
	CheckedAt  time.Time         `json:"checked_at"`
}

// Component looks up a component by name.
func (r Report) Component(name string) (ComponentHealth, bool) {
	for _, c := range r.Components {
		if c.Name == name {
			return c, true
		}
	}
	return ComponentHealth{}, false
}

type probe struct {
	name     string
	check    Check
	optional bool
}

// Option configures a Checker.
type Option func(*Checker)

// WithCheckTimeout bounds every individual check. Default 2s.
func WithCheckTimeout(d time.Duration) Option { return func(c *Checker) { c.timeout = d } }

// WithCacheTTL reuses a report for d so frequent probes do not fan out to
// every dependency. Zero disables caching.
func WithCacheTTL(d time.Duration) Option { return func(c *Checker) { c.ttl = d } }

// Checker holds the registered probes.
type Checker struct {
	timeout time.Duration
	ttl     time.Duration
	started time.Time
	logger  *slog.Logger

	mu     sync.Mutex
	probes []probe
	last   *Report
}

func NewChecker(opts ...Option) *Checker {
	c := &Checker{
		timeout: 2 * time.Second,
		started: time.Now(),
		logger:  slog.Default().With("component", "health"),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Register adds a required check: when it is down the service is not ready.
// Registering a name again replaces the earlier check.
func (c *Checker) Register(name string, check Check) { c.add(probe{name, check, false}) }

// RegisterOptional adds a check whose failure only degrades the service.
func (c *Checker) RegisterOptional(name string, check Check) { c.add(probe{name, check, true}) }

func (c *Checker) add(p probe) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = nil
	for i := range c.probes {
		if c.probes[i].name == p.name {
			c.probes[i] = p
			return
		}
	}
	c.probes = append(c.probes, p)
}

// Ping adapts an error-returning probe into a Check.
func Ping(fn func(ctx context.Context) error) Check {
	return func(ctx context.Context) ComponentHealth {
		if err := fn(ctx); err != nil {
			return ComponentHealth{Status: StatusDown, Message: err.Error()}
		}
		return ComponentHealth{Status: StatusUp}
	}
}

// Run executes every check concurrently. The overall status is the worst
// component status, where a down optional component counts as degraded.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.Lock()
	if c.last != nil && time.Since(c.last.CheckedAt) < c.ttl {
		r := *c.last
		c.mu.Unlock()
		return r
	}
	probes := append([]probe(nil), c.probes...)
	c.mu.Unlock()

	report := Report{
		Status:     StatusUp,
		Components: make([]ComponentHealth, len(probes)),
		CheckedAt:  time.Now().UTC(),
	}
	var wg sync.WaitGroup
	for i, p := range probes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			report.Components[i] = c.runOne(ctx, p)
		}()
	}
	wg.Wait()

	for _, comp := range report.Components {
		effective := comp.Status
		if comp.Optional && effective == StatusDown {
			effective = StatusDegraded
		}
		if effective.rank() > report.Status.rank() {
			report.Status = effective
		}
		if comp.Status != StatusUp {
			c.logger.Warn("component unhealthy", "name", comp.Name, "status", comp.Status, "message", comp.Message)
		}
	}

	c.mu.Lock()
	c.last = &report
	c.mu.Unlock()
	return report
}

func (c *Checker) runOne(ctx context.Context, p probe) (result ComponentHealth) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			result = ComponentHealth{Status: StatusDown, Message: fmt.Sprintf("check panicked: %v", r)}
		}
		result.Name = p.name
		result.Optional = p.optional
		result.Latency = time.Since(start).Round(time.Microsecond).String()
	}()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return p.check(ctx)
}

// LiveHandler answers liveness probes; it never touches dependencies.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":         "alive",
			"uptime_seconds": int64(time.Since(c.started).Seconds()),
		})
	}
}

// ReadyHandler answers 200 while the service is up or degraded and 503
// when a required component is down.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := c.Run(r.Context())
		code := http.StatusOK
		if report.Status == StatusDown {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, report)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
