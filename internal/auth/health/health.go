// Package health runs dependency probes concurrently and folds them into a
// single verdict. A probe that panics or overruns its timeout is reported
// unhealthy; it never takes the endpoint down with it.
package health

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusWarning   Status = "warning"
	StatusUnhealthy Status = "unhealthy"
)

const (
	DefaultProbeTimeout = 2 * time.Second
	DefaultBudget       = 5 * time.Second
)

var ErrTimeout = errors.New("health: probe timed out")

// Result is the outcome of one probe.
type Result struct {
	Status   Status
	Duration time.Duration
	Details  map[string]any
	Err      error
}

func healthy(details map[string]any) Result {
	return Result{Status: StatusHealthy, Details: details}
}

func unhealthy(err error) Result {
	return Result{Status: StatusUnhealthy, Err: err}
}

// Probe checks one dependency. Check must honour ctx cancellation.
type Probe interface {
	Name() string
	Check(ctx context.Context) Result
}

// ProbeFunc adapts a function to Probe.
type ProbeFunc struct {
	ProbeName string
	Fn        func(ctx context.Context) Result
}

func (p ProbeFunc) Name() string                     { return p.ProbeName }
func (p ProbeFunc) Check(ctx context.Context) Result { return p.Fn(ctx) }

// Report is the folded outcome of every probe.
type Report struct {
	Status    Status
	Timestamp time.Time
	Checks    map[string]Result
}

// Healthy reports whether the fold allows serving traffic. Warnings are
// informational.
func (r Report) Healthy() bool { return r.Status == StatusHealthy }

// Aggregator runs a fixed set of probes.
type Aggregator struct {
	probes       []Probe
	probeTimeout time.Duration
	budget       time.Duration
	now          func() time.Time
}

// NewAggregator returns an aggregator over probes. Non-positive timeouts
// fall back to the defaults. The budget bounds the whole run.
func NewAggregator(probeTimeout, budget time.Duration, probes ...Probe) *Aggregator {
	if probeTimeout <= 0 {
		probeTimeout = DefaultProbeTimeout
	}
	if budget <= 0 {
		budget = DefaultBudget
	}
	return &Aggregator{
		probes:       probes,
		probeTimeout: probeTimeout,
		budget:       budget,
		now:          time.Now,
	}
}

// Check runs every probe concurrently and folds the results: any
// unhealthy probe makes the report unhealthy.
func (a *Aggregator) Check(ctx context.Context) Report {
	ctx, cancel := context.WithTimeout(ctx, a.budget)
	defer cancel()

	results := make([]Result, len(a.probes))
	var wg sync.WaitGroup
	for i, p := range a.probes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = a.run(ctx, p)
		}()
	}
	wg.Wait()

	report := Report{
		Status:    StatusHealthy,
		Timestamp: a.now().UTC(),
		Checks:    make(map[string]Result, len(a.probes)),
	}
	for i, p := range a.probes {
		report.Checks[p.Name()] = results[i]
		if results[i].Status == StatusUnhealthy {
			report.Status = StatusUnhealthy
		}
	}
	return report
}

// run executes p in its own goroutine so a probe that ignores ctx still
// cannot hold up the report.
func (a *Aggregator) run(ctx context.Context, p Probe) Result {
	ctx, cancel := context.WithTimeout(ctx, a.probeTimeout)
	defer cancel()

	start := a.now()
	done := make(chan Result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- unhealthy(fmt.Errorf("probe %s panicked: %v", p.Name(), r))
			}
		}()
		done <- p.Check(ctx)
	}()

	var res Result
	select {
	case res = <-done:
	case <-ctx.Done():
		res = unhealthy(ErrTimeout)
	}
	res.Duration = a.now().Sub(start)
	if res.Status == "" {
		res.Status = StatusHealthy
	}
	return res
}
