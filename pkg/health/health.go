package health

import (
	"time"
)

// NewHealthChecker creates a checker with no registered checks.
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		checks: map[checkKind]map[string]CheckFunc{
			kindGeneral:   {},
			kindReadiness: {},
			kindLiveness:  {},
		},
		started: time.Now(),
	}
}

// RegisterCheck registers a check served on the overall health endpoint.
func (hc *HealthChecker) RegisterCheck(name string, check CheckFunc) {
	hc.register(kindGeneral, name, check)
}

// RegisterReadinessCheck registers a check that gates readiness.
func (hc *HealthChecker) RegisterReadinessCheck(name string, check CheckFunc) {
	hc.register(kindReadiness, name, check)
}

// RegisterLivenessCheck registers a check that gates liveness.
func (hc *HealthChecker) RegisterLivenessCheck(name string, check CheckFunc) {
	hc.register(kindLiveness, name, check)
}

func (hc *HealthChecker) register(kind checkKind, name string, check CheckFunc) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checks[kind][name] = check
}

// Check runs every general check.
func (hc *HealthChecker) Check() Response {
	return hc.run(kindGeneral)
}

// CheckReadiness runs the readiness checks.
func (hc *HealthChecker) CheckReadiness() Response {
	return hc.run(kindReadiness)
}

// CheckLiveness runs the liveness checks.
func (hc *HealthChecker) CheckLiveness() Response {
	return hc.run(kindLiveness)
}

func (hc *HealthChecker) run(kind checkKind) Response {
	hc.mu.RLock()
	checks := make(map[string]CheckFunc, len(hc.checks[kind]))
	for name, fn := range hc.checks[kind] {
		checks[name] = fn
	}
	hc.mu.RUnlock()

	response := Response{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Checks:    make(map[string]Check, len(checks)),
		Uptime:    time.Since(hc.started),
	}

	for name, fn := range checks {
		start := time.Now()
		check := fn()
		check.Duration = time.Since(start)
		check.LastChecked = start
		if check.Name == "" {
			check.Name = name
		}
		response.Checks[name] = check

		// Worst status wins.
		switch {
		case check.Status == StatusUnhealthy:
			response.Status = StatusUnhealthy
		case check.Status == StatusDegraded && response.Status != StatusUnhealthy:
			response.Status = StatusDegraded
		}
	}

	return response
}
