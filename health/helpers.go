package health

import (
	"slices"
	"time"
)

func newStatus(component, state, message string, healthy bool) Status {
	return Status{
		Component: component,
		Healthy:   healthy,
		Status:    state,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewHealthy creates a healthy status stamped now.
func NewHealthy(component, message string) Status {
	return newStatus(component, "healthy", message, true)
}

// NewUnhealthy creates an unhealthy status stamped now.
func NewUnhealthy(component, message string) Status {
	return newStatus(component, "unhealthy", message, false)
}

// NewDegraded creates a degraded status stamped now. Degraded is the
// serving-stale condition: the component works but on fallback data or a
// suspended schedule.
func NewDegraded(component, message string) Status {
	return newStatus(component, "degraded", message, false)
}

// Aggregate folds sub-statuses into one. Any unhealthy part makes the
// aggregate unhealthy; otherwise any degraded part makes it degraded;
// otherwise it is healthy. An empty slice aggregates healthy, so a pipeline
// with nothing registered yet does not read as down.
func Aggregate(component string, subStatuses []Status) Status {
	if len(subStatuses) == 0 {
		return NewHealthy(component, "No components registered")
	}

	status := NewHealthy(component, "All components are healthy")
	switch {
	case slices.ContainsFunc(subStatuses, Status.IsUnhealthy):
		status = NewUnhealthy(component, "One or more components are unhealthy")
	case slices.ContainsFunc(subStatuses, Status.IsDegraded):
		status = NewDegraded(component, "One or more components are degraded")
	}

	status.SubStatuses = slices.Clone(subStatuses)
	return status
}
