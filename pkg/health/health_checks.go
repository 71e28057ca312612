package health

import (
	"fmt"
	"time"

	"github.com/dd0wney/cluso-kmeans/pkg/kmeans"
)

// SimpleCheck creates a simple health check that always returns healthy
func SimpleCheck(name string) Check {
	return Check{
		Name:        name,
		Status:      StatusHealthy,
		LastChecked: time.Now(),
	}
}

// Alive is a liveness check that passes while the process can answer
func Alive() CheckFunc {
	return func() Check { return SimpleCheck("alive") }
}

// EngineState is implemented by kmeans.Engine
type EngineState interface {
	State() kmeans.State
	Round() int
}

// EngineCheck reports the clustering loop's progress. A failed run is
// unhealthy; a finished or running one is healthy.
func EngineCheck(engine func() EngineState, iterations int) CheckFunc {
	return func() Check {
		check := Check{
			Name:    "engine",
			Status:  StatusHealthy,
			Details: make(map[string]any),
		}

		e := engine()
		if e == nil {
			check.Message = "Not started"
			return check
		}

		state := e.State()
		check.Details["state"] = state.String()
		check.Details["round"] = e.Round()
		check.Details["iterations"] = iterations

		switch state {
		case kmeans.StateFailed:
			check.Status = StatusUnhealthy
			check.Message = "Clustering failed"
		case kmeans.StateDone:
			check.Message = "Clustering finished"
		default:
			check.Message = fmt.Sprintf("Round %d of %d", e.Round(), iterations)
		}
		return check
	}
}

// MembershipCheck reports whether every worker has joined the run
func MembershipCheck(getMembership func() (joined bool, workers int)) CheckFunc {
	return func() Check {
		check := Check{
			Name:    "membership",
			Details: make(map[string]any),
		}

		joined, workers := getMembership()
		check.Details["joined"] = joined
		check.Details["workers"] = workers

		if workers <= 1 {
			check.Status = StatusHealthy
			check.Message = "Single worker"
		} else if !joined {
			check.Status = StatusUnhealthy
			check.Message = "Waiting for workers"
		} else {
			check.Status = StatusHealthy
			check.Message = "All workers joined"
		}
		return check
	}
}

// DatabaseCheck creates a health check for the timing database
func DatabaseCheck(pingFunc func() error) CheckFunc {
	return func() Check {
		check := Check{
			Name: "database",
		}

		if err := pingFunc(); err != nil {
			check.Status = StatusDegraded
			check.Message = err.Error()
		} else {
			check.Status = StatusHealthy
			check.Message = "Connected"
		}

		return check
	}
}
