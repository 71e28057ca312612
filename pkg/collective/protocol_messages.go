package collective

import (
	"fmt"

	"github.com/dd0wney/cluso-kmeans/pkg/kmeans"
)

// RunParams are the run parameters every worker must agree on
type RunParams struct {
	K          int    `msgpack:"k"`
	Features   int    `msgpack:"f"`
	Points     int    `msgpack:"n"`
	Iterations int    `msgpack:"iterations"`
	Mode       string `msgpack:"mode"`
}

// Diff describes the first field in which p differs from want
func (p RunParams) Diff(want RunParams) string {
	switch {
	case p.K != want.K:
		return fmt.Sprintf("clusters %d, coordinator has %d", p.K, want.K)
	case p.Features != want.Features:
		return fmt.Sprintf("features %d, coordinator has %d", p.Features, want.Features)
	case p.Points != want.Points:
		return fmt.Sprintf("points %d, coordinator has %d", p.Points, want.Points)
	case p.Iterations != want.Iterations:
		return fmt.Sprintf("iterations %d, coordinator has %d", p.Iterations, want.Iterations)
	case p.Mode != want.Mode:
		return fmt.Sprintf("accumulation %q, coordinator has %q", p.Mode, want.Mode)
	default:
		return ""
	}
}

// JoinRequest is sent by a worker when it connects
type JoinRequest struct {
	Rank   int       `msgpack:"rank"`
	Size   int       `msgpack:"size"`
	Params RunParams `msgpack:"params"`
	Token  string    `msgpack:"token,omitempty"`
}

// JoinAck answers a JoinRequest
type JoinAck struct {
	Accepted bool   `msgpack:"accepted"`
	Reason   string `msgpack:"reason,omitempty"`
	RunID    string `msgpack:"run_id"`
}

// StatsBody is a worker's reduction contribution: K counts and K*F sums
type StatsBody struct {
	K      int       `msgpack:"k"`
	F      int       `msgpack:"f"`
	Counts []int64   `msgpack:"counts"`
	Sums   []float64 `msgpack:"sums"`
}

// NewStatsBody copies stats into a message body
func NewStatsBody(s *kmeans.Stats) StatsBody {
	return StatsBody{K: s.K, F: s.F, Counts: s.Counts, Sums: s.Sums}
}

// Stats converts the body back, validating its shape against k and f
func (b StatsBody) Stats(k, f int) (*kmeans.Stats, error) {
	s := &kmeans.Stats{K: b.K, F: b.F, Counts: b.Counts, Sums: b.Sums}
	if err := s.Validate(k, f); err != nil {
		return nil, err
	}
	return s, nil
}

// WirePoint is a centroid on the wire, encoded positionally as [label, features]
type WirePoint struct {
	_msgpack struct{} `msgpack:",as_array"`

	Label    int
	Features []float64
}

// CentroidsBody is the broadcast payload: K centroids of F features
type CentroidsBody struct {
	Centroids []WirePoint `msgpack:"centroids"`
}

// NewCentroidsBody copies centroids into a message body
func NewCentroidsBody(centroids []kmeans.Point) CentroidsBody {
	body := CentroidsBody{Centroids: make([]WirePoint, len(centroids))}
	for j, c := range centroids {
		body.Centroids[j] = WirePoint{Label: j, Features: c.Features}
	}
	return body
}

// CopyInto overwrites dst's features with the broadcast centroids
func (b CentroidsBody) CopyInto(dst []kmeans.Point) error {
	if len(b.Centroids) != len(dst) {
		return &kmeans.DimensionMismatchError{What: "broadcast centroids", Expected: len(dst), Actual: len(b.Centroids)}
	}
	for j, wp := range b.Centroids {
		if wp.Label != j {
			return fmt.Errorf("%w: centroid %d labelled %d", ErrProtocol, j, wp.Label)
		}
		if len(wp.Features) != len(dst[j].Features) {
			return &kmeans.DimensionMismatchError{
				What:     fmt.Sprintf("broadcast centroid %d features", j),
				Expected: len(dst[j].Features),
				Actual:   len(wp.Features),
			}
		}
		copy(dst[j].Features, wp.Features)
		dst[j].Cluster = j
	}
	return nil
}

// LabelsBody carries one worker's final labels, in partition order
type LabelsBody struct {
	Offset int   `msgpack:"offset"`
	Labels []int `msgpack:"labels"`
}

// ErrorBody is sent instead of the expected reply when a run is aborted
type ErrorBody struct {
	Code    string `msgpack:"code"`
	Message string `msgpack:"message"`
}
