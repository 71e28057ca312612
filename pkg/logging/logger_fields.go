package logging

import (
	"time"
)

// Common field constructors
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

func Float64(key string, value float64) Field {
	return Field{Key: key, Value: value}
}

func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

func Any(key string, value any) Field {
	return Field{Key: key, Value: value}
}

func Component(name string) Field {
	return String("component", name)
}

func Operation(op string) Field {
	return String("operation", op)
}

func Latency(d time.Duration) Field {
	return Duration("latency", d)
}

func Count(n int) Field {
	return Int("count", n)
}

func Path(p string) Field {
	return String("path", p)
}

// Clustering fields

func Rank(r int) Field {
	return Int("rank", r)
}

func Workers(w int) Field {
	return Int("workers", w)
}

func Round(n int) Field {
	return Int("round", n)
}

func Cluster(j int) Field {
	return Int("cluster", j)
}

func Clusters(k int) Field {
	return Int("clusters", k)
}

func Points(n int) Field {
	return Int("points", n)
}

func Role(role string) Field {
	return String("role", role)
}

func RunID(id string) Field {
	return String("run_id", id)
}

func Bytes(n int) Field {
	return Int("bytes", n)
}
