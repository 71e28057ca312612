package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dd0wney/cluso-kmeans/pkg/timing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const serialResults = `Point 0 is in Cluster 0
Point 1 is in Cluster 0
Point 2 is in Cluster 1
Point 3 is in Cluster 1
`

func TestCheckConfirmed(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "serial_results.txt", serialResults)
	// Same grouping under swapped cluster ids
	b := writeFile(t, dir, "parallel_results.txt", strings.NewReplacer("Cluster 0", "Cluster 1", "Cluster 1", "Cluster 0").Replace(serialResults))
	timeLog := writeFile(t, dir, "time.txt", "Serial time:\t4.000000\nParallel time:\t2.000000\nSerial time:\t4.000000\nParallel time:\t2.000000\n")
	report := filepath.Join(dir, "performance.txt")

	var out bytes.Buffer
	args := []string{"-time-log", timeLog, "-workers", "2", "-single-worker", "4s", "-report", report, a, b}
	if err := run(context.Background(), args, &out); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !strings.Contains(out.String(), "Check confirmed") {
		t.Errorf("expected confirmation, got:\n%s", out.String())
	}
	if !strings.Contains(out.String(), timing.PerformanceHeader) {
		t.Errorf("expected performance header, got:\n%s", out.String())
	}

	// A second run appends a row without repeating the header
	if err := run(context.Background(), args, &bytes.Buffer{}); err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	data, err := os.ReadFile(report)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and two rows, got %d lines:\n%s", len(lines), data)
	}
	if lines[0] != timing.PerformanceHeader {
		t.Errorf("unexpected header %q", lines[0])
	}
	if lines[1] != "2\t2\t2\t4\t2" {
		t.Errorf("unexpected row %q", lines[1])
	}
}

func TestCheckError(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", serialResults)
	b := writeFile(t, dir, "b.txt", "Point 0 is in Cluster 0\nPoint 1 is in Cluster 0\n")

	var out bytes.Buffer
	if err := run(context.Background(), []string{a, b}, &out); err == nil {
		t.Error("expected error for results of different lengths")
	}

	// Only two of the three expected clusters are populated
	c := writeFile(t, dir, "c.txt", serialResults)
	out.Reset()
	err := run(context.Background(), []string{"-clusters", "3", a, c}, &out)
	if !errors.Is(err, errCheckFailed) {
		t.Errorf("expected errCheckFailed, got %v", err)
	}
	if !strings.Contains(out.String(), "Check error") {
		t.Errorf("expected check error, got:\n%s", out.String())
	}
	if err := run(context.Background(), []string{"-clusters", "2", a, c}, &bytes.Buffer{}); err != nil {
		t.Errorf("two populated clusters should pass: %v", err)
	}
}

func TestCheckUsage(t *testing.T) {
	if err := run(context.Background(), []string{"only-one"}, &bytes.Buffer{}); err == nil {
		t.Error("expected usage error")
	}
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", serialResults)
	err := run(context.Background(), []string{a, filepath.Join(dir, "missing.txt")}, &bytes.Buffer{})
	if err == nil {
		t.Error("expected error for missing results file")
	}
	if errors.Is(err, errCheckFailed) {
		t.Error("a missing file is not a failed check")
	}
}
