package dataset

import (
	"bytes"
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/dd0wney/cluso-kmeans/pkg/kmeans"
	"github.com/dd0wney/cluso-kmeans/pkg/partition"
)

const fourPoints = "4 2\n1 1\n1 2\n9 9\n9 8\n"

func TestRead(t *testing.T) {
	h, points, err := Read(strings.NewReader(fourPoints), 2)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if h.Points != 4 || h.Features != 2 {
		t.Errorf("header = %+v", h)
	}
	wantLabels := []int{0, 1, 0, 1}
	for i, p := range points {
		if p.Cluster != wantLabels[i] {
			t.Errorf("point %d label = %d, want %d", i, p.Cluster, wantLabels[i])
		}
	}
	if points[3].Features[0] != 9 || points[3].Features[1] != 8 {
		t.Errorf("point 3 features = %v", points[3].Features)
	}
}

func TestReadAcceptsAnyWhitespace(t *testing.T) {
	input := "3\t2\n\n0.5\t1e3\n  -2   3.25 \r\n7 8\n\n"
	_, points, err := Read(strings.NewReader(input), 3)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(points) != 3 || points[0].Features[1] != 1000 || points[1].Features[0] != -2 {
		t.Errorf("points = %v", points)
	}
}

func TestReadRejectsMalformedInput(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantLine int
	}{
		{"empty", "", 0},
		{"header one field", "4\n1 1\n", 1},
		{"header not numeric", "four 2\n", 1},
		{"negative points", "-1 2\n", 1},
		{"zero features", "1 0\n5\n", 1},
		{"too many features", "1 65\n", 1},
		{"too few fields", "2 2\n1 1\n3\n", 3},
		{"too many fields", "2 2\n1 1\n3 4 5\n", 3},
		{"not numeric", "2 2\n1 x\n3 4\n", 2},
		{"short file", "3 2\n1 1\n2 2\n", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Read(strings.NewReader(tt.input), 2)
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("Read error = %v, want *ParseError", err)
			}
			if pe.Line != tt.wantLine {
				t.Errorf("Line = %d, want %d (%v)", pe.Line, tt.wantLine, err)
			}
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("error %v does not match ErrMalformed", err)
			}
		})
	}
}

func TestReadInvalidK(t *testing.T) {
	if _, _, err := Read(strings.NewReader(fourPoints), 0); !errors.Is(err, kmeans.ErrInvalidK) {
		t.Errorf("Read k=0 error = %v", err)
	}
}

func TestReadResourceExhausted(t *testing.T) {
	if _, _, err := Read(strings.NewReader("999999999999 2\n"), 2); !errors.Is(err, ErrResourceExhausted) {
		t.Errorf("Read error = %v, want ErrResourceExhausted", err)
	}
}

func TestReadHeader(t *testing.T) {
	h, err := ReadHeader(strings.NewReader("\n50000\t8\nnot parsed"))
	if err != nil {
		t.Fatalf("ReadHeader failed: %v", err)
	}
	if h != (Header{Points: 50000, Features: 8}) {
		t.Errorf("ReadHeader = %+v", h)
	}
}

func TestReadPartition(t *testing.T) {
	input := "5 1\n0\n1\n2\n3\n4\n"

	tests := []struct {
		rank       int
		wantValues []float64
		wantLabels []int
	}{
		{0, []float64{0, 1, 2}, []int{0, 1, 0}},
		{1, []float64{3, 4}, []int{1, 0}},
	}

	for _, tt := range tests {
		shard, err := ReadPartition(strings.NewReader(input), 2, 2, tt.rank)
		if err != nil {
			t.Fatalf("ReadPartition rank %d failed: %v", tt.rank, err)
		}
		if len(shard.Points) != len(tt.wantValues) {
			t.Fatalf("rank %d got %d points, want %d", tt.rank, len(shard.Points), len(tt.wantValues))
		}
		for i, p := range shard.Points {
			if p.Features[0] != tt.wantValues[i] || p.Cluster != tt.wantLabels[i] {
				t.Errorf("rank %d point %d = %+v", tt.rank, i, p)
			}
		}
		if shard.Layout.Validate(5) != nil || shard.Layout.Workers() != 2 {
			t.Errorf("rank %d layout = %+v", tt.rank, shard.Layout)
		}
	}
}

func TestReadPartitionOnlyParsesOwnLines(t *testing.T) {
	// Lines outside rank 1's range are never parsed
	input := "4 1\ngarbage\n2\n3\nmore garbage\n"
	shard, err := ReadPartition(strings.NewReader(input), 2, 3, 1)
	if err != nil {
		t.Fatalf("ReadPartition failed: %v", err)
	}
	if shard.Partition.Offset != 2 || len(shard.Points) != 1 || shard.Points[0].Features[0] != 3 {
		t.Errorf("shard = %+v", shard)
	}
}

func TestReadPartitionMatchesRead(t *testing.T) {
	var buf bytes.Buffer
	if err := Generate(&buf, 103, 3, rand.New(rand.NewSource(4))); err != nil {
		t.Fatal(err)
	}
	data := buf.Bytes()

	_, all, err := Read(bytes.NewReader(data), 4)
	if err != nil {
		t.Fatal(err)
	}

	for _, workers := range []int{1, 2, 7, 150} {
		var joined []kmeans.Point
		for r := 0; r < workers; r++ {
			shard, err := ReadPartition(bytes.NewReader(data), 4, workers, r)
			if err != nil {
				t.Fatalf("W=%d rank %d: %v", workers, r, err)
			}
			joined = append(joined, shard.Points...)
		}
		if len(joined) != len(all) {
			t.Fatalf("W=%d joined %d points, want %d", workers, len(joined), len(all))
		}
		for i := range all {
			if joined[i].Cluster != all[i].Cluster || joined[i].Features[2] != all[i].Features[2] {
				t.Fatalf("W=%d point %d differs: %+v vs %+v", workers, i, joined[i], all[i])
			}
		}
	}
}

func TestReadPartitionErrors(t *testing.T) {
	if _, err := ReadPartition(strings.NewReader(fourPoints), 2, 2, 2); !errors.Is(err, partition.ErrRankOutOfRange) {
		t.Errorf("rank 2 of 2 error = %v", err)
	}
	if _, err := ReadPartition(strings.NewReader(fourPoints), 2, 0, 0); !errors.Is(err, partition.ErrInvalidWorkerCount) {
		t.Errorf("zero workers error = %v", err)
	}
	if _, err := ReadPartition(strings.NewReader("4 2\n1 1\n"), 2, 2, 1); !errors.Is(err, ErrMalformed) {
		t.Errorf("short file error = %v", err)
	}
}

func TestGenerate(t *testing.T) {
	var buf bytes.Buffer
	if err := Generate(&buf, 20, 4, rand.New(rand.NewSource(1))); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "20\t4\n") {
		t.Errorf("header line = %q", strings.SplitN(buf.String(), "\n", 2)[0])
	}

	_, points, err := Read(&buf, 3)
	if err != nil {
		t.Fatalf("generated dataset does not parse: %v", err)
	}
	for i, p := range points {
		for _, v := range p.Features {
			if v < 0 || v >= MaxGeneratedValue {
				t.Errorf("point %d feature %v out of range", i, v)
			}
		}
	}

	if err := Generate(&buf, 1, 0, rand.New(rand.NewSource(1))); err == nil {
		t.Error("expected error for zero features")
	}
}

func TestResultsRoundTrip(t *testing.T) {
	labels := []int{0, 1, 1, 0, 2}

	var buf bytes.Buffer
	if err := WriteResults(&buf, labels); err != nil {
		t.Fatalf("WriteResults failed: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "Point 0 is in Cluster 0\nPoint 1 is in Cluster 1\n") {
		t.Errorf("results = %q", buf.String())
	}

	got, err := ReadResults(&buf)
	if err != nil {
		t.Fatalf("ReadResults failed: %v", err)
	}
	if len(got) != len(labels) {
		t.Fatalf("got %d labels", len(got))
	}
	for i := range labels {
		if got[i] != labels[i] {
			t.Errorf("label %d = %d, want %d", i, got[i], labels[i])
		}
	}
}

func TestReadResultsRejectsBadLines(t *testing.T) {
	tests := []string{
		"Point 0 is in 1\n",
		"Point 1 is in Cluster 0\n",
		"Point 0 is in Cluster x\n",
		"Pt 0 is in Cluster 0\n",
	}
	for _, input := range tests {
		if _, err := ReadResults(strings.NewReader(input)); !errors.Is(err, ErrMalformed) {
			t.Errorf("ReadResults(%q) error = %v", input, err)
		}
	}
}

func TestCompare(t *testing.T) {
	c, err := Compare([]int{0, 0, 1, 1}, []int{1, 1, 0, 0})
	if err != nil {
		t.Fatal(err)
	}
	if !c.Consistent() || c.Clusters != 2 || c.Matched != 2 {
		t.Errorf("relabelled comparison = %+v", c)
	}
	if c.Identical() || c.Agreement != 0 {
		t.Errorf("relabelled comparison should not be identical: %+v", c)
	}

	c, _ = Compare([]int{0, 1, 2}, []int{0, 1, 2})
	if !c.Identical() || !c.Consistent() {
		t.Errorf("equal comparison = %+v", c)
	}

	if _, err := Compare([]int{0}, []int{0, 1}); err == nil {
		t.Error("expected error for different lengths")
	}
}
