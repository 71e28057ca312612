package collective

import (
	"bytes"
	"errors"
	"testing"

	"github.com/dd0wney/cluso-kmeans/pkg/kmeans"
	"github.com/vmihailenco/msgpack/v5"
)

func TestCodecRoundTrip(t *testing.T) {
	codec := NewCodec(DefaultCompressThreshold)

	stats, _ := kmeans.NewStats(2, 3)
	stats.Sums[4] = 7.5
	stats.Counts[1] = 3

	data, err := codec.Encode(MsgStats, "run-1", 4, 2, NewStatsBody(stats))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	msg, err := codec.Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if msg.Type != MsgStats || msg.RunID != "run-1" || msg.Round != 4 || msg.Rank != 2 {
		t.Errorf("envelope = %+v", msg)
	}
	if msg.Compressed {
		t.Error("small body should not be compressed")
	}

	var body StatsBody
	if err := msg.DecodeBody(&body); err != nil {
		t.Fatalf("DecodeBody failed: %v", err)
	}
	got, err := body.Stats(2, 3)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if got.Sums[4] != 7.5 || got.Counts[1] != 3 {
		t.Errorf("decoded stats = %+v", got)
	}
}

func TestCodecCompressesLargeBodies(t *testing.T) {
	codec := NewCodec(64)

	centroids := kmeans.NewCentroids(16, 8)
	data, err := codec.Encode(MsgCentroids, "run", 1, 0, NewCentroidsBody(centroids))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	msg, err := codec.Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !msg.Compressed {
		t.Fatal("body above threshold should be compressed")
	}

	var body CentroidsBody
	if err := msg.DecodeBody(&body); err != nil {
		t.Fatalf("DecodeBody failed: %v", err)
	}
	if len(body.Centroids) != 16 || len(body.Centroids[15].Features) != 8 {
		t.Errorf("decoded %d centroids", len(body.Centroids))
	}
}

func TestCodecZeroThresholdDisablesCompression(t *testing.T) {
	codec := NewCodec(0)
	data, err := codec.Encode(MsgCentroids, "run", 1, 0, NewCentroidsBody(kmeans.NewCentroids(64, 8)))
	if err != nil {
		t.Fatal(err)
	}
	msg, err := codec.Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Compressed {
		t.Error("threshold 0 should disable compression")
	}
}

func TestCodecRejectsOtherVersions(t *testing.T) {
	data, err := msgpack.Marshal(&Message{Version: ProtocolVersion + 1, Type: MsgJoin})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewCodec(0).Decode(data); !errors.Is(err, ErrVersionMismatch) {
		t.Errorf("Decode error = %v, want ErrVersionMismatch", err)
	}
}

func TestCodecRejectsGarbage(t *testing.T) {
	if _, err := NewCodec(0).Decode([]byte{0xc1, 0x00}); !errors.Is(err, ErrProtocol) {
		t.Errorf("Decode error = %v, want ErrProtocol", err)
	}
}

func TestWirePointIsPositional(t *testing.T) {
	data, err := msgpack.Marshal(WirePoint{Label: 3, Features: []float64{1.5, 2.5}})
	if err != nil {
		t.Fatal(err)
	}

	var raw []msgpack.RawMessage
	if err := msgpack.Unmarshal(data, &raw); err != nil {
		t.Fatalf("point is not encoded as an array: %v", err)
	}
	if len(raw) != 2 {
		t.Fatalf("array has %d elements, want [label, features]", len(raw))
	}

	var label int
	if err := msgpack.Unmarshal(raw[0], &label); err != nil || label != 3 {
		t.Errorf("first element = %d (%v), want label 3", label, err)
	}
	var features []float64
	if err := msgpack.Unmarshal(raw[1], &features); err != nil || len(features) != 2 || features[1] != 2.5 {
		t.Errorf("second element = %v (%v), want features", features, err)
	}
}

func TestCentroidsBodyCopyInto(t *testing.T) {
	src := kmeans.NewCentroids(2, 2)
	src[1].Features[0] = 4

	dst := kmeans.NewCentroids(2, 2)
	if err := NewCentroidsBody(src).CopyInto(dst); err != nil {
		t.Fatalf("CopyInto failed: %v", err)
	}
	if dst[1].Features[0] != 4 {
		t.Errorf("dst = %v", dst)
	}

	if err := NewCentroidsBody(src).CopyInto(kmeans.NewCentroids(3, 2)); !errors.Is(err, kmeans.ErrDimensionMismatch) {
		t.Errorf("K mismatch error = %v", err)
	}
	if err := NewCentroidsBody(src).CopyInto(kmeans.NewCentroids(2, 3)); !errors.Is(err, kmeans.ErrDimensionMismatch) {
		t.Errorf("F mismatch error = %v", err)
	}

	swapped := NewCentroidsBody(src)
	swapped.Centroids[0].Label = 1
	if err := swapped.CopyInto(dst); !errors.Is(err, ErrProtocol) {
		t.Errorf("mislabelled centroid error = %v", err)
	}
}

func TestStatsBodyShape(t *testing.T) {
	body := StatsBody{K: 2, F: 2, Counts: []int64{1, 1}, Sums: []float64{1, 2, 3}}
	if _, err := body.Stats(2, 2); !errors.Is(err, kmeans.ErrDimensionMismatch) {
		t.Errorf("short sums error = %v", err)
	}
	body.Sums = append(body.Sums, 4)
	if _, err := body.Stats(2, 3); !errors.Is(err, kmeans.ErrDimensionMismatch) {
		t.Errorf("F mismatch error = %v", err)
	}
	if _, err := body.Stats(2, 2); err != nil {
		t.Errorf("valid body rejected: %v", err)
	}
}

func TestRunParamsDiff(t *testing.T) {
	base := RunParams{K: 3, Features: 2, Points: 10, Iterations: 5, Mode: "float"}

	tests := []struct {
		name   string
		mutate func(*RunParams)
		want   string
	}{
		{"equal", func(*RunParams) {}, ""},
		{"clusters", func(p *RunParams) { p.K = 4 }, "clusters"},
		{"features", func(p *RunParams) { p.Features = 3 }, "features"},
		{"points", func(p *RunParams) { p.Points = 11 }, "points"},
		{"iterations", func(p *RunParams) { p.Iterations = 6 }, "iterations"},
		{"mode", func(p *RunParams) { p.Mode = "truncate" }, "accumulation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base
			tt.mutate(&p)
			diff := p.Diff(base)
			if tt.want == "" && diff != "" {
				t.Errorf("Diff = %q, want none", diff)
			}
			if tt.want != "" && !bytes.Contains([]byte(diff), []byte(tt.want)) {
				t.Errorf("Diff = %q, want mention of %s", diff, tt.want)
			}
		})
	}
}

func TestMessageAsError(t *testing.T) {
	codec := NewCodec(0)
	data, err := codec.Encode(MsgError, "run", 0, 0, ErrorBody{Code: "reduce", Message: "duplicate contribution"})
	if err != nil {
		t.Fatal(err)
	}
	msg, err := codec.Decode(data)
	if err != nil {
		t.Fatal(err)
	}

	var remote *RemoteError
	if !errors.As(msg.AsError(), &remote) || remote.Code != "reduce" {
		t.Errorf("AsError = %v", msg.AsError())
	}

	ack, _ := codec.Encode(MsgLabelsAck, "run", 0, 0, nil)
	msg, _ = codec.Decode(ack)
	if msg.AsError() != nil {
		t.Errorf("non-error message converted to %v", msg.AsError())
	}
}

func TestMessageTypeString(t *testing.T) {
	for mt := MsgJoin; mt <= MsgError; mt++ {
		if mt.String() == "" || mt.String()[0] == 'M' {
			t.Errorf("MessageType(%d) has no name", mt)
		}
	}
}
