package dataset

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dd0wney/cluso-kmeans/pkg/kmeans"
	"github.com/dd0wney/cluso-kmeans/pkg/partition"
	"github.com/dd0wney/cluso-kmeans/pkg/validation"
)

// MaxValues bounds the number of feature values one reader will allocate
const MaxValues = 1 << 30

// maxLineBytes is the longest point line accepted
const maxLineBytes = 1 << 20

// Header is the first line of a dataset: point count and feature count
type Header struct {
	Points   int
	Features int
}

// lineReader yields non-blank lines with their 1-based line numbers
type lineReader struct {
	scanner *bufio.Scanner
	line    int
}

func newLineReader(r io.Reader) *lineReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &lineReader{scanner: scanner}
}

// next returns the fields of the next non-blank line. io.EOF means the input
// ended.
func (lr *lineReader) next() ([]string, error) {
	for lr.scanner.Scan() {
		lr.line++
		if fields := strings.Fields(lr.scanner.Text()); len(fields) > 0 {
			return fields, nil
		}
	}
	if err := lr.scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, &ParseError{Line: lr.line + 1, Msg: "line too long", Cause: err}
		}
		return nil, err
	}
	return nil, io.EOF
}

// skip advances past n non-blank lines without parsing them
func (lr *lineReader) skip(n int, total int) error {
	for i := 0; i < n; i++ {
		if _, err := lr.next(); err != nil {
			return lr.short(err, i, total)
		}
	}
	return nil
}

func (lr *lineReader) short(err error, got, want int) error {
	if errors.Is(err, io.EOF) {
		return parseErrorf(0, "input ended after %d of %d points", got, want)
	}
	return err
}

func (lr *lineReader) header() (Header, error) {
	fields, err := lr.next()
	if errors.Is(err, io.EOF) {
		return Header{}, parseErrorf(0, "empty input, expected header")
	}
	if err != nil {
		return Header{}, err
	}
	if len(fields) != 2 {
		return Header{}, parseErrorf(lr.line, "header has %d fields, expected <num_points> <num_features>", len(fields))
	}

	var h Header
	if h.Points, err = strconv.Atoi(fields[0]); err != nil || h.Points < 0 {
		return Header{}, &ParseError{Line: lr.line, Msg: fmt.Sprintf("invalid point count %q", fields[0]), Cause: err}
	}
	if h.Features, err = strconv.Atoi(fields[1]); err != nil {
		return Header{}, &ParseError{Line: lr.line, Msg: fmt.Sprintf("invalid feature count %q", fields[1]), Cause: err}
	}
	if err := validation.ValidateFeatureCount(h.Features); err != nil {
		return Header{}, &ParseError{Line: lr.line, Msg: "unsupported feature count", Cause: err}
	}
	if err := validation.ValidatePointCount(h.Points); err != nil {
		return Header{}, fmt.Errorf("%w: %v", ErrResourceExhausted, err)
	}
	return h, nil
}

// points parses count point lines. offset is the global index of the first one.
func (lr *lineReader) points(h Header, offset, count int) ([]kmeans.Point, error) {
	if count*h.Features > MaxValues {
		return nil, fmt.Errorf("%w: %d points of %d features", ErrResourceExhausted, count, h.Features)
	}

	values := make([]float64, count*h.Features)
	points := make([]kmeans.Point, count)
	for i := range points {
		fields, err := lr.next()
		if err != nil {
			return nil, lr.short(err, offset+i, h.Points)
		}
		if len(fields) != h.Features {
			return nil, parseErrorf(lr.line, "point %d has %d features, expected %d", offset+i, len(fields), h.Features)
		}
		row := values[i*h.Features : (i+1)*h.Features : (i+1)*h.Features]
		for d, field := range fields {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, &ParseError{Line: lr.line, Msg: fmt.Sprintf("point %d feature %d", offset+i, d), Cause: err}
			}
			row[d] = v
		}
		points[i] = kmeans.Point{Features: row}
	}
	return points, nil
}

// ReadHeader reads only the header line
func ReadHeader(r io.Reader) (Header, error) {
	return newLineReader(r).header()
}

// Read parses a whole dataset and seeds every point's label with its index
// mod k
func Read(r io.Reader, k int) (Header, []kmeans.Point, error) {
	if k <= 0 {
		return Header{}, nil, fmt.Errorf("%w: %d", kmeans.ErrInvalidK, k)
	}
	lr := newLineReader(r)
	h, err := lr.header()
	if err != nil {
		return Header{}, nil, err
	}
	points, err := lr.points(h, 0, h.Points)
	if err != nil {
		return h, nil, err
	}
	kmeans.SeedLabels(points, 0, k)
	return h, points, nil
}

// Shard is one worker's slice of a dataset
type Shard struct {
	Header    Header
	Layout    partition.Layout
	Partition partition.Partition
	Points    []kmeans.Point
}

// ReadPartition parses the header, splits the dataset across workers and
// returns rank's points. Lines before the partition are skipped unparsed and
// lines after it are not read. Labels are seeded from global indices.
func ReadPartition(r io.Reader, k, workers, rank int) (*Shard, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: %d", kmeans.ErrInvalidK, k)
	}
	lr := newLineReader(r)
	h, err := lr.header()
	if err != nil {
		return nil, err
	}

	bp, err := partition.NewBlockPartition(h.Points, workers)
	if err != nil {
		return nil, err
	}
	p, err := bp.For(rank)
	if err != nil {
		return nil, err
	}

	if err := lr.skip(p.Offset, h.Points); err != nil {
		return nil, err
	}
	points, err := lr.points(h, p.Offset, p.Count)
	if err != nil {
		return nil, err
	}
	kmeans.SeedLabels(points, p.Offset, k)

	return &Shard{Header: h, Layout: bp.Layout(), Partition: p, Points: points}, nil
}
