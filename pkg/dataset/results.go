package dataset

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const resultSeparator = " is in Cluster "

// WriteResults writes one "Point <i> is in Cluster <label>" line per point in
// ascending index order
func WriteResults(w io.Writer, labels []int) error {
	bw := bufio.NewWriter(w)
	buf := make([]byte, 0, 64)
	for i, label := range labels {
		buf = append(buf[:0], "Point "...)
		buf = strconv.AppendInt(buf, int64(i), 10)
		buf = append(buf, resultSeparator...)
		buf = strconv.AppendInt(buf, int64(label), 10)
		buf = append(buf, '\n')
		if _, err := bw.Write(buf); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadResults parses a results file. Points must appear in ascending order
// starting at 0.
func ReadResults(r io.Reader) ([]int, error) {
	lr := newLineReader(r)
	var labels []int
	for {
		_, err := lr.next()
		if err == io.EOF {
			return labels, nil
		}
		if err != nil {
			return nil, err
		}

		text := strings.TrimSpace(lr.scanner.Text())
		point, cluster, ok := strings.Cut(strings.TrimPrefix(text, "Point "), resultSeparator)
		if !ok || !strings.HasPrefix(text, "Point ") {
			return nil, parseErrorf(lr.line, "expected \"Point <i> is in Cluster <c>\", got %q", text)
		}
		idx, err := strconv.Atoi(point)
		if err != nil {
			return nil, &ParseError{Line: lr.line, Msg: "invalid point index", Cause: err}
		}
		if idx != len(labels) {
			return nil, parseErrorf(lr.line, "point %d out of order, expected %d", idx, len(labels))
		}
		label, err := strconv.Atoi(cluster)
		if err != nil {
			return nil, &ParseError{Line: lr.line, Msg: "invalid cluster label", Cause: err}
		}
		labels = append(labels, label)
	}
}

// Comparison is the outcome of comparing two labelings of the same dataset
type Comparison struct {
	Points    int     // points in each labeling
	Clusters  int     // distinct clusters in the first labeling
	Matched   int     // clusters of the first labeling sharing a point with some cluster of the second
	Agreement float64 // fraction of points with the same label in both
}

// Consistent reports whether every cluster of the first labeling was matched
func (c Comparison) Consistent() bool {
	return c.Matched == c.Clusters
}

// Identical reports whether both labelings assign every point the same label
func (c Comparison) Identical() bool {
	return c.Points == 0 || c.Agreement == 1
}

// Compare groups both labelings into clusters and counts the clusters of a
// that overlap some cluster of b
func Compare(a, b []int) (Comparison, error) {
	if len(a) != len(b) {
		return Comparison{}, fmt.Errorf("labelings cover %d and %d points", len(a), len(b))
	}

	membersB := make(map[int]map[int]struct{})
	for i, l := range b {
		if membersB[l] == nil {
			membersB[l] = make(map[int]struct{})
		}
		membersB[l][i] = struct{}{}
	}
	membersA := make(map[int][]int)
	same := 0
	for i, l := range a {
		membersA[l] = append(membersA[l], i)
		if l == b[i] {
			same++
		}
	}

	c := Comparison{Points: len(a), Clusters: len(membersA)}
	for _, members := range membersA {
	search:
		for _, set := range membersB {
			for _, i := range members {
				if _, ok := set[i]; ok {
					c.Matched++
					break search
				}
			}
		}
	}
	if len(a) > 0 {
		c.Agreement = float64(same) / float64(len(a))
	}
	return c, nil
}
