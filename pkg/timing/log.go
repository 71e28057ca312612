package timing

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dd0wney/cluso-kmeans/pkg/blobstore"
)

// FileSink appends "<Mode> time:\t<seconds>" lines to a local log
type FileSink struct {
	store *blobstore.Local
	name  string
	mu    sync.Mutex
}

// NewFileSink appends to the file at path
func NewFileSink(path string) *FileSink {
	return &FileSink{store: blobstore.NewLocal(""), name: path}
}

// Record appends one line for e
func (s *FileSink) Record(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	w, err := s.store.Append(s.name)
	if err != nil {
		return fmt.Errorf("open timing log: %w", err)
	}
	if err := WriteLine(w, e.Mode, e.Elapsed); err != nil {
		w.Close()
		return fmt.Errorf("write timing log: %w", err)
	}
	return w.Close()
}

// WriteLine writes one timing log line
func WriteLine(w io.Writer, mode Mode, elapsed time.Duration) error {
	_, err := fmt.Fprintf(w, "%s time:\t%f\n", mode, elapsed.Seconds())
	return err
}

// LogLine is one parsed timing log line
type LogLine struct {
	Mode    Mode
	Elapsed time.Duration
}

// ParseLog reads a timing log
func ParseLog(r io.Reader) ([]LogLine, error) {
	var lines []LogLine
	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		label, value, ok := strings.Cut(text, "\t")
		mode, isTime := strings.CutSuffix(label, " time:")
		if !ok || !isTime {
			return nil, fmt.Errorf("line %d: expected \"<Mode> time:\\t<seconds>\", got %q", lineNum, text)
		}
		seconds, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil || seconds < 0 || math.IsInf(seconds, 0) {
			return nil, fmt.Errorf("line %d: invalid seconds %q", lineNum, value)
		}
		lines = append(lines, LogLine{
			Mode:    Mode(mode),
			Elapsed: time.Duration(seconds * float64(time.Second)),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

// Summary averages the serial and parallel times of a log
type Summary struct {
	Serial   []time.Duration
	Parallel []time.Duration
}

// Summarize groups log lines by mode
func Summarize(lines []LogLine) Summary {
	var s Summary
	for _, l := range lines {
		switch l.Mode {
		case ModeSerial:
			s.Serial = append(s.Serial, l.Elapsed)
		case ModeParallel:
			s.Parallel = append(s.Parallel, l.Elapsed)
		}
	}
	return s
}

// Row is one line of a performance report
type Row struct {
	Workers     int
	Speedup     float64
	Scalability float64
	AvgSerial   time.Duration
	AvgParallel time.Duration
}

// NewRow computes a performance row. singleWorker is the average parallel
// time measured with one worker; zero uses this row's own parallel time.
func NewRow(workers int, s Summary, singleWorker time.Duration) (Row, error) {
	row := Row{Workers: workers, AvgSerial: Mean(s.Serial), AvgParallel: Mean(s.Parallel)}
	if singleWorker == 0 {
		singleWorker = row.AvgParallel
	}
	var err error
	if row.Speedup, err = Speedup(row.AvgSerial, row.AvgParallel); err != nil {
		return row, err
	}
	if row.Scalability, err = Scalability(singleWorker, row.AvgParallel); err != nil {
		return row, err
	}
	return row, nil
}

// PerformanceHeader is the header line of a performance report
const PerformanceHeader = "N_proc\tSpeedup\tScalability\tAvg_Ser_Time\tAvg_Par_Time"

// WritePerformance writes a performance report
func WritePerformance(w io.Writer, rows []Row) error {
	if _, err := fmt.Fprintln(w, PerformanceHeader); err != nil {
		return err
	}
	for _, r := range rows {
		if err := WriteRow(w, r); err != nil {
			return err
		}
	}
	return nil
}

// WriteRow writes one report row without the header
func WriteRow(w io.Writer, r Row) error {
	_, err := fmt.Fprintf(w, "%d\t%g\t%g\t%g\t%g\n",
		r.Workers, r.Speedup, r.Scalability, r.AvgSerial.Seconds(), r.AvgParallel.Seconds())
	return err
}
