// Command kmeans-check compares a serial and a parallel results file and
// reports speedup and scalability from a timing log.
//
//	kmeans-check [flags] <serial_results> <parallel_results>
//
// The check passes when every cluster of the first file shares at least one
// point with some cluster of the second and, with -clusters, when that many
// clusters matched.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dd0wney/cluso-kmeans/pkg/blobstore"
	"github.com/dd0wney/cluso-kmeans/pkg/dataset"
	"github.com/dd0wney/cluso-kmeans/pkg/timing"
)

// errCheckFailed marks results that disagree
var errCheckFailed = errors.New("check error")

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		log.Fatalf("kmeans-check: %v", err)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("kmeans-check", flag.ContinueOnError)
	var (
		clusters     = fs.Int("clusters", 0, "Expected number of clusters (0 = those found in the first file)")
		timeLog      = fs.String("time-log", "", "Timing log to summarise")
		workers      = fs.Int("workers", 0, "Worker count of the parallel runs in the log")
		singleWorker = fs.Duration("single-worker", 0, "Average parallel time with one worker (0 = this log's)")
		report       = fs.String("report", "", "Performance report to append a row to")
		timingDB     = fs.String("timing-db", "", "PostgreSQL URL to list recent runs from")
		recent       = fs.Int("recent", 10, "Number of recent runs to list")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return errors.New("usage: kmeans-check [flags] <serial_results> <parallel_results>")
	}

	a, err := readResults(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	b, err := readResults(ctx, fs.Arg(1))
	if err != nil {
		return err
	}
	cmp, err := dataset.Compare(a, b)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "points %d, clusters %d, matched %d, agreement %.4f\n",
		cmp.Points, cmp.Clusters, cmp.Matched, cmp.Agreement)
	if !cmp.Consistent() || (*clusters > 0 && cmp.Matched != *clusters) {
		fmt.Fprintln(stdout, "Check error")
		return errCheckFailed
	}
	fmt.Fprintln(stdout, "Check confirmed")

	if *timeLog != "" {
		if err := summarise(*timeLog, *workers, *singleWorker, *report, stdout); err != nil {
			return err
		}
	}
	if *timingDB != "" {
		if err := listRecent(ctx, *timingDB, *recent, stdout); err != nil {
			return err
		}
	}
	return nil
}

func readResults(ctx context.Context, loc string) ([]int, error) {
	store, name, err := blobstore.Resolve(ctx, loc, blobstore.S3Options{})
	if err != nil {
		return nil, err
	}
	rc, err := store.Open(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", loc, err)
	}
	defer rc.Close()
	labels, err := dataset.ReadResults(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", loc, err)
	}
	return labels, nil
}

// summarise prints the average times of a timing log as a performance row,
// appending it to report when one is given
func summarise(path string, workers int, singleWorker time.Duration, report string, stdout io.Writer) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	lines, err := timing.ParseLog(file)
	file.Close()
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	row, err := timing.NewRow(workers, timing.Summarize(lines), singleWorker)
	if err != nil {
		return err
	}
	if err := timing.WritePerformance(stdout, []timing.Row{row}); err != nil {
		return err
	}
	if report == "" {
		return nil
	}
	return appendRow(report, row)
}

// appendRow adds row to the report, writing the header when the report is new
func appendRow(path string, row timing.Row) error {
	_, statErr := os.Stat(path)
	fresh := errors.Is(statErr, os.ErrNotExist)

	w, err := blobstore.NewLocal("").Append(path)
	if err != nil {
		return err
	}
	if fresh {
		err = timing.WritePerformance(w, []timing.Row{row})
	} else {
		err = timing.WriteRow(w, row)
	}
	if err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func listRecent(ctx context.Context, url string, limit int, stdout io.Writer) error {
	sink, err := timing.NewPGSink(ctx, url)
	if err != nil {
		return err
	}
	defer sink.Close()

	entries, err := sink.Recent(ctx, limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tMODE\tWORKERS\tPOINTS\tCLUSTERS\tITERATIONS\tSECONDS\tRECORDED")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%.6f\t%s\n",
			e.RunID, e.Mode, e.Workers, e.Points, e.Clusters, e.Iterations, e.Elapsed.Seconds(),
			e.RecordedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}
