// Command kmeans-gen writes a random dataset for kmeans.
//
//	kmeans-gen [-seed n] <num_points> <num_features> <path>
//
// Features are drawn uniformly from [0, 10000). The path may be local or
// s3://bucket/key.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/dd0wney/cluso-kmeans/pkg/blobstore"
	"github.com/dd0wney/cluso-kmeans/pkg/dataset"
	"github.com/dd0wney/cluso-kmeans/pkg/logging"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		log.Fatalf("kmeans-gen: %v", err)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("kmeans-gen", flag.ContinueOnError)
	seed := fs.Int64("seed", 0, "Random seed (0 = time based)")
	region := fs.String("s3-region", "", "Region for s3:// destinations")
	endpoint := fs.String("s3-endpoint", "", "Custom S3 endpoint, e.g. a MinIO server")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 3 {
		return errors.New("usage: kmeans-gen [flags] <num_points> <num_features> <path>")
	}

	n, err := strconv.Atoi(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("num_points: %w", err)
	}
	f, err := strconv.Atoi(fs.Arg(1))
	if err != nil {
		return fmt.Errorf("num_features: %w", err)
	}
	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}

	store, name, err := blobstore.Resolve(ctx, fs.Arg(2), blobstore.S3Options{
		Region:       *region,
		Endpoint:     *endpoint,
		UsePathStyle: *endpoint != "",
	})
	if err != nil {
		return err
	}

	logger := logging.NewJSONLogger(os.Stderr, logging.LevelFromEnv())
	timer := logging.StartTimer(logger, "generating dataset", logging.Points(n), logging.Int("features", f), logging.Path(fs.Arg(2)))
	rng := rand.New(rand.NewSource(*seed))
	err = blobstore.WriteWith(ctx, store, name, func(w io.Writer) error {
		return dataset.Generate(w, n, f, rng)
	})
	if err != nil {
		timer.EndError(err)
		return err
	}
	timer.End(logging.Int64("seed", *seed))
	return nil
}
