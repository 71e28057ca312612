package dataset

import (
	"bufio"
	"fmt"
	"io"
	"math/rand"
	"strconv"

	"github.com/dd0wney/cluso-kmeans/pkg/validation"
)

// MaxGeneratedValue is the exclusive upper bound of generated features
const MaxGeneratedValue = 10000.0

// Generate writes a dataset of n points with f features drawn uniformly from
// [0, MaxGeneratedValue). Header fields and features are tab-separated.
func Generate(w io.Writer, n, f int, rng *rand.Rand) error {
	if err := validation.ValidatePointCount(n); err != nil {
		return err
	}
	if err := validation.ValidateFeatureCount(f); err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintf(bw, "%d\t%d\n", n, f); err != nil {
		return err
	}
	buf := make([]byte, 0, f*24)
	for i := 0; i < n; i++ {
		buf = buf[:0]
		for d := 0; d < f; d++ {
			if d > 0 {
				buf = append(buf, '\t')
			}
			buf = strconv.AppendFloat(buf, rng.Float64()*MaxGeneratedValue, 'g', -1, 64)
		}
		buf = append(buf, '\n')
		if _, err := bw.Write(buf); err != nil {
			return err
		}
	}
	return bw.Flush()
}
