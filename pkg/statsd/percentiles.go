package statsd

import (
	"math"
	"strconv"
	"strings"
)

// NearestRank returns the p-th percentile of sorted using the nearest-rank method: the smallest
// sample such that at least p percent of the samples are less than or equal to it.  sorted must
// be non-empty and in ascending order.
func NearestRank(sorted []float64, p float64) float64 {
	n := len(sorted)
	rank := int(math.Ceil(p * float64(n) / 100))
	if rank < 1 {
		rank = 1
	} else if rank > n {
		rank = n
	}
	return sorted[rank-1]
}

// PercentileName returns the published name of a percentile, p90 for 90 and p99_9 for 99.9.
func PercentileName(p float64) string {
	return "p" + strings.Replace(strconv.FormatFloat(p, 'f', -1, 64), ".", "_", 1)
}
