// Package distance provides the distance functions used for nearest-neighbour
// search. Every function accumulates in float64 in index order, so results are
// reproducible across backends that evaluate in memory.
package distance

import (
	"fmt"
	"math"
	"strings"

	"github.com/creastat/descriptorstore"
	"github.com/creastat/descriptorstore/types"
)

// Metric represents the distance metric used for vector comparison.
type Metric int

const (
	Manhattan Metric = iota
	Euclidean
	Cosine
	InnerProduct
	Hamming
	Jaccard
)

var metricNames = []string{"manhattan", "euclidean", "cosine", "inner", "hamming", "jaccard"}

func (m Metric) String() string {
	if m >= 0 && int(m) < len(metricNames) {
		return metricNames[m]
	}
	return fmt.Sprintf("unknown(%d)", int(m))
}

// ParseMetric parses a metric name, case-insensitively. "innerproduct" and
// "dot" are accepted as aliases of "inner", "l1" and "l2" of manhattan and euclidean.
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "manhattan", "l1":
		return Manhattan, nil
	case "euclidean", "l2":
		return Euclidean, nil
	case "cosine":
		return Cosine, nil
	case "inner", "innerproduct", "inner_product", "dot":
		return InnerProduct, nil
	case "hamming":
		return Hamming, nil
	case "jaccard":
		return Jaccard, nil
	}
	return 0, fmt.Errorf("unknown distance %q: %w", s, descriptorstore.ErrInvalidConfig)
}

// Float is the set of component types the distance functions accept.
type Float interface {
	~float32 | ~float64
}

// Func is a distance function over one component type.
type Func[T Float] func(a, b []T) (float64, error)

// For returns the distance function of m for components of type T.
func For[T Float](m Metric) (Func[T], error) {
	switch m {
	case Manhattan:
		return ManhattanDistance[T], nil
	case Euclidean:
		return EuclideanDistance[T], nil
	case Cosine:
		return CosineDistance[T], nil
	case InnerProduct:
		return InnerProductDistance[T], nil
	case Hamming:
		return HammingDistance[T], nil
	}
	return nil, fmt.Errorf("%s distance on dense vectors: %w", m, descriptorstore.ErrUnsupported)
}

// Compute evaluates m on two vectors of the same component type.
func Compute[T Float](m Metric, a, b []T) (float64, error) {
	f, err := For[T](m)
	if err != nil {
		return 0, err
	}
	return f(a, b)
}

// Between evaluates m on two vector values, widening any numeric vector kind to float64.
func Between(m Metric, a, b types.Value) (float64, error) {
	if x, ok := a.Interface().([]float32); ok {
		if y, ok := b.Interface().([]float32); ok {
			return Compute(m, x, y)
		}
	}
	x, ok := a.Float64s()
	if !ok {
		return 0, fmt.Errorf("%s is not a vector: %w", a.Type(), descriptorstore.ErrTypeMismatch)
	}
	y, ok := b.Float64s()
	if !ok {
		return 0, fmt.Errorf("%s is not a vector: %w", b.Type(), descriptorstore.ErrTypeMismatch)
	}
	return Compute(m, x, y)
}

func checkLen[T Float](a, b []T) error {
	if len(a) != len(b) {
		return fmt.Errorf("vector lengths %d and %d differ: %w", len(a), len(b), descriptorstore.ErrDimensionMismatch)
	}
	return nil
}

// ManhattanDistance returns the sum of absolute component differences.
func ManhattanDistance[T Float](a, b []T) (float64, error) {
	if err := checkLen(a, b); err != nil {
		return 0, err
	}
	var sum float64
	for i := range a {
		sum += math.Abs(float64(a[i]) - float64(b[i]))
	}
	return sum, nil
}

// EuclideanDistance returns the L2 distance.
func EuclideanDistance[T Float](a, b []T) (float64, error) {
	if err := checkLen(a, b); err != nil {
		return 0, err
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

// CosineDistance returns 1 minus the cosine similarity. A zero vector has no
// direction and is at distance 1 from everything.
func CosineDistance[T Float](a, b []T) (float64, error) {
	if err := checkLen(a, b); err != nil {
		return 0, err
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 1, nil
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb)), nil
}

// InnerProductDistance returns the negated dot product so that smaller is closer.
func InnerProductDistance[T Float](a, b []T) (float64, error) {
	if err := checkLen(a, b); err != nil {
		return 0, err
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return -dot, nil
}

// HammingDistance returns the number of differing components.
func HammingDistance[T Float](a, b []T) (float64, error) {
	if err := checkLen(a, b); err != nil {
		return 0, err
	}
	var n float64
	for i := range a {
		if a[i] != b[i] {
			n++
		}
	}
	return n, nil
}
