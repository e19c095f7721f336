package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"
)

// Value is the common interface implemented by every column-value variant.
// Axes never mix variants: a single axis's ValueType determines which
// concrete implementation its columns carry.
type Value interface {
	// Compare returns <0, 0, >0 as the receiver sorts before, equal to, or
	// after other. Implementations fall back to comparing String() output
	// when other is not the same concrete type (which should not happen
	// inside a well-formed axis, but must not panic).
	Compare(other Value) int
	String() string
}

// StringValue is a STRING-typed column value.
type StringValue string

func (v StringValue) String() string { return string(v) }
func (v StringValue) Compare(other Value) int {
	if o, ok := other.(StringValue); ok {
		return strings.Compare(string(v), string(o))
	}
	return strings.Compare(v.String(), other.String())
}

// LongValue is a LONG (64-bit integer) column value.
type LongValue int64

func (v LongValue) String() string { return strconv.FormatInt(int64(v), 10) }
func (v LongValue) Compare(other Value) int {
	if o, ok := other.(LongValue); ok {
		switch {
		case v < o:
			return -1
		case v > o:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(v.String(), other.String())
}

// DoubleValue is a DOUBLE column value.
type DoubleValue float64

func (v DoubleValue) String() string { return strconv.FormatFloat(float64(v), 'g', -1, 64) }
func (v DoubleValue) Compare(other Value) int {
	if o, ok := other.(DoubleValue); ok {
		switch {
		case v < o:
			return -1
		case v > o:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(v.String(), other.String())
}

// BigDecimalValue is an arbitrary-precision decimal column value.
type BigDecimalValue struct{ V *big.Float }

func (v BigDecimalValue) String() string {
	if v.V == nil {
		return "0"
	}
	return v.V.Text('g', -1)
}
func (v BigDecimalValue) Compare(other Value) int {
	if o, ok := other.(BigDecimalValue); ok {
		return v.V.Cmp(o.V)
	}
	return strings.Compare(v.String(), other.String())
}

// DateValue is a DATE column value.
type DateValue time.Time

func (v DateValue) String() string { return time.Time(v).UTC().Format(time.RFC3339) }
func (v DateValue) Compare(other Value) int {
	if o, ok := other.(DateValue); ok {
		t1, t2 := time.Time(v), time.Time(o)
		switch {
		case t1.Before(t2):
			return -1
		case t1.After(t2):
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(v.String(), other.String())
}

// ComparableValue wraps an arbitrary JSON-decoded value (object, array, or
// scalar) used by the COMPARABLE value type. Ordering falls back to a
// lexicographic compare of the canonical JSON encoding, which is sufficient
// for default-column fallback and equality-based binding; COMPARABLE axes are
// not expected to rely on SORTED ordering semantics.
type ComparableValue struct{ V any }

func (v ComparableValue) String() string {
	b, err := json.Marshal(v.V)
	if err != nil {
		return fmt.Sprintf("%v", v.V)
	}
	return string(b)
}
func (v ComparableValue) Compare(other Value) int {
	return strings.Compare(v.String(), other.String())
}

// LatLon is a two-dimensional NEAREST-axis point.
type LatLon struct{ Lat, Lon float64 }

func (v LatLon) String() string { return fmt.Sprintf("%g, %g", v.Lat, v.Lon) }
func (v LatLon) Compare(other Value) int {
	return strings.Compare(v.String(), other.String())
}

// Point3D is a three-dimensional NEAREST-axis point.
type Point3D struct{ X, Y, Z float64 }

func (v Point3D) String() string { return fmt.Sprintf("%g, %g, %g", v.X, v.Y, v.Z) }
func (v Point3D) Compare(other Value) int {
	return strings.Compare(v.String(), other.String())
}

// Expression is a RULE-axis column value: source text plus the recognized
// url/cache options.
type Expression struct {
	Cmd       string
	URL       string
	Cacheable bool
}

func (v Expression) String() string {
	if v.URL != "" {
		return v.URL
	}
	return v.Cmd
}
func (v Expression) Compare(other Value) int {
	return strings.Compare(v.String(), other.String())
}

// Range is a [Low, High) interval with Low strictly less than High.
type Range struct {
	Low, High Value
}

// Validate reports an error if Low is not strictly less than High.
func (r Range) Validate() error {
	if r.Low == nil || r.High == nil {
		return IllegalArgumentError{Message: "range requires both low and high bounds"}
	}
	if r.Low.Compare(r.High) >= 0 {
		return IllegalArgumentError{Message: fmt.Sprintf("range low (%s) must be strictly less than high (%s)", r.Low, r.High)}
	}
	return nil
}

// Overlaps reports whether r and o share any point, per a.low < b.high &&
// b.low < a.high.
func (r Range) Overlaps(o Range) bool {
	return r.Low.Compare(o.High) < 0 && o.Low.Compare(r.High) < 0
}

// Contains reports whether point falls within [Low, High).
func (r Range) Contains(point Value) bool {
	return r.Low.Compare(point) <= 0 && point.Compare(r.High) < 0
}

func (r Range) String() string { return fmt.Sprintf("[%s, %s]", r.Low, r.High) }

// Compare orders ranges lexicographically by (low, high), letting Range
// itself serve as a Value so RANGE-axis columns can store it directly.
func (r Range) Compare(other Value) int {
	if o, ok := other.(Range); ok {
		if c := r.Low.Compare(o.Low); c != 0 {
			return c
		}
		return r.High.Compare(o.High)
	}
	return strings.Compare(r.String(), other.String())
}

// RangeSetElement is one member of a RangeSet: either a discrete value or a
// sub-range, never both.
type RangeSetElement struct {
	Discrete Value
	Range    *Range
}

func (e RangeSetElement) String() string {
	if e.Range != nil {
		return e.Range.String()
	}
	return e.Discrete.String()
}

// RangeSet is an ordered collection of discrete values and sub-ranges bound
// to a single SET-axis column.
type RangeSet struct {
	Elements []RangeSetElement
}

// Overlaps reports whether any element of rs overlaps or equals any element
// of o.
func (rs RangeSet) Overlaps(o RangeSet) bool {
	for _, a := range rs.Elements {
		for _, b := range o.Elements {
			if rangeSetElementsOverlap(a, b) {
				return true
			}
		}
	}
	return false
}

// Contains reports whether point binds to any element of rs.
func (rs RangeSet) Contains(point Value) bool {
	for _, e := range rs.Elements {
		if e.Range != nil {
			if e.Range.Contains(point) {
				return true
			}
			continue
		}
		if e.Discrete.Compare(point) == 0 {
			return true
		}
	}
	return false
}

func (rs RangeSet) String() string {
	parts := make([]string, len(rs.Elements))
	for i, e := range rs.Elements {
		parts[i] = e.String()
	}
	return strings.Join(parts, ", ")
}

// Compare orders range sets by their String() forms, letting RangeSet serve as
// a Value so SET-axis columns can store it directly. SET axes are not
// expected to rely on SORTED ordering semantics.
func (rs RangeSet) Compare(other Value) int {
	return strings.Compare(rs.String(), other.String())
}

func rangeSetElementsOverlap(a, b RangeSetElement) bool {
	switch {
	case a.Range != nil && b.Range != nil:
		return a.Range.Overlaps(*b.Range)
	case a.Range != nil && b.Range == nil:
		return a.Range.Contains(b.Discrete)
	case a.Range == nil && b.Range != nil:
		return b.Range.Contains(a.Discrete)
	default:
		return a.Discrete.Compare(b.Discrete) == 0
	}
}

// Distance computes the NEAREST-axis distance metric between two values:
// absolute difference for numbers and dates, euclidean for LatLon/Point3D.
func Distance(a, b Value) (float64, error) {
	switch av := a.(type) {
	case LongValue:
		bv, ok := b.(LongValue)
		if !ok {
			return 0, IllegalArgumentError{Message: "distance requires matching value types"}
		}
		return math.Abs(float64(av - bv)), nil
	case DoubleValue:
		bv, ok := b.(DoubleValue)
		if !ok {
			return 0, IllegalArgumentError{Message: "distance requires matching value types"}
		}
		return math.Abs(float64(av - bv)), nil
	case BigDecimalValue:
		bv, ok := b.(BigDecimalValue)
		if !ok {
			return 0, IllegalArgumentError{Message: "distance requires matching value types"}
		}
		diff := new(big.Float).Sub(av.V, bv.V)
		f, _ := diff.Abs(diff).Float64()
		return f, nil
	case DateValue:
		bv, ok := b.(DateValue)
		if !ok {
			return 0, IllegalArgumentError{Message: "distance requires matching value types"}
		}
		d := time.Time(av).Sub(time.Time(bv))
		if d < 0 {
			d = -d
		}
		return float64(d), nil
	case LatLon:
		bv, ok := b.(LatLon)
		if !ok {
			return 0, IllegalArgumentError{Message: "distance requires matching value types"}
		}
		dLat, dLon := av.Lat-bv.Lat, av.Lon-bv.Lon
		return math.Sqrt(dLat*dLat + dLon*dLon), nil
	case Point3D:
		bv, ok := b.(Point3D)
		if !ok {
			return 0, IllegalArgumentError{Message: "distance requires matching value types"}
		}
		dx, dy, dz := av.X-bv.X, av.Y-bv.Y, av.Z-bv.Z
		return math.Sqrt(dx*dx + dy*dy + dz*dz), nil
	default:
		return 0, IllegalArgumentError{Message: fmt.Sprintf("value type %T does not support NEAREST distance", a)}
	}
}
