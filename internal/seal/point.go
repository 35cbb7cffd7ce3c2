package seal

import (
	"fmt"

	"github.com/gtank/ristretto255"
)

const PointBytes = 32

// Point is a ristretto255 group element.
type Point struct {
	v *ristretto255.Element
}

func PointFromBytesCanonical(b []byte) (Point, error) {
	if len(b) != PointBytes {
		return Point{}, fmt.Errorf("point: expected %d bytes", PointBytes)
	}
	e, err := ristretto255.NewElement().SetCanonicalBytes(b)
	if err != nil {
		return Point{}, fmt.Errorf("point: non-canonical: %w", err)
	}
	return Point{v: e}, nil
}

func (p Point) Bytes() []byte {
	if p.v == nil {
		return nil
	}
	return p.v.Bytes()
}

func PointEq(a, b Point) bool {
	if a.v == nil || b.v == nil {
		return a.v == b.v
	}
	return a.v.Equal(b.v) == 1
}

func MulBase(s Scalar) Point {
	return Point{v: ristretto255.NewElement().ScalarBaseMult(&s.v)}
}

func MulPoint(p Point, s Scalar) Point {
	return Point{v: ristretto255.NewElement().ScalarMult(&s.v, p.v)}
}
