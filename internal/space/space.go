// Package space provides the unit-square geometry agents live in.
// Positions are orb points; zones are axis-aligned rectangles with exclusive bounds.
package space

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"golang.org/x/exp/constraints"
)

// Unit is the [0,1]×[0,1] square every agent is confined to.
var Unit = orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}}

// Zone is a rectangular region [x0,x1]×[y0,y1]. Membership is strict:
// points on the border are outside.
type Zone struct {
	Bound orb.Bound `json:"bound"`
}

// NewZone builds a zone from the x0, x1, y0, y1 ordering used in parameter files.
func NewZone(x0, x1, y0, y1 float64) Zone {
	return Zone{Bound: orb.Bound{Min: orb.Point{x0, y0}, Max: orb.Point{x1, y1}}}
}

// Contains reports whether p lies strictly inside the zone.
func (z Zone) Contains(p orb.Point) bool {
	return p[0] > z.Bound.Min[0] && p[0] < z.Bound.Max[0] &&
		p[1] > z.Bound.Min[1] && p[1] < z.Bound.Max[1]
}

// ParseZone reads a zone written as "x0,x1,y0,y1". It does not validate it.
func ParseZone(s string) (Zone, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Zone{}, fmt.Errorf("zone %q: want x0,x1,y0,y1", s)
	}
	var v [4]float64
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return Zone{}, fmt.Errorf("zone %q: %w", s, err)
		}
		v[i] = f
	}
	return NewZone(v[0], v[1], v[2], v[3]), nil
}

// Validate checks that the zone is a non-empty rectangle inside the unit square.
func (z Zone) Validate() error {
	x0, y0 := z.Bound.Min[0], z.Bound.Min[1]
	x1, y1 := z.Bound.Max[0], z.Bound.Max[1]
	for _, v := range []float64{x0, x1, y0, y1} {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return fmt.Errorf("coordinate %v outside [0,1]", v)
		}
	}
	if x0 >= x1 {
		return fmt.Errorf("x0 %v must be below x1 %v", x0, x1)
	}
	if y0 >= y1 {
		return fmt.Errorf("y0 %v must be below y1 %v", y0, y1)
	}
	return nil
}

// String renders the zone as [x0 x1 y0 y1].
func (z Zone) String() string {
	return fmt.Sprintf("[%g %g %g %g]", z.Bound.Min[0], z.Bound.Max[0], z.Bound.Min[1], z.Bound.Max[1])
}

// Clamp pins v to [lo, hi].
func Clamp[T constraints.Float](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ClampUnit pins each coordinate of p to [0,1] independently.
// Agents pushed past an edge stay on it; there is no bounce.
func ClampUnit(p orb.Point) orb.Point {
	return orb.Point{Clamp(p[0], 0, 1), Clamp(p[1], 0, 1)}
}

// Displace moves p by distance r along angle theta (radians).
func Displace(p orb.Point, r, theta float64) orb.Point {
	return orb.Point{p[0] + r*math.Cos(theta), p[1] + r*math.Sin(theta)}
}

// Dist2 is the squared Euclidean distance between a and b.
func Dist2(a, b orb.Point) float64 {
	dx := a[0] - b[0]
	dy := a[1] - b[1]
	return dx*dx + dy*dy
}
