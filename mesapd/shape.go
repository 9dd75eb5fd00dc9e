package mesapd

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Shape describes a rigid-body geometry in its body frame, origin at the
// particle position. The coupling layer uses it to rasterize cells and to
// locate surface crossings on lattice links.
type Shape interface {
	// Volume returns the enclosed volume, +Inf for unbounded shapes.
	Volume() float64
	// BoundingRadius returns the radius of a sphere around the body origin
	// enclosing the shape, +Inf for unbounded shapes.
	BoundingRadius() float64
	// Contains reports whether the body-frame point p lies inside the shape.
	Contains(p r3.Vec) bool
	// LinkFraction returns the fraction d along the body-frame segment from
	// outside to inside at which the surface is crossed. Callers guarantee
	// that outside is not inside the shape and inside is; the result is
	// clamped to [0,1].
	LinkFraction(outside, inside r3.Vec) float64
}

// Sphere is a solid sphere of the given radius.
type Sphere struct {
	Radius float64
}

// Volume returns 4/3 pi r^3.
func (s Sphere) Volume() float64 { return 4.0 / 3.0 * math.Pi * s.Radius * s.Radius * s.Radius }

// BoundingRadius returns the sphere radius.
func (s Sphere) BoundingRadius() float64 { return s.Radius }

// Contains reports whether p lies inside or on the sphere.
func (s Sphere) Contains(p r3.Vec) bool {
	return r3.Norm2(p) <= s.Radius*s.Radius
}

// LinkFraction solves |outside + t (inside-outside)| = Radius for the first
// crossing t in [0,1].
func (s Sphere) LinkFraction(outside, inside r3.Vec) float64 {
	d := r3.Sub(inside, outside)
	a := r3.Norm2(d)
	if a == 0 {
		return 0
	}
	b := 2 * r3.Dot(outside, d)
	c := r3.Norm2(outside) - s.Radius*s.Radius
	disc := b*b - 4*a*c
	if disc < 0 {
		// Grazing link that containment classified as crossing; treat the
		// surface as sitting at the closest approach.
		return clampFraction(-b / (2 * a))
	}
	t := (-b - math.Sqrt(disc)) / (2 * a)
	if t < 0 {
		t = (-b + math.Sqrt(disc)) / (2 * a)
	}
	return clampFraction(t)
}

// HalfSpace is the unbounded solid {p : p.n <= 0}. The normal points out of
// the solid, towards the fluid. It models flat domain walls.
type HalfSpace struct {
	Normal r3.Vec
}

// Volume returns +Inf.
func (h HalfSpace) Volume() float64 { return math.Inf(1) }

// BoundingRadius returns +Inf.
func (h HalfSpace) BoundingRadius() float64 { return math.Inf(1) }

// Contains reports whether p lies on the solid side of the plane.
func (h HalfSpace) Contains(p r3.Vec) bool {
	return r3.Dot(p, h.Normal) <= 0
}

// LinkFraction intersects the segment with the plane p.n = 0.
func (h HalfSpace) LinkFraction(outside, inside r3.Vec) float64 {
	num := r3.Dot(outside, h.Normal)
	den := r3.Dot(r3.Sub(outside, inside), h.Normal)
	if den == 0 {
		return 0
	}
	return clampFraction(num / den)
}

func clampFraction(t float64) float64 {
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}
