package mesapd

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// ProximityPair describes the closest approach of two bodies. Normal is the
// unit vector from B's surface towards A; Gap is the surface separation and
// goes negative when the bodies overlap.
type ProximityPair struct {
	A, B   Snapshot
	Gap    float64
	Normal r3.Vec
}

// ProximityPairs returns every sphere-sphere and sphere-half-space pair whose
// surface gap lies below cutoff, ordered by (A.ID, B.ID). Pairs of two fixed
// bodies are skipped. period gives the domain extent on periodic axes, zero
// on non-periodic ones; sphere-sphere distances use the minimum image.
func ProximityPairs(snaps []Snapshot, cutoff float64, period r3.Vec) []ProximityPair {
	var out []ProximityPair
	for i := 0; i < len(snaps); i++ {
		for j := i + 1; j < len(snaps); j++ {
			a, b := snaps[i], snaps[j]
			if a.GlobalFixed && b.GlobalFixed {
				continue
			}
			p, ok := pairGap(a, b, period)
			if ok && p.Gap < cutoff {
				out = append(out, p)
			}
		}
	}
	return out
}

func pairGap(a, b Snapshot, period r3.Vec) (ProximityPair, bool) {
	sa, aSphere := a.Shape.(Sphere)
	sb, bSphere := b.Shape.(Sphere)
	switch {
	case aSphere && bSphere:
		d := minImage(r3.Sub(a.Position, b.Position), period)
		l := r3.Norm(d)
		if l == 0 {
			return ProximityPair{}, false
		}
		return ProximityPair{
			A:      a,
			B:      b,
			Gap:    l - sa.Radius - sb.Radius,
			Normal: r3.Scale(1/l, d),
		}, true
	case aSphere:
		return sphereWallGap(a, sa, b)
	case bSphere:
		return sphereWallGap(b, sb, a)
	}
	return ProximityPair{}, false
}

// sphereWallGap measures the sphere against a half-space wall. The sphere is
// always reported as pair member A.
func sphereWallGap(s Snapshot, sph Sphere, wall Snapshot) (ProximityPair, bool) {
	hs, ok := wall.Shape.(HalfSpace)
	if !ok {
		return ProximityPair{}, false
	}
	n := wall.Orientation.Rotate(hs.Normal)
	if nn := r3.Norm(n); nn > 0 {
		n = r3.Scale(1/nn, n)
	} else {
		return ProximityPair{}, false
	}
	dist := r3.Dot(r3.Sub(s.Position, wall.Position), n)
	return ProximityPair{A: s, B: wall, Gap: dist - sph.Radius, Normal: n}, true
}

func minImage(d, period r3.Vec) r3.Vec {
	if period.X > 0 {
		d.X -= period.X * math.Round(d.X/period.X)
	}
	if period.Y > 0 {
		d.Y -= period.Y * math.Round(d.Y/period.Y)
	}
	if period.Z > 0 {
		d.Z -= period.Z * math.Round(d.Z/period.Z)
	}
	return d
}
