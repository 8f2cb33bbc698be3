package vision

import (
	"image"
	"math"
)

// Area is the absolute shoelace area of the closed polygon pts.
func Area(pts []image.Point) float64 {
	n := len(pts)
	if n < 3 {
		return 0
	}
	sum := 0
	for i, p := range pts {
		q := pts[(i+1)%n]
		sum += p.X*q.Y - q.X*p.Y
	}
	return math.Abs(float64(sum)) / 2
}

// Perimeter is the length of pts, including the closing edge when closed.
func Perimeter(pts []image.Point, closed bool) float64 {
	n := len(pts)
	if n < 2 {
		return 0
	}
	total := 0.0
	for i := 1; i < n; i++ {
		total += dist(pts[i-1], pts[i])
	}
	if closed {
		total += dist(pts[n-1], pts[0])
	}
	return total
}

// Bounds is the smallest rectangle containing every point; Max is exclusive.
func Bounds(pts []image.Point) image.Rectangle {
	if len(pts) == 0 {
		return image.Rectangle{}
	}
	r := image.Rectangle{Min: pts[0], Max: pts[0]}
	for _, p := range pts[1:] {
		r.Min.X = min(r.Min.X, p.X)
		r.Min.Y = min(r.Min.Y, p.Y)
		r.Max.X = max(r.Max.X, p.X)
		r.Max.Y = max(r.Max.Y, p.Y)
	}
	r.Max = r.Max.Add(image.Pt(1, 1))
	return r
}

// Approx simplifies a polygon with Douglas-Peucker: no dropped point lies
// farther than eps from the result. A closed curve is split at the point
// farthest from its first point and each half simplified separately.
func Approx(pts []image.Point, eps float64, closed bool) []image.Point {
	n := len(pts)
	if n < 3 {
		return append([]image.Point(nil), pts...)
	}
	if !closed {
		return dp(pts, eps)
	}

	far, best := 0, -1.0
	for i, p := range pts {
		if d := dist(pts[0], p); d > best {
			far, best = i, d
		}
	}
	if far == 0 {
		return []image.Point{pts[0]}
	}

	first := dp(pts[:far+1], eps)
	second := dp(append(append([]image.Point(nil), pts[far:]...), pts[0]), eps)

	out := append([]image.Point(nil), first...)
	out = append(out, second[1:len(second)-1]...)
	return out
}

func dp(pts []image.Point, eps float64) []image.Point {
	keep := make([]bool, len(pts))
	keep[0], keep[len(pts)-1] = true, true

	type span struct{ a, b int }
	stack := []span{{0, len(pts) - 1}}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		idx, best := -1, eps
		for i := s.a + 1; i < s.b; i++ {
			if d := segmentDist(pts[i], pts[s.a], pts[s.b]); d > best {
				idx, best = i, d
			}
		}
		if idx >= 0 {
			keep[idx] = true
			stack = append(stack, span{s.a, idx}, span{idx, s.b})
		}
	}

	out := make([]image.Point, 0, len(pts))
	for i, p := range pts {
		if keep[i] {
			out = append(out, p)
		}
	}
	return out
}

func dist(a, b image.Point) float64 {
	return math.Hypot(float64(b.X-a.X), float64(b.Y-a.Y))
}

// segmentDist is the distance from p to the line through a and b, or to a
// when they coincide.
func segmentDist(p, a, b image.Point) float64 {
	dx, dy := float64(b.X-a.X), float64(b.Y-a.Y)
	l := math.Hypot(dx, dy)
	if l == 0 {
		return dist(p, a)
	}
	return math.Abs(dy*float64(p.X-a.X)-dx*float64(p.Y-a.Y)) / l
}
