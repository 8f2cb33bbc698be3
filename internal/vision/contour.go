package vision

import "image"

// Contour is a traced border. Points are in image coordinates with runs of
// collinear chain steps collapsed to their end points.
type Contour struct {
	Points []image.Point
	Hole   bool
	Parent int // index into the result of FindContours, -1 for top level
}

// clockwise in screen space, starting east
var dirs = [8]image.Point{
	{1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}, {-1, -1}, {0, -1}, {1, -1},
}

func dirOf(from, to image.Point) int {
	d := to.Sub(from)
	for i, v := range dirs {
		if v == d {
			return i
		}
	}
	return -1
}

// FindContours traces every outer and hole border of the non-zero pixels in
// bin (Suzuki-Abe border following) and returns them in discovery order with
// their nesting.
func FindContours(bin *image.Gray) []Contour {
	bin = Gray(bin)
	w, h := bin.Rect.Dx(), bin.Rect.Dy()

	// one pixel zero frame around the image
	pw, ph := w+2, h+2
	f := make([]int32, pw*ph)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if bin.Pix[y*bin.Stride+x] != 0 {
				f[(y+1)*pw+x+1] = 1
			}
		}
	}
	get := func(p image.Point) int32 { return f[p.Y*pw+p.X] }
	set := func(p image.Point, v int32) { f[p.Y*pw+p.X] = v }

	type border struct {
		hole   bool
		parent int32 // NBD of parent border
		index  int   // position in result
	}
	// NBD 1 is the frame, treated as a hole.
	borders := map[int32]border{1: {hole: true, parent: 0, index: -1}}
	var out []Contour
	nbd := int32(1)

	for y := 1; y <= h; y++ {
		lnbd := int32(1)
		for x := 1; x <= w; x++ {
			p := image.Pt(x, y)
			v := get(p)
			if v == 0 {
				continue
			}

			var from image.Point
			var hole bool
			switch {
			case v == 1 && get(image.Pt(x-1, y)) == 0:
				from = image.Pt(x-1, y)
			case v >= 1 && get(image.Pt(x+1, y)) == 0:
				from, hole = image.Pt(x+1, y), true
				if v > 1 {
					lnbd = v
				}
			default:
				if v != 1 {
					lnbd = abs32(v)
				}
				continue
			}

			nbd++
			prev := borders[lnbd]
			parent := lnbd
			if prev.hole == hole {
				parent = prev.parent
			}
			borders[nbd] = border{hole: hole, parent: parent, index: len(out)}

			parentIndex := -1
			if b, ok := borders[parent]; ok {
				parentIndex = b.index
			}
			pts := follow(p, from, nbd, get, set)
			out = append(out, Contour{
				Points: compress(pts),
				Hole:   hole,
				Parent: parentIndex,
			})

			if nv := get(p); nv != 1 {
				lnbd = abs32(nv)
			}
		}
	}
	return out
}

// follow traces one border starting at start, whose zero neighbour from
// seeded the search, labelling pixels with nbd. Points are returned in
// unpadded coordinates.
func follow(start, from image.Point, nbd int32, get func(image.Point) int32, set func(image.Point, int32)) []image.Point {
	unpad := func(p image.Point) image.Point { return p.Sub(image.Pt(1, 1)) }

	d0 := dirOf(start, from)
	first := image.Point{}
	found := false
	for k := 0; k < 8; k++ {
		q := start.Add(dirs[(d0+k)%8])
		if get(q) != 0 {
			first, found = q, true
			break
		}
	}
	if !found {
		set(start, -nbd)
		return []image.Point{unpad(start)}
	}

	var pts []image.Point
	prev, cur := first, start
	for {
		pts = append(pts, unpad(cur))

		d := dirOf(cur, prev)
		var next image.Point
		eastZero := false
		for k := 1; k <= 8; k++ {
			dd := (d - k + 16) % 8
			q := cur.Add(dirs[dd])
			if get(q) != 0 {
				next = q
				break
			}
			if dd == 0 {
				eastZero = true
			}
		}

		switch {
		case eastZero:
			set(cur, -nbd)
		case get(cur) == 1:
			set(cur, nbd)
		}

		if next == start && cur == first {
			return pts
		}
		prev, cur = cur, next
	}
}

// compress drops points that continue the chain direction of their
// predecessor.
func compress(pts []image.Point) []image.Point {
	n := len(pts)
	if n < 3 {
		return pts
	}
	out := make([]image.Point, 0, n)
	for i, p := range pts {
		before := pts[(i-1+n)%n]
		after := pts[(i+1)%n]
		if p.Sub(before) != after.Sub(p) {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return pts[:1]
	}
	return out
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
