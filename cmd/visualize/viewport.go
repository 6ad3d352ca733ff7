package main

// viewport is the demo's own pan/zoom projection onto the decomposition's
// periodic box. Unlike a generic 2D camera it has exactly one size
// parameter, boxSize, because the domain it looks at is always the cubic
// periodic volume config.Box.Size describes (not an arbitrary W×H world) —
// panning and the zoom floor are both derived from that one quantity.
type viewport struct {
	centerX, centerY float32
	zoom             float32
	minZoom, maxZoom float32

	viewportW, viewportH float32
	boxSize              float32
}

// newViewport centers the viewport on the box at the zoom where the
// [0, boxSize)^2 plane just covers the whole screen (the larger of the two
// per-axis ratios; on a non-square screen the box overflows the shorter
// axis). That zoom is also the floor for zoomBy.
func newViewport(viewportW, viewportH, boxSize float32) *viewport {
	minZoom := viewportW / boxSize
	if alt := viewportH / boxSize; alt > minZoom {
		minZoom = alt
	}
	return &viewport{
		centerX:   boxSize / 2,
		centerY:   boxSize / 2,
		zoom:      minZoom,
		minZoom:   minZoom,
		maxZoom:   minZoom * 20,
		viewportW: viewportW,
		viewportH: viewportH,
		boxSize:   boxSize,
	}
}

// toroidalDelta returns the shortest signed displacement from b to a on a
// periodic axis of the given length, wrapping through either edge.
func toroidalDelta(a, b, length float32) float32 {
	d := a - b
	half := length / 2
	for d > half {
		d -= length
	}
	for d < -half {
		d += length
	}
	return d
}

// worldToScreen projects a point in the periodic box onto screen
// coordinates, taking the shortest toroidal path from the viewport center.
func (v *viewport) worldToScreen(wx, wy float32) (sx, sy float32) {
	dx := toroidalDelta(wx, v.centerX, v.boxSize)
	dy := toroidalDelta(wy, v.centerY, v.boxSize)
	sx = v.viewportW/2 + dx*v.zoom
	sy = v.viewportH/2 + dy*v.zoom
	return sx, sy
}

// isVisible reports whether a point could fall on screen, conservatively
// padded by radius.
func (v *viewport) isVisible(wx, wy, radius float32) bool {
	sx, sy := v.worldToScreen(wx, wy)
	return sx >= -radius && sx <= v.viewportW+radius && sy >= -radius && sy <= v.viewportH+radius
}

// pan moves the viewport center by a delta in box units (callers divide a
// screen-space drag by zoom first), wrapping into [0, boxSize).
func (v *viewport) pan(dx, dy float32) {
	v.centerX = wrap(v.centerX+dx, v.boxSize)
	v.centerY = wrap(v.centerY+dy, v.boxSize)
}

func wrap(x, length float32) float32 {
	for x < 0 {
		x += length
	}
	for x >= length {
		x -= length
	}
	return x
}

// zoomBy multiplies the current zoom by factor, clamped to [minZoom, maxZoom].
func (v *viewport) zoomBy(factor float32) {
	z := v.zoom * factor
	if z < v.minZoom {
		z = v.minZoom
	}
	if z > v.maxZoom {
		z = v.maxZoom
	}
	v.zoom = z
}
