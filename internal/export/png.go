/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"tweegee/internal/story"
)

// MapOptions controls the story map export.
// Passages with an editor position are drawn there (scaled); the rest are
// laid out on a grid below them.
type MapOptions struct {
	Scale   float64 // editor units to pixels; 0 means 1
	Columns int     // grid columns for unpositioned passages; 0 means 4
}

const (
	mapBoxW  = 140
	mapBoxH  = 28
	mapGridX = 180
	mapGridY = 60
	mapPad   = 20
)

var (
	mapBackground = color.RGBA{255, 255, 255, 255}
	mapBoxFill    = color.RGBA{245, 245, 240, 255}
	mapStartFill  = color.RGBA{200, 235, 200, 255}
	mapStroke     = color.RGBA{0, 0, 0, 255}
	mapErrStroke  = color.RGBA{200, 0, 0, 255}
	mapLinkEdge   = color.RGBA{150, 150, 150, 255}
	mapIncEdge    = color.RGBA{70, 110, 200, 255}
)

// WriteMapPNG draws every passage as a labelled box with an edge for each
// literal link (grey) and include (blue), then encodes the image as PNG.
func WriteMapPNG(w io.Writer, st *story.Story, opt MapOptions) error {
	if st == nil {
		return fmt.Errorf("story is nil")
	}
	boxes, order := layoutMap(st, opt)
	width, height := 2*mapPad+mapBoxW, 2*mapPad+mapBoxH
	for _, r := range boxes {
		width = max(width, r.Max.X+mapPad)
		height = max(height, r.Max.Y+mapPad)
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: mapBackground}, image.Point{}, draw.Src)

	// edges first so boxes sit on top
	for _, p := range passagesOnce(st) {
		from := boxes[p.Name]
		story.Walk(&p.Block, func(s story.Statement) {
			var t story.Target
			col := mapLinkEdge
			switch s := s.(type) {
			case *story.Link:
				t = s.Target
			case *story.Include:
				t, col = s.Target, mapIncEdge
			default:
				return
			}
			if t.IsDynamic() {
				return
			}
			to, ok := boxes[t.Passage]
			if !ok || to == from {
				return
			}
			drawLine(img, center(from), center(to), col)
		})
	}

	withErrors := map[string]bool{}
	for _, e := range st.Errors {
		if e.Location != nil {
			withErrors[e.Location.Passage] = true
		}
	}
	face := basicfont.Face7x13
	for _, name := range order {
		r := boxes[name]
		fill := mapBoxFill
		if name == st.StartPassageName {
			fill = mapStartFill
		}
		stroke := mapStroke
		if withErrors[name] {
			stroke = mapErrStroke
		}
		fillRect(img, r.Min.X, r.Min.Y, r.Max.X-1, r.Max.Y-1, fill)
		strokeRect(img, r.Min.X, r.Min.Y, r.Max.X-1, r.Max.Y-1, stroke)
		d := &font.Drawer{
			Dst:  img,
			Src:  image.NewUniform(mapStroke),
			Face: face,
			Dot:  fixed.P(r.Min.X+6, r.Min.Y+(mapBoxH+face.Ascent)/2),
		}
		d.DrawString(fitLabel(d, name, mapBoxW-12))
	}
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

// layoutMap places one box per passage name and returns them with the
// names in source order.
func layoutMap(st *story.Story, opt MapOptions) (map[string]image.Rectangle, []string) {
	scale := opt.Scale
	if scale <= 0 {
		scale = 1
	}
	cols := opt.Columns
	if cols <= 0 {
		cols = 4
	}
	boxes := map[string]image.Rectangle{}
	var order, loose []string
	bottom := 0
	for _, p := range passagesOnce(st) {
		order = append(order, p.Name)
		if p.Position == nil {
			loose = append(loose, p.Name)
			continue
		}
		x := mapPad + int(math.Round(float64(p.Position.X)*scale))
		y := mapPad + int(math.Round(float64(p.Position.Y)*scale))
		r := image.Rect(x, y, x+mapBoxW, y+mapBoxH)
		boxes[p.Name] = r
		bottom = max(bottom, r.Max.Y)
	}
	top := mapPad
	if bottom > 0 {
		top = bottom + mapGridY - mapBoxH
	}
	for i, name := range loose {
		x := mapPad + (i%cols)*mapGridX
		y := top + (i/cols)*mapGridY
		boxes[name] = image.Rect(x, y, x+mapBoxW, y+mapBoxH)
	}
	return boxes, order
}

// passagesOnce skips later duplicates, matching name lookup.
func passagesOnce(st *story.Story) []*story.Passage {
	seen := map[string]bool{}
	out := make([]*story.Passage, 0, len(st.Passages))
	for _, p := range st.Passages {
		if seen[p.Name] {
			continue
		}
		seen[p.Name] = true
		out = append(out, p)
	}
	return out
}

func fitLabel(d *font.Drawer, s string, maxPx int) string {
	if d.MeasureString(s).Ceil() <= maxPx {
		return s
	}
	r := []rune(s)
	for len(r) > 0 && d.MeasureString(string(r)+"...").Ceil() > maxPx {
		r = r[:len(r)-1]
	}
	return string(r) + "..."
}

func center(r image.Rectangle) image.Point {
	return image.Pt((r.Min.X+r.Max.X)/2, (r.Min.Y+r.Max.Y)/2)
}

// drawLine draws a 1px line with Bresenham's algorithm.
func drawLine(img *image.RGBA, a, b image.Point, col color.RGBA) {
	dx := abs(b.X - a.X)
	dy := -abs(b.Y - a.Y)
	sx, sy := 1, 1
	if a.X > b.X {
		sx = -1
	}
	if a.Y > b.Y {
		sy = -1
	}
	e := dx + dy
	for {
		img.SetRGBA(a.X, a.Y, col)
		if a == b {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			a.X += sx
		}
		if e2 <= dx {
			e += dx
			a.Y += sy
		}
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// strokeRect draws a 1px axis-aligned rectangle border inclusive of endpoints.
func strokeRect(img *image.RGBA, x0, y0, x1, y1 int, col color.RGBA) {
	for x := x0; x <= x1; x++ {
		img.SetRGBA(x, y0, col)
		img.SetRGBA(x, y1, col)
	}
	for y := y0; y <= y1; y++ {
		img.SetRGBA(x0, y, col)
		img.SetRGBA(x1, y, col)
	}
}

func fillRect(img *image.RGBA, x0, y0, x1, y1 int, col color.RGBA) {
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			img.SetRGBA(x, y, col)
		}
	}
}
