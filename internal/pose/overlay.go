// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pose

import (
	"image"
	"image/color"

	"github.com/jaycherian/gcp-go-pose-compare/internal/core/model"
)

// DrawVisibilityThreshold hides joints the engine is unsure about.
const DrawVisibilityThreshold = 0.5

var (
	JointColor = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	BoneColor  = color.RGBA{R: 255, G: 64, B: 64, A: 255}
)

// DrawSkeleton paints the tracked joints and the bones between them onto frame
// in place. Coordinates are normalized to the frame size.
func DrawSkeleton(frame *image.RGBA, s model.Skeleton) {
	b := frame.Bounds()
	w, h := b.Dx(), b.Dy()
	radius := max(2, min(w, h)/160)
	thickness := max(1, radius/2)

	px := func(l model.Landmark) image.Point {
		x, y := clamp(l.X, -0.5, 1.5), clamp(l.Y, -0.5, 1.5)
		return image.Point{X: b.Min.X + int(x*float64(w)), Y: b.Min.Y + int(y*float64(h))}
	}
	visible := func(j model.Joint) bool {
		return s[j].Visibility >= DrawVisibilityThreshold
	}

	for _, bone := range model.Bones {
		if visible(bone[0]) && visible(bone[1]) {
			drawLine(frame, px(s[bone[0]]), px(s[bone[1]]), thickness, BoneColor)
		}
	}
	for j := model.Joint(0); j < model.JointCount; j++ {
		if visible(j) {
			fillCircle(frame, px(s[j]), radius, JointColor)
		}
	}
}

func fillCircle(img *image.RGBA, c image.Point, r int, col color.RGBA) {
	b := img.Bounds()
	for y := c.Y - r; y <= c.Y+r; y++ {
		for x := c.X - r; x <= c.X+r; x++ {
			dx, dy := x-c.X, y-c.Y
			if dx*dx+dy*dy <= r*r && (image.Point{X: x, Y: y}).In(b) {
				img.SetRGBA(x, y, col)
			}
		}
	}
}

// drawLine is Bresenham with a square brush.
func drawLine(img *image.RGBA, p0, p1 image.Point, thickness int, col color.RGBA) {
	dx, dy := abs(p1.X-p0.X), -abs(p1.Y-p0.Y)
	sx, sy := 1, 1
	if p0.X > p1.X {
		sx = -1
	}
	if p0.Y > p1.Y {
		sy = -1
	}
	e := dx + dy
	x, y := p0.X, p0.Y
	b := img.Bounds()
	for {
		for oy := -thickness / 2; oy <= thickness/2; oy++ {
			for ox := -thickness / 2; ox <= thickness/2; ox++ {
				if p := (image.Point{X: x + ox, Y: y + oy}); p.In(b) {
					img.SetRGBA(p.X, p.Y, col)
				}
			}
		}
		if x == p1.X && y == p1.Y {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x += sx
		}
		if e2 <= dx {
			e += dx
			y += sy
		}
	}
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(hi, v))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
