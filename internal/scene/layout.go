/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package scene

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// Size is an image size in pixels.
type Size struct{ W, H int }

// Dimensions reads the pixel size from the image header without decoding
// the pixels. PNG, JPEG, GIF, BMP and WebP are recognised.
func Dimensions(data []byte) (Size, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Size{}, fmt.Errorf("image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Size{}, fmt.Errorf("image header: empty %s image", format)
	}
	return Size{W: cfg.Width, H: cfg.Height}, nil
}

// Rect is a device-space rectangle. Its origin is the bottom-left corner of
// the screen, y growing upwards.
type Rect struct{ X, Y, W, H float64 }

// Layout maps the design resolution novels are authored for onto the
// device with a uniform scale and letterboxing.
type Layout struct {
	DesignW, DesignH float64
	DeviceW, DeviceH float64
}

// Scale is the uniform design-to-device factor.
func (l Layout) Scale() float64 {
	if l.DesignW <= 0 || l.DesignH <= 0 {
		return 1
	}
	return min(l.DeviceW/l.DesignW, l.DeviceH/l.DesignH)
}

// Offset is the letterbox margin on each axis.
func (l Layout) Offset() (x, y float64) {
	s := l.Scale()
	return (l.DeviceW - l.DesignW*s) / 2, (l.DeviceH - l.DesignH*s) / 2
}

// FitBackground scales img to fit the device while keeping its aspect
// ratio and centres it.
func (l Layout) FitBackground(img Size) Rect {
	if img.W <= 0 || img.H <= 0 {
		return Rect{W: l.DeviceW, H: l.DeviceH}
	}
	s := min(l.DeviceW/float64(img.W), l.DeviceH/float64(img.H))
	w, h := float64(img.W)*s, float64(img.H)*s
	return Rect{X: (l.DeviceW - w) / 2, Y: (l.DeviceH - h) / 2, W: w, H: h}
}

// PlaceSprite converts a sprite at design position (x, y), measured from
// the top-left of the design screen to the image's top-left corner, into a
// device rectangle.
func (l Layout) PlaceSprite(x, y float64, img Size) Rect {
	s := l.Scale()
	ox, oy := l.Offset()
	w, h := float64(img.W)*s, float64(img.H)*s
	return Rect{
		X: ox + x*s,
		Y: oy + (l.DesignH-y)*s - h,
		W: w,
		H: h,
	}
}

// Image is a decoded-size asset ready for the stage: its bytes, pixel size
// and device placement.
type Image struct {
	Path string
	Data []byte
	Size Size
	Rect Rect
}
