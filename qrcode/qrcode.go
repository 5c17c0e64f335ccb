// Package qrcode renders the printable code attached to each tree.
package qrcode

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strconv"
	"strings"

	"rsc.io/qr"
)

type Options struct {
	// Size is the width and height of the image in pixels.
	Size int
	// Margin is the quiet zone around the symbol, in modules.
	Margin int
	Dark   color.Color
	Light  color.Color
}

func DefaultOptions() Options {
	return Options{
		Size:   512,
		Margin: 2,
		Dark:   color.RGBA{0x2d, 0x50, 0x16, 0xff},
		Light:  color.White,
	}
}

// withDefaults fills the unset size and colours from DefaultOptions. A zero
// margin is kept.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Size <= 0 {
		o.Size = d.Size
	}
	if o.Dark == nil {
		o.Dark = d.Dark
	}
	if o.Light == nil {
		o.Light = d.Light
	}
	if o.Margin < 0 {
		o.Margin = 0
	}
	return o
}

// Image draws the symbol for text. The same input always yields the same
// pixels. When Size is too small for one pixel per module the image grows to
// fit.
func Image(text string, opts Options) (*image.Paletted, error) {
	code, err := qr.Encode(text, qr.M)
	if err != nil {
		return nil, fmt.Errorf("qrcode: encode: %w", err)
	}
	opts = opts.withDefaults()
	modules := code.Size + 2*opts.Margin
	scale := opts.Size / modules
	if scale < 1 {
		scale = 1
	}
	size := opts.Size
	if size < modules*scale {
		size = modules * scale
	}
	offset := (size - modules*scale) / 2

	img := image.NewPaletted(image.Rect(0, 0, size, size), color.Palette{opts.Light, opts.Dark})
	// index 0 is the light colour, so the zeroed pixel buffer is all background
	for y := 0; y < code.Size; y++ {
		for x := 0; x < code.Size; x++ {
			if !code.Black(x, y) {
				continue
			}
			px := offset + (x+opts.Margin)*scale
			py := offset + (y+opts.Margin)*scale
			for dy := 0; dy < scale; dy++ {
				row := img.Pix[(py+dy)*img.Stride:]
				for dx := 0; dx < scale; dx++ {
					row[px+dx] = 1
				}
			}
		}
	}
	return img, nil
}

// Render returns the symbol for text as a PNG.
func Render(text string, opts Options) ([]byte, error) {
	img, err := Image(text, opts)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("qrcode: png: %w", err)
	}
	return buf.Bytes(), nil
}

// ParseHexColor reads "#rgb" or "#rrggbb".
func ParseHexColor(s string) (color.RGBA, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) != 6 {
		return color.RGBA{}, fmt.Errorf("qrcode: bad colour %q", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("qrcode: bad colour %q", s)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}
