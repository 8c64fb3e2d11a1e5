// Package imagecodec turns a base64 image payload into a validated RGB raster.
package imagecodec

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Raster is a decoded image with interleaved RGB pixels.
type Raster struct {
	Width    int
	Height   int
	Channels int
	Pix      []uint8
	Format   string
}

type Limits struct {
	MinWidth  int
	MinHeight int
	MaxPixels int
}

func DefaultLimits() Limits {
	return Limits{MinWidth: 100, MinHeight: 100, MaxPixels: 40_000_000}
}

// Decode validates payload and decodes it into a 3-channel raster.
func Decode(payload string, limits Limits) (*Raster, error) {
	data, err := DecodeBase64(payload)
	if err != nil {
		return nil, err
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, &DecodeError{Kind: UnsupportedFormat, Msg: "payload is not a supported image format"}
		}
		return nil, &DecodeError{Kind: Malformed, Msg: "failed to read image header", Err: err}
	}

	if cfg.Width < limits.MinWidth || cfg.Height < limits.MinHeight {
		return nil, &DecodeError{
			Kind: TooSmall,
			Msg:  "image is " + dims(cfg.Width, cfg.Height) + ", minimum is " + dims(limits.MinWidth, limits.MinHeight),
		}
	}
	if limits.MaxPixels > 0 && cfg.Width*cfg.Height > limits.MaxPixels {
		return nil, &DecodeError{Kind: TooLarge, Msg: "image is " + dims(cfg.Width, cfg.Height) + ", exceeds pixel limit"}
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Kind: Malformed, Msg: "failed to decode image", Err: err}
	}

	r := toRaster(img)
	r.Format = format
	return r, nil
}

// DecodeBase64 normalizes and decodes the text form of an image payload.
// Missing trailing padding is restored before decoding.
func DecodeBase64(payload string) ([]byte, error) {
	s := strings.TrimSpace(payload)
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i >= 0 {
			s = s[i+1:]
		}
	}
	s = strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', '\t', ' ':
			return -1
		}
		return r
	}, s)

	if s == "" {
		return nil, &DecodeError{Kind: Malformed, Msg: "no image data provided"}
	}

	if rem := len(s) % 4; rem != 0 {
		s += strings.Repeat("=", 4-rem)
	}

	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		var urlErr error
		if data, urlErr = base64.URLEncoding.DecodeString(s); urlErr != nil {
			return nil, &DecodeError{Kind: Malformed, Msg: "payload is not valid base64", Err: err}
		}
	}
	if len(data) == 0 {
		return nil, &DecodeError{Kind: Malformed, Msg: "no image data provided"}
	}
	return data, nil
}

// Image returns the raster as an opaque NRGBA image.
func (r *Raster) Image() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, r.Width, r.Height))
	for i, j := 0, 0; i < len(r.Pix); i, j = i+3, j+4 {
		img.Pix[j] = r.Pix[i]
		img.Pix[j+1] = r.Pix[i+1]
		img.Pix[j+2] = r.Pix[i+2]
		img.Pix[j+3] = 0xff
	}
	return img
}

// toRaster drops alpha and expands gray or paletted sources to RGB.
func toRaster(img image.Image) *Raster {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	pix := make([]uint8, 0, w*h*3)

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			pix = append(pix, c.R, c.G, c.B)
		}
	}

	return &Raster{Width: w, Height: h, Channels: 3, Pix: pix}
}

func dims(w, h int) string {
	return fmt.Sprintf("%dx%d", w, h)
}
