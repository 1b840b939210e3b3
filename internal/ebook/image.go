package ebook

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"strings"

	_ "golang.org/x/image/webp"
)

// ErrEmptyImage is returned when an image blob has no bytes.
var ErrEmptyImage = errors.New("empty image data")

// Image is a decoded-header image blob. Only formats a PDF backend can embed
// directly are kept; anything else is transcoded to PNG on the way in.
type Image struct {
	Data   []byte `json:"-"`
	Format string `json:"format"` // "png", "jpeg" or "gif"
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// DecodeImage inspects data and returns an Image with its pixel dimensions.
func DecodeImage(data []byte) (*Image, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("image has invalid dimensions %dx%d", cfg.Width, cfg.Height)
	}

	switch format {
	case "png", "jpeg", "gif":
	default:
		// webp and friends cannot be embedded as-is.
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decode %s image: %w", format, err)
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("transcode %s to png: %w", format, err)
		}
		data = buf.Bytes()
		format = "png"
	}

	return &Image{
		Data:   data,
		Format: format,
		Width:  cfg.Width,
		Height: cfg.Height,
	}, nil
}

// DecodeBase64Image decodes a base64 payload, tolerating a data: URI prefix.
func DecodeBase64Image(s string) (*Image, error) {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, ";base64,"); strings.HasPrefix(s, "data:") && i >= 0 {
		s = s[i+len(";base64,"):]
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode base64 image: %w", err)
	}
	return DecodeImage(data)
}

// AspectRatio returns height divided by width.
func (img *Image) AspectRatio() float64 {
	if img == nil || img.Width == 0 {
		return 0
	}
	return float64(img.Height) / float64(img.Width)
}

func (img *Image) clone() *Image {
	if img == nil {
		return nil
	}
	c := *img
	c.Data = append([]byte(nil), img.Data...)
	return &c
}
