// Huddle - Social Activity Client Cache
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

package imagecache

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder

	_ "golang.org/x/image/webp" // register WebP decoder
)

// ErrDecode is returned when bytes are not a supported image.
var ErrDecode = errors.New("imagecache: undecodable image")

// Image is an encoded avatar image plus the facts read from its header.
// Data is never modified after construction.
type Image struct {
	Data   []byte
	Format string // "png", "jpeg", "gif" or "webp"
	Width  int
	Height int
}

// Size returns the encoded size in bytes.
func (img *Image) Size() int64 {
	if img == nil {
		return 0
	}
	return int64(len(img.Data))
}

// Decode validates data as a PNG, JPEG, GIF or WebP image.
// Only the header is parsed; pixels stay encoded.
func Decode(data []byte) (*Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrDecode)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrDecode, cfg.Width, cfg.Height)
	}
	return &Image{Data: data, Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}
