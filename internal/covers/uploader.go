// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package covers

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"net/url"
	"os"
	"time"

	retry "github.com/avast/retry-go"
	"github.com/disintegration/imaging"
	"github.com/rs/zerolog/log"

	// Register webp decoding; user uploads come in every format.
	_ "golang.org/x/image/webp"
)

const (
	uploadMaxWidth  = 1200
	uploadMaxHeight = 1800
)

// Uploader installs user-chosen cover art, normalizing whatever decodable
// image it is handed into the cache's JPEG shape.
type Uploader struct {
	cache *Cache
}

func NewUploader(cache *Cache) *Uploader {
	return &Uploader{cache: cache}
}

// FromFile reads an image at src and writes it to dest as a JPEG:
// transparency flattened onto black, scaled down to fit 1200x1800 when
// oversized, quality 90. src is left untouched.
func (u *Uploader) FromFile(src, dest string) error {
	img, err := imaging.Open(src)
	if err != nil {
		return fmt.Errorf("decode uploaded image %s: %w", src, err)
	}

	fitted := imaging.Fit(img, uploadMaxWidth, uploadMaxHeight, imaging.Lanczos)

	// JPEG has no alpha channel; composite onto black instead of letting
	// the encoder pick an arbitrary background.
	bounds := fitted.Bounds()
	canvas := imaging.New(bounds.Dx(), bounds.Dy(), color.NRGBA{A: 255})
	flat := imaging.Overlay(canvas, fitted, image.Pt(0, 0), 1.0)

	if err := imaging.Save(flat, dest, imaging.JPEGQuality(90)); err != nil {
		return fmt.Errorf("save cover to %s: %w", dest, err)
	}

	log.Info().Str("path", dest).Msg("Manual cover installed")
	return nil
}

// FromURL downloads an image and installs it like FromFile. The download
// lands in a temp file that is removed no matter how the install goes.
func (u *Uploader) FromURL(ctx context.Context, rawURL, dest string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return fmt.Errorf("unsupported cover url %q", rawURL)
	}

	tmp, err := os.CreateTemp("", "kapsel-upload-*.img")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	err = retry.Do(
		func() error {
			if err := ctx.Err(); err != nil {
				return retry.Unrecoverable(err)
			}
			return u.cache.Download(ctx, rawURL, tmpPath)
		},
		retry.Attempts(3),
		retry.Delay(500*time.Millisecond),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return fmt.Errorf("download cover from %s: %w", rawURL, err)
	}

	return u.FromFile(tmpPath, dest)
}
