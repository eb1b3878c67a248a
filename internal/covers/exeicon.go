// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package covers

import (
	"bytes"
	"encoding/binary"
	"image/color"
	"os"

	"github.com/disintegration/imaging"
	"github.com/mat/besticon/v3/ico"
	"github.com/rs/zerolog/log"
	"github.com/tc-hib/winres"
)

// grpIconEntry mirrors one GRPICONDIRENTRY from a PE resource section.
// The final field is a resource id there; in an ICO file the same slot
// holds a file offset instead.
type grpIconEntry struct {
	Width      uint8
	Height     uint8
	ColorCount uint8
	Reserved   uint8
	Planes     uint16
	BitCount   uint16
	BytesInRes uint32
	ID         uint16
}

// ExtractIcon pulls the application icon out of a Windows executable and
// renders it as a cover image at dest. This is the last-resort tier, kept
// deliberately forgiving: any parse failure reports a miss.
func ExtractIcon(exePath, dest string) bool {
	if exePath == "" {
		return false
	}

	f, err := os.Open(exePath)
	if err != nil {
		return false
	}
	defer f.Close()

	rs, err := winres.LoadFromEXE(f)
	if err != nil {
		log.Debug().Err(err).Str("exe", exePath).Msg("Executable has no readable resources")
		return false
	}

	entry, iconData := largestIcon(rs)
	if iconData == nil {
		return false
	}

	icoFile := buildICO(entry, iconData)

	img, err := ico.Decode(bytes.NewReader(icoFile))
	if err != nil {
		log.Debug().Err(err).Str("exe", exePath).Msg("Icon data failed to decode")
		return false
	}

	// Icons are small squares; upscale and center them on a dark
	// portrait canvas so the result shelves like a real cover.
	canvas := imaging.New(600, 900, color.NRGBA{R: 16, G: 16, B: 16, A: 255})
	scaled := imaging.Resize(img, 512, 0, imaging.Lanczos)
	canvas = imaging.PasteCenter(canvas, scaled)

	if err := imaging.Save(canvas, dest, imaging.JPEGQuality(90)); err != nil {
		log.Debug().Err(err).Str("dest", dest).Msg("Icon cover failed to save")
		return false
	}

	return ValidFile(dest)
}

// largestIcon walks the first icon group and returns the directory entry
// with the biggest pixel dimensions along with its raw image data.
func largestIcon(rs *winres.ResourceSet) (grpIconEntry, []byte) {
	var group []byte
	rs.WalkType(winres.RT_GROUP_ICON, func(resID winres.Identifier, langID uint16, data []byte) bool {
		group = data
		return false
	})
	if len(group) < 6 {
		return grpIconEntry{}, nil
	}

	count := binary.LittleEndian.Uint16(group[4:6])
	if count == 0 {
		return grpIconEntry{}, nil
	}

	var best grpIconEntry
	bestSize := -1
	for i := 0; i < int(count); i++ {
		off := 6 + i*14
		if off+14 > len(group) {
			break
		}

		var entry grpIconEntry
		if err := binary.Read(bytes.NewReader(group[off:off+14]), binary.LittleEndian, &entry); err != nil {
			break
		}

		// Zero encodes 256 pixels.
		width := int(entry.Width)
		if width == 0 {
			width = 256
		}
		if width > bestSize {
			bestSize = width
			best = entry
		}
	}
	if bestSize < 0 {
		return grpIconEntry{}, nil
	}

	var iconData []byte
	rs.WalkType(winres.RT_ICON, func(resID winres.Identifier, langID uint16, data []byte) bool {
		if id, ok := resID.(winres.ID); ok && uint16(id) == best.ID {
			iconData = data
			return false
		}
		return true
	})

	return best, iconData
}

// buildICO wraps a single raw icon image in a minimal ICO container so a
// standard decoder can read it. The layout is the 6-byte ICONDIR header,
// one 16-byte entry whose trailing field is the image offset, then the
// image bytes.
func buildICO(entry grpIconEntry, iconData []byte) []byte {
	var buf bytes.Buffer

	binary.Write(&buf, binary.LittleEndian, uint16(0)) // reserved
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // type: icon
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // image count

	binary.Write(&buf, binary.LittleEndian, entry.Width)
	binary.Write(&buf, binary.LittleEndian, entry.Height)
	binary.Write(&buf, binary.LittleEndian, entry.ColorCount)
	binary.Write(&buf, binary.LittleEndian, entry.Reserved)
	binary.Write(&buf, binary.LittleEndian, entry.Planes)
	binary.Write(&buf, binary.LittleEndian, entry.BitCount)
	binary.Write(&buf, binary.LittleEndian, uint32(len(iconData)))
	binary.Write(&buf, binary.LittleEndian, uint32(6+16)) // image offset

	buf.Write(iconData)
	return buf.Bytes()
}
