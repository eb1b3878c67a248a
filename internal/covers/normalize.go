// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package covers

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// junkTokens is the fixed vocabulary stripped from titles before lookup.
// Matched case-insensitively as whole tokens.
var junkTokens = []string{
	// Release group tags
	`TENOKE`, `RUNE`, `DODI`, `FitGirl`, `Repack`, `EMPRESS`,
	`CODEX`, `SKIDROW`, `CPY`, `PLAZA`, `HOODLUM`, `RAZOR1911`,
	`TiNYiSO`, `PROPHET`, `DARKSiDERS`, `ANOMALY`, `SiMPLEX`,

	// Platform/store tags
	`GOG`, `Portable`, `Steam`, `Epic`,

	// Version patterns
	`v\d+(?:\.\d+)*[a-z]?`, `Build\s*\d+`, `Update\s*\d+`,

	// Technical tags
	`DX11`, `DX12`, `x64`, `x86`, `Multi\d+`, `DLC`,
	`VR`, `HDR`, `4K`, `UHD`,

	// Edition tags, longer phrases first so alternation eats them whole
	`GOTY Edition`, `GOTY`,
	`Game of the Year Edition`, `Game of the Year`,
	`Enhanced Edition`, `Definitive Edition`, `Complete Edition`,
	`Ultimate Edition`, `Deluxe Edition`, `Premium Edition`,
	`Gold Edition`, `Legendary Edition`, `Anniversary Edition`,

	// Status tags
	`Early Access`, `Demo`, `Alpha`, `Beta`, `Preview`,
}

var (
	junkRe    = regexp.MustCompile(`(?i)\b(?:` + strings.Join(junkTokens, `|`) + `)\b`)
	bracketRe = regexp.MustCompile(`\[[^\]]*\]`)
	parenRe   = regexp.MustCompile(`\([^)]*\)`)
	edgeSepRe = regexp.MustCompile(`^[\s\-–—_.:]+|[\s\-–—_.:]+$`)
)

// Normalize reduces a raw title to its canonical search string: release
// tags, version tokens, edition phrases and bracketed noise removed,
// whitespace collapsed. Idempotent; input with nothing to strip comes back
// unchanged modulo whitespace collapse.
func Normalize(title string) string {
	n := norm.NFC.String(title)

	// Underscores break \b token matching, swap them out first. Dots stay
	// until after the junk pass so version tokens like v1.2 match whole.
	n = strings.ReplaceAll(n, "_", " ")

	n = junkRe.ReplaceAllString(n, "")
	n = bracketRe.ReplaceAllString(n, "")
	n = parenRe.ReplaceAllString(n, "")

	n = strings.ReplaceAll(n, ".", " ")
	n = junkRe.ReplaceAllString(n, "")

	n = edgeSepRe.ReplaceAllString(n, "")

	return strings.Join(strings.Fields(n), " ")
}
