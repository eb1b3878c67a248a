// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package buildinfo

import "fmt"

// Version is set during build via ldflags: -X .../internal/buildinfo.Version=v1.2.3
var (
	Version = "dev"

	UserAgent = fmt.Sprintf("kapsel/%s", Version)
)
