// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package covers

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// defaultCDNTemplates are tried in order; the vertical library capsule on
// both CDN hosts first, then landscape header art as a last resort. Each
// takes one %s for the app id.
var defaultCDNTemplates = []string{
	"https://cdn.cloudflare.steamstatic.com/steam/apps/%s/library_600x900_2x.jpg",
	"https://cdn.akamai.steamstatic.com/steam/apps/%s/library_600x900_2x.jpg",
	"https://cdn.cloudflare.steamstatic.com/steam/apps/%s/header.jpg",
	"https://cdn.akamai.steamstatic.com/steam/apps/%s/capsule_616x353.jpg",
}

// CDNProbe fetches cover art directly from the Steam content CDNs. No
// auth, no API, just predictable URLs keyed by app id.
type CDNProbe struct {
	templates []string
	cache     *Cache
}

func NewCDNProbe(cache *Cache) *CDNProbe {
	return &CDNProbe{
		templates: defaultCDNTemplates,
		cache:     cache,
	}
}

// SetTemplates overrides the probe URLs, used by tests.
func (p *CDNProbe) SetTemplates(templates []string) {
	p.templates = templates
}

// Fetch tries each CDN template in order and stops at the first URL that
// yields a valid image at dest. Returns false when every template misses.
func (p *CDNProbe) Fetch(ctx context.Context, appID, dest string) bool {
	if appID == "" {
		return false
	}

	for _, template := range p.templates {
		if ctx.Err() != nil {
			return false
		}

		url := fmt.Sprintf(template, appID)
		if err := p.cache.Download(ctx, url, dest); err != nil {
			log.Trace().Err(err).Str("url", url).Msg("CDN probe miss")
			continue
		}
		if ValidFile(dest) {
			log.Debug().Str("appId", appID).Str("url", url).Msg("Cover fetched from Steam CDN")
			return true
		}
	}

	return false
}
