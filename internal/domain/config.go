// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

// Config is the unmarshaled application configuration.
type Config struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	LogLevel       string   `mapstructure:"logLevel"`
	LogPath        string   `mapstructure:"logPath"`
	LogMaxSize     int      `mapstructure:"logMaxSize"`
	LogMaxBackups  int      `mapstructure:"logMaxBackups"`
	DataDir        string   `mapstructure:"dataDir"`
	CacheDir       string   `mapstructure:"cacheDir"`
	SteamGridDBKey string   `mapstructure:"steamGridDBApiKey"`
	RAWGKey        string   `mapstructure:"rawgApiKey"`
	SteamDir       string   `mapstructure:"steamDir"`
	ScanPaths      []string `mapstructure:"scanPaths"`

	Version string
}
