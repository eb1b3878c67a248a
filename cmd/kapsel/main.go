// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kapsel-sh/kapsel/internal/api"
	"github.com/kapsel-sh/kapsel/internal/buildinfo"
	"github.com/kapsel-sh/kapsel/internal/config"
	"github.com/kapsel-sh/kapsel/internal/covers"
	"github.com/kapsel-sh/kapsel/internal/discovery"
	"github.com/kapsel-sh/kapsel/internal/domain"
	"github.com/kapsel-sh/kapsel/internal/library"
)

func main() {
	config.InitDefaultLogger()

	var rootCmd = &cobra.Command{
		Use:   "kapsel",
		Short: "Game cover art resolver and library manager",
		Long: `kapsel - finds, caches and serves cover art for your game library,
falling back through SteamGridDB, the Steam CDN, RAWG, storefront search,
image search and executable icons until something sticks.`,
	}

	rootCmd.Version = buildinfo.Version

	rootCmd.AddCommand(RunServeCommand())
	rootCmd.AddCommand(RunScanCommand())
	rootCmd.AddCommand(RunResolveCommand())
	rootCmd.AddCommand(RunRefreshCommand())
	rootCmd.AddCommand(RunValidateCommand())
	rootCmd.AddCommand(RunUploadCommand())
	rootCmd.AddCommand(RunVersionCommand(buildinfo.Version))
	rootCmd.AddCommand(RunGenerateConfigCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig initializes configuration for a command, honoring the shared
// --config-dir and --data-dir flags.
func loadConfig(configDir, dataDir string) (*config.AppConfig, error) {
	cfg, err := config.New(configDir, buildinfo.Version)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize configuration")
	}

	if dataDir != "" {
		os.Setenv("KAPSEL__DATA_DIR", dataDir)
		cfg.SetDataDir(dataDir)
	}

	cfg.ApplyLogConfig()
	return cfg, nil
}

// toolkit is the set of cover services every command works with.
type toolkit struct {
	cfg      *config.AppConfig
	cache    *covers.Cache
	store    *library.Store
	resolver *covers.Resolver
}

func newToolkit(configDir, dataDir string) (*toolkit, error) {
	cfg, err := loadConfig(configDir, dataDir)
	if err != nil {
		return nil, err
	}

	cache, err := covers.NewCache(cfg.GetCacheDir())
	if err != nil {
		return nil, errors.Wrap(err, "failed to prepare cover cache")
	}

	return &toolkit{
		cfg:      cfg,
		cache:    cache,
		store:    library.NewStore(cfg.GetLibraryPath()),
		resolver: covers.NewResolver(cache, resolverConfig(cfg.Config)),
	}, nil
}

func resolverConfig(cfg *domain.Config) covers.Config {
	return covers.Config{
		SteamGridDBKey: cfg.SteamGridDBKey,
		RAWGKey:        cfg.RAWGKey,
	}
}

func (tk *toolkit) validator() *covers.Validator {
	return covers.NewValidator(tk.cache, tk.store, tk.resolver)
}

func RunServeCommand() *cobra.Command {
	var (
		configDir string
		dataDir   string
		logPath   string
	)

	var command = &cobra.Command{
		Use:   "serve",
		Short: "Start the cover API server",
	}

	command.Flags().StringVar(&configDir, "config-dir", "", "config directory path (default is OS-specific: ~/.config/kapsel/ or %APPDATA%\\kapsel\\). Can also be a direct path to a .toml file")
	command.Flags().StringVar(&dataDir, "data-dir", "", "data directory for the library file and cover cache (default is next to config file)")
	command.Flags().StringVar(&logPath, "log-path", "", "log file path (default is stdout)")

	command.Run = func(cmd *cobra.Command, args []string) {
		runServer(configDir, dataDir, logPath)
	}

	return command
}

func runServer(configDir, dataDir, logPath string) {
	tk, err := newToolkit(configDir, dataDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize")
	}

	if logPath != "" {
		os.Setenv("KAPSEL__LOG_PATH", logPath)
		tk.cfg.Config.LogPath = logPath
		tk.cfg.ApplyLogConfig()
	}

	log.Info().Str("version", buildinfo.Version).Msg("Starting kapsel")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	queue := covers.NewQueue(tk.resolver)
	queue.Start(ctx)

	// Credential changes take effect on the next resolve without a restart.
	tk.cfg.RegisterReloadListener(func(cfg *domain.Config) {
		queue.SetResolver(covers.NewResolver(tk.cache, resolverConfig(cfg)))
		log.Info().Msg("Resolver rebuilt after config reload")
	})

	httpServer := api.NewServer(&api.Dependencies{
		Config:    tk.cfg,
		Version:   buildinfo.Version,
		Queue:     queue,
		Store:     tk.store,
		Cache:     tk.cache,
		Validator: tk.validator(),
		Uploader:  covers.NewUploader(tk.cache),
	})

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		log.Fatal().Err(err).Msg("API server failed")
	case <-ctx.Done():
		log.Info().Msg("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}
}

func RunScanCommand() *cobra.Command {
	var (
		configDir  string
		dataDir    string
		skipCovers bool
	)

	var command = &cobra.Command{
		Use:   "scan",
		Short: "Discover installed games and fetch missing covers",
		RunE: func(cmd *cobra.Command, args []string) error {
			tk, err := newToolkit(configDir, dataDir)
			if err != nil {
				return err
			}

			var found []discovery.Candidate
			if tk.cfg.Config.SteamDir != "" {
				found = append(found, discovery.NewSteamScanner(tk.cfg.Config.SteamDir).Scan()...)
			}
			if len(tk.cfg.Config.ScanPaths) > 0 {
				found = append(found, discovery.NewDiskScanner(tk.cfg.Config.ScanPaths).Scan()...)
			}
			if len(found) == 0 {
				cmd.Println("No games found. Configure steamDir or scanPaths first.")
				return nil
			}

			games, added, err := tk.store.Merge(discovery.ToGames(found))
			if err != nil {
				return errors.Wrap(err, "failed to update game library")
			}
			cmd.Printf("Found %d games (%d new), library now holds %d entries\n", len(found), added, len(games))

			if skipCovers {
				return nil
			}

			_, fetched, err := tk.validator().Restore(cmd.Context())
			if err != nil {
				return errors.Wrap(err, "failed to fetch covers")
			}
			cmd.Printf("Fetched %d covers\n", fetched)
			return nil
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "", "config directory or file path")
	command.Flags().StringVar(&dataDir, "data-dir", "", "data directory for the library file and cover cache")
	command.Flags().BoolVar(&skipCovers, "skip-covers", false, "only update the library, do not fetch covers")

	return command
}

func RunResolveCommand() *cobra.Command {
	var (
		configDir string
		dataDir   string
		appID     string
		exePath   string
	)

	var command = &cobra.Command{
		Use:   "resolve <title>",
		Short: "Resolve a cover for an arbitrary title",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tk, err := newToolkit(configDir, dataDir)
			if err != nil {
				return err
			}

			res := tk.resolver.Resolve(cmd.Context(), covers.Request{
				Title:   args[0],
				AppID:   appID,
				ExePath: exePath,
			})
			return printJSON(cmd, res)
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "", "config directory or file path")
	command.Flags().StringVar(&dataDir, "data-dir", "", "data directory for the library file and cover cache")
	command.Flags().StringVar(&appID, "app-id", "", "Steam app id, if known")
	command.Flags().StringVar(&exePath, "exe", "", "executable path for icon fallback")

	return command
}

func RunRefreshCommand() *cobra.Command {
	var (
		configDir string
		dataDir   string
	)

	var command = &cobra.Command{
		Use:   "refresh <uid>",
		Short: "Discard a library game's cached cover and resolve it again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tk, err := newToolkit(configDir, dataDir)
			if err != nil {
				return err
			}

			game, err := tk.store.FindByUID(args[0])
			if err != nil {
				return errors.Wrap(err, "failed to read game library")
			}
			if game == nil {
				return fmt.Errorf("no game with uid %s in the library", args[0])
			}

			res := tk.resolver.Refresh(cmd.Context(), covers.Request{
				Title:   game.Title,
				AppID:   game.AppID,
				ExePath: game.ExePath,
			})
			return printJSON(cmd, res)
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "", "config directory or file path")
	command.Flags().StringVar(&dataDir, "data-dir", "", "data directory for the library file and cover cache")

	return command
}

func RunValidateCommand() *cobra.Command {
	var (
		configDir string
		dataDir   string
	)

	var command = &cobra.Command{
		Use:   "validate",
		Short: "Repair broken covers and sweep orphaned cache files",
		RunE: func(cmd *cobra.Command, args []string) error {
			tk, err := newToolkit(configDir, dataDir)
			if err != nil {
				return err
			}
			v := tk.validator()

			repaired, fetched, err := v.Restore(cmd.Context())
			if err != nil {
				return errors.Wrap(err, "failed to restore covers")
			}

			removed, total, err := v.SweepOrphans()
			if err != nil {
				return errors.Wrap(err, "failed to sweep cover cache")
			}

			cmd.Printf("Cleared %d broken references, fetched %d covers, removed %d orphans out of %d cache files\n", repaired, fetched, removed, total)
			return nil
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "", "config directory or file path")
	command.Flags().StringVar(&dataDir, "data-dir", "", "data directory for the library file and cover cache")

	return command
}

func RunUploadCommand() *cobra.Command {
	var (
		configDir string
		dataDir   string
	)

	var command = &cobra.Command{
		Use:   "upload <uid> <file-or-url>",
		Short: "Install a cover for a library game from a file or URL",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tk, err := newToolkit(configDir, dataDir)
			if err != nil {
				return err
			}

			game, err := tk.store.FindByUID(args[0])
			if err != nil {
				return errors.Wrap(err, "failed to read game library")
			}
			if game == nil {
				return fmt.Errorf("no game with uid %s in the library", args[0])
			}

			dest := tk.cache.PathFor(covers.CacheKey(game.Title, game.AppID))
			uploader := covers.NewUploader(tk.cache)

			source := args[1]
			if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
				err = uploader.FromURL(cmd.Context(), source, dest)
			} else {
				err = uploader.FromFile(source, dest)
			}
			if err != nil {
				return errors.Wrap(err, "failed to install cover")
			}

			cmd.Printf("Cover installed at %s\n", dest)
			return nil
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "", "config directory or file path")
	command.Flags().StringVar(&dataDir, "data-dir", "", "data directory for the library file and cover cache")

	return command
}

func RunVersionCommand(version string) *cobra.Command {
	var command = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of kapsel",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}

	return command
}

func RunGenerateConfigCommand() *cobra.Command {
	var configDir string

	command := &cobra.Command{
		Use:   "generate-config",
		Short: "Generate a default configuration file",
		Long: `Generate a default configuration file without starting the server.

If no --config-dir is specified, uses the OS-specific default location:
- Linux/macOS: ~/.config/kapsel/config.toml
- Windows: %APPDATA%\kapsel\config.toml

You can specify either a directory path or a direct file path:
- Directory: kapsel generate-config --config-dir /path/to/config/
- File: kapsel generate-config --config-dir /path/to/myconfig.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var configPath string
			if configDir != "" {
				if strings.HasSuffix(strings.ToLower(configDir), ".toml") {
					configPath = configDir
				} else if info, err := os.Stat(configDir); err == nil && !info.IsDir() {
					configPath = configDir
				} else {
					configPath = filepath.Join(configDir, "config.toml")
				}
			} else {
				defaultDir := config.GetDefaultConfigDir()
				configPath = filepath.Join(defaultDir, "config.toml")
			}

			if _, err := os.Stat(configPath); err == nil {
				cmd.Printf("Configuration file already exists at: %s\n", configPath)
				cmd.Println("Skipping generation to avoid overwriting existing configuration.")
				return nil
			}

			if err := config.WriteDefaultConfig(configPath); err != nil {
				return fmt.Errorf("failed to create configuration file: %w", err)
			}

			cmd.Printf("Configuration file created successfully at: %s\n", configPath)
			return nil
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "",
		"config directory or file path (defaults to OS-specific location)")

	return command
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	cmd.Println(string(data))
	return nil
}
