package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/meigma/packfs"
	"github.com/meigma/packfs/cache/disk"
	packhttp "github.com/meigma/packfs/http"
	"github.com/meigma/packfs/providers"
)

// globals holds the persistent flags shared by every command.
type globals struct {
	verbose  bool
	progress bool
	cacheDir string
	logger   *slog.Logger
	registry *packfs.Registry
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	g := &globals{registry: providers.Default()}

	root := &cobra.Command{
		Use:   "packfs",
		Short: "Work with packed file system archives",
		Long: `packfs creates, inspects, and extracts packed file system archives.

Archives are detected by their header, so every command accepts any
supported format. Archive arguments may be local paths or http(s) URLs;
remote archives are read with range requests.

Examples:
  packfs pack ./assets assets.gorPack
  packfs list assets.gorPack
  packfs cat https://example.com/assets.gorPack /textures/readme.txt
  packfs unpack assets.gorPack ./out --overwrite`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			g.logger = newLogger(stderr, g.verbose)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().BoolVar(&g.progress, "progress", false, "log progress events")
	root.PersistentFlags().StringVar(&g.cacheDir, "cache-dir", "", "cache decoded payloads of remote archives in this directory")

	root.AddCommand(
		newPackCommand(g),
		newUnpackCommand(g),
		newListCommand(g),
		newCatCommand(g),
		newInfoCommand(g),
		newProvidersCommand(g),
	)
	return root
}

// newLogger returns a slog logger backed by a charm log handler.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := log.InfoLevel
	if verbose {
		level = log.DebugLevel
	}
	handler := log.NewWithOptions(w, log.Options{
		Prefix: "packfs",
		Level:  level,
	})
	return slog.New(handler)
}

// options returns the FileSystem options selected by the global flags.
func (g *globals) options() ([]packfs.Option, error) {
	opts := []packfs.Option{packfs.WithLogger(g.logger)}
	if g.progress {
		opts = append(opts, packfs.WithProgress(func(ev packfs.ProgressEvent) {
			g.logger.Info(ev.Stage.String(),
				"path", ev.Path,
				"files", fmt.Sprintf("%d/%d", ev.FilesDone, ev.FilesTotal),
				"bytes", ev.BytesDone)
		}))
	}
	if g.cacheDir != "" {
		c, err := disk.New(g.cacheDir)
		if err != nil {
			return nil, fmt.Errorf("open cache: %w", err)
		}
		opts = append(opts, packfs.WithCache(c))
	}
	return opts, nil
}

// open detects the format of the archive at location and mounts it.
func (g *globals) open(ctx context.Context, location string) (*packfs.FileSystem, error) {
	opts, err := g.options()
	if err != nil {
		return nil, err
	}
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		src, err := packhttp.NewSource(ctx, location, packhttp.WithLogger(g.logger))
		if err != nil {
			return nil, err
		}
		return g.registry.OpenSource(ctx, src, opts...)
	}
	return g.registry.Open(ctx, location, opts...)
}

// provider returns the provider named by a --format flag.
func (g *globals) provider(name string) (packfs.Provider, error) {
	p, ok := g.registry.Lookup(name)
	if !ok {
		var names []string
		for _, p := range g.registry.Providers() {
			names = append(names, p.Name())
		}
		return nil, fmt.Errorf("unknown format %q (available: %s)", name, strings.Join(names, ", "))
	}
	return p, nil
}
