package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/meigma/packfs"
)

func newPackCommand(g *globals) *cobra.Command {
	var (
		format     string
		skipHidden bool
		minSavings int
	)
	cmd := &cobra.Command{
		Use:   "pack <dir> <archive>",
		Short: "Create an archive from a directory",
		Long: `Create an archive holding every regular file below dir.

When archive has no extension, the format's default extension is added.
An existing archive is replaced only once the new one is complete.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := g.provider(format)
			if err != nil {
				return err
			}
			opts, err := g.options()
			if err != nil {
				return err
			}
			opts = append(opts, packfs.WithMinSavings(minSavings))
			fsys, err := packfs.New(p, opts...)
			if err != nil {
				return err
			}
			defer fsys.Close()

			ctx := cmd.Context()
			n, err := fsys.Import(ctx, args[0], packfs.ImportWithSkipHidden(skipHidden))
			if err != nil {
				return err
			}
			if err := fsys.Save(ctx, args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "packed %d files into %s (%s)\n", n, fsys.ArchivePath(), p.Name())
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "bzip2", "archive format")
	cmd.Flags().BoolVar(&skipHidden, "skip-hidden", false, "skip files and directories starting with a dot")
	cmd.Flags().IntVar(&minSavings, "min-savings", packfs.DefaultMinSavings, "bytes compression must save to store a file compressed")
	return cmd
}

func newUnpackCommand(g *globals) *cobra.Command {
	var overwrite, preserveTimes bool
	cmd := &cobra.Command{
		Use:   "unpack <archive> <dir>",
		Short: "Extract every file of an archive",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			fsys, err := g.open(ctx, args[0])
			if err != nil {
				return err
			}
			defer fsys.Close()

			n, err := fsys.Extract(ctx, args[1],
				packfs.ExtractWithOverwrite(overwrite),
				packfs.ExtractWithPreserveTimes(preserveTimes))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "extracted %d files to %s\n", n, args[1])
			return nil
		},
	}
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace existing files")
	cmd.Flags().BoolVar(&preserveTimes, "preserve-times", true, "set modification times from the archive")
	return cmd
}

func newListCommand(g *globals) *cobra.Command {
	var pattern string
	cmd := &cobra.Command{
		Use:   "list <archive> [dir]",
		Short: "List the files of an archive",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fsys, err := g.open(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer fsys.Close()

			dir := packfs.Separator
			if len(args) == 2 {
				dir = args[1]
			}
			files, err := fsys.FindFiles(dir, pattern, true)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', tabwriter.AlignRight)
			fmt.Fprintln(tw, "SIZE\tSTORED\tMODIFIED\tPATH\t")
			for _, f := range files {
				mod := "-"
				if !f.ModTime.IsZero() {
					mod = f.ModTime.Format("2006-01-02 15:04")
				}
				fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t\n", f.Size, f.StoredSize(), mod, f.FullPath())
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&pattern, "match", "m", "*", "only list files whose names match this pattern")
	return cmd
}

func newCatCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "cat <archive> <path>...",
		Short: "Write decoded file contents to stdout",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fsys, err := g.open(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer fsys.Close()

			for _, name := range args[1:] {
				data, err := fsys.ReadFile(name)
				if err != nil {
					return err
				}
				if _, err := cmd.OutOrStdout().Write(data); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newInfoCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "info <archive>",
		Short: "Describe an archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fsys, err := g.open(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer fsys.Close()

			var size int64
			files := fsys.Files()
			compressed := 0
			for _, f := range files {
				size += f.Size
				if f.IsCompressed() {
					compressed++
				}
			}
			dirs := -1 // root
			for range fsys.Root().AllDirs() {
				dirs++
			}
			p := fsys.Provider()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "format:      %s (%s)\n", p.Name(), p.Description())
			fmt.Fprintf(out, "header:      %q\n", p.ID())
			fmt.Fprintf(out, "directories: %d\n", dirs)
			fmt.Fprintf(out, "files:       %d (%d compressed)\n", len(files), compressed)
			fmt.Fprintf(out, "size:        %d bytes\n", size)
			fmt.Fprintf(out, "stored:      %d bytes\n", fsys.Size())
			return nil
		},
	}
}

func newProvidersCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List the supported archive formats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tEXTENSION\tHEADER\tDESCRIPTION")
			for _, p := range g.registry.Providers() {
				fmt.Fprintf(tw, "%s\t%s\t%q\t%s\n", p.Name(), p.Extension(), p.ID(), p.Description())
			}
			return tw.Flush()
		},
	}
}
