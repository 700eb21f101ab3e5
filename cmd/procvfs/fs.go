package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/procvfs/pkg/plugins"
	"github.com/platinummonkey/procvfs/pkg/vfs"
)

func newModulesCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "modules",
		Short: "List registered modules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.open(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer e.Close()

			modules := e.fs.Modules()
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(modules)
			}
			return printModules(cmd.OutOrStdout(), modules)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print modules as JSON")
	return cmd
}

func printModules(out io.Writer, modules []plugins.ModuleInfo) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSCOPE\tCAPABILITIES\tSOURCE")
	for _, m := range modules {
		source := m.Library
		if m.Builtin {
			source = "built-in"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", m.Name, m.Scope, m.Capabilities, source)
	}
	return tw.Flush()
}

func newLsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ls [path]",
		Short: "List a directory of the virtual file system",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/"
			if len(args) == 1 {
				path = args[0]
			}

			e, err := a.open(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer e.Close()

			entries, err := e.fs.List(cmd.Context(), path)
			if err != nil {
				return fmt.Errorf("ls %s: %w", path, err)
			}
			return printEntries(cmd.OutOrStdout(), entries)
		},
	}
}

func printEntries(out io.Writer, entries plugins.Entries) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', tabwriter.AlignRight)
	for _, entry := range entries {
		if entry.IsDir {
			fmt.Fprintf(tw, "-\t %s/\n", entry.Name)
			continue
		}
		fmt.Fprintf(tw, "%d\t %s\n", entry.Size, entry.Name)
	}
	return tw.Flush()
}

func newCatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cat <path>",
		Short: "Print a file of the virtual file system",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.open(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer e.Close()

			data, err := e.fs.ReadFile(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("cat %s: %w", args[0], err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newWriteCmd(a *app) *cobra.Command {
	var offset uint64

	cmd := &cobra.Command{
		Use:   "write <path> [data]",
		Short: "Write to a file of the virtual file system",
		Long:  `Write data to a file. Without a data argument the content is read from standard input.`,
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data []byte
			if len(args) == 2 {
				data = []byte(args[1])
			} else {
				var err error
				data, err = io.ReadAll(io.LimitReader(cmd.InOrStdin(), vfs.MaxFileSize+1))
				if err != nil {
					return fmt.Errorf("reading input: %w", err)
				}
				if len(data) > vfs.MaxFileSize {
					return vfs.ErrFileTooLarge
				}
			}

			e, err := a.open(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer e.Close()

			n, err := e.fs.Write(cmd.Context(), args[0], data, offset)
			if err != nil {
				return fmt.Errorf("write %s: %w", args[0], err)
			}
			if n < len(data) {
				return fmt.Errorf("write %s: short write (%d of %d bytes)", args[0], n, len(data))
			}
			return nil
		},
	}

	cmd.Flags().Uint64Var(&offset, "offset", 0, "byte offset to write at")
	return cmd
}
