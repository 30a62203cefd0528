package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/platinummonkey/plughost/pkg/archive"
	"github.com/platinummonkey/plughost/pkg/catalog"
	"github.com/platinummonkey/plughost/pkg/registry"
)

func newScanCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "scan <plugin-dir>",
		Short: "Validate the plugins of a directory without serving them",
		Long: `Scan loads every plugin directory the way the server does at startup and
reports the ones that would be skipped: missing or corrupt plugin.json,
unknown handler kinds and duplicate ids.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, args[0], cmd.OutOrStdout())
		},
	}
}

func runScan(cmd *cobra.Command, dir string, out io.Writer) error {
	log := logrus.New()
	log.SetOutput(io.Discard)

	reg, err := registry.New(registry.Config{
		Root:       dir,
		ScanPolicy: registry.ScanContinue,
		Logger:     log,
	}, catalog.NewMemoryStore())
	if err != nil {
		return err
	}
	defer reg.Close()

	if _, err := os.Stat(reg.Root()); err != nil {
		return fmt.Errorf("%w: %v", registry.ErrRootUnavailable, err)
	}
	scanErr := reg.Scan(cmd.Context())

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tVERSION\tFOLDER")
	for _, p := range reg.List() {
		m := p.Manifest()
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", m.ID, m.Name, m.Version, filepath.Base(p.SourcePath()))
	}
	tw.Flush()

	if scanErr != nil {
		fmt.Fprintf(out, "\nInvalid plugin directories:\n%v\n", scanErr)
		return fmt.Errorf("plugin directory %s has invalid plugins", dir)
	}
	return nil
}

func newPackCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "pack <plugin-dir> <archive.zip>",
		Short: "Package a plugin directory as an uploadable archive",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := archive.Pack(args[0])
			if err != nil {
				return err
			}
			if err := os.WriteFile(args[1], data, 0644); err != nil {
				return fmt.Errorf("failed to write archive: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", args[1], len(data))
			return nil
		},
	}
}
