package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/0x6d61/wavs/internal/payload"
	"github.com/0x6d61/wavs/internal/store"
)

func newDatabaseCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "database",
		Short: "Maintain the scan and payload databases",
	}

	resetCounts := &cobra.Command{
		Use:   "reset-counts",
		Short: "Zero every payload success count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.resetCounts(cmd)
		},
	}
	resetScans := &cobra.Command{
		Use:   "reset-scans",
		Short: "Delete all scan history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.resetScans(cmd)
		},
	}
	reset := &cobra.Command{
		Use:   "reset",
		Short: "Delete scan history and zero payload counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.resetScans(cmd); err != nil {
				return err
			}
			return a.resetCounts(cmd)
		},
	}
	importCmd := &cobra.Command{
		Use:   "import <list> <file>",
		Short: "Add one payload or word per line of file to a list",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.importList(cmd, args[0], args[1])
		},
	}

	cmd.AddCommand(resetCounts, resetScans, reset, importCmd)
	return cmd
}

func (a *app) resetCounts(cmd *cobra.Command) error {
	pm, err := payload.Open(a.cfg.Payload.Path)
	if err != nil {
		return err
	}
	defer pm.Close()
	if err := pm.ResetCounts(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "[*] Payload counts reset.")
	return nil
}

func (a *app) resetScans(cmd *cobra.Command) error {
	st, err := store.NewSQLiteStore(a.cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.ResetScans(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "[*] Scan history deleted.")
	return nil
}

func (a *app) importList(cmd *cobra.Command, list, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var values []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			values = append(values, line)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	pm, err := payload.Open(a.cfg.Payload.Path)
	if err != nil {
		return err
	}
	defer pm.Close()

	n, err := pm.Add(cmd.Context(), list, values)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "[*] Imported %d new entries into %s (%d read).\n", n, list, len(values))
	return nil
}
