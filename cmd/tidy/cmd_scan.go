package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/knight-systems/productivity-service/tidy"
)

var scanApply bool

func init() {
	scanVaultCmd.Flags().BoolVar(&scanApply, "apply", false, "move the notes immediately instead of leaving plans pending")
	rootCmd.AddCommand(scanVaultCmd)
}

var scanVaultCmd = &cobra.Command{
	Use:   "scan-vault",
	Short: "File loose vault notes into their area folders",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		if cfg.VaultDir == "" {
			return fmt.Errorf("vault_dir is not configured, set it in %s", resolveConfigPath())
		}

		scanner := tidy.NewVaultScanner(cfg.VaultDir, store, log.StandardLogger())
		result, err := scanner.Scan()
		if err != nil {
			return err
		}
		fmt.Printf("%d notes scanned, %d plans, %d skipped\n",
			result.Scanned, len(result.Planned), result.Skipped)
		if len(result.Planned) == 0 {
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNOTE\tDESTINATION\tCONF")
		for i := range result.Planned {
			p := &result.Planned[i]
			rel, err := filepath.Rel(cfg.VaultDir, p.Destination)
			if err != nil {
				rel = p.Destination
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%.0f%%\n", p.ID, p.Filename(), rel, p.Confidence*100)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		if !scanApply {
			fmt.Println("run with --apply to move them, or approve individual plans")
			return nil
		}

		e := tidy.NewExecutor(store, cfg.TrashDir, cfg.ArchiveDir, false, log.StandardLogger())
		failed := 0
		for i := range result.Planned {
			p := &result.Planned[i]
			if err := store.SetStatus(p.ID, tidy.StatusApproved, ""); err != nil {
				return err
			}
			p.Status = tidy.StatusApproved
			if _, err := e.Execute(p); err != nil {
				failed++
				fmt.Printf("%s: %v\n", p.ID, err)
			}
		}
		fmt.Printf("%d notes filed, %d failed\n", len(result.Planned)-failed, failed)
		return nil
	},
}
