package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/knight-systems/productivity-service/tidy"
)

var (
	rejectDestination string
	executeDryRun     bool
	executeID         string
	historyLimit      int
	historyStatus     string
	cleanupDays       int
)

func init() {
	rejectCmd.Flags().StringVar(&rejectDestination, "destination", "",
		"correct destination (Domain/Subfolder, an area folder, or 'archive')")
	executeCmd.Flags().BoolVar(&executeDryRun, "dry-run", false, "report what would happen without touching anything")
	executeCmd.Flags().StringVar(&executeID, "id", "", "execute a single plan")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of plans to show")
	historyCmd.Flags().StringVar(&historyStatus, "status", "", "filter by status")
	cleanupCmd.Flags().IntVar(&cleanupDays, "days", 30, "remove finished plans older than this many days")

	rootCmd.AddCommand(pendingCmd, showCmd, approveCmd, rejectCmd, executeCmd,
		historyCmd, summaryCmd, cleanupCmd)
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List plans waiting for review",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		plans, err := store.PlansByStatus(tidy.StatusPending)
		if err != nil {
			return err
		}
		if len(plans) == 0 {
			fmt.Println("No pending plans.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tFILE\tACTION\tDESTINATION\tCONF")
		for i := range plans {
			p := &plans[i]
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.0f%%\n",
				p.ID, p.Filename(), p.Action, destColumn(p), p.Confidence*100)
		}
		return w.Flush()
	},
}

func destColumn(p *tidy.Plan) string {
	switch p.Action {
	case tidy.ActionDelete:
		return "trash"
	case tidy.ActionSkip:
		return "-"
	}
	if p.Domain == "" {
		return "needs review"
	}
	if p.Subfolder != "" {
		return p.Domain + "/" + p.Subfolder
	}
	return p.Domain
}

var showCmd = &cobra.Command{
	Use:   "show <plan-id>",
	Short: "Show one plan in full",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		p, err := store.Plan(args[0])
		if err != nil {
			return err
		}
		if p == nil {
			return fmt.Errorf("plan %s not found", args[0])
		}
		fmt.Printf("id:          %s\n", p.ID)
		fmt.Printf("file:        %s\n", p.SourcePath)
		fmt.Printf("action:      %s\n", p.Action)
		if p.Destination != "" {
			fmt.Printf("destination: %s\n", p.Destination)
		}
		fmt.Printf("category:    %s\n", p.Category)
		fmt.Printf("confidence:  %.0f%% (%s)\n", p.Confidence*100, p.Source)
		fmt.Printf("reason:      %s\n", p.Reason)
		fmt.Printf("status:      %s\n", p.Status)
		fmt.Printf("size:        %s\n", humanBytes(p.SizeBytes))
		fmt.Printf("created:     %s\n", p.CreatedAt.Local().Format("2006-01-02 15:04"))
		if !p.ExecutedAt.IsZero() {
			fmt.Printf("executed:    %s\n", p.ExecutedAt.Local().Format("2006-01-02 15:04"))
		}
		if p.Error != "" {
			fmt.Printf("error:       %s\n", p.Error)
		}
		return nil
	},
}

var approveCmd = &cobra.Command{
	Use:   "approve <plan-id>...",
	Short: "Approve plans for execution",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		for _, id := range args {
			p, err := store.Plan(id)
			if err != nil {
				return err
			}
			if p == nil {
				return fmt.Errorf("plan %s not found", id)
			}
			if p.Status != tidy.StatusPending {
				return fmt.Errorf("plan %s is %s, not pending", id, p.Status)
			}
			if err := store.SetStatus(id, tidy.StatusApproved, ""); err != nil {
				return err
			}
			fmt.Printf("approved %s (%s %s)\n", id, p.Action, p.Filename())
		}
		return nil
	},
}

var rejectCmd = &cobra.Command{
	Use:   "reject <plan-id>",
	Short: "Reject a plan, optionally teaching the right destination",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		p, err := store.Plan(args[0])
		if err != nil {
			return err
		}
		if p == nil {
			return fmt.Errorf("plan %s not found", args[0])
		}
		if p.Status != tidy.StatusPending && p.Status != tidy.StatusApproved {
			return fmt.Errorf("plan %s is %s and cannot be rejected", args[0], p.Status)
		}
		if err := store.SetStatus(p.ID, tidy.StatusRejected, ""); err != nil {
			return err
		}
		fmt.Printf("rejected %s\n", p.ID)
		if rejectDestination == "" {
			return nil
		}

		action := tidy.ActionMove
		domain, subfolder := "", ""
		if strings.EqualFold(rejectDestination, "archive") {
			action = tidy.ActionArchive
		} else {
			domain, subfolder, err = tidy.ParseDestination(rejectDestination)
			if err != nil {
				return err
			}
		}
		corr := tidy.NewCorrection(p, action, domain, subfolder)
		if err := store.SaveCorrection(corr); err != nil {
			return err
		}
		fmt.Printf("learned: files like %q -> %s\n", corr.Filename, rejectDestination)

		// The rejected file is still sitting there; file a corrected
		// plan for it right away.
		if _, err := os.Stat(p.SourcePath); err != nil {
			return nil
		}
		np := tidy.CorrectedPlan(p, corr, cfg.OrganizedDir, cfg.VaultDir)
		if err := store.SavePlan(np); err != nil {
			return err
		}
		fmt.Printf("new plan %s: %s %s\n", np.ID, np.Action, np.Destination)
		return nil
	},
}

var executeCmd = &cobra.Command{
	Use:   "execute",
	Short: "Carry out the approved plans",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		e := tidy.NewExecutor(store, cfg.TrashDir, cfg.ArchiveDir, executeDryRun, log.StandardLogger())
		if executeID != "" {
			p, err := store.Plan(executeID)
			if err != nil {
				return err
			}
			if p == nil {
				return fmt.Errorf("plan %s not found", executeID)
			}
			if p.Status != tidy.StatusApproved {
				return fmt.Errorf("plan %s is %s, approve it first", executeID, p.Status)
			}
			msg, err := e.Execute(p)
			if err != nil {
				return err
			}
			fmt.Println(msg)
			return nil
		}

		results, err := e.ExecuteApproved()
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Println("Nothing approved.")
			return nil
		}
		failed := 0
		for _, r := range results {
			if r.Err != nil {
				failed++
				fmt.Printf("%s: %v\n", r.PlanID, r.Err)
				continue
			}
			fmt.Println(r.Message)
		}
		fmt.Printf("%d executed, %d failed\n", len(results)-failed, failed)
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent plans",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		plans, err := store.History(historyLimit, historyStatus)
		if err != nil {
			return err
		}
		if len(plans) == 0 {
			fmt.Println("No plans recorded.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tFILE\tACTION\tSTATUS\tCREATED")
		for i := range plans {
			p := &plans[i]
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				p.ID, p.Filename(), p.Action, p.Status,
				p.CreatedAt.Local().Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Summarize what is waiting for review",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		sum, err := store.PendingSummary()
		if err != nil {
			return err
		}
		fmt.Printf("%d pending plans\n", sum.Total)
		if sum.Total == 0 {
			return nil
		}
		printCounts("by action", sum.ByAction)
		printCounts("by domain", sum.ByDomain)
		printCounts("by category", sum.ByCategory)
		if sum.BytesFreed > 0 {
			fmt.Printf("deleting frees %s\n", humanBytes(sum.BytesFreed))
		}
		return nil
	},
}

func printCounts(title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Printf("%s:\n", title)
	for _, k := range keys {
		fmt.Printf("  %-12s %d\n", k, counts[k])
	}
}

func humanBytes(n int64) string {
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(n)/(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%d B", n)
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove old finished plans from the database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := store.Cleanup(cleanupDays)
		if err != nil {
			return err
		}
		fmt.Printf("removed %d finished plans older than %d days\n", n, cleanupDays)
		return nil
	},
}
