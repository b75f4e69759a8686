package cli

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sidingops/rakeserial/internal/database"
	"github.com/sidingops/rakeserial/internal/serial"
	"github.com/sidingops/rakeserial/internal/services"
)

// StatusCmd returns the status command
func StatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <serial>",
		Short: "Show the headers, wagons and split state of a serial",
		Long: `Show the headers, wagons and split state of a serial.

Examples:
  rakeserial status 2025-26/02/001
  rakeserial status 2025-26_02_001`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(app *App) error {
				raw := decodeArg(args[0])
				view, err := app.Sessions.Get(cmd.Context(), raw)
				if err != nil {
					return err
				}
				status, err := app.Split.Status(cmd.Context(), raw)
				if err != nil {
					return err
				}
				displayStatus(cmd.OutOrStdout(), view, status)
				return nil
			})
		},
	}
}

func displayStatus(out io.Writer, view *services.SessionView, status *services.SplitStatus) {
	bold := color.New(color.Bold)
	fmt.Fprintf(out, "%s %s\n", bold.Sprint("Serial:"), view.Session.Serial)
	fmt.Fprintf(out, "  Siding: %s\n", view.Session.Siding)
	fmt.Fprintf(out, "  Wagons: %d\n", view.Session.WagonCount)
	fmt.Fprintf(out, "  Created: %s\n", view.Session.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(out, "  Split: %s\n", splitLabel(status))
	fmt.Fprintln(out)

	fmt.Fprintln(out, bold.Sprint("Headers:"))
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  SCOPE\tSTATUS\tCOMMODITY\tDESTINATION\tSEQUENTIAL")
	for _, h := range view.Headers {
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%t\n",
			h.Scope(), colorStatus(h.Status), h.Commodity, h.Destination, h.HasSequentialSerials)
	}
	w.Flush()
	fmt.Fprintln(out)

	fmt.Fprintln(out, bold.Sprint("Wagons:"))
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  TOWER\tINDENT\tWAGON\tLOADED\tTARGET\tDONE")
	for _, wg := range view.Wagons {
		done := color.RedString("no")
		if wg.LoadingComplete {
			done = color.GreenString("yes")
		}
		fmt.Fprintf(w, "  %d\t%s\t%s\t%d\t%d\t%s\n",
			wg.TowerPosition, wg.Scope(), wg.WagonNumber, wg.LoadedBagCount, wg.TargetBagCount, done)
	}
	w.Flush()

	if len(status.Family) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, bold.Sprint("Indent serials:"))
		printFamily(out, status.Family)
	}
}

func splitLabel(s *services.SplitStatus) string {
	switch {
	case s.PartialMigration:
		return color.YellowString("partial migration, run rakeserial recover")
	case s.AlreadySplit:
		return color.GreenString("unique serials generated")
	case s.SharedSplit:
		return color.CyanString("indents share this serial")
	default:
		return "not split"
	}
}

func colorStatus(s database.HeaderStatus) string {
	switch {
	case s == database.StatusDraft:
		return color.New(color.Faint).Sprint(s)
	case s.InFlight():
		return color.YellowString(string(s))
	default:
		return color.GreenString(string(s))
	}
}

func printFamily(out io.Writer, family map[string]string) {
	indents := make([]string, 0, len(family))
	for indent := range family {
		indents = append(indents, indent)
	}
	sort.Strings(indents)
	for _, indent := range indents {
		fmt.Fprintf(out, "  %s → %s\n", indent, family[indent])
	}
}

func printReassigned(cmd *cobra.Command, reassigned map[string]string) {
	if len(reassigned) == 0 {
		return
	}
	printFamily(cmd.OutOrStdout(), reassigned)
}

// decodeArg accepts a serial typed either with slashes or in its path form.
func decodeArg(s string) string {
	return serial.DecodePath(s)
}

func secondsDuration(n int) time.Duration {
	return time.Duration(max(n, 0)) * time.Second
}
