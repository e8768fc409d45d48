package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/dukerupert/showtrack/internal/reconcile"
)

func newReconcileCommand(ctx *commandContext) *cobra.Command {
	var userID int64
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Re-check tracked shows once and send due notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			release, err := a.lock(cmd.Context(), wait)
			if err != nil {
				return err
			}
			defer release()

			var rep reconcile.Report
			if userID > 0 {
				rep, err = a.driver.Reconcile(cmd.Context(), userID)
			} else {
				rep, err = a.driver.ReconcileAll(cmd.Context())
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderReport(rep, shouldColorize(out)))
			return err
		},
	}

	cmd.Flags().Int64Var(&userID, "user", 0, "Reconcile a single user id (default: all users)")
	cmd.Flags().DurationVar(&wait, "wait", 0, "Wait up to this long for a running reconcile to finish")
	return cmd
}

const (
	ansiReset = "\033[0m"
	ansiRed   = "\033[31m"
	ansiGreen = "\033[32m"
)

func shouldColorize(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func renderReport(rep reconcile.Report, colorize bool) string {
	errCount := strconv.Itoa(rep.Errors)
	if colorize {
		color := ansiGreen
		if rep.Errors > 0 {
			color = ansiRed
		}
		errCount = color + errCount + ansiReset
	}
	rows := [][]string{
		{"run", rep.RunID},
		{"users", strconv.Itoa(rep.Users)},
		{"checked", strconv.Itoa(rep.Checked)},
		{"changed", strconv.Itoa(rep.Changed)},
		{"notified", strconv.Itoa(rep.Notified)},
		{"errors", errCount},
		{"duration", rep.Duration.Round(time.Millisecond).String()},
	}
	return renderTable([]string{"Field", "Value"}, rows, []columnAlignment{alignLeft, alignRight})
}
