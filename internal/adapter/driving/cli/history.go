package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var historyClear bool

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the most recent usage checks",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().BoolVar(&historyClear, "clear", false, "empty the history log")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, _ []string) error {
	p := newPrinter(cmd)
	return withCore(cmd.Context(), p, func(c *core) error {
		if historyClear {
			if err := c.history.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("History cleared"))
			return nil
		}

		entries, err := c.history.List(cmd.Context())
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No checks yet.")
			return nil
		}

		rows := make([][]string, 0, len(entries))
		for _, e := range entries {
			status := successStyle.Render("ok")
			if !e.Success {
				status = dangerStyle.Render("failed")
			}
			rows = append(rows, []string{e.Timestamp, status, e.Summary})
		}
		p.printTable([]string{"Time", "Status", "Details"}, rows)
		return nil
	})
}
