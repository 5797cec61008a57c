package main

import (
	"encoding/json"
	"io"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/lucasew/dircap/internal/handler"
	"github.com/lucasew/dircap/internal/httpclient"
	"github.com/lucasew/dircap/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Shows what the running watchdog is doing",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, err := cmd.Flags().GetBool("json")
		if err != nil {
			return err
		}

		st, err := newControlClient().Status(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if asJSON || !logging.IsTerminal(out) {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		}
		_, err = io.WriteString(out, renderStatus(st, time.Now()))
		return err
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().Bool("json", false, "Print status as JSON")
}

func newControlClient() *httpclient.Client {
	return httpclient.NewClient(viper.GetString("control-addr"), nil)
}

func renderStatus(st *handler.StatusResponse, now time.Time) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.SetTitle("dircap")

	last := st.Last
	lastRun := "never"
	if !last.FinishedAt.IsZero() {
		lastRun = humanize.RelTime(last.FinishedAt, now, "ago", "from now")
	}

	tw.AppendRows([]table.Row{
		{"Watched path", st.WatchedPath},
		{"File limit", st.Limit},
		{"Interval", st.Interval},
		{"Cycles", humanize.Comma(st.Cycles)},
		{"Evictions", humanize.Comma(st.Evictions)},
		{"Metadata failures", humanize.Comma(st.MetadataFailures)},
	})
	tw.AppendSeparator()
	tw.AppendRows([]table.Row{
		{"Last check", lastRun},
		{"Last action", string(last.Action)},
		{"Eligible files", strconv.Itoa(last.Eligible)},
	})
	if last.Target.Path != "" {
		tw.AppendRow(table.Row{"Last target", last.Target.Path})
	}
	if last.Err != "" {
		tw.AppendRow(table.Row{"Last error", last.Err})
	}

	s := tw.Render() + "\n"
	if len(st.Recent) == 0 {
		return s
	}

	rt := table.NewWriter()
	rt.SetStyle(table.StyleRounded)
	rt.SetTitle("Recent evictions")
	rt.AppendHeader(table.Row{"When", "Outcome", "Path", "Modified"})
	for _, e := range st.Recent {
		rt.AppendRow(table.Row{
			humanize.RelTime(e.EvictedAt, now, "ago", "from now"),
			e.Outcome,
			e.Path,
			e.ModTime.Format(time.DateTime),
		})
	}
	return s + rt.Render() + "\n"
}
