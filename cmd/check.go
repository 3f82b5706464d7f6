package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/smazurov/stereocap/internal/gstreamer"
	"github.com/smazurov/stereocap/internal/preflight"
	"github.com/spf13/cobra"
)

func newCheckCmd(opts *Options, exitCode *int) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify the launcher, element factories and output directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			desc, err := gstreamer.Build(opts.Params(time.Now()))
			if err != nil {
				return err
			}

			results := preflight.Run(cmd.Context(), desc)
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderChecks(results, shouldColorize(out)))

			if preflight.Failed(results) {
				*exitCode = 1
				fmt.Fprintln(out, "Required checks failed")
			}
			return nil
		},
	}
}

func renderChecks(results []preflight.Status, colorize bool) string {
	tw := table.NewWriter()
	if colorize {
		tw.SetStyle(table.StyleRounded)
	} else {
		tw.SetStyle(table.StyleLight)
	}
	tw.AppendHeader(table.Row{"Check", "Status", "Detail"})

	for _, s := range results {
		tw.AppendRow(table.Row{s.Name, statusLabel(s, colorize), s.Detail})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignLeft, AlignHeader: text.AlignLeft},
	})
	return tw.Render()
}

func statusLabel(s preflight.Status, colorize bool) string {
	label, color := "ok", text.FgGreen
	switch {
	case s.Available:
	case s.Optional:
		label, color = "missing (optional)", text.FgYellow
	default:
		label, color = "missing", text.FgRed
	}
	if !colorize {
		return label
	}
	return color.Sprint(label)
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
