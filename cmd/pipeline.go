package cmd

import (
	"fmt"
	"time"

	"github.com/smazurov/stereocap/internal/gstreamer"
	"github.com/spf13/cobra"
)

func newPipelineCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "pipeline",
		Short: "Print the launcher command line without running it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			desc, err := gstreamer.Build(opts.Params(time.Now()))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), desc.Command())
			return err
		},
	}
}
