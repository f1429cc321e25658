package main

import (
	"github.com/spf13/cobra"

	"github.com/agleyzer/segstitch/internal/audio"
)

func newJoinCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "join [dir]",
		Short: "Join numbered audio parts such as 3-Intro01.mp3 into one file per number",
		Args:  usageArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}

			outputs, err := audio.JoinAll(cmd.Context(), dir, a.logger)
			if err != nil {
				return err
			}
			a.logger.Info("join finished", "dir", dir, "outputs", len(outputs))
			return nil
		},
	}
}
