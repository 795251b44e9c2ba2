package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatsCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show snapshot statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := g.openWithSnapshot(cmd.Context())
			if err != nil {
				return err
			}
			st := r.Stats()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "keyframes: %d\n", st.Keyframes)
			fmt.Fprintf(out, "words:     %d\n", st.Words)
			fmt.Fprintf(out, "postings:  %d\n", st.Postings)
			fmt.Fprintf(out, "level:     %d\n", st.Level)
			fmt.Fprintf(out, "metric:    %s\n", st.Metric)
			return nil
		},
	}
}
