package commands

import (
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"github.com/hupe1980/bowgo/bow"
	"github.com/hupe1980/bowgo/descriptor"
)

func newQueryCmd(g *globals) *cobra.Command {
	var candidates []uint

	cmd := &cobra.Command{
		Use:   "query FILE",
		Short: "Retrieve the keyframes most similar to a frame",
		Long: `Score the indexed keyframes against the frame descriptors in FILE and
print the retained keyframes, best first. With --candidates only the listed
keyframes are scored.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]bow.KeyframeID, len(candidates))
			for i, c := range candidates {
				if c > math.MaxUint32 {
					return fmt.Errorf("candidate %d is not a valid keyframe id", c)
				}
				ids[i] = bow.KeyframeID(c)
			}

			ctx := cmd.Context()
			buf, err := descriptor.ReadFile(args[0])
			if err != nil {
				return err
			}
			r, err := g.openWithSnapshot(ctx)
			if err != nil {
				return err
			}
			frame := descriptor.NewFrame(buf)
			out := cmd.OutOrStdout()

			if len(ids) > 0 {
				got, err := r.RetrieveCandidates(ctx, frame, ids)
				if err != nil {
					return err
				}
				for i, id := range got {
					fmt.Fprintf(out, "%d\t%d\n", i+1, id)
				}
				return nil
			}

			scored, err := r.RetrieveScored(ctx, frame)
			if err != nil {
				return err
			}
			for i, s := range scored {
				fmt.Fprintf(out, "%d\t%d\t%.6f\t%d\n", i+1, s.ID, s.Score, s.CommonWords)
			}
			return nil
		},
	}

	cmd.Flags().UintSliceVar(&candidates, "candidates", nil, "restrict scoring to these keyframe ids")
	return cmd
}

func newMatchCmd(g *globals) *cobra.Command {
	var keyframeID uint32

	cmd := &cobra.Command{
		Use:   "match FRAME KEYFRAME",
		Short: "Match frame descriptors against a keyframe",
		Long: `Find descriptor correspondences between the frame in FRAME and the
keyframe whose descriptors are stored in KEYFRAME. The keyframe must be
indexed in the snapshot under --id.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			frameBuf, err := descriptor.ReadFile(args[0])
			if err != nil {
				return err
			}
			kfBuf, err := descriptor.ReadFile(args[1])
			if err != nil {
				return err
			}
			r, err := g.openWithSnapshot(ctx)
			if err != nil {
				return err
			}

			matches, err := r.Match(ctx, descriptor.NewFrame(frameBuf), descriptor.NewKeyframe(bow.KeyframeID(keyframeID), kfBuf))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, m := range matches {
				fmt.Fprintf(out, "%d\t%d\t%.4f\n", m.QueryIndex, m.TargetIndex, m.Distance)
			}
			fmt.Fprintf(out, "%d matches\n", len(matches))
			return nil
		},
	}

	cmd.Flags().Uint32Var(&keyframeID, "id", 0, "snapshot id of the keyframe")
	return cmd
}
