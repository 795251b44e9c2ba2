package commands

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/hupe1980/bowgo"
	"github.com/hupe1980/bowgo/bow"
	"github.com/hupe1980/bowgo/descriptor"
)

func newIndexCmd(g *globals) *cobra.Command {
	var (
		startID  uint32
		appendTo bool
	)

	cmd := &cobra.Command{
		Use:   "index FILE...",
		Short: "Index keyframe descriptor files into the snapshot",
		Long: `Read one descriptor file per keyframe and add them to the snapshot.
Keyframes are numbered from --start-id in argument order. The batch is
added atomically: if any file fails, the snapshot is left unchanged.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if last := uint64(startID) + uint64(len(args)) - 1; last > math.MaxUint32 {
				return fmt.Errorf("%d keyframes from --start-id %d overflow the id range", len(args), startID)
			}
			ctx := cmd.Context()
			dst, err := g.snapshotPath()
			if err != nil {
				return err
			}
			r, err := g.open()
			if err != nil {
				return err
			}
			if appendTo {
				if err := loadIfExists(ctx, r, dst); err != nil {
					return err
				}
			}

			kfs := make([]*descriptor.Keyframe, 0, len(args))
			for i, file := range args {
				buf, err := descriptor.ReadFile(file)
				if err != nil {
					return err
				}
				kfs = append(kfs, descriptor.NewKeyframe(bow.KeyframeID(startID+uint32(i)), buf))
			}
			if err := r.AddKeyframes(ctx, kfs, false); err != nil {
				return err
			}
			if err := r.SaveToFile(ctx, dst); err != nil {
				return err
			}

			st := r.Stats()
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d keyframes (%d total, %d words) into %s\n", len(kfs), st.Keyframes, st.Words, dst)
			return nil
		},
	}

	cmd.Flags().Uint32Var(&startID, "start-id", 0, "id of the first keyframe")
	cmd.Flags().BoolVarP(&appendTo, "append", "a", false, "add to the existing snapshot instead of replacing it")
	return cmd
}

func newSuppressCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "suppress ID...",
		Short: "Remove keyframes from the snapshot",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ids := make([]bow.KeyframeID, 0, len(args))
			for _, a := range args {
				id, err := strconv.ParseUint(a, 10, 32)
				if err != nil {
					return fmt.Errorf("invalid keyframe id %q: %w", a, err)
				}
				ids = append(ids, bow.KeyframeID(id))
			}

			r, err := g.openWithSnapshot(ctx)
			if err != nil {
				return err
			}
			for _, id := range ids {
				if err := r.SuppressKeyframe(ctx, id); err != nil {
					return err
				}
			}
			if err := r.SaveToFile(ctx, g.cfg.Snapshot.Path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "suppressed %d keyframes (%d remaining)\n", len(ids), r.Stats().Keyframes)
			return nil
		},
	}
}

func loadIfExists(ctx context.Context, r *bowgo.Retriever, path string) error {
	err := r.LoadFromFile(ctx, path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
