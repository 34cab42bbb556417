package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func (a *app) newTagCmd() *cobra.Command {
	var (
		index  string
		tag    uint64
		labels []uint64
		reset  bool
	)
	cmd := &cobra.Command{
		Use:   "tag",
		Short: "Attach a tag to labels of an index",
		Long: `Tag adds --tag to every label in --labels and saves the index in place.
With --reset all tags are removed first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !reset && len(labels) == 0 {
				return errors.New("nothing to do: pass --labels or --reset")
			}
			ctx := cmd.Context()
			loc, err := a.resolve(ctx, index)
			if err != nil {
				return err
			}
			idx, err := a.load(ctx, loc)
			if err != nil {
				return err
			}
			defer idx.Close()

			if reset {
				if err := idx.ResetTags(); err != nil {
					return err
				}
			}
			if len(labels) > 0 {
				if err := idx.AddTags(labels, tag); err != nil {
					return err
				}
			}
			if err := a.save(ctx, idx, loc); err != nil {
				return err
			}

			s := idx.Stats()
			fmt.Fprintf(cmd.OutOrStdout(), "%d tags over %d labels\n", s.Tags, s.TaggedLabels)
			return nil
		},
	}
	cmd.Flags().StringVar(&index, "index", "", "index file, s3://bucket/key or minio://bucket/key")
	cmd.Flags().Uint64VarP(&tag, "tag", "t", 0, "tag to attach")
	cmd.Flags().Uint64SliceVarP(&labels, "labels", "l", nil, "labels to tag")
	cmd.Flags().BoolVar(&reset, "reset", false, "remove all tags before tagging")
	_ = cmd.MarkFlagRequired("index")
	return cmd
}
