package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hupe1980/hnswtag"
)

func (a *app) newBuildCmd() *cobra.Command {
	var (
		input    string
		output   string
		capacity int
		dim      int
	)
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build an index from an fvecs file",
		Long: `Build reads vectors from an fvecs file, labels them with their row
number and saves the index to a file or an s3://bucket/key location.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			vectors, err := readFvecsFile(input)
			if err != nil {
				return err
			}
			if len(vectors) == 0 {
				return fmt.Errorf("%s contains no vectors", input)
			}
			if dim > 0 && dim != len(vectors[0]) {
				return fmt.Errorf("%s has dimension %d, expected %d", input, len(vectors[0]), dim)
			}
			capacity = max(capacity, len(vectors))

			space, opts, err := a.options()
			if err != nil {
				return err
			}
			idx, err := hnswtag.New(space, len(vectors[0]), capacity, opts...)
			if err != nil {
				return err
			}
			defer idx.Close()

			start := time.Now()
			if err := idx.AddItems(ctx, vectors, nil); err != nil {
				return err
			}
			elapsed := time.Since(start)

			loc, err := a.resolve(ctx, output)
			if err != nil {
				return err
			}
			if err := a.save(ctx, idx, loc); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d vectors of dimension %d in %s\n",
				idx.Len(), idx.Dimension(), elapsed.Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "fvecs file with the vectors")
	cmd.Flags().StringVarP(&output, "output", "o", "", "index file, s3://bucket/key or minio://bucket/key")
	cmd.Flags().IntVar(&capacity, "capacity", 0, "maximum number of elements, at least the input size")
	cmd.Flags().IntVar(&dim, "dimension", 0, "expected vector dimension, 0 accepts any")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}
