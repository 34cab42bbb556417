package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/hnswtag"
)

func (a *app) newQueryCmd() *cobra.Command {
	var (
		index   string
		queries string
		k       int
		tagSet  []uint64
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query an index with vectors from an fvecs file",
		Long: `Query prints the k nearest labels of every query vector. With --tags the
search is restricted to the sub-graph of those tags, built on the fly.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
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

			qs, err := readFvecsFile(queries)
			if err != nil {
				return err
			}

			var results [][]hnswtag.Result
			if len(tagSet) == 0 {
				results, err = idx.KNNQuery(ctx, qs, k)
			} else {
				results = make([][]hnswtag.Result, len(qs))
				for i, q := range qs {
					if results[i], err = idx.SearchCrossTagged(ctx, tagSet, q, k); err != nil {
						break
					}
				}
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}
			for i, res := range results {
				parts := make([]string, len(res))
				for j, r := range res {
					parts[j] = fmt.Sprintf("%d:%.6g", r.Label, r.Distance)
				}
				fmt.Fprintf(out, "%d\t%s\n", i, strings.Join(parts, " "))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&index, "index", "", "index file, s3://bucket/key or minio://bucket/key")
	cmd.Flags().StringVarP(&queries, "queries", "q", "", "fvecs file with the query vectors")
	cmd.Flags().IntVarP(&k, "k", "k", 10, "number of neighbors")
	cmd.Flags().Uint64SliceVar(&tagSet, "tags", nil, "restrict the search to these tags")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")
	_ = cmd.MarkFlagRequired("index")
	_ = cmd.MarkFlagRequired("queries")
	return cmd
}
