package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func (a *app) newInspectCmd() *cobra.Command {
	var (
		index  string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print the parameters and level statistics of an index",
		Args:  cobra.NoArgs,
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

			s := idx.Stats()
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(s)
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "space\t%s\n", s.Space)
			fmt.Fprintf(tw, "dimension\t%d\n", s.Dimension)
			fmt.Fprintf(tw, "elements\t%d / %d\n", s.Count, s.Capacity)
			fmt.Fprintf(tw, "deleted\t%d\n", s.Deleted)
			fmt.Fprintf(tw, "M / M0\t%d / %d\n", s.M, s.M0)
			fmt.Fprintf(tw, "ef construction\t%d\n", s.EFConstruction)
			fmt.Fprintf(tw, "entry point\t%d (level %d)\n", s.EntryPoint, s.MaxLevel)
			fmt.Fprintf(tw, "tags\t%d over %d labels\n", s.Tags, s.TaggedLabels)
			if len(s.TagIDs) > 0 {
				fmt.Fprintf(tw, "tag ids\t%v\n", s.TagIDs)
			}
			fmt.Fprintf(tw, "kernel\t%s\n", s.Kernel)
			fmt.Fprintln(tw)
			fmt.Fprintln(tw, "level\tnodes\tlinks\tmean degree\tstd degree")
			for _, l := range s.Levels {
				fmt.Fprintf(tw, "%d\t%d\t%d\t%.2f\t%.2f\n", l.Level, l.Nodes, l.Connections, l.MeanDegree, l.StdDegree)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&index, "index", "", "index file, s3://bucket/key or minio://bucket/key")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print statistics as JSON")
	_ = cmd.MarkFlagRequired("index")
	return cmd
}
