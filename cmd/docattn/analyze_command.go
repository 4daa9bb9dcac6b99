package main

import (
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/docattn/go-docattn/attention"
	"github.com/docattn/go-docattn/gendump"
	"github.com/docattn/go-docattn/report"
)

func newAnalyzeCommand() *cobra.Command {
	var outPath string
	var cross bool
	var self bool

	cmd := &cobra.Command{
		Use:   "analyze [dump files or globs]",
		Short: "Attribute generation attention back to source documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if outPath == "" {
				return errors.New("a report destination is required (--out)")
			}
			opts := attention.Options{ComputeCross: cross, ComputeSelf: self}
			if err := opts.Validate(); err != nil {
				return err
			}

			paths, err := expandDumpArgs(args)
			if err != nil {
				return err
			}

			var analysis report.Analysis
			skipped := 0
			for _, path := range paths {
				dump, err := gendump.Read(path)
				if err != nil {
					return errors.Wrapf(err, "failed to read generation dump %s", path)
				}
				rec, err := attention.Attribute(dump.Output, dump.Boundaries, dump.SrcLen, opts)
				if errors.Is(err, attention.ErrUndefinedDispersion) {
					klog.Warningf("Skipping %s: %v", path, err)
					skipped++
					continue
				}
				if err != nil {
					return errors.Wrapf(err, "failed to attribute %s", path)
				}
				analysis.Add(rec, opts)
			}

			if err := analysis.Write(outPath); err != nil {
				return err
			}
			printAnalyzeSummary(cmd, &analysis, len(paths), skipped, outPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Destination file for the analysis report")
	cmd.Flags().BoolVar(&cross, "cross", true, "Attribute decoder cross-attention")
	cmd.Flags().BoolVar(&self, "self", true, "Attribute encoder self-attention")
	return cmd
}

// expandDumpArgs resolves each argument as a glob pattern, keeping plain
// paths as-is, and returns the sorted union.
func expandDumpArgs(args []string) ([]string, error) {
	seen := make(map[string]bool)
	var paths []string
	for _, arg := range args {
		matches, err := filepath.Glob(arg)
		if err != nil {
			return nil, errors.Wrapf(err, "bad dump pattern %q", arg)
		}
		if matches == nil {
			matches = []string{arg}
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				paths = append(paths, m)
			}
		}
	}
	sort.Strings(paths)
	return paths, nil
}
