package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/docattn/go-docattn/multidoc"
	"github.com/docattn/go-docattn/report"
	"github.com/docattn/go-docattn/tokenizers/api"
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
)

func printEncodeSummary(cmd *cobra.Command, total int, batch *multidoc.Batch) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, headingStyle.Render("Encoded batch"))
	fmt.Fprintf(out, "%s %d\n", labelStyle.Render("examples:"), len(batch.TokenIDs))
	if batch.Dropped > 0 {
		fmt.Fprintln(out, warnStyle.Render(fmt.Sprintf("dropped:  %d of %d (no usable passages)", batch.Dropped, total)))
	}
	if len(batch.TokenIDs) > 0 {
		fmt.Fprintf(out, "%s %d\n", labelStyle.Render("source width:"), len(batch.TokenIDs[0]))
	}
	if len(batch.LabelIDs) > 0 {
		fmt.Fprintf(out, "%s %d\n", labelStyle.Render("target width:"), len(batch.LabelIDs[0]))
	}
}

func printAnalyzeSummary(cmd *cobra.Command, a *report.Analysis, total, skipped int, outPath string) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, headingStyle.Render("Attention analysis"))
	fmt.Fprintf(out, "%s %d\n", labelStyle.Render("dumps:"), total)
	if skipped > 0 {
		fmt.Fprintln(out, warnStyle.Render(fmt.Sprintf("skipped:  %d (dispersion undefined)", skipped)))
	}
	if n := len(a.SelfStdDev); n > 0 {
		fmt.Fprintf(out, "%s %s (n=%d)\n", labelStyle.Render("self std dev mean:"), formatMean(a.SelfStdDev), n)
	}
	if n := len(a.SelfDocAvg); n > 0 {
		fmt.Fprintf(out, "%s %s (n=%d)\n", labelStyle.Render("self doc attn mean:"), formatMean(a.SelfDocAvg), n)
	}
	if n := len(a.CrossStdDev); n > 0 {
		fmt.Fprintf(out, "%s %s (n=%d)\n", labelStyle.Render("cross std dev mean:"), formatMean(a.CrossStdDev), n)
	}
	fmt.Fprintf(out, "%s %s\n", labelStyle.Render("report:"), outPath)
}

func printSegments(cmd *cobra.Command, tok api.Tokenizer, examples []*multidoc.Example) {
	out := cmd.OutOrStdout()
	for i, ex := range examples {
		fmt.Fprintln(out, headingStyle.Render(fmt.Sprintf("Example %d", i)))
		for d, segment := range ex.Segments() {
			fmt.Fprintf(out, "%s %s\n", labelStyle.Render(fmt.Sprintf("doc %d:", d)), tok.Decode(segment))
		}
	}
}

func formatMean(values []float64) string {
	if len(values) == 0 {
		return "n/a"
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return fmt.Sprintf("%.6f", sum/float64(len(values)))
}
