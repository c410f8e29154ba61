package report

import (
	"fmt"
	"io"
	"strings"

	"rand-assess/internal/bitseq"
)

// WriteSummary renders the final analysis table: one row per test and
// parameter with the p-value histogram, uniformity, pass proportion and
// verdict, followed by the mean, median, standard deviation and minimum of
// each row's p-values. Write errors are left to the caller's writer.
func WriteSummary(w io.Writer, summaries []TestSummary, alpha float64, sequences int, totals bitseq.Counters) {
	if alpha <= 0 || alpha >= 1 {
		alpha = DefaultAlpha
	}
	rule := strings.Repeat("-", 110)

	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "RESULTS FOR THE UNIFORMITY OF P-VALUES AND THE PROPORTION OF PASSING SEQUENCES\n")
	fmt.Fprintf(w, "sequences = %d  bits read = %d  0s = %d  1s = %d  alpha = %g\n",
		sequences, totals.BitsRead, totals.Zeros, totals.Ones, alpha)
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "%-4s%-4s%-4s%-4s%-4s%-4s%-4s%-4s%-4s%-4s %-10s %-11s %-8s %-6s %s\n",
		"C1", "C2", "C3", "C4", "C5", "C6", "C7", "C8", "C9", "C10",
		"P-VALUE", "PROPORTION", "MIN", "RESULT", "TEST")
	fmt.Fprintln(w, rule)

	for _, s := range summaries {
		for _, c := range s.Histogram {
			fmt.Fprintf(w, "%-4d", c)
		}
		verdict := "FAIL"
		if s.Pass() {
			verdict = "PASS"
		}
		proportion := fmt.Sprintf("%d/%d", s.Passed, len(s.PValues))
		if s.Errors > 0 {
			proportion += fmt.Sprintf(" (%d err)", s.Errors)
		}
		fmt.Fprintf(w, " %-10.6f %-11s %-8.4f %-6s %s\n",
			s.Uniformity, proportion, s.MinProportion, verdict, s.Name())
	}
	fmt.Fprintln(w, rule)

	fmt.Fprintf(w, "P-VALUE STATISTICS\n")
	fmt.Fprintf(w, "%-10s %-10s %-10s %-10s %s\n", "MEAN", "MEDIAN", "STDDEV", "MIN", "TEST")
	fmt.Fprintln(w, rule)
	for _, s := range summaries {
		if len(s.PValues) == 0 {
			fmt.Fprintf(w, "%-10s %-10s %-10s %-10s %s\n", "-", "-", "-", "-", s.Name())
			continue
		}
		fmt.Fprintf(w, "%-10.6f %-10.6f %-10.6f %-10.6f %s\n",
			s.MeanP, s.MedianP, s.StdDevP, s.MinP, s.Name())
	}
	fmt.Fprintln(w, rule)
}

// LegacyString renders summaries as "Name=v&Name=v" with v 1 for pass and
// 0 for fail. A test with several parameters passes only if all of them do.
func LegacyString(summaries []TestSummary) string {
	var (
		order []string
		pass  = make(map[string]bool)
	)
	for _, s := range summaries {
		name := s.Test.String()
		prev, seen := pass[name]
		if !seen {
			order = append(order, name)
			prev = true
		}
		pass[name] = prev && s.Pass()
	}

	parts := make([]string, 0, len(order))
	for _, name := range order {
		v := "0"
		if pass[name] {
			v = "1"
		}
		parts = append(parts, name+"="+v)
	}
	return strings.Join(parts, "&")
}
