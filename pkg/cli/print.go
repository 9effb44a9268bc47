package cli

import (
	"fmt"
	"io"

	"github.com/getmockd/contractd/pkg/cli/internal/output"
	"github.com/getmockd/contractd/pkg/mismatch"
	"github.com/getmockd/contractd/pkg/mockserver"
)

// printResult outputs a single operation result.
//
// When --json is active, ONLY the JSON encoding of data is written to w.
// textFn is called only in text mode.
func printResult(w io.Writer, g *globals, data any, textFn func()) error {
	if g.jsonOutput {
		return output.JSON(w, data)
	}
	textFn()
	return nil
}

func printMismatches(w io.Writer, ms []mismatch.Mismatch) {
	tw := output.Table(w)
	fmt.Fprintln(tw, "PART\tPATH\tKIND\tDESCRIPTION")
	for _, m := range ms {
		part := string(m.Part)
		if part == "" {
			part = "-"
		}
		if m.Key != "" {
			part += " (" + m.Key + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", part, m.Path, m.Kind, m.Description)
	}
	_ = tw.Flush()
}

func printVerification(w io.Writer, res mockserver.VerificationResult) {
	if res.Passed {
		fmt.Fprintf(w, "Verification passed: %d interaction(s) matched\n", res.Matched)
		return
	}
	fmt.Fprintf(w, "Verification failed: %d matched, %d missing, %d unexpected\n",
		res.Matched, len(res.Missing), len(res.Unexpected))
	for _, m := range res.Missing {
		fmt.Fprintf(w, "\nMissing interaction %d %q: %s %s\n", m.Interaction, m.Description, m.Method, m.Path)
		if len(m.Mismatches) > 0 {
			printMismatches(w, m.Mismatches)
		}
	}
	for _, o := range res.Unexpected {
		fmt.Fprintf(w, "\nUnexpected request %s %s", o.Request.Method, o.Request.Path)
		if o.Request.Query != "" {
			fmt.Fprintf(w, "?%s", o.Request.Query)
		}
		fmt.Fprintln(w)
		if o.Closest != nil {
			fmt.Fprintf(w, "  closest: %d %q (%s)\n", o.Closest.Interaction, o.Closest.Description, o.Closest.Reason)
		}
	}
}
