package cli

import (
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/getmockd/contractd/pkg/body"
	"github.com/getmockd/contractd/pkg/cli/internal/output"
	"github.com/getmockd/contractd/pkg/contract"
	"github.com/getmockd/contractd/pkg/mismatch"
	"github.com/getmockd/contractd/pkg/pathexp"
	"github.com/getmockd/contractd/pkg/rules"
)

type compareOptions struct {
	expected         string
	actual           string
	contentType      string
	rulesFile        string
	noUnexpectedKeys bool
}

// CompareOutput is the JSON result of the compare command.
type CompareOutput struct {
	Matched    bool                `json:"matched"`
	Mismatches []mismatch.Mismatch `json:"mismatches"`
	// UnusedRules lists rule patterns that select no value in an expected
	// JSON body. Such rules never apply.
	UnusedRules []string `json:"unusedRules,omitempty"`
}

func newCompareCmd(g *globals) *cobra.Command {
	o := &compareOptions{}
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compare an actual body with an expected one",
		Long: `Compare two message bodies with the format matcher for their content
type, under an optional set of body matching rules. The rules file holds
path expressions mapped to rule lists:

  {"$.items": {"matchers": [{"match": "type", "min": 1}]}}`,
		Example: `  contractd compare --expected want.json --actual got.json
  contractd compare --expected want.xml --actual got.xml --rules rules.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := runCompare(o)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			ms := out.Mismatches
			if out.Mismatches == nil {
				out.Mismatches = []mismatch.Mismatch{}
			}
			err = printResult(w, g, out, func() {
				for _, p := range out.UnusedRules {
					output.Warn(w, "rule pattern %s selects nothing in the expected body", p)
				}
				if out.Matched {
					fmt.Fprintln(w, "Bodies match")
					return
				}
				fmt.Fprintf(w, "%d mismatch(es)\n", len(ms))
				printMismatches(w, ms)
			})
			if err != nil {
				return err
			}
			if !out.Matched {
				return ErrVerificationFailed
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.expected, "expected", "", "Expected body file")
	f.StringVar(&o.actual, "actual", "", "Actual body file")
	f.StringVar(&o.contentType, "content-type", "", "Content type of both bodies (default: from the file extension)")
	f.StringVar(&o.rulesFile, "rules", "", "Body matching rules file (JSON)")
	f.BoolVar(&o.noUnexpectedKeys, "no-unexpected-keys", false, "Report keys present only in the actual body")
	_ = cmd.MarkFlagRequired("expected")
	_ = cmd.MarkFlagRequired("actual")
	return cmd
}

func runCompare(o *compareOptions) (CompareOutput, error) {
	expected, err := readBody(o.expected, o.contentType)
	if err != nil {
		return CompareOutput{}, err
	}
	actual, err := readBody(o.actual, o.contentType)
	if err != nil {
		return CompareOutput{}, err
	}

	set := rules.NewRuleSet()
	if o.rulesFile != "" {
		data, err := os.ReadFile(o.rulesFile)
		if err != nil {
			return CompareOutput{}, fmt.Errorf("read rules: %w", err)
		}
		if err := json.Unmarshal(data, set); err != nil {
			return CompareOutput{}, fmt.Errorf("%s: %w", o.rulesFile, err)
		}
	}
	ms := body.Compare(expected, actual, set, body.Options{NoUnexpectedKeys: o.noUnexpectedKeys})
	return CompareOutput{
		Matched:     len(ms) == 0,
		Mismatches:  ms,
		UnusedRules: unusedRules(expected, set),
	}, nil
}

// unusedRules returns the patterns of set that select nothing in a JSON
// body. Other formats are not checked.
func unusedRules(b contract.Body, set *rules.RuleSet) []string {
	if family, _ := body.Default.Lookup(b.ContentType); family != body.FamilyJSON {
		return nil
	}
	doc, err := body.DecodeJSON(b.Content)
	if err != nil {
		return nil
	}
	var unused []string
	for _, pattern := range set.Patterns() {
		p, err := pathexp.Parse(pattern)
		if err != nil {
			continue
		}
		if len(pathexp.Select(doc, p)) == 0 {
			unused = append(unused, pattern)
		}
	}
	return unused
}

func readBody(path, contentType string) (contract.Body, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return contract.Body{}, fmt.Errorf("read body: %w", err)
	}
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(path))
	}
	return contract.NewBody(data, contentType), nil
}
