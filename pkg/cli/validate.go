package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/getmockd/contractd/pkg/contract"
)

// ValidateOutput is the JSON result of validating one contract file.
type ValidateOutput struct {
	File         string `json:"file"`
	Valid        bool   `json:"valid"`
	Consumer     string `json:"consumer,omitempty"`
	Provider     string `json:"provider,omitempty"`
	Interactions int    `json:"interactions"`
	Error        string `json:"error,omitempty"`
}

func newValidateCmd(g *globals) *cobra.Command {
	var files []string
	cmd := &cobra.Command{
		Use:   "validate [files...]",
		Short: "Validate contract files without serving them",
		Long: `Validate contract files. A file is valid when it parses, every matching
rule is well formed (regular expressions compile, date formats and version
ranges parse) and every interaction has a method, an absolute path with
well-formed {name} parameters and a response status.`,
		Example: `  contractd validate -f orders.json
  contractd validate orders.json payments.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			files = append(files, args...)
			if len(files) == 0 {
				return fmt.Errorf("no contract files given")
			}
			results := make([]ValidateOutput, 0, len(files))
			failed := false
			for _, f := range files {
				r := validateFile(f)
				failed = failed || !r.Valid
				results = append(results, r)
			}

			w := cmd.OutOrStdout()
			err := printResult(w, g, results, func() {
				for _, r := range results {
					if r.Valid {
						fmt.Fprintf(w, "OK    %s: %s -> %s, %d interaction(s)\n",
							r.File, orUnknown(r.Consumer), orUnknown(r.Provider), r.Interactions)
					} else {
						fmt.Fprintf(w, "FAIL  %s: %s\n", r.File, r.Error)
					}
				}
			})
			if err != nil {
				return err
			}
			if failed {
				return ErrVerificationFailed
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&files, "file", "f", nil, "Contract file (can be specified multiple times)")
	return cmd
}

func validateFile(path string) ValidateOutput {
	out := ValidateOutput{File: path}
	c, err := contract.Load(path)
	if err == nil {
		err = c.Validate()
	}
	if err != nil {
		out.Error = err.Error()
		return out
	}
	out.Valid = true
	out.Consumer = c.Consumer
	out.Provider = c.Provider
	out.Interactions = len(c.Interactions)
	return out
}
