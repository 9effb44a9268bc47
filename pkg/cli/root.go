package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version is injected during build
	Version = "dev"
	// Commit is injected during build
	Commit = "none"
	// BuildDate is injected during build
	BuildDate = "unknown"
)

// ErrVerificationFailed is returned when a command completes but the
// contract was not satisfied. It maps to exit code 1 without extra output.
var ErrVerificationFailed = errors.New("contract verification failed")

// globals holds the persistent flags.
type globals struct {
	jsonOutput bool
}

// NewRootCommand builds the contractd command tree.
func NewRootCommand() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:   "contractd",
		Short: "contractd serves and checks consumer-driven contracts",
		Long: `contractd replays the interactions of a contract as a mock server and
verifies that every expected request arrived exactly once.

It can also validate contract files and compare two message bodies with the
same matchers the mock server uses.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&g.jsonOutput, "json", false, "Output command results in JSON format")

	root.AddCommand(
		newMockCmd(g),
		newValidateCmd(g),
		newCompareCmd(g),
		newVersionCmd(g),
	)
	return root
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		if !errors.Is(err, ErrVerificationFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}
