package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/getmockd/contractd/pkg/config"
	"github.com/getmockd/contractd/pkg/contract"
	"github.com/getmockd/contractd/pkg/logging"
	"github.com/getmockd/contractd/pkg/mockserver"
)

type mockOptions struct {
	file       string
	configFile string
	bind       string
	tieBreak   string
	tls        bool
	cors       bool
}

func newMockCmd(g *globals) *cobra.Command {
	o := &mockOptions{}
	cmd := &cobra.Command{
		Use:   "mock",
		Short: "Serve a contract as a mock server until interrupted",
		Long: `Serve the interactions of a contract as a mock server. Each interaction
answers at most one request. When interrupted, the server stops and prints
the verification result; the exit code is 1 if any interaction was missed or
any request went unmatched.`,
		Example: `  # Serve a contract on a fixed port
  contractd mock -f orders.json --bind 127.0.0.1:8080

  # Use a run configuration file
  contractd mock -f orders.yaml --config run.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMock(cmd, g, o)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&o.file, "file", "f", "", "Contract file (JSON or YAML)")
	f.StringVar(&o.configFile, "config", "", "Run configuration file (YAML)")
	f.StringVar(&o.bind, "bind", "", "Listen address, overrides the configuration")
	f.StringVar(&o.tieBreak, "tie-break", "", "Tie-break policy: declaration-order or best-fit")
	f.BoolVar(&o.tls, "tls", false, "Serve HTTPS with a generated certificate")
	f.BoolVar(&o.cors, "cors", false, "Answer CORS preflight requests")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func loadRunConfig(o *mockOptions) (*config.Config, error) {
	cfg := config.Default()
	if o.configFile != "" {
		loaded, err := config.Load(o.configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if o.bind != "" {
		cfg.Server.Bind = o.bind
	}
	if o.tieBreak != "" {
		cfg.Server.TieBreak = o.tieBreak
	}
	if o.tls {
		cfg.Server.TLS = &config.TLSConfig{Enabled: true}
	}
	if o.cors {
		cfg.Server.CORSPreflight = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runMock(cmd *cobra.Command, g *globals, o *mockOptions) error {
	cfg, err := loadRunConfig(o)
	if err != nil {
		return err
	}
	c, err := contract.Load(o.file)
	if err != nil {
		return err
	}
	log := logging.New(cfg.LoggingConfig(cmd.ErrOrStderr(), os.LookupEnv))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := mockserver.Start(context.WithoutCancel(ctx), c.Interactions, cfg.ServerConfig(), mockserver.WithLogger(log))
	if err != nil {
		return err
	}
	if !g.jsonOutput {
		fmt.Fprintf(cmd.OutOrStdout(), "Mock server for %s -> %s listening on %s (%d interactions)\n",
			orUnknown(c.Consumer), orUnknown(c.Provider), srv.URL(), len(c.Interactions))
	}

	<-ctx.Done()

	if err := srv.Stop(context.WithoutCancel(ctx)); err != nil {
		log.Warn("stop mock server", "error", err)
	}
	res, err := srv.Verify()
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if err := printResult(w, g, srv.Report(), func() { printVerification(w, res) }); err != nil {
		return err
	}
	if !res.Passed {
		return ErrVerificationFailed
	}
	return nil
}

func orUnknown(s string) string {
	if s == "" {
		return "(unnamed)"
	}
	return s
}
