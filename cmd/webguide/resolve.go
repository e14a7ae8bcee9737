package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"webguide/internal/ai"
	"webguide/internal/entity"
	"webguide/internal/matcher"
	"webguide/internal/normalizer"
	"webguide/internal/reconciler"
)

type resolveOptions struct {
	snapshot string
	proposal string
	weights  string
	verbose  bool
}

func newResolveCmd() *cobra.Command {
	var opts resolveOptions

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Reconcile a saved snapshot and model reply offline",
		Long: `resolve runs the same parse and reconcile passes the live guide uses, against
a snapshot JSON file and a raw model reply, and prints the resolved overlays
with a per-step report. Useful for tuning a weights file without a browser.

Example:
  webguide resolve --snapshot snap.json --proposal reply.txt --weights weights.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runResolve(cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.snapshot, "snapshot", "", "Snapshot JSON file")
	cmd.Flags().StringVar(&opts.proposal, "proposal", "", "Model reply file (JSON or text); - for stdin")
	cmd.Flags().StringVar(&opts.weights, "weights", "", "Matcher weights YAML file")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log reconcile decisions to stderr")
	_ = cmd.MarkFlagRequired("snapshot")
	_ = cmd.MarkFlagRequired("proposal")

	return cmd
}

type resolveOutput struct {
	Proposal *entity.Proposal `json:"proposal"`
	reconciler.Result
}

func runResolve(out io.Writer, opts resolveOptions) error {
	logger := zap.NewNop()
	if opts.verbose {
		var err error
		if logger, err = zap.NewDevelopment(); err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()
	}

	snapData, err := os.ReadFile(opts.snapshot)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}

	var snap entity.Snapshot
	if err := json.Unmarshal(snapData, &snap); err != nil {
		return fmt.Errorf("parse snapshot %s: %w", opts.snapshot, err)
	}

	var reply []byte
	if opts.proposal == "-" {
		reply, err = io.ReadAll(os.Stdin)
	} else {
		reply, err = os.ReadFile(opts.proposal)
	}
	if err != nil {
		return fmt.Errorf("read proposal: %w", err)
	}

	weights, err := matcher.LoadWeights(opts.weights)
	if err != nil {
		return err
	}

	rec := reconciler.New(reconciler.DefaultParams(), matcher.New(weights), normalizer.New(normalizer.DefaultParams()), logger)

	proposal := ai.ParseProposal(string(reply))
	result := rec.Reconcile(reconciler.Input{Proposal: proposal, Snapshot: &snap})

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")

	return enc.Encode(resolveOutput{Proposal: proposal, Result: result})
}
