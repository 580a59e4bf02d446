package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bnema/agent-fleet-cli/internal/application"
	"github.com/bnema/agent-fleet-cli/internal/domain"
)

type dispatchFlags struct {
	workDir  string
	env      []string
	timeout  time.Duration
	priority string
	dryRun   bool
}

func (f *dispatchFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.workDir, "dir", "", "working directory inside the pane")
	cmd.Flags().StringArrayVar(&f.env, "env", nil, "environment variable KEY=VALUE (repeatable)")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "per-target delivery timeout (default from config)")
	cmd.Flags().StringVar(&f.priority, "priority", "", "scheduling priority: low, normal, high, critical")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "resolve targets and compose commands without sending")
}

func (f *dispatchFlags) request(targets domain.TargetSelector, command string, args []string) (domain.DispatchRequest, error) {
	priority, err := domain.ParsePriority(f.priority)
	if err != nil {
		return domain.DispatchRequest{}, err
	}

	env, err := parseEnvPairs(f.env)
	if err != nil {
		return domain.DispatchRequest{}, err
	}

	return domain.DispatchRequest{
		Targets:  targets,
		Command:  command,
		Args:     args,
		WorkDir:  f.workDir,
		Env:      env,
		Timeout:  f.timeout,
		Priority: priority,
		DryRun:   f.dryRun,
	}, nil
}

func newHeyCmd(app *app) *cobra.Command {
	flags := &dispatchFlags{}

	cmd := &cobra.Command{
		Use:   "hey <agent> -- <command...>",
		Short: "Send a command to one agent",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			targets := domain.TargetSelector{Agent: domain.AgentID(args[0])}
			req, err := flags.request(targets, args[1], args[2:])
			if err != nil {
				return err
			}
			return runDispatch(cmd, app, req)
		},
	}

	flags.register(cmd)
	return cmd
}

func newBroadcastCmd(app *app) *cobra.Command {
	flags := &dispatchFlags{}

	cmd := &cobra.Command{
		Use:   "broadcast -- <command...>",
		Short: "Send a command to every live agent",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			targets := domain.TargetSelector{Broadcast: true}
			req, err := flags.request(targets, args[0], args[1:])
			if err != nil {
				return err
			}
			return runDispatch(cmd, app, req)
		},
	}

	flags.register(cmd)
	return cmd
}

func runDispatch(cmd *cobra.Command, app *app, req domain.DispatchRequest) error {
	manifest, err := app.config.Load(cmd.Context())
	if err != nil {
		return err
	}

	descriptor, err := app.layout.Current(cmd.Context(), manifest, application.ApplyOptions{})
	if err != nil {
		return fmt.Errorf("resolve session: %w", err)
	}

	report, err := app.dispatch.Dispatch(cmd.Context(), &descriptor, req)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintln(cmd.OutOrStdout(), app.reportRenderer(report)); err != nil {
		return err
	}

	if !report.Success {
		failed := 0
		for _, result := range report.Results {
			if result.Outcome != domain.OutcomeDelivered {
				failed++
			}
		}
		return fmt.Errorf("dispatch incomplete: %d of %d target(s) not delivered", failed, len(report.Results))
	}

	return nil
}

func parseEnvPairs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	env := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("malformed env pair %q, want KEY=VALUE", pair)
		}
		env[key] = value
	}

	return env, nil
}
