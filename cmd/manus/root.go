package main

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"manus/internal/agent"
	"manus/internal/config"
	"manus/internal/llm"
	"manus/internal/logger"
	"manus/internal/runner"
	"manus/internal/trace"

	"github.com/spf13/cobra"
)

// agentFactory creates the agent for one run. Tests replace it.
type agentFactory func(ctx context.Context, cfg *config.Config, profile string, provider llm.Provider) (runner.Agent, error)

func newAgent(ctx context.Context, cfg *config.Config, profile string, provider llm.Provider) (runner.Agent, error) {
	opts := []agent.Option{
		agent.WithConfig(cfg.Agent),
		agent.WithTools(cfg.Tools),
		agent.WithProfile(profile),
	}
	if cfg.History.Enabled {
		opts = append(opts, agent.WithHistory(cfg.History.Path))
	}
	m, err := agent.Create(ctx, provider, opts...)
	if err != nil {
		return nil, err
	}
	return m, nil
}

type rootFlags struct {
	config  string
	prompt  string
	profile string
	model   string
}

func newRootCmd(create agentFactory) *cobra.Command {
	var (
		flags rootFlags
		cfg   *config.Config
	)

	cmd := &cobra.Command{
		Use:          "manus",
		Short:        "Manus runs a general-purpose agent on a single prompt",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(flags.config)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			logger.Init(cfg.Log)

			names := cfg.ProfileNames()
			if !slices.Contains(names, flags.profile) {
				return fmt.Errorf("invalid --llm-config %q (choose from %s)", flags.profile, strings.Join(names, ", "))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			shutdown, err := trace.Init(ctx, cfg.Trace)
			if err != nil {
				return fmt.Errorf("initializing tracing: %w", err)
			}
			defer func() {
				if err := shutdown(context.WithoutCancel(ctx)); err != nil {
					slog.Warn("trace shutdown failed", "error", err)
				}
			}()

			return runner.Run(ctx, runner.Options{
				Prompt:  flags.prompt,
				Profile: flags.profile,
				Model:   flags.model,
			}, runner.Deps{
				Profiles: cfg.LLM,
				NewLLM: func(key string, configs map[string]config.LLMConfig) (llm.Provider, error) {
					c, err := llm.New(key, configs, llm.WithBreaker(cfg.Breaker))
					if err != nil {
						return nil, err
					}
					return c, nil
				},
				NewAgent: func(ctx context.Context, provider llm.Provider) (runner.Agent, error) {
					return create(ctx, cfg, flags.profile, provider)
				},
				Stdin:  cmd.InOrStdin(),
				Stdout: cmd.OutOrStdout(),
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.prompt, "prompt", "", "prompt text; read from the terminal when empty")
	f.StringVar(&flags.profile, "llm-config", config.DefaultProfile, "LLM profile name from the config file")
	f.StringVar(&flags.model, "model", "", "override the model of the selected profile")
	f.StringVar(&flags.config, "config", "", "config file (default $MANUS_CONFIG or the user config dir)")

	cmd.RegisterFlagCompletionFunc("llm-config", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		c, err := config.Load(flags.config)
		if err != nil {
			return nil, cobra.ShellCompDirectiveError
		}
		return c.ProfileNames(), cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}
