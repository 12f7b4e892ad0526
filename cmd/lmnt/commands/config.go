package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lmnt-com/lmnt-go/pkg/cli"
	"github.com/lmnt-com/lmnt-go/pkg/lmnt"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage CLI configuration",
	Long: `Manage CLI configuration and contexts.

Contexts allow you to manage multiple API configurations,
similar to kubectl's context management.

Configuration is stored in ~/.lmnt/lmnt/config.yaml`,
}

var (
	addContext cli.Context
	addExtra   map[string]string
)

var configAddContextCmd = &cobra.Command{
	Use:   "add-context <name>",
	Short: "Add or replace a context",
	Long: `Add a context with the specified name.

Example:
  lmnt config add-context prod --api-key YOUR_API_KEY --default-voice leah
  lmnt config add-context staging --api-key KEY --base-url https://staging.example.com`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := addContext
		if ctx.APIKey == "" {
			ctx.APIKey = apiKey
		}
		if ctx.APIKey == "" {
			return fmt.Errorf("--api-key is required")
		}
		switch ctx.Protocol {
		case "", "versioned", "legacy":
		default:
			return fmt.Errorf("invalid --protocol %q: want versioned or legacy", ctx.Protocol)
		}
		if ctx.DefaultFormat != "" && !lmnt.Format(ctx.DefaultFormat).Valid() {
			return fmt.Errorf("invalid --default-format %q", ctx.DefaultFormat)
		}
		for k, v := range addExtra {
			ctx.SetExtra(k, v)
		}

		if err := getConfig().AddContext(args[0], &ctx); err != nil {
			return err
		}
		cli.PrintSuccess("Context %q added successfully", args[0])
		return nil
	},
}

var configDeleteContextCmd = &cobra.Command{
	Use:   "delete-context <name>",
	Short: "Delete a context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := getConfig().DeleteContext(args[0]); err != nil {
			return err
		}
		cli.PrintSuccess("Context %q deleted", args[0])
		return nil
	},
}

var configUseContextCmd = &cobra.Command{
	Use:   "use-context <name>",
	Short: "Set the current context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := getConfig().UseContext(args[0]); err != nil {
			return err
		}
		cli.PrintSuccess("Switched to context %q", args[0])
		return nil
	},
}

var configGetContextCmd = &cobra.Command{
	Use:   "get-context",
	Short: "Display the current context",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfig()
		if cfg.CurrentContext == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "No current context set")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), cfg.CurrentContext)
		return nil
	},
}

type contextTable struct {
	current  string
	contexts []*cli.Context
}

func (c contextTable) Table() cli.Table {
	t := cli.Table{Headers: []string{"CURRENT", "NAME", "BASE_URL", "DEFAULT_VOICE", "PROTOCOL"}}
	for _, ctx := range c.contexts {
		current := ""
		if ctx.Name == c.current {
			current = "*"
		}
		baseURL := ctx.BaseURL
		if baseURL == "" {
			baseURL = "(default)"
		}
		protocol := ctx.Protocol
		if protocol == "" {
			protocol = "versioned"
		}
		t.Rows = append(t.Rows, []string{current, ctx.Name, baseURL, ctx.DefaultVoice, protocol})
	}
	return t
}

var configListContextsCmd = &cobra.Command{
	Use:     "list-contexts",
	Aliases: []string{"get-contexts"},
	Short:   "List all contexts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfig()
		if len(cfg.Contexts) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No contexts configured")
			return nil
		}
		t := contextTable{current: cfg.CurrentContext}
		for _, name := range cfg.ListContexts() {
			t.contexts = append(t.contexts, cfg.Contexts[name].Masked())
		}
		if outputJSON || query != "" {
			return outputResult(cmd, t.contexts)
		}
		return outputTable(cmd, t)
	},
}

var configViewCmd = &cobra.Command{
	Use:   "view",
	Short: "View the current configuration with secrets masked",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfig()
		contexts := make(map[string]*cli.Context, len(cfg.Contexts))
		for name, ctx := range cfg.Contexts {
			contexts[name] = ctx.Masked()
		}
		return outputResult(cmd, map[string]any{
			"path":            cfg.Path(),
			"current_context": cfg.CurrentContext,
			"contexts":        contexts,
		})
	},
}

func init() {
	fs := configAddContextCmd.Flags()
	// --api-key is a root persistent flag; add-context reads it from there.
	fs.StringVar(&addContext.BaseURL, "base-url", "", "API base URL")
	fs.StringVar(&addContext.StreamURL, "stream-url", "", "streaming WebSocket URL")
	fs.IntVar(&addContext.Timeout, "timeout", 0, "request timeout in seconds")
	fs.IntVar(&addContext.MaxRetries, "max-retries", 0, "maximum retries for failed requests")
	fs.StringVar(&addContext.DefaultVoice, "default-voice", "", "default voice id")
	fs.StringVar(&addContext.DefaultFormat, "default-format", "", "default audio format")
	fs.StringVar(&addContext.Protocol, "protocol", "", "streaming control protocol: versioned or legacy")
	fs.StringToStringVar(&addExtra, "extra", nil, "integration settings, e.g. openai_model=gpt-4o")

	configCmd.AddCommand(configAddContextCmd)
	configCmd.AddCommand(configDeleteContextCmd)
	configCmd.AddCommand(configUseContextCmd)
	configCmd.AddCommand(configGetContextCmd)
	configCmd.AddCommand(configListContextsCmd)
	configCmd.AddCommand(configViewCmd)
}
