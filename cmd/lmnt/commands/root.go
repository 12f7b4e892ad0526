package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/lmnt-com/lmnt-go/pkg/cli"
)

const appName = "lmnt"

var (
	// Global flags
	cfgFile     string
	contextName string
	outputFile  string
	inputFile   string
	outputJSON  bool
	query       string
	verbose     bool
	apiKey      string

	globalConfig *cli.Config
)

var rootCmd = &cobra.Command{
	Use:   "lmnt",
	Short: "LMNT API CLI tool",
	Long: `LMNT CLI - A command line interface for the LMNT speech API.

  - Speech synthesis (one-shot, detailed, streaming sessions)
  - Voice conversion
  - Voice management (list, create, update, delete)
  - Account plan and usage

Configuration is stored in ~/.lmnt/lmnt/ and supports multiple contexts,
similar to kubectl's context management. Without a context the API key
is read from LMNT_API_KEY (a .env file in the working directory is loaded).

Examples:
  # Set up a new context
  lmnt config add-context prod --api-key YOUR_API_KEY --default-voice leah

  # Synthesize to a local file or an S3 object
  lmnt speech synthesize "Hello world" -o hello.mp3
  lmnt speech synthesize -f speech.yaml -o s3://my-bucket/tts/hello.mp3

  # Stream stdin lines through a realtime session
  cat script.txt | lmnt speech stream --extras -o script.mp3

  # Filter structured output with jq
  lmnt voice list --json -q '.[] | select(.owner == "me") | .id'
`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(loadEnv, initLogging, initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.lmnt/lmnt/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&contextName, "context", "c", "", "context name to use")
	rootCmd.PersistentFlags().StringVarP(&outputFile, "output", "o", "", "audio output: local path or s3://bucket/key")
	rootCmd.PersistentFlags().StringVarP(&inputFile, "file", "f", "", "input request file (YAML or JSON, - for stdin)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output as JSON (for piping)")
	rootCmd.PersistentFlags().StringVarP(&query, "query", "q", "", "jq expression applied to structured output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output and debug logs")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "API key (overrides context and LMNT_API_KEY)")

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(speechCmd)
	rootCmd.AddCommand(voiceCmd)
	rootCmd.AddCommand(accountCmd)
}

func loadEnv() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		cli.PrintWarning("failed to load .env: %v", err)
	}
}

func initLogging() {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func initConfig() {
	var err error
	globalConfig, err = cli.LoadConfigWithPath(appName, cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing config: %v\n", err)
		os.Exit(1)
	}
}

func getConfig() *cli.Config {
	return globalConfig
}

// getContext returns the selected context. With no -c flag and no current
// context an empty context is returned so the client falls back to the
// environment.
func getContext() (*cli.Context, error) {
	cfg := getConfig()
	if cfg == nil {
		return nil, fmt.Errorf("configuration not initialized")
	}
	if contextName == "" && cfg.CurrentContext == "" {
		return &cli.Context{Name: "(env)"}, nil
	}
	return cfg.ResolveContext(contextName)
}

func printVerbose(format string, args ...any) {
	cli.PrintVerbose(verbose, format, args...)
}
