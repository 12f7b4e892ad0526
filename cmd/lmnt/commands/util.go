package commands

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lmnt-com/lmnt-go/pkg/cli"
	"github.com/lmnt-com/lmnt-go/pkg/kv"
	"github.com/lmnt-com/lmnt-go/pkg/lmnt"
	"github.com/lmnt-com/lmnt-go/pkg/storage"
	"github.com/lmnt-com/lmnt-go/pkg/voicecache"
)

// formatUsage is the --format help text, listing the formats the client
// accepts.
func formatUsage() string {
	names := make([]string, len(lmnt.Formats))
	for i, f := range lmnt.Formats {
		names[i] = string(f)
	}
	return "audio format: " + strings.Join(names, ", ")
}

// resolveAPIKey applies --api-key > context > LMNT_API_KEY. The last step
// happens inside lmnt.NewClient when the returned key is empty.
func resolveAPIKey(ctx *cli.Context) string {
	if apiKey != "" {
		return apiKey
	}
	return ctx.APIKey
}

// createClient creates an LMNT client from context configuration.
func createClient(ctx *cli.Context) (*lmnt.Client, error) {
	opts := []lmnt.Option{lmnt.WithLogger(slog.Default())}
	if ctx.BaseURL != "" {
		opts = append(opts, lmnt.WithBaseURL(ctx.BaseURL))
	}
	if ctx.StreamURL != "" {
		opts = append(opts, lmnt.WithStreamURL(ctx.StreamURL))
	}
	if ctx.Timeout > 0 {
		opts = append(opts, lmnt.WithTimeout(time.Duration(ctx.Timeout)*time.Second))
	}
	if ctx.MaxRetries > 0 {
		opts = append(opts, lmnt.WithRetry(ctx.MaxRetries))
	}

	client := lmnt.NewClient(resolveAPIKey(ctx), opts...)
	if !client.HasAPIKey() {
		return nil, fmt.Errorf("no API key: use --api-key, a context with an api key, or set %s", lmnt.EnvAPIKey)
	}
	printVerbose("Using context: %s (key %s)", ctx.Name, cli.MaskAPIKey(resolveAPIKey(ctx)))
	return client, nil
}

// requestContext bounds a single command.
func requestContext(ctx *cli.Context, def time.Duration) (context.Context, context.CancelFunc) {
	if ctx.Timeout > 0 {
		def = time.Duration(ctx.Timeout) * time.Second
	}
	return context.WithTimeout(context.Background(), def)
}

func outputFormat() cli.OutputFormat {
	if outputJSON {
		return cli.FormatJSON
	}
	return cli.FormatYAML
}

// outputResult writes structured output to the command's stdout.
func outputResult(cmd *cobra.Command, result any) error {
	return cli.Output(result, cli.OutputOptions{
		Format: outputFormat(),
		Query:  query,
		Writer: cmd.OutOrStdout(),
	})
}

// outputTable renders tabular results unless --json or --query is set.
func outputTable(cmd *cobra.Command, result any) error {
	if outputJSON || query != "" {
		return outputResult(cmd, result)
	}
	return cli.Output(result, cli.OutputOptions{
		Format: cli.FormatTable,
		Writer: cmd.OutOrStdout(),
	})
}

// requireOutput checks that -o was given for commands producing audio.
func requireOutput() error {
	if outputFile == "" {
		return errors.New("output is required for audio, use -o (local path or s3://bucket/key)")
	}
	return nil
}

// saveAudio streams r to the -o destination and returns its location and
// size.
func saveAudio(ctx context.Context, r io.Reader, format lmnt.Format) (string, int64, error) {
	store, key, err := storage.Open(ctx, outputFile, nil)
	if err != nil {
		return "", 0, err
	}
	cr := &countingReader{r: r}
	if err := store.Put(ctx, key, cr, storage.ContentType(string(format))); err != nil {
		return "", 0, fmt.Errorf("failed to write audio: %w", err)
	}
	printVerbose("Audio saved to: %s", store.URI(key))
	return store.URI(key), cr.n, nil
}

func saveAudioBytes(ctx context.Context, data []byte, format lmnt.Format) (string, error) {
	uri, _, err := saveAudio(ctx, bytes.NewReader(data), format)
	return uri, err
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// openVoiceCache opens the badger-backed voice cache next to the config
// file.
func openVoiceCache() (*voicecache.Cache, func() error, error) {
	dir := getConfig().CachePath("voices")
	store, err := kv.NewBadger(kv.BadgerOptions{Dir: dir, Logger: slog.Default()})
	if err != nil {
		return nil, nil, fmt.Errorf("open voice cache: %w", err)
	}
	return voicecache.New(store), store.Close, nil
}

// resolveVoice maps a cached voice name to its id. Unknown names are
// passed through for the service to validate.
func resolveVoice(ctx context.Context, nameOrID string) string {
	if nameOrID == "" {
		return ""
	}
	cache, closeCache, err := openVoiceCache()
	if err != nil {
		slog.Debug("voice cache unavailable", "error", err)
		return nameOrID
	}
	defer closeCache()

	v, err := cache.Resolve(ctx, nameOrID)
	if err != nil {
		return nameOrID
	}
	if v.ID != nameOrID {
		printVerbose("Resolved voice %q to %s", nameOrID, v.ID)
	}
	return v.ID
}
