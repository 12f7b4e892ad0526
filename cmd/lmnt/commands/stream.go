package commands

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/spf13/cobra"

	"github.com/lmnt-com/lmnt-go/pkg/cli"
	"github.com/lmnt-com/lmnt-go/pkg/lmnt"
)

// streamRequest is the request file of speech stream: a session config
// plus the text chunks to send.
type streamRequest struct {
	lmnt.SessionConfig `yaml:",inline"`

	Texts []string `json:"texts,omitempty" yaml:"texts,omitempty"`
}

// streamResult summarizes a finished session.
type streamResult struct {
	Session   string              `json:"session" yaml:"session"`
	Protocol  string              `json:"protocol" yaml:"protocol"`
	Chunks    int                 `json:"chunks" yaml:"chunks"`
	AudioSize int                 `json:"audio_size" yaml:"audio_size"`
	Acks      []lmnt.Ack          `json:"acks,omitempty" yaml:"acks,omitempty"`
	Durations []lmnt.WordDuration `json:"durations,omitempty" yaml:"durations,omitempty"`
	Warnings  []string            `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Output    string              `json:"output,omitempty" yaml:"output,omitempty"`
	Elapsed   string              `json:"elapsed" yaml:"elapsed"`

	sent []string
}

type sessionFlags struct {
	voice          string
	format         string
	language       string
	sampleRate     int
	speed          float64
	expressive     float64
	conversational bool
	extras         bool
	legacy         bool
}

func (f *sessionFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.voice, "voice", "", "voice id or cached voice name")
	fs.StringVar(&f.format, "format", "", formatUsage())
	fs.StringVar(&f.language, "language", "", "language code")
	fs.IntVar(&f.sampleRate, "sample-rate", 0, "sample rate: 8000, 16000 or 24000")
	fs.Float64Var(&f.speed, "speed", 0, "speaking speed")
	fs.Float64Var(&f.expressive, "expressive", 0, "expressiveness")
	fs.BoolVar(&f.conversational, "conversational", false, "conversational speaking style")
	fs.BoolVar(&f.extras, "extras", false, "request word durations and buffer state")
	fs.BoolVar(&f.legacy, "legacy", false, "use the legacy control protocol (no reset, no acks)")
}

func (f *sessionFlags) apply(cmd *cobra.Command, cfg *lmnt.SessionConfig, ctx *cli.Context) {
	fs := cmd.Flags()
	if fs.Changed("voice") {
		cfg.Voice = f.voice
	}
	if fs.Changed("format") {
		cfg.Format = lmnt.Format(f.format)
	}
	if fs.Changed("language") {
		cfg.Language = lmnt.Language(f.language)
	}
	if fs.Changed("sample-rate") {
		cfg.SampleRate = f.sampleRate
	}
	if fs.Changed("speed") {
		cfg.Speed = lmnt.Ptr(f.speed)
	}
	if fs.Changed("expressive") {
		cfg.Expressive = lmnt.Ptr(f.expressive)
	}
	if fs.Changed("conversational") {
		cfg.Conversational = lmnt.Ptr(f.conversational)
	}
	if fs.Changed("extras") {
		cfg.Extras = f.extras
	}
	if f.legacy || ctx.Protocol == "legacy" {
		cfg.Protocol = lmnt.ProtocolLegacy
	}
	if cfg.Voice == "" {
		cfg.Voice = ctx.DefaultVoice
	}
	if cfg.Format == "" && ctx.DefaultFormat != "" {
		cfg.Format = lmnt.Format(ctx.DefaultFormat)
	}
}

var (
	streamFlags sessionFlags
	streamTexts []string
	streamFlush bool

	chatFlags   sessionFlags
	chatModel   string
	chatSystem  string
	chatBaseURL string
)

var speechStreamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Synthesize text through a realtime streaming session",
	Long: `Open a full-duplex streaming session and send text incrementally.

Text comes from --text (repeatable), the request file's texts, or stdin
lines, in that order of preference. Each chunk is flushed unless
--flush=false.

Example request file (stream.yaml):
  voice: leah
  format: mp3
  extras: true
  texts:
    - Hello there.
    - This audio was streamed.

Examples:
  lmnt speech stream --text "Hello" --text "world" -o out.mp3
  cat script.txt | lmnt speech stream --extras --voice leah -o out.mp3
  lmnt speech stream -f stream.yaml -o s3://bucket/out.mp3 --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireOutput(); err != nil {
			return err
		}
		ctx, err := getContext()
		if err != nil {
			return err
		}

		var req streamRequest
		if inputFile != "" {
			if err := cli.LoadRequest(inputFile, &req); err != nil {
				return err
			}
		}
		streamFlags.apply(cmd, &req.SessionConfig, ctx)

		texts := req.Texts
		if len(streamTexts) > 0 {
			texts = streamTexts
		}
		var source io.Reader
		if len(texts) == 0 {
			source = cmd.InOrStdin()
		}

		client, err := createClient(ctx)
		if err != nil {
			return err
		}
		runCtx, cancel := requestContext(ctx, 10*time.Minute)
		defer cancel()
		req.Voice = resolveVoice(runCtx, req.Voice)

		return runStream(runCtx, cmd, client, &req.SessionConfig, func(ctx context.Context, sess *lmnt.Session, sent func(string)) error {
			send := func(text string) error {
				if err := sess.AppendText(text); err != nil {
					return err
				}
				sent(text)
				if streamFlush {
					_, err := sess.Flush()
					return err
				}
				return nil
			}
			for _, t := range texts {
				if err := send(t); err != nil {
					return err
				}
			}
			if source == nil {
				return nil
			}
			sc := bufio.NewScanner(source)
			for sc.Scan() {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				line := strings.TrimSpace(sc.Text())
				if line == "" {
					continue
				}
				if err := send(line + " "); err != nil {
					return err
				}
			}
			return sc.Err()
		})
	},
}

var speechChatCmd = &cobra.Command{
	Use:   "chat <prompt...>",
	Short: "Speak a streamed chat completion as it is generated",
	Long: `Stream an OpenAI chat completion into a realtime session so speech
starts before the reply is finished. Requires OPENAI_API_KEY.

Examples:
  lmnt speech chat "Tell me a short story" --voice leah -o story.mp3
  lmnt speech chat --model gpt-4o-mini --system "Answer in one sentence." "What is LMNT?" -o a.mp3`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireOutput(); err != nil {
			return err
		}
		openaiKey := os.Getenv("OPENAI_API_KEY")
		if openaiKey == "" {
			return errors.New("OPENAI_API_KEY is required for speech chat")
		}
		ctx, err := getContext()
		if err != nil {
			return err
		}

		var cfg lmnt.SessionConfig
		chatFlags.apply(cmd, &cfg, ctx)

		model := chatModel
		if m := ctx.GetExtra("openai_model"); m != "" && !cmd.Flags().Changed("model") {
			model = m
		}
		baseURL := chatBaseURL
		if baseURL == "" {
			baseURL = ctx.GetExtra("openai_base_url")
		}

		client, err := createClient(ctx)
		if err != nil {
			return err
		}
		runCtx, cancel := requestContext(ctx, 10*time.Minute)
		defer cancel()
		cfg.Voice = resolveVoice(runCtx, cfg.Voice)

		opts := []option.RequestOption{option.WithAPIKey(openaiKey)}
		if baseURL != "" {
			opts = append(opts, option.WithBaseURL(baseURL))
		}
		llm := openai.NewClient(opts...)

		var messages []openai.ChatCompletionMessageParamUnion
		if chatSystem != "" {
			messages = append(messages, openai.SystemMessage(chatSystem))
		}
		messages = append(messages, openai.UserMessage(strings.Join(args, " ")))

		return runStream(runCtx, cmd, client, &cfg, func(ctx context.Context, sess *lmnt.Session, sent func(string)) error {
			stream := llm.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
				Model:    model,
				Messages: messages,
			})
			defer stream.Close()

			for stream.Next() {
				chunk := stream.Current()
				if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
					continue
				}
				delta := chunk.Choices[0].Delta.Content
				if err := sess.AppendText(delta); err != nil {
					return err
				}
				sent(delta)
			}
			if err := stream.Err(); err != nil && !errors.Is(err, io.EOF) {
				return fmt.Errorf("openai stream: %w", err)
			}
			return nil
		})
	},
}

// producer sends text into a connected session. sent records what was
// sent for the summary.
type producer func(ctx context.Context, sess *lmnt.Session, sent func(string)) error

// runStream connects a session, runs produce concurrently with the reader,
// saves the audio and prints the summary.
func runStream(ctx context.Context, cmd *cobra.Command, client *lmnt.Client, cfg *lmnt.SessionConfig, produce producer) error {
	start := time.Now()
	sess, err := client.Sessions.Connect(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer sess.Close()
	printVerbose("Session %s connected (%s protocol)", sess.ID(), cfg.Protocol)

	res, audio, err := collect(ctx, sess, produce)
	if err != nil {
		return err
	}
	res.Elapsed = cli.FormatDuration(time.Since(start))

	uri, err := saveAudioBytes(ctx, audio, cfg.Format)
	if err != nil {
		return err
	}
	res.Output = uri

	if !outputJSON && query == "" {
		fmt.Fprintln(cmd.ErrOrStderr(), summaryPanel(res).Render(cli.DefaultStyles, 80, 8))
	}
	return outputResult(cmd, res)
}

// collect runs produce, then Finish, while draining responses. A failure
// on either side closes the session so the other side unblocks.
func collect(ctx context.Context, sess *lmnt.Session, produce producer) (*streamResult, []byte, error) {
	res := &streamResult{Session: sess.ID(), Protocol: sess.Config().Protocol.String()}
	var sent []string
	prodErr := make(chan error, 1)

	go func() {
		err := produce(ctx, sess, func(s string) { sent = append(sent, s) })
		if err == nil {
			err = sess.Finish()
		}
		if err != nil {
			sess.Close()
		}
		prodErr <- err
	}()

	var audio bytes.Buffer
	var readErr error
	for r, err := range sess.Responses(ctx) {
		if err != nil {
			readErr = err
			break
		}
		switch {
		case r.Ack != nil:
			res.Acks = append(res.Acks, *r.Ack)
		default:
			res.Chunks++
			audio.Write(r.Audio)
			res.Durations = append(res.Durations, r.Durations...)
			if r.Warning != "" {
				res.Warnings = append(res.Warnings, r.Warning)
				cli.PrintWarning("%s", r.Warning)
			}
		}
	}
	if readErr != nil {
		sess.Close()
		// The producer may be blocked on input; it stops at its next send.
		if !errors.Is(readErr, lmnt.ErrSessionClosed) {
			return nil, nil, readErr
		}
	}

	var perr error
	select {
	case perr = <-prodErr:
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	case <-time.After(producerGrace):
		sess.Close()
		return nil, nil, errors.New("stream ended before all input was sent")
	}
	res.sent = sent

	switch {
	case perr != nil:
		return nil, nil, perr
	case readErr != nil:
		return nil, nil, readErr
	}
	res.AudioSize = audio.Len()
	return res, audio.Bytes(), nil
}

// producerGrace bounds the wait for the producer once the read side has
// ended.
const producerGrace = 2 * time.Second

func summaryPanel(res *streamResult) cli.Panel {
	words := make([]string, 0, len(res.Durations))
	for _, d := range res.Durations {
		if strings.TrimSpace(d.Text) == "" {
			continue
		}
		words = append(words, fmt.Sprintf("%-16s %s +%s", d.Text, cli.FormatSeconds(d.Start), cli.FormatSeconds(d.Duration)))
	}
	sections := []cli.Section{{Label: "Sent", Lines: res.sent}}
	if len(words) > 0 {
		sections = append(sections, cli.Section{Label: "Words", Lines: words})
	}
	if len(res.Warnings) > 0 {
		sections = append(sections, cli.Section{Label: "Warnings", Lines: res.Warnings})
	}
	return cli.Panel{
		Title:    "lmnt session " + res.Session,
		Status:   res.Protocol,
		Sections: sections,
		Help: fmt.Sprintf("%d chunks, %s audio, %d acks in %s",
			res.Chunks, cli.FormatBytes(int64(res.AudioSize)), len(res.Acks), res.Elapsed),
	}
}

func init() {
	streamFlags.register(speechStreamCmd)
	speechStreamCmd.Flags().StringArrayVar(&streamTexts, "text", nil, "text chunk to send (repeatable)")
	speechStreamCmd.Flags().BoolVar(&streamFlush, "flush", true, "flush after each text chunk")

	chatFlags.register(speechChatCmd)
	speechChatCmd.Flags().StringVar(&chatModel, "model", "gpt-4o-mini", "OpenAI chat model")
	speechChatCmd.Flags().StringVar(&chatSystem, "system", "", "system prompt")
	speechChatCmd.Flags().StringVar(&chatBaseURL, "openai-base-url", "", "OpenAI-compatible API base URL")
}
