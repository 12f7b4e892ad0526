package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/lmnt-com/lmnt-go/pkg/cli"
	"github.com/lmnt-com/lmnt-go/pkg/lmnt"
)

var speechCmd = &cobra.Command{
	Use:   "speech",
	Short: "Speech synthesis service",
	Long: `Speech synthesis (TTS) service.

Supports one-shot synthesis, detailed synthesis with word durations,
voice conversion, and realtime streaming sessions.

Example request file (speech.yaml):
  text: Hello, this is a test message.
  voice: leah
  format: mp3
  sample_rate: 24000
  speed: 1.0
  language: en`,
}

// speechFlags are the synthesis options shared by speech commands. Only
// flags the user set override the request file.
type speechFlags struct {
	voice          string
	format         string
	language       string
	model          string
	sampleRate     int
	seed           int
	speed          float64
	temperature    float64
	topP           float64
	length         float64
	conversational bool
}

func (f *speechFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.voice, "voice", "", "voice id or cached voice name")
	fs.StringVar(&f.format, "format", "", formatUsage())
	fs.StringVar(&f.language, "language", "", "two-letter language code, or auto")
	fs.StringVar(&f.model, "model", "", "model name")
	fs.IntVar(&f.sampleRate, "sample-rate", 0, "sample rate: 8000, 16000 or 24000")
	fs.IntVar(&f.seed, "seed", 0, "seed for reproducible output")
	fs.Float64Var(&f.speed, "speed", 0, "speaking speed (0.25 to 2.0)")
	fs.Float64Var(&f.temperature, "temperature", 0, "sampling temperature")
	fs.Float64Var(&f.topP, "top-p", 0, "nucleus sampling cutoff")
	fs.Float64Var(&f.length, "length", 0, "target length in seconds")
	fs.BoolVar(&f.conversational, "conversational", false, "conversational speaking style")
}

func (f *speechFlags) apply(fs *pflag.FlagSet, req *lmnt.GenerateRequest) {
	if fs.Changed("voice") {
		req.Voice = f.voice
	}
	if fs.Changed("format") {
		req.Format = lmnt.Format(f.format)
	}
	if fs.Changed("language") {
		req.Language = lmnt.Language(f.language)
	}
	if fs.Changed("model") {
		req.Model = f.model
	}
	if fs.Changed("sample-rate") {
		req.SampleRate = f.sampleRate
	}
	if fs.Changed("seed") {
		req.Seed = lmnt.Ptr(f.seed)
	}
	if fs.Changed("speed") {
		req.Speed = lmnt.Ptr(f.speed)
	}
	if fs.Changed("temperature") {
		req.Temperature = lmnt.Ptr(f.temperature)
	}
	if fs.Changed("top-p") {
		req.TopP = lmnt.Ptr(f.topP)
	}
	if fs.Changed("length") {
		req.Length = lmnt.Ptr(f.length)
	}
	if fs.Changed("conversational") {
		req.Conversational = lmnt.Ptr(f.conversational)
	}
}

var (
	synthesizeFlags speechFlags
	detailedFlags   speechFlags
	convertFlags    speechFlags
)

// buildGenerateRequest merges the request file, positional text, flags and
// context defaults, in increasing precedence except for defaults.
func buildGenerateRequest(cmd *cobra.Command, args []string, flags *speechFlags, ctx *cli.Context) (*lmnt.GenerateRequest, error) {
	var req lmnt.GenerateRequest
	if inputFile != "" {
		if err := cli.LoadRequest(inputFile, &req); err != nil {
			return nil, err
		}
	}
	if len(args) > 0 {
		req.Text = strings.Join(args, " ")
	}
	flags.apply(cmd.Flags(), &req)

	if req.Voice == "" {
		req.Voice = ctx.DefaultVoice
	}
	if req.Format == "" && ctx.DefaultFormat != "" {
		req.Format = lmnt.Format(ctx.DefaultFormat)
	}
	if req.Text == "" {
		return nil, fmt.Errorf("text is required: pass it as an argument or in the request file (-f)")
	}
	if req.Voice == "" {
		return nil, fmt.Errorf("voice is required: use --voice or set default_voice on the context")
	}
	return &req, nil
}

var speechSynthesizeCmd = &cobra.Command{
	Use:   "synthesize [text...]",
	Short: "Synthesize speech from text",
	Long: `Synthesize speech from text and stream the audio to the output.

Examples:
  lmnt speech synthesize "Hello there" --voice leah -o hello.mp3
  lmnt speech synthesize -f speech.yaml -o s3://bucket/hello.wav --format wav`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireOutput(); err != nil {
			return err
		}
		ctx, err := getContext()
		if err != nil {
			return err
		}
		req, err := buildGenerateRequest(cmd, args, &synthesizeFlags, ctx)
		if err != nil {
			return err
		}
		client, err := createClient(ctx)
		if err != nil {
			return err
		}

		reqCtx, cancel := requestContext(ctx, 2*time.Minute)
		defer cancel()
		req.Voice = resolveVoice(reqCtx, req.Voice)

		printVerbose("Voice: %s, text length: %d characters", req.Voice, len([]rune(req.Text)))

		body, err := client.Speech.GenerateStream(reqCtx, req)
		if err != nil {
			return fmt.Errorf("speech synthesis failed: %w", err)
		}
		defer body.Close()

		uri, size, err := saveAudio(reqCtx, body, req.Format)
		if err != nil {
			return err
		}
		cli.PrintSuccess("Audio saved to: %s (%s)", uri, cli.FormatBytes(size))

		return outputResult(cmd, map[string]any{
			"voice":      req.Voice,
			"format":     req.Format,
			"audio_size": size,
			"output":     uri,
		})
	},
}

var speechDetailedCmd = &cobra.Command{
	Use:   "detailed [text...]",
	Short: "Synthesize speech with word durations and seed",
	Long: `Synthesize speech and report the seed and per-word durations.

The audio is saved when -o is given.

Examples:
  lmnt speech detailed "Hello there" --voice leah --json
  lmnt speech detailed -f speech.yaml -o take.wav -q '.durations[].text'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, err := getContext()
		if err != nil {
			return err
		}
		req, err := buildGenerateRequest(cmd, args, &detailedFlags, ctx)
		if err != nil {
			return err
		}
		req.ReturnDurations = true
		client, err := createClient(ctx)
		if err != nil {
			return err
		}

		reqCtx, cancel := requestContext(ctx, 2*time.Minute)
		defer cancel()
		req.Voice = resolveVoice(reqCtx, req.Voice)

		resp, err := client.Speech.GenerateDetailed(reqCtx, req)
		if err != nil {
			return fmt.Errorf("speech synthesis failed: %w", err)
		}

		result := map[string]any{
			"seed":       resp.Seed,
			"durations":  resp.Durations,
			"audio_size": len(resp.Audio),
		}
		if outputFile != "" {
			uri, err := saveAudioBytes(reqCtx, resp.Audio, req.Format)
			if err != nil {
				return err
			}
			result["output"] = uri
		}
		return outputResult(cmd, result)
	},
}

var speechConvertCmd = &cobra.Command{
	Use:   "convert <audio-file>",
	Short: "Convert speech into another voice",
	Long: `Re-speak a recording (wav or mp3, at most 1 MB) in the target voice.

Examples:
  lmnt speech convert input.wav --voice leah -o converted.mp3`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireOutput(); err != nil {
			return err
		}
		ctx, err := getContext()
		if err != nil {
			return err
		}

		var gen lmnt.GenerateRequest
		convertFlags.apply(cmd.Flags(), &gen)
		if gen.Voice == "" {
			gen.Voice = ctx.DefaultVoice
		}
		if gen.Voice == "" {
			return fmt.Errorf("voice is required: use --voice or set default_voice on the context")
		}

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		client, err := createClient(ctx)
		if err != nil {
			return err
		}
		reqCtx, cancel := requestContext(ctx, 2*time.Minute)
		defer cancel()

		audio, err := client.Speech.Convert(reqCtx, &lmnt.ConvertRequest{
			Audio:      f,
			Filename:   filepath.Base(args[0]),
			Voice:      resolveVoice(reqCtx, gen.Voice),
			Format:     gen.Format,
			Language:   gen.Language,
			SampleRate: gen.SampleRate,
		})
		if err != nil {
			return fmt.Errorf("voice conversion failed: %w", err)
		}

		uri, err := saveAudioBytes(reqCtx, audio, gen.Format)
		if err != nil {
			return err
		}
		cli.PrintSuccess("Audio saved to: %s (%s)", uri, cli.FormatBytes(int64(len(audio))))
		return outputResult(cmd, map[string]any{
			"source":     args[0],
			"voice":      gen.Voice,
			"audio_size": len(audio),
			"output":     uri,
		})
	},
}

func init() {
	synthesizeFlags.register(speechSynthesizeCmd.Flags())
	detailedFlags.register(speechDetailedCmd.Flags())

	fs := speechConvertCmd.Flags()
	fs.StringVar(&convertFlags.voice, "voice", "", "target voice id or cached voice name")
	fs.StringVar(&convertFlags.format, "format", "", formatUsage())
	fs.StringVar(&convertFlags.language, "language", "", "language code")
	fs.IntVar(&convertFlags.sampleRate, "sample-rate", 0, "sample rate")

	speechCmd.AddCommand(speechSynthesizeCmd)
	speechCmd.AddCommand(speechDetailedCmd)
	speechCmd.AddCommand(speechConvertCmd)
	speechCmd.AddCommand(speechStreamCmd)
	speechCmd.AddCommand(speechChatCmd)
}
