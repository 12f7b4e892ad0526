package lmnt

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"strconv"
	"unicode/utf8"
)

// SpeechService provides one-shot synthesis and voice conversion.
type SpeechService struct {
	client *Client
}

func newSpeechService(client *Client) *SpeechService {
	return &SpeechService{client: client}
}

// Generate synthesizes text and returns the complete audio file.
func (s *SpeechService) Generate(ctx context.Context, req *GenerateRequest) ([]byte, error) {
	const op = "Speech.Generate"
	if err := req.validate(op); err != nil {
		return nil, err
	}
	s.client.config.logger.Debug("lmnt: generate", "voice", req.Voice, "format", req.Format, "text_len", len(req.Text))
	return s.client.http.requestBytes(ctx, call{
		op:     op,
		method: http.MethodPost,
		path:   "/v1/ai/speech/bytes",
		body:   req,
		accept: "application/octet-stream",
	})
}

// GenerateStream is like Generate but returns the response body as it
// arrives. With a streamable format the chunks can be played right away.
// The caller must close the returned reader.
//
// Example:
//
//	body, err := client.Speech.GenerateStream(ctx, &lmnt.GenerateRequest{
//	    Text:   "Hello, world.",
//	    Voice:  "leah",
//	    Format: lmnt.FormatMP3,
//	})
//	if err != nil {
//	    return err
//	}
//	defer body.Close()
//	io.Copy(out, body)
func (s *SpeechService) GenerateStream(ctx context.Context, req *GenerateRequest) (io.ReadCloser, error) {
	const op = "Speech.GenerateStream"
	if err := req.validate(op); err != nil {
		return nil, err
	}
	return s.client.http.requestStream(ctx, call{
		op:     op,
		method: http.MethodPost,
		path:   "/v1/ai/speech/bytes",
		body:   req,
		accept: "application/octet-stream",
	})
}

// GenerateDetailed synthesizes text and returns the audio together with
// the seed and, if ReturnDurations is set, word durations. It waits for the
// whole synthesis before responding.
func (s *SpeechService) GenerateDetailed(ctx context.Context, req *GenerateRequest) (*GenerateDetailedResponse, error) {
	const op = "Speech.GenerateDetailed"
	if err := req.validate(op); err != nil {
		return nil, err
	}

	var apiResp struct {
		Audio     string         `json:"audio"`
		Seed      int            `json:"seed"`
		Durations []WordDuration `json:"durations"`
	}
	err := s.client.http.request(ctx, call{
		op:     op,
		method: http.MethodPost,
		path:   "/v1/ai/speech",
		body:   req,
	}, &apiResp)
	if err != nil {
		return nil, err
	}

	audio, err := base64.StdEncoding.DecodeString(apiResp.Audio)
	if err != nil {
		return nil, protocolError(op, err, "decode audio")
	}
	return &GenerateDetailedResponse{
		Audio:     audio,
		Seed:      apiResp.Seed,
		Durations: apiResp.Durations,
	}, nil
}

// Convert re-voices recorded speech into the requested voice and returns
// the converted audio file.
func (s *SpeechService) Convert(ctx context.Context, req *ConvertRequest) ([]byte, error) {
	const op = "Speech.Convert"
	if req == nil || req.Audio == nil {
		return nil, configError(op, "audio is required")
	}
	if req.Voice == "" {
		return nil, configError(op, "voice is required")
	}
	if err := validateOutput(op, req.Format, req.SampleRate); err != nil {
		return nil, err
	}

	fields := map[string]string{"voice": req.Voice}
	if req.Format != "" {
		fields["format"] = string(req.Format)
	}
	if req.Language != "" {
		fields["language"] = string(req.Language)
	}
	if req.SampleRate != 0 {
		fields["sample_rate"] = strconv.Itoa(req.SampleRate)
	}

	filename := req.Filename
	if filename == "" {
		filename = "audio.wav"
	}
	return s.client.http.upload(ctx, op, "/v1/ai/speech/convert", fields, []formFile{
		{field: "audio", filename: filename, reader: req.Audio},
	})
}

func (r *GenerateRequest) validate(op string) error {
	if r == nil || r.Text == "" {
		return configError(op, "text is required")
	}
	if n := utf8.RuneCountInString(r.Text); n > MaxTextLength {
		return configError(op, "text is %d characters, max %d", n, MaxTextLength)
	}
	if r.Voice == "" {
		return configError(op, "voice is required")
	}
	return validateOutput(op, r.Format, r.SampleRate)
}

func validateOutput(op string, format Format, sampleRate int) error {
	if !format.Valid() {
		return configError(op, "unsupported format %q", format)
	}
	if !validSampleRate(sampleRate) {
		return configError(op, "unsupported sample rate %d", sampleRate)
	}
	return nil
}
