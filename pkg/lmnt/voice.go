package lmnt

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
)

// VoiceService provides voice management operations.
type VoiceService struct {
	client *Client
}

func newVoiceService(client *Client) *VoiceService {
	return &VoiceService{client: client}
}

// List returns the voices available to the account.
func (s *VoiceService) List(ctx context.Context, opts *ListVoicesOptions) ([]Voice, error) {
	query := url.Values{}
	if opts != nil {
		if opts.Owner != "" {
			query.Set("owner", string(opts.Owner))
		}
		if opts.Starred {
			query.Set("starred", "true")
		}
	}

	var voices []Voice
	err := s.client.http.request(ctx, call{
		op:     "Voices.List",
		method: http.MethodGet,
		path:   "/v1/ai/voice/list",
		query:  query,
	}, &voices)
	if err != nil {
		return nil, err
	}
	return voices, nil
}

// Get returns one voice.
func (s *VoiceService) Get(ctx context.Context, id string) (*Voice, error) {
	const op = "Voices.Get"
	if id == "" {
		return nil, configError(op, "voice id is required")
	}

	var voice Voice
	err := s.client.http.request(ctx, call{
		op:     op,
		method: http.MethodGet,
		path:   "/v1/ai/voice/" + url.PathEscape(id),
	}, &voice)
	if err != nil {
		return nil, err
	}
	return &voice, nil
}

// Create trains a new voice from audio samples. The files are streamed,
// not buffered.
func (s *VoiceService) Create(ctx context.Context, req *CreateVoiceRequest) (*Voice, error) {
	const op = "Voices.Create"
	if req == nil || req.Name == "" {
		return nil, configError(op, "name is required")
	}
	if len(req.Files) == 0 {
		return nil, configError(op, "at least one file is required")
	}
	if len(req.Files) > MaxVoiceFiles {
		return nil, configError(op, "%d files given, max %d", len(req.Files), MaxVoiceFiles)
	}

	fields := map[string]string{
		"name":    req.Name,
		"enhance": strconv.FormatBool(req.Enhance),
	}
	if req.Description != "" {
		fields["description"] = req.Description
	}
	if req.Gender != "" {
		fields["gender"] = req.Gender
	}

	files := make([]formFile, len(req.Files))
	for i, f := range req.Files {
		if f.Reader == nil {
			return nil, configError(op, "file %d has no reader", i)
		}
		name := f.Filename
		if name == "" {
			name = fmt.Sprintf("sample%d.wav", i)
		}
		files[i] = formFile{field: "files", filename: filepath.Base(name), reader: f.Reader}
	}

	data, err := s.client.http.upload(ctx, op, "/v1/ai/voice", fields, files)
	if err != nil {
		return nil, err
	}
	var voice Voice
	if err := decodeJSON(op, data, &voice); err != nil {
		return nil, err
	}
	return &voice, nil
}

// Update changes voice metadata and returns the updated voice.
func (s *VoiceService) Update(ctx context.Context, id string, req *UpdateVoiceRequest) (*Voice, error) {
	const op = "Voices.Update"
	if id == "" {
		return nil, configError(op, "voice id is required")
	}
	if req == nil {
		req = &UpdateVoiceRequest{}
	}

	var resp struct {
		Voice Voice `json:"voice"`
	}
	err := s.client.http.request(ctx, call{
		op:     op,
		method: http.MethodPut,
		path:   "/v1/ai/voice/" + url.PathEscape(id),
		body:   req,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp.Voice, nil
}

// Delete removes a voice owned by the account.
func (s *VoiceService) Delete(ctx context.Context, id string) error {
	const op = "Voices.Delete"
	if id == "" {
		return configError(op, "voice id is required")
	}
	return s.client.http.request(ctx, call{
		op:     op,
		method: http.MethodDelete,
		path:   "/v1/ai/voice/" + url.PathEscape(id),
	}, nil)
}
