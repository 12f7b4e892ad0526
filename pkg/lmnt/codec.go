package lmnt

import (
	"encoding/json"
	"fmt"
)

// Protocol selects the wire shape of control commands on a session.
type Protocol int

const (
	// ProtocolVersioned sends nonce-tagged commands ({"command":"flush","nonce":n})
	// and receives {"complete":...} acknowledgements. It is the default.
	ProtocolVersioned Protocol = iota

	// ProtocolLegacy sends bare {"flush":true} / {"eof":true} objects. It has
	// no reset command and the server sends no acknowledgements.
	ProtocolLegacy
)

// protocolVersion is the marker the versioned protocol puts in the init frame.
const protocolVersion = 2

func (p Protocol) String() string {
	switch p {
	case ProtocolVersioned:
		return "versioned"
	case ProtocolLegacy:
		return "legacy"
	default:
		return fmt.Sprintf("protocol(%d)", int(p))
	}
}

// FrameType is the type of a duplex channel frame.
type FrameType int

const (
	FrameText FrameType = iota + 1
	FrameBinary
)

// Frame is one message sent or received over a duplex channel.
type Frame struct {
	Type FrameType
	Data []byte
}

// EventType identifies the payload of an Event.
type EventType string

const (
	// EventAudio carries one chunk of synthesized audio.
	EventAudio EventType = "audio"

	// EventExtras carries word durations, warnings and buffer state. Only
	// produced when extras were requested.
	EventExtras EventType = "extras"

	// EventAck acknowledges a flush or reset command.
	EventAck EventType = "ack"
)

// Event is one inbound session event. Errors and end of stream are not
// events: they terminate the sequence.
type Event struct {
	Type EventType `json:"type"`

	// Audio is set for EventAudio.
	Audio []byte `json:"audio,omitempty"`

	// Durations, Warning and BufferEmpty are set for EventExtras.
	Durations   []WordDuration `json:"durations,omitempty"`
	Warning     string         `json:"warning,omitempty"`
	BufferEmpty *bool          `json:"buffer_empty,omitempty"`

	// Ack is set for EventAck.
	Ack *Ack `json:"ack,omitempty"`
}

// Ack echoes the command name and nonce of an acknowledged command.
type Ack struct {
	Command string `json:"complete"`
	Nonce   int    `json:"nonce"`
}

// Command names used by the versioned protocol.
const (
	CommandFlush = "flush"
	CommandReset = "reset"
	CommandEOF   = "eof"
)

type initMessage struct {
	APIKey          string   `json:"X-API-Key"`
	Voice           string   `json:"voice"`
	Format          Format   `json:"format,omitempty"`
	Language        Language `json:"language,omitempty"`
	SampleRate      int      `json:"sample_rate,omitempty"`
	Speed           *float64 `json:"speed,omitempty"`
	Expressive      *float64 `json:"expressive,omitempty"`
	SendExtras      *bool    `json:"send_extras,omitempty"`
	Conversational  *bool    `json:"conversational,omitempty"`
	ProtocolVersion int      `json:"protocol_version,omitempty"`
}

type textMessage struct {
	Text string `json:"text"`
}

type commandMessage struct {
	Command string `json:"command"`
	Nonce   int    `json:"nonce,omitempty"`
}

// EncodeInit builds the initialization frame. Optional settings that are
// unset are left out of the object entirely.
func EncodeInit(apiKey string, cfg *SessionConfig) (Frame, error) {
	if apiKey == "" {
		return Frame{}, &Error{Kind: KindConfiguration, Op: "EncodeInit", Err: ErrMissingAPIKey}
	}
	if cfg == nil || cfg.Voice == "" {
		return Frame{}, configError("EncodeInit", "voice is required")
	}
	msg := initMessage{
		APIKey:         apiKey,
		Voice:          cfg.Voice,
		Format:         cfg.Format,
		Language:       cfg.Language,
		SampleRate:     cfg.SampleRate,
		Speed:          cfg.Speed,
		Expressive:     cfg.Expressive,
		Conversational: cfg.Conversational,
	}
	if cfg.Extras {
		msg.SendExtras = boolPtr(true)
	}
	if cfg.Protocol == ProtocolVersioned {
		msg.ProtocolVersion = protocolVersion
	}
	return textFrame(msg)
}

// EncodeAppendText encodes an append message. Empty text is allowed.
func EncodeAppendText(text string) (Frame, error) {
	return textFrame(textMessage{Text: text})
}

// EncodeFlush encodes a flush command.
func EncodeFlush(p Protocol, nonce int) (Frame, error) {
	if p == ProtocolLegacy {
		return textFrame(map[string]bool{"flush": true})
	}
	return textFrame(commandMessage{Command: CommandFlush, Nonce: nonce})
}

// EncodeReset encodes a reset command. The legacy protocol has no reset.
func EncodeReset(p Protocol, nonce int) (Frame, error) {
	if p == ProtocolLegacy {
		return Frame{}, configError("EncodeReset", "reset is not supported by the legacy protocol")
	}
	return textFrame(commandMessage{Command: CommandReset, Nonce: nonce})
}

// EncodeFinish encodes the end-of-input command.
func EncodeFinish(p Protocol) (Frame, error) {
	if p == ProtocolLegacy {
		return textFrame(map[string]bool{"eof": true})
	}
	return textFrame(commandMessage{Command: CommandEOF})
}

// DecodeFrame classifies an inbound frame. Binary frames are audio. Text
// frames are checked for "error", then "complete", then (when extras is
// set) any extras key; anything else is a protocol error.
//
// An {"error": ...} frame is returned as a service error.
func DecodeFrame(f Frame, extras bool) (*Event, error) {
	const op = "DecodeFrame"
	switch f.Type {
	case FrameBinary:
		return &Event{Type: EventAudio, Audio: f.Data}, nil
	case FrameText:
	default:
		return nil, protocolError(op, ErrUnexpectedMessage, "unexpected frame type %d", f.Type)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(f.Data, &fields); err != nil {
		return nil, protocolError(op, err, "invalid JSON received from server: %s", truncate(f.Data))
	}

	if raw, ok := fields["error"]; ok {
		var msg string
		if err := json.Unmarshal(raw, &msg); err != nil {
			msg = string(raw)
		}
		return nil, &Error{Kind: KindService, Op: "Session", Message: msg}
	}

	if _, ok := fields["complete"]; ok {
		var ack Ack
		if err := json.Unmarshal(f.Data, &ack); err != nil {
			return nil, protocolError(op, err, "invalid acknowledgement: %s", truncate(f.Data))
		}
		return &Event{Type: EventAck, Ack: &ack}, nil
	}

	if extras && hasAny(fields, "durations", "warning", "buffer_empty") {
		var msg struct {
			Durations   []WordDuration `json:"durations"`
			Warning     string         `json:"warning"`
			BufferEmpty *bool          `json:"buffer_empty"`
		}
		if err := json.Unmarshal(f.Data, &msg); err != nil {
			return nil, protocolError(op, err, "invalid extras: %s", truncate(f.Data))
		}
		return &Event{
			Type:        EventExtras,
			Durations:   msg.Durations,
			Warning:     msg.Warning,
			BufferEmpty: msg.BufferEmpty,
		}, nil
	}

	return nil, protocolError(op, ErrUnexpectedMessage, "%s", truncate(f.Data))
}

func textFrame(v any) (Frame, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Frame{}, fmt.Errorf("lmnt: marshal frame: %w", err)
	}
	return Frame{Type: FrameText, Data: data}, nil
}

func hasAny(fields map[string]json.RawMessage, keys ...string) bool {
	for _, k := range keys {
		if _, ok := fields[k]; ok {
			return true
		}
	}
	return false
}

func truncate(b []byte) string {
	const limit = 200
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}

func boolPtr(b bool) *bool { return &b }
