package lmnt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lmnt-com/lmnt-go/pkg/buffer"
)

// SessionState is the lifecycle state of a Session.
type SessionState int

const (
	StateCreated SessionState = iota
	StateConnecting
	StateOpen
	StateFinishing
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateFinishing:
		return "finishing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// SessionConfig configures a streaming synthesis session. It is fixed once
// the session is created. Zero values and nil pointers are left out of the
// init frame so the service applies its defaults.
type SessionConfig struct {
	// Voice is the voice id. Required.
	Voice string `json:"voice" yaml:"voice"`

	Format     Format   `json:"format,omitempty" yaml:"format,omitempty"`
	Language   Language `json:"language,omitempty" yaml:"language,omitempty"`
	SampleRate int      `json:"sample_rate,omitempty" yaml:"sample_rate,omitempty"`

	Speed          *float64 `json:"speed,omitempty" yaml:"speed,omitempty"`
	Expressive     *float64 `json:"expressive,omitempty" yaml:"expressive,omitempty"`
	Conversational *bool    `json:"conversational,omitempty" yaml:"conversational,omitempty"`

	// Extras requests word durations, warnings and buffer state. Each
	// extras frame is paired with the audio frame that follows it.
	Extras bool `json:"extras,omitempty" yaml:"extras,omitempty"`

	// Protocol selects the control command wire shape.
	Protocol Protocol `json:"-" yaml:"-"`
}

func (c *SessionConfig) validate() error {
	const op = "Sessions.Connect"
	if c == nil || c.Voice == "" {
		return configError(op, "voice is required")
	}
	if !c.Format.Valid() {
		return configError(op, "unsupported format %q", c.Format)
	}
	if !validSampleRate(c.SampleRate) {
		return configError(op, "unsupported sample rate %d", c.SampleRate)
	}
	return nil
}

// SessionService opens streaming synthesis sessions.
type SessionService struct {
	client *Client
}

func newSessionService(c *Client) *SessionService {
	return &SessionService{client: c}
}

// New validates cfg and returns a session in StateCreated. Call Connect to
// open it.
func (s *SessionService) New(cfg *SessionConfig) (*Session, error) {
	if s.client.config.apiKey == "" {
		return nil, &Error{Kind: KindConfiguration, Op: "Sessions.Connect", Err: ErrMissingAPIKey}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	id := uuid.New().String()
	return &Session{
		id:       id,
		cfg:      *cfg,
		apiKey:   s.client.config.apiKey,
		url:      s.client.config.streamURL,
		dialer:   s.client.config.dialer,
		logger:   s.client.config.logger.With("session", id),
		events:   buffer.N[inbound](64),
		readDone: make(chan struct{}),
	}, nil
}

// Connect creates and connects a session.
//
// Example:
//
//	sess, err := client.Sessions.Connect(ctx, &lmnt.SessionConfig{Voice: "leah"})
//	if err != nil {
//	    return err
//	}
//	defer sess.Close()
//
//	go func() {
//	    sess.AppendText("Hello, world.")
//	    sess.Finish()
//	}()
//
//	for ev, err := range sess.Events(ctx) {
//	    if err != nil {
//	        return err
//	    }
//	    if ev.Type == lmnt.EventAudio {
//	        out.Write(ev.Audio)
//	    }
//	}
func (s *SessionService) Connect(ctx context.Context, cfg *SessionConfig) (*Session, error) {
	sess, err := s.New(cfg)
	if err != nil {
		return nil, err
	}
	if err := sess.Connect(ctx); err != nil {
		return nil, err
	}
	return sess, nil
}

// Session is one full-duplex streaming synthesis connection.
//
// The write methods (AppendText, Flush, Reset, Finish) and the read
// methods (Next, Events, Responses) may be used from different goroutines.
// A background reader drains the channel into an unbounded queue, so a
// slow consumer never stalls the connection and a slow writer never stalls
// delivery of received frames.
type Session struct {
	id     string
	cfg    SessionConfig
	apiKey string
	url    string
	dialer Dialer
	logger *slog.Logger

	// mu guards state, ch, finishing, finished and closed. finishing is
	// closed once the eof frame send has returned; finished reports that
	// it succeeded.
	mu        sync.Mutex
	state     SessionState
	ch        Channel
	finishing chan struct{}
	finished  bool
	closed    bool

	// wmu serializes sends so each frame goes out whole and in call order.
	// nonce is only touched while holding it.
	wmu   sync.Mutex
	nonce int

	events    *buffer.Buffer[inbound]
	readDone  chan struct{}
	closeOnce sync.Once

	// rmu serializes consumers; term is the sticky terminal outcome.
	rmu  sync.Mutex
	term error
}

type inbound struct {
	ev  *Event
	err error
}

// ID returns the client-side session id used in log records.
func (s *Session) ID() string { return s.id }

// Config returns a copy of the session configuration.
func (s *Session) Config() SessionConfig { return s.cfg }

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect opens the channel and sends the init frame. It returns as soon
// as the init frame is handed to the transport; the server may start
// streaming audio right away.
func (s *Session) Connect(ctx context.Context) error {
	const op = "Session.Connect"

	init, err := EncodeInit(s.apiKey, &s.cfg)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.state != StateCreated {
		state := s.state
		s.mu.Unlock()
		return configError(op, "session is already %s", state)
	}
	s.state = StateConnecting
	s.mu.Unlock()

	s.logger.Debug("lmnt: connecting", "url", s.url, "voice", s.cfg.Voice, "protocol", s.cfg.Protocol)

	header := http.Header{}
	header.Set("User-Agent", userAgent)
	ch, err := s.dialer.Dial(ctx, s.url, header)
	if err != nil {
		s.failConnect(err)
		return err
	}

	// A canceled context aborts the init send by closing the channel.
	stop := context.AfterFunc(ctx, func() { ch.Close() })
	err = ch.WriteFrame(init)
	if !stop() || err != nil {
		ch.Close()
		if err == nil || ctx.Err() != nil {
			err = connectionError(op, ctx.Err())
		} else {
			err = connectionError(op, err)
		}
		s.failConnect(err)
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ch.Close()
		err := &Error{Kind: KindConnection, Op: op, Err: ErrSessionClosed}
		s.failConnect(err)
		return err
	}
	s.ch = ch
	s.state = StateOpen
	s.mu.Unlock()

	go s.readLoop(ch)

	s.logger.Debug("lmnt: session open")
	return nil
}

// failConnect moves a session whose Connect failed to StateClosed and
// makes err its terminal read outcome.
func (s *Session) failConnect(err error) {
	s.setState(StateClosed)
	if e, ok := AsError(err); !ok || e.Kind != KindConnection && e.Kind != KindService {
		err = connectionError("Session.Connect", err)
	}
	_ = s.events.Add(inbound{err: err})
	s.events.CloseWrite()
}

// AppendText queues text for synthesis. Empty text is forwarded as is.
func (s *Session) AppendText(text string) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	const op = "Session.AppendText"
	ch, err := s.writable(op)
	if err != nil {
		return err
	}
	f, err := EncodeAppendText(text)
	if err != nil {
		return err
	}
	return s.write(op, ch, f)
}

// Flush asks the server to synthesize all buffered text now. It returns
// the command nonce; under the versioned protocol the server echoes it in
// an EventAck. Nonces start at 1 and are shared with Reset.
func (s *Session) Flush() (int, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	const op = "Session.Flush"
	ch, err := s.writable(op)
	if err != nil {
		return 0, err
	}
	s.nonce++
	nonce := s.nonce
	f, err := EncodeFlush(s.cfg.Protocol, nonce)
	if err != nil {
		return 0, err
	}
	if err := s.write(op, ch, f); err != nil {
		return 0, err
	}
	return nonce, nil
}

// Reset discards buffered text that has not been synthesized yet. It is
// not available under the legacy protocol: the call fails with a
// configuration error and nothing is sent.
func (s *Session) Reset() (int, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	const op = "Session.Reset"
	if s.cfg.Protocol == ProtocolLegacy {
		return 0, configError(op, "reset is not supported by the legacy protocol")
	}
	ch, err := s.writable(op)
	if err != nil {
		return 0, err
	}
	s.nonce++
	nonce := s.nonce
	f, err := EncodeReset(s.cfg.Protocol, nonce)
	if err != nil {
		return 0, err
	}
	if err := s.write(op, ch, f); err != nil {
		return 0, err
	}
	return nonce, nil
}

// Finish signals the end of input. The server flushes the remaining audio
// and then closes the channel, which ends the event sequence. Finish does
// not close the session; call Close to release it.
func (s *Session) Finish() error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	const op = "Session.Finish"
	ch, err := s.writable(op)
	if err != nil {
		return err
	}
	f, err := EncodeFinish(s.cfg.Protocol)
	if err != nil {
		return err
	}

	// The server may drop the connection as soon as it sees the frame.
	// The reader waits on finishing before it judges such a close.
	finishing := make(chan struct{})
	s.mu.Lock()
	s.finishing = finishing
	s.state = StateFinishing
	s.mu.Unlock()

	err = s.write(op, ch, f)
	s.mu.Lock()
	s.finished = err == nil
	s.mu.Unlock()
	close(finishing)
	if err != nil {
		return err
	}
	s.logger.Debug("lmnt: finish sent")
	return nil
}

// Close closes the channel and moves the session to StateClosed. Pending
// reads and writes fail with a connection error wrapping
// ErrSessionClosed. Close is idempotent.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.state = StateClosed
		ch := s.ch
		s.mu.Unlock()

		s.events.CloseWithError(ErrSessionClosed)
		if ch != nil {
			err = ch.Close()
			<-s.readDone
		}
		s.logger.Debug("lmnt: session closed")
	})
	return err
}

// Next returns the next event in arrival order, blocking until one is
// available. It returns io.EOF once the stream has ended cleanly, and the
// terminating error once it has failed; both outcomes are sticky.
//
// If ctx is done first, ctx.Err() is returned and the session is left
// intact.
func (s *Session) Next(ctx context.Context) (*Event, error) {
	s.rmu.Lock()
	defer s.rmu.Unlock()

	if s.term != nil {
		return nil, s.term
	}
	if st := s.State(); st == StateCreated || st == StateConnecting {
		return nil, &Error{Kind: KindConnection, Op: "Session.Next", Err: ErrNotConnected}
	}

	item, err := s.events.NextContext(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, err
		}
		s.term = &Error{Kind: KindConnection, Op: "Session.Next", Err: ErrSessionClosed}
		return nil, s.term
	}
	if item.err != nil {
		s.term = item.err
		return nil, item.err
	}
	return item.ev, nil
}

// Events returns a single-pass iterator over the session events. The
// iteration ends after the last event when the stream ends cleanly, or
// yields the terminating error once and stops.
func (s *Session) Events(ctx context.Context) iter.Seq2[*Event, error] {
	return func(yield func(*Event, error) bool) {
		for {
			ev, err := s.Next(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(ev, nil) {
				return
			}
		}
	}
}

// Response is one synthesized segment. In extras mode it carries exactly
// one extras record and the audio chunk paired with it; otherwise only
// Audio is set. Acknowledgements are passed through with only Ack set.
type Response struct {
	Audio       []byte         `json:"audio,omitempty"`
	Durations   []WordDuration `json:"durations,omitempty"`
	Warning     string         `json:"warning,omitempty"`
	BufferEmpty *bool          `json:"buffer_empty,omitempty"`
	Ack         *Ack           `json:"ack,omitempty"`
}

// Responses is like Events but joins each extras event with the audio
// event that follows it.
func (s *Session) Responses(ctx context.Context) iter.Seq2[*Response, error] {
	return func(yield func(*Response, error) bool) {
		var pending *Event
		for ev, err := range s.Events(ctx) {
			if err != nil {
				yield(nil, err)
				return
			}
			var resp *Response
			switch ev.Type {
			case EventExtras:
				pending = ev
				continue
			case EventAudio:
				resp = &Response{Audio: ev.Audio}
				if pending != nil {
					resp.Durations = pending.Durations
					resp.Warning = pending.Warning
					resp.BufferEmpty = pending.BufferEmpty
					pending = nil
				}
			case EventAck:
				resp = &Response{Ack: ev.Ack}
			default:
				continue
			}
			if !yield(resp, nil) {
				return
			}
		}
	}
}

// readLoop moves frames from the channel into the event queue until the
// stream terminates.
func (s *Session) readLoop(ch Channel) {
	defer close(s.readDone)

	for {
		f, err := ch.ReadFrame()
		if err != nil {
			s.terminate(ch, s.readError(ch, err))
			return
		}

		ev, err := DecodeFrame(f, s.cfg.Extras)
		if err != nil {
			s.terminate(ch, err)
			return
		}

		if ev.Type != EventExtras {
			s.push(ev)
			continue
		}

		// An extras frame describes the audio frame right after it.
		next, err := ch.ReadFrame()
		if err != nil {
			if s.isClosed() {
				s.terminate(ch, s.readError(ch, err))
			} else {
				s.terminate(ch, protocolError("Session.Read", err, "extras frame not followed by audio"))
			}
			return
		}
		if next.Type != FrameBinary {
			if _, derr := DecodeFrame(next, false); IsKind(derr, KindService) {
				s.terminate(ch, derr)
			} else {
				s.terminate(ch, protocolError("Session.Read", ErrUnexpectedMessage,
					"expected audio after extras, got %s", truncate(next.Data)))
			}
			return
		}
		s.push(ev, &Event{Type: EventAudio, Audio: next.Data})
	}
}

// push queues events as one unit so a paired extras and audio event are
// never split by a concurrent close.
func (s *Session) push(evs ...*Event) {
	items := make([]inbound, len(evs))
	for i, ev := range evs {
		s.logger.Debug("lmnt: event", "type", ev.Type, "bytes", len(ev.Audio))
		items[i] = inbound{ev: ev}
	}
	// Fails only after Close, when nobody is reading anymore.
	_, _ = s.events.Write(items)
	s.logger.Debug("lmnt: queued", "pending", s.events.Len())
}

// terminate records the terminal outcome, closes the channel, and moves
// the session to StateClosed.
func (s *Session) terminate(ch Channel, err error) {
	if errors.Is(err, io.EOF) {
		s.logger.Debug("lmnt: stream ended")
	} else {
		s.logger.Debug("lmnt: stream failed", "error", err)
	}
	_ = s.events.Add(inbound{err: err})
	s.events.CloseWrite()

	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()
	ch.Close()
}

// readError maps a channel read failure to the terminal outcome. A clean
// close is the end of the stream. An abrupt close is too, but only once
// the eof frame has been sent; before that it is a connection error.
func (s *Session) readError(ch Channel, err error) error {
	const op = "Session.Read"
	s.mu.Lock()
	finishing := s.finishing
	s.mu.Unlock()

	if finishing != nil && !errors.Is(err, io.EOF) {
		select {
		case <-finishing:
		case <-time.After(finishGrace):
			// The transport is gone; closing it fails the stuck send.
			ch.Close()
			<-finishing
		}
	}

	s.mu.Lock()
	closed, finished := s.closed, s.finished
	s.mu.Unlock()

	switch {
	case closed:
		return &Error{Kind: KindConnection, Op: op, Err: ErrSessionClosed}
	case errors.Is(err, io.EOF):
		return io.EOF
	case finished:
		s.logger.Debug("lmnt: abrupt close after finish", "error", err)
		return io.EOF
	default:
		return connectionError(op, err)
	}
}

// writable returns the channel if the session accepts sends.
func (s *Session) writable(op string) (Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateOpen:
		return s.ch, nil
	case StateFinishing:
		return nil, &Error{Kind: KindConnection, Op: op, Err: ErrSessionFinished}
	case StateClosed:
		return nil, &Error{Kind: KindConnection, Op: op, Err: ErrSessionClosed}
	default:
		return nil, &Error{Kind: KindConnection, Op: op, Err: ErrNotConnected}
	}
}

// finishGrace bounds how long the reader waits for an in-flight eof send
// after the channel failed.
const finishGrace = time.Second

func (s *Session) write(op string, ch Channel, f Frame) error {
	if err := ch.WriteFrame(f); err != nil {
		if s.isClosed() {
			return &Error{Kind: KindConnection, Op: op, Err: ErrSessionClosed}
		}
		return connectionError(op, err)
	}
	s.logger.Debug("lmnt: sent", "op", op, "bytes", len(f.Data))
	return nil
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) setState(state SessionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}
