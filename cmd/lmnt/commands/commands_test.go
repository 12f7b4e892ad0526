package commands

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/lmnt-com/lmnt-go/pkg/lmnt"
)

// resetFlags restores every flag to its default so each run starts clean.
func resetFlags(c *cobra.Command) {
	for _, fs := range []*pflag.FlagSet{c.Flags(), c.PersistentFlags()} {
		fs.VisitAll(func(f *pflag.Flag) {
			switch v := f.Value.(type) {
			case pflag.SliceValue:
				v.Replace(nil)
			default:
				if f.Value.Type() != "stringToString" {
					f.Value.Set(f.DefValue)
				}
			}
			f.Changed = false
		})
	}
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

type testEnv struct {
	t      *testing.T
	config string
	dir    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	t.Setenv(lmnt.EnvAPIKey, "")
	dir := t.TempDir()
	return &testEnv{t: t, config: filepath.Join(dir, "config.yaml"), dir: dir}
}

// run executes the CLI with a private config file and returns stdout.
func (e *testEnv) run(args ...string) (string, error) {
	e.t.Helper()
	return e.runIn(strings.NewReader(""), args...)
}

// runIn is run with in as stdin.
func (e *testEnv) runIn(in io.Reader, args ...string) (string, error) {
	e.t.Helper()
	resetFlags(rootCmd)
	addExtra = map[string]string{}

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetIn(in)
	rootCmd.SetArgs(append([]string{"--config", e.config}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func (e *testEnv) mustRun(args ...string) string {
	e.t.Helper()
	out, err := e.run(args...)
	if err != nil {
		e.t.Fatalf("lmnt %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func TestConfigCommands(t *testing.T) {
	env := newTestEnv(t)

	env.mustRun("config", "add-context", "prod", "--api-key", "sk-1234567890abcdef",
		"--default-voice", "leah", "--protocol", "legacy", "--extra", "openai_model=gpt-4o")
	env.mustRun("config", "add-context", "dev", "--api-key", "dev-key-123456", "--base-url", "http://localhost:1")
	env.mustRun("config", "use-context", "prod")

	if out := env.mustRun("config", "get-context"); strings.TrimSpace(out) != "prod" {
		t.Errorf("get-context = %q", out)
	}

	out := env.mustRun("config", "list-contexts", "--json")
	var contexts []map[string]any
	if err := json.Unmarshal([]byte(out), &contexts); err != nil {
		t.Fatalf("list-contexts output: %v\n%s", err, out)
	}
	if len(contexts) != 2 || contexts[0]["name"] != "dev" || contexts[1]["name"] != "prod" {
		t.Errorf("contexts = %v", contexts)
	}
	if strings.Contains(out, "sk-1234567890abcdef") {
		t.Errorf("list-contexts leaked the api key:\n%s", out)
	}
	if contexts[1]["protocol"] != "legacy" || contexts[1]["default_voice"] != "leah" {
		t.Errorf("prod context = %v", contexts[1])
	}

	view := env.mustRun("config", "view")
	if !strings.Contains(view, "sk-1") || strings.Contains(view, "sk-1234567890abcdef") {
		t.Errorf("view should show a masked key:\n%s", view)
	}
	if !strings.Contains(view, "openai_model: gpt-4o") {
		t.Errorf("view missing extra:\n%s", view)
	}

	table := env.mustRun("config", "list-contexts")
	if !strings.Contains(table, "prod") || !strings.Contains(table, "(default)") {
		t.Errorf("table output:\n%s", table)
	}

	env.mustRun("config", "delete-context", "prod")
	if out := env.mustRun("config", "get-context"); !strings.Contains(out, "No current context") {
		t.Errorf("get-context after delete = %q", out)
	}
}

func TestConfigAddContextValidation(t *testing.T) {
	env := newTestEnv(t)
	tests := [][]string{
		{"config", "add-context", "x"},
		{"config", "add-context", "x", "--api-key", "k", "--protocol", "v3"},
		{"config", "add-context", "x", "--api-key", "k", "--default-format", "flac"},
	}
	for _, args := range tests {
		if _, err := env.run(args...); err == nil {
			t.Errorf("lmnt %s should fail", strings.Join(args, " "))
		}
	}
}

func TestMissingAPIKey(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run("account")
	if err == nil || !strings.Contains(err.Error(), "no API key") {
		t.Errorf("err = %v, want missing key error", err)
	}
}

func TestAPIKeyPrecedence(t *testing.T) {
	var gotKey atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey.Store(r.Header.Get("X-API-Key"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"plan":{"type":"pro","character_limit":100},"usage":{"characters":7}}`))
	}))
	defer srv.Close()

	env := newTestEnv(t)
	t.Setenv(lmnt.EnvAPIKey, "env-key")

	// A context without a key falls back to the environment.
	bare := "contexts:\n  bare:\n    name: bare\n    base_url: " + srv.URL + "\n"
	if err := os.WriteFile(env.config, []byte(bare), 0o644); err != nil {
		t.Fatal(err)
	}
	env.mustRun("-c", "bare", "account", "--json")
	if got := gotKey.Load(); got != "env-key" {
		t.Errorf("env: key = %v", got)
	}

	env.mustRun("config", "add-context", "c", "--api-key", "ctx-key", "--base-url", srv.URL)
	env.mustRun("-c", "c", "account", "--json")
	if got := gotKey.Load(); got != "ctx-key" {
		t.Errorf("context: key = %v", got)
	}

	out := env.mustRun("-c", "c", "--api-key", "flag-key", "account", "-q", ".usage.characters")
	if got := gotKey.Load(); got != "flag-key" {
		t.Errorf("flag over context: key = %v", got)
	}
	if strings.TrimSpace(out) != "7" {
		t.Errorf("query output = %q", out)
	}

	table := env.mustRun("-c", "c", "account")
	if !strings.Contains(table, "7 / 100") {
		t.Errorf("account table:\n%s", table)
	}
}

func voiceServer(t *testing.T) *httptest.Server {
	voices := []lmnt.Voice{
		{ID: "leah", Name: "Leah", Owner: lmnt.OwnerSystem, State: "ready", Type: lmnt.VoiceTypeProfessional},
		{ID: "v_mine", Name: "Narrator", Owner: lmnt.OwnerMe, State: "ready", Type: lmnt.VoiceTypeInstant, Starred: lmnt.Ptr(true)},
	}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/v1/ai/voice/list":
			json.NewEncoder(w).Encode(voices)
		case r.URL.Path == "/v1/ai/voice/v_mine" && r.Method == http.MethodGet:
			json.NewEncoder(w).Encode(voices[1])
		case r.URL.Path == "/v1/ai/voice/v_mine" && r.Method == http.MethodPut:
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			v := voices[1]
			if name, ok := body["name"].(string); ok {
				v.Name = name
			}
			json.NewEncoder(w).Encode(map[string]any{"voice": v})
		case r.URL.Path == "/v1/ai/speech/bytes":
			var req lmnt.GenerateRequest
			json.NewDecoder(r.Body).Decode(&req)
			w.Header().Set("Content-Type", "audio/mpeg")
			w.Write([]byte("AUDIO:" + req.Voice + ":" + req.Text))
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestVoiceListAndCache(t *testing.T) {
	srv := voiceServer(t)
	env := newTestEnv(t)
	env.mustRun("config", "add-context", "c", "--api-key", "k", "--base-url", srv.URL)
	env.mustRun("config", "use-context", "c")

	table := env.mustRun("voice", "list")
	for _, want := range []string{"ID", "leah", "Narrator", "instant"} {
		if !strings.Contains(table, want) {
			t.Errorf("table missing %q:\n%s", want, table)
		}
	}

	srv.Close()

	out := env.mustRun("voice", "list", "--cached", "--starred", "--json")
	var cached []lmnt.Voice
	if err := json.Unmarshal([]byte(out), &cached); err != nil {
		t.Fatalf("cached output: %v\n%s", err, out)
	}
	if len(cached) != 1 || cached[0].ID != "v_mine" {
		t.Errorf("cached starred = %+v", cached)
	}

	if _, err := env.run("voice", "list", "--owner", "nobody"); err == nil {
		t.Error("invalid --owner should fail")
	}
}

func TestVoiceGetResolvesName(t *testing.T) {
	srv := voiceServer(t)
	defer srv.Close()
	env := newTestEnv(t)
	env.mustRun("config", "add-context", "c", "--api-key", "k", "--base-url", srv.URL)
	env.mustRun("config", "use-context", "c")
	env.mustRun("voice", "list", "--json")

	out := env.mustRun("voice", "get", "narrator", "--json")
	var v lmnt.Voice
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatalf("output: %v\n%s", err, out)
	}
	if v.ID != "v_mine" {
		t.Errorf("voice = %+v", v)
	}

	out = env.mustRun("voice", "update", "v_mine", "--name", "Storyteller", "-q", ".name")
	if strings.TrimSpace(out) != "Storyteller" {
		t.Errorf("update output = %q", out)
	}
	if _, err := env.run("voice", "update", "v_mine"); err == nil {
		t.Error("update without flags should fail")
	}
}

func TestSpeechSynthesize(t *testing.T) {
	srv := voiceServer(t)
	defer srv.Close()
	env := newTestEnv(t)
	env.mustRun("config", "add-context", "c", "--api-key", "k", "--base-url", srv.URL, "--default-voice", "leah")
	env.mustRun("config", "use-context", "c")

	dest := filepath.Join(env.dir, "out", "hello.mp3")
	out := env.mustRun("speech", "synthesize", "Hello", "world", "-o", dest, "--json")

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "AUDIO:leah:Hello world" {
		t.Errorf("audio = %q", data)
	}
	var res map[string]any
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("output: %v\n%s", err, out)
	}
	if res["output"] != dest || res["audio_size"] != float64(len(data)) {
		t.Errorf("result = %v", res)
	}

	if _, err := env.run("speech", "synthesize", "Hello"); err == nil {
		t.Error("synthesize without -o should fail")
	}
	if _, err := env.run("speech", "synthesize", "-o", dest); err == nil {
		t.Error("synthesize without text should fail")
	}
}

func TestSpeechStream(t *testing.T) {
	upgrader := websocket.Upgrader{}
	inits := make(chan map[string]any, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != lmnt.StreamPath {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var first map[string]any
		json.Unmarshal(data, &first)
		inits <- first

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg map[string]any
			json.Unmarshal(data, &msg)
			switch {
			case msg["text"] != nil:
				conn.WriteMessage(websocket.BinaryMessage, []byte(msg["text"].(string)))
			case msg["command"] == "flush":
				ack, _ := json.Marshal(map[string]any{"complete": "flush", "nonce": msg["nonce"]})
				conn.WriteMessage(websocket.TextMessage, ack)
			case msg["command"] == "eof":
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
		}
	}))
	defer srv.Close()

	env := newTestEnv(t)
	env.mustRun("config", "add-context", "c", "--api-key", "k", "--base-url", srv.URL)

	dest := filepath.Join(env.dir, "stream.raw")
	out := env.mustRun("-c", "c", "speech", "stream", "--voice", "leah", "--format", "raw",
		"--text", "one ", "--text", "two", "-o", dest, "--json")

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "one two" {
		t.Errorf("audio = %q", data)
	}
	var res streamResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("output: %v\n%s", err, out)
	}
	if res.Chunks != 2 || len(res.Acks) != 2 || res.Protocol != "versioned" {
		t.Errorf("result = %+v", res)
	}
	first := <-inits
	if first["voice"] != "leah" || first["X-API-Key"] != "k" || first["format"] != "raw" {
		t.Errorf("init = %v", first)
	}
}

func TestSpeechStreamServiceErrorWithIdleStdin(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"voice not found"}`))
		conn.ReadMessage()
	}))
	defer srv.Close()

	env := newTestEnv(t)
	env.mustRun("config", "add-context", "c", "--api-key", "k", "--base-url", srv.URL)

	// Stdin stays open with no input, as in an interactive terminal.
	stdin, stdinW := io.Pipe()
	defer stdinW.Close()

	errCh := make(chan error, 1)
	go func() {
		_, err := env.runIn(stdin, "-c", "c", "speech", "stream", "--voice", "nobody",
			"-o", filepath.Join(env.dir, "out.mp3"))
		errCh <- err
	}()

	select {
	case err := <-errCh:
		if !lmnt.IsKind(err, lmnt.KindService) || !strings.Contains(err.Error(), "voice not found") {
			t.Errorf("err = %v, want the service error", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("speech stream did not return after the service error")
	}
}

func TestFormatFlagUsage(t *testing.T) {
	for _, cmd := range []*cobra.Command{speechSynthesizeCmd, speechDetailedCmd, speechConvertCmd, speechStreamCmd, speechChatCmd} {
		f := cmd.Flags().Lookup("format")
		if f == nil {
			t.Fatalf("%s has no --format flag", cmd.Name())
		}
		for _, format := range lmnt.Formats {
			if !strings.Contains(f.Usage, string(format)) {
				t.Errorf("%s --format usage %q does not list %s", cmd.Name(), f.Usage, format)
			}
		}
	}
}

func TestFilterVoices(t *testing.T) {
	voices := []lmnt.Voice{
		{ID: "a", Owner: lmnt.OwnerSystem},
		{ID: "b", Owner: lmnt.OwnerMe, Starred: lmnt.Ptr(true)},
		{ID: "c", Owner: lmnt.OwnerMe, Starred: lmnt.Ptr(false)},
	}
	tests := []struct {
		owner   lmnt.Owner
		starred bool
		want    int
	}{
		{"", false, 3},
		{lmnt.OwnerAll, false, 3},
		{lmnt.OwnerMe, false, 2},
		{lmnt.OwnerMe, true, 1},
		{lmnt.OwnerSystem, true, 0},
	}
	for _, tt := range tests {
		if got := filterVoices(voices, tt.owner, tt.starred); len(got) != tt.want {
			t.Errorf("filterVoices(%q, %v) = %d voices, want %d", tt.owner, tt.starred, len(got), tt.want)
		}
	}
}
