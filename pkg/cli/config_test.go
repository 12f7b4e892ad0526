package cli

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func loadTestConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := LoadConfigWithPath("lmnt", filepath.Join(t.TempDir(), "lmnt", "config.yaml"))
	if err != nil {
		t.Fatalf("LoadConfigWithPath error: %v", err)
	}
	return cfg
}

func TestMaskAPIKey(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"", ""},
		{"short", "*****"},
		{"12345678", "********"},
		{"ak_live_0123456789", "ak_l**********6789"},
	}
	for _, tt := range tests {
		if got := MaskAPIKey(tt.key); got != tt.want {
			t.Errorf("MaskAPIKey(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestContext_Extra(t *testing.T) {
	var ctx Context
	if got := ctx.GetExtra("openai_model"); got != "" {
		t.Errorf("GetExtra on empty context = %q", got)
	}
	ctx.SetExtra("openai_model", "gpt-4o-mini")
	ctx.SetExtra("openai_base_url", "http://localhost:8080/v1")
	if got := ctx.GetExtra("openai_model"); got != "gpt-4o-mini" {
		t.Errorf("GetExtra(openai_model) = %q", got)
	}
	if len(ctx.Extra) != 2 {
		t.Errorf("Extra = %v", ctx.Extra)
	}
}

func TestContext_Masked(t *testing.T) {
	ctx := &Context{
		Name:      "prod",
		APIKey:    "ak_live_0123456789",
		StreamURL: "wss://api.lmnt.com/v1/ai/speech/stream",
		Protocol:  "legacy",
		Extra: map[string]string{
			"openai_api_key": "sk-abcdefghijkl",
			"openai_model":   "gpt-4o-mini",
		},
	}

	m := ctx.Masked()
	if m.APIKey != "ak_l**********6789" {
		t.Errorf("APIKey = %q", m.APIKey)
	}
	if m.Extra["openai_api_key"] != "sk-a*******ijkl" {
		t.Errorf("openai_api_key = %q", m.Extra["openai_api_key"])
	}
	if m.Extra["openai_model"] != "gpt-4o-mini" || m.StreamURL != ctx.StreamURL || m.Protocol != "legacy" {
		t.Errorf("masked context lost fields: %+v", m)
	}
	if ctx.APIKey != "ak_live_0123456789" || ctx.Extra["openai_api_key"] != "sk-abcdefghijkl" {
		t.Error("Masked changed the receiver")
	}
}

func TestConfig_RoundTrip(t *testing.T) {
	cfg := loadTestConfig(t)

	prod := &Context{
		APIKey:        "ak_live_0123456789",
		BaseURL:       "https://api.lmnt.com",
		StreamURL:     "wss://api.lmnt.com/v1/ai/speech/stream",
		Timeout:       30,
		MaxRetries:    4,
		DefaultVoice:  "leah",
		DefaultFormat: "mp3",
		Protocol:      "legacy",
		Extra:         map[string]string{"openai_model": "gpt-4o-mini"},
	}
	if err := cfg.AddContext("prod", prod); err != nil {
		t.Fatalf("AddContext error: %v", err)
	}
	if err := cfg.AddContext("dev", &Context{APIKey: "dev-key", StreamURL: "ws://localhost:8080/v1/ai/speech/stream"}); err != nil {
		t.Fatalf("AddContext error: %v", err)
	}
	if err := cfg.UseContext("prod"); err != nil {
		t.Fatalf("UseContext error: %v", err)
	}

	info, err := os.Stat(cfg.Path())
	if err != nil {
		t.Fatalf("Stat error: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("config mode = %o, want 600", perm)
	}
	data, _ := os.ReadFile(cfg.Path())
	for _, want := range []string{"current_context: prod", "stream_url:", "default_format: mp3", "protocol: legacy"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("config file missing %q:\n%s", want, data)
		}
	}

	loaded, err := LoadConfigWithPath("lmnt", cfg.Path())
	if err != nil {
		t.Fatalf("reload error: %v", err)
	}
	got, err := loaded.ResolveContext("")
	if err != nil {
		t.Fatalf("ResolveContext error: %v", err)
	}
	if !reflect.DeepEqual(got, prod) {
		t.Errorf("reloaded prod = %+v, want %+v", got, prod)
	}
	dev, err := loaded.ResolveContext("dev")
	if err != nil || dev.Name != "dev" || dev.StreamURL != "ws://localhost:8080/v1/ai/speech/stream" {
		t.Errorf("reloaded dev = %+v, %v", dev, err)
	}
	if names := loaded.ListContexts(); !reflect.DeepEqual(names, []string{"dev", "prod"}) {
		t.Errorf("ListContexts = %v", names)
	}
}

func TestConfig_ContextLifecycle(t *testing.T) {
	cfg := loadTestConfig(t)

	if _, err := cfg.ResolveContext(""); err == nil {
		t.Error("ResolveContext with no current context should fail")
	}
	if err := cfg.AddContext("", &Context{}); err == nil {
		t.Error("AddContext with an empty name should fail")
	}

	missing := []struct {
		name string
		op   func() error
	}{
		{"UseContext", func() error { return cfg.UseContext("nope") }},
		{"DeleteContext", func() error { return cfg.DeleteContext("nope") }},
		{"GetContext", func() error { _, err := cfg.GetContext("nope"); return err }},
	}
	for _, tt := range missing {
		if err := tt.op(); err == nil || !strings.Contains(err.Error(), `"nope"`) {
			t.Errorf("%s(nope) = %v, want not found", tt.name, err)
		}
	}

	if err := cfg.AddContext("staging", &Context{APIKey: "k1", DefaultVoice: "leah"}); err != nil {
		t.Fatalf("AddContext error: %v", err)
	}
	if err := cfg.AddContext("staging", &Context{APIKey: "k2", DefaultVoice: "tyler"}); err != nil {
		t.Fatalf("AddContext replace error: %v", err)
	}
	cfg.UseContext("staging")
	ctx, err := cfg.GetCurrentContext()
	if err != nil || ctx.APIKey != "k2" || ctx.DefaultVoice != "tyler" {
		t.Errorf("current = %+v, %v; want the replacement", ctx, err)
	}

	if err := cfg.DeleteContext("staging"); err != nil {
		t.Fatalf("DeleteContext error: %v", err)
	}
	if cfg.CurrentContext != "" {
		t.Errorf("CurrentContext = %q after deleting it", cfg.CurrentContext)
	}
	if len(cfg.ListContexts()) != 0 {
		t.Errorf("ListContexts = %v", cfg.ListContexts())
	}
}

func TestLoadConfigWithPath_Layout(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "lmnt")
	path := filepath.Join(dir, "config.yaml")

	cfg, err := LoadConfigWithPath("lmnt", path)
	if err != nil {
		t.Fatalf("LoadConfigWithPath error: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("config file not created: %v", err)
	}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"Path", cfg.Path(), path},
		{"Dir", cfg.Dir(), dir},
		{"CachePath", cfg.CachePath("voices"), filepath.Join(dir, "cache", "voices")},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s() = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}

func TestLoadConfigWithPath_HandEdited(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `current_context: prod
contexts:
  prod:
    api_key: ak_live_0123456789
    protocol: versioned
    default_format: wav
  empty:
`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfigWithPath("lmnt", path)
	if err != nil {
		t.Fatalf("LoadConfigWithPath error: %v", err)
	}
	if names := cfg.ListContexts(); !reflect.DeepEqual(names, []string{"prod"}) {
		t.Errorf("ListContexts = %v, want the empty entry dropped", names)
	}
	ctx, err := cfg.GetCurrentContext()
	if err != nil {
		t.Fatalf("GetCurrentContext error: %v", err)
	}
	if ctx.Name != "prod" || ctx.DefaultFormat != "wav" || ctx.Protocol != "versioned" {
		t.Errorf("prod = %+v", ctx)
	}
}

func TestLoadConfigWithPath_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("contexts: [not, a, map"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfigWithPath("lmnt", path); err == nil {
		t.Error("LoadConfigWithPath should fail on malformed YAML")
	}
}
