package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseFlags_ReadsEnvironmentFallbacks(t *testing.T) {
	t.Setenv("TWITTER_ACCESS_TOKEN", "token")
	t.Setenv("TWITTER_ACCESS_TOKEN_SECRET", "secret")
	t.Setenv("TWITTER_CONSUMER_KEY", "key")
	t.Setenv("TWITTER_CONSUMER_SECRET", "consumer-secret")
	t.Setenv("TWITTER_WEBHOOK_ENV", "dev")
	t.Setenv("PORT", "8080")

	opts, err := parseFlags([]string{"-url", "https://example.com/webhook"})
	if err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if opts.token != "token" || opts.secret != "secret" || opts.consumerKey != "key" || opts.consumerSec != "consumer-secret" {
		t.Fatalf("expected credentials from env, got %+v", opts)
	}
	if opts.env != "dev" || opts.port != 8080 {
		t.Fatalf("expected env dev and port 8080, got %q %d", opts.env, opts.port)
	}
}

func TestParseFlags_FlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("TWITTER_WEBHOOK_ENV", "dev")
	opts, err := parseFlags([]string{"-e", "prod", "-p", "9000", "-public-url", "https://tunnel.example.com"})
	if err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if opts.env != "prod" || opts.port != 9000 || opts.publicURL != "https://tunnel.example.com" {
		t.Fatalf("unexpected options %+v", opts)
	}
}

func TestParseFlags_RequiresWebhookSource(t *testing.T) {
	t.Setenv("AUTOHOOK_PUBLIC_URL", "")
	if _, err := parseFlags(nil); err == nil {
		t.Fatalf("expected an error without -url or -public-url")
	}
}

func TestLoadFile_DecodesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "autohook.yaml")
	content := "env: dev\nport: 4000\nheaders:\n  x-client: autohook\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	raw, err := loadFile(path)
	if err != nil {
		t.Fatalf("load file: %v", err)
	}
	if raw["env"] != "dev" || raw["port"] != 4000 {
		t.Fatalf("unexpected raw config %#v", raw)
	}
	headers, ok := raw["headers"].(map[string]any)
	if !ok || headers["x-client"] != "autohook" {
		t.Fatalf("expected nested headers, got %#v", raw["headers"])
	}
}

func TestLoadFile_EmptyPath(t *testing.T) {
	raw, err := loadFile("")
	if err != nil || len(raw) != 0 {
		t.Fatalf("expected empty config, got %#v %v", raw, err)
	}
}
