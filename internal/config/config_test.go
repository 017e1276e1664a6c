package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "abc")

	cfg, err := Load(writeEnv(t, ""))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Player.IdleTimeout != time.Minute {
		t.Errorf("idle timeout = %v", cfg.Player.IdleTimeout)
	}
	if cfg.Player.DefaultVolume != 50 || cfg.Player.VolumeStep != 10 {
		t.Errorf("volume defaults = %d/%d", cfg.Player.DefaultVolume, cfg.Player.VolumeStep)
	}
	if cfg.Lavalink.ReconnectAttempts != 3 || cfg.Lavalink.ReconnectInterval != 15*time.Second {
		t.Errorf("reconnect defaults = %d/%v", cfg.Lavalink.ReconnectAttempts, cfg.Lavalink.ReconnectInterval)
	}
	if cfg.Spotify.TokenRefresh != time.Hour {
		t.Errorf("token refresh = %v", cfg.Spotify.TokenRefresh)
	}
	if cfg.Storage.Backend != "json" || cfg.Discord.ShardCount != 1 {
		t.Errorf("unexpected defaults %+v", cfg)
	}
}

func TestLoadFromEnvFile(t *testing.T) {
	path := writeEnv(t, "DISCORD_TOKEN=fromfile\nPLAYER_IDLE_TIMEOUT=30s\nLAVALINK_PORT=443\nLAVALINK_SECURE=true\n")
	for _, k := range []string{"DISCORD_TOKEN", "PLAYER_IDLE_TIMEOUT", "LAVALINK_PORT", "LAVALINK_SECURE"} {
		unsetForTest(t, k)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Discord.Token != "fromfile" || cfg.Player.IdleTimeout != 30*time.Second {
		t.Fatalf("env file not applied: %+v", cfg)
	}
	if !cfg.Lavalink.Secure || cfg.Lavalink.Port != 443 {
		t.Fatalf("lavalink = %+v", cfg.Lavalink)
	}
}

func TestLoadRequiresToken(t *testing.T) {
	unsetForTest(t, "DISCORD_TOKEN")
	if _, err := Load(writeEnv(t, "")); err == nil {
		t.Fatal("expected error without DISCORD_TOKEN")
	}
}

func TestValidate(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "abc")
	t.Setenv("PLAYER_DEFAULT_VOLUME", "300")
	t.Setenv("STORAGE_BACKEND", "mongo")

	_, err := Load(writeEnv(t, ""))
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"PLAYER_DEFAULT_VOLUME", "STORAGE_BACKEND"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestRedacted(t *testing.T) {
	cfg := Config{}
	cfg.Discord.Token = "secret"
	cfg.Spotify.ClientID = "public"
	r := cfg.Redacted()
	if r.Discord.Token != "****" || r.Spotify.ClientID != "public" || r.Lavalink.Password != "" {
		t.Fatalf("redacted = %+v", r)
	}
	if cfg.Discord.Token != "secret" {
		t.Fatal("Redacted mutated the receiver")
	}
}

func writeEnv(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

// unsetForTest clears key for the duration of the test.
func unsetForTest(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	os.Unsetenv(key)
}
