package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// isolate runs from an empty directory so a developer .env cannot leak in.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	for _, key := range []string{
		"RIVALSCOPE_CONFIG", "RIVALSCOPE_ADDR", "LOG_LEVEL", "RIVALSCOPE_STATE_BACKEND",
		"RIVALSCOPE_MEMORY_BACKEND", "RIVALSCOPE_PROVIDER", "RIVALSCOPE_RESEARCH_WORKERS",
		"RIVALSCOPE_CACHE_FRESHNESS", "RIVALSCOPE_LLM_TIMEOUT", "RIVALSCOPE_LLM_MAX_ATTEMPTS",
		"RIVALSCOPE_REDIS_TTL", "TAVILY_API_KEY", "OTEL_ENABLED", "GEMINI_MODEL",
	} {
		t.Setenv(key, "")
	}
	return dir
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != "127.0.0.1:8080" || cfg.Storage.StateBackend != "memory" || cfg.Research.Workers != 4 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Research.CacheFreshness.Std() != 24*time.Hour || cfg.LLM.Timeout.Std() != time.Minute {
		t.Fatalf("unexpected duration defaults %+v", cfg)
	}
}

func TestLoadPrecedence(t *testing.T) {
	dir := isolate(t)
	file := filepath.Join(dir, "rivalscope.yaml")
	body := strings.Join([]string{
		"addr: 0.0.0.0:9000",
		"log_level: debug",
		"storage:",
		"  state_backend: sqlite",
		"  redis:",
		"    ttl: 2h",
		"llm:",
		"  provider: gemini",
		"  gemini_model: gemini-from-file",
		"research:",
		"  workers: 8",
		"  cache_freshness: 12h",
	}, "\n")
	if err := os.WriteFile(file, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("TAVILY_API_KEY=from-dotenv\n"), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Setenv("RIVALSCOPE_CONFIG", file)
	t.Setenv("RIVALSCOPE_RESEARCH_WORKERS", "3")
	t.Setenv("OTEL_ENABLED", "yes")
	// Unsetting keeps godotenv free to populate it.
	os.Unsetenv("TAVILY_API_KEY")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != "0.0.0.0:9000" || cfg.Storage.StateBackend != "sqlite" || cfg.LLM.GeminiModel != "gemini-from-file" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Research.Workers != 3 {
		t.Fatalf("env should win over file, got workers=%d", cfg.Research.Workers)
	}
	if cfg.Research.CacheFreshness.Std() != 12*time.Hour || cfg.Storage.Redis.TTL.Std() != 2*time.Hour {
		t.Fatalf("durations not parsed: %+v", cfg.Research)
	}
	if !cfg.Telemetry.OTelEnabled || cfg.Search.TavilyAPIKey != "from-dotenv" {
		t.Fatalf("env/.env not applied: %+v", cfg)
	}
	if lvl, _ := cfg.SlogLevel(); lvl.String() != "DEBUG" {
		t.Fatalf("unexpected level %v", lvl)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"RIVALSCOPE_STATE_BACKEND":  "postgres",
		"RIVALSCOPE_MEMORY_BACKEND": "hybrid",
		"RIVALSCOPE_PROVIDER":       "anthropic",
		"LOG_LEVEL":                 "chatty",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			isolate(t)
			t.Setenv(key, val)
			if _, err := Load(); err == nil {
				t.Fatalf("expected %s=%s to be rejected", key, val)
			}
		})
	}
}

func TestLoadRejectsBadFile(t *testing.T) {
	dir := isolate(t)
	file := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(file, []byte("research:\n  cache_freshness: soon\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("RIVALSCOPE_CONFIG", file)
	if _, err := Load(); err == nil {
		t.Fatal("expected bad duration to fail")
	}

	t.Setenv("RIVALSCOPE_CONFIG", filepath.Join(dir, "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Fatal("expected missing file to fail")
	}
}

func TestLoadRejectsMalformedEnv(t *testing.T) {
	for key, val := range map[string]string{
		"RIVALSCOPE_RESEARCH_WORKERS": "four",
		"RIVALSCOPE_CACHE_FRESHNESS":  "a day",
		"OTEL_ENABLED":                "maybe",
	} {
		t.Run(key, func(t *testing.T) {
			isolate(t)
			t.Setenv(key, val)
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), key) {
				t.Fatalf("expected error naming %s, got %v", key, err)
			}
		})
	}
}

func TestEnvOverlay(t *testing.T) {
	vars := map[string]string{"N": " 12 ", "BLANK": "  ", "D": "90s", "B": "on", "BAD": "twelve"}
	env := &envOverlay{lookup: func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}}

	n, blank, bad := 1, 7, 3
	env.setInt("N", &n)
	env.setInt("BLANK", &blank)
	env.setInt("BAD", &bad)
	if n != 12 || blank != 7 || bad != 3 {
		t.Fatalf("ints: n=%d blank=%d bad=%d", n, blank, bad)
	}
	var d Duration
	var b bool
	env.setDuration("D", &d)
	env.setBool("B", &b)
	if d.Std() != 90*time.Second || !b {
		t.Fatalf("d=%v b=%v", d.Std(), b)
	}
	if err := env.err(); err == nil || !strings.Contains(err.Error(), "BAD") {
		t.Fatalf("expected BAD to be reported, got %v", err)
	}

	if v, ok := ParseBool("maybe"); v || ok {
		t.Fatal("ParseBool accepted an unknown spelling")
	}
}
