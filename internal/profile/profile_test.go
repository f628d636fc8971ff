package profile

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFromEnvDefaults(t *testing.T) {
	clearEnvVars()

	profile := &Profile{}
	profile.FromEnv()

	if profile.OpenAIAPIKey != "" {
		t.Errorf("OpenAIAPIKey: expected empty, got %q", profile.OpenAIAPIKey)
	}
	if profile.OpenAIBaseURL != "https://api.openai.com/v1" {
		t.Errorf("OpenAIBaseURL: expected default, got %q", profile.OpenAIBaseURL)
	}
	if profile.TitleModel != "gpt-4o-mini" {
		t.Errorf("TitleModel: expected default, got %q", profile.TitleModel)
	}
	if profile.SearchEndpoint != "" {
		t.Errorf("SearchEndpoint: expected empty, got %q", profile.SearchEndpoint)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	clearEnvVars()
	os.Setenv("AURA_OPENAI_API_KEY", "sk-test")
	os.Setenv("AURA_OPENAI_BASE_URL", "https://proxy.example.com/v1")
	os.Setenv("AURA_TITLE_MODEL", "gpt-4o")
	os.Setenv("AURA_SEARCH_ENDPOINT", "https://search.example.com")
	defer clearEnvVars()

	profile := &Profile{}
	profile.FromEnv()

	if profile.OpenAIAPIKey != "sk-test" {
		t.Errorf("OpenAIAPIKey: expected sk-test, got %q", profile.OpenAIAPIKey)
	}
	if profile.OpenAIBaseURL != "https://proxy.example.com/v1" {
		t.Errorf("OpenAIBaseURL: expected override, got %q", profile.OpenAIBaseURL)
	}
	if profile.TitleModel != "gpt-4o" {
		t.Errorf("TitleModel: expected override, got %q", profile.TitleModel)
	}
	if profile.SearchEndpoint != "https://search.example.com" {
		t.Errorf("SearchEndpoint: expected override, got %q", profile.SearchEndpoint)
	}
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()

	profile := &Profile{
		Mode:   "dev",
		Data:   dir,
		Driver: "sqlite",
	}
	if err := profile.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if profile.DSN != filepath.Join(dir, "aura_dev.db") {
		t.Errorf("DSN: expected sqlite file under data dir, got %q", profile.DSN)
	}
}

func TestValidateUnknownModeFallsBackToDemo(t *testing.T) {
	profile := &Profile{
		Mode:   "staging",
		Data:   t.TempDir(),
		Driver: "sqlite",
	}
	if err := profile.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if profile.Mode != "demo" {
		t.Errorf("Mode: expected demo, got %q", profile.Mode)
	}
}

func clearEnvVars() {
	for _, envVar := range []string{
		"AURA_OPENAI_API_KEY",
		"AURA_OPENAI_BASE_URL",
		"AURA_TITLE_MODEL",
		"AURA_SEARCH_ENDPOINT",
	} {
		os.Unsetenv(envVar)
	}
}
