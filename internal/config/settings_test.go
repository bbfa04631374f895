package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadSettingsPrefersTOML(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tomlPath := filepath.Join(dir, "settings.toml")
	if err := os.WriteFile(tomlPath, []byte("history_limit = 25\nactive_environment = \"staging\"\n"), 0o644); err != nil {
		t.Fatalf("write toml: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "settings.json"), []byte(`{"history_limit": 99}`), 0o644); err != nil {
		t.Fatalf("write json: %v", err)
	}

	settings, handle, err := loadSettingsFrom(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if handle.Format != SettingsFormatTOML {
		t.Fatalf("expected toml handle, got %s", handle.Format)
	}
	if settings.HistoryLimit != 25 || settings.ActiveEnvironment != "staging" {
		t.Fatalf("unexpected settings %+v", settings)
	}
	if settings.StorePath == "" || settings.TimeoutSeconds != 30 {
		t.Fatalf("defaults not filled in: %+v", settings)
	}
}

func TestLoadSettingsFallsBackToJSON(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "settings.json"), []byte(`{"history_limit": 40}`), 0o644); err != nil {
		t.Fatalf("write json: %v", err)
	}

	settings, handle, err := loadSettingsFrom(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if handle.Format != SettingsFormatJSON || settings.HistoryLimit != 40 {
		t.Fatalf("unexpected result %+v %+v", settings, handle)
	}
}

func TestLoadSettingsMissingFilesGiveDefaults(t *testing.T) {
	t.Parallel()

	settings, handle, err := loadSettingsFrom(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if handle.Format != SettingsFormatTOML {
		t.Fatalf("expected toml default handle")
	}
	if settings.HistoryLimit != 100 || settings.TimeoutSeconds != 30 {
		t.Fatalf("unexpected defaults %+v", settings)
	}
}

func TestSaveSettingsRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	handle := SettingsHandle{Path: filepath.Join(dir, "settings.toml"), Format: SettingsFormatTOML}
	want := Settings{HistoryLimit: 50, ActiveEnvironment: "prod", StorePath: filepath.Join(dir, "x.db")}
	if err := SaveSettings(want, handle); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, _, err := loadSettingsFrom(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.HistoryLimit != 50 || got.ActiveEnvironment != "prod" || got.StorePath != want.StorePath {
		t.Fatalf("round trip mismatch %+v", got)
	}
}
