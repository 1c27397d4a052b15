package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type sample struct {
	Name  string `yaml:"name"`
	Port  int    `yaml:"port"`
	Token string `yaml:"token"`
}

func (s *sample) Validate() error {
	if s.Port <= 0 {
		return errors.New("port must be positive")
	}
	return nil
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad_ExpandsEnvAndKeepsDefaults(t *testing.T) {
	t.Setenv("SAMPLE_TOKEN", "s3cret")
	p := writeConfig(t, "port: 9090\ntoken: ${SAMPLE_TOKEN}\n")

	cfg := sample{Name: "default", Port: 1}
	if err := Load(p, &cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Name != "default" || cfg.Port != 9090 || cfg.Token != "s3cret" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoad_Validates(t *testing.T) {
	p := writeConfig(t, "port: 0\n")
	cfg := sample{}
	err := Load(p, &cfg)
	if err == nil || !strings.Contains(err.Error(), "validation failed") {
		t.Errorf("err = %v", err)
	}
}

func TestLoad_BadYAML(t *testing.T) {
	p := writeConfig(t, "port: [\n")
	if err := Load(p, &sample{}); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoadOptional_MissingFileUsesDefaults(t *testing.T) {
	cfg := sample{Port: 8080}
	found, err := LoadOptional(filepath.Join(t.TempDir(), "absent.yaml"), &cfg)
	if err != nil || found {
		t.Fatalf("LoadOptional = %v, %v", found, err)
	}
	if cfg.Port != 8080 {
		t.Errorf("defaults changed: %+v", cfg)
	}

	if _, err := LoadOptional(filepath.Join(t.TempDir(), "absent.yaml"), &sample{}); err == nil {
		t.Error("invalid defaults should still fail validation")
	}
}

func TestLoadOptional_ReadsExistingFile(t *testing.T) {
	p := writeConfig(t, "port: 7000\n")
	cfg := sample{Port: 1}
	found, err := LoadOptional(p, &cfg)
	if err != nil || !found || cfg.Port != 7000 {
		t.Errorf("LoadOptional = %v, %v, %+v", found, err, cfg)
	}
}
