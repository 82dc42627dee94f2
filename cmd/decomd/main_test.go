package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "tm.yaml"), []byte("name: T\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "decomd.yaml")
	body := "schema: tm.yaml\ndefaultContainer: Primary\nschemas:\n  - {id: other, path: /abs/other.yaml}\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Port != 8080 || cfg.MaxBodyBytes != 64<<20 || cfg.Concurrency <= 0 {
		t.Fatalf("defaults %+v", cfg)
	}
	if len(cfg.Schemas) != 2 || cfg.Schemas[0].Path != filepath.Join(dir, "tm.yaml") || cfg.Schemas[0].DefaultContainer != "Primary" || cfg.Schemas[1].Path != "/abs/other.yaml" {
		t.Fatalf("schemas %+v", cfg.Schemas)
	}
	if cfg.Logs.FileName != "decomd.log" || cfg.Logs.MaxSizeMB != 25 || cfg.Logs.MaxAgeDays != 7 || cfg.Logs.MaxBackups != 5 {
		t.Fatalf("logs %+v", cfg.Logs)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"no schemas":    "port: 9000\n",
		"bad framing":   "schema: tm.yaml\nframing: ch10\n",
		"unknown field": "schema: tm.yaml\nprofiles: []\n",
	}
	for name, body := range cases {
		path := filepath.Join(dir, name+".yaml")
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := loadConfig(path); err == nil {
			t.Errorf("%s: accepted", name)
		}
	}
	if _, err := loadConfig(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("missing file accepted")
	}
}
