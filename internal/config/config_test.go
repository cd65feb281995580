package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Project != "ecomatrix" {
		t.Errorf("Project = %q, want default", cfg.Project)
	}
	if !cfg.SaveIntermediate || !cfg.Verbose {
		t.Error("SaveIntermediate and Verbose must default to true")
	}
	if len(cfg.PROOrder) == 0 || len(cfg.STROrder) == 0 {
		t.Error("label orders must have defaults")
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ecomatrix.yaml")
	content := `project: ei31
sys_dir: /data/ecoinvent
positive_waste: true
formats: [csv]
pro_order: [geography, activityName]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Project != "ei31" || cfg.SysDir != "/data/ecoinvent" {
		t.Errorf("loaded %q/%q, want ei31 and /data/ecoinvent",
			cfg.Project, cfg.SysDir)
	}
	if !cfg.PositiveWaste {
		t.Error("positive_waste not loaded")
	}
	if len(cfg.PROOrder) != 2 || cfg.PROOrder[0] != "geography" {
		t.Errorf("PROOrder = %v, want the yaml order", cfg.PROOrder)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ECOMATRIX_PROJECT", "from-env")
	t.Setenv("ECOMATRIX_POSITIVE_WASTE", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Project != "from-env" {
		t.Errorf("Project = %q, want env override", cfg.Project)
	}
	if !cfg.PositiveWaste {
		t.Error("PositiveWaste env override not applied")
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err == nil {
		t.Error("Validate accepted an empty sys_dir")
	}

	cfg.SysDir = t.TempDir()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate rejected an existing sys_dir: %v", err)
	}

	cfg.SysDir = filepath.Join(cfg.SysDir, "does-not-exist")
	if err := cfg.Validate(); err == nil {
		t.Error("Validate accepted a missing sys_dir")
	}
}

func TestWantsFormat(t *testing.T) {
	cfg := Default()
	if !cfg.WantsFormat("csv") || !cfg.WantsFormat("sparse") {
		t.Error("empty formats list must mean all formats")
	}
	cfg.Formats = []string{"sparse"}
	if cfg.WantsFormat("csv") {
		t.Error("csv not requested but reported wanted")
	}
	if !cfg.WantsFormat("sparse") {
		t.Error("sparse requested but not reported wanted")
	}
}

func TestPaths(t *testing.T) {
	cfg := Default()
	cfg.Project = "p"
	cfg.OutDir = "/out"
	cfg.SysDir = "/sys"
	if got := cfg.LogDir(); got != filepath.Join("/out", "p_log") {
		t.Errorf("LogDir = %q", got)
	}
	if got := cfg.CachePath(); got != filepath.Join("/sys", "p_cache.db") {
		t.Errorf("CachePath = %q", got)
	}
}
