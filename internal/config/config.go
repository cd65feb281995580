package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds all options for a single conversion run, loaded from an
// ecomatrix.yaml project file with environment-variable overrides.
type Config struct {
	// Project identifies the run; it names the log directory, the cache file
	// and every exported artifact.
	Project string `yaml:"project"`

	// SysDir is the ecospold system description: a MasterData directory plus
	// a datasets directory of per-process .spold files.
	SysDir string `yaml:"sys_dir"`
	OutDir string `yaml:"out_dir"`
	// LCIDir optionally points at official cumulative LCI .spold files used
	// only by the sanity check.
	LCIDir string `yaml:"lci_dir"`

	// PositiveWaste flips the sign convention so waste-treatment flows read
	// positive; the normalizing divisor then uses absolute output amounts.
	PositiveWaste bool `yaml:"positive_waste"`
	// NaN2Null replaces missing matrix entries with 0.0 instead of NaN.
	NaN2Null bool `yaml:"nan2null"`
	// UseCache loads extracted tables from the sqlite cache when present.
	UseCache bool `yaml:"use_cache"`
	// SaveIntermediate writes extracted tables to the sqlite cache.
	SaveIntermediate bool `yaml:"save_intermediate"`
	Verbose          bool `yaml:"verbose"`

	// VersionName is the inventory vocabulary scheme name, e.g. "ecoinvent31".
	VersionName string `yaml:"version_name"`

	// PROOrder and STROrder are the label sort keys for the final matrices.
	PROOrder []string `yaml:"pro_order"`
	STROrder []string `yaml:"str_order"`

	// CharacterisationFile is an optional ReCiPe-layout workbook.
	CharacterisationFile string `yaml:"characterisation_file"`

	// Reference tables, pipe-delimited with '#' comment lines. Empty paths
	// fall back to the built-in defaults.
	CASConflictsFile  string `yaml:"cas_conflicts_file"`
	SynonymsFile      string `yaml:"synonyms_file"`
	CustomFactorsFile string `yaml:"custom_factors_file"`

	// OldLabelsFile optionally carries a prior run's stressor labels whose
	// ids are re-used for backward compatibility.
	OldLabelsFile string `yaml:"old_labels_file"`

	// Formats selects serializations: "csv", "sparse". Empty means all.
	Formats []string `yaml:"formats"`

	// WithAbsoluteFlows additionally writes the scaled (Z, G) matrix pair.
	WithAbsoluteFlows bool `yaml:"with_absolute_flows"`
	// MakeUntraceable aggregates away the supplier dimension of the use table.
	MakeUntraceable bool `yaml:"make_untraceable"`
	// LCICheck compares the calculated cumulative LCI against official files.
	LCICheck bool `yaml:"lci_check"`
}

// Default returns the configuration used when a field is not set.
func Default() *Config {
	return &Config{
		Project:          "ecomatrix",
		OutDir:           ".",
		SaveIntermediate: true,
		Verbose:          true,
		VersionName:      "ecoinvent31",
		PROOrder:         []string{"ISIC", "activityName"},
		STROrder:         []string{"comp", "name", "subcomp"},
	}
}

// Load reads a yaml project file and applies env overrides. A missing file is
// not an error; defaults plus environment are used instead.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("unmarshal config %s: %w", path, err)
			}
		}
	}

	cfg.Project = GetEnv("ECOMATRIX_PROJECT", cfg.Project)
	cfg.SysDir = GetEnv("ECOMATRIX_SYS_DIR", cfg.SysDir)
	cfg.OutDir = GetEnv("ECOMATRIX_OUT_DIR", cfg.OutDir)
	cfg.PositiveWaste = GetEnvBool("ECOMATRIX_POSITIVE_WASTE", cfg.PositiveWaste)
	cfg.NaN2Null = GetEnvBool("ECOMATRIX_NAN2NULL", cfg.NaN2Null)
	cfg.UseCache = GetEnvBool("ECOMATRIX_USE_CACHE", cfg.UseCache)
	cfg.Verbose = GetEnvBool("ECOMATRIX_VERBOSE", cfg.Verbose)

	if len(cfg.PROOrder) == 0 {
		cfg.PROOrder = Default().PROOrder
	}
	if len(cfg.STROrder) == 0 {
		cfg.STROrder = Default().STROrder
	}
	return cfg, nil
}

// Validate checks the structural requirements before a run starts. A missing
// system directory is the one fatal input condition.
func (c *Config) Validate() error {
	if c.SysDir == "" {
		return fmt.Errorf("sys_dir is required")
	}
	if _, err := os.Stat(c.SysDir); err != nil {
		return fmt.Errorf("sys_dir %s: %w", c.SysDir, err)
	}
	return nil
}

// LogDir is the per-project directory holding the run log and audit artifacts.
func (c *Config) LogDir() string {
	return filepath.Join(c.OutDir, c.Project+"_log")
}

// CachePath is the sqlite file holding extracted intermediate tables.
func (c *Config) CachePath() string {
	return filepath.Join(c.SysDir, c.Project+"_cache.db")
}

// WantsFormat reports whether a serialization format was requested.
func (c *Config) WantsFormat(name string) bool {
	if len(c.Formats) == 0 {
		return true
	}
	for _, f := range c.Formats {
		if f == name {
			return true
		}
	}
	return false
}
