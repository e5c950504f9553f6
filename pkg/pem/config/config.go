package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/pem/pkg/pem"
	"github.com/cognicore/pem/pkg/pem/internalerr"
	"github.com/cognicore/pem/pkg/pem/prior"
)

// Accumulator back-ends
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// Secondary sources merged into the Wikipedia prior
const (
	SourceNone    = "none"
	SourceYago    = "yago"
	SourceClueWeb = "clueweb"
	SourceJSON    = "json"
)

// Config is the full build configuration.
type Config struct {
	BaseDir     string       `yaml:"base_dir"`
	Wiki        Wiki         `yaml:"wiki"`
	Custom      Custom       `yaml:"custom"`
	Catalog     Catalog      `yaml:"catalog"`
	Accumulator Accumulator  `yaml:"accumulator"`
	Prior       prior.Config `yaml:"prior"`
	Export      Export       `yaml:"export"`
	Log         Log          `yaml:"log"`
	Metrics     Metrics      `yaml:"metrics"`
}

// Wiki locates the primary corpora.
type Wiki struct {
	AnchorDir     string `yaml:"anchor_dir"`
	CrossWikiPath string `yaml:"crosswiki_path"`
}

// Custom selects the secondary corpus merged after the Wikipedia prior.
type Custom struct {
	Source     string `yaml:"source"`
	YagoPath   string `yaml:"yago_path"`
	ClueWebDir string `yaml:"clueweb_dir"`
	JSONPath   string `yaml:"json_path"`
	Weighting  string `yaml:"weighting"`
}

// Catalog locates the entity catalog files.
type Catalog struct {
	NamesPath     string `yaml:"names_path"`
	RedirectsPath string `yaml:"redirects_path"`
	FreebaseDB    string `yaml:"freebase_db"`
}

// Accumulator configures where counts are aggregated.
type Accumulator struct {
	Backend   string `yaml:"backend"`
	Path      string `yaml:"path"`
	BatchSize int    `yaml:"batch_size"`
	Reset     bool   `yaml:"reset"`
}

// Export configures the lookup store the table is loaded into.
type Export struct {
	Driver    string `yaml:"driver"`
	DSN       string `yaml:"dsn"`
	Table     string `yaml:"table"`
	BatchSize int    `yaml:"batch_size"`
	Reset     bool   `yaml:"reset"`
}

// Log configures the process logger.
type Log struct {
	Level         string `yaml:"level"`
	Format        string `yaml:"format"`
	ProgressEvery int64  `yaml:"progress_every"`
}

// Metrics configures the optional prometheus endpoint.
type Metrics struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Wiki: Wiki{
			AnchorDir:     "wiki_2019/basic_data/anchor_files",
			CrossWikiPath: "generic/p_e_m_data/crosswikis_p_e_m.txt",
		},
		Custom: Custom{
			Source:     SourceYago,
			YagoPath:   "generic/p_e_m_data/aida_means.tsv",
			ClueWebDir: "ClueWeb09",
			Weighting:  pem.WeightingUniform,
		},
		Catalog: Catalog{
			NamesPath:     "wiki_2019/basic_data/wiki_name_id_map.txt",
			RedirectsPath: "wiki_2019/basic_data/wiki_redirects.txt",
			FreebaseDB:    "mapping/index_fb2wp.db",
		},
		Accumulator: Accumulator{
			Backend:   BackendMemory,
			Path:      "temp/wiki.db",
			BatchSize: 50000,
			Reset:     true,
		},
		Prior: prior.DefaultConfig(),
		Export: Export{
			Driver:    "sqlite",
			DSN:       "wiki_2019/generated/entity_word_embedding.db",
			Table:     "wiki",
			BatchSize: 50000,
			Reset:     true,
		},
		Log: Log{
			Level:         "info",
			Format:        "json",
			ProgressEvery: 5000000,
		},
	}
}

// Load reads a YAML config file on top of Default.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return &cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks enumerations and sizes.
func (c *Config) Validate() error {
	switch c.Accumulator.Backend {
	case BackendMemory, BackendSQLite:
	default:
		return fmt.Errorf("%w: accumulator.backend %q", internalerr.ErrInvalidConfig, c.Accumulator.Backend)
	}
	if c.Accumulator.Backend == BackendSQLite && c.Accumulator.Path == "" {
		return fmt.Errorf("%w: accumulator.path is required for the sqlite backend", internalerr.ErrInvalidConfig)
	}
	if c.Accumulator.BatchSize <= 0 {
		return fmt.Errorf("%w: accumulator.batch_size must be positive", internalerr.ErrInvalidConfig)
	}

	switch c.Custom.Source {
	case SourceNone, SourceYago, SourceClueWeb, SourceJSON:
	default:
		return fmt.Errorf("%w: custom.source %q", internalerr.ErrInvalidConfig, c.Custom.Source)
	}
	switch c.Custom.Weighting {
	case pem.WeightingUniform, pem.WeightingCounts:
	default:
		return fmt.Errorf("%w: custom.weighting %q", internalerr.ErrInvalidConfig, c.Custom.Weighting)
	}
	if c.Custom.Source == SourceJSON && c.Custom.JSONPath == "" {
		return fmt.Errorf("%w: custom.json_path is required for the json source", internalerr.ErrInvalidConfig)
	}

	if c.Prior.MaxCandidates <= 0 {
		return fmt.Errorf("%w: prior.max_candidates must be positive", internalerr.ErrInvalidConfig)
	}
	if c.Prior.RoundDigits < 0 {
		return fmt.Errorf("%w: prior.round_digits must not be negative", internalerr.ErrInvalidConfig)
	}

	switch strings.ToLower(c.Export.Driver) {
	case "sqlite", "mysql":
	default:
		return fmt.Errorf("%w: export.driver %q", internalerr.ErrInvalidConfig, c.Export.Driver)
	}
	if c.Export.DSN == "" {
		return fmt.Errorf("%w: export.dsn is required", internalerr.ErrInvalidConfig)
	}
	if c.Export.BatchSize <= 0 {
		return fmt.Errorf("%w: export.batch_size must be positive", internalerr.ErrInvalidConfig)
	}
	return nil
}

// Path resolves a configured path against BaseDir. Absolute and empty
// paths are returned unchanged.
func (c *Config) Path(p string) string {
	if p == "" || filepath.IsAbs(p) || c.BaseDir == "" {
		return p
	}
	return filepath.Join(c.BaseDir, p)
}

// ExportDSN resolves the export DSN; only sqlite DSNs are file paths.
func (c *Config) ExportDSN() string {
	if strings.ToLower(c.Export.Driver) == "sqlite" {
		return c.Path(c.Export.DSN)
	}
	return c.Export.DSN
}
