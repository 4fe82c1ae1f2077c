package prospect

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/prospect/internal/pdl"
)

// Config holds all prospect configuration.
type Config struct {
	DBPath   string         `yaml:"db_path"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Cache    CacheConfig    `yaml:"cache"`
	Export   ExportConfig   `yaml:"export"`
	Analyze  AnalyzeConfig  `yaml:"analyze"`
}

// UpstreamConfig points at the company data API.
type UpstreamConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// CacheConfig controls query cache TTLs.
type CacheConfig struct {
	SearchTTL time.Duration `yaml:"search_ttl"`
	ExportTTL time.Duration `yaml:"export_ttl"`
	CountTTL  time.Duration `yaml:"count_ttl"`
}

// ExportConfig controls the bulk export engine. The filters select which
// companies a bulk export covers.
type ExportConfig struct {
	PageSize      int           `yaml:"page_size"`
	PageDelay     time.Duration `yaml:"page_delay"`
	MinEmployees  int           `yaml:"min_employees"`
	MaxEmployees  int           `yaml:"max_employees"`
	FundingStages []string      `yaml:"funding_stages"`
}

// Filters returns the export filter set as upstream search filters.
func (e ExportConfig) Filters() pdl.SearchFilters {
	return pdl.SearchFilters{
		MinEmployees:  e.MinEmployees,
		MaxEmployees:  e.MaxEmployees,
		FundingStages: e.FundingStages,
	}
}

// AnalyzeConfig controls company workforce analysis.
type AnalyzeConfig struct {
	EngineeringTitles []string `yaml:"engineering_titles"`
	MaxPeople         int      `yaml:"max_people"`
}

func (c *Config) defaults() {
	if c.DBPath == "" {
		c.DBPath = "prospect.db"
	}
	if c.Upstream.Timeout <= 0 {
		c.Upstream.Timeout = 30 * time.Second
	}
	if c.Cache.SearchTTL <= 0 {
		c.Cache.SearchTTL = 24 * time.Hour
	}
	if c.Cache.ExportTTL <= 0 {
		c.Cache.ExportTTL = 1 * time.Hour
	}
	if c.Cache.CountTTL <= 0 {
		c.Cache.CountTTL = c.Cache.SearchTTL
	}
	if c.Export.PageSize <= 0 {
		c.Export.PageSize = 100
	}
	if c.Export.MinEmployees <= 0 {
		c.Export.MinEmployees = 50
	}
	if c.Export.MaxEmployees <= 0 {
		c.Export.MaxEmployees = 1000
	}
	if len(c.Export.FundingStages) == 0 {
		c.Export.FundingStages = []string{"series_a", "series_b", "series_c"}
	}
	if len(c.Analyze.EngineeringTitles) == 0 {
		c.Analyze.EngineeringTitles = []string{
			"software engineer",
			"senior software engineer",
			"staff software engineer",
			"engineering manager",
			"director of engineering",
			"vp of engineering",
			"cto",
		}
	}
	if c.Analyze.MaxPeople <= 0 {
		c.Analyze.MaxPeople = 25
	}
}

// LoadConfigFile reads a YAML config file and applies defaults.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.defaults()
	return cfg, nil
}

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.defaults()
	return cfg
}
