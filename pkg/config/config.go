// Package config loads the migration tool's YAML configuration with
// environment substitution.
package config

import (
	"os"
	"time"

	"github.com/drone/envsubst"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

type Config struct {
	SVNRoot      string   `yaml:"svnRoot"`
	GitRepo      string   `yaml:"gitRepo"`
	AuthorDomain string   `yaml:"authorDomain"`
	LogLevel     string   `yaml:"logLevel"`
	Retry        Retry    `yaml:"retry"`
	VetoPackages []string `yaml:"vetoPackages"`
	VetoFile     string   `yaml:"vetoFile"`
}

type Retry struct {
	Attempts uint64   `yaml:"attempts"`
	Wait     Duration `yaml:"wait"`
}

// Duration accepts Go duration strings ("10s", "2m") in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.GitRepo, validation.Required),
		validation.Field(&c.LogLevel, validation.In("", "debug", "info", "warn", "error")),
	)
}

func ParseConfig(b []byte) (*Config, error) {
	c := &Config{}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, err
	}
	root, err := envsubst.EvalEnv(c.SVNRoot)
	if err != nil {
		return nil, err
	}
	c.SVNRoot = root
	repo, err := envsubst.EvalEnv(c.GitRepo)
	if err != nil {
		return nil, err
	}
	c.GitRepo = repo
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func FromFile(f string) (*Config, error) {
	b, err := os.ReadFile(f)
	if err != nil {
		return nil, err
	}
	return ParseConfig(b)
}
