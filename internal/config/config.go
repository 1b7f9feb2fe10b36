// Package config loads the finvault CLI configuration from
// $FINVAULT_HOME/config.yaml.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Rhymond/go-money"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/forest6511/finvault/pkg/vault"
)

// FileName is the name of the configuration file inside the home directory.
const FileName = "config.yaml"

// HomeEnv overrides the home directory.
const HomeEnv = "FINVAULT_HOME"

// DefaultHomeDir is the home directory name under the user's home.
const DefaultHomeDir = ".finvault"

// CurrentVersion is the only supported config version.
const CurrentVersion = 1

// ErrInsecure is reported when the config file is readable by others
var ErrInsecure = errors.New("config file has insecure permissions")

// ErrSymlink is returned when the config file is a symlink
var ErrSymlink = errors.New("config file is a symlink")

// ErrNotOwnedByUser is returned when the config file belongs to another user
var ErrNotOwnedByUser = errors.New("config file not owned by current user")

// ErrInvalid wraps every validation failure
var ErrInvalid = errors.New("invalid configuration")

// Category is a seeded category as written in YAML.
type Category struct {
	ID   string `yaml:"id" validate:"required,startswith=cat-,max=64"`
	Name string `yaml:"name" validate:"required,max=64"`
	Type string `yaml:"type" validate:"oneof=income expense"`
}

// Config is the CLI configuration.
type Config struct {
	Version           int        `yaml:"version" validate:"eq=1"`
	Namespace         string     `yaml:"namespace" validate:"required,alphanum,max=32"`
	Database          string     `yaml:"database" validate:"required,max=255"`
	Currency          string     `yaml:"currency" validate:"len=3"`
	Audit             bool       `yaml:"audit"`
	TrendMonths       int        `yaml:"trend_months" validate:"gte=1,lte=24"`
	DefaultCategories []Category `yaml:"default_categories" validate:"unique=ID,dive"`

	// Home is the directory the config was loaded from.
	Home string `yaml:"-"`
	// Warnings collects non-fatal problems found while loading.
	Warnings []string `yaml:"-"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Version:     CurrentVersion,
		Namespace:   vault.DefaultNamespace,
		Database:    vault.DBFileName,
		Currency:    money.IDR,
		Audit:       true,
		TrendMonths: 6,
		DefaultCategories: []Category{
			{ID: "cat-gaji", Name: "Gaji", Type: "income"},
			{ID: "cat-bonus", Name: "Bonus", Type: "income"},
			{ID: "cat-usaha", Name: "Usaha", Type: "income"},
			{ID: "cat-makan", Name: "Makan", Type: "expense"},
			{ID: "cat-transport", Name: "Transportasi", Type: "expense"},
			{ID: "cat-tagihan", Name: "Tagihan", Type: "expense"},
		},
	}
}

// HomeDir resolves the finvault home: $FINVAULT_HOME, else ~/.finvault.
func HomeDir() (string, error) {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, DefaultHomeDir), nil
}

// Load reads home/config.yaml on top of Default. A missing file yields the
// defaults. Keys absent from the file keep their default value. A file
// readable by group or others still loads but adds a warning.
func Load(home string) (*Config, error) {
	cfg := Default()
	cfg.Home = home

	f, err := openConfigFile(filepath.Join(home, FileName))
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// fstat the open descriptor so the checks apply to what is read
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if err := checkPermissions(info); err != nil {
		cfg.Warnings = append(cfg.Warnings, err.Error())
	}
	if err := checkFileOwnership(info); err != nil {
		return nil, err
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(content, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if filepath.Base(c.Database) != c.Database {
		return fmt.Errorf("%w: database must be a file name, got %q", ErrInvalid, c.Database)
	}
	if money.GetCurrency(c.Currency) == nil {
		return fmt.Errorf("%w: unknown currency %q", ErrInvalid, c.Currency)
	}
	return nil
}

// DatabasePath is the absolute path of the SQLite file.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Home, c.Database)
}

// AuditDir is where the audit log lives.
func (c *Config) AuditDir() string {
	return filepath.Join(c.Home, "audit")
}

// Categories converts the seeded categories to vault records. Names are
// normalized the same way the vault normalizes user input.
func (c *Config) Categories() []vault.Category {
	out := make([]vault.Category, 0, len(c.DefaultCategories))
	for _, dc := range c.DefaultCategories {
		out = append(out, vault.Category{
			ID:   dc.ID,
			Name: vault.NormalizeCategoryName(dc.Name),
			Type: vault.EntryType(dc.Type),
		})
	}
	return out
}

// Write stores c as home/config.yaml with mode 0600.
func (c *Config) Write() error {
	if err := os.MkdirAll(c.Home, vault.DirMode); err != nil {
		return fmt.Errorf("failed to create home directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	path := filepath.Join(c.Home, FileName)
	if err := os.WriteFile(path, data, vault.FileMode); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return os.Chmod(path, vault.FileMode)
}
