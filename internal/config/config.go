// Package config handles configuration and the .draftloop directory
// structure. Every project that uses draftloop gets a .draftloop/ folder
// created in its root.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// DraftloopDir is the name of the directory created in each project.
	DraftloopDir = ".draftloop"

	defaultModel = "gpt-4o-mini"
)

const defaultProjectConfigYAML = `# draftloop project configuration
version: 1

workflow:
  max_ai_revisions: 3
  max_human_revisions: 2
  max_generation_retries: 2

generation:
  model: gpt-4o-mini
  # base_url: https://api.openai.com/v1

# Persona files (relative to the project directory). Leave empty to use the
# built-in writer and reviewer personas.
personas:
  writer: ""
  reviewer: ""
`

// WorkflowSettings bounds the review loop.
type WorkflowSettings struct {
	MaxAIRevisions       int `yaml:"max_ai_revisions"`
	MaxHumanRevisions    int `yaml:"max_human_revisions"`
	MaxGenerationRetries int `yaml:"max_generation_retries"`
}

// GenerationSettings configures the text generation backend.
type GenerationSettings struct {
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url,omitempty"`
}

// PersonaSettings points at persona files on disk. Empty values fall back to
// the built-in personas.
type PersonaSettings struct {
	Writer   string `yaml:"writer,omitempty"`
	Reviewer string `yaml:"reviewer,omitempty"`
}

// ProjectConfig models .draftloop/config.yaml.
type ProjectConfig struct {
	Version    int                `yaml:"version"`
	Workflow   WorkflowSettings   `yaml:"workflow"`
	Generation GenerationSettings `yaml:"generation"`
	Personas   PersonaSettings    `yaml:"personas"`
}

// Config holds the runtime configuration for draftloop.
type Config struct {
	// ProjectDir is the directory where the user ran `draftloop` from.
	ProjectDir string

	// DraftloopProjectDir is ProjectDir/.draftloop.
	DraftloopProjectDir string

	Project ProjectConfig
}

// InitDraftloopDir creates the .draftloop directory structure in the given
// project directory.
//
// Structure created:
// .draftloop/
// ├── posts/       <- Post version history (one directory per post)
// ├── state/       <- Workflow snapshot for the active run, plus archive/
// ├── logs/        <- Event logs and the run logbook
// └── personas/    <- Optional writer/reviewer persona files
func InitDraftloopDir(projectDir string) error {
	draftloopDir := filepath.Join(projectDir, DraftloopDir)

	dirs := []string{
		filepath.Join(draftloopDir, "posts"),
		filepath.Join(draftloopDir, "state"),
		filepath.Join(draftloopDir, "logs"),
		filepath.Join(draftloopDir, "personas"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	return ensureProjectConfig(filepath.Join(draftloopDir, "config.yaml"))
}

// NewConfig creates a Config populated from .draftloop/config.yaml and the
// process environment. A .env file in the project directory is loaded first,
// so OPENAI_API_KEY can live there instead of the shell profile.
func NewConfig(projectDir string) (*Config, error) {
	// Ignore a missing .env; the variable may be exported directly.
	_ = godotenv.Load(filepath.Join(projectDir, ".env"))

	cfg := &Config{
		ProjectDir:          projectDir,
		DraftloopProjectDir: filepath.Join(projectDir, DraftloopDir),
		Project:             defaultProjectConfig(),
	}
	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// PostsDir returns the directory holding post version history.
func (c *Config) PostsDir() string {
	return filepath.Join(c.DraftloopProjectDir, "posts")
}

// StateDir returns the directory holding the workflow snapshot.
func (c *Config) StateDir() string {
	return filepath.Join(c.DraftloopProjectDir, "state")
}

// LogsDir returns the directory holding event logs and the logbook.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DraftloopProjectDir, "logs")
}

// PersonasDir returns the directory for persona files.
func (c *Config) PersonasDir() string {
	return filepath.Join(c.DraftloopProjectDir, "personas")
}

// SnapshotPath returns the active run's snapshot file.
func (c *Config) SnapshotPath() string {
	return filepath.Join(c.StateDir(), "snapshot.json")
}

// EventLogPath returns the event log location for a run.
func (c *Config) EventLogPath(runID string) string {
	return filepath.Join(c.LogsDir(), fmt.Sprintf("events-%s.json", runID))
}

// LogbookPath returns the operator-facing run log.
func (c *Config) LogbookPath() string {
	return filepath.Join(c.LogsDir(), "logbook.log")
}

// ProjectConfigPath returns the on-disk location for the project config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.DraftloopProjectDir, "config.yaml")
}

// APIKey reads the generation service credential from the environment.
func (c *Config) APIKey() string {
	return strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
}

// WriterPersonaPath resolves the configured writer persona file, if any.
func (c *Config) WriterPersonaPath() string {
	return resolvePath(c.ProjectDir, c.Project.Personas.Writer)
}

// ReviewerPersonaPath resolves the configured reviewer persona file, if any.
func (c *Config) ReviewerPersonaPath() string {
	return resolvePath(c.ProjectDir, c.Project.Personas.Reviewer)
}

func (c *Config) loadProjectConfig() error {
	path := c.ProjectConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var parsed ProjectConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	parsed.applyDefaults()
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	c.Project = parsed
	return nil
}

func defaultProjectConfig() ProjectConfig {
	return ProjectConfig{
		Version: 1,
		Workflow: WorkflowSettings{
			MaxAIRevisions:       3,
			MaxHumanRevisions:    2,
			MaxGenerationRetries: 2,
		},
		Generation: GenerationSettings{Model: defaultModel},
	}
}

func (pc *ProjectConfig) applyDefaults() {
	defaults := defaultProjectConfig()
	if pc.Version == 0 {
		pc.Version = defaults.Version
	}
	if pc.Workflow.MaxAIRevisions == 0 {
		pc.Workflow.MaxAIRevisions = defaults.Workflow.MaxAIRevisions
	}
	if pc.Workflow.MaxHumanRevisions == 0 {
		pc.Workflow.MaxHumanRevisions = defaults.Workflow.MaxHumanRevisions
	}
	if pc.Workflow.MaxGenerationRetries == 0 {
		pc.Workflow.MaxGenerationRetries = defaults.Workflow.MaxGenerationRetries
	}
	if strings.TrimSpace(pc.Generation.Model) == "" {
		pc.Generation.Model = defaults.Generation.Model
	}
}

func (pc ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	if pc.Workflow.MaxAIRevisions < 0 {
		return fmt.Errorf("workflow.max_ai_revisions must not be negative")
	}
	if pc.Workflow.MaxHumanRevisions < 0 {
		return fmt.Errorf("workflow.max_human_revisions must not be negative")
	}
	if pc.Workflow.MaxGenerationRetries < 0 {
		return fmt.Errorf("workflow.max_generation_retries must not be negative")
	}
	return nil
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0o644)
}
