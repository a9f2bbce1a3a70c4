// Package config loads fxflash CLI configuration from layered JSONC files.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tailscale/hujson"

	"github.com/calvinalkan/fxflash/pkg/fxflash"
)

// Error variables for config loading.
var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrConfigFileRead     = errors.New("cannot read config file")
	ErrConfigInvalid      = errors.New("invalid config file")
	ErrPathEmpty          = errors.New("blob path cannot be empty")
	ErrPageSize           = fmt.Errorf("page_size must be 0 or in [%d, %d]", fxflash.MinPageSize, fxflash.MaxPageSize)
	ErrPageCount          = fmt.Errorf("page_count must be 0 or in [%d, %d]", fxflash.MinPageCount, fxflash.MaxPageCount)
)

// FileName is the project config file name.
const FileName = ".fxflash.json"

// Config holds the resolved configuration.
type Config struct {
	DataPath    string `json:"data_path"`
	SavePath    string `json:"save_path"`
	ProgramPage uint16 `json:"program_page"`
	SavePage    uint16 `json:"save_page"`
	PageSize    int    `json:"page_size"`
	PageCount   int    `json:"page_count"`
	LockSave    bool   `json:"lock_save"`

	// Resolved (not serialized)
	EffectiveCwd string  `json:"-"`
	DataPathAbs  string  `json:"-"`
	SavePathAbs  string  `json:"-"`
	Sources      Sources `json:"-"`
}

// Sources tracks which config files were loaded.
type Sources struct {
	Global  string // global config path if loaded
	Project string // project or explicit config path if loaded
}

// Default returns the default configuration. Blob paths are relative to
// the working directory.
func Default() Config {
	return Config{
		DataPath: fxflash.DataFileName,
		SavePath: fxflash.SaveFileName,
	}
}

// Overrides are CLI flag values. Nil fields were not set.
type Overrides struct {
	DataPath    *string
	SavePath    *string
	ProgramPage *uint16
	SavePage    *uint16
	PageSize    *int
	PageCount   *int
	LockSave    *bool
}

// LoadInput holds the inputs for [Load].
type LoadInput struct {
	WorkDirOverride string            // -C/--cwd; os.Getwd() if empty
	ConfigPath      string            // -c/--config
	Env             map[string]string // environment
	Overrides       Overrides
}

// layer is one config file. Pointer fields distinguish "absent" from zero.
type layer struct {
	DataPath    *string `json:"data_path"`
	SavePath    *string `json:"save_path"`
	ProgramPage *uint16 `json:"program_page"`
	SavePage    *uint16 `json:"save_page"`
	PageSize    *int    `json:"page_size"`
	PageCount   *int    `json:"page_count"`
	LockSave    *bool   `json:"lock_save"`
}

// Load resolves configuration with the following precedence (highest wins):
// 1. Defaults
// 2. Global user config ($XDG_CONFIG_HOME/fxflash/config.json or ~/.config/fxflash/config.json)
// 3. Project config (.fxflash.json in the working directory, if present)
// 4. Explicit config file via ConfigPath (replaces 3; must exist)
// 5. CLI overrides.
//
// Blob paths in the result are also resolved to absolute paths.
func Load(input LoadInput) (Config, error) {
	workDir := input.WorkDirOverride
	if workDir == "" {
		var err error

		workDir, err = os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("cannot get working directory: %w", err)
		}
	}

	cfg := Default()

	if globalPath := globalConfigPath(input.Env); globalPath != "" {
		l, loaded, err := loadFile(globalPath, false)
		if err != nil {
			return Config{}, err
		}

		if loaded {
			cfg = merge(cfg, l)
			cfg.Sources.Global = globalPath
		}
	}

	projectPath, mustExist := filepath.Join(workDir, FileName), false
	if input.ConfigPath != "" {
		projectPath, mustExist = input.ConfigPath, true
		if !filepath.IsAbs(projectPath) {
			projectPath = filepath.Join(workDir, projectPath)
		}

		if _, err := os.Stat(projectPath); err != nil {
			return Config{}, fmt.Errorf("%w: %s", ErrConfigFileNotFound, input.ConfigPath)
		}
	}

	l, loaded, err := loadFile(projectPath, mustExist)
	if err != nil {
		return Config{}, err
	}

	if loaded {
		cfg = merge(cfg, l)
		cfg.Sources.Project = projectPath
	}

	cfg = merge(cfg, layer(input.Overrides))

	err = Validate(cfg)
	if err != nil {
		return Config{}, err
	}

	cfg.EffectiveCwd = workDir
	cfg.DataPathAbs = absPath(workDir, cfg.DataPath)
	cfg.SavePathAbs = absPath(workDir, cfg.SavePath)

	return cfg, nil
}

// Validate reports the first invalid field of cfg.
func Validate(cfg Config) error {
	if cfg.DataPath == "" || cfg.SavePath == "" {
		return ErrPathEmpty
	}

	if cfg.PageSize != 0 && (cfg.PageSize < fxflash.MinPageSize || cfg.PageSize > fxflash.MaxPageSize) {
		return fmt.Errorf("%w: got %d", ErrPageSize, cfg.PageSize)
	}

	if cfg.PageCount != 0 && (cfg.PageCount < fxflash.MinPageCount || cfg.PageCount > fxflash.MaxPageCount) {
		return fmt.Errorf("%w: got %d", ErrPageCount, cfg.PageCount)
	}

	return nil
}

// Options converts cfg into engine options.
func (cfg Config) Options() fxflash.Options {
	return fxflash.Options{
		DataPath:    cfg.DataPathAbs,
		SavePath:    cfg.SavePathAbs,
		ProgramPage: cfg.ProgramPage,
		SavePage:    cfg.SavePage,
		PageSize:    cfg.PageSize,
		PageCount:   cfg.PageCount,
		LockSave:    cfg.LockSave,
	}
}

// Format renders the serializable part of cfg as indented JSON.
func Format(cfg Config) (string, error) {
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("formatting config: %w", err)
	}

	return string(b), nil
}

// globalConfigPath returns the global config path, or "" if neither
// XDG_CONFIG_HOME nor HOME is set.
func globalConfigPath(env map[string]string) string {
	if xdg := env["XDG_CONFIG_HOME"]; xdg != "" {
		return filepath.Join(xdg, "fxflash", "config.json")
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "fxflash", "config.json")
	}

	return ""
}

// loadFile reads one layer. A missing optional file is not an error.
func loadFile(path string, mustExist bool) (layer, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return layer{}, false, nil
		}

		return layer{}, false, fmt.Errorf("%w: %s: %w", ErrConfigFileRead, path, err)
	}

	l, err := parse(data)
	if err != nil {
		return layer{}, false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err)
	}

	if (l.DataPath != nil && *l.DataPath == "") || (l.SavePath != nil && *l.SavePath == "") {
		return layer{}, false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, ErrPathEmpty)
	}

	return l, true, nil
}

func parse(data []byte) (layer, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return layer{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var l layer

	err = json.Unmarshal(standardized, &l)
	if err != nil {
		return layer{}, fmt.Errorf("invalid JSON: %w", err)
	}

	return l, nil
}

func merge(base Config, overlay layer) Config {
	if overlay.DataPath != nil {
		base.DataPath = *overlay.DataPath
	}

	if overlay.SavePath != nil {
		base.SavePath = *overlay.SavePath
	}

	if overlay.ProgramPage != nil {
		base.ProgramPage = *overlay.ProgramPage
	}

	if overlay.SavePage != nil {
		base.SavePage = *overlay.SavePage
	}

	if overlay.PageSize != nil {
		base.PageSize = *overlay.PageSize
	}

	if overlay.PageCount != nil {
		base.PageCount = *overlay.PageCount
	}

	if overlay.LockSave != nil {
		base.LockSave = *overlay.LockSave
	}

	return base
}

func absPath(workDir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}

	return filepath.Join(workDir, path)
}
