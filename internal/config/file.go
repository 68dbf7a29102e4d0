package config

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// fileConfig mirrors the YAML document. Pointers distinguish "unset" from 0.
type fileConfig struct {
	BaseDir             string `yaml:"base_dir"`
	RegistryDir         string `yaml:"registry_dir"`
	JobsDir             string `yaml:"jobs_dir"`
	JobsDB              string `yaml:"jobs_db"`
	JobBackend          string `yaml:"job_backend"`
	ModelVersion        string `yaml:"model_version"`
	ModelAlias          string `yaml:"model_alias"`
	CanaryAlias         string `yaml:"canary_alias"`
	CanaryPercent       *int   `yaml:"canary_percent"`
	RecentRequestWindow *int   `yaml:"recent_request_window"`
	LogLevel            string `yaml:"log_level"`
}

// readFile loads and validates a YAML config file.
func readFile(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if len(raw) > 0 {
		if err := validateDocument(raw); err != nil {
			return nil, fmt.Errorf("config: %s: %w", path, err)
		}
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return &fc, nil
}

// validateDocument unifies the decoded document with the closed #Config
// definition. Unknown keys, out-of-range numbers and bad enums all fail here.
func validateDocument(doc map[string]any) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	value := ctx.Encode(doc)
	if err := value.Err(); err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	unified := def.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
