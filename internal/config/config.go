// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package config loads docflow.yaml and prompts.yaml into pkg/types
// structures. Environment variables prefixed DOCFLOW_ override file values;
// nested keys use underscores (DOCFLOW_TASK_MANAGER_BATCH_SIZE).
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/docflow/pkg/types"
)

// EnvPrefix is the prefix for environment overrides.
const EnvPrefix = "DOCFLOW"

// SetDefaults registers every default value on v. Defaults are registered
// per key so AutomaticEnv can see keys absent from the config file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("model.backend", string(types.BackendOpenAI))
	v.SetDefault("model.name", "")
	v.SetDefault("model.url", "")
	v.SetDefault("model.api_key", "")
	v.SetDefault("model.project", "")
	v.SetDefault("model.region", "us-central1")
	v.SetDefault("model.max_retries", 3)
	v.SetDefault("model.timeout", 120*time.Second)

	v.SetDefault("pdf2img.dpi", 200)
	v.SetDefault("pdf2img.quality", 95)
	v.SetDefault("pdf2img.thread_count", 4)
	v.SetDefault("pdf2img.pdftoppm_path", "")
	v.SetDefault("pdf2img.max_width", 0)

	v.SetDefault("img2markdown.delay_between_requests", 500*time.Millisecond)
	v.SetDefault("img2markdown.error_placeholder", "[识别失败]")

	v.SetDefault("task_manager.tasks_dir", "tasks")
	v.SetDefault("task_manager.task_file_prefix", "task_")
	v.SetDefault("task_manager.store", string(types.StoreFile))
	v.SetDefault("task_manager.item_delay", time.Duration(0))
	v.SetDefault("task_manager.batch_size", 1)
	v.SetDefault("task_manager.resume", true)
	v.SetDefault("task_manager.max_attempts", 3)
	v.SetDefault("task_manager.skip_existing", false)
	v.SetDefault("task_manager.firestore_project", "")
	v.SetDefault("task_manager.firestore_collection", "")

	v.SetDefault("paths.pdf_input", "pdfs")
	v.SetDefault("paths.image_output", "images")
	v.SetDefault("paths.markdown_output", "markdowns")

	v.SetDefault("split.method", string(types.SplitAuto))
	v.SetDefault("split.max_chars", 3000)
	v.SetDefault("split.min_chars", 500)
	v.SetDefault("split.max_header_level", 2)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// BindEnv wires DOCFLOW_ environment overrides into v.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Decode unmarshals v into a Config and validates it.
func Decode(v *viper.Viper) (types.Config, error) {
	var cfg types.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decoding config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks field constraints and reports every violation at once.
func Validate(cfg types.Config) error {
	err := validator.New().Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validating config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// Load builds a fresh viper instance with defaults and env overrides,
// reads path when non-empty, and decodes the result.
func Load(path string) (types.Config, error) {
	v := viper.New()
	SetDefaults(v)
	BindEnv(v)
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return types.Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
	}
	return Decode(v)
}

// LoadPrompts reads prompts.yaml. A missing file yields empty prompts so the
// built-in defaults apply.
func LoadPrompts(path string) (types.Prompts, error) {
	var p types.Prompts
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("reading prompts %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parsing prompts %s: %w", path, err)
	}
	return p, nil
}
