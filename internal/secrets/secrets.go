// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets reads model credentials from a directory of plain-text
// files. The file name is the key and the trimmed contents are the value.
//
// Known keys: openai-api-key, gemini-api-key.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/docflow/pkg/types"
)

// DefaultDir is where the CLI looks for secret files.
const DefaultDir = ".secrets"

// Secrets maps key names to values.
type Secrets map[string]string

// Load reads every regular, non-hidden file in dir. A missing directory
// yields an empty set. Unreadable files are logged and skipped.
func Load(dir string, logger *zap.Logger) (Secrets, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return Secrets{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	out := make(Secrets)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			logger.Warn("could not read secret", zap.String("name", name), zap.Error(err))
			continue
		}
		if value := strings.TrimSpace(string(data)); value != "" {
			out[name] = value
		}
	}
	return out, nil
}

// Get returns fallback when it is set, otherwise the stored value for key.
func (s Secrets) Get(key, fallback string) string {
	if fallback != "" {
		return fallback
	}
	return s[key]
}

// Keys lists the loaded key names in order.
func (s Secrets) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// KeyFor names the secret file that holds the API key of a model backend.
// Vertex authenticates through application default credentials and has none.
func KeyFor(backend types.ModelBackend) string {
	switch backend {
	case types.BackendOpenAI:
		return "openai-api-key"
	case types.BackendGemini:
		return "gemini-api-key"
	default:
		return ""
	}
}

// ApplyModelKey fills cfg.APIKey from the secret store when the config
// leaves it empty.
func (s Secrets) ApplyModelKey(cfg *types.ModelConfig) {
	if key := KeyFor(cfg.Backend); key != "" {
		cfg.APIKey = s.Get(key, cfg.APIKey)
	}
}
