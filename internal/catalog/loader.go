package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"gend/pkg/types"
)

// File is the on-disk catalog format listing remote engine handles.
type File struct {
	Engines []types.EngineHandle `json:"engines" yaml:"engines" toml:"engines"`
}

// LoadFile reads a catalog file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func LoadFile(path string) ([]types.EngineHandle, error) {
	var f File
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &f); err != nil {
			return nil, err
		}
	case ".json":
		if err := json.Unmarshal(b, &f); err != nil {
			return nil, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &f); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported catalog extension: %s", ext)
	}
	return f.Engines, nil
}

// ScanDir scans a directory for *.gguf files and builds local engine handles
// from filenames. ID is the filename without extension; capacity cost is
// estimated from the file size in MB when not set later by the catalog file.
func ScanDir(dir string) ([]types.EngineHandle, error) {
	base, err := expandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var handles []types.EngineHandle
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(strings.ToLower(name), ".gguf") {
			continue
		}
		p := filepath.Join(abs, name)
		id := strings.TrimSuffix(name, filepath.Ext(name))
		handles = append(handles, types.EngineHandle{
			ID:           id,
			Name:         id,
			Modality:     types.ModalityText,
			Kind:         types.KindLocal,
			Tier:         types.TierFree,
			CapacityCost: EstimateCost(p),
			Streaming:    true,
			ArtifactPath: p,
		})
	}
	return handles, nil
}

// EstimateCost estimates capacity units from artifact file size (MB).
// Returns a conservative minimum of 1 when the file cannot be stat'd so an
// unknown size never bypasses budget checks.
func EstimateCost(path string) int {
	fi, err := os.Stat(path)
	if err != nil {
		return 1
	}
	mb := int(fi.Size() / (1024 * 1024))
	if mb <= 0 {
		mb = 1
	}
	return mb
}

// expandHome expands a leading '~' to the user's home directory.
func expandHome(path string) (string, error) {
	if path == "" {
		return path, nil
	}
	if path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~/")), nil
}
