package compiler

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/streamyara/streamyara/pkg/types"
	"gopkg.in/yaml.v3"
)

// yamlSourceFile is the on-disk shape of a rule-source YAML file: a
// namespace name paired with the raw YARA-subset rule text for that
// namespace. Grounded on the teacher's pkg/rule/loader.go yamlRulesFile/
// yamlRulesetsFile convention of one small wrapper struct per YAML shape.
type yamlSourceFile struct {
	Sources []yamlSource `yaml:"sources"`
}

type yamlSource struct {
	Namespace string `yaml:"namespace"`
	Rules     string `yaml:"rules"`
}

// LoadSources parses a YAML document listing one or more namespaced rule
// sources.
func LoadSources(data []byte) ([]Source, error) {
	var f yamlSourceFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("compiler: failed to parse YAML: %w", err)
	}
	if len(f.Sources) == 0 {
		return nil, fmt.Errorf("compiler: no rule sources found in YAML")
	}
	out := make([]Source, len(f.Sources))
	for i, s := range f.Sources {
		out[i] = Source{Namespace: s.Namespace, Text: s.Rules}
	}
	return out, nil
}

// LoadSourcesFile reads and parses a rule-source YAML file from disk.
func LoadSourcesFile(path string) ([]Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("compiler: failed to read %s: %w", path, err)
	}
	return LoadSources(data)
}

// LoadSourcesDir walks fsys under dir collecting every *.yml/*.yaml rule
// source file, in the same WalkDir-over-an-fs.FS style as the teacher's
// LoadBuiltinRules/LoadBuiltinRulesets.
func LoadSourcesDir(fsys fs.FS, dir string) ([]Source, error) {
	var out []Source
	err := fs.WalkDir(fsys, dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch filepath.Ext(path) {
		case ".yml", ".yaml":
		default:
			return nil
		}
		data, rerr := fs.ReadFile(fsys, path)
		if rerr != nil {
			return fmt.Errorf("compiler: failed to read %s: %w", path, rerr)
		}
		srcs, perr := LoadSources(data)
		if perr != nil {
			return fmt.Errorf("compiler: %s: %w", path, perr)
		}
		out = append(out, srcs...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CompileFile loads and compiles a single rule-source YAML file.
func CompileFile(path string) (*types.CompiledRules, error) {
	srcs, err := LoadSourcesFile(path)
	if err != nil {
		return nil, err
	}
	return Compile(srcs...)
}

// CompileDir loads and compiles every rule-source YAML file under dir.
func CompileDir(fsys fs.FS, dir string) (*types.CompiledRules, error) {
	srcs, err := LoadSourcesDir(fsys, dir)
	if err != nil {
		return nil, err
	}
	return Compile(srcs...)
}
