package launchconfig

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jrepp/pylaunch/pkg/launcherr"
)

// DefaultFileName is the launch file looked up when none is given
const DefaultFileName = "launch.yaml"

// Load loads a configuration from a YAML launch file.
//
// Relative script, working_dir and search_paths entries are resolved against
// the directory holding the file. A relative interpreter containing a path
// separator is resolved the same way; a bare name is left for PATH lookup.
func Load(path string) (*Configuration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, launcherr.ConfigNotFound(path, err)
		}
		return nil, fmt.Errorf("read launch file: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve launch file path: %w", err)
	}

	cfg, err := Parse(data, filepath.Dir(absPath))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.sourcePath = absPath

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Parse decodes a launch file body and resolves relative paths against baseDir.
// Unknown keys are rejected. Parse does not validate the result.
func Parse(data []byte, baseDir string) (*Configuration, error) {
	var cfg Configuration

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	cfg.resolvePaths(baseDir)
	return &cfg, nil
}

func (c *Configuration) resolvePaths(baseDir string) {
	if baseDir == "" {
		return
	}

	if strings.ContainsRune(c.InterpreterPath, filepath.Separator) || strings.Contains(c.InterpreterPath, "/") {
		c.InterpreterPath = resolve(baseDir, c.InterpreterPath)
	}
	if c.ScriptName != "" {
		c.ScriptName = resolve(baseDir, c.ScriptName)
	}
	if c.WorkingDirectory != "" {
		c.WorkingDirectory = resolve(baseDir, c.WorkingDirectory)
	}
	for i, p := range c.SearchPaths {
		c.SearchPaths[i] = resolve(baseDir, p)
	}
}

func resolve(baseDir, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(baseDir, filepath.FromSlash(p))
}
