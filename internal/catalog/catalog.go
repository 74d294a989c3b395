// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package catalog loads SOP definitions from YAML files on disk and
// validates them before they ever reach the engine, mirroring the
// parse-then-validate pipeline a workflow definition goes through before
// a controller will run it.
package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/joyshmitz/zeroclaw/internal/sop"
	zcerrors "github.com/joyshmitz/zeroclaw/pkg/errors"
)

// fileDefinition mirrors sop.Definition's YAML shape without Location. It
// is decoded separately so catalog.go owns the on-disk format and a file
// cannot set Location: that field is filled in after decoding from the
// file's path, not read from the file.
type fileDefinition struct {
	Name          string             `yaml:"name"`
	Description   string             `yaml:"description"`
	Version       string             `yaml:"version"`
	Priority      sop.Priority       `yaml:"priority"`
	ExecutionMode sop.ExecutionMode  `yaml:"execution_mode"`
	Triggers      []sop.TriggerSpec  `yaml:"triggers"`
	Steps         []sop.StepDefinition `yaml:"steps"`
	CooldownSecs  int64              `yaml:"cooldown_secs"`
	MaxConcurrent int                `yaml:"max_concurrent"`
}

// ParseDefinition decodes and validates a single SOP definition from YAML
// bytes. location is recorded on the resulting Definition for operator
// diagnostics (e.g. "which file defines this SOP").
func ParseDefinition(data []byte, location string) (*sop.Definition, error) {
	var fd fileDefinition
	if err := yaml.Unmarshal(data, &fd); err != nil {
		return nil, fmt.Errorf("catalog: parse %s: %w", location, err)
	}

	def := &sop.Definition{
		Name:          fd.Name,
		Description:   fd.Description,
		Version:       fd.Version,
		Priority:      fd.Priority,
		ExecutionMode: fd.ExecutionMode,
		Triggers:      fd.Triggers,
		Steps:         fd.Steps,
		CooldownSecs:  fd.CooldownSecs,
		MaxConcurrent: fd.MaxConcurrent,
		Location:      location,
	}
	applyDefaults(def)

	if err := validate(def); err != nil {
		return nil, fmt.Errorf("catalog: invalid definition in %s: %w", location, err)
	}
	return def, nil
}

// applyDefaults fills in fields a hand-written SOP file commonly omits.
func applyDefaults(def *sop.Definition) {
	if def.Priority == "" {
		def.Priority = sop.PriorityNormal
	}
	if def.ExecutionMode == "" {
		def.ExecutionMode = sop.ModeAuto
	}
	if def.Version == "" {
		def.Version = "1"
	}
	for i := range def.Steps {
		if def.Steps[i].Number == 0 {
			def.Steps[i].Number = i + 1
		}
	}
}

// validate enforces the structural invariants the engine trusts without
// re-checking: a non-empty name, dense 1..n step numbering, and a known
// execution mode.
func validate(def *sop.Definition) error {
	if def.Name == "" {
		return &zcerrors.ParamInvalidError{Field: "name", Reason: "must not be empty"}
	}
	if def.ExecutionMode != sop.ModeAuto && def.ExecutionMode != sop.ModeSupervised {
		return &zcerrors.ParamInvalidError{Field: "execution_mode", Reason: fmt.Sprintf("unknown mode %q", def.ExecutionMode)}
	}
	if def.CooldownSecs < 0 {
		return &zcerrors.ParamInvalidError{Field: "cooldown_secs", Reason: "must not be negative"}
	}
	if def.MaxConcurrent < 0 {
		return &zcerrors.ParamInvalidError{Field: "max_concurrent", Reason: "must not be negative"}
	}

	seen := make(map[int]bool, len(def.Steps))
	for _, step := range def.Steps {
		if step.Number < 1 || step.Number > len(def.Steps) {
			return &zcerrors.ParamInvalidError{
				Field:  "steps",
				Reason: fmt.Sprintf("step number %d is out of the dense 1..%d range", step.Number, len(def.Steps)),
			}
		}
		if seen[step.Number] {
			return &zcerrors.ParamInvalidError{Field: "steps", Reason: fmt.Sprintf("duplicate step number %d", step.Number)}
		}
		seen[step.Number] = true
		if step.Title == "" {
			return &zcerrors.ParamInvalidError{Field: "steps", Reason: fmt.Sprintf("step %d has no title", step.Number)}
		}
	}
	return nil
}

// LoadDir reads every "*.yaml"/"*.yml" file directly under dir, parses and
// validates each as an SOP definition, and rejects duplicate SOP names
// across the directory. Definitions are returned sorted by name for
// deterministic catalogue ordering.
func LoadDir(dir string) ([]*sop.Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("catalog: read dir %s: %w", dir, err)
	}

	byName := make(map[string]*sop.Definition)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("catalog: read %s: %w", path, err)
		}

		def, err := ParseDefinition(data, path)
		if err != nil {
			return nil, err
		}
		if existing, dup := byName[def.Name]; dup {
			return nil, &zcerrors.ParamInvalidError{
				Field:  "name",
				Reason: fmt.Sprintf("%q defined in both %s and %s", def.Name, existing.Location, path),
			}
		}
		byName[def.Name] = def
	}

	out := make([]*sop.Definition, 0, len(byName))
	for _, def := range byName {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
