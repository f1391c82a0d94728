// Package workers inspects and controls the background worker processes
// declared in the workers file.
package workers

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Worker is one controllable process. Unit is the systemd unit name and
// Pattern is matched against full command lines (ps aux, pkill -f).
type Worker struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Unit        string `yaml:"unit" json:"unit"`
	Pattern     string `yaml:"pattern" json:"pattern"`
}

type file struct {
	Workers []Worker `yaml:"workers"`
}

var (
	validName = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)
	validUnit = regexp.MustCompile(`^[A-Za-z0-9@_.:-]+$`)
)

// LoadFile reads a YAML workers file. A missing path yields no workers.
func LoadFile(path string) ([]Worker, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workers file: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) ([]Worker, error) {
	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse workers file: %w", err)
	}
	seen := map[string]bool{}
	for i, w := range f.Workers {
		w.Name = strings.TrimSpace(w.Name)
		w.Unit = strings.TrimSpace(w.Unit)
		w.Pattern = strings.TrimSpace(w.Pattern)
		if !validName.MatchString(w.Name) {
			return nil, fmt.Errorf("worker %d: invalid name %q", i, w.Name)
		}
		if seen[w.Name] {
			return nil, fmt.Errorf("worker %q declared twice", w.Name)
		}
		seen[w.Name] = true
		if !validUnit.MatchString(w.Unit) || strings.HasPrefix(w.Unit, "-") {
			return nil, fmt.Errorf("worker %q: invalid unit %q", w.Name, w.Unit)
		}
		if w.Pattern == "" || strings.HasPrefix(w.Pattern, "-") {
			return nil, fmt.Errorf("worker %q: invalid pattern", w.Name)
		}
		f.Workers[i] = w
	}
	return f.Workers, nil
}
