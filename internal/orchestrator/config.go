package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sherndon-labs/adventurecore/internal/dag"
)

// ConfigSource resolves an adventure config that is either a literal
// *dag.Config/dag.Config value or a name looked up relative to Dir (spec
// §4.I: "an adventure config is either a literal object or a name resolved
// relative to a configured directory").
type ConfigSource struct {
	Dir string
}

// Resolve turns configOrName into a *dag.Config. Accepted literal forms are
// *dag.Config and dag.Config; any string is treated as a filename stem
// under Dir with a ".json" extension appended if missing.
func (cs ConfigSource) Resolve(configOrName any) (*dag.Config, error) {
	switch v := configOrName.(type) {
	case *dag.Config:
		return v.Clone(), nil
	case dag.Config:
		return v.Clone(), nil
	case string:
		return cs.loadNamed(v)
	default:
		return nil, fmt.Errorf("orchestrator: unsupported config value of type %T", configOrName)
	}
}

func (cs ConfigSource) loadNamed(name string) (*dag.Config, error) {
	if cs.Dir == "" {
		return nil, fmt.Errorf("orchestrator: no config directory configured, cannot resolve named config %q", name)
	}
	filename := name
	if filepath.Ext(filename) == "" {
		filename += ".json"
	}
	path := filepath.Join(cs.Dir, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: loading config %q: %w", name, err)
	}

	var cfg dag.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("orchestrator: parsing config %q: %w", name, err)
	}

	if cfg.ID == "" {
		cfg.ID = stemOf(filename)
	}
	return &cfg, nil
}

func stemOf(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
