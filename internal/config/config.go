// Package config loads the project-scoped settings file (aidef.hcl) into
// a model consumed by the app. Invocation-scoped knobs come from flags
// and override whatever the file says; a missing file just yields the
// defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

// DefaultFileName is where Load looks when no --config flag is given.
const DefaultFileName = "aidef.hcl"

// Model is the resolved configuration.
type Model struct {
	Provider ProviderConfig
	Limits   LimitsConfig
	Output   OutputConfig
	TreeRoot string
}

// ProviderConfig configures the HTTP provider collaborator.
type ProviderConfig struct {
	Endpoint string
	Timeout  time.Duration
	Retries  int
	Headers  map[string]string
}

// LimitsConfig holds the compilation ceilings.
type LimitsConfig struct {
	Parallelism int
	MaxNodes    int
	MaxCalls    int
}

// OutputConfig configures generated-file writing.
type OutputConfig struct {
	Root       string
	Provenance bool
}

// Default returns the configuration used when no file is present.
func Default() *Model {
	return &Model{
		Provider: ProviderConfig{
			Endpoint: "http://localhost:7077",
			Timeout:  120 * time.Second,
			Retries:  2,
		},
		Limits: LimitsConfig{
			Parallelism: 4,
			MaxNodes:    500,
			MaxCalls:    200,
		},
		Output: OutputConfig{
			Root:       "generated",
			Provenance: true,
		},
		TreeRoot: ".aidef/tree",
	}
}

// fileSchema mirrors the HCL file layout.
type fileSchema struct {
	Provider *providerBlock `hcl:"provider,block"`
	Limits   *limitsBlock   `hcl:"limits,block"`
	Output   *outputBlock   `hcl:"output,block"`
	Tree     *string        `hcl:"tree,optional"`
}

type providerBlock struct {
	Endpoint   string    `hcl:"endpoint"`
	TimeoutSec *int      `hcl:"timeout_sec,optional"`
	Retries    *int      `hcl:"retries,optional"`
	Headers    cty.Value `hcl:"headers,optional"`
}

type limitsBlock struct {
	Parallelism *int `hcl:"parallelism,optional"`
	MaxNodes    *int `hcl:"max_nodes,optional"`
	MaxCalls    *int `hcl:"max_calls,optional"`
}

type outputBlock struct {
	Root       *string `hcl:"root,optional"`
	Provenance *bool   `hcl:"provenance_header,optional"`
}

// Load reads path and merges it over the defaults. A missing file is not
// an error unless the path was explicitly requested.
func Load(path string, explicit bool) (*Model, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}
	return Parse(data, path)
}

// Parse decodes HCL config bytes over the defaults.
func Parse(src []byte, filename string) (*Model, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse config %q: %w", filename, diags)
	}

	var schema fileSchema
	if diags := gohcl.DecodeBody(file.Body, nil, &schema); diags.HasErrors() {
		return nil, fmt.Errorf("decode config %q: %w", filename, diags)
	}

	model := Default()
	if schema.Tree != nil {
		model.TreeRoot = *schema.Tree
	}
	if b := schema.Provider; b != nil {
		model.Provider.Endpoint = b.Endpoint
		if b.TimeoutSec != nil {
			model.Provider.Timeout = time.Duration(*b.TimeoutSec) * time.Second
		}
		if b.Retries != nil {
			model.Provider.Retries = *b.Retries
		}
		headers, err := decodeHeaders(b.Headers)
		if err != nil {
			return nil, fmt.Errorf("decode config %q: provider.headers: %w", filename, err)
		}
		model.Provider.Headers = headers
	}
	if b := schema.Limits; b != nil {
		if b.Parallelism != nil {
			model.Limits.Parallelism = *b.Parallelism
		}
		if b.MaxNodes != nil {
			model.Limits.MaxNodes = *b.MaxNodes
		}
		if b.MaxCalls != nil {
			model.Limits.MaxCalls = *b.MaxCalls
		}
	}
	if b := schema.Output; b != nil {
		if b.Root != nil {
			model.Output.Root = *b.Root
		}
		if b.Provenance != nil {
			model.Output.Provenance = *b.Provenance
		}
	}

	if err := model.validate(); err != nil {
		return nil, fmt.Errorf("config %q: %w", filename, err)
	}
	return model, nil
}

// decodeHeaders converts the optional `headers = { … }` attribute into a
// string map.
func decodeHeaders(v cty.Value) (map[string]string, error) {
	if v.IsNull() || !v.IsKnown() {
		return nil, nil
	}
	if !v.Type().IsObjectType() && !v.Type().IsMapType() {
		return nil, fmt.Errorf("expected a map of strings, got %s", v.Type().FriendlyName())
	}
	headers := make(map[string]string)
	for key, val := range v.AsValueMap() {
		if val.Type() != cty.String {
			return nil, fmt.Errorf("header %q: expected string, got %s", key, val.Type().FriendlyName())
		}
		headers[key] = val.AsString()
	}
	return headers, nil
}

func (m *Model) validate() error {
	if m.Provider.Endpoint == "" {
		return errors.New("provider endpoint must not be empty")
	}
	if m.Limits.Parallelism < 1 {
		return errors.New("limits.parallelism must be at least 1")
	}
	if m.Limits.MaxNodes < 1 || m.Limits.MaxCalls < 1 {
		return errors.New("limits.max_nodes and limits.max_calls must be at least 1")
	}
	return nil
}
