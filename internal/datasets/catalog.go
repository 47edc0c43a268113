// Package datasets is the compiled-in list of datasets processed by a run.
package datasets

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/SorenAcevedo/uao-etl/internal/config"
	"github.com/SorenAcevedo/uao-etl/internal/dataprocessing"
	"github.com/SorenAcevedo/uao-etl/internal/operations"
)

// Dataset names
const (
	CoberturaMovil     = "cobertura_movil"
	InternetFijo       = "internet_fijo"
	RevistasIndexadas  = "revistas_indexadas"
	GrupoInvestigacion = "grupo_investigacion"
)

// OutputSuffix is appended to the dataset name to form the output base name
const OutputSuffix = "_procesado"

// Definition is a dataset as compiled in, before paths and overrides apply
type Definition struct {
	Name        string
	Description string
	// Clean builds the dataset specific transform; the year filter is added by Catalog
	Clean func() dataprocessing.Transform
}

// definitions are kept in submission order
var definitions = []Definition{
	{
		Name:        CoberturaMovil,
		Description: "mobile network coverage by municipality",
		Clean:       dataprocessing.CoberturaMovil,
	},
	{
		Name:        InternetFijo,
		Description: "fixed internet accesses by municipality",
		Clean:       dataprocessing.InternetFijo,
	},
	{
		Name:        RevistasIndexadas,
		Description: "indexed scientific journals",
		Clean:       dataprocessing.RevistasIndexadas,
	},
	{
		Name:        GrupoInvestigacion,
		Description: "recognised research groups",
		Clean:       dataprocessing.GrupoInvestigacion,
	},
}

// All returns every compiled-in definition in submission order
func All() []Definition {
	return append([]Definition(nil), definitions...)
}

// Get returns a definition by name.
// Returns false if not found.
func Get(name string) (Definition, bool) {
	for _, def := range definitions {
		if def.Name == name {
			return def, true
		}
	}
	return Definition{}, false
}

// Names returns the dataset names in submission order
func Names() []string {
	names := make([]string, len(definitions))
	for i, def := range definitions {
		names[i] = def.Name
	}
	return names
}

// Catalog builds the run configuration for every enabled dataset. Inputs
// default to <raw_dir>/<name>.csv and outputs to <name>_procesado; both can
// be overridden per dataset in the config file. Relative override inputs are
// taken from the raw directory.
func Catalog(cfg *config.Config, paths *config.Paths) ([]operations.DatasetConfig, error) {
	if err := checkOverrides(cfg.Datasets); err != nil {
		return nil, err
	}

	out := make([]operations.DatasetConfig, 0, len(definitions))
	for _, def := range definitions {
		override := cfg.Datasets[def.Name]
		if !override.IsEnabled() {
			continue
		}

		input := paths.GetRawPath(def.Name + ".csv")
		if override.Input != "" {
			input = override.Input
			if !filepath.IsAbs(input) {
				input = paths.GetRawPath(input)
			}
		}

		output := def.Name + OutputSuffix
		if override.Output != "" {
			output = override.Output
		}

		out = append(out, operations.DatasetConfig{
			Name:       def.Name,
			InputPath:  input,
			OutputName: output,
			Transforms: []dataprocessing.Transform{
				def.Clean(),
				dataprocessing.FilterByYearRange(cfg.Pipeline.YearMin, cfg.Pipeline.YearMax),
			},
		})
	}
	return out, nil
}

func checkOverrides(overrides map[string]config.DatasetOverride) error {
	var unknown []string
	for name := range overrides {
		if _, ok := Get(name); !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return fmt.Errorf("unknown datasets in config: %s (known: %s)",
		strings.Join(unknown, ", "), strings.Join(Names(), ", "))
}
