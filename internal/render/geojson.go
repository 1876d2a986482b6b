package render

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/paulmach/orb/geojson"

	"github.com/talgya/episim/internal/engine"
	"github.com/talgya/episim/internal/space"
)

// FeatureCollection converts a snapshot to GeoJSON: one point feature per agent
// carrying its index and state, plus optional zone polygons.
func FeatureCollection(snap *engine.Snapshot, zones map[string]space.Zone) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i, a := range snap.Agents {
		f := geojson.NewFeature(a.Position)
		f.Properties["index"] = i
		f.Properties["state"] = a.State.String()
		fc.Append(f)
	}
	names := make([]string, 0, len(zones))
	for name := range zones {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		f := geojson.NewFeature(zones[name].Bound.ToPolygon())
		f.Properties["zone"] = name
		fc.Append(f)
	}
	fc.ExtraMembers = geojson.Properties{"step": snap.Step}
	return fc
}

// GeoJSON writes each snapshot to step_NNNNN.geojson under Dir.
type GeoJSON struct {
	Dir   string
	Zones map[string]space.Zone
}

// NewGeoJSON creates the output directory.
func NewGeoJSON(dir string, zones map[string]space.Zone) (*GeoJSON, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create geojson dir: %w", err)
	}
	return &GeoJSON{Dir: dir, Zones: zones}, nil
}

func (g *GeoJSON) Render(snap *engine.Snapshot) error {
	data, err := FeatureCollection(snap, g.Zones).MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal step %d: %w", snap.Step, err)
	}
	path := filepath.Join(g.Dir, fmt.Sprintf("step_%05d.geojson", snap.Step))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Zones lists the zones of cfg that are switched on, keyed by policy name.
func Zones(cfg engine.Config) map[string]space.Zone {
	zones := make(map[string]space.Zone)
	if cfg.Localised {
		zones["localised"] = cfg.LocalisedZone
	}
	if cfg.Quarantine {
		zones["quarantine"] = cfg.QuarantineZone
	}
	return zones
}
