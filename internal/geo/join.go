package geo

import (
	"github.com/rotisserie/eris"

	"github.com/redecaete/matupiri/internal/analytics"
	"github.com/redecaete/matupiri/internal/textnorm"
)

// ErrNoCoordinates reports that neither reference table carries coordinate
// columns. Callers render a "no map available" state instead of failing.
var ErrNoCoordinates = eris.New("geo: reference tables carry no coordinates")

type coord struct {
	lat, lon float64
}

// Resolver joins heat cells to coordinates. Municipality rows are keyed by
// normalized name plus normalized UF code; UF rows by normalized code alone.
type Resolver struct {
	byMunicipality map[string]coord
	byUF           map[string]coord
}

const joinSep = "||"

func municipalityKey(name, uf string) string {
	return textnorm.Normalize(name) + joinSep + textnorm.Normalize(uf)
}

// NewResolver indexes the reference tables. Rows without coordinates are
// skipped; they can never satisfy a join.
func NewResolver(ref *Reference) *Resolver {
	r := &Resolver{
		byMunicipality: make(map[string]coord),
		byUF:           make(map[string]coord),
	}
	for _, m := range ref.Municipalities {
		if m.Lat == nil || m.Lon == nil {
			continue
		}
		r.byMunicipality[municipalityKey(m.Name, m.UF)] = coord{lat: *m.Lat, lon: *m.Lon}
	}
	for _, u := range ref.UFs {
		if u.Lat == nil || u.Lon == nil {
			continue
		}
		r.byUF[textnorm.Normalize(u.Code)] = coord{lat: *u.Lat, lon: *u.Lon}
	}
	return r
}

// HasCoordinates reports whether any reference row carried coordinates.
func (r *Resolver) HasCoordinates() bool {
	return len(r.byMunicipality) > 0 || len(r.byUF) > 0
}

// Resolve attaches coordinates to heat cells, preferring municipality-level
// matches and falling back to the UF centroid. Cells that match neither table
// are dropped. Returns ErrNoCoordinates when no reference row has coordinates
// at all.
func (r *Resolver) Resolve(cells []analytics.HeatCell) ([]analytics.HeatCell, error) {
	if !r.HasCoordinates() {
		return nil, ErrNoCoordinates
	}

	out := make([]analytics.HeatCell, 0, len(cells))
	for _, cell := range cells {
		c, ok := r.byMunicipality[municipalityKey(cell.Municipio, cell.UF)]
		if !ok {
			c, ok = r.byUF[textnorm.Normalize(cell.UF)]
		}
		if !ok {
			continue
		}
		lat, lon := c.lat, c.lon
		cell.Lat, cell.Lon = &lat, &lon
		out = append(out, cell)
	}
	return out, nil
}
