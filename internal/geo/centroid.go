package geo

import (
	"os"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"
)

// MunicipalityCentroids reads an IBGE municipality shapefile and computes the
// centroid of each polygon, keyed by IBGE code (the CD_MUN attribute).
func MunicipalityCentroids(shpPath string) (map[int]coord, error) {
	log := zap.L().With(zap.String("component", "geo.centroid"))

	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrap(err, "geo: open shapefile")
	}
	defer func() { _ = reader.Close() }()

	codeIdx := fieldIndex(reader, "CD_MUN")
	if codeIdx < 0 {
		return nil, eris.New("geo: shapefile field CD_MUN not found")
	}

	centroids := make(map[int]coord)
	for reader.Next() {
		_, shape := reader.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok {
			continue
		}

		code, err := strconv.Atoi(strings.TrimSpace(reader.Attribute(codeIdx)))
		if err != nil {
			continue
		}

		mp := polygonToMultiPolygon(poly)
		if mp == nil {
			continue
		}
		c, err := xy.Centroid(mp)
		if err != nil {
			log.Debug("skipping centroid", zap.Int("ibge_mun", code), zap.Error(err))
			continue
		}
		centroids[code] = coord{lat: c.Y(), lon: c.X()}
	}

	log.Info("centroids computed", zap.Int("municipalities", len(centroids)))
	return centroids, nil
}

// MergeCentroids rewrites municipios.csv with lat/lon columns filled from the
// shapefile centroids. Rows without a matching polygon keep empty coordinates.
func MergeCentroids(shpPath, munCSVPath string) error {
	centroids, err := MunicipalityCentroids(shpPath)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(munCSVPath)
	if err != nil {
		return eris.Wrap(err, "geo: read municipios csv")
	}
	var rows []Municipality
	if err := csvutil.Unmarshal(data, &rows); err != nil {
		return eris.Wrap(err, "geo: parse municipios csv")
	}

	var matched int
	for i := range rows {
		c, ok := centroids[rows[i].IBGECode]
		if !ok {
			continue
		}
		lat, lon := c.lat, c.lon
		rows[i].Lat, rows[i].Lon = &lat, &lon
		matched++
	}

	zap.L().Info("centroids merged",
		zap.String("component", "geo.centroid"),
		zap.Int("matched", matched),
		zap.Int("rows", len(rows)),
	)
	return writeCSV(munCSVPath, rows)
}

// fieldIndex returns the index of a named field in the shapefile, or -1 if not found.
func fieldIndex(reader *shp.Reader, name string) int {
	for i, f := range reader.Fields() {
		if strings.EqualFold(strings.TrimRight(f.String(), "\x00"), name) {
			return i
		}
	}
	return -1
}

// polygonToMultiPolygon converts a shapefile Polygon to a geom.MultiPolygon.
func polygonToMultiPolygon(p *shp.Polygon) *geom.MultiPolygon {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY).SetSRID(4326)

	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		var end int32
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		} else {
			end = int32(len(p.Points))
		}

		flat := make([]float64, 0, (end-start)*2)
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}

		ring := geom.NewLinearRingFlat(geom.XY, flat)
		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(ring); err != nil {
			continue
		}
		if err := mp.Push(poly); err != nil {
			continue
		}
	}

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}
