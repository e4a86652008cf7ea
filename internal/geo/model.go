// Package geo holds the IBGE reference tables and resolves municipality and
// state keys to coordinates for the observatory heat map.
package geo

// UF is one federative unit row from ufs.csv. Lat/Lon are optional; older
// exports of the reference table carry no coordinate columns.
type UF struct {
	Code     string   `csv:"uf"`
	Name     string   `csv:"uf_nome"`
	IBGECode int      `csv:"ibge_uf"`
	Lat      *float64 `csv:"lat,omitempty"`
	Lon      *float64 `csv:"lon,omitempty"`
}

// Municipality is one row from municipios.csv.
type Municipality struct {
	IBGECode int      `csv:"ibge_mun"`
	Name     string   `csv:"nome_mun"`
	UF       string   `csv:"uf"`
	Lat      *float64 `csv:"lat,omitempty"`
	Lon      *float64 `csv:"lon,omitempty"`
}

// Reference bundles both tables as loaded at process start.
type Reference struct {
	UFs            []UF
	Municipalities []Municipality
}
