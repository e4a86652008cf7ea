package geo

import (
	"context"
	"os"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"
)

// LoadReference reads both reference tables, concurrently. Unknown CSV
// columns are ignored, so exports with or without coordinate columns both
// load.
func LoadReference(ctx context.Context, ufPath, munPath string) (*Reference, error) {
	var ref Reference

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		data, err := os.ReadFile(ufPath)
		if err != nil {
			return eris.Wrap(err, "geo: read ufs csv")
		}
		if err := csvutil.Unmarshal(data, &ref.UFs); err != nil {
			return eris.Wrap(err, "geo: parse ufs csv")
		}
		return nil
	})
	g.Go(func() error {
		data, err := os.ReadFile(munPath)
		if err != nil {
			return eris.Wrap(err, "geo: read municipios csv")
		}
		if err := csvutil.Unmarshal(data, &ref.Municipalities); err != nil {
			return eris.Wrap(err, "geo: parse municipios csv")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &ref, nil
}
