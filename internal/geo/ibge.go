package geo

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	ibgeUFsURL            = "https://servicodados.ibge.gov.br/api/v1/localidades/estados?orderBy=nome"
	ibgeMunicipalitiesURL = "https://servicodados.ibge.gov.br/api/v1/localidades/municipios?orderBy=nome"
)

// ufsFileName and municipalitiesFileName are the reference table files the
// rest of the system loads.
const (
	ufsFileName            = "ufs.csv"
	municipalitiesFileName = "municipios.csv"
)

// IBGEFetcher downloads the localities reference tables from the IBGE API.
type IBGEFetcher struct {
	client     *http.Client
	limiter    *rate.Limiter
	maxRetries int
	retryDelay time.Duration
	log        *zap.Logger
}

// NewIBGEFetcher creates a fetcher with a shared rate limiter across both
// endpoint calls.
func NewIBGEFetcher(client *http.Client) *IBGEFetcher {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &IBGEFetcher{
		client:     client,
		limiter:    rate.NewLimiter(2, 2),
		maxRetries: 3,
		retryDelay: 2 * time.Second,
		log:        zap.L().With(zap.String("component", "geo.ibge")),
	}
}

type ibgeUF struct {
	ID    int    `json:"id"`
	Sigla string `json:"sigla"`
	Nome  string `json:"nome"`
}

type ibgeMunicipality struct {
	ID           int    `json:"id"`
	Nome         string `json:"nome"`
	Microrregiao struct {
		Mesorregiao struct {
			UF struct {
				Sigla string `json:"sigla"`
			} `json:"UF"`
		} `json:"mesorregiao"`
	} `json:"microrregiao"`
}

// Rows written in the exact layout the loaders expect; coordinate columns
// come later from the centroid merge.
type ufCSVRow struct {
	UF       string `csv:"uf"`
	Name     string `csv:"uf_nome"`
	IBGECode int    `csv:"ibge_uf"`
}

type municipalityCSVRow struct {
	IBGECode int    `csv:"ibge_mun"`
	Name     string `csv:"nome_mun"`
	UF       string `csv:"uf"`
}

// Fetch downloads both locality tables and writes ufs.csv and municipios.csv
// into outDir.
func (f *IBGEFetcher) Fetch(ctx context.Context, outDir string) error {
	var ufs []ibgeUF
	if err := f.getJSON(ctx, ibgeUFsURL, &ufs); err != nil {
		return eris.Wrap(err, "geo: fetch ufs")
	}
	ufRows := make([]ufCSVRow, 0, len(ufs))
	for _, u := range ufs {
		ufRows = append(ufRows, ufCSVRow{UF: u.Sigla, Name: u.Nome, IBGECode: u.ID})
	}
	if err := writeCSV(filepath.Join(outDir, ufsFileName), ufRows); err != nil {
		return err
	}
	f.log.Info("ufs reference written", zap.Int("rows", len(ufRows)))

	var muns []ibgeMunicipality
	if err := f.getJSON(ctx, ibgeMunicipalitiesURL, &muns); err != nil {
		return eris.Wrap(err, "geo: fetch municipios")
	}
	munRows := make([]municipalityCSVRow, 0, len(muns))
	for _, m := range muns {
		munRows = append(munRows, municipalityCSVRow{
			IBGECode: m.ID,
			Name:     m.Nome,
			UF:       m.Microrregiao.Mesorregiao.UF.Sigla,
		})
	}
	if err := writeCSV(filepath.Join(outDir, municipalitiesFileName), munRows); err != nil {
		return err
	}
	f.log.Info("municipios reference written", zap.Int("rows", len(munRows)))

	return nil
}

// getJSON fetches a URL with rate limiting and linear-backoff retries.
func (f *IBGEFetcher) getJSON(ctx context.Context, url string, dest any) error {
	var lastErr error
	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * f.retryDelay
			f.log.Warn("retrying IBGE request",
				zap.String("url", url),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return eris.Wrap(ctx.Err(), "geo: context cancelled")
			}
		}

		if err := f.limiter.Wait(ctx); err != nil {
			return eris.Wrap(err, "geo: rate limiter")
		}

		lastErr = f.tryGetJSON(ctx, url, dest)
		if lastErr == nil {
			return nil
		}
	}
	return lastErr
}

func (f *IBGEFetcher) tryGetJSON(ctx context.Context, url string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return eris.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return eris.Errorf("IBGE returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return eris.Wrap(err, "decode response")
	}
	return nil
}

func writeCSV(path string, rows any) error {
	data, err := csvutil.Marshal(rows)
	if err != nil {
		return eris.Wrapf(err, "geo: marshal %s", filepath.Base(path))
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "geo: write %s", filepath.Base(path))
	}
	return nil
}
