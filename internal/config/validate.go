package config

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Validate checks the fields required for a given run mode. Collects all
// problems into one error so the operator fixes them in a single pass.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			problems = append(problems, "store.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for the postgres driver")
		}
	default:
		problems = append(problems, "store.driver must be sqlite or postgres")
	}

	switch mode {
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			problems = append(problems, "server.port must be > 0 and <= 65535")
		}
		if c.Catalog.XLSXPath == "" {
			problems = append(problems, "catalog.xlsx_path is required")
		}
		if c.Catalog.KeywordMapPath == "" {
			problems = append(problems, "catalog.keyword_map_path is required")
		}
		if c.Accounts.Path == "" {
			problems = append(problems, "accounts.path is required")
		}
	case "import":
		if c.Catalog.XLSXPath == "" {
			problems = append(problems, "catalog.xlsx_path is required")
		}
	case "geo":
		if c.Geo.Dir == "" {
			problems = append(problems, "geo.dir is required")
		}
	case "observatory", "migrate":
		// store checks above are enough
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Observatory.TopN < 0 {
		problems = append(problems, "observatory.top_n must be >= 0")
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}
