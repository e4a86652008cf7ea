package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/redecaete/matupiri/internal/catalog"
	"github.com/redecaete/matupiri/internal/rules"
	"github.com/redecaete/matupiri/internal/textnorm"
)

var importCheckCoverage bool

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Validate the catalogue, keyword map, and profile schema files",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("import"); err != nil {
			return err
		}

		cat, err := catalog.LoadXLSX(cfg.Catalog.XLSXPath)
		if err != nil {
			return err
		}
		fmt.Printf("Catalogue: %d policies (%s)\n", cat.Len(), cfg.Catalog.XLSXPath)
		if levels := cat.Levels(); len(levels) > 0 {
			fmt.Printf("Levels:    %s\n", strings.Join(levels, ", "))
		}

		ruleMap, err := rules.LoadKeywordMap(cfg.Catalog.KeywordMapPath)
		if err != nil {
			return err
		}
		fmt.Printf("Rules:     %d keywords (%s)\n", ruleMap.Len(), cfg.Catalog.KeywordMapPath)

		schema, err := rules.LoadProfileSchema(cfg.Catalog.SchemaPath)
		if err != nil {
			return err
		}
		fmt.Printf("Schema:    %d profile fields (%s)\n", len(schema), cfg.Catalog.SchemaPath)

		if importCheckCoverage {
			reportCoverage(cat, ruleMap)
		}
		return nil
	},
}

// reportCoverage lists keywords that never occur in any policy's requirement
// text. Those rules can never fire and usually indicate a typo in the map.
func reportCoverage(cat *catalog.Catalog, ruleMap *rules.Map) {
	texts := cat.AccessTexts()
	normalized := make([]string, len(texts))
	for i, t := range texts {
		normalized[i] = textnorm.Normalize(t)
	}

	var unused []string
	for _, r := range ruleMap.Rules() {
		found := false
		for _, t := range normalized {
			if strings.Contains(t, r.Key) {
				found = true
				break
			}
		}
		if !found {
			unused = append(unused, r.Key)
		}
	}

	if len(unused) == 0 {
		fmt.Println("Coverage:  every keyword occurs in at least one policy")
		return
	}
	fmt.Printf("Coverage:  %d keyword(s) never match any policy:\n", len(unused))
	for _, k := range unused {
		fmt.Printf("  - %s\n", k)
	}
}

func init() {
	importCmd.Flags().BoolVar(&importCheckCoverage, "check-coverage", false, "report keywords that match no policy text")
	rootCmd.AddCommand(importCmd)
}
