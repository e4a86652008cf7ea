package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/redecaete/matupiri/internal/analytics"
)

var (
	obsMetric    string
	obsSince     string
	obsUntil     string
	obsUF        string
	obsMunicipio string
	obsGender    string
	obsTopN      int
	obsCSVPath   string
)

var observatoryCmd = &cobra.Command{
	Use:   "observatory",
	Short: "Print one observatory rollup from the event log",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("observatory"); err != nil {
			return err
		}

		metric, ok := analytics.ParseMetric(obsMetric)
		if !ok {
			return eris.Errorf("unknown metric %q", obsMetric)
		}

		filter := analytics.Filter{UF: obsUF, Municipio: obsMunicipio, Gender: obsGender}
		var err error
		if filter.Since, err = parseFlagTime(obsSince); err != nil {
			return eris.Wrap(err, "parse --since")
		}
		if filter.Until, err = parseFlagTime(obsUntil); err != nil {
			return eris.Wrap(err, "parse --until")
		}

		ctx := cmd.Context()
		events, err := openEvents(ctx, cfg)
		if err != nil {
			return err
		}
		defer events.Close() //nolint:errcheck

		all, err := events.Query(ctx, filter)
		if err != nil {
			return err
		}

		topN := obsTopN
		if topN == 0 {
			topN = cfg.Observatory.TopN
		}
		result := analytics.Aggregate(all, metric, topN, filter.GeoFiltered())

		if obsCSVPath != "" {
			data, err := csvutil.Marshal(result.Ranking)
			if err != nil {
				return eris.Wrap(err, "marshal ranking csv")
			}
			if err := os.WriteFile(obsCSVPath, data, 0o644); err != nil {
				return eris.Wrap(err, "write ranking csv")
			}
			fmt.Printf("Saved %d rows to %s\n", len(result.Ranking), obsCSVPath)
			return nil
		}

		printResult(result)
		return nil
	},
}

func parseFlagTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

func printResult(result analytics.Result) {
	fmt.Printf("Metric: %s (%d events counted as %s)\n", result.Metric, totalCount(result), result.CountLabel)
	if len(result.Ranking) == 0 {
		fmt.Println("No events match the filter.")
		return
	}

	for i, row := range result.Ranking {
		var parts []string
		if row.UF != "" {
			parts = append(parts, row.UF)
		}
		if row.Municipio != "" {
			parts = append(parts, row.Municipio)
		}
		if row.Gender != "" {
			parts = append(parts, row.Gender)
		}
		if row.Policy != "" {
			parts = append(parts, row.Policy)
		}
		if row.Item != "" {
			parts = append(parts, row.Item)
		}
		fmt.Printf("%3d. %-60s %6d\n", i+1, strings.Join(parts, " / "), row.Count)
	}

	if result.HeatFromSearches {
		fmt.Printf("\nHeat source: %s (fallback, no %s events in range)\n", result.HeatLabel, result.Metric)
	}
}

func totalCount(result analytics.Result) int {
	var total int
	for _, row := range result.Ranking {
		total += row.Count
	}
	return total
}

func init() {
	observatoryCmd.Flags().StringVar(&obsMetric, "metric", "views", "metric: views, eligible, req_missing, req_present, req_by_gender")
	observatoryCmd.Flags().StringVar(&obsSince, "since", "", "RFC 3339 lower bound")
	observatoryCmd.Flags().StringVar(&obsUntil, "until", "", "RFC 3339 upper bound")
	observatoryCmd.Flags().StringVar(&obsUF, "uf", "", "filter by UF code")
	observatoryCmd.Flags().StringVar(&obsMunicipio, "municipio", "", "filter by municipality name")
	observatoryCmd.Flags().StringVar(&obsGender, "gender", "", "filter by gender")
	observatoryCmd.Flags().IntVar(&obsTopN, "top", 0, "max ranking rows (default from config)")
	observatoryCmd.Flags().StringVar(&obsCSVPath, "csv", "", "write the ranking to a CSV file instead of stdout")
	rootCmd.AddCommand(observatoryCmd)
}
