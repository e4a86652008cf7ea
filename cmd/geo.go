package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/redecaete/matupiri/internal/geo"
)

var geoCmd = &cobra.Command{
	Use:   "geo",
	Short: "Manage the IBGE geographic reference tables",
}

var geoFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download UF and municipality tables from the IBGE localities API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("geo"); err != nil {
			return err
		}
		if err := os.MkdirAll(cfg.Geo.Dir, 0o755); err != nil {
			return err
		}

		fetcher := geo.NewIBGEFetcher(nil)
		if err := fetcher.Fetch(cmd.Context(), cfg.Geo.Dir); err != nil {
			return err
		}
		fmt.Printf("Reference tables written to %s\n", cfg.Geo.Dir)
		return nil
	},
}

var geoShapefile string

var geoCentroidsCmd = &cobra.Command{
	Use:   "centroids",
	Short: "Merge municipality centroids from an IBGE shapefile into municipios.csv",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("geo"); err != nil {
			return err
		}

		munCSV := filepath.Join(cfg.Geo.Dir, cfg.Geo.MunicipiosFile)
		if err := geo.MergeCentroids(geoShapefile, munCSV); err != nil {
			return err
		}
		fmt.Printf("Centroids merged into %s\n", munCSV)
		return nil
	},
}

func init() {
	geoCentroidsCmd.Flags().StringVar(&geoShapefile, "shapefile", "", "path to the IBGE municipality shapefile (.shp)")
	geoCentroidsCmd.MarkFlagRequired("shapefile") //nolint:errcheck

	geoCmd.AddCommand(geoFetchCmd)
	geoCmd.AddCommand(geoCentroidsCmd)
	rootCmd.AddCommand(geoCmd)
}
