package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/leadflow/internal/cli"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage the course catalog",
}

var catalogImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Insert or update courses from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cfg.Catalog.Path == "" {
			return fmt.Errorf("catalog.path is not set; an in-memory catalog cannot be imported into")
		}
		cfg.Catalog.Seed = ""
		repo, err := cli.OpenCatalog(cmd.Context(), cfg.Catalog, logger)
		if err != nil {
			return err
		}
		defer repo.Close()

		sum, err := repo.Import(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %s: %d inserted, %d updated\n", args[0], sum.Inserted, sum.Updated)
		return nil
	},
}

var catalogSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Insert or update the CRM's active courses",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		sum, err := cli.SyncCatalog(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Synced from crm: %d inserted, %d updated\n", sum.Inserted, sum.Updated)
		return nil
	},
}

func init() {
	catalogCmd.AddCommand(catalogImportCmd)
	catalogCmd.AddCommand(catalogSyncCmd)
	rootCmd.AddCommand(catalogCmd)
}
