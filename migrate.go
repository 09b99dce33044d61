package main

import (
	"context"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-storefront/internal/config"
	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/catalog"
	"github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/sqlstore"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

// demoCatalog is inserted by "migrate --seed".
var demoCatalog = []catalog.Product{
	{Name: "Enamel Mug", Price: decimal.RequireFromString("12.90"), StockQuantity: 40, Image: "/static/mug.jpg", CategoryID: 1},
	{Name: "Logo Tee", Price: decimal.RequireFromString("24.00"), StockQuantity: 25, Image: "/static/tee.jpg", CategoryID: 2},
	{Name: "Canvas Tote", Price: decimal.RequireFromString("18.50"), StockQuantity: 10, Image: "/static/tote.jpg", CategoryID: 2},
	{Name: "Sticker Pack", Price: decimal.RequireFromString("4.20"), StockQuantity: 3, Image: "/static/stickers.jpg", CategoryID: 3},
}

func newMigrateCmd(flags *rootFlags) *cobra.Command {
	var seed bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(flags.configPath, flags.envFiles...)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			store, err := sqlstore.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, cfg.Database.MaxOpenConns)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Migrate(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema up to date (%s)\n", cfg.Database.Driver)
			if !seed {
				return nil
			}
			for i := range demoCatalog {
				p := demoCatalog[i]
				if err := store.InsertProduct(ctx, &p); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "seeded product %d %s\n", p.ID, p.Name)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&seed, "seed", false, "insert a demo catalog")
	return cmd
}
