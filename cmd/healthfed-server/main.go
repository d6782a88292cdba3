package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/healthfed/healthfed/internal/config"
	"github.com/healthfed/healthfed/internal/platform/auth"
	"github.com/healthfed/healthfed/internal/platform/db"
	"github.com/healthfed/healthfed/internal/platform/graph"
	"github.com/healthfed/healthfed/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "healthfed-server",
		Short: "Federated clinical and insurance API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(graphCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg != nil && cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	return db.NewPool(ctx, db.PoolConfig{
		URL:            cfg.DatabaseURL,
		MaxConns:       cfg.DBMaxConns,
		MinConns:       cfg.DBMinConns,
		ConnectTimeout: cfg.StoreTimeout,
	})
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run relational schema migrations",
	}

	// migrate up
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, migrations.FS).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	// migrate status
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrations.FS).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	})

	return cmd
}

func graphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Manage the insurance graph store",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create the graph uniqueness constraints",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			ctx := context.Background()
			driver, err := graph.NewDriver(ctx, graph.DriverConfig{
				URI:            cfg.Neo4jURI,
				Username:       cfg.Neo4jUsername,
				Password:       cfg.Neo4jPassword,
				MaxPoolSize:    cfg.Neo4jMaxPool,
				ConnectTimeout: cfg.StoreTimeout,
			})
			if err != nil {
				return err
			}
			defer driver.Close(ctx)

			store := graph.NewStore(driver, graph.StoreOptions{
				Database: cfg.Neo4jDatabase,
				Timeout:  cfg.StoreTimeout,
				Logger:   logger,
			})
			if err := store.EnsureSchema(ctx); err != nil {
				return err
			}
			fmt.Println("Graph constraints are in place.")
			return nil
		},
	})

	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed bearer token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, _ := cmd.Flags().GetString("subject")
			roles, _ := cmd.Flags().GetStringSlice("role")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			token, err := issueToken(cfg, subject, roles, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().String("subject", "", "Token subject (user id)")
	cmd.Flags().StringSlice("role", nil, "Role to grant (hospital, insurance, admin); repeatable")
	cmd.Flags().Duration("ttl", time.Hour, "Token lifetime")
	return cmd
}

func issueToken(cfg *config.Config, subject string, roles []string, ttl time.Duration) (string, error) {
	if cfg.AuthSigningKey == "" {
		return "", fmt.Errorf("AUTH_SIGNING_KEY is not set")
	}
	if subject == "" {
		return "", fmt.Errorf("--subject is required")
	}
	if len(roles) == 0 {
		return "", fmt.Errorf("at least one --role is required")
	}
	for _, r := range roles {
		if !auth.IsKnownRole(r) {
			return "", fmt.Errorf("unknown role %q (want one of %s)", r,
				strings.Join([]string{auth.RoleHospital, auth.RoleInsurance, auth.RoleAdmin}, ", "))
		}
	}
	return auth.IssueToken([]byte(cfg.AuthSigningKey), cfg.AuthIssuer, subject, roles, ttl)
}
