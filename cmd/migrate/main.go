package main

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/saeid-a/MedLinkBack/internal/database"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		dbUrl string
		dir   string
	)

	open := func() (*migrate.Migrate, error) {
		if dbUrl == "" {
			return nil, errors.New("DB_URL environment variable is required")
		}
		if dir == "" {
			found, err := database.FindMigrations()
			if err != nil {
				return nil, err
			}
			dir = found
		}
		return database.NewMigrator(dir, dbUrl)
	}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply MedLinkBack schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return upCmd(open).RunE(cmd, args)
		},
	}

	cmd.PersistentFlags().StringVar(&dbUrl, "db", os.Getenv("DB_URL"), "Postgres connection URL")
	cmd.PersistentFlags().StringVar(&dir, "dir", "", "Migrations directory (searched for when empty)")

	cmd.AddCommand(upCmd(open), downCmd(open), versionCmd(open))
	return cmd
}

func upCmd(open func() (*migrate.Migrate, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := open()
			if err != nil {
				return err
			}
			defer m.Close()

			if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
				return err
			}
			log.Println("Migration up successful")
			return nil
		},
	}
}

func downCmd(open func() (*migrate.Migrate, error)) *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations (all of them unless --steps is set)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := open()
			if err != nil {
				return err
			}
			defer m.Close()

			if steps > 0 {
				err = m.Steps(-steps)
			} else {
				err = m.Down()
			}
			if err != nil && !errors.Is(err, migrate.ErrNoChange) {
				return err
			}
			log.Println("Migration down successful")
			return nil
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 0, "Number of migrations to roll back")
	return cmd
}

func versionCmd(open func() (*migrate.Migrate, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := open()
			if err != nil {
				return err
			}
			defer m.Close()

			version, dirty, err := m.Version()
			if errors.Is(err, migrate.ErrNilVersion) {
				fmt.Println("no migrations applied")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Printf("version %d (dirty=%v)\n", version, dirty)
			return nil
		},
	}
}
