package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jacentio/lattice/kv"
	"github.com/jacentio/lattice/store"
)

var version = "dev"

var (
	backend kv.KV
	db      *store.DB

	// RootCmd is the base command
	RootCmd = &cobra.Command{
		Use:   "lattice",
		Short: "A schema-driven record store over ordered key-value backends",
		Long: `lattice stores records of schema-defined tables in an ordered
key-value backend. Every record is written under its primary key and
under one key per unique or indexed field, all in one atomic commit.`,
		SilenceUsage: true,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "lattice %s\n", version)
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	flags := RootCmd.PersistentFlags()
	flags.String("schema", "", wrapString("Path of the YAML schema file defining the tables"))
	flags.String("backend", "memory", wrapString("Key-value backend: memory, pebble, badger or dynamodb"))
	flags.String("path", "", wrapString("Data directory of the pebble or badger backend. Badger runs in memory when empty"))
	flags.Bool("no-sync", false, wrapString("Skip fsync on commit (pebble only)"))
	flags.String("dynamo-table", "", wrapString("DynamoDB table of the dynamodb backend"))
	flags.String("dynamo-endpoint", "", wrapString("Override the DynamoDB endpoint, e.g. for DynamoDB Local"))
	flags.Int("dynamo-shards", 1, wrapString("Partitions per keyspace of the dynamodb backend"))
	flags.Int("max-batch-ops", 100, wrapString("Maximum operations per atomic commit"))
	flags.Int("max-include-depth", 8, wrapString("Maximum nesting of included relations"))
	flags.Bool("no-rollback", false, wrapString("Leave committed chunks of a failed batch in place"))
	flags.String("log-level", "info", wrapString("Log level: debug, info, warn or error"))
	flags.Bool("print-metrics", false, wrapString("Write the store's metrics in Prometheus text format to stderr when done"))

	RootCmd.AddCommand(createCmd, findCmd, firstCmd, updateCmd, upsertCmd, deleteCmd)
	RootCmd.AddCommand(tablesCmd, streamCmd)
	RootCmd.AddCommand(versionCmd)
}

// withDB opens the configured backend around run and closes it afterwards.
func withDB(run func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		if err := bindCommandFlags(cmd); err != nil {
			return err
		}
		backend, db, err = openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer func() {
			err = errors.Join(err, backend.Close())
			backend, db = nil, nil
		}()
		if err := run(cmd, args); err != nil {
			return err
		}
		if viper.GetBool("print-metrics") {
			db.WriteMetrics(cmd.ErrOrStderr())
		}
		return nil
	}
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
