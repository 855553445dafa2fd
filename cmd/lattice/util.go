package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/cockroachdb/pebble"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jacentio/lattice/kv"
	"github.com/jacentio/lattice/kv/badgerkv"
	"github.com/jacentio/lattice/kv/dynamokv"
	"github.com/jacentio/lattice/kv/memkv"
	"github.com/jacentio/lattice/kv/pebblekv"
	"github.com/jacentio/lattice/schema"
	"github.com/jacentio/lattice/store"
)

// wrapWidth is the number of characters flag help is wrapped at
const wrapWidth = 50

// wrapString wraps text at wrapWidth characters
func wrapString(text string) string {
	var lines []string
	var line strings.Builder
	for _, word := range strings.Fields(text) {
		if line.Len() > 0 && line.Len()+1+len(word) > wrapWidth {
			lines = append(lines, line.String())
			line.Reset()
		}
		if line.Len() > 0 {
			line.WriteString(" ")
		}
		line.WriteString(word)
	}
	if line.Len() > 0 {
		lines = append(lines, line.String())
	}
	return strings.Join(lines, "\n")
}

// initConfig initializes configuration from environment variables
func initConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("lattice")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// bindCommandFlags binds a command's flags to viper
func bindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

func newLogger() (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log-level"))); err != nil {
		return nil, fmt.Errorf("invalid log level %q", viper.GetString("log-level"))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})), nil
}

// openDB opens the configured backend and binds the schema's tables to it.
func openDB(ctx context.Context) (kv.KV, *store.DB, error) {
	path := viper.GetString("schema")
	if path == "" {
		return nil, nil, errors.New("no schema file given, set --schema or LATTICE_SCHEMA")
	}
	tables, err := schema.LoadFile(path)
	if err != nil {
		return nil, nil, err
	}

	logger, err := newLogger()
	if err != nil {
		return nil, nil, err
	}

	backend, err := openBackend(ctx)
	if err != nil {
		return nil, nil, err
	}

	db, err := store.New(backend, tables, store.Config{
		MaxBatchOps:            viper.GetInt("max-batch-ops"),
		MaxIncludeDepth:        viper.GetInt("max-include-depth"),
		RollbackPartialBatches: !viper.GetBool("no-rollback"),
		Logger:                 logger,
	})
	if err != nil {
		_ = backend.Close()
		return nil, nil, err
	}
	return backend, db, nil
}

// openBackend creates the key-value store named by the backend setting.
func openBackend(ctx context.Context) (kv.KV, error) {
	path := viper.GetString("path")

	switch viper.GetString("backend") {
	case "memory":
		return memkv.New(), nil
	case "pebble":
		if path == "" {
			return nil, errors.New("the pebble backend needs --path")
		}
		return pebblekv.Open(path, pebblekv.Options{
			Pebble: &pebble.Options{},
			NoSync: viper.GetBool("no-sync"),
		})
	case "badger":
		if path == "" {
			return badgerkv.OpenInMemory()
		}
		return badgerkv.Open(badger.DefaultOptions(path).WithLogger(nil))
	case "dynamodb":
		table := viper.GetString("dynamo-table")
		if table == "" {
			return nil, errors.New("the dynamodb backend needs --dynamo-table")
		}
		cfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
			if endpoint := viper.GetString("dynamo-endpoint"); endpoint != "" {
				o.BaseEndpoint = aws.String(endpoint)
			}
		})
		return dynamokv.NewWithConfig(client, table, dynamokv.Config{
			NumShards: viper.GetInt("dynamo-shards"),
		}), nil
	default:
		return nil, fmt.Errorf("invalid backend %s", viper.GetString("backend"))
	}
}
