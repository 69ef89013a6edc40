package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yoockh/callgate/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create tables and indexes",
	Long: `Enables pgvector and migrates the customer, transcript and recording
tables in Postgres, then creates the Mongo call and utterance indexes when
MONGO_URI is set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.InitPostgres(settings.Stores.PostgresURI); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		if err := config.MigratePostgres(config.PostgresDB); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
		log.Info("postgres migrated")

		if settings.Stores.MongoURI == "" {
			log.Warn("MONGO_URI is not set; skipping mongo indexes")
			return nil
		}
		if err := config.InitMongo(settings.Stores.MongoURI, settings.Stores.MongoDB); err != nil {
			return fmt.Errorf("mongo: %w", err)
		}
		defer config.MongoClient.Disconnect(cmd.Context())

		if err := config.EnsureMongoIndexes(config.MongoDB); err != nil {
			return fmt.Errorf("mongo indexes: %w", err)
		}
		log.Info("mongo indexes ensured")
		return nil
	},
}
