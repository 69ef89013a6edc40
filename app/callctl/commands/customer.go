package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yoockh/callgate/config"
	"github.com/yoockh/callgate/internal/cache"
	pgrepo "github.com/yoockh/callgate/internal/repositories/postgres"
	"github.com/yoockh/callgate/internal/services"
)

var customerCmd = &cobra.Command{
	Use:   "customer",
	Short: "Manage customer records",
}

var customerIn services.RegisterCustomerInput
var customerSummaryFile string

var customerAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create or replace a customer",
	Long: `Create or replace a customer. The card number and address are stored
only as hashes; the caller must repeat them to be verified.

Example:
  callctl customer add --name "Ada Lovelace" --phone +15550100 \
    --card 4111111111111234 --street "12 Main St" --city Springfield \
    --state IL --zip 62701 --summary account.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if customerSummaryFile != "" {
			data, err := os.ReadFile(customerSummaryFile)
			if err != nil {
				return fmt.Errorf("failed to read summary: %w", err)
			}
			if !json.Valid(data) {
				return fmt.Errorf("summary %s is not valid JSON", customerSummaryFile)
			}
			customerIn.AccountSummary = data
		}

		if err := config.InitPostgres(settings.Stores.PostgresURI); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}

		// Drop any cached lookup the server holds for these phones.
		var c cache.Cache
		if settings.Stores.RedisAddr != "" {
			if err := config.InitRedis(settings.Stores.RedisAddr); err != nil {
				log.WithError(err).Warn("redis unavailable; cached lookups expire on their own")
			} else {
				defer config.RedisClient.Close()
				c = cache.NewRedisCache(config.RedisClient)
			}
		}

		svc := services.NewCustomerService(pgrepo.NewCustomerRepo(config.PostgresDB), c, 0)
		cust, err := svc.Register(cmd.Context(), customerIn)
		if err != nil {
			return err
		}

		out, _ := json.MarshalIndent(cust, "", "  ")
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func init() {
	f := customerAddCmd.Flags()
	f.StringVar(&customerIn.ID, "id", "", "customer id (default: new uuid)")
	f.StringVar(&customerIn.FullName, "name", "", "full name")
	f.StringSliceVar(&customerIn.Phones, "phone", nil, "phone number in E.164 (repeatable)")
	f.StringVar(&customerIn.CardNumber, "card", "", "card number or its last four digits")
	f.StringVar(&customerIn.Address.Street, "street", "", "street address")
	f.StringVar(&customerIn.Address.City, "city", "", "city")
	f.StringVar(&customerIn.Address.State, "state", "", "state")
	f.StringVar(&customerIn.Address.Zip, "zip", "", "zip code")
	f.StringVar(&customerSummaryFile, "summary", "", "JSON file with account facts")
	for _, name := range []string{"name", "phone", "card", "street", "city", "state", "zip"} {
		_ = customerAddCmd.MarkFlagRequired(name)
	}

	customerCmd.AddCommand(customerAddCmd)
}
