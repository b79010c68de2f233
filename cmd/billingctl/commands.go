package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ncecere/seat_billing/internal/app"
	"github.com/ncecere/seat_billing/internal/auth"
	"github.com/ncecere/seat_billing/internal/billing"
	"github.com/ncecere/seat_billing/internal/billingclient"
	"github.com/ncecere/seat_billing/internal/config"
	"github.com/ncecere/seat_billing/internal/database"
	"github.com/ncecere/seat_billing/internal/orgstore"
	"github.com/ncecere/seat_billing/internal/storage/blob"
	"github.com/ncecere/seat_billing/internal/timeutil"
)

type rootOptions struct {
	configFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "billingctl",
		Short:         "Seat billing command line tools",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "path to billing.yaml (defaults to ./billing.yaml or BILLING_CONFIG_FILE)")

	root.AddCommand(
		newComputeCmd(opts),
		newFetchCmd(),
		newTiersCmd(opts),
		newTokenCmd(opts),
		newArchiveCmd(opts),
		newSeedCmd(opts),
	)
	return root
}

func (o *rootOptions) load() (*config.Config, error) {
	return config.LoadOffline(config.Options{ConfigFile: o.configFile})
}

func newComputeCmd(root *rootOptions) *cobra.Command {
	var (
		usersFile  string
		year       int
		month      int
		clientID   string
		clientName string
	)
	cmd := &cobra.Command{
		Use:   "compute",
		Short: "Compute a billing report from a JSON list of users",
		Example: `  billingctl compute --users users.json --year 2024 --month 2
  cat users.json | billingctl compute --users - --month 1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			calc, err := app.NewCalculator(cfg.Billing)
			if err != nil {
				return err
			}
			users, err := readUsers(cmd.InOrStdin(), usersFile)
			if err != nil {
				return err
			}

			period, err := periodFromFlags(cmd, year, month, calc.Location())
			if err != nil {
				return err
			}

			result, err := calc.ComputeBillingMonth(users, period.Year, period.Month)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), billing.NewReport(clientID, clientName, result, calc.Tiers()))
		},
	}
	cmd.Flags().StringVar(&usersFile, "users", "", "JSON file with [{user_id, user_name, user_email, created_at}], - for stdin")
	cmd.Flags().IntVar(&year, "year", 0, "billing year (default current)")
	cmd.Flags().IntVar(&month, "month", 0, "billing month 1-12 (default current)")
	cmd.Flags().StringVar(&clientID, "client-id", "", "client id echoed in the report")
	cmd.Flags().StringVar(&clientName, "client-name", "", "client name echoed in the report")
	_ = cmd.MarkFlagRequired("users")
	return cmd
}

func newFetchCmd() *cobra.Command {
	var (
		baseURL  string
		token    string
		clientID string
		year     int
		month    int
		retries  uint64
		timeout  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch a billing report from a running billing service",
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				token = os.Getenv("BILLING_ADMIN_TOKEN")
			}
			client, err := billingclient.New(baseURL,
				billingclient.WithRetry(retries, 250*time.Millisecond),
				billingclient.WithHTTPClient(&http.Client{Timeout: timeout}),
			)
			if err != nil {
				return err
			}
			report, err := client.GetSubscriptionBillingPeriod(cmd.Context(), token, clientID, year, month)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", clientID, err)
			}
			return writeJSON(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", "http://localhost:8080", "billing service base URL")
	cmd.Flags().StringVar(&token, "token", "", "admin bearer token (or BILLING_ADMIN_TOKEN)")
	cmd.Flags().StringVar(&clientID, "client-id", "", "organization id")
	cmd.Flags().IntVar(&year, "year", 0, "billing year (default current)")
	cmd.Flags().IntVar(&month, "month", 0, "billing month (default current)")
	cmd.Flags().Uint64Var(&retries, "retries", 3, "retries on 429/5xx/network errors")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "per-request timeout")
	_ = cmd.MarkFlagRequired("client-id")
	return cmd
}

func newTiersCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tiers",
		Short: "Print the configured pricing tiers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			tiers, err := cfg.Billing.PricingTiers()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "RANGE\tUSERS\tPRICE (%s)\n", cfg.Billing.Currency)
			for _, tier := range tiers {
				fmt.Fprintf(w, "%s\t%s\t%s\n", tier.Range, tier.Label(), tier.PricePerUser.StringFixed(2))
			}
			return w.Flush()
		},
	}
}

func newTokenCmd(root *rootOptions) *cobra.Command {
	var (
		subject string
		roles   []string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an admin access token signed with the configured secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			tm, err := auth.NewTokenManager(cfg.Admin.JWTSecret, cfg.Admin.AccessTokenTTL, cfg.Admin.Issuer)
			if err != nil {
				return fmt.Errorf("admin token config: %w", err)
			}
			token, expires, err := tm.Issue(subject, "", roles...)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expires.UTC().Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "billingctl", "token subject")
	cmd.Flags().StringSliceVar(&roles, "role", []string{"admin"}, "roles to grant")
	return cmd
}

func newArchiveCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Inspect archived billing reports",
	}

	var (
		clientID string
		year     int
		month    int
	)
	show := &cobra.Command{
		Use:   "show",
		Short: "Print an archived report for one organization and month",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			loc, err := cfg.Billing.Location()
			if err != nil {
				return err
			}
			period, err := periodFromFlags(cmd, year, month, loc)
			if err != nil {
				return err
			}
			store, err := blob.New(cmd.Context(), cfg.Archive)
			if err != nil {
				return fmt.Errorf("open report archive: %w", err)
			}
			report, err := blob.NewReportArchive(store).Load(cmd.Context(), clientID, period.Year, period.Month)
			if err != nil {
				if errors.Is(err, blob.ErrNotFound) {
					return fmt.Errorf("no archived report for %s %s: %w", clientID, period, err)
				}
				return err
			}
			return writeJSON(cmd.OutOrStdout(), report)
		},
	}
	show.Flags().StringVar(&clientID, "client-id", "", "organization id")
	show.Flags().IntVar(&year, "year", 0, "billing year (default current)")
	show.Flags().IntVar(&month, "month", 0, "billing month 1-12 (default current)")
	_ = show.MarkFlagRequired("client-id")

	cmd.AddCommand(show)
	return cmd
}

func newSeedCmd(root *rootOptions) *cobra.Command {
	var (
		file    string
		migrate bool
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create organizations and users from a JSON file",
		Example: `  billingctl seed --file orgs.json --migrate`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if strings.TrimSpace(cfg.Database.URL) == "" {
				return errors.New("database url is required (BILLING_DATABASE_URL)")
			}
			seed, err := readSeedFile(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if migrate {
				cfg.Database.RunMigrations = true
				if err := database.RunMigrations(ctx, cfg.Database); err != nil {
					return err
				}
			}
			pool, err := database.Connect(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer pool.Close()

			tx, err := pool.Begin(ctx)
			if err != nil {
				return fmt.Errorf("begin seed: %w", err)
			}
			defer tx.Rollback(ctx)
			if err := seedOrganizations(ctx, orgstore.New(tx), seed, cmd.OutOrStdout(), time.Now()); err != nil {
				return err
			}
			return tx.Commit(ctx)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "seed JSON file, - for stdin")
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply database migrations first")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// periodFromFlags applies the same year/month rules as the HTTP API.
func periodFromFlags(cmd *cobra.Command, year, month int, loc *time.Location) (timeutil.Period, error) {
	var y, m string
	if cmd.Flags().Changed("year") {
		y = strconv.Itoa(year)
	}
	if cmd.Flags().Changed("month") {
		m = strconv.Itoa(month)
	}
	return timeutil.ParsePeriod(y, m, time.Now(), loc)
}

func openInput(stdin io.Reader, path string) (io.ReadCloser, error) {
	if strings.TrimSpace(path) == "-" {
		return io.NopCloser(stdin), nil
	}
	return os.Open(path)
}

func readUsers(stdin io.Reader, path string) ([]billing.OrganizationUser, error) {
	r, err := openInput(stdin, path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	var users []billing.OrganizationUser
	if err := json.NewDecoder(r).Decode(&users); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	return users, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
