package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xraph/imprint"
	"github.com/xraph/imprint/id"
	"github.com/xraph/imprint/store/driver"
)

type globalFlags struct {
	driver    string
	dsn       string
	database  string
	as        string
	currency  string
	custodian string
	logLevel  string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:           "imprint",
		Short:         "Custodial edition ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.driver, "driver", envOr("IMPRINT_DRIVER", driver.SQLite), "store backend: "+strings.Join(driver.Names(), ", "))
	pf.StringVar(&g.dsn, "dsn", envOr("IMPRINT_DSN", "file:imprint.db"), "store connection string")
	pf.StringVar(&g.database, "database", envOr("IMPRINT_DATABASE", driver.DefaultMongoDatabase), "mongo database name")
	pf.StringVar(&g.as, "as", os.Getenv("IMPRINT_ACCOUNT"), "account id the command runs as")
	pf.StringVar(&g.currency, "currency", envOr("IMPRINT_CURRENCY", imprint.DefaultCurrency), "settlement currency")
	pf.StringVar(&g.custodian, "custodian", os.Getenv("IMPRINT_CUSTODIAN"), "custodian account id")
	pf.StringVar(&g.logLevel, "log-level", "warn", "log level: debug, info, warn, error")

	root.AddCommand(
		newAccountCmd(),
		newPublishCmd(g),
		newBuyCmd(g),
		newIncreaseSupplyCmd(g),
		newSetPriceCmd(g),
		newSetURICmd(g),
		newShowCmd(g),
		newBalanceCmd(g),
		newEventsCmd(g),
		newReceiptsCmd(g),
	)
	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// open builds and starts a ledger for one command. The returned func stops
// it.
func (g *globalFlags) open(ctx context.Context, cmd *cobra.Command) (*imprint.Ledger, func(), error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(g.logLevel)); err != nil {
		return nil, nil, fmt.Errorf("invalid --log-level %q: %w", g.logLevel, err)
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	opts := []imprint.Option{
		imprint.WithLogger(logger),
		imprint.WithCurrency(g.currency),
	}
	if g.custodian != "" {
		custodian, err := id.ParseAccountID(g.custodian)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid --custodian: %w", err)
		}
		opts = append(opts, imprint.WithCustodian(custodian))
	}

	s, err := driver.Open(ctx, g.driver, g.dsn, g.database)
	if err != nil {
		return nil, nil, err
	}
	l := imprint.New(s, opts...)
	if err := l.Start(ctx); err != nil {
		_ = s.Close()
		return nil, nil, err
	}
	return l, func() {
		if err := l.Stop(); err != nil {
			logger.Warn("stop ledger", "error", err)
		}
	}, nil
}

// caller attaches the --as account to ctx.
func (g *globalFlags) caller(ctx context.Context) (context.Context, id.ID, error) {
	if g.as == "" {
		return nil, id.Nil, fmt.Errorf("--as is required for this command")
	}
	who, err := id.ParseAccountID(g.as)
	if err != nil {
		return nil, id.Nil, fmt.Errorf("invalid --as: %w", err)
	}
	return imprint.WithCaller(ctx, who), who, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
