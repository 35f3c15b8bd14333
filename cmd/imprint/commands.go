package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/xraph/imprint"
	"github.com/xraph/imprint/edition"
	"github.com/xraph/imprint/event"
	"github.com/xraph/imprint/id"
	"github.com/xraph/imprint/receipt"
)

func parseEditionID(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid edition id %q: %w", s, err)
	}
	return v, nil
}

func newAccountCmd() *cobra.Command {
	account := &cobra.Command{
		Use:   "account",
		Short: "Manage account ids",
	}
	account.AddCommand(&cobra.Command{
		Use:   "new",
		Short: "Print a fresh account id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), imprint.NewAccount().String())
			return err
		},
	})
	return account
}

func newPublishCmd(g *globalFlags) *cobra.Command {
	var amount, price uint64
	var uri string

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish a new edition into custody",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, _, err := g.caller(cmd.Context())
			if err != nil {
				return err
			}
			l, stop, err := g.open(ctx, cmd)
			if err != nil {
				return err
			}
			defer stop()

			editionID, err := l.Publish(ctx, amount, price, uri)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), editionID)
			return err
		},
	}
	cmd.Flags().Uint64Var(&amount, "amount", 0, "units to mint into custody")
	cmd.Flags().Uint64Var(&price, "price", 0, "unit price in the smallest currency unit")
	cmd.Flags().StringVar(&uri, "uri", "", "metadata uri")
	_ = cmd.MarkFlagRequired("price")
	return cmd
}

func newBuyCmd(g *globalFlags) *cobra.Command {
	var amount, pay uint64

	cmd := &cobra.Command{
		Use:   "buy EDITION",
		Short: "Buy units of an edition from custody",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			editionID, err := parseEditionID(args[0])
			if err != nil {
				return err
			}
			ctx, _, err := g.caller(cmd.Context())
			if err != nil {
				return err
			}
			l, stop, err := g.open(ctx, cmd)
			if err != nil {
				return err
			}
			defer stop()

			if !cmd.Flags().Changed("pay") {
				// Tender the exact total at the current price.
				price, err := l.PriceOf(ctx, editionID)
				if err != nil {
					return err
				}
				total, ok := price.CheckedMul(amount)
				if !ok {
					return imprint.ErrInvalidAmount
				}
				pay = total.Amount
			}

			if err := l.BuyBook(ctx, editionID, amount, imprint.NewMoney(pay, l.Currency())); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "bought %d of edition %d for %s\n",
				amount, editionID, imprint.NewMoney(pay, l.Currency()))
			return err
		},
	}
	cmd.Flags().Uint64Var(&amount, "amount", 1, "units to buy")
	cmd.Flags().Uint64Var(&pay, "pay", 0, "payment in the smallest currency unit (default: price times amount)")
	return cmd
}

func newIncreaseSupplyCmd(g *globalFlags) *cobra.Command {
	var amount, price uint64
	var uri string

	cmd := &cobra.Command{
		Use:   "increase-supply EDITION",
		Short: "Mint more units of an edition and replace its price and uri",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			editionID, err := parseEditionID(args[0])
			if err != nil {
				return err
			}
			ctx, _, err := g.caller(cmd.Context())
			if err != nil {
				return err
			}
			l, stop, err := g.open(ctx, cmd)
			if err != nil {
				return err
			}
			defer stop()

			if !cmd.Flags().Changed("price") || !cmd.Flags().Changed("uri") {
				e, err := l.Edition(ctx, editionID)
				if err != nil {
					return err
				}
				if !cmd.Flags().Changed("price") {
					price = e.Price
				}
				if !cmd.Flags().Changed("uri") {
					uri = e.URI
				}
			}

			if err := l.IncreaseSupply(ctx, editionID, amount, price, uri); err != nil {
				return err
			}
			n, err := l.CustodyBalanceOf(ctx, l.Custodian(), editionID)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "edition %d now has %d in custody\n", editionID, n)
			return err
		},
	}
	cmd.Flags().Uint64Var(&amount, "amount", 0, "units to add")
	cmd.Flags().Uint64Var(&price, "price", 0, "new unit price (default: unchanged)")
	cmd.Flags().StringVar(&uri, "uri", "", "new metadata uri (default: unchanged)")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func newSetPriceCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "set-price EDITION PRICE",
		Short: "Change the unit price of an edition",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			editionID, err := parseEditionID(args[0])
			if err != nil {
				return err
			}
			price, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid price %q: %w", args[1], err)
			}
			ctx, _, err := g.caller(cmd.Context())
			if err != nil {
				return err
			}
			l, stop, err := g.open(ctx, cmd)
			if err != nil {
				return err
			}
			defer stop()

			return l.ChangePrice(ctx, editionID, price)
		},
	}
}

func newSetURICmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "set-uri EDITION URI",
		Short: "Change the metadata uri of an edition",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			editionID, err := parseEditionID(args[0])
			if err != nil {
				return err
			}
			ctx, _, err := g.caller(cmd.Context())
			if err != nil {
				return err
			}
			l, stop, err := g.open(ctx, cmd)
			if err != nil {
				return err
			}
			defer stop()

			return l.ChangeURI(ctx, editionID, args[1])
		},
	}
}

type editionView struct {
	ID      uint64 `json:"id"`
	Author  string `json:"author"`
	Price   string `json:"price"`
	URI     string `json:"uri"`
	Custody uint64 `json:"custody"`
	Minted  uint64 `json:"minted"`
	Sold    uint64 `json:"sold"`
}

func viewOf(l *imprint.Ledger, e *edition.Edition) editionView {
	return editionView{
		ID:      e.ID,
		Author:  e.Author.String(),
		Price:   imprint.NewMoney(e.Price, l.Currency()).String(),
		URI:     e.URI,
		Custody: e.Custody,
		Minted:  e.Minted,
		Sold:    e.Sold(),
	}
}

func newShowCmd(g *globalFlags) *cobra.Command {
	var author string
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "show [EDITION]",
		Short: "Show one edition, or list editions",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			l, stop, err := g.open(ctx, cmd)
			if err != nil {
				return err
			}
			defer stop()

			if len(args) == 1 {
				editionID, err := parseEditionID(args[0])
				if err != nil {
					return err
				}
				e, err := l.Edition(ctx, editionID)
				if err != nil {
					return err
				}
				return printJSON(cmd, viewOf(l, e))
			}

			editions, err := l.Editions(ctx, edition.ListOpts{Author: author, Limit: limit, Offset: offset})
			if err != nil {
				return err
			}
			views := make([]editionView, len(editions))
			for i, e := range editions {
				views[i] = viewOf(l, e)
			}
			return printJSON(cmd, views)
		},
	}
	cmd.Flags().StringVar(&author, "author", "", "only editions by this account")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum editions to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "editions to skip")
	return cmd
}

func newBalanceCmd(g *globalFlags) *cobra.Command {
	var holder string

	cmd := &cobra.Command{
		Use:   "balance EDITION",
		Short: "Print the balance an account holds of an edition",
		Long: "Print the balance an account holds of an edition. The custodian " +
			"account reports the custodial supply.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			editionID, err := parseEditionID(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			l, stop, err := g.open(ctx, cmd)
			if err != nil {
				return err
			}
			defer stop()

			var who id.ID
			switch {
			case holder == "custodian":
				who = l.Custodian()
			case holder != "":
				if who, err = id.ParseAccountID(holder); err != nil {
					return fmt.Errorf("invalid --holder: %w", err)
				}
			default:
				if _, who, err = g.caller(ctx); err != nil {
					return fmt.Errorf("pass --holder or --as: %w", err)
				}
			}

			n, err := l.CustodyBalanceOf(ctx, who, editionID)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), n)
			return err
		},
	}
	cmd.Flags().StringVar(&holder, "holder", "", `account id, or "custodian" (default: --as)`)
	return cmd
}

func newEventsCmd(g *globalFlags) *cobra.Command {
	var editionID, after uint64
	var kind string
	var limit int

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List the notification log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			l, stop, err := g.open(ctx, cmd)
			if err != nil {
				return err
			}
			defer stop()

			events, err := l.Events(ctx, event.ListOpts{
				EditionID: editionID,
				Kind:      event.Kind(kind),
				AfterSeq:  after,
				Limit:     limit,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, events)
		},
	}
	cmd.Flags().Uint64Var(&editionID, "edition", 0, "only events for this edition")
	cmd.Flags().StringVar(&kind, "kind", "", "only events of this kind")
	cmd.Flags().Uint64Var(&after, "after", 0, "only events after this sequence number")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum events to list")
	return cmd
}

func newReceiptsCmd(g *globalFlags) *cobra.Command {
	var buyer string
	var editionID uint64
	var limit int

	cmd := &cobra.Command{
		Use:   "receipts",
		Short: "List purchase receipts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			l, stop, err := g.open(ctx, cmd)
			if err != nil {
				return err
			}
			defer stop()

			receipts, err := l.Receipts(ctx, receipt.ListOpts{
				Buyer:     buyer,
				EditionID: editionID,
				Limit:     limit,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, receipts)
		},
	}
	cmd.Flags().StringVar(&buyer, "buyer", "", "only receipts for this account")
	cmd.Flags().Uint64Var(&editionID, "edition", 0, "only receipts for this edition")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum receipts to list")
	return cmd
}
