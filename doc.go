// Package imprint provides a custodial edition ledger for Go applications.
//
// Imprint is designed as a library, not a service. An author publishes an
// edition: a uniquely numbered, fungible item type with a unit price and a
// metadata URI. Units are minted into the ledger's own custody and sold to
// buyers in atomic pay-to-transfer exchanges. It provides:
//
//   - Monotonic edition ids with single-owner authorship
//   - Exact-payment settlement with retained payment receipts
//   - Overflow-checked supply and balance arithmetic
//   - A reentrance lock around every mutating operation
//   - An append-only notification log and plugin hooks
//   - Memory, SQLite, PostgreSQL and MongoDB stores
//
// # Quick Start
//
// Create a ledger instance with your preferred store:
//
//	import (
//	    "github.com/xraph/imprint"
//	    "github.com/xraph/imprint/store/sqlite"
//	)
//
//	s, err := sqlite.Open("imprint.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	l := imprint.New(s, imprint.WithCurrency("usd"))
//	if err := l.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer l.Stop()
//
// # Callers
//
// Every mutating call acts on behalf of the account carried by the context:
//
//	author := imprint.NewAccount()
//	ctx = imprint.WithCaller(ctx, author)
//
//	editionID, err := l.Publish(ctx, 100, 500, "ipfs://book")
//
// Only the author of an edition may increase its supply or change its price
// or URI. Anyone may buy:
//
//	buyerCtx := imprint.WithCaller(ctx, buyer)
//	err = l.BuyBook(buyerCtx, editionID, 2, imprint.USD(1000))
//
// The payment must equal price times amount exactly. Rejections are reported
// as sentinel errors, and those carrying a payload can be inspected with
// errors.As:
//
//	var short *imprint.NotEnoughSupplyError
//	if errors.As(err, &short) {
//	    fmt.Println("only", short.Available, "left")
//	}
//
// # Plugins
//
// Plugins observe committed operations (OnPublished, OnBought, ...) and may
// veto purchases through OnReceive. Hooks run with the operation's context;
// a mutating ledger call made with that context fails with ErrReentrant.
//
// # TypeID
//
// Accounts, events and receipts use TypeID identifiers:
//
//	acct_01h2xcejqtf2nbrexx3vqjhp41  // Account ID
//	evt_01h2xcejqtf2nbrexx3vqjhp41   // Event ID
//	rcpt_01h455vb4pex5vsknk084sn02q  // Receipt ID
//
// Edition ids are plain integers assigned by the ledger, starting at 1.
package imprint
