package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xraph/imprint"
)

type cli struct {
	t    *testing.T
	dsn  string
	base []string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "imprint.db")
	return &cli{t: t, dsn: dsn, base: []string{"--driver", "sqlite", "--dsn", dsn, "--log-level", "error"}}
}

func (c *cli) run(args ...string) (string, error) {
	c.t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append(append([]string{}, c.base...), args...))
	err := root.Execute()
	return strings.TrimSpace(out.String()), err
}

func (c *cli) must(args ...string) string {
	c.t.Helper()
	out, err := c.run(args...)
	if err != nil {
		c.t.Fatalf("imprint %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func TestCLIPublishAndBuy(t *testing.T) {
	c := newCLI(t)
	author := c.must("account", "new")
	buyer := c.must("account", "new")
	if !strings.HasPrefix(author, "acct_") {
		t.Fatalf("account id = %q", author)
	}

	editionID := c.must("--as", author, "publish", "--amount", "10", "--price", "250", "--uri", "ipfs://book")
	if editionID != "1" {
		t.Fatalf("edition id = %q, want 1", editionID)
	}

	c.must("--as", buyer, "buy", "1", "--amount", "4")
	if got := c.must("--as", buyer, "balance", "1"); got != "4" {
		t.Errorf("buyer balance = %s, want 4", got)
	}
	if got := c.must("balance", "1", "--holder", "custodian"); got != "6" {
		t.Errorf("custody = %s, want 6", got)
	}

	c.must("--as", author, "increase-supply", "1", "--amount", "5")
	c.must("--as", author, "set-price", "1", "300")
	c.must("--as", author, "set-uri", "1", "ipfs://book-2e")

	var view editionView
	if err := json.Unmarshal([]byte(c.must("show", "1")), &view); err != nil {
		t.Fatalf("decode show: %v", err)
	}
	if view.Author != author || view.Custody != 11 || view.Sold != 4 || view.URI != "ipfs://book-2e" {
		t.Errorf("show = %+v", view)
	}

	var events []map[string]any
	if err := json.Unmarshal([]byte(c.must("events", "--edition", "1")), &events); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	kinds := make([]string, len(events))
	for i, e := range events {
		kinds[i], _ = e["kind"].(string)
	}
	want := "published,bought,supply_increased,price_updated,uri_updated"
	if got := strings.Join(kinds, ","); got != want {
		t.Errorf("events = %s, want %s", got, want)
	}

	var receipts []map[string]any
	if err := json.Unmarshal([]byte(c.must("receipts", "--buyer", buyer)), &receipts); err != nil {
		t.Fatalf("decode receipts: %v", err)
	}
	if len(receipts) != 1 {
		t.Errorf("receipts = %d, want 1", len(receipts))
	}
}

func TestCLIRejections(t *testing.T) {
	c := newCLI(t)
	author := c.must("account", "new")
	stranger := c.must("account", "new")
	c.must("--as", author, "publish", "--amount", "2", "--price", "100")

	tests := []struct {
		name string
		args []string
		want error
	}{
		{"not author", []string{"--as", stranger, "set-price", "1", "5"}, imprint.ErrNotAuthor},
		{"zero price", []string{"--as", author, "set-price", "1", "0"}, imprint.ErrInvalidPrice},
		{"unpublished", []string{"--as", stranger, "buy", "7"}, imprint.ErrUnpublishedBook},
		{"not enough", []string{"--as", stranger, "buy", "1", "--amount", "3", "--pay", "300"}, imprint.ErrNotEnoughSupply},
		{"underpaid", []string{"--as", stranger, "buy", "1", "--amount", "1", "--pay", "99"}, imprint.ErrInvalidPayment},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.run(tt.args...)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}

	if _, err := c.run("publish", "--price", "1"); err == nil || !strings.Contains(err.Error(), "--as") {
		t.Errorf("publish without --as = %v", err)
	}
}

func TestDescribe(t *testing.T) {
	if got := describe(imprint.ErrNotAuthor); !strings.Contains(got, "[NOT_AUTHOR]") {
		t.Errorf("describe = %q", got)
	}
	if got := describe(errors.New("disk full")); got != "error: disk full" {
		t.Errorf("describe = %q", got)
	}
}
