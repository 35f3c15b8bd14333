// Command imprint drives an edition ledger from the shell.
//
//	imprint account new
//	imprint --dsn file:imprint.db --as acct_... publish --amount 100 --price 500 --uri ipfs://book
//	imprint --dsn file:imprint.db --as acct_... buy 1 --amount 2 --pay 1000
//	imprint --dsn file:imprint.db show 1
package main

import (
	"fmt"
	"os"

	"github.com/xraph/imprint"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, describe(err))
		os.Exit(1)
	}
}

// describe renders ledger rejections with their text code.
func describe(err error) string {
	se := imprint.ToServiceError(err)
	if se == nil || se.TextCode == imprint.CodeInternal {
		return "error: " + err.Error()
	}
	return fmt.Sprintf("error [%s]: %s", se.TextCode, err.Error())
}
