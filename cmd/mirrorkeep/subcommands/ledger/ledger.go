/*
 * Copyright (c) 2021 Gilles Chehade <gilles@poolp.org>
 *
 * Permission to use, copy, modify, and distribute this software for any
 * purpose with or without fee is hereby granted, provided that the above
 * copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES
 * WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF
 * MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR
 * ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES
 * WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN
 * ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF
 * OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package ledger

import (
	"flag"
	"fmt"

	"github.com/mirrorkeep/mirrorkeep/appcontext"
	"github.com/mirrorkeep/mirrorkeep/cmd/mirrorkeep/subcommands"
	"github.com/mirrorkeep/mirrorkeep/config"
	"github.com/mirrorkeep/mirrorkeep/ledger"
)

func init() {
	subcommands.Register("ledger", cmd_ledger)
}

// cmd_ledger inspects the checksum ledger without taking the run lock:
// no argument prints a summary, an argument prints the stored digest
// for that path.
func cmd_ledger(ctx *appcontext.AppContext, cfg *config.Config, args []string) int {
	flags := flag.NewFlagSet("ledger", flag.ExitOnError)
	flags.Parse(args)

	lgr, err := ledger.Load(cfg.LedgerPath())
	if err != nil {
		ctx.Logger.Error("%s", err)
		return 1
	}

	if flags.NArg() == 0 {
		fmt.Printf("entries: %d\n", lgr.Len())
		if head, ok := lgr.Head(); ok {
			fmt.Printf("oldest: %s\n", head)
		}
		if tail, ok := lgr.Tail(); ok {
			fmt.Printf("newest: %s\n", tail)
		}
		return 0
	}

	exitCode := 0
	for _, pathname := range flags.Args() {
		record, exists := lgr.Lookup(pathname)
		if !exists {
			ctx.Logger.Error("no ledger record for %s", pathname)
			exitCode = 1
			continue
		}
		fmt.Println(record)
	}
	return exitCode
}
