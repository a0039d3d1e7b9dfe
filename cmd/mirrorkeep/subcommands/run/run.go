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

package run

import (
	"flag"

	"github.com/mirrorkeep/mirrorkeep/appcontext"
	"github.com/mirrorkeep/mirrorkeep/cmd/mirrorkeep/subcommands"
	"github.com/mirrorkeep/mirrorkeep/config"
	"github.com/mirrorkeep/mirrorkeep/mirror"
	"github.com/mirrorkeep/mirrorkeep/report"
	"github.com/mirrorkeep/mirrorkeep/sentinel"

	_ "github.com/mirrorkeep/mirrorkeep/mirror/fs"
	_ "github.com/mirrorkeep/mirrorkeep/mirror/s3"
	_ "github.com/mirrorkeep/mirrorkeep/mirror/ssh"
)

func init() {
	subcommands.Register("run", cmd_run)
}

func cmd_run(ctx *appcontext.AppContext, cfg *config.Config, args []string) int {
	flags := flag.NewFlagSet("run", flag.ExitOnError)
	flags.Parse(args)

	channel, err := mirror.Open(cfg.Mirror)
	if err != nil {
		ctx.Logger.Error("mirror: %s", err)
		return 1
	}
	defer channel.Close()

	runner := &sentinel.Runner{
		Ctx:     ctx,
		Config:  cfg,
		Channel: channel,
		Pinger:  report.NewPinger(cfg.StatusURL),
	}
	return runner.Run()
}
