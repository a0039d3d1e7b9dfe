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

package main

import (
	"flag"
	"fmt"
	"os"
	"os/user"
	"runtime"
	"sort"
	"strings"

	"github.com/mirrorkeep/mirrorkeep/appcontext"
	"github.com/mirrorkeep/mirrorkeep/cmd/mirrorkeep/subcommands"
	"github.com/mirrorkeep/mirrorkeep/config"
	"github.com/mirrorkeep/mirrorkeep/logging"

	_ "github.com/mirrorkeep/mirrorkeep/cmd/mirrorkeep/subcommands/ledger"
	_ "github.com/mirrorkeep/mirrorkeep/cmd/mirrorkeep/subcommands/run"
	_ "github.com/mirrorkeep/mirrorkeep/cmd/mirrorkeep/subcommands/version"
)

func main() {
	os.Exit(entryPoint())
}

func entryPoint() int {
	var opt_configfile string
	var opt_info bool
	var opt_trace string

	defaultConfig := "/etc/mirrorkeep.yaml"
	if homeDir, err := os.UserHomeDir(); err == nil {
		candidate := homeDir + "/.config/mirrorkeep.yaml"
		if _, err := os.Stat(candidate); err == nil {
			defaultConfig = candidate
		}
	}

	flag.StringVar(&opt_configfile, "config", defaultConfig, "configuration file")
	flag.BoolVar(&opt_info, "info", false, "enable informational messages")
	flag.StringVar(&opt_trace, "trace", "", "comma-separated list of subsystems to trace")
	flag.Parse()

	logger := logging.NewLogger(os.Stdout, os.Stderr)
	if opt_info {
		logger.EnableInfo()
	}
	if opt_trace != "" {
		logger.EnableTrace(opt_trace)
	}

	ctx := appcontext.NewAppContext()
	ctx.Logger = logger
	ctx.SetNumCPU(runtime.NumCPU())
	ctx.SetProcessID(os.Getpid())
	ctx.SetCommandLine(strings.Join(os.Args, " "))

	if hostname, err := os.Hostname(); err == nil {
		ctx.SetHostname(strings.ToLower(hostname))
	} else {
		ctx.SetHostname("localhost")
	}
	if pwUser, err := user.Current(); err == nil {
		ctx.SetUsername(pwUser.Username)
	}
	if cwd, err := os.Getwd(); err == nil {
		ctx.SetCWD(cwd)
	}
	ctx.SetMachineID(machineID(ctx.GetHostname()))

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: mirrorkeep [-config file] [-info] [-trace subsystems] command [args]")
		fmt.Fprintln(os.Stderr, "commands:")
		list := subcommands.List()
		sort.Strings(list)
		for _, command := range list {
			fmt.Fprintf(os.Stderr, "\t%s\n", command)
		}
		return 1
	}

	cfg, err := config.Load(opt_configfile)
	if err != nil {
		logger.Error("%s", err)
		return 1
	}
	if _, err := os.Stat(cfg.Root); err != nil {
		logger.Error("backup root: %s", err)
		return 1
	}
	if err := os.MkdirAll(cfg.StateDir, 0700); err != nil {
		logger.Error("state directory: %s", err)
		return 1
	}

	command, args := flag.Arg(0), flag.Args()[1:]
	exitCode, err := subcommands.Execute(ctx, cfg, command, args)
	if err != nil {
		logger.Error("%s", err)
	}
	return exitCode
}

// machineID reads the host's stable identifier, falling back to the
// hostname on systems without one.
func machineID(hostname string) string {
	data, err := os.ReadFile("/etc/machine-id")
	if err != nil {
		return hostname
	}
	return strings.TrimSpace(string(data))
}
