package subcommands

import (
	"fmt"

	"github.com/mirrorkeep/mirrorkeep/appcontext"
	"github.com/mirrorkeep/mirrorkeep/config"
)

var subcommands map[string]func(*appcontext.AppContext, *config.Config, []string) int = make(map[string]func(*appcontext.AppContext, *config.Config, []string) int)

func Register(command string, fn func(*appcontext.AppContext, *config.Config, []string) int) {
	subcommands[command] = fn
}

func Execute(ctx *appcontext.AppContext, cfg *config.Config, command string, args []string) (int, error) {
	fn, exists := subcommands[command]
	if !exists {
		return 1, fmt.Errorf("unknown command: %s", command)
	}
	return fn(ctx, cfg, args), nil
}

func List() []string {
	var list []string
	for command := range subcommands {
		list = append(list, command)
	}
	return list
}
