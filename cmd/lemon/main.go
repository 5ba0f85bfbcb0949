package main

import (
	"github.com/alecthomas/kong"
)

// version is set by ldflags during build
var version = "dev"

type CLI struct {
	Version kong.VersionFlag `short:"v" help:"Show version"`
	Server  ServerCmd        `cmd:"" help:"Run the roulette chat gateway"`
	Chat    ChatCmd          `cmd:"" help:"Join a scope as an interactive chat client"`
	History HistoryCmd       `cmd:"" help:"Print recently settled bets from the audit log"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("lemon"),
		kong.Description("LEMON roulette rounds for group chats"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": version,
		},
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
