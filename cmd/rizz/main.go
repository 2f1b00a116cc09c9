package main

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/lox/rizz/internal/config"
)

type CLI struct {
	Config     config.Config   `embed:""`
	ConfigFile kong.ConfigFlag `name:"config" help:"Load flags from a YAML file."`

	Locations LocationsCmd `cmd:"" help:"List configured locations."`
	Themes    ThemesCmd    `cmd:"" help:"List themes with resolved colors."`
	Search    SearchCmd    `cmd:"" help:"Search for a location by name."`
	Add       AddCmd       `cmd:"" help:"Search and add a location."`
	Remove    RemoveCmd    `cmd:"" help:"Remove a location."`
	Move      MoveCmd      `cmd:"" help:"Move a location to a new position."`
	Forecast  ForecastCmd  `cmd:"" help:"Print day forecasts."`
	Watch     WatchCmd     `cmd:"" help:"Keep forecasts fresh and serve metrics."`
	Log       LogCmd       `cmd:"" help:"Show the fetch journal."`
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("load .env: %v", err)
	}

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("rizz"),
		kong.Description("Multi-day forecasts for the locations in a remote settings document."),
		kong.UsageOnError(),
		kong.Configuration(config.YAML, "~/.config/rizz/config.yaml", "rizz.yaml"),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rt, err := newRuntime(ctx, cli.Config, os.Stdout)
	kctx.FatalIfErrorf(err)
	defer rt.Close()

	kctx.FatalIfErrorf(kctx.Run(rt))
}
