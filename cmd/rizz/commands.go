package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/lox/rizz/internal/api"
	"github.com/lox/rizz/internal/forecast"
	"github.com/lox/rizz/internal/models"
	"github.com/lox/rizz/internal/settings"
	"github.com/lox/rizz/internal/theme"
)

type LocationsCmd struct{}

func (c *LocationsCmd) Run(rt *runtime) error {
	st, err := rt.loadSettings()
	if err != nil {
		return err
	}
	printLocations(rt.out, st.Locations())
	return nil
}

func printLocations(out io.Writer, locs []models.Location) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for i, l := range locs {
		fmt.Fprintf(w, "%d\t%s\t%.4f, %.4f\n", i+1, l.Name, l.Latitude, l.Longitude)
	}
	w.Flush()
}

type ThemesCmd struct{}

func (c *ThemesCmd) Run(rt *runtime) error {
	st, err := rt.loadSettings()
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(rt.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTEXT\tBACKGROUND\tDAY\tDAY BACKGROUND\tDAY TEXT")
	for _, t := range st.ColorThemes() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s (%d%%)\t%s\n", t.Name,
			theme.Hex(t.Text), theme.Hex(t.Background), theme.Hex(t.Day),
			theme.Hex(t.DayBackground), int(t.DayBackground.A)*100/255, theme.Hex(t.DayText))
	}
	return w.Flush()
}

type SearchCmd struct {
	Query []string `arg:"" help:"Place name."`
}

func (c *SearchCmd) Run(rt *runtime) error {
	st, err := rt.loadSettings()
	if err != nil {
		return err
	}
	features, err := st.Search(rt.ctx, strings.Join(c.Query, " "))
	if err != nil {
		return err
	}
	printFeatures(rt.out, features)
	return nil
}

func printFeatures(out io.Writer, features []models.Feature) {
	if len(features) == 0 {
		fmt.Fprintln(out, "no results")
		return
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for i, f := range features {
		fmt.Fprintf(w, "%d\t%s\t%s\n", i+1, f.Properties.DisplayName(), f.Properties.Info())
	}
	w.Flush()
}

type AddCmd struct {
	Query []string `arg:"" help:"Place name."`
	Pick  int      `help:"Which search result to add." default:"1"`
}

func (c *AddCmd) Run(rt *runtime) error {
	st, err := rt.loadSettings()
	if err != nil {
		return err
	}
	features, err := st.Search(rt.ctx, strings.Join(c.Query, " "))
	if err != nil {
		return err
	}
	if c.Pick < 1 || c.Pick > len(features) {
		printFeatures(rt.out, features)
		return fmt.Errorf("pick %d is not one of %d results", c.Pick, len(features))
	}
	f := features[c.Pick-1]
	next, added := settings.AddFeature(st.Locations(), f)
	if !added {
		rt.printf("%s is already listed\n", f.Properties.DisplayName())
		return nil
	}
	return rt.update(st, next)
}

type RemoveCmd struct {
	Name string `arg:"" help:"Location name."`
}

func (c *RemoveCmd) Run(rt *runtime) error {
	st, err := rt.loadSettings()
	if err != nil {
		return err
	}
	locs := st.Locations()
	i := settings.IndexOf(locs, c.Name)
	if i < 0 {
		return fmt.Errorf("unknown location %q", c.Name)
	}
	return rt.update(st, settings.Remove(locs, i))
}

type MoveCmd struct {
	Name     string `arg:"" help:"Location name."`
	Position int    `arg:"" help:"New position, starting at 1."`
}

func (c *MoveCmd) Run(rt *runtime) error {
	st, err := rt.loadSettings()
	if err != nil {
		return err
	}
	locs := st.Locations()
	i := settings.IndexOf(locs, c.Name)
	if i < 0 {
		return fmt.Errorf("unknown location %q", c.Name)
	}
	if c.Position < 1 || c.Position > len(locs) {
		return fmt.Errorf("position %d out of range 1..%d", c.Position, len(locs))
	}
	return rt.update(st, settings.Move(locs, i, c.Position-1))
}

func (rt *runtime) update(st *settings.Store, next []models.Location) error {
	sent, err := st.UpdateIfChanged(rt.ctx, next)
	if err != nil {
		return err
	}
	if !sent {
		rt.printf("no changes\n")
	} else if !settings.Equal(st.Locations(), next) {
		return fmt.Errorf("update not applied, settings are %s", st.State())
	}
	printLocations(rt.out, st.Locations())
	return nil
}

type ForecastCmd struct {
	Name    string `arg:"" optional:"" help:"Location name, all locations when omitted."`
	Samples bool   `short:"s" help:"Print every 3 hour sample."`
}

func (c *ForecastCmd) Run(rt *runtime) error {
	st, err := rt.loadSettings()
	if err != nil {
		return err
	}
	opts, err := rt.cfg.ForecastOptions()
	if err != nil {
		return err
	}

	if c.Name != "" {
		locs := st.Locations()
		i := settings.IndexOf(locs, c.Name)
		if i < 0 {
			return fmt.Errorf("unknown location %q", c.Name)
		}
		agg := rt.session.Aggregator(locs[i])
		if err := agg.Load(rt.ctx, locs[i], false); err != nil {
			return err
		}
		printDays(rt.out, locs[i], agg.Days(), opts, c.Samples)
		return nil
	}

	err = rt.session.Preload(rt.ctx)
	for _, lf := range rt.session.Forecasts() {
		if lf.Err != nil {
			rt.printf("%s: %v\n\n", lf.Location.Name, lf.Err)
			continue
		}
		printDays(rt.out, lf.Location, lf.Days, opts, c.Samples)
	}
	return err
}

func printDays(out io.Writer, loc models.Location, days []forecast.Day, opts forecast.Options, samples bool) {
	fmt.Fprintf(out, "%s\n", loc.Name)
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, d := range days {
		line := fmt.Sprintf("  %s\t%s\t%s", d.Name, d.Info[0], d.Info[1])
		if len(d.Sunrise) == 2 {
			line += fmt.Sprintf("\t↑ %s\t↓ %s", d.Sunrise[0], d.Sunrise[1])
		}
		fmt.Fprintln(w, line)
		if !samples {
			continue
		}
		for _, s := range d.Samples {
			fmt.Fprintf(w, "    %s\t%s\t%s\n", opts.Locale.SampleTime(s, opts.Location),
				opts.Locale.Temperature(s.Temps.Temp), s.Description())
		}
	}
	w.Flush()
	fmt.Fprintln(out)
}

type WatchCmd struct {
	Schedule string `help:"Refresh schedule, a cron expression or @every duration." default:"*/15 * * * *"`
	Listen   string `help:"HTTP listen address for health, JSON and metrics, empty to disable." default:":9090"`
}

func (c *WatchCmd) Run(rt *runtime) error {
	ctx, cancel := context.WithCancel(rt.ctx)
	defer cancel()

	if c.Listen != "" {
		opts, err := rt.cfg.ForecastOptions()
		if err != nil {
			return err
		}
		srv := api.NewServer(rt.session, c.Listen, opts)
		go func() {
			log.Printf("watch: serving on %s", c.Listen)
			if err := srv.Run(ctx); err != nil {
				log.Printf("watch: server: %v", err)
			}
		}()
	}
	return rt.session.Watch(ctx, c.Schedule)
}

type LogCmd struct {
	Limit    int    `help:"Number of entries." default:"20"`
	Errors   bool   `help:"Only failed calls."`
	Health   int    `help:"Print a daily summary of the last N days instead."`
	Cleanup  int    `help:"Delete stored payloads older than N days."`
	Payloads bool   `help:"Print stored payload totals per operation and the schema version."`
	Payload  string `help:"Print the stored payload with this sha256 hash."`
}

func (c *LogCmd) Run(rt *runtime) error {
	if rt.journal == nil {
		return errors.New("journal disabled")
	}
	ctx := rt.ctx
	w := tabwriter.NewWriter(rt.out, 0, 4, 2, ' ', 0)
	defer w.Flush()

	if c.Cleanup > 0 {
		n, err := rt.journal.CleanupOldRawPayloads(ctx, c.Cleanup)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "deleted %d payloads\n", n)
		return nil
	}

	if c.Payload != "" {
		p, err := rt.journal.GetRawPayloadByHash(ctx, c.Payload)
		if err != nil {
			return err
		}
		if p == nil {
			return fmt.Errorf("no payload with hash %s", c.Payload)
		}
		body, err := rt.journal.GetRawPayload(ctx, p.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s %s\n%s\n", p.FetchedAt.Local().Format(time.DateTime), p.Operation, body)
		return nil
	}

	if c.Payloads {
		version, err := rt.journal.MigrationVersion()
		if err != nil {
			return err
		}
		stats, err := rt.journal.GetRawPayloadStats(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "schema version %d, %d payloads, %d bytes compressed\n", version, stats.TotalCount, stats.TotalSizeBytes)
		fmt.Fprintln(w, "OPERATION\tCOUNT\tBYTES")
		ops := slices.Sorted(maps.Keys(stats.CountByOperation))
		for _, op := range ops {
			fmt.Fprintf(w, "%s\t%d\t%d\n", op, stats.CountByOperation[op], stats.SizeByOperation[op])
		}
		return nil
	}

	if c.Health > 0 {
		health, err := rt.journal.GetFetchHealth(ctx, c.Health)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "DATE\tOPERATION\tRUNS\tOK\tFAILED\tBYTES")
		for _, h := range health {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\n", h.Date, h.Operation, h.TotalRuns, h.SuccessRuns, h.FailedRuns, h.TotalBytes)
		}
		return nil
	}

	list := rt.journal.RecentFetchRuns
	if c.Errors {
		list = rt.journal.RecentFetchErrors
	}
	runs, err := list(ctx, c.Limit)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "STARTED\tOPERATION\tSTATUS\tDURATION\tURL")
	for _, r := range runs {
		dur := ""
		if r.FinishedAt.Valid {
			dur = r.FinishedAt.Time.Sub(r.StartedAt).Round(time.Millisecond).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.StartedAt.Local().Format(time.DateTime), r.Operation, r.Status, dur, r.URL)
		if r.ErrorMessage.Valid {
			fmt.Fprintf(w, "\t\t%s\n", r.ErrorMessage.String)
		}
	}
	return nil
}
