package main

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/lox/rizz/internal/app"
	"github.com/lox/rizz/internal/config"
	"github.com/lox/rizz/internal/remote"
	"github.com/lox/rizz/internal/settings"
	"github.com/lox/rizz/internal/store"
)

// runtime is bound into every command's Run method.
type runtime struct {
	ctx     context.Context
	cfg     config.Config
	out     io.Writer
	client  *remote.Client
	journal *store.Store
	session *app.Session
}

func newRuntime(ctx context.Context, cfg config.Config, out io.Writer) (*runtime, error) {
	rt := &runtime{ctx: ctx, cfg: cfg, out: out}

	var recorder remote.Recorder
	if cfg.Journal != "" {
		journal, err := store.Open(cfg.Journal)
		if err != nil {
			return nil, err
		}
		rt.journal = journal
		recorder = journal
	}

	remoteCfg, err := cfg.RemoteConfig(recorder)
	if err != nil {
		rt.Close()
		return nil, err
	}
	if remoteCfg.AccessKey == "" {
		log.Printf("app: no access key in %s, settings requests are unauthenticated", cfg.AccessKeyFile)
	}
	rt.client = remote.NewClient(remoteCfg)

	fcOpts, err := cfg.ForecastOptions()
	if err != nil {
		rt.Close()
		return nil, err
	}
	st := settings.NewStore(rt.client, cfg.SettingsOptions())
	rt.session = app.NewSession(st, rt.client, fcOpts)
	return rt, nil
}

func (rt *runtime) Close() {
	if rt.journal != nil {
		if err := rt.journal.Close(); err != nil {
			log.Printf("store: close: %v", err)
		}
	}
}

// loadSettings loads the settings document or returns why it is not
// available.
func (rt *runtime) loadSettings() (*settings.Store, error) {
	st := rt.session.Settings()
	if err := st.Load(rt.ctx); err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if !st.Loaded() {
		return nil, app.ErrSettingsNotReady
	}
	return st, nil
}

func (rt *runtime) printf(format string, args ...any) {
	fmt.Fprintf(rt.out, format, args...)
}
