package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/viper"

	"github.com/franz/lappi/internal/config"
	"github.com/franz/lappi/internal/events"
	"github.com/franz/lappi/internal/files"
	"github.com/franz/lappi/internal/folders"
	"github.com/franz/lappi/internal/library"
	"github.com/franz/lappi/internal/notify"
	"github.com/franz/lappi/internal/store"
	"github.com/franz/lappi/internal/util"
)

// app is the wired collection a command works on
type app struct {
	cfg *config.Config
	st  *store.Store
	bus *events.Bus
	db  *notify.Coalescer
	h   *folders.Hierarchy
	reg *files.Registry
	lib *library.Library
}

// openApp loads the configuration and opens the collection
func openApp() (*app, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}
	cfg.ApplyLogging()

	util.DebugLog("Opening database: %s", cfg.DB)
	st, err := store.OpenWithOptions(cfg.DB, cfg.StoreOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	bus := events.NewBus()
	db := notify.New(st, bus)
	h := folders.New(db)
	reg := files.New(&files.Config{
		Store:      st,
		Root:       cfg.Storage.Root,
		Persistent: cfg.Storage.Persistent,
		Retry:      cfg.RetryPolicy(),
	})
	if !cfg.Storage.Persistent {
		util.WarnLog("Ephemeral mode: files under %s are not touched", cfg.Storage.Root)
	}

	return &app{
		cfg: cfg,
		st:  st,
		bus: bus,
		db:  db,
		h:   h,
		reg: reg,
		lib: library.New(db, h, reg),
	}, nil
}

func (a *app) Close() error {
	a.bus.Close()
	return a.st.Close()
}

// withApp runs fn on an opened collection
func withApp(fn func(a *app) error) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func parseID(s, what string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("invalid %s id %q", what, s)
	}
	return id, nil
}
