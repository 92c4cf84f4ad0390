package main

import (
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/zulandar/switchboard/internal/config"
	"github.com/zulandar/switchboard/internal/db"
	"github.com/zulandar/switchboard/internal/diagnostics"
	"github.com/zulandar/switchboard/internal/history"
	"github.com/zulandar/switchboard/internal/transport"
	"github.com/zulandar/switchboard/internal/transport/stompws"
	"gorm.io/gorm"
)

// transportFactory builds the session transport. Tests replace it.
var transportFactory = func(cfg *config.Config) (transport.Factory, error) {
	return stompws.Factory(stompws.AdapterOpts{
		ServerURL:      cfg.Server,
		Endpoint:       cfg.Transport.Endpoint,
		SockJS:         cfg.Transport.UseSockJS(),
		ReconnectDelay: cfg.Transport.ReconnectDelay(),
		HeartbeatSend:  cfg.Transport.HeartbeatSend(),
		HeartbeatRecv:  cfg.Transport.HeartbeatRecv(),
	})
}

// loadConfig reads configPath, or starts from defaults when it is empty,
// then applies a non-empty server override.
func loadConfig(configPath, server string) (*config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if server != "" {
		cfg.Server = server
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}
	return cfg, nil
}

func newLoader(cfg *config.Config) (*history.Loader, error) {
	return history.NewLoader(history.LoaderOpts{
		ServerURL: cfg.Server,
		Path:      cfg.History.Path,
		Timeout:   cfg.History.Timeout(),
	})
}

// openDiagnosticsDB connects to the configured diagnostics database. It
// returns nil when no driver is configured.
func openDiagnosticsDB(cfg config.DiagnosticsConfig) (*gorm.DB, error) {
	switch cfg.Driver {
	case "":
		return nil, nil
	case "sqlite":
		return db.OpenSQLite(cfg.Path)
	case "mysql":
		return db.Connect(cfg.User, cfg.Host, cfg.Port, cfg.Database)
	default:
		return nil, fmt.Errorf("unknown diagnostics driver %q", cfg.Driver)
	}
}

// closeDB closes the connection pool behind gormDB. Errors are logged.
func closeDB(gormDB *gorm.DB) {
	sqlDB, err := gormDB.DB()
	if err != nil {
		log.Printf("db: close: %v", err)
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Printf("db: close: %v", err)
	}
}

// openDiagnostics returns the recorder for a session: the standard logger,
// plus the database store when one is configured. The returned close func
// releases the database and is always safe to call.
func openDiagnostics(cfg config.DiagnosticsConfig) (diagnostics.Recorder, *diagnostics.Store, func(), error) {
	gormDB, err := openDiagnosticsDB(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	if gormDB == nil {
		return diagnostics.Logger{}, nil, func() {}, nil
	}
	store, err := diagnostics.NewStore(gormDB)
	if err != nil {
		closeDB(gormDB)
		return nil, nil, nil, err
	}
	return diagnostics.Multi{diagnostics.Logger{}, store}, store, func() { closeDB(gormDB) }, nil
}

// syncWriter serialises writes from the transcript printer, state observer
// and status reporter.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
