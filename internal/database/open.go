package database

import (
	"context"
	"sort"
	"sync"

	"github.com/koustreak/dataagent/internal/errs"
)

// OpenFunc connects to a database described by cfg.
type OpenFunc func(ctx context.Context, cfg *Config) (DB, error)

var (
	driversMu sync.RWMutex
	drivers   = map[Driver]OpenFunc{}
)

// Register makes a driver available to Open. Driver packages call it from
// init, so a binary links only the engines it imports.
func Register(name Driver, open OpenFunc) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[name] = open
}

// Drivers lists the registered driver names.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	out := make([]string, 0, len(drivers))
	for d := range drivers {
		out = append(out, string(d))
	}
	sort.Strings(out)
	return out
}

// Open validates cfg and connects through the registered driver.
func Open(ctx context.Context, cfg *Config) (DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	name, _ := ParseDriver(string(cfg.Driver))

	driversMu.RLock()
	open, ok := drivers[name]
	driversMu.RUnlock()
	if !ok {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "driver %q is not linked in (available: %v)", name, Drivers())
	}
	return open(ctx, cfg)
}
