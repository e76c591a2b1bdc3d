package agent

import (
	"context"
	"strings"
	"time"

	"github.com/koustreak/dataagent/internal/logger"
)

// StartupConfig controls boot-time discovery.
type StartupConfig struct {
	AutoDiscover bool
	// ScanPackages is a comma-separated scope list.
	ScanPackages string
	// Delay is waited out before the first scan so the store can come up.
	Delay time.Duration
}

// StartupReport summarises one startup run.
type StartupReport struct {
	Ran        bool
	Scopes     []string
	Discovered int
	Failed     map[string]string // scope -> reason
}

// StartupRunner performs the initial discovery. It never fails its host:
// problems are logged and reported, never returned.
type StartupRunner struct {
	svc   *Service
	cfg   StartupConfig
	log   *logger.Logger
	sleep func(time.Duration)
}

// NewStartupRunner creates a runner learning into svc.
func NewStartupRunner(svc *Service, cfg StartupConfig, log *logger.Logger) *StartupRunner {
	if log == nil {
		log = logger.Nop()
	}
	return &StartupRunner{svc: svc, cfg: cfg, log: log.Component("startup"), sleep: time.Sleep}
}

// SplitScopes splits a comma-separated list, dropping blanks.
func SplitScopes(list string) []string {
	var out []string
	for _, s := range strings.Split(list, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Run scans every configured scope in turn. A failing scope is logged and
// the rest are still scanned.
func (r *StartupRunner) Run(ctx context.Context) StartupReport {
	report := StartupReport{Failed: map[string]string{}}

	if !r.cfg.AutoDiscover {
		r.log.Info("auto-discovery is disabled")
		return report
	}
	scopes := SplitScopes(r.cfg.ScanPackages)
	if len(scopes) == 0 {
		r.log.Info("no packages configured for auto-discovery")
		return report
	}

	if r.cfg.Delay > 0 {
		r.log.Infof("waiting %s before auto-discovery", r.cfg.Delay)
		r.sleep(r.cfg.Delay)
	}

	report.Ran = true
	report.Scopes = scopes
	r.log.InfoWith("starting auto-discovery", map[string]any{"scopes": strings.Join(scopes, ", ")})

	for _, scope := range scopes {
		found, err := r.discover(ctx, scope)
		if err != nil {
			report.Failed[scope] = err.Error()
			r.log.ErrorWith("auto-discovery failed for scope", err, map[string]any{"scope": scope})
			continue
		}
		report.Discovered += found
	}

	r.log.InfoWith("auto-discovery completed", map[string]any{
		"discovered": report.Discovered,
		"failed":     len(report.Failed),
		"registered": r.svc.Count(),
	})
	return report
}

func (r *StartupRunner) discover(ctx context.Context, scope string) (n int, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = panicError{p}
		}
	}()
	found, err := r.svc.DiscoverAndLearn(ctx, scope, false)
	return len(found), err
}

type panicError struct{ v any }

func (p panicError) Error() string {
	if e, ok := p.v.(error); ok {
		return "panic: " + e.Error()
	}
	if s, ok := p.v.(string); ok {
		return "panic: " + s
	}
	return "panic during discovery"
}
