// Package browser implements the browser-SERP concurrency model spec.md
// §4.6 describes: a per-worker TabPool bounding concurrent Chrome tabs,
// and an EngineRateLimiter bounding per-SERP-engine request rate. Unlike
// pkg/ratelimit's academic limiter, backoff here never auto-recovers —
// a human (or an explicit reset_backoff call) is the only way back up.
//
// Grounded on the teacher's browser automation example
// (theRebelliousNerd-codenerd's internal/browser/session_manager.go):
// launcher.New().Bin(...).Headless(...), rod.New().ControlURL(...).Connect().
package browser

import (
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"

	"github.com/openclaim/excore/pkg/config"
)

// launchChrome starts a dedicated Chrome instance on the worker's
// isolated debugging port and user-data-dir, per spec.md §4.6 "Worker
// isolation": one Chrome process, port, and profile directory per
// worker id, so a crash or CAPTCHA on one worker cannot affect another.
func launchChrome(cfg config.ChromeConfig, workerID int) (*rod.Browser, error) {
	port := cfg.BasePort + workerID
	profile := fmt.Sprintf("%s%02d", cfg.ProfilePrefix, workerID)

	l := launcher.New().
		Set("remote-debugging-port", fmt.Sprintf("%d", port)).
		Set("user-data-dir", profile).
		Headless(true)

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("browser: launching chrome for worker %d: %w", workerID, err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("browser: connecting to chrome for worker %d: %w", workerID, err)
	}
	return b, nil
}
