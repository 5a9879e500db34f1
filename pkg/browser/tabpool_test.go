package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openclaim/excore/pkg/config"
	"github.com/openclaim/excore/pkg/ratelimit"
)

// newTestTabPool builds a pool without a real browser connection, enough
// to exercise backoff bookkeeping (Acquire/Release need a live Chrome
// target and are left to integration testing).
func newTestTabPool(maxTabs, decreaseStep int) *TabPool {
	return &TabPool{
		backoff:      ratelimit.NewBackoffState(maxTabs),
		decreaseStep: decreaseStep,
	}
}

func TestReportCaptchaStepDecreasesAndFloorsAtOne(t *testing.T) {
	p := newTestTabPool(2, 1)
	p.ReportCaptcha()
	p.ReportCaptcha()
	assert.Equal(t, 1, p.EffectiveLimit())
}

func TestReportForbiddenNeverAutoRecovers(t *testing.T) {
	p := newTestTabPool(3, 1)
	p.ReportForbidden()
	assert.Equal(t, 2, p.EffectiveLimit())

	// No amount of waiting/calling EffectiveLimit should lift the cap.
	for i := 0; i < 5; i++ {
		assert.Equal(t, 2, p.EffectiveLimit())
	}
}

func TestReportCaptchaAndForbiddenTrackDistinctCounters(t *testing.T) {
	p := newTestTabPool(4, 1)
	p.ReportCaptcha()
	p.ReportCaptcha()
	p.ReportForbidden()

	assert.Equal(t, 2, p.CaptchaCount())
	assert.Equal(t, 1, p.Forbidden403Count())
	assert.False(t, p.LastCaptchaTime().IsZero())
	assert.False(t, p.Last403Time().IsZero())
	assert.Equal(t, 1, p.EffectiveLimit())
}

func TestResetBackoffRestoresConfiguredLimit(t *testing.T) {
	p := newTestTabPool(4, 2)
	p.ReportCaptcha()
	assert.Equal(t, 2, p.EffectiveLimit())

	p.ResetBackoff()
	assert.Equal(t, 4, p.EffectiveLimit())
}

func TestRegistryConfigFieldsWireThrough(t *testing.T) {
	cfg := config.Config{Chrome: config.ChromeConfig{BasePort: 9200, ProfilePrefix: "excore-"}}
	r := NewRegistry(cfg)
	assert.Equal(t, 9200, r.cfg.Chrome.BasePort)
	assert.Equal(t, "excore-", r.cfg.Chrome.ProfilePrefix)
}
