package pagescript

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClockSkewParameterized(t *testing.T) {
	script := ClockSkew(365)
	assert.Contains(t, script, "365 * 24 * 60 * 60 * 1000")
	assert.Contains(t, script, "static now()")
	assert.Contains(t, script, "window.Date = SkewedDate")

	// deterministic for a given offset
	assert.Equal(t, script, ClockSkew(365))
	assert.NotEqual(t, script, ClockSkew(100))
}

func TestClockSkewPreservesStaticHelpers(t *testing.T) {
	script := ClockSkew(100)
	// parse and UTC must keep original semantics; only the zero-argument
	// constructor and now() are pinned
	assert.Contains(t, script, "OriginalDate.parse(str)")
	assert.Contains(t, script, "OriginalDate.UTC(...args)")
}

func TestClickShieldCoversViewport(t *testing.T) {
	script := ClickShield()
	assert.Contains(t, script, "position = 'fixed'")
	assert.Contains(t, script, "width = '100%'")
	assert.Contains(t, script, "height = '100%'")
	assert.Contains(t, script, "zIndex = '1000'")
	assert.Contains(t, script, "document.body.appendChild")
}
