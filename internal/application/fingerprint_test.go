package application

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ericfisherdev/keyquota/internal/domain/model"
)

func TestFingerprint_Deterministic(t *testing.T) {
	env := model.Environment(testEnvironment)

	first := Fingerprint(env)
	second := Fingerprint(env)

	assert.Equal(t, first, second)
	assert.Len(t, first, 64, "hex-encoded SHA-256")
}

func TestFingerprint_ChangesWithEnvironment(t *testing.T) {
	env := model.Environment(testEnvironment)
	other := env
	other.Resolution = "80x24"

	assert.NotEqual(t, Fingerprint(env), Fingerprint(other))
}

func TestFingerprint_BlankAttributesUseFallback(t *testing.T) {
	withBlank := model.Environment(testEnvironment)
	withBlank.Processors = "  "
	withFallback := model.Environment(testEnvironment)
	withFallback.Processors = "unknown"

	assert.Equal(t, Fingerprint(withFallback), Fingerprint(withBlank))
}

func TestFingerprint_EmptyEnvironment(t *testing.T) {
	empty := Fingerprint(model.Environment{})

	assert.Equal(t, Fingerprint(model.Environment{
		UserAgent: "unknown", Locale: "unknown", ColorDepth: "unknown",
		Resolution: "unknown", TimezoneOffset: "unknown", Processors: "unknown",
	}), empty)
}
