package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeverityLevel(t *testing.T) {
	assert.Equal(t, 4, SeverityCritical.Level())
	assert.Equal(t, 3, SeverityHigh.Level())
	assert.Equal(t, 2, SeverityMedium.Level())
	assert.Equal(t, 1, SeverityLow.Level())
	assert.Equal(t, 1, Severity("bogus").Level(), "unknown severities rank lowest")
}

func TestMaxSeverity(t *testing.T) {
	assert.Equal(t, SeverityCritical, MaxSeverity(SeverityLow, SeverityCritical))
	assert.Equal(t, SeverityHigh, MaxSeverity(SeverityHigh, SeverityMedium))
	assert.Equal(t, SeverityLow, MaxSeverity(SeverityLow, SeverityLow))
}

func TestEventTypeValid(t *testing.T) {
	for _, typ := range []EventType{EventClipboard, EventFileAccess, EventOCRDetection, EventFileDownload, EventDocumentPrint} {
		assert.True(t, typ.Valid(), string(typ))
	}
	assert.False(t, EventType("keystroke").Valid())
	assert.False(t, EventType("").Valid())
}

func TestSeverityValid(t *testing.T) {
	for _, s := range []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical} {
		assert.True(t, s.Valid(), string(s))
	}
	assert.False(t, Severity("urgent").Valid())
}
