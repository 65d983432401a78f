package outbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestState_NumericEncodingIsStable(t *testing.T) {
	// These values are persisted to IntegrationEventLog.State; changing
	// them would silently corrupt existing rows' meaning.
	assert.Equal(t, State(0), NotPublished)
	assert.Equal(t, State(1), InProgress)
	assert.Equal(t, State(2), Published)
	assert.Equal(t, State(3), PublishedFailed)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "NotPublished", NotPublished.String())
	assert.Equal(t, "InProgress", InProgress.String())
	assert.Equal(t, "Published", Published.String())
	assert.Equal(t, "PublishedFailed", PublishedFailed.String())
	assert.Equal(t, "Unknown", State(99).String())
}
