package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEvents(t *testing.T) {
	events, err := decodeEvents([]byte(`["document.created","workflow.approve"]`))
	require.NoError(t, err)
	assert.Equal(t, []string{"document.created", "workflow.approve"}, events)
}

func TestDecodeEventsMalformed(t *testing.T) {
	_, err := decodeEvents([]byte(`{"not":"a list"`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode subscription events")
}

func TestGenerateSecretIsUnique(t *testing.T) {
	a, err := generateSecret()
	require.NoError(t, err)
	b, err := generateSecret()
	require.NoError(t, err)

	assert.Contains(t, a, "whsec_")
	assert.NotEqual(t, a, b)
}
