package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReport(t *testing.T) {
	id, status, err := parseReport([]byte(`{"prompt_id":"p1","status":"in-progress: 40%"}`))
	require.NoError(t, err)
	assert.Equal(t, "p1", id)
	assert.Equal(t, "in-progress: 40%", status)

	// An empty status is still a status.
	_, status, err = parseReport([]byte(`{"prompt_id":"p1","status":""}`))
	require.NoError(t, err)
	assert.Empty(t, status)

	for name, raw := range map[string]string{
		"not json":       `hello`,
		"missing id":     `{"status":"complete"}`,
		"blank id":       `{"prompt_id":"  ","status":"complete"}`,
		"missing status": `{"prompt_id":"p1"}`,
		"wrong type":     `{"prompt_id":5,"status":"complete"}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, _, err := parseReport([]byte(raw))
			assert.ErrorIs(t, err, errMalformed)
		})
	}
}
