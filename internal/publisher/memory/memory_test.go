package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublish(t *testing.T) {
	t.Parallel()

	p := New()
	id, err := p.Publish(context.Background(), "detect-results", map[string]string{"title": "Dune"})
	require.NoError(t, err)
	require.Equal(t, "mem-1", id)

	messages := p.Messages()
	require.Len(t, messages, 1)
	require.Equal(t, "detect-results", messages[0].Topic)
	require.JSONEq(t, `{"title":"Dune"}`, string(messages[0].Payload))
}

func TestPublishUnmarshalablePayload(t *testing.T) {
	t.Parallel()

	p := New()
	_, err := p.Publish(context.Background(), "detect-results", func() {})
	require.Error(t, err)
	require.Empty(t, p.Messages())
}
