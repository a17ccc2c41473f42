package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishRecordsMessages(t *testing.T) {
	t.Parallel()

	p := New()
	id, err := p.Publish(context.Background(), "extractions", map[string]string{"domain": "acme.test"})
	require.NoError(t, err)
	assert.Equal(t, "memory-1", id)

	msgs := p.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "extractions", msgs[0].Topic)
}

func TestMessagesReturnsCopy(t *testing.T) {
	t.Parallel()

	p := New()
	_, err := p.Publish(context.Background(), "a", 1)
	require.NoError(t, err)

	msgs := p.Messages()
	msgs[0].Topic = "mutated"
	assert.Equal(t, "a", p.Messages()[0].Topic)
}
