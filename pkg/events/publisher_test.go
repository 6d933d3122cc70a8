package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sirh-sync/pkg/config"
)

func TestNewPublisherWithoutURLIsNop(t *testing.T) {
	pub, err := NewPublisher(config.NATSConfig{}, nil)
	require.NoError(t, err)
	_, ok := pub.(NopPublisher)
	assert.True(t, ok)
	assert.NoError(t, pub.Publish(context.Background(), "instance.no_change", map[string]string{"id": "i1"}))
	pub.Close()
}

func TestSubject(t *testing.T) {
	p := &NATSPublisher{prefix: "lms.sirh"}
	assert.Equal(t, "lms.sirh.instance.users_changed", p.Subject("instance.users_changed"))
}
