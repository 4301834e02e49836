package topic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopicBuilder(t *testing.T) {
	b := NewTopicBuilder("/campustrack/db/")

	assert.Equal(t, "campustrack/db/vehicles/v1", b.Record("vehicles/v1"))
	assert.Equal(t, "campustrack/db/vehicles/+", b.Children("vehicles"))
	assert.Equal(t, "campustrack/db/chats/#", b.Subtree("chats"))

	p, ok := b.Path("campustrack/db/vehicles/v1/location")
	assert.True(t, ok)
	assert.Equal(t, "vehicles/v1/location", p)

	_, ok = b.Path("other/vehicles/v1")
	assert.False(t, ok)

	assert.Equal(t, "v1", Key("campustrack/db/vehicles/v1"))
	assert.Equal(t, "solo", Key("solo"))
}

func TestTopicBuilderEmptyRoot(t *testing.T) {
	b := NewTopicBuilder("")
	assert.Equal(t, "users/u1", b.Record("users/u1"))
	p, ok := b.Path("users/u1")
	assert.True(t, ok)
	assert.Equal(t, "users/u1", p)
}
