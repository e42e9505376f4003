package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectName(t *testing.T) {
	name, err := ObjectName("chat-files", "https://storage.googleapis.com/chat-files/threads/dm_1/a.png")
	require.NoError(t, err)
	assert.Equal(t, "threads/dm_1/a.png", name)

	_, err = ObjectName("chat-files", "https://storage.googleapis.com/other/threads/a.png")
	assert.Error(t, err)

	_, err = ObjectName("chat-files", "https://example.com/chat-files/a.png")
	assert.Error(t, err)

	_, err = ObjectName("chat-files", "https://storage.googleapis.com/chat-files/")
	assert.Error(t, err)
}

func TestExtension(t *testing.T) {
	assert.Equal(t, ".jpg", Extension("image/jpeg"))
	assert.Equal(t, ".pdf", Extension("application/pdf"))
	assert.Equal(t, ".bin", Extension("application/zip"))
}
