package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubject(t *testing.T) {
	assert.Equal(t, "notify.entry_notifications", Subject("entry_notifications"))
	assert.Equal(t, "notify.a_b_c", Subject("a.b c"))
	assert.Equal(t, "notify.__", Subject("*>"))
}

func TestDecodeNotification(t *testing.T) {
	n, err := DecodeNotification([]byte(`{"topic":"intruder_alerts","title":"Security Alert","body":"Unknown entry attempt.","image_url":"u","at":"2024-05-01T08:30:15Z"}`))
	require.NoError(t, err)
	assert.Equal(t, "intruder_alerts", n.Topic)
	assert.Equal(t, "u", n.ImageURL)

	_, err = DecodeNotification([]byte(`{"title":"x"}`))
	assert.Error(t, err)

	_, err = DecodeNotification([]byte(`not json`))
	assert.Error(t, err)
}
