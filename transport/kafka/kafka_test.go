package kafka

import (
	"testing"

	"github.com/Shopify/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Send hands messages to an async producer that encodes them later, on
// its own goroutine. Callers (the UDP receiver in particular) recycle
// their payload buffers as soon as Send returns, so the driver must not
// alias them.
func TestSendDoesNotAliasCallerBuffers(t *testing.T) {
	config := mocks.NewTestConfig()
	config.Producer.Return.Successes = true
	producer := mocks.NewAsyncProducer(t, config)
	producer.ExpectInputAndSucceed()

	d := &KafkaDriver{
		kafkaTopic: "ipfix-messages",
		producer:   producer,
	}

	key := []byte("203.0.113.7")
	data := []byte{0, 10, 0, 16, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	require.NoError(t, d.Send(key, data))

	// recycle the buffers before the producer gets to encode them
	for i := range key {
		key[i] = 0xff
	}
	for i := range data {
		data[i] = 0xff
	}

	msg := <-producer.Successes()
	sentKey, err := msg.Key.Encode()
	require.NoError(t, err)
	sentValue, err := msg.Value.Encode()
	require.NoError(t, err)
	assert.Equal(t, []byte("203.0.113.7"), sentKey)
	assert.Equal(t, []byte{0, 10, 0, 16, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, sentValue)

	require.NoError(t, producer.Close())
}
