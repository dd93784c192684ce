package kafka

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProducer_PublishRejectsUnencodablePayload(t *testing.T) {
	p := NewProducer([]string{"127.0.0.1:1"}, nil)
	defer p.Close()

	err := p.Publish(context.Background(), "reservation-events", "1", make(chan int))
	assert.ErrorContains(t, err, "failed to marshal payload")
}

func TestProducer_CheckConnection(t *testing.T) {
	p := NewProducer(nil, nil)
	assert.EqualError(t, p.CheckConnection(context.Background()), "no kafka brokers configured")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p = NewProducer([]string{"127.0.0.1:1"}, nil)
	assert.Error(t, p.CheckConnection(ctx))
}

func TestConsumer_CloseNil(t *testing.T) {
	var c *Consumer
	assert.NoError(t, c.Close())
}
