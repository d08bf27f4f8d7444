package services

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisPublisher_Errors(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()
	pub := NewRedisPublisher(client)

	err := pub.Publish(context.Background(), "ride:1", make(chan int))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to marshal event for ride:1")

	err = pub.Publish(context.Background(), "ride:1", RideEvent{Type: EventRideCreated})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis publish to ride:1")
}

func TestRabbitMQNotifier_UnencodablePayload(t *testing.T) {
	n := &RabbitMQNotifier{exchange: "ride.notifications"}
	err := n.Notify(context.Background(), EventRideAccepted, make(chan int))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to marshal notification")
}
