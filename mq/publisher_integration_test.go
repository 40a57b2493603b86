//go:build integration

package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/dzoniops/condo-booking/models"
)

func startRabbit(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "rabbitmq:3.12-alpine",
			ExposedPorts: []string{"5672/tcp"},
			WaitingFor:   wait.ForLog("Server startup complete").WithStartupTimeout(90 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, nat.Port("5672/tcp"))
	require.NoError(t, err)
	return fmt.Sprintf("amqp://guest:guest@%s:%s/", host, port.Port())
}

func TestRabbitPublisherDeliversStatusChanges(t *testing.T) {
	url := startRabbit(t)
	pub, err := NewRabbitPublisher(url, "booking.exchange")
	require.NoError(t, err)
	defer pub.Close()

	conn, err := amqp.Dial(url)
	require.NoError(t, err)
	defer conn.Close()
	ch, err := conn.Channel()
	require.NoError(t, err)
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	require.NoError(t, err)
	require.NoError(t, ch.QueueBind(q.Name, "booking.*", "booking.exchange", false, nil))
	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, pub.PublishJSON(ctx, KeyBookingStatusChanged, BookingStatusChanged{
		BookingID: "b-1",
		From:      models.StatusConfirmed,
		To:        models.StatusCancelled,
		Reason:    "guest request",
	}))

	select {
	case d := <-deliveries:
		assert.Equal(t, KeyBookingStatusChanged, d.RoutingKey)
		assert.Equal(t, "application/json", d.ContentType)
		var ev BookingStatusChanged
		require.NoError(t, json.Unmarshal(d.Body, &ev))
		assert.Equal(t, models.StatusCancelled, ev.To)
		assert.Equal(t, "guest request", ev.Reason)
	case <-ctx.Done():
		t.Fatal("no delivery received")
	}
}
