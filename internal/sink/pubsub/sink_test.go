package pubsub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func newTopic(t *testing.T) (*pstest.Server, *pubsub.Topic) {
	t.Helper()
	ctx := context.Background()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(ctx, "project-id", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	topic, err := client.CreateTopic(ctx, "alerts")
	require.NoError(t, err)
	return srv, topic
}

func TestDeliverPublishesEachAlert(t *testing.T) {
	ctx := context.Background()
	srv, topic := newTopic(t)

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s, err := New(topic, fixedClock{t: now}, nil)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Deliver(ctx, []string{"first", "second"}))

	msgs := srv.Messages()
	require.Len(t, msgs, 2)

	var got []Message
	for _, m := range msgs {
		var decoded Message
		require.NoError(t, json.Unmarshal(m.Data, &decoded))
		require.Equal(t, "application/json", m.Attributes["content_type"])
		got = append(got, decoded)
	}
	require.ElementsMatch(t, []Message{
		{Alert: "first", Index: 0, BatchSize: 2, PublishedAt: now},
		{Alert: "second", Index: 1, BatchSize: 2, PublishedAt: now},
	}, got)
}

func TestDeliverCarriesTraceContext(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	srv, topic := newTopic(t)
	s, err := New(topic, nil, nil)
	require.NoError(t, err)
	defer s.Close()

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	require.NoError(t, s.Deliver(ctx, []string{"traced"}))

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01", msgs[0].Attributes["traceparent"])
	require.Equal(t, "application/json", msgs[0].Attributes["content_type"])
}

func TestNewRequiresTopic(t *testing.T) {
	t.Parallel()

	_, err := New(nil, nil, nil)
	require.Error(t, err)
}
