/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package events

import (
	"context"
	"testing"
	"time"

	"chainguard.dev/reviewpipe/pipeline"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestNATSServer(t *testing.T) *natsserver.Server {
	t.Helper()
	server, err := natsserver.NewServer(&natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	})
	require.NoError(t, err)

	go server.Start()
	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}
	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})
	return server
}

func TestPublishSubscribe(t *testing.T) {
	server := startTestNATSServer(t)
	ctx := context.Background()

	bus, err := Connect(server.ClientURL(), WithPrefix("test"))
	require.NoError(t, err)
	defer bus.Close()

	got := make(chan pipeline.Event, 4)
	unsubscribe, err := bus.Subscribe(ctx, "workers", func(_ context.Context, e pipeline.Event) error {
		got <- e
		return nil
	}, pipeline.EventTaskCreated, pipeline.EventTaskUpdated)
	require.NoError(t, err)
	defer unsubscribe()

	require.NoError(t, bus.Publish(ctx, pipeline.Event{Type: pipeline.EventTaskCreated, TaskID: 7}))
	// Not subscribed.
	require.NoError(t, bus.Publish(ctx, pipeline.Event{Type: pipeline.EventTaskCompleted, TaskID: 8}))
	require.NoError(t, bus.Publish(ctx, pipeline.Event{Type: pipeline.EventTaskUpdated, TaskID: 9}))

	var ids []int64
	for range 2 {
		select {
		case e := <-got:
			assert.False(t, e.At.IsZero())
			ids = append(ids, e.TaskID)
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
	assert.ElementsMatch(t, []int64{7, 9}, ids)

	select {
	case e := <-got:
		t.Errorf("unexpected event: %+v", e)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRawSubjectFormat(t *testing.T) {
	server := startTestNATSServer(t)

	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	ch := make(chan *nats.Msg, 1)
	sub, err := nc.ChanSubscribe("reviewpipe.task.completed", ch)
	require.NoError(t, err)
	defer sub.Unsubscribe()
	require.NoError(t, nc.Flush())

	bus, err := New(nc)
	require.NoError(t, err)
	require.NoError(t, bus.Publish(context.Background(), pipeline.Event{Type: pipeline.EventTaskCompleted, TaskID: 3}))

	select {
	case msg := <-ch:
		assert.Contains(t, string(msg.Data), `"type":"task.completed"`)
		assert.Contains(t, string(msg.Data), `"task_id":3`)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	server := startTestNATSServer(t)
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	_, err = New(nc, WithPrefix(""))
	assert.Error(t, err)
}

func TestRecorder(t *testing.T) {
	var r Recorder
	require.NoError(t, r.Publish(context.Background(), pipeline.Event{Type: pipeline.EventTaskUpdated, TaskID: 1}))
	evs := r.Events()
	require.Len(t, evs, 1)
	evs[0].TaskID = 99
	assert.Equal(t, int64(1), r.Events()[0].TaskID)
}
