package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSessionRekey(t *testing.T) {
	initMachine, respMachine := establishedPair(t)

	initDispatcher := NewDispatcher(4)
	defer initDispatcher.Close()
	respDispatcher := NewDispatcher(4)
	defer respDispatcher.Close()

	initRekeyed := make(chan struct{}, 1)
	respRekeyed := make(chan struct{}, 1)
	initDispatcher.Subscribe(EventRekeyed, func(Event) { initRekeyed <- struct{}{} })
	respDispatcher.Subscribe(EventRekeyed, func(Event) { respRekeyed <- struct{}{} })

	received := make(chan []byte, 1)
	respDispatcher.Subscribe(EventDataReceived, func(ev Event) { received <- ev.Payload })

	initiator, err := New(initMachine, Config{MaxAllocation: 1 << 20, Dispatcher: initDispatcher, KeepAliveInterval: -1})
	require.NoError(t, err)
	defer initiator.Disconnect()

	responder, err := New(respMachine, Config{MaxAllocation: 1 << 20, Dispatcher: respDispatcher, KeepAliveInterval: -1})
	require.NoError(t, err)
	defer responder.Disconnect()

	go initiator.Run()
	go responder.Run()

	require.NoError(t, initiator.Rekey())

	for _, ch := range []chan struct{}{initRekeyed, respRekeyed} {
		select {
		case <-ch:
		case <-time.After(2 * time.Second):
			t.Fatal("EventRekeyed never fired on one side")
		}
	}

	payload := []byte("still talking after the rekey")
	require.NoError(t, initiator.Send(payload))

	select {
	case got := <-received:
		require.Equal(t, payload, got)
	case <-time.After(2 * time.Second):
		t.Fatal("DataReceived never fired post-rekey")
	}
}

func TestSessionRekeyRejectsConcurrent(t *testing.T) {
	initMachine, _ := establishedPair(t)
	initiator, err := New(initMachine, Config{MaxAllocation: 1 << 20, KeepAliveInterval: -1})
	require.NoError(t, err)
	defer initiator.Disconnect()

	require.NoError(t, initiator.beginRekey())
	defer initiator.endRekey()

	require.ErrorIs(t, initiator.Rekey(), ErrRekeyInProgress)
}
