package session

import (
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/modulexcite/cex/pkg/cipher"
	"github.com/modulexcite/cex/pkg/dtm/kex"
	"github.com/modulexcite/cex/pkg/primitive"
)

func sessionTestParams() *kex.Parameters {
	desc := cipher.Description{
		Engine:  primitive.AES,
		KeyBits: 256,
		IVBits:  128,
		Mode:    primitive.ModeCTR,
		Padding: primitive.PaddingPKCS7,
	}
	return &kex.Parameters{
		OID:                [16]byte{'X', '4', '1', 'R', 'N', 'T', '1', 'R', '1'},
		AuthPkeID:          primitive.X25519Box,
		PrimaryPkeID:       primitive.X25519Box,
		AuthSession:        desc,
		PrimarySession:     desc,
		RandomKind:         primitive.CSPRNG,
		PreAuthDigest:      primitive.SHA256,
		DomainSharedSecret: []byte("shared-domain-secret-for-session-tests"),
	}
}

func loopbackPipe(t *testing.T) (client, server net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	acceptCh := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		require.NoError(t, err)
		acceptCh <- c
	}()

	client, err = net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	server = <-acceptCh
	return client, server
}

// establishedPair drives two kex.Machines over a loopback socket to
// Established and returns both.
func establishedPair(t *testing.T) (*kex.Machine, *kex.Machine) {
	t.Helper()
	clientConn, serverConn := loopbackPipe(t)

	initIdentity := kex.Identity{Identity: []byte("initiator"), Session: sessionTestParams().PrimarySession}
	respIdentity := kex.Identity{Identity: []byte("responder"), Session: sessionTestParams().PrimarySession}

	initMachine, err := kex.NewMachine(kex.Initiator, sessionTestParams(), initIdentity, clientConn, 0, nil)
	require.NoError(t, err)
	respMachine, err := kex.NewMachine(kex.Responder, sessionTestParams(), respIdentity, serverConn, 0, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var initErr, respErr error
	wg.Add(2)
	go func() { defer wg.Done(); initErr = initMachine.Run() }()
	go func() { defer wg.Done(); respErr = respMachine.Run() }()
	wg.Wait()

	require.NoError(t, initErr)
	require.NoError(t, respErr)
	return initMachine, respMachine
}

func TestSessionSendRoundTrip(t *testing.T) {
	initMachine, respMachine := establishedPair(t)

	received := make(chan []byte, 1)
	dispatcher := NewDispatcher(4)
	defer dispatcher.Close()
	dispatcher.Subscribe(EventDataReceived, func(ev Event) {
		received <- ev.Payload
	})

	sender, err := New(initMachine, Config{MaxAllocation: 1 << 20})
	require.NoError(t, err)
	defer sender.Disconnect()

	receiver, err := New(respMachine, Config{MaxAllocation: 1 << 20, Dispatcher: dispatcher, KeepAliveInterval: -1})
	require.NoError(t, err)
	defer receiver.Disconnect()

	go receiver.Run()

	payload := []byte("hello from the initiator")
	require.NoError(t, sender.Send(payload))

	select {
	case got := <-received:
		require.Equal(t, payload, got)
	case <-time.After(2 * time.Second):
		t.Fatal("DataReceived never fired")
	}
}

func TestSessionSendFileRoundTrip(t *testing.T) {
	initMachine, respMachine := establishedPair(t)

	dir := t.TempDir()
	srcPath := filepath.Join(dir, "payload.bin")
	content := make([]byte, 200*1024+37)
	for i := range content {
		content[i] = byte(i * 7)
	}
	require.NoError(t, os.WriteFile(srcPath, content, 0o600))

	destPath := filepath.Join(dir, "received.bin")
	fileReceived := make(chan string, 1)
	dispatcher := NewDispatcher(4)
	defer dispatcher.Close()
	dispatcher.Subscribe(EventFileReceived, func(ev Event) {
		fileReceived <- ev.Path
	})

	sender, err := New(initMachine, Config{MaxAllocation: 10 << 20, ChunkSize: 64 * 1024})
	require.NoError(t, err)
	defer sender.Disconnect()

	receiver, err := New(respMachine, Config{
		MaxAllocation: 10 << 20,
		ChunkSize:     64 * 1024,
		Dispatcher:    dispatcher,
		KeepAliveInterval: -1,
		FileRequest: func(name string, total int64) (string, bool) {
			require.Equal(t, "payload.bin", name)
			require.Equal(t, int64(len(content)), total)
			return destPath, false
		},
	})
	require.NoError(t, err)
	defer receiver.Disconnect()

	go receiver.Run()

	require.NoError(t, sender.SendFile(srcPath))

	select {
	case path := <-fileReceived:
		require.Equal(t, destPath, path)
	case <-time.After(5 * time.Second):
		t.Fatal("FileReceived never fired")
	}

	got, err := os.ReadFile(destPath)
	require.NoError(t, err)
	require.Equal(t, content, got)
}

func TestSessionRequiresMaxAllocation(t *testing.T) {
	initMachine, _ := establishedPair(t)
	_, err := New(initMachine, Config{})
	require.ErrorIs(t, err, ErrMaxAllocationRequired)
}

func TestSessionSendFileRejectsOversize(t *testing.T) {
	initMachine, _ := establishedPair(t)
	sender, err := New(initMachine, Config{MaxAllocation: 10})
	require.NoError(t, err)
	defer sender.Disconnect()

	dir := t.TempDir()
	path := filepath.Join(dir, "too-big.bin")
	require.NoError(t, os.WriteFile(path, make([]byte, 1024), 0o600))

	err = sender.SendFile(path)
	require.ErrorIs(t, err, ErrPayloadTooLarge)
}
