package kex

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/modulexcite/cex/pkg/cipher"
	"github.com/modulexcite/cex/pkg/primitive"
)

func testParams() *Parameters {
	session := testSessionDescription()
	return &Parameters{
		OID:                [16]byte{'X', '4', '1', 'R', 'N', 'T', '1', 'R', '1'},
		AuthPkeID:          primitive.X25519Box,
		PrimaryPkeID:       primitive.X25519Box,
		AuthSession:        session,
		PrimarySession:     session,
		RandomKind:         primitive.CSPRNG,
		PreAuthDigest:      primitive.SHA256,
		DomainSharedSecret: []byte("shared-domain-secret-for-testing"),
		PaddingBounds:      PaddingBounds{},
		DelayBounds:        DelayBounds{},
	}
}

func testSessionDescription() cipher.Description {
	return cipher.Description{
		Engine:  primitive.AES,
		KeyBits: 256,
		IVBits:  128,
		Mode:    primitive.ModeCTR,
		Padding: primitive.PaddingPKCS7,
	}
}

func TestDtmKexLoopbackHappyPath(t *testing.T) {
	clientConn, serverConn := loopbackPipe(t)

	initIdentity := Identity{Identity: []byte("initiator"), PkeID: []byte("x25519"), Session: testSessionDescription()}
	respIdentity := Identity{Identity: []byte("responder"), PkeID: []byte("x25519"), Session: testSessionDescription()}

	initMachine, err := NewMachine(Initiator, testParams(), initIdentity, clientConn, 0, nil)
	require.NoError(t, err)
	respMachine, err := NewMachine(Responder, testParams(), respIdentity, serverConn, 0, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var initErr, respErr error
	wg.Add(2)
	go func() { defer wg.Done(); initErr = initMachine.Run() }()
	go func() { defer wg.Done(); respErr = respMachine.Run() }()
	wg.Wait()

	require.NoError(t, initErr)
	require.NoError(t, respErr)
	require.Equal(t, Established, initMachine.Phase())
	require.Equal(t, Established, respMachine.Phase())

	plaintext := make([]byte, 32)
	for i := range plaintext {
		plaintext[i] = byte(i)
	}
	ciphertext := make([]byte, len(plaintext))
	require.NoError(t, initMachine.ForwardCipher().Transform(plaintext, ciphertext))
	recovered := make([]byte, len(ciphertext))
	require.NoError(t, respMachine.ReturnCipher().Transform(ciphertext, recovered))
	require.Equal(t, plaintext, recovered)

	initKeyCopy := append([]byte(nil), initMachine.primary.forward.Key()...)
	require.NotZero(t, sumBytes(initKeyCopy))

	require.NoError(t, initMachine.Disconnect())
	require.NoError(t, respMachine.Disconnect())

	require.Equal(t, Closed, initMachine.Phase())
	require.Equal(t, Closed, respMachine.Phase())
}

// loopbackPipe returns a connected pair of real TCP sockets over
// loopback. Unlike net.Pipe, kernel socket buffers let both sides write
// their first frame before either reads, matching how two independent
// DTM-KEX endpoints actually exchange traffic.
func loopbackPipe(t *testing.T) (client, server net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	acceptCh := make(chan net.Conn, 1)
	acceptErrCh := make(chan error, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			acceptErrCh <- err
			return
		}
		acceptCh <- c
	}()

	client, err = net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)

	select {
	case server = <-acceptCh:
	case err := <-acceptErrCh:
		t.Fatalf("accept failed: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("accept timed out")
	}
	return client, server
}

func sumBytes(b []byte) int {
	s := 0
	for _, v := range b {
		s += int(v)
	}
	return s
}

func TestDtmKexPeerRefusalClosesBothSides(t *testing.T) {
	clientConn, serverConn := loopbackPipe(t)
	defer clientConn.Close()
	defer serverConn.Close()

	initIdentity := Identity{Identity: []byte("initiator"), Session: testSessionDescription()}
	respIdentity := Identity{Identity: []byte("responder"), Session: testSessionDescription()}

	initDispatch := NewDispatcher(4)
	defer initDispatch.Close()
	respDispatch := NewDispatcher(4)
	defer respDispatch.Close()

	respCancelled := make(chan struct{})
	respDispatch.Subscribe(EventIdentityReceived, func(ev Event) {
		ev.Cancel.Notify()
		close(respCancelled)
	})

	initMachine, err := NewMachine(Initiator, testParams(), initIdentity, clientConn, 0, initDispatch)
	require.NoError(t, err)
	respMachine, err := NewMachine(Responder, testParams(), respIdentity, serverConn, 0, respDispatch)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var initErr, respErr error
	wg.Add(2)
	go func() { defer wg.Done(); initErr = initMachine.Run() }()
	go func() { defer wg.Done(); respErr = respMachine.Run() }()
	wg.Wait()

	select {
	case <-respCancelled:
	case <-time.After(time.Second):
		t.Fatal("identity-received handler never fired")
	}

	require.Error(t, initErr)
	require.Error(t, respErr)
	require.Equal(t, Closed, initMachine.Phase())
	require.Equal(t, Closed, respMachine.Phase())
}
