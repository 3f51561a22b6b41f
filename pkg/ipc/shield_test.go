package ipc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShieldAcquireWhileAlive(t *testing.T) {
	s := newLambdaShield()
	require.True(t, s.acquire())
	s.release()
	s.drain()
	assert.False(t, s.acquire())
}

func TestShieldDrainWaitsForHolders(t *testing.T) {
	s := newLambdaShield()
	require.True(t, s.acquire())

	released := make(chan struct{})
	drained := make(chan struct{})
	go func() {
		s.drain()
		close(drained)
	}()

	select {
	case <-drained:
		t.Fatal("drain returned while a holder was still active")
	case <-time.After(20 * time.Millisecond):
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		s.release()
		close(released)
	}()

	select {
	case <-drained:
	case <-time.After(time.Second):
		t.Fatal("drain did not return after the holder released")
	}
	<-released
}

func TestShieldDrainIdempotent(t *testing.T) {
	s := newLambdaShield()
	s.drain()
	s.drain()
	assert.False(t, s.acquire())
}
