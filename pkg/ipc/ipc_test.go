package ipc

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogLevelStrings(t *testing.T) {
	assert.Equal(t, "DEBUG", LogDebug.String())
	assert.Equal(t, "INFO", LogInfo.String())
	assert.Equal(t, "WARNING", LogWarning.String())
	assert.Equal(t, "ERROR", LogError.String())
	assert.Equal(t, "NONE", LogNone.String())

	assert.Equal(t, LogDebug, LogLevelFromString("debug"))
	assert.Equal(t, LogInfo, LogLevelFromString("Info"))
	assert.Equal(t, LogWarning, LogLevelFromString("WARNING"))
	assert.Equal(t, LogError, LogLevelFromString("error"))
	assert.Equal(t, LogNone, LogLevelFromString("bogus"))
}

func TestNextHandleSkipsZeroAndResponseFlag(t *testing.T) {
	var b connectionBase
	b.initBase("")

	assert.Equal(t, Handle(1), b.nextHandle())
	assert.Equal(t, Handle(2), b.nextHandle())

	b.lastHandle.Store(uint32(ResponseFlag) - 1)
	h := b.nextHandle()
	assert.Equal(t, Handle(1), h)
	assert.Zero(t, h&ResponseFlag)
	assert.NotZero(t, h)
}

func TestOnLogLevelDefaulting(t *testing.T) {
	c := NewClientConnectionTCP(":9399")
	defer c.Close()

	assert.Equal(t, LogNone, c.getLogLevel())

	c.OnLog(func(LogLevel, string, string) {}, LogNone)
	assert.Equal(t, LogWarning, c.getLogLevel())

	c.OnLog(func(LogLevel, string, string) {}, LogDebug)
	assert.Equal(t, LogDebug, c.getLogLevel())

	// An explicit None leaves the previously chosen level alone.
	c.OnLog(func(LogLevel, string, string) {}, LogNone)
	assert.Equal(t, LogDebug, c.getLogLevel())
}

func TestInvokedHandlersAreMutuallyExclusive(t *testing.T) {
	c := NewClientConnectionTCP(":9399")
	defer c.Close()

	c.OnInvokedImmediate(func(message Payload) Payload { return message })
	assert.NotNil(t, c.invokedImmediateHandler)

	c.OnInvokedPromiseID(func(Handle, Handle, Payload) {})
	assert.NotNil(t, c.invokedPromiseIDHandler)
	assert.Nil(t, c.invokedImmediateHandler)
	assert.Nil(t, c.invokedCallbackHandler)

	c.OnInvokedCallback(func(Payload, ResultCallback) {})
	assert.NotNil(t, c.invokedCallbackHandler)
	assert.Nil(t, c.invokedPromiseIDHandler)
	assert.Nil(t, c.invokedImmediateHandler)
}

func TestPipeNameForEndpoint(t *testing.T) {
	if runtime.GOOS == "windows" {
		assert.Equal(t, `\\.\pipe\demo`, pipeNameForEndpoint("demo"))
	} else {
		assert.Equal(t, "/tmp/demo", pipeNameForEndpoint("demo"))
	}
	assert.Equal(t, "", pipeNameForEndpoint(""))
}
