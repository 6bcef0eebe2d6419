package server

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/server/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	c := &config.Config{}
	c.LoadDefaults()
	c.EndpointAddrHTTP = "127.0.0.1:0"
	c.EndpointAddrGRPC = "127.0.0.1:0"
	c.DatabaseDriver = config.DriverSQLite
	c.DatabaseDSN = "file:" + t.Name() + "?mode=memory&cache=shared"
	c.SecretKey = strings.Repeat("k", config.MinSecretKeyLength)
	c.LogFormat = "json"
	return c
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	app, err := NewApp(context.Background(), testConfig(t), io.Discard)
	require.NoError(t, err)
	defer app.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	time.Sleep(150 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop after cancel")
	}
}

func TestApp_RunReportsTransportFailure(t *testing.T) {
	c := testConfig(t)
	c.EndpointAddrGRPC = "127.0.0.1:99999"

	app, err := NewApp(context.Background(), c, io.Discard)
	require.NoError(t, err)
	defer app.Close()

	done := make(chan error, 1)
	go func() { done <- app.Run(context.Background()) }()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "grpc")
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop after transport failure")
	}
}

func TestNewApp_BadLogLevel(t *testing.T) {
	c := testConfig(t)
	c.LogLevel = "loud"

	_, err := NewApp(context.Background(), c, io.Discard)
	require.Error(t, err)
}
