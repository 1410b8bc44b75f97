package influxdb

import (
	"context"
	"errors"
	"testing"

	"github.com/verdantcl/greenhouse-core/internal/infrastructure/config"
)

func TestConnectDisabled(t *testing.T) {
	cfg := config.InfluxDBConfig{Enabled: false}

	client, err := Connect(cfg)
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("expected ErrDisabled, got %v", err)
	}
	if client != nil {
		t.Error("expected nil client when disabled")
	}
}

func TestCloseDisconnected(t *testing.T) {
	c := &Client{}
	if err := c.Close(); err != nil {
		t.Errorf("Close on disconnected client: %v", err)
	}
}

func TestHealthCheckDisconnected(t *testing.T) {
	c := &Client{}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestWritesNoOpWhenDisconnected(t *testing.T) {
	// Disconnected clients silently drop points. Must not panic.
	c := &Client{}
	c.WriteSensorReading("zone-1", 22.5, 61.0)
	c.WriteActivation("zone-1", "irrigation", true)
	c.WritePoint("custom", map[string]string{"k": "v"}, map[string]interface{}{"f": 1.0})
	c.Flush()
}

func TestIsConnectedZeroValue(t *testing.T) {
	c := &Client{}
	if c.IsConnected() {
		t.Error("zero-value client should not report connected")
	}
}
