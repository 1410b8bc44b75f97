package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/verdantcl/greenhouse-core/internal/facility"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type mockSubscriber struct {
	topic   string
	handler func(topic string, payload []byte) error
}

func (s *mockSubscriber) Subscribe(topic string, _ byte, handler func(string, []byte) error) error {
	s.topic = topic
	s.handler = handler
	return nil
}

func (s *mockSubscriber) Unsubscribe(string) error { return nil }

type stubCrops struct {
	crops map[string]*facility.Crop
}

func (s *stubCrops) GetCurrentCrop(_ context.Context, zoneID string) (*facility.Crop, error) {
	crop, ok := s.crops[zoneID]
	if !ok {
		return nil, facility.ErrNoCurrentCrop
	}
	return crop, nil
}

type mockNotifier struct {
	mu    sync.Mutex
	kinds []string
}

func (n *mockNotifier) Notify(_ context.Context, kind, _, _, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.kinds = append(n.kinds, kind)
	return nil
}

type mockHub struct {
	mu     sync.Mutex
	events []map[string]any
}

func (h *mockHub) Broadcast(_ string, payload any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m, ok := payload.(map[string]any); ok {
		h.events = append(h.events, m)
	}
}

type mockTSDB struct {
	mu     sync.Mutex
	writes int
}

func (t *mockTSDB) WriteSensorReading(string, float64, float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writes++
}

func tomatoCrop() *facility.Crop {
	return &facility.Crop{
		ID:          "crop-tomato",
		Name:        "Tomato",
		State:       facility.CropActive,
		TempMin:     18, TempMax: 28,
		HumidityMin: 40, HumidityMax: 70,
	}
}

func newTestMonitor(t *testing.T, opts ...Option) (*Monitor, *mockSubscriber) {
	t.Helper()
	sub := &mockSubscriber{}
	crops := &stubCrops{crops: map[string]*facility.Crop{"zone-a": tomatoCrop()}}
	m := NewMonitor(sub, crops, opts...)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return m, sub
}

func TestStart_SubscribesToReadingPattern(t *testing.T) {
	_, sub := newTestMonitor(t)
	if sub.topic != "greenhouse/sensor/+/reading" {
		t.Errorf("subscribed topic = %q", sub.topic)
	}
	if sub.handler == nil {
		t.Fatal("no handler registered")
	}
}

func TestHandleReading_BandTransitions(t *testing.T) {
	notifier := &mockNotifier{}
	m, sub := newTestMonitor(t, WithNotifier(notifier))

	// In band: no notification.
	if err := sub.handler("greenhouse/sensor/zone-a/reading",
		[]byte(`{"temperature": 22.5, "humidity": 55}`)); err != nil {
		t.Fatalf("in-band reading failed: %v", err)
	}
	if len(notifier.kinds) != 0 {
		t.Fatalf("kinds = %v, want none", notifier.kinds)
	}

	// Out of band: one alert.
	if err := sub.handler("greenhouse/sensor/zone-a/reading",
		[]byte(`{"temperature": 35.0, "humidity": 55}`)); err != nil {
		t.Fatalf("out-of-band reading failed: %v", err)
	}
	if !m.OutOfBand("zone-a") {
		t.Error("OutOfBand = false after out-of-band reading")
	}

	// Still out of band: no repeat alert.
	if err := sub.handler("greenhouse/sensor/zone-a/reading",
		[]byte(`{"temperature": 36.0}`)); err != nil {
		t.Fatalf("repeat reading failed: %v", err)
	}

	// Back in band: one info.
	if err := sub.handler("greenhouse/sensor/zone-a/reading",
		[]byte(`{"temperature": 24.0, "humidity": 50}`)); err != nil {
		t.Fatalf("recovery reading failed: %v", err)
	}
	if m.OutOfBand("zone-a") {
		t.Error("OutOfBand = true after recovery")
	}

	want := []string{"sensor_alert", "sensor_info"}
	if len(notifier.kinds) != len(want) {
		t.Fatalf("kinds = %v, want %v", notifier.kinds, want)
	}
	for i, k := range want {
		if notifier.kinds[i] != k {
			t.Errorf("kinds[%d] = %q, want %q", i, notifier.kinds[i], k)
		}
	}
}

func TestHandleReading_HumidityBand(t *testing.T) {
	notifier := &mockNotifier{}
	_, sub := newTestMonitor(t, WithNotifier(notifier))

	if err := sub.handler("greenhouse/sensor/zone-a/reading",
		[]byte(`{"humidity": 85}`)); err != nil {
		t.Fatalf("reading failed: %v", err)
	}
	if len(notifier.kinds) != 1 || notifier.kinds[0] != "sensor_alert" {
		t.Errorf("kinds = %v, want [sensor_alert]", notifier.kinds)
	}
}

func TestHandleReading_NoCurrentCrop(t *testing.T) {
	notifier := &mockNotifier{}
	hub := &mockHub{}
	m, sub := newTestMonitor(t, WithNotifier(notifier), WithHub(hub))

	// zone-b has no current crop: broadcast happens, no band verdict.
	if err := sub.handler("greenhouse/sensor/zone-b/reading",
		[]byte(`{"temperature": 99}`)); err != nil {
		t.Fatalf("reading failed: %v", err)
	}
	if len(notifier.kinds) != 0 {
		t.Errorf("kinds = %v, want none without a crop", notifier.kinds)
	}
	if len(hub.events) != 1 {
		t.Fatalf("hub events = %d, want 1", len(hub.events))
	}
	if _, tagged := hub.events[0]["in_band"]; tagged {
		t.Error("band verdict present without a crop")
	}
	if m.OutOfBand("zone-b") {
		t.Error("OutOfBand = true without a crop")
	}
}

func TestHandleReading_BroadcastCarriesVerdict(t *testing.T) {
	hub := &mockHub{}
	_, sub := newTestMonitor(t, WithHub(hub))

	if err := sub.handler("greenhouse/sensor/zone-a/reading",
		[]byte(`{"temperature": 35}`)); err != nil {
		t.Fatalf("reading failed: %v", err)
	}
	if len(hub.events) != 1 {
		t.Fatalf("hub events = %d, want 1", len(hub.events))
	}
	event := hub.events[0]
	if event["zone_id"] != "zone-a" {
		t.Errorf("zone_id = %v", event["zone_id"])
	}
	if event["in_band"] != false {
		t.Errorf("in_band = %v, want false", event["in_band"])
	}
	if event["crop_id"] != "crop-tomato" {
		t.Errorf("crop_id = %v", event["crop_id"])
	}
}

func TestHandleReading_PersistThrottle(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)}
	tsdb := &mockTSDB{}
	_, sub := newTestMonitor(t,
		WithClock(clock), WithTSDB(tsdb), WithPersistInterval(15*time.Minute))

	payload := []byte(`{"temperature": 22, "humidity": 55}`)
	topic := "greenhouse/sensor/zone-a/reading"

	for i := 0; i < 3; i++ {
		if err := sub.handler(topic, payload); err != nil {
			t.Fatalf("reading %d failed: %v", i, err)
		}
	}
	if tsdb.writes != 1 {
		t.Errorf("writes = %d, want 1 within the interval", tsdb.writes)
	}

	clock.Set(clock.Now().Add(16 * time.Minute))
	if err := sub.handler(topic, payload); err != nil {
		t.Fatalf("reading after interval failed: %v", err)
	}
	if tsdb.writes != 2 {
		t.Errorf("writes = %d, want 2 after the interval elapsed", tsdb.writes)
	}
}

func TestHandleReading_Malformed(t *testing.T) {
	_, sub := newTestMonitor(t)

	tests := []struct {
		name    string
		topic   string
		payload string
		wantErr error
	}{
		{"bad topic", "greenhouse/activation/irrigation", `{"temperature": 22}`, ErrMalformedTopic},
		{"empty zone", "greenhouse/sensor//reading", `{"temperature": 22}`, ErrMalformedTopic},
		{"not json", "greenhouse/sensor/zone-a/reading", `temp=22`, ErrMalformedReading},
		{"no measurements", "greenhouse/sensor/zone-a/reading", `{}`, ErrMalformedReading},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := sub.handler(tt.topic, []byte(tt.payload))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}
