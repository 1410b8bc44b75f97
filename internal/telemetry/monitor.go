package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/verdantcl/greenhouse-core/internal/facility"
)

// Topic pattern for inbound sensor readings. Zone IDs occupy the
// wildcard level: greenhouse/sensor/{zoneID}/reading.
const topicSensorReadings = "greenhouse/sensor/+/reading"

// Notification kinds raised on band transitions.
const (
	notifySensorAlert = "sensor_alert"
	notifySensorInfo  = "sensor_info"
)

const (
	defaultPersistInterval = 15 * time.Minute
	defaultDeliveryTimeout = 5 * time.Second
)

// Logger defines the logging interface used by the Monitor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Subscriber is the narrow MQTT surface the monitor needs.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte) error) error
	Unsubscribe(topic string) error
}

// CropSource resolves a zone's current crop for band checks.
type CropSource interface {
	GetCurrentCrop(ctx context.Context, zoneID string) (*facility.Crop, error)
}

// Notifier dispatches notifications on band transitions.
type Notifier interface {
	Notify(ctx context.Context, kind, title, message, zoneID string) error
}

// WSHub broadcasts realtime events to connected clients.
type WSHub interface {
	Broadcast(channel string, payload any)
}

// TSDB is the time-series sink for sensor samples.
type TSDB interface {
	WriteSensorReading(zoneID string, temperature, humidity float64)
}

// Clock abstracts time for throttle tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Reading is the payload sensor nodes publish. At least one of the two
// measurements must be present.
type Reading struct {
	Temperature *float64 `json:"temperature,omitempty"`
	Humidity    *float64 `json:"humidity,omitempty"`
}

// zoneStatus tracks per-zone band state and persistence throttling.
type zoneStatus struct {
	outOfBand   bool
	lastPersist time.Time
}

// Monitor ingests zone sensor readings from MQTT, broadcasts every
// reading to connected clients, checks values against the zone's
// current crop tolerance band and raises notifications on band
// transitions.
//
// Band notifications are edge-triggered: one alert when a zone leaves
// its band, one info when it returns. Repeated out-of-band readings do
// not repeat the alert.
//
// Time-series writes are throttled per zone so a chatty sensor does not
// flood the sink; every reading is still broadcast live.
type Monitor struct {
	mqtt  Subscriber
	crops CropSource

	notifier Notifier // may be nil
	hub      WSHub    // may be nil
	tsdb     TSDB     // may be nil

	clock           Clock
	logger          Logger
	persistInterval time.Duration
	deliveryTimeout time.Duration

	ctx context.Context

	mu    sync.Mutex
	zones map[string]*zoneStatus
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithNotifier attaches the notification dispatcher.
func WithNotifier(n Notifier) Option {
	return func(m *Monitor) { m.notifier = n }
}

// WithHub attaches the realtime broadcast hub.
func WithHub(h WSHub) Option {
	return func(m *Monitor) { m.hub = h }
}

// WithTSDB attaches the time-series sink.
func WithTSDB(t TSDB) Option {
	return func(m *Monitor) { m.tsdb = t }
}

// WithClock overrides the wall clock.
func WithClock(c Clock) Option {
	return func(m *Monitor) { m.clock = c }
}

// WithLogger sets the monitor logger.
func WithLogger(l Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

// WithPersistInterval sets the minimum gap between time-series writes
// for the same zone.
func WithPersistInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.persistInterval = d
		}
	}
}

// NewMonitor creates a sensor ingest monitor.
func NewMonitor(mqtt Subscriber, crops CropSource, opts ...Option) *Monitor {
	m := &Monitor{
		mqtt:            mqtt,
		crops:           crops,
		clock:           systemClock{},
		logger:          noopLogger{},
		persistInterval: defaultPersistInterval,
		deliveryTimeout: defaultDeliveryTimeout,
		zones:           make(map[string]*zoneStatus),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start subscribes to the sensor reading topic. The context bounds crop
// lookups and notification dispatch for every reading handled after
// this call.
func (m *Monitor) Start(ctx context.Context) error {
	m.ctx = ctx
	if err := m.mqtt.Subscribe(topicSensorReadings, 1, m.HandleReading); err != nil {
		return fmt.Errorf("subscribing to sensor readings: %w", err)
	}
	m.logger.Info("sensor monitor started", "topic", topicSensorReadings)
	return nil
}

// Stop removes the sensor subscription.
func (m *Monitor) Stop() {
	if err := m.mqtt.Unsubscribe(topicSensorReadings); err != nil {
		m.logger.Warn("unsubscribing sensor readings failed", "error", err)
	}
}

// HandleReading processes one sensor message. Exported for direct use
// in tests; production traffic arrives through the MQTT subscription.
func (m *Monitor) HandleReading(topic string, payload []byte) error {
	zoneID, err := zoneFromTopic(topic)
	if err != nil {
		return err
	}

	var reading Reading
	if err := json.Unmarshal(payload, &reading); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedReading, err)
	}
	if reading.Temperature == nil && reading.Humidity == nil {
		return fmt.Errorf("%w: no measurements", ErrMalformedReading)
	}

	ctx := m.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	crop, err := m.crops.GetCurrentCrop(ctx, zoneID)
	if err != nil {
		if !errors.Is(err, facility.ErrNoCurrentCrop) {
			return fmt.Errorf("resolving current crop for zone %s: %w", zoneID, err)
		}
		crop = nil
	}

	out := false
	if crop != nil {
		out = outOfBand(crop, &reading)
	}

	m.broadcast(zoneID, &reading, crop, out)
	m.persist(zoneID, &reading)

	if crop == nil {
		return nil
	}
	return m.transition(ctx, zoneID, crop, &reading, out)
}

// transition fires edge-triggered band notifications.
func (m *Monitor) transition(ctx context.Context, zoneID string, crop *facility.Crop, r *Reading, out bool) error {
	m.mu.Lock()
	status := m.status(zoneID)
	changed := status.outOfBand != out
	status.outOfBand = out
	m.mu.Unlock()

	if !changed || m.notifier == nil {
		return nil
	}

	kind := notifySensorInfo
	title := "Zone back in range"
	if out {
		kind = notifySensorAlert
		title = "Zone out of range"
	}
	message := bandMessage(zoneID, crop, r, out)

	nctx, cancel := context.WithTimeout(ctx, m.deliveryTimeout)
	defer cancel()
	if err := m.notifier.Notify(nctx, kind, title, message, zoneID); err != nil {
		m.logger.Warn("band notification failed",
			"zone_id", zoneID, "kind", kind, "error", err)
	}
	return nil
}

// broadcast emits the reading to connected clients, tagged with the
// band verdict when a crop is assigned.
func (m *Monitor) broadcast(zoneID string, r *Reading, crop *facility.Crop, out bool) {
	if m.hub == nil {
		return
	}
	payload := map[string]any{
		"zone_id":   zoneID,
		"timestamp": m.clock.Now().Format(time.RFC3339),
	}
	if r.Temperature != nil {
		payload["temperature"] = *r.Temperature
	}
	if r.Humidity != nil {
		payload["humidity"] = *r.Humidity
	}
	if crop != nil {
		payload["crop_id"] = crop.ID
		payload["in_band"] = !out
	}
	m.hub.Broadcast("sensor.reading", payload)
}

// persist writes the sample to the time-series sink, at most once per
// persist interval per zone.
func (m *Monitor) persist(zoneID string, r *Reading) {
	if m.tsdb == nil {
		return
	}

	now := m.clock.Now()
	m.mu.Lock()
	status := m.status(zoneID)
	due := status.lastPersist.IsZero() || now.Sub(status.lastPersist) >= m.persistInterval
	if due {
		status.lastPersist = now
	}
	m.mu.Unlock()

	if !due {
		return
	}

	var temp, hum float64
	if r.Temperature != nil {
		temp = *r.Temperature
	}
	if r.Humidity != nil {
		hum = *r.Humidity
	}
	m.tsdb.WriteSensorReading(zoneID, temp, hum)
}

// status returns the zone's tracking entry. Callers hold m.mu.
func (m *Monitor) status(zoneID string) *zoneStatus {
	s, ok := m.zones[zoneID]
	if !ok {
		s = &zoneStatus{}
		m.zones[zoneID] = s
	}
	return s
}

// OutOfBand reports whether the zone's last reading was outside its
// crop's tolerance band.
func (m *Monitor) OutOfBand(zoneID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.zones[zoneID]
	return ok && s.outOfBand
}

// outOfBand checks the provided measurements against the crop band.
// Missing measurements are not checked.
func outOfBand(crop *facility.Crop, r *Reading) bool {
	if r.Temperature != nil && (*r.Temperature < crop.TempMin || *r.Temperature > crop.TempMax) {
		return true
	}
	if r.Humidity != nil && (*r.Humidity < crop.HumidityMin || *r.Humidity > crop.HumidityMax) {
		return true
	}
	return false
}

func bandMessage(zoneID string, crop *facility.Crop, r *Reading, out bool) string {
	verdict := "back within"
	if out {
		verdict = "outside"
	}
	parts := make([]string, 0, 2)
	if r.Temperature != nil {
		parts = append(parts, fmt.Sprintf("temperature %.1f°C (band %.1f-%.1f)",
			*r.Temperature, crop.TempMin, crop.TempMax))
	}
	if r.Humidity != nil {
		parts = append(parts, fmt.Sprintf("humidity %.1f%% (band %.1f-%.1f)",
			*r.Humidity, crop.HumidityMin, crop.HumidityMax))
	}
	return fmt.Sprintf("Zone %s is %s the %s tolerance band: %s",
		zoneID, verdict, crop.Name, strings.Join(parts, ", "))
}

// zoneFromTopic extracts the zone ID from greenhouse/sensor/{zone}/reading.
func zoneFromTopic(topic string) (string, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != "greenhouse" || parts[1] != "sensor" ||
		parts[3] != "reading" || parts[2] == "" {
		return "", fmt.Errorf("%w: %q", ErrMalformedTopic, topic)
	}
	return parts[2], nil
}
