package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Evaluator.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Clock abstracts time.Now so evaluation can be driven by a fake clock
// in tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// MQTTClient is the interface for publishing activation maps to the
// external device controllers.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// WSHub is the interface for broadcasting WebSocket events.
type WSHub interface {
	Broadcast(channel string, payload any)
}

// Notifier receives activation transitions for fan-out. Delivery runs on
// the evaluator's own timeout and its outcome never affects evaluation.
type Notifier interface {
	Notify(ctx context.Context, kind, title, message, zoneID string) error
}

// TSDB records activation transitions in the time-series store.
type TSDB interface {
	WriteActivation(zoneID, kind string, active bool)
}

// Activation map topics, retained so controllers that reconnect pick up
// the current state immediately.
const (
	topicIrrigationMap = "greenhouse/activation/irrigation"
	topicLightingMap   = "greenhouse/activation/lighting"
)

// Notification kinds emitted on activation edges.
const (
	notifyIrrigationStart = "irrigation_start"
	notifyIrrigationEnd   = "irrigation_end"
	notifyLightingStart   = "lighting_start"
	notifyLightingEnd     = "lighting_end"
)

// activeProgram is the evaluator's memory of one running program.
type activeProgram struct {
	zoneID string
	kind   Kind
	method *Method
}

// Evaluator derives live zone activation state from program windows.
//
// Each tick recomputes the activation maps from scratch out of a single
// time snapshot, detects edge transitions against the previous tick,
// appends history rows for entries, fans out notifications and publishes
// the retained MQTT maps. Re-running a tick with no intervening writes
// is idempotent: no duplicate history rows, no duplicate notifications.
//
// Per-program failures are logged and skipped, never surfaced to a
// caller; the evaluator runs unattended.
type Evaluator struct {
	repo            Repository
	mqtt            MQTTClient // may be nil
	hub             WSHub      // may be nil
	notifier        Notifier   // may be nil
	tsdb            TSDB       // may be nil
	clock           Clock
	logger          Logger
	tickInterval    time.Duration
	deliveryTimeout time.Duration

	mu            sync.RWMutex
	active        map[string]activeProgram
	irrigationMap map[string]any // zoneID -> false | "drip" | "sprinkler"
	lightingMap   map[string]bool
}

// EvaluatorOption configures optional evaluator collaborators.
type EvaluatorOption func(*Evaluator)

// WithMQTT attaches an MQTT client for retained activation map publishing.
func WithMQTT(c MQTTClient) EvaluatorOption { return func(e *Evaluator) { e.mqtt = c } }

// WithHub attaches a WebSocket hub for realtime state events.
func WithHub(h WSHub) EvaluatorOption { return func(e *Evaluator) { e.hub = h } }

// WithNotifier attaches the notification fan-out.
func WithNotifier(n Notifier) EvaluatorOption { return func(e *Evaluator) { e.notifier = n } }

// WithTSDB attaches the time-series sink for activation transitions.
func WithTSDB(t TSDB) EvaluatorOption { return func(e *Evaluator) { e.tsdb = t } }

// WithClock replaces the system clock, for tests.
func WithClock(c Clock) EvaluatorOption { return func(e *Evaluator) { e.clock = c } }

// WithLogger sets the evaluator logger.
func WithLogger(l Logger) EvaluatorOption { return func(e *Evaluator) { e.logger = l } }

// WithDeliveryTimeout bounds each fire-and-forget notification delivery.
func WithDeliveryTimeout(d time.Duration) EvaluatorOption {
	return func(e *Evaluator) { e.deliveryTimeout = d }
}

// NewEvaluator creates an activation evaluator ticking at tickInterval.
func NewEvaluator(repo Repository, tickInterval time.Duration, opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{
		repo:            repo,
		clock:           systemClock{},
		logger:          noopLogger{},
		tickInterval:    tickInterval,
		deliveryTimeout: 5 * time.Second,
		active:          make(map[string]activeProgram),
		irrigationMap:   make(map[string]any),
		lightingMap:     make(map[string]bool),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run evaluates immediately, then on every tick until ctx is cancelled.
func (e *Evaluator) Run(ctx context.Context) {
	e.logger.Info("activation evaluator started", "tick_interval", e.tickInterval)

	if err := e.Evaluate(ctx); err != nil {
		e.logger.Error("evaluation failed", "error", err)
	}

	ticker := time.NewTicker(e.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("activation evaluator stopped")
			return
		case <-ticker.C:
			if err := e.Evaluate(ctx); err != nil {
				e.logger.Error("evaluation failed", "error", err)
			}
		}
	}
}

// Evaluate runs one evaluation pass against a single snapshot of now.
// The returned error covers storage reads only; per-program problems are
// logged and skipped.
func (e *Evaluator) Evaluate(ctx context.Context) error {
	now := e.clock.Now()

	programs, err := e.repo.ListRunnable(ctx)
	if err != nil {
		return fmt.Errorf("listing runnable programs: %w", err)
	}
	zoneIDs, err := e.repo.ListZoneIDs(ctx)
	if err != nil {
		return fmt.Errorf("listing zones: %w", err)
	}

	newActive := make(map[string]activeProgram)
	irrigation := make(map[string]any, len(zoneIDs))
	lighting := make(map[string]bool, len(zoneIDs))
	for _, id := range zoneIDs {
		irrigation[id] = false
		lighting[id] = false
	}

	for i := range programs {
		p := &programs[i]
		if !p.StartTime.Before(p.EndTime) {
			e.logger.Warn("skipping malformed program window",
				"program_id", p.ID, "start", p.StartTime, "end", p.EndTime)
			continue
		}
		if p.ZoneState != "active" {
			continue
		}
		if !p.InWindow(now) {
			continue
		}

		switch p.Kind {
		case KindIrrigation:
			if p.Method == nil {
				e.logger.Warn("skipping irrigation program without method", "program_id", p.ID)
				continue
			}
			// A zone runs one irrigation method at a time; when stale data
			// lets two methods share a window, evaluation order wins.
			irrigation[p.ZoneID] = string(*p.Method)
		case KindLighting:
			lighting[p.ZoneID] = true
		}
		newActive[p.ID] = activeProgram{zoneID: p.ZoneID, kind: p.Kind, method: p.Method}
	}

	e.mu.Lock()
	previous := e.active
	e.active = newActive
	e.irrigationMap = irrigation
	e.lightingMap = lighting
	e.mu.Unlock()

	for id, ap := range newActive {
		if _, was := previous[id]; !was {
			e.programEntered(ctx, id, ap, now)
		}
	}
	for id, ap := range previous {
		if _, still := newActive[id]; !still {
			e.programExited(ctx, id, ap)
		}
	}

	e.publishMaps(irrigation, lighting)
	return nil
}

// programEntered handles an inactive -> active edge: exactly one history
// row, one start notification, one realtime event.
func (e *Evaluator) programEntered(ctx context.Context, programID string, ap activeProgram, now time.Time) {
	program, err := e.repo.Get(ctx, programID)
	if err != nil {
		e.logger.Error("reading program on activation edge", "program_id", programID, "error", err)
		return
	}

	rec := &ActivationRecord{
		ID:              GenerateID(),
		ProgramID:       programID,
		ZoneID:          ap.zoneID,
		Kind:            ap.kind,
		Method:          ap.method,
		ActivatedAt:     now,
		DurationMinutes: int(program.EndTime.Sub(now).Minutes()),
	}
	if err := e.repo.AppendHistory(ctx, rec); err != nil {
		e.logger.Error("appending activation history", "program_id", programID, "error", err)
	}

	e.logger.Info("program activated",
		"program_id", programID, "zone_id", ap.zoneID, "kind", ap.kind)

	kind := notifyLightingStart
	message := fmt.Sprintf("Lighting started in zone %s", ap.zoneID)
	if ap.kind == KindIrrigation {
		kind = notifyIrrigationStart
		message = fmt.Sprintf("Irrigation (%s) started in zone %s", *ap.method, ap.zoneID)
	}
	e.notifyAsync(kind, "Activation started", message, ap.zoneID)

	if e.hub != nil {
		e.hub.Broadcast(string(ap.kind)+".state_changed", map[string]any{
			"zone_id":    ap.zoneID,
			"program_id": programID,
			"active":     true,
			"method":     methodValue(ap.method),
		})
	}
	if e.tsdb != nil {
		e.tsdb.WriteActivation(ap.zoneID, string(ap.kind), true)
	}
}

// programExited handles an active -> inactive edge. History only records
// activation starts; exits produce a notification and events.
func (e *Evaluator) programExited(ctx context.Context, programID string, ap activeProgram) {
	_ = ctx

	e.logger.Info("program deactivated",
		"program_id", programID, "zone_id", ap.zoneID, "kind", ap.kind)

	kind := notifyLightingEnd
	message := fmt.Sprintf("Lighting ended in zone %s", ap.zoneID)
	if ap.kind == KindIrrigation {
		kind = notifyIrrigationEnd
		message = fmt.Sprintf("Irrigation ended in zone %s", ap.zoneID)
	}
	e.notifyAsync(kind, "Activation ended", message, ap.zoneID)

	if e.hub != nil {
		e.hub.Broadcast(string(ap.kind)+".state_changed", map[string]any{
			"zone_id":    ap.zoneID,
			"program_id": programID,
			"active":     false,
		})
	}
	if e.tsdb != nil {
		e.tsdb.WriteActivation(ap.zoneID, string(ap.kind), false)
	}
}

// notifyAsync dispatches one notification on its own timeout. Evaluation
// proceeds regardless of delivery outcome.
func (e *Evaluator) notifyAsync(kind, title, message, zoneID string) {
	if e.notifier == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.deliveryTimeout)
		defer cancel()
		if err := e.notifier.Notify(ctx, kind, title, message, zoneID); err != nil {
			e.logger.Warn("notification delivery failed", "kind", kind, "zone_id", zoneID, "error", err)
		}
	}()
}

// publishMaps publishes both retained activation maps.
func (e *Evaluator) publishMaps(irrigation map[string]any, lighting map[string]bool) {
	if e.mqtt == nil {
		return
	}
	if payload, err := json.Marshal(irrigation); err == nil {
		if err := e.mqtt.Publish(topicIrrigationMap, payload, 1, true); err != nil {
			e.logger.Warn("publishing irrigation map", "error", err)
		}
	}
	if payload, err := json.Marshal(lighting); err == nil {
		if err := e.mqtt.Publish(topicLightingMap, payload, 1, true); err != nil {
			e.logger.Warn("publishing lighting map", "error", err)
		}
	}
}

// ZoneActivation reports the live irrigation activation for one zone from
// the last evaluated snapshot.
func (e *Evaluator) ZoneActivation(zoneID string) ZoneActivation {
	e.mu.RLock()
	defer e.mu.RUnlock()

	v, ok := e.irrigationMap[zoneID]
	if !ok {
		return ZoneActivation{Active: false}
	}
	if s, isMethod := v.(string); isMethod {
		m := Method(s)
		return ZoneActivation{Active: true, Method: &m}
	}
	return ZoneActivation{Active: false}
}

// ZoneLighting reports the live lighting activation for one zone from the
// last evaluated snapshot.
func (e *Evaluator) ZoneLighting(zoneID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lightingMap[zoneID]
}

// IrrigationMap returns a copy of the zone -> false|method map.
func (e *Evaluator) IrrigationMap() map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make(map[string]any, len(e.irrigationMap))
	for k, v := range e.irrigationMap {
		out[k] = v
	}
	return out
}

// LightingMap returns a copy of the zone -> active map.
func (e *Evaluator) LightingMap() map[string]bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make(map[string]bool, len(e.lightingMap))
	for k, v := range e.lightingMap {
		out[k] = v
	}
	return out
}

// ToggleEnabled flips a program's manual enable flag.
//
// Enabling writes one activation history row stamped with now and the
// planned duration, unless one is already open for the program (at most
// one open activation per program). Disabling emits a deactivation
// notification but no history row: history records activation starts
// only. Both directions re-evaluate so the activation maps and edge
// state reflect the flag immediately.
func (e *Evaluator) ToggleEnabled(ctx context.Context, programID string, enabled bool) (*Program, error) {
	program, changed, err := e.repo.SetEnabled(ctx, programID, enabled)
	if err != nil {
		return nil, err
	}
	if !changed {
		return program, nil
	}
	now := e.clock.Now()

	if enabled {
		open, err := e.repo.CountOpenActivations(ctx, programID, now)
		if err != nil {
			return nil, err
		}
		if open == 0 {
			rec := &ActivationRecord{
				ID:              GenerateID(),
				ProgramID:       programID,
				ZoneID:          program.ZoneID,
				Kind:            program.Kind,
				Method:          program.Method,
				ActivatedAt:     now,
				DurationMinutes: int(program.Duration().Minutes()),
			}
			if err := e.repo.AppendHistory(ctx, rec); err != nil {
				return nil, err
			}
		}

		// Seed the active set when the window already contains now, so
		// the next tick sees no edge and appends nothing further.
		if program.InWindow(now) {
			e.mu.Lock()
			e.active[programID] = activeProgram{
				zoneID: program.ZoneID, kind: program.Kind, method: program.Method,
			}
			e.mu.Unlock()
		}

		title := "Program enabled"
		kind := notifyLightingStart
		if program.Kind == KindIrrigation {
			kind = notifyIrrigationStart
		}
		e.notifyAsync(kind, title, fmt.Sprintf("Program %s enabled for zone %s", programID, program.ZoneID), program.ZoneID)
	} else {
		e.mu.Lock()
		_, wasActive := e.active[programID]
		delete(e.active, programID)
		e.mu.Unlock()

		kind := notifyLightingEnd
		if program.Kind == KindIrrigation {
			kind = notifyIrrigationEnd
		}
		e.notifyAsync(kind, "Program disabled",
			fmt.Sprintf("Program %s disabled for zone %s", programID, program.ZoneID), program.ZoneID)

		if wasActive {
			if e.hub != nil {
				e.hub.Broadcast(string(program.Kind)+".state_changed", map[string]any{
					"zone_id":    program.ZoneID,
					"program_id": programID,
					"active":     false,
				})
			}
			if e.tsdb != nil {
				e.tsdb.WriteActivation(program.ZoneID, string(program.Kind), false)
			}
		}
	}

	if err := e.Evaluate(ctx); err != nil {
		e.logger.Error("re-evaluation after toggle failed", "program_id", programID, "error", err)
	}
	return program, nil
}

func methodValue(m *Method) any {
	if m == nil {
		return nil
	}
	return string(*m)
}
