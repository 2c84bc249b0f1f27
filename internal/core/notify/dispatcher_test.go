package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseguard/pulseguard/internal/core/alerts"
)

type memStore struct {
	mu    sync.Mutex
	saves []AlertNotification
}

func (m *memStore) SaveNotification(ctx context.Context, n *AlertNotification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves = append(m.saves, *n)
	return nil
}

func (m *memStore) last() AlertNotification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves[len(m.saves)-1]
}

type fakeTransport struct {
	mu    sync.Mutex
	errs  []error
	calls []*Payload
}

func (f *fakeTransport) Deliver(ctx context.Context, channel *ChannelConfig, payload *Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, payload)
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func webhookChannel() ChannelConfig {
	return ChannelConfig{
		Name:           "ops-webhook",
		Kind:           KindWebhook,
		Endpoint:       "http://hooks.internal/ops",
		Enabled:        true,
		Severities:     []alerts.Severity{alerts.SeverityHigh, alerts.SeverityCritical},
		MaxPerHour:     100,
		BurstLimit:     10,
		MaxAttempts:    3,
		BackoffSeconds: []int{0},
	}
}

func highAlert() *alerts.Alert {
	return &alerts.Alert{
		ID:          uuid.New().String(),
		Fingerprint: "cpu-high",
		Type:        "system.cpu_percent",
		Severity:    alerts.SeverityHigh,
		Title:       "High CPU usage",
		Timestamp:   time.Now(),
	}
}

func newTestDispatcher(channels []ChannelConfig, transport Transport) (*Dispatcher, *memStore) {
	store := &memStore{}
	d := NewDispatcher(DispatcherConfig{
		Enabled:         true,
		QueueSize:       64,
		DeliveryTimeout: time.Second,
	}, channels, store, nil, testLogger())
	if transport != nil {
		d.SetTransport(KindWebhook, transport)
		d.SetTransport(KindChat, transport)
	}
	return d, store
}

func drainOnce(d *Dispatcher) {
	dv := <-d.queue
	d.deliver(context.Background(), dv)
}

func TestEnqueueAlertRespectsSeverityFilter(t *testing.T) {
	transport := &fakeTransport{}
	d, store := newTestDispatcher([]ChannelConfig{webhookChannel()}, transport)

	low := highAlert()
	low.Severity = alerts.SeverityLow
	d.EnqueueAlert(low)

	assert.Empty(t, d.queue)
	store.mu.Lock()
	assert.Empty(t, store.saves)
	store.mu.Unlock()

	d.EnqueueAlert(highAlert())
	require.Len(t, d.queue, 1)
	assert.Equal(t, StatusPending, store.last().Status)
}

func TestDeliverSuccess(t *testing.T) {
	transport := &fakeTransport{}
	d, store := newTestDispatcher([]ChannelConfig{webhookChannel()}, transport)

	alert := highAlert()
	d.EnqueueAlert(alert)
	drainOnce(d)

	last := store.last()
	assert.Equal(t, StatusSent, last.Status)
	assert.Equal(t, 1, last.Attempts)
	assert.NotNil(t, last.SentAt)
	assert.Equal(t, alert.ID, last.AlertID)

	require.Equal(t, 1, transport.callCount())
	assert.Equal(t, "alert_triggered", transport.calls[0].Event)
}

func TestDeliverRetriesThenSucceeds(t *testing.T) {
	transport := &fakeTransport{errs: []error{errors.New("connection refused")}}
	d, store := newTestDispatcher([]ChannelConfig{webhookChannel()}, transport)

	d.EnqueueAlert(highAlert())
	drainOnce(d)

	// First attempt failed; the record goes back to pending and a retry is
	// scheduled with zero backoff.
	assert.Equal(t, StatusPending, store.last().Status)
	assert.Equal(t, 1, store.last().Attempts)

	require.Eventually(t, func() bool { return len(d.queue) == 1 }, time.Second, 5*time.Millisecond)
	drainOnce(d)

	last := store.last()
	assert.Equal(t, StatusSent, last.Status)
	assert.Equal(t, 2, last.Attempts)
}

func TestDeliverExhaustsAttempts(t *testing.T) {
	transport := &fakeTransport{errs: []error{
		errors.New("timeout"),
		errors.New("timeout"),
		errors.New("timeout"),
	}}
	d, store := newTestDispatcher([]ChannelConfig{webhookChannel()}, transport)

	d.EnqueueAlert(highAlert())

	for attempt := 1; attempt <= 3; attempt++ {
		require.Eventually(t, func() bool { return len(d.queue) == 1 }, time.Second, 5*time.Millisecond)
		drainOnce(d)
	}

	last := store.last()
	assert.Equal(t, StatusFailed, last.Status)
	assert.Equal(t, 3, last.Attempts)
	assert.Contains(t, last.LastError, "timeout")

	// No further retry is scheduled.
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, d.queue)
}

func TestDeliverBurstLimit(t *testing.T) {
	transport := &fakeTransport{}
	channel := webhookChannel()
	channel.BurstLimit = 10
	d, store := newTestDispatcher([]ChannelConfig{channel}, transport)

	// 11 qualifying alerts inside the burst window: ten deliveries go out,
	// the eleventh is recorded rate_limited without a transport call.
	for i := 0; i < 11; i++ {
		d.EnqueueAlert(highAlert())
		drainOnce(d)
	}

	assert.Equal(t, 10, transport.callCount())
	assert.Equal(t, StatusRateLimited, store.last().Status)
	assert.Equal(t, 0, store.last().Attempts)
}

func TestEnqueueResolutionOptIn(t *testing.T) {
	transport := &fakeTransport{}

	optedIn := webhookChannel()
	optedIn.Name = "opted-in"
	optedIn.NotifyResolution = true

	optedOut := webhookChannel()
	optedOut.Name = "opted-out"

	d, store := newTestDispatcher([]ChannelConfig{optedIn, optedOut}, transport)

	alert := highAlert()
	alert.Resolved = true
	d.EnqueueResolution(alert)

	require.Len(t, d.queue, 1)
	drainOnce(d)

	last := store.last()
	assert.Equal(t, "opted-in", last.Channel)
	assert.True(t, last.Resolution)
	require.Equal(t, 1, transport.callCount())
	assert.Equal(t, "alert_resolved", transport.calls[0].Event)
}

func TestEnqueueFansOutToMultipleChannels(t *testing.T) {
	transport := &fakeTransport{}

	webhook := webhookChannel()
	chat := webhookChannel()
	chat.Name = "chat"
	chat.Kind = KindChat
	disabled := webhookChannel()
	disabled.Name = "disabled"
	disabled.Enabled = false

	d, _ := newTestDispatcher([]ChannelConfig{webhook, chat, disabled}, transport)

	d.EnqueueAlert(highAlert())
	assert.Len(t, d.queue, 2)
}

func TestMisconfiguredChannelIsDisabled(t *testing.T) {
	bad := webhookChannel()
	bad.Endpoint = ""

	d, _ := newTestDispatcher([]ChannelConfig{bad}, &fakeTransport{})

	d.EnqueueAlert(highAlert())
	assert.Empty(t, d.queue)
}

func TestDispatcherStartStop(t *testing.T) {
	transport := &fakeTransport{}
	d, store := newTestDispatcher([]ChannelConfig{webhookChannel()}, transport)

	require.NoError(t, d.Start(context.Background()))
	d.EnqueueAlert(highAlert())

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		for _, n := range store.saves {
			if n.Status == StatusSent {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	d.Stop()
}
