package notify

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pulseguard/pulseguard/internal/core/alerts"
	"github.com/pulseguard/pulseguard/internal/core/metrics"
)

// DispatcherConfig contains configuration for the notification dispatcher.
type DispatcherConfig struct {
	Enabled         bool
	QueueSize       int
	DeliveryTimeout time.Duration
}

type delivery struct {
	notification *AlertNotification
	channel      ChannelConfig
	alert        *alerts.Alert
}

// Dispatcher fans alerts out to configured channels through a FIFO queue
// drained by a single goroutine. Enqueueing is safe from any goroutine,
// including retry callbacks firing mid-drain.
type Dispatcher struct {
	config     DispatcherConfig
	logger     *logrus.Logger
	store      Store
	collector  metrics.Collector
	limiter    *RateLimiter
	transports map[ChannelKind]Transport
	channels   []ChannelConfig

	queue    chan *delivery
	stopChan chan struct{}
	wg       sync.WaitGroup

	mu      sync.Mutex
	running bool
}

// NewDispatcher creates the dispatcher with default transports for every
// channel kind.
func NewDispatcher(config DispatcherConfig, channels []ChannelConfig, store Store, collector metrics.Collector, logger *logrus.Logger) *Dispatcher {
	if config.QueueSize <= 0 {
		config.QueueSize = 256
	}
	if config.DeliveryTimeout <= 0 {
		config.DeliveryTimeout = 30 * time.Second
	}
	if collector == nil {
		collector = metrics.Noop{}
	}

	httpTransport := NewHTTPTransport(config.DeliveryTimeout)
	d := &Dispatcher{
		config:    config,
		logger:    logger,
		store:     store,
		collector: collector,
		limiter:   NewRateLimiter(),
		transports: map[ChannelKind]Transport{
			KindWebhook: httpTransport,
			KindChat:    httpTransport,
			KindEmail:   NewEmailTransport(config.DeliveryTimeout, logger),
		},
		channels: channels,
		queue:    make(chan *delivery, config.QueueSize),
		stopChan: make(chan struct{}),
	}

	for i := range d.channels {
		if err := d.channels[i].Validate(); err != nil {
			logger.WithError(err).Warn("Disabling misconfigured notification channel")
			d.channels[i].Enabled = false
		}
	}
	return d
}

// SetTransport overrides the transport for a channel kind.
func (d *Dispatcher) SetTransport(kind ChannelKind, t Transport) {
	d.transports[kind] = t
}

// Start launches the drain goroutine.
func (d *Dispatcher) Start(ctx context.Context) error {
	if !d.config.Enabled {
		d.logger.Info("Notification dispatcher disabled, skipping start")
		return nil
	}

	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = true
	d.mu.Unlock()

	d.wg.Add(1)
	go d.drain(ctx)

	d.logger.WithField("channels", len(d.channels)).Info("Notification dispatcher started")
	return nil
}

// Stop terminates the drain goroutine. Queued deliveries are abandoned;
// their records stay pending.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	close(d.stopChan)
	d.mu.Unlock()

	d.wg.Wait()
	d.logger.Info("Notification dispatcher stopped")
}

// EnqueueAlert queues a new-alert notice for every enabled channel whose
// severity filter accepts the alert.
func (d *Dispatcher) EnqueueAlert(alert *alerts.Alert) {
	d.enqueue(alert, false)
}

// EnqueueResolution queues a resolution notice for channels that opted in.
// The lifecycle manager only calls this for high and critical alerts.
func (d *Dispatcher) EnqueueResolution(alert *alerts.Alert) {
	d.enqueue(alert, true)
}

// EnqueueAlertTo queues a notice for the named channels only, still
// honoring each channel's enabled flag and severity filter. Used by the
// escalation checker's notify action.
func (d *Dispatcher) EnqueueAlertTo(alert *alerts.Alert, channelNames []string) {
	if !d.config.Enabled || len(channelNames) == 0 {
		return
	}

	wanted := make(map[string]bool, len(channelNames))
	for _, name := range channelNames {
		wanted[name] = true
	}

	for i := range d.channels {
		channel := d.channels[i]
		if !wanted[channel.Name] || !channel.Enabled || !channel.Accepts(alert.Severity) {
			continue
		}

		n := newNotification(alert.ID, &channel, false)
		d.persist(n)
		d.push(&delivery{notification: n, channel: channel, alert: alert})
	}
}

func (d *Dispatcher) enqueue(alert *alerts.Alert, resolution bool) {
	if !d.config.Enabled {
		return
	}

	for i := range d.channels {
		channel := d.channels[i]
		if !channel.Enabled || !channel.Accepts(alert.Severity) {
			continue
		}
		if resolution && !channel.NotifyResolution {
			continue
		}

		n := newNotification(alert.ID, &channel, resolution)
		d.persist(n)
		d.push(&delivery{notification: n, channel: channel, alert: alert})
	}
}

func (d *Dispatcher) push(dv *delivery) {
	select {
	case d.queue <- dv:
	default:
		dv.notification.Status = StatusFailed
		dv.notification.LastError = "notification queue full"
		dv.notification.UpdatedAt = time.Now()
		d.persist(dv.notification)
		d.collector.RecordNotification(dv.channel.Name, StatusFailed)
		d.logger.WithField("channel", dv.channel.Name).Error("Notification queue full, dropping delivery")
	}
}

func (d *Dispatcher) drain(ctx context.Context) {
	defer d.wg.Done()

	for {
		select {
		case dv := <-d.queue:
			d.deliver(ctx, dv)
		case <-d.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, dv *delivery) {
	n := dv.notification
	channel := &dv.channel

	if !d.limiter.Allow(channel.RateKey(), channel.MaxPerHour, channel.BurstLimit) {
		n.Status = StatusRateLimited
		n.UpdatedAt = time.Now()
		d.persist(n)
		d.collector.RecordNotification(channel.Name, StatusRateLimited)
		d.logger.WithFields(logrus.Fields{
			"channel":  channel.Name,
			"alert_id": n.AlertID,
		}).Warn("Notification rate limited")
		return
	}

	transport, ok := d.transports[channel.Kind]
	if !ok {
		n.Status = StatusFailed
		n.LastError = "no transport for channel kind " + string(channel.Kind)
		n.UpdatedAt = time.Now()
		d.persist(n)
		d.collector.RecordNotification(channel.Name, StatusFailed)
		return
	}

	n.Attempts++

	deliverCtx, cancel := context.WithTimeout(ctx, d.config.DeliveryTimeout)
	err := transport.Deliver(deliverCtx, channel, newPayload(dv.alert, channel.Name, n.Resolution))
	cancel()

	now := time.Now()
	n.UpdatedAt = now

	if err == nil {
		n.Status = StatusSent
		n.SentAt = &now
		n.LastError = ""
		d.persist(n)
		d.collector.RecordNotification(channel.Name, StatusSent)
		d.logger.WithFields(logrus.Fields{
			"channel":  channel.Name,
			"alert_id": n.AlertID,
			"attempts": n.Attempts,
		}).Info("Notification delivered")
		return
	}

	n.LastError = err.Error()

	if n.Attempts >= channel.maxAttempts() {
		n.Status = StatusFailed
		d.persist(n)
		d.collector.RecordNotification(channel.Name, StatusFailed)
		d.logger.WithError(err).WithFields(logrus.Fields{
			"channel":  channel.Name,
			"alert_id": n.AlertID,
			"attempts": n.Attempts,
		}).Error("Notification failed permanently")
		return
	}

	n.Status = StatusPending
	d.persist(n)

	wait := time.Duration(channel.backoff(n.Attempts)) * time.Second
	d.logger.WithError(err).WithFields(logrus.Fields{
		"channel":     channel.Name,
		"alert_id":    n.AlertID,
		"attempt":     n.Attempts,
		"retry_after": wait.String(),
	}).Warn("Notification delivery failed, scheduling retry")

	time.AfterFunc(wait, func() {
		select {
		case <-d.stopChan:
		default:
			d.push(dv)
		}
	})
}

func (d *Dispatcher) persist(n *AlertNotification) {
	if d.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := d.store.SaveNotification(ctx, n); err != nil {
		d.logger.WithError(err).WithField("notification_id", n.ID).Warn("Failed to persist notification")
	}
}
