package monitoring

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/config"
)

// Checker evaluates the pipeline metrics on an interval. A condition (a stage
// over its failure threshold, an open provider breaker) is alerted once when
// it starts; it is logged again when it clears.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	interval  time.Duration
	webhook   bool

	mu     sync.Mutex
	active map[string]Alert
}

// NewChecker creates a background alert checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	interval := time.Duration(cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Checker{
		collector: collector,
		alerter:   alerter,
		interval:  interval,
		webhook:   cfg.WebhookURL != "",
		active:    make(map[string]Alert),
	}
}

// Run checks once immediately, then every interval until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting alert checker", zap.Duration("interval", c.interval), zap.Bool("webhook", c.webhook))

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		c.check(ctx, log)
		select {
		case <-ctx.Done():
			log.Info("alert checker stopped")
			return
		case <-ticker.C:
		}
	}
}

// Active returns the conditions currently alerting, keyed by Alert.Key.
func (c *Checker) Active() map[string]Alert {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]Alert, len(c.active))
	for k, a := range c.active {
		out[k] = a
	}
	return out
}

// check returns the number of new alerts delivered to the webhook.
func (c *Checker) check(ctx context.Context, log *zap.Logger) int {
	if ctx.Err() != nil {
		return 0
	}
	snap, err := c.collector.Collect(ctx)
	if err != nil {
		log.Error("monitoring: failed to collect metrics", zap.Error(err))
		return 0
	}

	current := c.alerter.Evaluate(snap)
	fresh := c.track(current, log)
	if len(fresh) == 0 {
		log.Debug("monitoring: no new alerts", zap.Int("active", len(current)))
		return 0
	}

	if !c.webhook {
		for _, a := range fresh {
			log.Warn("monitoring: alert",
				zap.String("type", string(a.Type)),
				zap.String("subject", a.Subject),
				zap.String("severity", a.Severity),
				zap.String("message", a.Message),
			)
		}
		return 0
	}

	sent := c.alerter.SendAlerts(ctx, fresh)
	log.Info("monitoring: alert check complete",
		zap.Int("alerts_new", len(fresh)),
		zap.Int("alerts_active", len(current)),
		zap.Int("alerts_sent", sent),
	)
	return sent
}

// track records the current conditions and returns the ones not already
// active. Conditions that disappeared are logged as resolved.
func (c *Checker) track(current []Alert, log *zap.Logger) []Alert {
	c.mu.Lock()
	defer c.mu.Unlock()

	seen := make(map[string]bool, len(current))
	var fresh []Alert
	for _, a := range current {
		k := a.Key()
		seen[k] = true
		if _, ok := c.active[k]; !ok {
			fresh = append(fresh, a)
			c.active[k] = a
		}
	}
	for k, a := range c.active {
		if seen[k] {
			continue
		}
		log.Info("monitoring: alert resolved",
			zap.String("type", string(a.Type)),
			zap.String("subject", a.Subject),
			zap.Duration("active_for", time.Since(a.Timestamp)),
		)
		delete(c.active, k)
	}
	return fresh
}
