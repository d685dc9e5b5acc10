// Package alerter evaluates threshold rules against the monitor totals and
// sends one consolidated notification per check.
package alerter

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"Go2NetTop/internal/config"
	"Go2NetTop/internal/engine/flowengine"
	"Go2NetTop/internal/notification"
)

// Metric names accepted in rules.
const (
	MetricTotalFlows     = "total_flows"
	MetricTotalHosts     = "total_hosts"
	MetricTotalBytes     = "total_bytes"
	MetricTotalPackets   = "total_packets"
	MetricDroppedPackets = "dropped_packets"
)

var extractors = map[string]func(flowengine.Totals) float64{
	MetricTotalFlows:     func(t flowengine.Totals) float64 { return float64(t.ActiveFlows) },
	MetricTotalHosts:     func(t flowengine.Totals) float64 { return float64(t.ActiveHosts) },
	MetricTotalBytes:     func(t flowengine.Totals) float64 { return float64(t.BytesProcessed) },
	MetricTotalPackets:   func(t flowengine.Totals) float64 { return float64(t.PacketsProcessed) },
	MetricDroppedPackets: func(t flowengine.Totals) float64 { return float64(t.PacketsDropped) },
}

// Metrics returns the metric names rules may refer to.
func Metrics() []string {
	names := make([]string, 0, len(extractors))
	for name := range extractors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TotalsSource is what the alerter watches.
type TotalsSource interface {
	Totals() flowengine.Totals
}

// Alerter is responsible for evaluating the totals against predefined rules
// and triggering notifications if rules are violated.
type Alerter struct {
	source        TotalsSource
	rules         []config.AlerterRule
	notifier      notification.Notifier
	checkInterval time.Duration
	stopChan      chan struct{}
	wg            sync.WaitGroup
}

// NewAlerter creates a new Alerter instance.
func NewAlerter(cfg *config.AlerterConfig, source TotalsSource, notifier notification.Notifier) (*Alerter, error) {
	if cfg.CheckInterval <= 0 {
		return nil, fmt.Errorf("invalid check_interval for alerter: %s", cfg.CheckInterval.D())
	}
	for _, rule := range cfg.Rules {
		if _, ok := extractors[rule.Metric]; !ok {
			return nil, fmt.Errorf("rule %s: unknown metric %q", rule.Name, rule.Metric)
		}
	}

	return &Alerter{
		source:        source,
		rules:         cfg.Rules,
		notifier:      notifier,
		checkInterval: cfg.CheckInterval.D(),
		stopChan:      make(chan struct{}),
	}, nil
}

// Start begins the periodic evaluation of alert rules in the background.
func (a *Alerter) Start() {
	log.Println("Alerter started")

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		ticker := time.NewTicker(a.checkInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				a.Check()
			case <-a.stopChan:
				return
			}
		}
	}()
}

// Stop gracefully stops the alerter's evaluation loop and runs a last check.
func (a *Alerter) Stop() {
	log.Println("Stopping Alerter...")
	close(a.stopChan)
	a.wg.Wait()
	a.Check()
}

// Evaluate returns one message per violated rule.
func (a *Alerter) Evaluate(totals flowengine.Totals) []string {
	var messages []string
	for _, rule := range a.rules {
		value := extractors[rule.Metric](totals)
		if check(value, rule.Operator, rule.Threshold) {
			messages = append(messages, fmt.Sprintf(
				"<h2>%s</h2><p><b>%s</b> is %.0f (rule: %s %g)</p>",
				rule.Name, rule.Metric, value, rule.Operator, rule.Threshold))
		}
	}
	return messages
}

// Check evaluates every rule once and notifies when any of them fired.
func (a *Alerter) Check() {
	messages := a.Evaluate(a.source.Totals())
	if len(messages) == 0 {
		return
	}

	log.Printf("Alerter evaluation completed. %d alert(s) triggered.", len(messages))

	body := "<h1>Go2NetTop Alert Summary</h1>" +
		"<p>The following alerts were triggered during the last check:</p><hr>" +
		strings.Join(messages, "<hr>")

	if a.notifier != nil {
		subject := fmt.Sprintf("Go2NetTop Alert Summary (%d Triggered)", len(messages))
		if err := a.notifier.Send(subject, body); err != nil {
			log.Printf("ERROR: Failed to send consolidated alert notification: %v", err)
		} else {
			log.Printf("INFO: Consolidated alert notification sent successfully.")
		}
	}
}

func check(value float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return value > threshold
	case ">=":
		return value >= threshold
	case "<":
		return value < threshold
	case "<=":
		return value <= threshold
	case "==":
		return value == threshold
	case "!=":
		return value != threshold
	}
	return false
}
