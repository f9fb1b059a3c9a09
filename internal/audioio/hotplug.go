package audioio

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"github.com/machug/woofalytics-v2-sub000/internal/logging"
)

// DisconnectCallback is invoked when the configured capture device is
// removed, so the capture worker can stop draining a dead stream and fall
// into its device-retry loop immediately instead of waiting on a read
// timeout.
type DisconnectCallback func()

// HotplugMonitor watches udev netlink events for sound-card removal. It is
// strictly advisory: the capture worker's own read failures are what
// actually trigger recovery, so a failure to connect to netlink here is
// logged and otherwise ignored.
type HotplugMonitor struct {
	deviceName string
	logger     *slog.Logger
	onRemove   DisconnectCallback

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

// NewHotplugMonitor constructs a monitor for the named capture device. An
// empty deviceName still monitors sound subsystem removals generally, since
// the default-input-device resolution in capture.go has no stable name to
// match against.
func NewHotplugMonitor(deviceName string, logger *slog.Logger, onRemove DisconnectCallback) *HotplugMonitor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &HotplugMonitor{
		deviceName: strings.TrimSpace(deviceName),
		logger:     logging.NewComponentLogger(logger, "hotplug"),
		onRemove:   onRemove,
	}
}

// Start begins listening for udev netlink events. Non-fatal: a connection
// failure is logged and the monitor stays quiescent.
func (m *HotplugMonitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		m.logger.Warn("failed to connect to netlink socket; device-removal detection unavailable",
			logging.Error(err),
			logging.String(logging.FieldEventType, "netlink_connect_failed"),
			logging.String(logging.FieldErrorHint, "ensure the process has permission to access netlink sockets"),
			logging.String(logging.FieldImpact, "device removal relies on capture read failures instead"),
		)
		return nil
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true

	quit := m.quit
	go m.monitorLoop(ctx, quit)

	m.logger.Info("hotplug monitor started",
		logging.String(logging.FieldEventType, "hotplug_monitor_started"),
		logging.String("device", m.deviceName),
	)
	return nil
}

// Stop shuts the monitor down.
func (m *HotplugMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	if m.quit != nil {
		close(m.quit)
		m.quit = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.running = false
	m.logger.Info("hotplug monitor stopped",
		logging.String(logging.FieldEventType, "hotplug_monitor_stopped"),
	)
}

// Running reports whether the monitor is actively connected.
func (m *HotplugMonitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *HotplugMonitor) monitorLoop(ctx context.Context, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	matcher := m.buildMatcher()

	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return
	}

	monitorQuit := conn.Monitor(queue, errs, matcher)
	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			m.handleEvent(uevent)
		case err := <-errs:
			m.logger.Warn("hotplug monitor error",
				logging.Error(err),
				logging.String(logging.FieldEventType, "hotplug_monitor_error"),
			)
		}
	}
}

// buildMatcher matches sound-subsystem removal events.
func (m *HotplugMonitor) buildMatcher() netlink.Matcher {
	action := "remove"
	rule := netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "sound",
		},
	}
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(rule)
	return rules
}

func (m *HotplugMonitor) handleEvent(uevent netlink.UEvent) {
	devpath := uevent.Env["DEVPATH"]
	if m.deviceName != "" && !strings.Contains(strings.ToLower(devpath), strings.ToLower(m.deviceName)) {
		m.logger.Debug("ignoring removal for non-configured device",
			logging.String("devpath", devpath),
			logging.String("configured_device", m.deviceName),
		)
		return
	}

	m.logger.Warn("capture device removed",
		logging.String(logging.FieldEventType, "device_removed"),
		logging.String("devpath", devpath),
	)
	if m.onRemove != nil {
		m.onRemove()
	}
}
