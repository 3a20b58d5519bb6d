package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gus-bms/db-checker/internal/metrics"
	"github.com/gus-bms/db-checker/internal/model"
	"github.com/gus-bms/db-checker/internal/store"
)

// Cache is the read side of the store used for catch-up pushes.
type Cache interface {
	ReadLatest(ctx context.Context) (*model.Snapshot, *model.ProcessList, error)
	ReadSeries(ctx context.Context, q store.SeriesQuery) (model.SeriesWindow, error)
}

// Config holds gateway configuration.
type Config struct {
	PushWindow     time.Duration // Series window pushed on subscribe (default: 15m)
	OutboxSize     int           // Frames buffered per connection (default: 64)
	WriteTimeout   time.Duration // Per-frame write deadline (default: 5s)
	PingInterval   time.Duration // Keepalive ping period (default: 30s)
	PongWait       time.Duration // Read deadline extended by each pong (default: 2x ping)
	ReadLimit      int64         // Max inbound frame size (default: 4KiB)
	CacheTimeout   time.Duration // Bound on catch-up reads (default: 3s)
	AllowedOrigins []string      // Empty allows any origin
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		PushWindow:   15 * time.Minute,
		OutboxSize:   64,
		WriteTimeout: 5 * time.Second,
		PingInterval: 30 * time.Second,
		PongWait:     60 * time.Second,
		ReadLimit:    4096,
		CacheTimeout: 3 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PushWindow <= 0 {
		c.PushWindow = d.PushWindow
	}
	if c.OutboxSize <= 0 {
		c.OutboxSize = d.OutboxSize
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.PingInterval <= 0 {
		c.PingInterval = d.PingInterval
	}
	if c.PongWait <= 0 {
		c.PongWait = 2 * c.PingInterval
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = d.ReadLimit
	}
	if c.CacheTimeout <= 0 {
		c.CacheTimeout = d.CacheTimeout
	}
	return c
}

// Stats is a point-in-time view of hub activity.
type Stats struct {
	Connections         int
	Queued              int // Frames waiting in connection outboxes
	SnapshotEncodes     int64
	ProcessListEncodes  int64
	SnapshotsSkipped    int64
	ProcessListsSkipped int64
	Dropped             int64
}

// Hub tracks live connections and their subscriptions, and fans out new data.
type Hub struct {
	cfg      Config
	cache    Cache
	metrics  *metrics.Metrics
	logger   *slog.Logger
	upgrader websocket.Upgrader
	now      func() time.Time

	mu     sync.RWMutex
	conns  map[*Conn]Subscription
	closed bool

	snapshotEncodes     atomic.Int64
	processListEncodes  atomic.Int64
	snapshotsSkipped    atomic.Int64
	processListsSkipped atomic.Int64
	dropped             atomic.Int64
}

// NewHub creates a Hub. cache may be nil, in which case subscribe pushes nothing.
func NewHub(cfg Config, cache Cache, m *metrics.Metrics, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	h := &Hub{
		cfg:     cfg,
		cache:   cache,
		metrics: m,
		logger:  logger,
		now:     time.Now,
		conns:   make(map[*Conn]Subscription),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	m.ObserveOutboxQueued(h.queued)
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 || slices.Contains(h.cfg.AllowedOrigins, "*") {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return slices.Contains(h.cfg.AllowedOrigins, origin)
}

// ServeHTTP upgrades the request and starts the connection's pumps.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	c := h.attach(ws)
	if c == nil {
		ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second),
		)
		ws.Close()
		return
	}
	c.start()
}

// attach registers a new connection with an empty subscription.
// Returns nil once the hub is closed.
func (h *Hub) attach(ws *websocket.Conn) *Conn {
	c := newConn(h, ws)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.conns[c] = Subscription{}
	n := len(h.conns)
	h.mu.Unlock()

	h.metrics.AddConnections(1)
	h.logger.Debug("subscriber connected", "connections", n)
	return c
}

// detach forgets a connection. Safe to call more than once.
func (h *Hub) detach(c *Conn) {
	h.mu.Lock()
	_, ok := h.conns[c]
	delete(h.conns, c)
	n := len(h.conns)
	h.mu.Unlock()

	if ok {
		h.metrics.AddConnections(-1)
		h.logger.Debug("subscriber disconnected", "connections", n)
	}
}

// Len returns the number of live connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// subscription returns a connection's current state.
func (h *Hub) subscription(c *Conn) (Subscription, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sub, ok := h.conns[c]
	return sub, ok
}

func (h *Hub) setSubscription(c *Conn, sub Subscription) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[c]; !ok {
		return false
	}
	h.conns[c] = sub
	return true
}

// targets returns every connection in any of the given groups, once each.
func (h *Hub) targets(groups ...Interest) []*Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []*Conn
	for c, sub := range h.conns {
		for _, g := range groups {
			if sub.Has(g) {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// PublishSnapshot delivers a new snapshot to the union of the snapshot and
// time-series groups. Nothing is encoded when both groups are empty.
func (h *Hub) PublishSnapshot(_ context.Context, snap model.Snapshot) error {
	targets := h.targets(InterestSnapshot, InterestTimeSeries)
	if len(targets) == 0 {
		h.snapshotsSkipped.Add(1)
		h.metrics.IncEncodeSkipped(EventSnapshot)
		return nil
	}

	frame, err := encodeEvent(0, EventSnapshot, snapshotData{Snapshot: snap})
	if err != nil {
		return err
	}
	h.snapshotEncodes.Add(1)
	h.metrics.IncBroadcast(EventSnapshot)

	for _, c := range targets {
		c.deliver(frame)
	}
	return nil
}

// PublishProcessList delivers a new process list to its group, if non-empty.
func (h *Hub) PublishProcessList(_ context.Context, pl model.ProcessList) error {
	targets := h.targets(InterestProcessList)
	if len(targets) == 0 {
		h.processListsSkipped.Add(1)
		h.metrics.IncEncodeSkipped(EventProcessList)
		return nil
	}

	frame, err := encodeEvent(0, EventProcessList, processListData{ProcessList: pl})
	if err != nil {
		return err
	}
	h.processListEncodes.Add(1)
	h.metrics.IncBroadcast(EventProcessList)

	for _, c := range targets {
		c.deliver(frame)
	}
	return nil
}

// handleMessage processes one inbound frame from c.
func (h *Hub) handleMessage(ctx context.Context, c *Conn, data []byte) {
	msg, err := decodeClientMessage(data)
	if err != nil {
		c.reply(0, Ack{Error: err.Error()})
		return
	}

	switch msg.Event {
	case EventSubscribe:
		h.handleSubscribe(ctx, c, msg)
	case EventUnsubscribe:
		h.handleUnsubscribe(c, msg)
	default:
		c.reply(msg.ID, Ack{Error: "unknown event " + msg.Event})
	}
}

func (h *Hub) handleSubscribe(ctx context.Context, c *Conn, msg clientMessage) {
	payload, err := decodePayload(msg.Data)
	if err != nil {
		c.reply(msg.ID, Ack{Error: err.Error()})
		return
	}

	sub := payload.Resolve()

	// Membership is published before the cache read so no update is missed,
	// but broadcasts are held until the cached values are queued.
	c.hold()
	defer c.release()
	if !h.setSubscription(c, sub) {
		return
	}

	h.pushLatest(ctx, c, sub)
	c.reply(msg.ID, Ack{OK: true, Subscribed: &sub})
}

func (h *Hub) handleUnsubscribe(c *Conn, msg clientMessage) {
	payload, err := decodePayload(msg.Data)
	if err != nil {
		c.reply(msg.ID, Ack{Error: err.Error()})
		return
	}

	cur, ok := h.subscription(c)
	if !ok {
		return
	}

	var next Subscription
	if payload != nil {
		drop := payload.Resolve()
		next = Subscription{
			Snapshot:    cur.Snapshot && !drop.Snapshot,
			ProcessList: cur.ProcessList && !drop.ProcessList,
			TimeSeries:  cur.TimeSeries && !drop.TimeSeries,
		}
	}
	if !h.setSubscription(c, next) {
		return
	}
	c.reply(msg.ID, Ack{OK: true, Subscribed: &next})
}

// pushLatest sends cached data for each expressed interest. Cache failures
// are logged and the push is skipped; the subscription itself stands.
func (h *Hub) pushLatest(ctx context.Context, c *Conn, sub Subscription) {
	if h.cache == nil || sub.Empty() {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, h.cfg.CacheTimeout)
	defer cancel()

	if sub.Snapshot || sub.ProcessList {
		snap, pl, err := h.cache.ReadLatest(ctx)
		if err != nil {
			h.logger.Warn("catch-up read failed", "error", err)
		} else {
			if sub.Snapshot && snap != nil {
				c.emit(EventSnapshot, snapshotData{Snapshot: *snap})
			}
			if sub.ProcessList && pl != nil {
				c.emit(EventProcessList, processListData{ProcessList: *pl})
			}
		}
	}

	if sub.TimeSeries {
		to := h.now().UnixMilli()
		from := to - h.cfg.PushWindow.Milliseconds()
		window, err := h.cache.ReadSeries(ctx, store.SeriesQuery{From: &from, To: &to})
		if err != nil {
			h.logger.Warn("catch-up series read failed", "error", err)
			return
		}
		if window.Items == nil {
			window.Items = []model.Snapshot{}
		}
		c.emit(EventTimeSeries, window)
	}
}

// queued sums outbox depth across connections.
func (h *Hub) queued() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for c := range h.conns {
		n += c.outbox.Len()
	}
	return n
}

// Stats returns hub statistics.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	conns, queued := len(h.conns), 0
	for c := range h.conns {
		queued += c.outbox.Stats().Count
	}
	h.mu.RUnlock()

	return Stats{
		Connections:         conns,
		Queued:              queued,
		SnapshotEncodes:     h.snapshotEncodes.Load(),
		ProcessListEncodes:  h.processListEncodes.Load(),
		SnapshotsSkipped:    h.snapshotsSkipped.Load(),
		ProcessListsSkipped: h.processListsSkipped.Load(),
		Dropped:             h.dropped.Load(),
	}
}

// Close disconnects every connection and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	conns := make([]*Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
}
