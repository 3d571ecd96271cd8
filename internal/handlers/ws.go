package handlers

import (
	"context"
	"encoding/json"
	"log"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bij27/hohm.studio/internal/database"
	"github.com/bij27/hohm.studio/internal/manifest"
	"github.com/bij27/hohm.studio/internal/models"
	"github.com/bij27/hohm.studio/internal/pose"
	"github.com/bij27/hohm.studio/internal/posture"
	"github.com/bij27/hohm.studio/internal/services"
	"github.com/bij27/hohm.studio/internal/session"
	"github.com/google/uuid"
)

const (
	wsReadTimeout   = 60 * time.Second
	wsWriteTimeout  = 10 * time.Second
	wsPingInterval  = 30 * time.Second
	wsSendBuffer    = 64
	maxLogsPerConn  = 10000
	rateLimitWindow = time.Second
	rateLimitBurst  = 15
)

// WSOptions carries the tunables shared by the session and posture
// endpoints.
type WSOptions struct {
	SnapshotPerSec   int
	AlertPreset      session.AlertPreset
	MaxMessageSizeKB int
}

func (o *WSOptions) applyDefaults() {
	if o.SnapshotPerSec < 1 {
		o.SnapshotPerSec = 10
	}
	if o.AlertPreset == "" {
		o.AlertPreset = session.AlertsModerate
	}
	if o.MaxMessageSizeKB < 1 {
		o.MaxMessageSizeKB = 64
	}
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsClient wraps one connection with a buffered send channel drained
// by a single write pump.
type wsClient struct {
	conn *websocket.Conn
	send chan interface{}

	closeOnce sync.Once
	done      chan struct{}
}

func newWSClient(conn *websocket.Conn) *wsClient {
	return &wsClient{
		conn: conn,
		send: make(chan interface{}, wsSendBuffer),
		done: make(chan struct{}),
	}
}

func (c *wsClient) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// push blocks until the message is queued or the client is gone.
// Protocol replies use it; they must not be lost.
func (c *wsClient) push(msg interface{}) {
	select {
	case c.send <- msg:
	case <-c.done:
	}
}

// tryPush queues the message only if there is room. Snapshots use it:
// a slow reader gets fewer snapshots, never a growing backlog.
func (c *wsClient) tryPush(msg interface{}) bool {
	select {
	case c.send <- msg:
		return true
	case <-c.done:
		return false
	default:
		services.GetMetrics().IncrementSnapshotDrops()
		return false
	}
}

// Цикл отправки в WebSocket
func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}

// rateLimiter is a sliding-window message limiter.
type rateLimiter struct {
	window time.Duration
	burst  int
	stamps []time.Time
}

func newRateLimiter(burst int, window time.Duration) *rateLimiter {
	return &rateLimiter{window: window, burst: burst}
}

func (rl *rateLimiter) allow() bool {
	now := time.Now()
	keep := rl.stamps[:0]
	for _, t := range rl.stamps {
		if now.Sub(t) < rl.window {
			keep = append(keep, t)
		}
	}
	rl.stamps = keep
	if len(rl.stamps) >= rl.burst {
		return false
	}
	rl.stamps = append(rl.stamps, now)
	return true
}

// parseFrame converts the wire landmark map (keys "0".."32") into a
// frame. Missing or malformed entries stay zero, which downstream
// code treats as a missing keypoint.
func parseFrame(raw map[string]json.RawMessage) (pose.Frame, bool) {
	var f pose.Frame
	if len(raw) == 0 {
		return f, false
	}
	seen := 0
	for i := 0; i < pose.NumLandmarks; i++ {
		data, ok := raw[intKeys[i]]
		if !ok {
			continue
		}
		var kp pose.Keypoint
		if err := json.Unmarshal(data, &kp); err != nil {
			continue
		}
		f[i] = kp
		seen++
	}
	return f, seen > 0
}

var intKeys = func() [pose.NumLandmarks]string {
	var keys [pose.NumLandmarks]string
	for i := range keys {
		keys[i] = strconv.Itoa(i)
	}
	return keys
}()

func serverMsg(typ string, data interface{}) models.ServerMessage {
	return models.ServerMessage{Type: typ, Data: data, Timestamp: time.Now().Unix()}
}

// SessionWS serves /ws/session: one yoga coaching session per
// connection. The client first configures a manifest, then streams
// landmark frames and commands; the server pushes state snapshots,
// correction alerts, and the final report.
func SessionWS(opts WSOptions) http.HandlerFunc {
	opts.applyDefaults()

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := wsUpgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[WS] upgrade failed: %v", err)
			return
		}

		metrics := services.GetMetrics()
		metrics.IncrementWebSocketConnections()

		client := newWSClient(conn)
		go client.writePump()

		var owner *int
		if userID, ok := getUserIDFromCookie(r); ok {
			owner = &userID
		}

		sess := &sessionConn{
			client:  client,
			opts:    opts,
			owner:   owner,
			id:      uuid.NewString(),
			limiter: newRateLimiter(rateLimitBurst, rateLimitWindow),
		}

		log.Printf("[WS] session client connected: %s", sess.id)
		defer func() {
			sess.finish()
			client.close()
			metrics.DecrementWebSocketConnections()
			log.Printf("[WS] session client disconnected: %s", sess.id)
		}()

		conn.SetReadLimit(int64(opts.MaxMessageSizeKB) * 1024)
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
			return nil
		})

		for {
			var msg models.ClientMessage
			if err := conn.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("[WS] session %s read error: %v", sess.id, err)
					metrics.IncrementWebSocketErrors()
				}
				return
			}
			conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
			metrics.IncrementWebSocketMessages()

			if !sess.limiter.allow() {
				continue
			}
			sess.handle(msg)
		}
	}
}

// sessionConn is the per-connection state of /ws/session.
type sessionConn struct {
	client  *wsClient
	opts    WSOptions
	owner   *int
	id      string
	limiter *rateLimiter

	engine    *session.Engine
	startedAt time.Time
	stop      chan struct{}
	saveOnce  sync.Once
}

func (s *sessionConn) handle(msg models.ClientMessage) {
	switch msg.Action {
	case "configure":
		s.configure(msg)

	case "landmarks":
		if s.engine == nil {
			return
		}
		frame, ok := parseFrame(msg.Landmarks)
		detected := ok
		if msg.Detected != nil {
			detected = *msg.Detected && ok
		}
		s.engine.OnFrame(frame, detected)
		services.GetMetrics().IncrementFrames()

	case "command":
		if s.engine == nil {
			return
		}
		cmd, err := session.ParseCommand(msg.Command)
		if err != nil {
			s.client.push(serverMsg("error", models.ErrorResponse{
				Error:     err.Error(),
				Timestamp: time.Now().Unix(),
				Code:      "bad_command",
			}))
			return
		}
		s.engine.Apply(cmd)

	case "voice_done":
		if s.engine != nil {
			s.engine.VoiceDone()
		}

	case "pong":

	default:
		log.Printf("[WS] session %s: unknown action %q", s.id, msg.Action)
	}
}

func (s *sessionConn) configure(msg models.ClientMessage) {
	if s.engine != nil {
		s.client.push(serverMsg("error", models.ErrorResponse{
			Error:     "session already configured",
			Timestamp: time.Now().Unix(),
			Code:      "already_configured",
		}))
		return
	}
	if msg.Manifest == nil {
		s.client.push(serverMsg("error", models.ErrorResponse{
			Error:     "configure requires manifest options",
			Timestamp: time.Now().Unix(),
			Code:      "bad_configure",
		}))
		return
	}

	gen, lib, err := generator()
	if err != nil {
		log.Printf("[WS] pose library error: %v", err)
		s.client.push(serverMsg("error", models.ErrorResponse{
			Error:     "internal error",
			Timestamp: time.Now().Unix(),
		}))
		return
	}

	m, err := gen.Generate(manifest.Options{
		DurationMins: msg.Manifest.DurationMins,
		Focus:        msg.Manifest.Focus,
		Difficulty:   msg.Manifest.Difficulty,
		PoseIDs:      msg.Manifest.PoseIDs,
		Style:        msg.Manifest.Style,
		Seed:         msg.Manifest.Seed,
	})
	if err != nil {
		s.client.push(serverMsg("error", models.ErrorResponse{
			Error:     "failed to generate manifest: " + err.Error(),
			Timestamp: time.Now().Unix(),
			Code:      "bad_manifest",
		}))
		return
	}

	items, err := m.SessionItems(lib)
	if err != nil {
		log.Printf("[WS] manifest items error: %v", err)
		s.client.push(serverMsg("error", models.ErrorResponse{
			Error:     "failed to build session",
			Timestamp: time.Now().Unix(),
		}))
		return
	}

	engine, err := session.New(session.Config{
		Items:       items,
		Timing:      m.SessionTiming(),
		AlertPreset: s.opts.AlertPreset,
		OnAlert: func(a session.Alert) {
			services.GetMetrics().IncrementAlerts()
			s.client.push(serverMsg("alert", a))
		},
	})
	if err != nil {
		log.Printf("[WS] engine build error: %v", err)
		s.client.push(serverMsg("error", models.ErrorResponse{
			Error:     "failed to build session",
			Timestamp: time.Now().Unix(),
		}))
		return
	}

	s.engine = engine
	s.id = m.SessionID
	s.startedAt = time.Now()
	s.stop = make(chan struct{})
	go s.runTicks()

	log.Printf("[SESSION] configured %s: %d segments, style %s", s.id, len(items), m.Timing.SessionStyle)
	s.client.push(serverMsg("manifest", m))
	s.client.push(serverMsg("session_started", map[string]string{"session_id": s.id}))
}

// runTicks drives the engine clock and mirrors snapshots back to the
// client until the session completes or the connection drops.
func (s *sessionConn) runTicks() {
	tick := time.NewTicker(time.Second)
	snap := time.NewTicker(time.Second / time.Duration(s.opts.SnapshotPerSec))
	defer tick.Stop()
	defer snap.Stop()

	for {
		select {
		case <-tick.C:
			s.engine.OnTick()
			if s.engine.Phase() == session.PhaseComplete {
				s.finish()
				return
			}

		case <-snap.C:
			s.client.tryPush(serverMsg("snapshot", s.engine.Snapshot()))
			if s.engine.Phase() == session.PhaseTransitioning {
				s.client.tryPush(serverMsg("overlay", s.engine.OverlayFrame()))
			}

		case <-s.stop:
			return

		case <-s.client.done:
			return
		}
	}
}

// finish ends the session if needed, sends the report, and persists
// the summary exactly once.
func (s *sessionConn) finish() {
	if s.engine == nil {
		return
	}
	s.saveOnce.Do(func() {
		if s.engine.Phase() != session.PhaseComplete {
			s.engine.Apply(session.CmdEnd)
			s.engine.OnTick()
		}
		if s.stop != nil {
			close(s.stop)
		}

		report := s.engine.Report()
		s.client.push(serverMsg("report", report))

		if database.DB == nil {
			return
		}
		now := time.Now()
		goodPct := 0.0
		if report.TotalSeconds > 0 {
			goodPct = float64(report.PerfectSeconds+report.GoodSeconds) / float64(report.TotalSeconds) * 100
		}
		rec := models.PracticeSession{
			ID:              s.id,
			UserID:          s.owner,
			Kind:            "yoga",
			StartTime:       s.startedAt,
			EndTime:         &now,
			DurationMinutes: math.Round(now.Sub(s.startedAt).Minutes()*100) / 100,
			GoodPercentage:  math.Round(goodPct*100) / 100,
			AverageScore:    report.Grade,
			Grade:           report.Letter,
			TotalLogs:       0,
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := database.SaveSession(ctx, rec); err != nil {
			log.Printf("[SESSION] save failed for %s: %v", s.id, err)
		} else {
			log.Printf("[SESSION] saved: %s", s.id)
		}
	})
}

// PostureWS serves /ws/posture: desk-posture calibration and
// continuous monitoring on one connection.
func PostureWS(opts WSOptions) http.HandlerFunc {
	opts.applyDefaults()

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := wsUpgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[WS] upgrade failed: %v", err)
			return
		}

		metrics := services.GetMetrics()
		metrics.IncrementWebSocketConnections()

		client := newWSClient(conn)
		go client.writePump()

		var owner *int
		if userID, ok := getUserIDFromCookie(r); ok {
			owner = &userID
		}

		pc := &postureConn{
			client:   client,
			owner:    owner,
			monitor:  posture.NewMonitor(nil),
			throttle: session.NewThrottle(opts.AlertPreset),
			limiter:  newRateLimiter(rateLimitBurst, rateLimitWindow),
			stop:     make(chan struct{}),
		}
		go pc.runTicks()

		log.Printf("[WS] posture client connected: %s", pc.monitor.ID())
		defer func() {
			pc.autoSave()
			close(pc.stop)
			client.close()
			metrics.DecrementWebSocketConnections()
			log.Printf("[WS] posture client disconnected: %s", pc.monitor.ID())
		}()

		conn.SetReadLimit(int64(opts.MaxMessageSizeKB) * 1024)
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
			return nil
		})

		for {
			var msg models.ClientMessage
			if err := conn.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("[WS] posture read error: %v", err)
					metrics.IncrementWebSocketErrors()
				}
				return
			}
			conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
			metrics.IncrementWebSocketMessages()

			if !pc.limiter.allow() {
				continue
			}
			pc.handle(msg)
		}
	}
}

// postureConn is the per-connection state of /ws/posture.
type postureConn struct {
	client   *wsClient
	owner    *int
	monitor  *posture.Monitor
	throttle *session.Throttle
	limiter  *rateLimiter
	stop     chan struct{}

	active       bool
	saved        bool
	audioEnabled bool
	startedAt    time.Time
	logCount     int
	mu           sync.Mutex
}

func (p *postureConn) runTicks() {
	tick := time.NewTicker(time.Second)
	defer tick.Stop()
	for {
		select {
		case <-tick.C:
			p.monitor.OnTick()
		case <-p.stop:
			return
		case <-p.client.done:
			return
		}
	}
}

func (p *postureConn) handle(msg models.ClientMessage) {
	switch msg.Action {
	case "calibrate_landmarks":
		frame, ok := parseFrame(msg.Landmarks)
		if !ok {
			p.client.push(serverMsg("calibration_warning", map[string]string{
				"message": "No landmarks detected",
			}))
			return
		}
		status := p.monitor.OnFrame(frame)
		if status.State == "monitoring" {
			p.client.push(serverMsg("calibration_complete", status))
		} else {
			p.client.push(serverMsg("calibration_progress", status))
		}

	case "process_landmarks":
		p.mu.Lock()
		active := p.active
		p.mu.Unlock()
		frame, ok := parseFrame(msg.Landmarks)
		if !ok || !active {
			return
		}
		status := p.monitor.OnFrame(frame)
		services.GetMetrics().IncrementFrames()

		if status.State == "monitoring" {
			fired := p.throttle.Observe(time.Now(), status.Zone == "bad")
			if fired {
				services.GetMetrics().IncrementAlerts()
				advice := posture.Recommendations([]string{status.WorstMetric})
				p.client.push(serverMsg("alert", map[string]interface{}{
					"message":    advice[0],
					"play_sound": p.audioOn(),
				}))
			}
		}
		p.client.tryPush(serverMsg("metrics", status))

	case "start_session":
		p.mu.Lock()
		p.active = true
		p.saved = false
		p.startedAt = time.Now()
		p.logCount = 0
		p.mu.Unlock()
		log.Printf("[SESSION] started posture session: %s", p.monitor.ID())
		p.client.push(serverMsg("session_started", map[string]string{
			"session_id": p.monitor.ID().String(),
		}))

	case "stop_session":
		summary, ok := p.save()
		if !ok {
			return
		}
		p.client.push(serverMsg("session_stopped", summary))

	case "toggle_audio":
		p.mu.Lock()
		p.audioEnabled = msg.Enabled == nil || *msg.Enabled
		p.mu.Unlock()

	case "log_posture":
		p.logPosture(msg)

	case "pong":

	default:
		log.Printf("[WS] posture: unknown action %q", msg.Action)
	}
}

func (p *postureConn) audioOn() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.audioEnabled
}

// save stops the monitor and persists the summary. The second call is
// a no-op returning ok=false.
func (p *postureConn) save() (posture.Summary, bool) {
	p.mu.Lock()
	if p.saved || !p.active {
		p.mu.Unlock()
		return posture.Summary{}, false
	}
	p.saved = true
	p.active = false
	startedAt := p.startedAt
	logCount := p.logCount
	p.mu.Unlock()

	summary := p.monitor.Stop()

	if database.DB != nil {
		now := time.Now()
		rec := models.PracticeSession{
			ID:              summary.SessionID,
			UserID:          p.owner,
			Kind:            "desk",
			StartTime:       startedAt,
			EndTime:         &now,
			DurationMinutes: math.Round(summary.DurationMinutes*100) / 100,
			GoodPercentage:  summary.GoodPercentage,
			AverageScore:    summary.Grade,
			TotalLogs:       logCount,
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := database.SaveSession(ctx, rec); err != nil {
			log.Printf("[SESSION] save failed for %s: %v", summary.SessionID, err)
		} else {
			log.Printf("[SESSION] saved: %s", summary.SessionID)
		}
	}
	return summary, true
}

// autoSave persists a still-active session when the connection drops.
func (p *postureConn) autoSave() {
	p.mu.Lock()
	needed := p.active && !p.saved
	p.mu.Unlock()
	if needed {
		log.Printf("[SESSION] auto-saving active session: %s", p.monitor.ID())
		p.save()
	}
}

func (p *postureConn) logPosture(msg models.ClientMessage) {
	p.mu.Lock()
	if !p.active || p.logCount >= maxLogsPerConn {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	status := msg.Status
	if status != "good" && status != "warning" && status != "bad" {
		status = "bad"
	}
	score := 0.0
	if msg.Score != nil && !math.IsNaN(*msg.Score) && !math.IsInf(*msg.Score, 0) {
		score = math.Max(0, math.Min(10, *msg.Score))
	}
	issues := msg.Issues
	if len(issues) > 10 {
		issues = issues[:10]
	}
	for i, issue := range issues {
		if len(issue) > 50 {
			issues[i] = issue[:50]
		}
	}

	if database.DB == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := database.SaveLog(ctx, models.PostureLog{
		SessionID: p.monitor.ID().String(),
		Timestamp: time.Now(),
		Status:    status,
		Score:     score,
		Issues:    issues,
	})
	if err != nil {
		log.Printf("[LOG] failed to save: %v", err)
		return
	}
	p.mu.Lock()
	p.logCount++
	p.mu.Unlock()
}
