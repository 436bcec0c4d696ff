package http

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Pimboto/DarkStackBackend/internal/domain/entity"
	"github.com/Pimboto/DarkStackBackend/internal/eventbus"
	"github.com/Pimboto/DarkStackBackend/internal/intake"
)

// upgrader mirrors the teacher-pack's permissive same-origin-agnostic
// websocket upgrade (bobmcallan-vire's internal/services/jobmanager/websocket.go);
// CORS policy is a transport edge concern left to the deployer's reverse proxy.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wireEvent is the event payload shape spec §6 describes:
// `{event, tenantId, jobId?, parentId?, timestamp, ...type-specific}`.
type wireEvent struct {
	Event     string    `json:"event"`
	TenantID  string    `json:"tenantId"`
	JobID     string    `json:"jobId,omitempty"`
	ParentID  string    `json:"parentId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// controlMessage is one client->server frame: subscribe actions beyond the
// initial connect (spec §6 "monitorJob(jobId) / monitorGroup(parentId) /
// unmonitor(jobId)").
type controlMessage struct {
	Action   string `json:"action"`
	JobID    string `json:"jobId,omitempty"`
	ParentID string `json:"parentId,omitempty"`
}

// wsClient adapts one websocket connection to fanout.Subscriber, directly
// generalizing bobmcallan-vire's JobWSClient (per-connection buffered send
// channel, ping-driven writePump, readPump only used to detect close/control
// frames).
type wsClient struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

// Deliver implements fanout.Subscriber: marshal ev into the wire shape and
// queue it for the writePump, dropping it rather than blocking if the
// client has fallen behind.
func (w *wsClient) Deliver(ev eventbus.Event) {
	data, err := json.Marshal(wireEvent{
		Event: string(ev.Name), TenantID: ev.TenantID, JobID: ev.JobID, ParentID: ev.ParentID,
		Timestamp: time.Now(), Payload: ev.Payload,
	})
	if err != nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	select {
	case w.send <- data:
	default:
	}
}

func (w *wsClient) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.closed = true
		close(w.send)
	}
}

// Subscribe handles GET /tenants/:tenant/subscribe: upgrades to a websocket
// and joins the caller to its tenant's user room (spec §4.9), then processes
// monitorJob/monitorGroup/unmonitor control frames for the life of the
// connection.
func (h *Handlers) Subscribe(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	client := &wsClient{conn: conn, send: make(chan []byte, 256)}
	tenantID := c.Param("tenant")
	subscriberID := uuid.NewString()

	sub, unsubscribe := h.api.Subscribe(tenantID, subscriberID, client)
	defer unsubscribe()

	go client.writePump()
	client.readPump(h.api, sub)
}

func (w *wsClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		w.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-w.send:
			w.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				w.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := w.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			w.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := w.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (w *wsClient) readPump(api *intake.API, sub *entity.Subscription) {
	defer w.close()
	w.conn.SetReadLimit(4096)
	w.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	w.conn.SetPongHandler(func(string) error {
		w.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, data, err := w.conn.ReadMessage()
		if err != nil {
			return
		}
		var ctrl controlMessage
		if err := json.Unmarshal(data, &ctrl); err != nil {
			continue
		}
		switch ctrl.Action {
		case "monitorJob":
			if ctrl.JobID != "" {
				api.MonitorJob(sub, ctrl.JobID, w)
			}
		case "monitorGroup":
			if ctrl.ParentID != "" {
				api.MonitorGroup(sub, ctrl.ParentID, w)
			}
		case "unmonitor":
			if ctrl.JobID != "" {
				api.UnmonitorJob(sub, ctrl.JobID)
			}
		}
	}
}
