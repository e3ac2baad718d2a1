// Package wsbus implements the WebSocket push bus (spec.md §6): a single
// endpoint speaking the MQTT-over-WebSocket-like subset the specification
// calls for (SUBSCRIBE, PUBLISH retained, UNSUBSCRIBE), decoded with the
// teacher's own MQTT dependency's wire-format package instead of a second
// hand-rolled codec.
package wsbus

import (
	"bytes"
	"net/http"
	"sync"

	"github.com/eclipse/paho.mqtt.golang/packets"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/linux-automation/tacd/internal/broker"
	"github.com/linux-automation/tacd/internal/topic"
)

// Hub upgrades HTTP connections to WebSocket and serves one SUBSCRIBE/
// PUBLISH/UNSUBSCRIBE session per connection.
type Hub struct {
	Broker   *broker.Broker
	Logger   *logrus.Logger
	Upgrader websocket.Upgrader

	mu      sync.Mutex
	clients int
}

// NewHub returns a Hub ready to serve upgrades against b.
func NewHub(b *broker.Broker, logger *logrus.Logger) *Hub {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Hub{
		Broker: b,
		Logger: logger,
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ClientCount reports the number of currently connected clients, exported
// for the /metrics gauge.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.clients
}

// ServeHTTP upgrades the request and runs the connection until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.WithError(err).Debug("wsbus: upgrade failed")
		return
	}
	h.mu.Lock()
	h.clients++
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		h.clients--
		h.mu.Unlock()
		_ = conn.Close()
	}()

	c := newConn(conn, h.Broker, h.Logger, broker.NewToken())
	c.run()
}

// conn is one client's subscription set plus its dedicated writer
// goroutine, modelled on the teacher's Bus: a non-blocking, drop-if-slow
// fan-out from topic callbacks into a single outbound channel, with the
// one goroutine that owns the socket reading that channel.
type conn struct {
	ws     *websocket.Conn
	broker *broker.Broker
	logger *logrus.Logger
	id     string

	out  chan packets.ControlPacket
	done chan struct{}

	mu   sync.Mutex
	subs map[string]*subscription
}

type subscription struct {
	path string
	sub  *topic.Subscription
}

func newConn(ws *websocket.Conn, b *broker.Broker, logger *logrus.Logger, id string) *conn {
	return &conn{
		ws:     ws,
		broker: b,
		logger: logger,
		id:     id,
		out:    make(chan packets.ControlPacket, 64),
		done:   make(chan struct{}),
		subs:   make(map[string]*subscription),
	}
}

func (c *conn) run() {
	go c.writeLoop()
	defer close(c.done)
	defer c.unsubscribeAll()

	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		cp, err := packets.ReadPacket(bytes.NewReader(data))
		if err != nil {
			c.logger.WithError(err).WithField("client", c.id).Debug("wsbus: bad control packet")
			continue
		}
		c.handle(cp)
	}
}

func (c *conn) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case cp, ok := <-c.out:
			if !ok {
				return
			}
			var buf bytes.Buffer
			if err := cp.Write(&buf); err != nil {
				continue
			}
			if err := c.ws.WriteMessage(websocket.BinaryMessage, buf.Bytes()); err != nil {
				return
			}
		}
	}
}

// enqueue is the non-blocking send used by subscription callbacks; a
// client too slow to drain its channel loses the message rather than
// stalling every other publisher, exactly as the teacher's Bus drops
// a full subscriber instead of blocking Publish.
func (c *conn) enqueue(cp packets.ControlPacket) {
	select {
	case c.out <- cp:
	default:
		c.logger.WithField("client", c.id).Warn("wsbus: client too slow, dropping message")
	}
}

func (c *conn) handle(cp packets.ControlPacket) {
	switch p := cp.(type) {
	case *packets.SubscribePacket:
		c.handleSubscribe(p)
	case *packets.PublishPacket:
		c.handlePublish(p)
	case *packets.UnsubscribePacket:
		c.handleUnsubscribe(p)
	case *packets.DisconnectPacket:
		_ = c.ws.Close()
	default:
		c.logger.WithField("client", c.id).Debug("wsbus: unsupported control packet")
	}
}

func (c *conn) handleSubscribe(p *packets.SubscribePacket) {
	granted := make([]byte, len(p.Topics))
	for i, path := range p.Topics {
		first := true
		sub, err := c.broker.Subscribe(path, func(data []byte) {
			pub := packets.NewControlPacket(packets.Publish).(*packets.PublishPacket)
			pub.TopicName = path
			pub.Payload = data
			pub.Retain = first
			first = false
			c.enqueue(pub)
		})
		if err != nil {
			granted[i] = 0x80 // MQTT "failure" return code
			continue
		}
		granted[i] = 0
		c.mu.Lock()
		if existing, ok := c.subs[path]; ok {
			existing.sub.Cancel()
		}
		c.subs[path] = &subscription{path: path, sub: sub}
		c.mu.Unlock()
	}

	ack := packets.NewControlPacket(packets.Suback).(*packets.SubackPacket)
	ack.MessageID = p.MessageID
	ack.ReturnCodes = granted
	c.enqueue(ack)
}

func (c *conn) handlePublish(p *packets.PublishPacket) {
	if err := c.broker.SetExternal(p.TopicName, p.Payload); err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"client": c.id,
			"path":   p.TopicName,
		}).Debug("wsbus: publish rejected")
	}
}

func (c *conn) handleUnsubscribe(p *packets.UnsubscribePacket) {
	c.mu.Lock()
	for _, path := range p.Topics {
		if s, ok := c.subs[path]; ok {
			s.sub.Cancel()
			delete(c.subs, path)
		}
	}
	c.mu.Unlock()

	ack := packets.NewControlPacket(packets.Unsuback).(*packets.UnsubackPacket)
	ack.MessageID = p.MessageID
	c.enqueue(ack)
}

func (c *conn) unsubscribeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for path, s := range c.subs {
		s.sub.Cancel()
		delete(c.subs, path)
	}
}
