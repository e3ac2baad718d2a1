package wsbus

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/eclipse/paho.mqtt.golang/packets"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/linux-automation/tacd/internal/broker"
	"github.com/linux-automation/tacd/internal/topic"
)

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(url, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func writePacket(t *testing.T, conn *websocket.Conn, cp packets.ControlPacket) {
	t.Helper()
	var buf strings.Builder
	require.NoError(t, cp.Write(&buf))
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte(buf.String())))
}

func TestSubscribeDeliversRetainedValue(t *testing.T) {
	logger := logrus.StandardLogger()
	b := broker.New(logger)
	top := topic.New[int](logger, "test/ws/value")
	top.Publish(7)
	broker.RegisterJSON(b, "/v1/test/value", top, true, nil)

	hub := NewHub(b, logger)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv.URL)

	sub := packets.NewControlPacket(packets.Subscribe).(*packets.SubscribePacket)
	sub.Topics = []string{"/v1/test/value"}
	sub.Qoss = []byte{0}
	sub.MessageID = 1
	writePacket(t, conn, sub)

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	sawSuback, sawPublish := false, false
	for i := 0; i < 2; i++ {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		cp, err := packets.ReadPacket(strings.NewReader(string(data)))
		require.NoError(t, err)
		switch p := cp.(type) {
		case *packets.SubackPacket:
			sawSuback = true
			require.Equal(t, uint16(1), p.MessageID)
		case *packets.PublishPacket:
			sawPublish = true
			require.Equal(t, "/v1/test/value", p.TopicName)
			require.Equal(t, "7", string(p.Payload))
			require.True(t, p.Retain)
		}
	}
	require.True(t, sawSuback)
	require.True(t, sawPublish)
}

func TestPublishRoutesThroughBroker(t *testing.T) {
	logger := logrus.StandardLogger()
	b := broker.New(logger)
	top := topic.New[bool](logger, "test/ws/flag")
	broker.RegisterJSON(b, "/v1/test/flag", top, true, nil)

	hub := NewHub(b, logger)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv.URL)

	pub := packets.NewControlPacket(packets.Publish).(*packets.PublishPacket)
	pub.TopicName = "/v1/test/flag"
	pub.Payload = []byte("true")
	writePacket(t, conn, pub)

	require.Eventually(t, func() bool {
		v, _, ok := top.Get()
		return ok && v
	}, time.Second, time.Millisecond)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	logger := logrus.StandardLogger()
	b := broker.New(logger)
	top := topic.New[int](logger, "test/ws/counter")
	broker.RegisterJSON(b, "/v1/test/counter", top, true, nil)

	hub := NewHub(b, logger)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv.URL)

	sub := packets.NewControlPacket(packets.Subscribe).(*packets.SubscribePacket)
	sub.Topics = []string{"/v1/test/counter"}
	sub.Qoss = []byte{0}
	sub.MessageID = 2
	writePacket(t, conn, sub)

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err := conn.ReadMessage() // suback
	require.NoError(t, err)

	unsub := packets.NewControlPacket(packets.Unsubscribe).(*packets.UnsubscribePacket)
	unsub.Topics = []string{"/v1/test/counter"}
	unsub.MessageID = 3
	writePacket(t, conn, unsub)

	_, data, err := conn.ReadMessage() // unsuback
	require.NoError(t, err)
	cp, err := packets.ReadPacket(strings.NewReader(string(data)))
	require.NoError(t, err)
	_, ok := cp.(*packets.UnsubackPacket)
	require.True(t, ok)

	top.Publish(42)
	_ = conn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	_, _, err = conn.ReadMessage()
	require.Error(t, err, "no further publish should arrive after unsubscribe")
}
