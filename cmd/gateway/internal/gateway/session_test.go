package gateway_test

import (
	"encoding/json"
	"errors"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket" // Using Gorilla for the test CLIENT
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shubham-shewale/crypto-stream/cmd/gateway/internal/auth"
	"github.com/shubham-shewale/crypto-stream/cmd/gateway/internal/gateway"
	"github.com/shubham-shewale/crypto-stream/cmd/gateway/internal/hub"
	"github.com/shubham-shewale/crypto-stream/cmd/gateway/internal/testutils"
	"github.com/shubham-shewale/crypto-stream/pkg/models"
)

const secret = "gateway-test-secret"

type testServer struct {
	*httptest.Server
	registry *hub.Registry
	bus      *hub.Bus
}

func startServer(t *testing.T, opts gateway.Options) *testServer {
	t.Helper()
	registry := hub.NewRegistry(4, zap.NewNop())
	bus := hub.NewBus(registry, zap.NewNop(), nil)
	directory := testutils.NewMockDirectory(
		models.User{ID: 1, Username: "alice"},
		models.User{ID: 2, Username: "bob"},
	)
	a := auth.NewJWTAuthenticator(secret, directory, zap.NewNop())
	srv := httptest.NewServer(gateway.NewHandler(a, registry, zap.NewNop(), nil, opts))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, registry: registry, bus: bus}
}

func (s *testServer) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws/crypto/"
	if token != "" {
		url += "?token=" + token
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func validToken(userID int64) string {
	return testutils.SignToken(secret, userID, time.Now().Add(time.Hour))
}

func send(t *testing.T, conn *websocket.Conn, msg string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))
}

func read(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	return string(msg)
}

func TestHandshake_RejectsWithCloseCodes(t *testing.T) {
	srv := startServer(t, gateway.DefaultOptions())

	tests := []struct {
		name  string
		token string
		code  int
	}{
		{name: "missing token", token: "", code: auth.CloseMissingToken},
		{name: "invalid token", token: "garbage", code: auth.CloseInvalidToken},
		{name: "expired token", token: testutils.SignToken(secret, 1, time.Now().Add(-time.Minute)), code: auth.CloseInvalidToken},
		{name: "unknown user", token: validToken(42), code: auth.CloseUnknownUser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := srv.dial(t, tt.token)
			conn.SetReadDeadline(time.Now().Add(2 * time.Second))
			_, _, err := conn.ReadMessage()

			var ce *websocket.CloseError
			require.True(t, errors.As(err, &ce), "expected close error, got %v", err)
			assert.Equal(t, tt.code, ce.Code)
		})
	}
}

func TestSession_SubscribeNormalisesAndSorts(t *testing.T) {
	srv := startServer(t, gateway.DefaultOptions())
	conn := srv.dial(t, validToken(1))

	send(t, conn, `{"action":"subscribe","symbols":["eth"," btc ","BTC"]}`)
	assert.JSONEq(t, `{"status":"subscribed","symbols":["BTC","ETH"]}`, read(t, conn))

	send(t, conn, `{"action":"subscribe","symbols":["btc"]}`)
	assert.JSONEq(t, `{"status":"subscribed","symbols":["BTC","ETH"]}`, read(t, conn))

	assert.Len(t, srv.registry.MembersOf("BTC"), 1)
	assert.Len(t, srv.registry.MembersOf("ETH"), 1)
}

func TestSession_UnsubscribeRoundTrip(t *testing.T) {
	srv := startServer(t, gateway.DefaultOptions())
	conn := srv.dial(t, validToken(1))

	send(t, conn, `{"action":"subscribe","symbols":["BTC"]}`)
	read(t, conn)

	send(t, conn, `{"action":"unsubscribe","symbols":["btc","DOGE"]}`)
	assert.JSONEq(t, `{"status":"unsubscribed","symbols":[]}`, read(t, conn))
	assert.Empty(t, srv.registry.MembersOf("BTC"))

	srv.bus.Publish("BTC", []byte(`{"type":"price"}`))
	send(t, conn, `{"action":"subscribe","symbols":[]}`)
	assert.JSONEq(t, `{"status":"subscribed","symbols":[]}`, read(t, conn), "no price event may arrive after unsubscribe")
}

func TestSession_ErrorsKeepConnectionOpen(t *testing.T) {
	srv := startServer(t, gateway.DefaultOptions())
	conn := srv.dial(t, validToken(1))

	send(t, conn, `{"action":"fly","symbols":["BTC"]}`)
	assert.JSONEq(t, `{"error":"unknown_action"}`, read(t, conn))

	send(t, conn, `{ "action": "subsc`)
	assert.JSONEq(t, `{"error":"invalid_message"}`, read(t, conn))

	send(t, conn, `{"action":"subscribe","symbols":["SOL"]}`)
	assert.JSONEq(t, `{"status":"subscribed","symbols":["SOL"]}`, read(t, conn))
}

func TestSession_AnswersClientPing(t *testing.T) {
	srv := startServer(t, gateway.DefaultOptions())
	conn := srv.dial(t, validToken(1))

	pongs := make(chan string, 1)
	conn.SetPongHandler(func(appData string) error {
		pongs <- appData
		return nil
	})

	require.NoError(t, conn.WriteControl(websocket.PingMessage, []byte("hi"), time.Now().Add(time.Second)))
	send(t, conn, `{"action":"subscribe","symbols":["BTC"]}`)

	// the pong is queued ahead of the ack, so reading the ack runs the handler first
	assert.JSONEq(t, `{"status":"subscribed","symbols":["BTC"]}`, read(t, conn))
	select {
	case got := <-pongs:
		assert.Equal(t, "hi", got)
	default:
		t.Fatal("Expected a pong echoing the ping payload")
	}
}

func TestSession_BinaryFrameIsRejected(t *testing.T) {
	srv := startServer(t, gateway.DefaultOptions())
	conn := srv.dial(t, validToken(1))

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte(`{"action":"subscribe","symbols":["BTC"]}`)))
	assert.JSONEq(t, `{"error":"invalid_message"}`, read(t, conn))

	send(t, conn, `{"action":"subscribe","symbols":["ETH"]}`)
	assert.JSONEq(t, `{"status":"subscribed","symbols":["ETH"]}`, read(t, conn))
}

func TestSession_ReceivesPublishedPrices(t *testing.T) {
	srv := startServer(t, gateway.DefaultOptions())
	btc := srv.dial(t, validToken(1))
	eth := srv.dial(t, validToken(2))

	send(t, btc, `{"action":"subscribe","symbols":["BTC"]}`)
	read(t, btc)
	send(t, eth, `{"action":"subscribe","symbols":["ETH"]}`)
	read(t, eth)

	srv.bus.Publish("BTC", []byte(`{"type":"price","data":{"symbol":"BTC"}}`))
	srv.bus.Publish("ETH", []byte(`{"type":"price","data":{"symbol":"ETH"}}`))

	var evt struct {
		Type string `json:"type"`
		Data struct {
			Symbol string `json:"symbol"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(read(t, btc)), &evt))
	assert.Equal(t, "BTC", evt.Data.Symbol)
	require.NoError(t, json.Unmarshal([]byte(read(t, eth)), &evt))
	assert.Equal(t, "ETH", evt.Data.Symbol)
}

func TestSession_CleanupOnDisconnect(t *testing.T) {
	srv := startServer(t, gateway.DefaultOptions())

	t.Run("graceful", func(t *testing.T) {
		conn := srv.dial(t, validToken(1))
		send(t, conn, `{"action":"subscribe","symbols":["BTC","ETH"]}`)
		read(t, conn)

		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		require.Eventually(t, func() bool {
			return len(srv.registry.MembersOf("BTC")) == 0 && len(srv.registry.MembersOf("ETH")) == 0
		}, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("abrupt", func(t *testing.T) {
		conn := srv.dial(t, validToken(2))
		send(t, conn, `{"action":"subscribe","symbols":["SOL"]}`)
		read(t, conn)

		conn.UnderlyingConn().Close()
		require.Eventually(t, func() bool {
			return len(srv.registry.MembersOf("SOL")) == 0
		}, 2*time.Second, 10*time.Millisecond)
	})
}

func TestSession_MaxMessageSize(t *testing.T) {
	srv := startServer(t, gateway.DefaultOptions())
	conn := srv.dial(t, validToken(1))

	hugePayload := strings.Repeat("a", 513*1024)
	err := conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"subscribe","symbols":["`+hugePayload+`"]}`))
	// Depending on timing, write might succeed, but Read should fail (Disconnect)
	if err == nil {
		conn.SetReadDeadline(time.Now().Add(time.Second))
		_, _, err = conn.ReadMessage()
		assert.Error(t, err, "server should close the connection for an oversized frame")
	}
}

func TestSession_RateLimited(t *testing.T) {
	opts := gateway.DefaultOptions()
	opts.MessagesPerSecond = 0.001
	opts.MessageBurst = 1
	srv := startServer(t, opts)
	conn := srv.dial(t, validToken(1))

	send(t, conn, `{"action":"subscribe","symbols":["BTC"]}`)
	read(t, conn)
	send(t, conn, `{"action":"subscribe","symbols":["ETH"]}`)
	assert.JSONEq(t, `{"error":"rate_limited"}`, read(t, conn))
}

func TestSession_SlowConsumerIsEvicted(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	opts := gateway.DefaultOptions()
	opts.SendBuffer = 1
	registry := hub.NewRegistry(1, zap.NewNop())
	s := gateway.NewSession(server, models.Identity{UserID: 1}, registry, zap.NewNop(), nil, opts)

	require.NoError(t, s.Deliver([]byte("first")))
	assert.ErrorIs(t, s.Deliver([]byte("second")), hub.ErrSlowConsumer)
	assert.ErrorIs(t, s.Deliver([]byte("third")), hub.ErrSessionClosed)

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("evicted session should be closed")
	}
}
