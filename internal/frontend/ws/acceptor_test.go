package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/duel/internal/config"
	"github.com/cory-johannsen/duel/internal/session"
)

type fakeGame struct {
	mu           sync.Mutex
	clients      []*session.Client
	received     []string
	disconnected int
}

func (g *fakeGame) Connect(sender session.Sender, transport string) *session.Client {
	g.mu.Lock()
	defer g.mu.Unlock()
	c := session.NewClient("user", transport, sender)
	g.clients = append(g.clients, c)
	_ = c.Send("s.h.0")
	return c
}

func (g *fakeGame) Receive(c *session.Client, raw string) {
	g.mu.Lock()
	g.received = append(g.received, raw)
	g.mu.Unlock()
	if strings.HasPrefix(raw, "p.") {
		_ = c.Send("s.p." + strings.TrimPrefix(raw, "p."))
	}
}

func (g *fakeGame) Disconnect(*session.Client) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.disconnected++
}

func (g *fakeGame) counts() (received []string, disconnected int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.received...), g.disconnected
}

func testConfig() config.WebSocketConfig {
	return config.WebSocketConfig{
		Host:         "127.0.0.1",
		Port:         0,
		Path:         "/ws",
		ReadTimeout:  5 * time.Second,
		WriteTimeout: time.Second,
		SendBuffer:   16,
	}
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readText(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, kind)
	return string(data)
}

func startTestServer(t *testing.T, game Game) (*Acceptor, string) {
	t.Helper()
	acc := NewAcceptor(testConfig(), game, zaptest.NewLogger(t))
	srv := httptest.NewServer(acc.Handler())
	t.Cleanup(srv.Close)
	t.Cleanup(acc.Stop)
	return acc, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func TestAcceptor_RoundTrip(t *testing.T) {
	game := &fakeGame{}
	_, url := startTestServer(t, game)
	conn := dial(t, url)

	assert.Equal(t, "s.h.0", readText(t, conn))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("p.77")))
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("p.bin")))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("c.red")))
	assert.Equal(t, "s.p.77", readText(t, conn))

	require.Eventually(t, func() bool {
		received, _ := game.counts()
		return len(received) == 2
	}, 2*time.Second, 10*time.Millisecond)
	received, _ := game.counts()
	assert.Equal(t, []string{"p.77", "c.red"}, received, "binary frames are ignored")

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	require.Eventually(t, func() bool {
		_, n := game.counts()
		return n == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "websocket", game.clients[0].Transport)
}

func TestAcceptor_WrongMethodOrPath(t *testing.T) {
	_, url := startTestServer(t, &fakeGame{})
	httpURL := "http" + strings.TrimPrefix(url, "ws")

	resp, err := http.Post(httpURL, "text/plain", strings.NewReader("x"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = http.Get(strings.TrimSuffix(httpURL, "/ws") + "/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// plain GET without upgrade headers
	resp, err = http.Get(httpURL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAcceptor_StopClosesConnections(t *testing.T) {
	game := &fakeGame{}
	acc, url := startTestServer(t, game)
	conn := dial(t, url)
	readText(t, conn)

	acc.Stop()
	_, n := game.counts()
	assert.Equal(t, 1, n)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)

	// new upgrades are refused once stopping
	c2, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		_ = c2.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, _, err = c2.ReadMessage()
		assert.Error(t, err)
		c2.Close()
	} else if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
}

func TestAcceptor_ListenAndServe(t *testing.T) {
	game := &fakeGame{}
	acc := NewAcceptor(testConfig(), game, zaptest.NewLogger(t))
	errCh := make(chan error, 1)
	go func() { errCh <- acc.ListenAndServe() }()

	require.Eventually(t, func() bool { return acc.Addr() != "" }, 2*time.Second, 10*time.Millisecond)
	conn := dial(t, "ws://"+acc.Addr()+"/ws")
	assert.Equal(t, "s.h.0", readText(t, conn))

	acc.Stop()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("acceptor did not stop")
	}
}

func TestAcceptor_StopBeforeListen(t *testing.T) {
	acc := NewAcceptor(testConfig(), &fakeGame{}, zaptest.NewLogger(t))
	acc.Stop()
	assert.NoError(t, acc.ListenAndServe())
}
