package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"soundwork/pkg/ledger"
)

func setupFeedServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(hub, zap.NewNop(), nil).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func dialFeed(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/feed" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForSubscribers(t *testing.T, hub *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.Count() == n }, time.Second, 10*time.Millisecond)
}

func TestHandler_StreamsMatchingEvents(t *testing.T) {
	hub := NewHub(zap.NewNop())
	srv := setupFeedServer(t, hub)

	conn := dialFeed(t, srv, "?asset_id=2")
	waitForSubscribers(t, hub, 1)

	require.NoError(t, hub.Publish(context.Background(), purchaseEvent(1, 1)))
	require.NoError(t, hub.Publish(context.Background(), purchaseEvent(2, 2)))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got ledger.Event
	require.NoError(t, conn.ReadJSON(&got))
	require.EqualValues(t, 2, got.Seq)
	require.EqualValues(t, 2, got.AssetID)
	require.Equal(t, ledger.EventAssetPurchased, got.Type)
}

func TestHandler_DisconnectUnsubscribes(t *testing.T) {
	hub := NewHub(zap.NewNop())
	srv := setupFeedServer(t, hub)

	conn := dialFeed(t, srv, "?address="+strings.ToLower(alice.String()))
	waitForSubscribers(t, hub, 1)

	require.NoError(t, conn.Close())
	waitForSubscribers(t, hub, 0)
}

func TestHandler_RejectsBadFilters(t *testing.T) {
	hub := NewHub(zap.NewNop())
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(hub, zap.NewNop(), nil).RegisterRoutes(r)

	for _, q := range []string{"?address=nope", "?asset_id=0", "?asset_id=x"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws/feed"+q, nil))
		require.Equal(t, http.StatusBadRequest, w.Code, q)
	}
	require.Zero(t, hub.Count())
}
