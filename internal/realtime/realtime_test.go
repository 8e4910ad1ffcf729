package realtime

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-etf/internal/contracts"
	"github.com/wonny/aegis-etf/pkg/logger"
)

func rec(date string, top ...string) *contracts.Recommendation {
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		panic(err)
	}
	return &contracts.Recommendation{StrategyID: "etf_topk", SignalDate: d, TopK: top}
}

func TestMemoryCache_PutLatest(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(0, logger.NewNop())

	_, ok, err := c.Latest(ctx, "etf_topk")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Put(ctx, rec("2024-03-15", "A")))
	require.NoError(t, c.Put(ctx, rec("2024-03-14", "B"))) // 과거 날짜는 무시
	got, ok, _ := c.Latest(ctx, "etf_topk")
	require.True(t, ok)
	assert.Equal(t, []string{"A"}, got.TopK)

	require.NoError(t, c.Put(ctx, rec("2024-03-15", "C"))) // 같은 날짜 재계산은 교체
	got, _, _ = c.Latest(ctx, "etf_topk")
	assert.Equal(t, []string{"C"}, got.TopK)

	require.NoError(t, c.Put(ctx, nil))
	assert.Equal(t, 1, c.Len())
}

func TestMemoryCache_TTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 15, 16, 30, 0, 0, time.UTC)
	c := NewMemoryCache(time.Hour, logger.NewNop())
	c.now = func() time.Time { return now }

	require.NoError(t, c.Put(ctx, rec("2024-03-15", "A")))

	now = now.Add(30 * time.Minute)
	_, ok, _ := c.Latest(ctx, "etf_topk")
	assert.True(t, ok)
	assert.Equal(t, 0, c.CleanStale())

	now = now.Add(time.Hour)
	_, ok, _ = c.Latest(ctx, "etf_topk")
	assert.False(t, ok)
	assert.Equal(t, 1, c.CleanStale())
	assert.Equal(t, 0, c.Len())
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHub_Broadcast(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryCache(0, logger.NewNop())
	require.NoError(t, store.Put(ctx, rec("2024-03-14", "A")))

	hub := NewHub(store, "etf_topk", logger.NewNop())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv)

	// 접속 직후 캐시된 최신 추천
	msg := readMessage(t, conn)
	assert.Equal(t, "recommendation", msg.Type)
	assert.Equal(t, []string{"A"}, msg.Recommendation.TopK)

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Put(ctx, rec("2024-03-15", "B", "C")))
	msg = readMessage(t, conn)
	assert.Equal(t, []string{"B", "C"}, msg.Recommendation.TopK)

	got, ok, err := hub.Latest(ctx, "etf_topk")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"B", "C"}, got.TopK)

	hub.Close()
	assert.Equal(t, 0, hub.Clients())
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}

func TestHub_Disconnect(t *testing.T) {
	hub := NewHub(NewMemoryCache(0, logger.NewNop()), "etf_topk", logger.NewNop())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}
