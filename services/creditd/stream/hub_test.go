package stream

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"ripe/core/events"
	"ripe/core/types"
)

func TestHubFanOutAndDrop(t *testing.T) {
	hub := NewHub(nil)
	first, cancelFirst := hub.Subscribe()
	second, cancelSecond := hub.Subscribe()
	require.Equal(t, 2, hub.Subscribers())

	hub.Emit(events.CreditRepay{User: common.HexToAddress("0x1"), Amount: big.NewInt(3), Block: 2})
	require.Equal(t, events.TypeCreditRepay, (<-first).Type)
	require.Equal(t, events.TypeCreditRepay, (<-second).Type)

	cancelSecond()
	cancelSecond()
	require.Equal(t, 1, hub.Subscribers())

	for i := 0; i < subscriberBuffer+3; i++ {
		hub.Emit(events.CreditRepay{Amount: big.NewInt(int64(i))})
	}
	require.Equal(t, uint64(3), hub.Dropped())
	cancelFirst()
	drained := 0
	for range first {
		drained++
	}
	require.Equal(t, subscriberBuffer, drained)
}

func TestMatches(t *testing.T) {
	require.True(t, matches(nil, "credit.borrow"))
	filter := parseFilter(" auction., credit.liquidate ,")
	require.Equal(t, []string{"auction.", "credit.liquidate"}, filter)
	require.True(t, matches(filter, "auction.bought"))
	require.False(t, matches(filter, "credit.borrow"))
}

func TestServeWSStreamsFilteredEvents(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?type=credit.repay"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, time.Second, 10*time.Millisecond)
	hub.Emit(events.CreditBorrow{User: common.HexToAddress("0x1"), Amount: big.NewInt(1)})
	hub.Emit(events.CreditRepay{User: common.HexToAddress("0x1"), Amount: big.NewInt(9), Block: 4})

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var evt types.Event
	require.NoError(t, json.Unmarshal(data, &evt))
	require.Equal(t, events.TypeCreditRepay, evt.Type)
	require.Equal(t, "9", evt.Attributes["amount"])
	require.Equal(t, uint64(4), evt.Block)
}
