package websocket

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/habit-scoreboard/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(testLogger())
	go hub.Run()
	t.Cleanup(hub.Stop)
	return hub
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case data := <-c.send:
		var msg Message
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message received")
		return Message{}
	}
}

func TestHub_BroadcastsByTopic(t *testing.T) {
	hub := startHub(t)
	leaderboardClient := &Client{id: "lb", hub: hub, send: make(chan []byte, 8), logger: testLogger()}
	feedClient := &Client{id: "feed", hub: hub, send: make(chan []byte, 8), logger: testLogger()}

	hub.Register(leaderboardClient)
	hub.Register(feedClient)
	hub.Subscribe(leaderboardClient, TopicLeaderboard)
	hub.Subscribe(feedClient, TopicSubmissions)
	require.Eventually(t, func() bool {
		return hub.GetSubscriberCount(TopicLeaderboard) == 1 && hub.GetSubscriberCount(TopicSubmissions) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, hub.GetTotalConnections())

	hub.BroadcastLeaderboard([]domain.LeaderboardEntry{{Rank: 1, UserID: "u1", Name: "Ann", TotalScore: 4.5}})
	msg := receive(t, leaderboardClient)
	assert.Equal(t, MessageTypeLeaderboardUpdate, msg.Type)
	assert.Equal(t, TopicLeaderboard, msg.Topic)

	hub.BroadcastSubmission(domain.Submission{ID: "s1", UserID: "u1", Points: 1})
	msg = receive(t, feedClient)
	assert.Equal(t, MessageTypeNewSubmission, msg.Type)

	assert.Empty(t, leaderboardClient.send)
	assert.Empty(t, feedClient.send)

	hub.Unregister(feedClient)
	require.Eventually(t, func() bool {
		return hub.GetSubscriberCount(TopicSubmissions) == 0
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, hub.GetTotalConnections())
}

func TestServeWs_SubscribeAndReceive(t *testing.T) {
	hub := startHub(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, testLogger(), w, r)
	}))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	readMessage := func() Message {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var msg Message
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	}

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MessageTypeSubscribe, Topic: "scores"}))
	assert.Equal(t, MessageTypeError, readMessage().Type)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MessageTypeSubscribe, Topic: TopicLeaderboard}))
	ack := readMessage()
	assert.Equal(t, ReplySubscribed, ack.Type)
	assert.Equal(t, TopicLeaderboard, ack.Topic)

	require.Eventually(t, func() bool {
		return hub.GetSubscriberCount(TopicLeaderboard) == 1
	}, time.Second, 5*time.Millisecond)

	hub.BroadcastLeaderboard(nil)
	assert.Equal(t, MessageTypeLeaderboardUpdate, readMessage().Type)
}

func TestClient_HandleMessage(t *testing.T) {
	hub := startHub(t)
	c := &Client{id: "c1", hub: hub, send: make(chan []byte, 8), logger: testLogger()}
	hub.Register(c)

	tests := []struct {
		name  string
		raw   string
		want  string
		topic string
	}{
		{"not json", `{"type":`, MessageTypeError, ""},
		{"unknown type", `{"type":"shout"}`, MessageTypeError, ""},
		{"ping", `{"type":"ping"}`, MessageTypePong, ""},
		{"subscribe unknown topic", `{"type":"subscribe","topic":"scores"}`, MessageTypeError, ""},
		{"unsubscribe unknown topic", `{"type":"unsubscribe","topic":"scores"}`, MessageTypeError, ""},
		{"subscribe", `{"type":"subscribe","topic":"submissions"}`, ReplySubscribed, TopicSubmissions},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply := c.handleMessage([]byte(tt.raw))
			require.NotNil(t, reply)
			assert.Equal(t, tt.want, reply.Type)
			assert.Equal(t, tt.topic, reply.Topic)
		})
	}

	require.Eventually(t, func() bool {
		return hub.GetSubscriberCount(TopicSubmissions) == 1
	}, time.Second, 5*time.Millisecond)

	reply := c.handleMessage([]byte(`{"type":"unsubscribe","topic":"submissions"}`))
	assert.Equal(t, ReplyUnsubscribed, reply.Type)
	require.Eventually(t, func() bool {
		return hub.GetSubscriberCount(TopicSubmissions) == 0
	}, time.Second, 5*time.Millisecond)

	c.queue(&Message{Type: MessageTypePong})
	msg := receive(t, c)
	assert.Equal(t, MessageTypePong, msg.Type)
	assert.False(t, msg.Timestamp.IsZero())
}
