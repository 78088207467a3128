package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexcodex/ceylo/internal/testutil"
)

func TestWebSocketChat(t *testing.T) {
	api, manager := newTestAPI(t, testutil.NewScriptedModel(kandyReply))
	srv := httptest.NewServer(api.Handler())
	defer srv.Close()

	conv, err := manager.Create(context.Background())
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/conversations/" + conv.ID + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))

	var frame Frame
	require.NoError(t, ws.ReadJSON(&frame))
	assert.Equal(t, FrameState, frame.Type)
	require.NotNil(t, frame.Conversation)
	assert.Equal(t, conv.ID, frame.Conversation.ID)

	require.NoError(t, ws.WriteJSON(MessageRequest{Text: "5 days in Kandy as a couple"}))
	require.NoError(t, ws.ReadJSON(&frame))
	assert.Equal(t, FrameTyping, frame.Type)

	frame = Frame{}
	require.NoError(t, ws.ReadJSON(&frame))
	assert.Equal(t, FrameTurn, frame.Type)
	require.NotNil(t, frame.Result)
	assert.Equal(t, "Kandy", frame.Result.Profile.Destination)

	require.NoError(t, ws.WriteJSON(MessageRequest{Text: ""}))
	require.NoError(t, ws.ReadJSON(&frame))
	frame = Frame{}
	require.NoError(t, ws.ReadJSON(&frame))
	assert.Equal(t, FrameError, frame.Type)
	assert.Equal(t, http.StatusBadRequest, frame.Status)
}

func TestWebSocketUnknownConversation(t *testing.T) {
	api, _ := newTestAPI(t, testutil.NewScriptedModel())
	srv := httptest.NewServer(api.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/conversations/missing/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebSocketSurvivesTurnLongerThanPongWait(t *testing.T) {
	release := make(chan struct{})
	model := testutil.NewScriptedModel().Push(
		testutil.Reply{Text: kandyReply, Wait: release},
		testutil.Reply{Text: `{"resp":"Luxury it is!","extractedState":{"budget":"Luxury"}}`},
	)
	api, manager := newTestAPI(t, model)
	api.PongWait = 300 * time.Millisecond
	srv := httptest.NewServer(api.Handler())
	defer srv.Close()

	conv, err := manager.Create(context.Background())
	require.NoError(t, err)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/conversations/" + conv.ID + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))

	var frame Frame
	require.NoError(t, ws.ReadJSON(&frame))
	require.NoError(t, ws.WriteJSON(MessageRequest{Text: "5 days in Kandy as a couple"}))
	require.NoError(t, ws.ReadJSON(&frame))
	assert.Equal(t, FrameTyping, frame.Type)

	time.AfterFunc(3*api.PongWait, func() { close(release) })
	frame = Frame{}
	require.NoError(t, ws.ReadJSON(&frame))
	assert.Equal(t, FrameTurn, frame.Type)

	require.NoError(t, ws.WriteJSON(MessageRequest{Text: "Luxury"}))
	require.NoError(t, ws.ReadJSON(&frame))
	assert.Equal(t, FrameTyping, frame.Type)
	frame = Frame{}
	require.NoError(t, ws.ReadJSON(&frame))
	assert.Equal(t, FrameTurn, frame.Type)
	require.NotNil(t, frame.Result)
	assert.Equal(t, "Luxury", frame.Result.Profile.Budget)
}

func TestWebSocketChecksOrigin(t *testing.T) {
	api, manager := newTestAPI(t, testutil.NewScriptedModel())
	api.AllowedOrigins = []string{"http://localhost:5173"}
	srv := httptest.NewServer(api.Handler())
	defer srv.Close()

	conv, err := manager.Create(context.Background())
	require.NoError(t, err)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/conversations/" + conv.ID + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	for _, origin := range []string{srv.URL, "http://localhost:5173"} {
		ws, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {origin}})
		require.NoError(t, err, origin)
		require.NoError(t, ws.Close())
	}
}
