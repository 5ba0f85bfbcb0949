package chat

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lox/lemonroulette/internal/wheel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGatewayRoundTrip(t *testing.T) {
	t.Parallel()

	s := newStack(t, wheel.Outcome{Number: 7, Color: wheel.Black})
	srv := httptest.NewServer(s.server.Handler())
	defer srv.Close()

	a := dial(t, srv)
	b := dial(t, srv)
	outsider := dial(t, srv)

	var joined JoinedData
	a.send(MessageTypeJoin, JoinData{Scope: "g", Key: "A", Name: "@A"})
	a.expect(MessageTypeJoined, &joined)
	assert.Equal(t, int64(1000), joined.Balance)
	assert.Equal(t, "5s", joined.Window)

	b.send(MessageTypeJoin, JoinData{Scope: "g", Key: "B", Name: "@B"})
	b.expect(MessageTypeJoined, nil)
	outsider.send(MessageTypeJoin, JoinData{Scope: "elsewhere", Key: "C"})
	outsider.expect(MessageTypeJoined, nil)

	var reply ReplyData
	a.send(MessageTypeSay, SayData{Text: "100 к"})
	a.expect(MessageTypeReply, &reply)
	assert.Equal(t, "Ставка принята: 100 → Red. Баланс: 900 LEMON", reply.Text)

	b.send(MessageTypeSay, SayData{Text: "50 7 ч"})
	b.expect(MessageTypeReply, &reply)
	assert.Equal(t, "Ставка принята: 50 → 7 Black. Баланс: 950 LEMON", reply.Text)

	s.expire(t)

	for _, c := range []*wsClient{a, b} {
		var rep ReportData
		c.expect(MessageTypeReport, &rep)
		assert.Equal(t, "g", rep.Scope)
		assert.Equal(t, 7, rep.Number)
		assert.Equal(t, "Black", rep.Color)
		assert.Contains(t, rep.Text, "Выпало: 7 Black")
		assert.Contains(t, rep.Text, "@A проиграл 100 LEMON")
		assert.Contains(t, rep.Text, "@B выиграл 3600 LEMON")
		assert.Contains(t, rep.Text, "50→7 Black (WIN)")
	}
	assert.Equal(t, int64(900), s.ledger.Balance("A"))
	assert.Equal(t, int64(4550), s.ledger.Balance("B"))

	// The outsider's scope had no round, so the next frame is its own reply.
	outsider.send(MessageTypeSay, SayData{Text: "б"})
	outsider.expect(MessageTypeReply, &reply)
	assert.Equal(t, "C баланс: 1000 LEMON", reply.Text)
}

func TestGatewayProtocolErrors(t *testing.T) {
	t.Parallel()

	s := newStack(t, wheel.Outcome{Number: 1, Color: wheel.Red})
	srv := httptest.NewServer(s.server.Handler())
	defer srv.Close()

	c := dial(t, srv)
	var errData ErrorData

	c.send(MessageTypeSay, SayData{Text: "100 к"})
	c.expect(MessageTypeError, &errData)
	assert.Equal(t, "not_joined", errData.Code)

	c.send(MessageTypeJoin, JoinData{Scope: "g"})
	c.expect(MessageTypeError, &errData)
	assert.Equal(t, "invalid_join", errData.Code)

	c.send("dance", map[string]string{})
	c.expect(MessageTypeError, &errData)
	assert.Equal(t, "unknown_message_type", errData.Code)
}

func TestHealth(t *testing.T) {
	t.Parallel()

	s := newStack(t, wheel.Outcome{Number: 1, Color: wheel.Red})
	srv := httptest.NewServer(s.server.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestHubMembership(t *testing.T) {
	t.Parallel()

	s := newStack(t, wheel.Outcome{Number: 1, Color: wheel.Red})
	c1 := &Connection{}
	c2 := &Connection{}

	s.hub.Join(c1, "g")
	s.hub.Join(c2, "g")
	assert.Equal(t, 2, s.hub.Members("g"))

	s.hub.Join(c1, "h")
	assert.Equal(t, 1, s.hub.Members("g"))
	assert.Equal(t, 1, s.hub.Members("h"))

	s.hub.Leave(c2)
	s.hub.Leave(c2)
	assert.Zero(t, s.hub.Members("g"))
	assert.Equal(t, 1, s.hub.Count())
}
