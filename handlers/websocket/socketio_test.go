package websocket

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codecollab-server/collab"
	"codecollab-server/core"
	"codecollab-server/stores/memory"
)

const pollTimeout = 5 * time.Second

func newSocketIOServer(t *testing.T) (string, *collab.Engine) {
	t.Helper()
	opts := Options{LegacyEvents: true, FetchTimeout: time.Second}
	ioo := NewSocketIOServer(opts)
	transport := NewSocketTransport(ioo, opts)
	engine := collab.NewEngine(transport, memory.NewArtifactStore())
	BindSocketIO(ioo, transport, engine)

	r := chi.NewRouter()
	r.Handle("/socket.io/", ioo.ServeHandler(nil))
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	t.Cleanup(func() { ioo.Close(nil) })
	return server.URL + "/socket.io/", engine
}

type sioEvent struct {
	Name string
	Data map[string]any
}

func eventNames(events []sioEvent) []string {
	return lo.Map(events, func(e sioEvent, _ int) string { return e.Name })
}

// pollingClient speaks engine.io v4 long-polling carrying socket.io packets on the
// default namespace.
type pollingClient struct {
	t       *testing.T
	http    *http.Client
	url     string
	id      core.ConnectionID
	packets chan string
}

func connectPolling(t *testing.T, base string, engine *collab.Engine) *pollingClient {
	t.Helper()
	c := &pollingClient{t: t, http: &http.Client{}, packets: make(chan string, 256)}

	body, err := c.get(base + "?EIO=4&transport=polling")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(body, "0"), "unexpected open packet %q", body)
	var open struct {
		Sid string `json:"sid"`
	}
	require.NoError(t, json.Unmarshal([]byte(body[1:]), &open))
	c.url = base + "?EIO=4&transport=polling&sid=" + url.QueryEscape(open.Sid)

	go c.poll()
	require.NoError(t, c.post("40"))

	connect := c.next()
	require.True(t, strings.HasPrefix(connect, "40"), "unexpected connect packet %q", connect)
	var connected struct {
		Sid string `json:"sid"`
	}
	require.NoError(t, json.Unmarshal([]byte(connect[2:]), &connected))
	c.id = core.ConnectionID(connected.Sid)

	require.Eventually(t, func() bool {
		return engine.State(c.id) != collab.StateGone
	}, pollTimeout, 10*time.Millisecond)
	return c
}

func (c *pollingClient) get(u string) (string, error) {
	res, err := c.http.Get(u)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", err
	}
	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("GET %s: %s", u, res.Status)
	}
	return string(body), nil
}

func (c *pollingClient) post(payload string) error {
	res, err := c.http.Post(c.url, "text/plain;charset=UTF-8", strings.NewReader(payload))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	io.Copy(io.Discard, res.Body) //nolint:errcheck
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("POST %q: %s", payload, res.Status)
	}
	return nil
}

// poll keeps one GET outstanding and queues every socket.io packet it returns.
func (c *pollingClient) poll() {
	defer close(c.packets)
	for {
		body, err := c.get(c.url)
		if err != nil {
			return
		}
		for _, packet := range strings.Split(body, "\x1e") {
			switch packet {
			case "2":
				c.post("3") //nolint:errcheck
			case "1":
				return
			case "", "6":
			default:
				c.packets <- packet
			}
		}
	}
}

func (c *pollingClient) next() string {
	c.t.Helper()
	select {
	case packet, ok := <-c.packets:
		require.True(c.t, ok, "connection closed")
		return packet
	case <-time.After(pollTimeout):
		require.FailNow(c.t, "timed out waiting for a packet")
	}
	return ""
}

func (c *pollingClient) nextEvent() sioEvent {
	c.t.Helper()
	for {
		packet := c.next()
		if !strings.HasPrefix(packet, "42[") {
			continue
		}
		var args []json.RawMessage
		require.NoError(c.t, json.Unmarshal([]byte(packet[2:]), &args))
		require.NotEmpty(c.t, args)

		var ev sioEvent
		require.NoError(c.t, json.Unmarshal(args[0], &ev.Name))
		if len(args) > 1 {
			require.NoError(c.t, json.Unmarshal(args[1], &ev.Data))
		}
		return ev
	}
}

// eventsUntil returns every event up to and including the first one named name.
func (c *pollingClient) eventsUntil(name string) []sioEvent {
	c.t.Helper()
	var events []sioEvent
	for {
		ev := c.nextEvent()
		events = append(events, ev)
		if ev.Name == name {
			return events
		}
	}
}

func (c *pollingClient) emit(event string, data any) {
	c.t.Helper()
	payload, err := json.Marshal([]any{event, data})
	require.NoError(c.t, err)
	require.NoError(c.t, c.post("42"+string(payload)))
}

// emitWithAck sends an event carrying ack id and waits for the server's reply.
func (c *pollingClient) emitWithAck(id int, event string, data any) map[string]any {
	c.t.Helper()
	payload, err := json.Marshal([]any{event, data})
	require.NoError(c.t, err)
	require.NoError(c.t, c.post(fmt.Sprintf("42%d%s", id, payload)))

	prefix := fmt.Sprintf("43%d", id)
	for {
		packet := c.next()
		if !strings.HasPrefix(packet, prefix+"[") {
			continue
		}
		var reply []map[string]any
		require.NoError(c.t, json.Unmarshal([]byte(packet[len(prefix):]), &reply))
		require.Len(c.t, reply, 1)
		return reply[0]
	}
}

func (c *pollingClient) close() {
	c.t.Helper()
	require.NoError(c.t, c.post("1"))
}

func TestBindSocketIO_RoomSession(t *testing.T) {
	base, engine := newSocketIOServer(t)

	alice := connectPolling(t, base, engine)
	alice.emit("when a user joins", map[string]any{"roomId": "r", "username": "alice"})
	seen := alice.eventsUntil(string(core.EventMemberListUpdated))
	assert.Equal(t, []any{"alice"}, seen[len(seen)-1].Data["userslist"])

	alice.emit("update code", map[string]any{"roomId": "r", "code": "int main(){}"})
	alice.emit(string(core.EventUpdateField), map[string]any{"roomId": "r", "field": "languageUsed", "value": "cpp"})
	require.Eventually(t, func() bool {
		doc, ok := engine.Document("r")
		return ok && doc.Code != nil && doc.LanguageUsed != nil
	}, pollTimeout, 10*time.Millisecond)

	bob := connectPolling(t, base, engine)
	bob.emit(string(core.EventJoin), map[string]any{"roomId": "r", "username": "bob"})

	catchUp := make([]sioEvent, 6)
	for i := range catchUp {
		catchUp[i] = bob.nextEvent()
	}
	assert.Equal(t, []string{
		"memberListUpdated", "updating client list",
		"fieldChanged", "on language change",
		"fieldChanged", "on code change",
	}, eventNames(catchUp))
	assert.ElementsMatch(t, []any{"alice", "bob"}, catchUp[0].Data["userslist"])
	assert.ElementsMatch(t, []any{"alice", "bob"}, catchUp[1].Data["userslist"])
	assert.Equal(t, map[string]any{"field": "languageUsed", "value": "cpp"}, catchUp[2].Data)
	assert.Equal(t, map[string]any{"languageUsed": "cpp"}, catchUp[3].Data)
	assert.Equal(t, map[string]any{"field": "code", "value": "int main(){}"}, catchUp[4].Data)
	assert.Equal(t, map[string]any{"code": "int main(){}"}, catchUp[5].Data)

	// Alice hears about Bob but never gets her own edits back.
	seen = alice.eventsUntil(string(core.EventMemberJoined))
	assert.NotContains(t, eventNames(seen), string(core.EventFieldChanged))
	assert.Equal(t, "bob", seen[len(seen)-1].Data["username"])

	bob.emit("syncing the code", map[string]any{"roomId": "r"})
	synced := bob.eventsUntil("on code change")
	assert.Equal(t, []string{"fieldChanged", "on code change"}, eventNames(synced))
	assert.Equal(t, map[string]any{"field": "code", "value": "int main(){}"}, synced[0].Data)

	// The next thing Alice sees after the arrival notice is Bob's edit, not the sync reply.
	bob.emit(string(core.EventUpdateField), map[string]any{"roomId": "r", "field": "input", "value": "5"})
	seen = alice.eventsUntil("on input change")
	assert.Equal(t, []string{"new member joined", "fieldChanged", "on input change"}, eventNames(seen))
	assert.Equal(t, map[string]any{"field": "input", "value": "5"}, seen[1].Data)

	bob.close()
	seen = alice.eventsUntil(string(core.EventMemberListUpdated))
	assert.Equal(t, []string{"memberLeft", "member left", "memberListUpdated"}, eventNames(seen))
	assert.Equal(t, "bob", seen[0].Data["username"])
	assert.Equal(t, []any{"alice"}, seen[2].Data["userslist"])

	_, ok := engine.Document("r")
	assert.True(t, ok, "alice still holds the room")

	alice.close()
	require.Eventually(t, func() bool {
		_, ok := engine.Document("r")
		return !ok
	}, pollTimeout, 10*time.Millisecond, "document should be dropped with the last member")
	assert.Equal(t, collab.StateGone, engine.State(alice.id))
	assert.Equal(t, collab.StateGone, engine.State(bob.id))
}

func TestBindSocketIO_AcksReportOutcome(t *testing.T) {
	base, engine := newSocketIOServer(t)
	ann := connectPolling(t, base, engine)

	ok := map[string]any{"status": "ok"}
	assert.Equal(t, ok, ann.emitWithAck(1, string(core.EventJoin), map[string]any{"roomId": "r", "username": "ann"}))
	assert.Equal(t, ok, ann.emitWithAck(2, "update code", map[string]any{"roomId": "r", "code": "x"}))

	reply := ann.emitWithAck(3, string(core.EventUpdateField), map[string]any{"roomId": "r", "field": "stdout", "value": "y"})
	assert.Equal(t, "error", reply["status"])
	assert.Contains(t, reply["error"], "invalid")

	reply = ann.emitWithAck(4, string(core.EventUpdateField), map[string]any{"roomId": "elsewhere", "field": "code", "value": "z"})
	assert.Equal(t, "error", reply["status"])
	assert.Contains(t, reply["error"], collab.ErrNotMember.Error())

	assert.Equal(t, ok, ann.emitWithAck(5, "syncing the code", map[string]any{"roomId": "r"}))
	synced := ann.eventsUntil("on code change")
	assert.Contains(t, synced, sioEvent{Name: string(core.EventFieldChanged), Data: map[string]any{"field": "code", "value": "x"}})

	doc, found := engine.Document("r")
	require.True(t, found)
	require.NotNil(t, doc.Code)
	assert.Equal(t, "x", *doc.Code)
	_, found = engine.Document("elsewhere")
	assert.False(t, found)
}
