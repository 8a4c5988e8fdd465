package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicdash/clinic/internal/domain/clinic"
)

func newClient(id string, topics ...string) *Client {
	return &Client{ID: id, Topics: topics, Send: make(chan []byte, sendBuffer)}
}

func receive(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case msg := <-c.Send:
		var ev Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			t.Fatalf("failed to unmarshal event: %v", err)
		}
		return ev
	case <-time.After(time.Second):
		t.Fatal("client did not receive event")
	}
	return Event{}
}

func expectNothing(t *testing.T, c *Client) {
	t.Helper()
	select {
	case <-c.Send:
		t.Fatalf("client %s should not have received an event", c.ID)
	default:
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	c := newClient("c1", clinic.TopicReservations)

	hub.Register(c)
	if hub.ClientCount() != 1 || hub.TopicCount(clinic.TopicReservations) != 1 {
		t.Fatalf("expected 1 client on reservations, got %d/%d", hub.ClientCount(), hub.TopicCount(clinic.TopicReservations))
	}

	hub.Unregister(c)
	if hub.ClientCount() != 0 || hub.TopicCount(clinic.TopicReservations) != 0 {
		t.Fatalf("expected no clients, got %d/%d", hub.ClientCount(), hub.TopicCount(clinic.TopicReservations))
	}
	if _, ok := <-c.Send; ok {
		t.Error("expected Send channel closed")
	}

	// second unregister is a no-op
	hub.Unregister(c)
}

func TestHub_NotifyRoutesByTopic(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	calendarView := newClient("calendar", clinic.TopicReservations)
	patientList := newClient("patients", clinic.TopicPatients)
	hub.Register(calendarView)
	hub.Register(patientList)

	id := uuid.New()
	at := time.Date(2024, 12, 5, 10, 0, 0, 0, time.UTC)
	hub.Notify(context.Background(), clinic.Change{Topic: clinic.TopicReservations, Action: clinic.ActionRescheduled, ID: id, At: at})

	ev := receive(t, calendarView)
	if ev.Type != "reservations.rescheduled" || ev.ResourceID != id.String() {
		t.Errorf("unexpected event %+v", ev)
	}
	if !ev.Timestamp.Equal(at) {
		t.Errorf("expected timestamp %v, got %v", at, ev.Timestamp)
	}
	expectNothing(t, patientList)
}

func TestHub_SubscribeUnsubscribe(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	c := newClient("c1", clinic.TopicPatients)
	hub.Register(c)

	hub.ProcessMessage(c, ClientMessage{Action: "subscribe", Topics: []string{clinic.TopicServices, clinic.TopicPatients}})
	if len(c.Topics) != 2 {
		t.Fatalf("expected duplicate subscription ignored, got %v", c.Topics)
	}
	if hub.TopicCount(clinic.TopicServices) != 1 {
		t.Fatalf("expected 1 on services, got %d", hub.TopicCount(clinic.TopicServices))
	}

	hub.ProcessMessage(c, ClientMessage{Action: "unsubscribe", Topics: []string{clinic.TopicPatients}})
	if hub.TopicCount(clinic.TopicPatients) != 0 {
		t.Errorf("expected 0 on patients, got %d", hub.TopicCount(clinic.TopicPatients))
	}
	if len(c.Topics) != 1 || c.Topics[0] != clinic.TopicServices {
		t.Errorf("expected [services], got %v", c.Topics)
	}

	hub.ProcessMessage(c, ClientMessage{Action: "bogus", Topics: []string{"x"}})
	if len(c.Topics) != 1 {
		t.Errorf("expected unknown action ignored, got %v", c.Topics)
	}
}

func TestHub_FullBufferDropsEvent(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	c := &Client{ID: "slow", Topics: []string{"t"}, Send: make(chan []byte, 1)}
	hub.Register(c)

	hub.Broadcast("t", Event{Type: "a"})
	hub.Broadcast("t", Event{Type: "b"})

	if ev := receive(t, c); ev.Type != "a" {
		t.Errorf("expected first event kept, got %s", ev.Type)
	}
	expectNothing(t, c)
}

func TestHub_ConcurrentAccess(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		c := newClient(uuid.NewString(), clinic.TopicReservations)
		go func() {
			defer wg.Done()
			hub.Register(c)
			hub.Unregister(c)
		}()
		go func() {
			defer wg.Done()
			hub.Broadcast(clinic.TopicReservations, Event{Type: "x"})
		}()
	}
	wg.Wait()
	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", hub.ClientCount())
	}
}

func TestParseTopics(t *testing.T) {
	if got := parseTopics(""); len(got) != len(DefaultTopics) {
		t.Errorf("expected default topics, got %v", got)
	}
	got := parseTopics(" reservations, ,reservations,patients")
	if len(got) != 2 || got[0] != "reservations" || got[1] != "patients" {
		t.Errorf("expected [reservations patients], got %v", got)
	}
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"http://localhost:3000"})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/ws", nil)
	if !check(req) {
		t.Error("expected request without Origin allowed")
	}
	req.Header.Set("Origin", "http://localhost:3000")
	if !check(req) {
		t.Error("expected listed origin allowed")
	}
	req.Header.Set("Origin", "http://evil.example")
	if check(req) {
		t.Error("expected unlisted origin rejected")
	}
	if !originChecker([]string{"*"})(req) {
		t.Error("expected wildcard to allow any origin")
	}
}

func TestHandler_HandleConnectRequiresUpgrade(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	h := NewHandler(hub, nil)
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/ws", nil), rec)

	if err := h.HandleConnect(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for plain HTTP request, got %d", rec.Code)
	}
	if hub.ClientCount() != 0 {
		t.Errorf("expected no client registered, got %d", hub.ClientCount())
	}
}

func TestHandler_FullUpgrade(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	e := echo.New()
	NewHandler(hub, nil).RegisterRoutes(e.Group("/api/v1"))

	server := httptest.NewServer(e)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/ws?topics=patients"
	conn, resp, err := gorillawebsocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("expected 101, got %d", resp.StatusCode)
	}

	waitFor(t, func() bool { return hub.TopicCount(clinic.TopicPatients) == 1 })

	if err := conn.WriteJSON(ClientMessage{Action: "subscribe", Topics: []string{clinic.TopicReservations}}); err != nil {
		t.Fatalf("failed to send subscribe: %v", err)
	}
	waitFor(t, func() bool { return hub.TopicCount(clinic.TopicReservations) == 1 })

	id := uuid.New()
	hub.Notify(context.Background(), clinic.Change{Topic: clinic.TopicReservations, Action: clinic.ActionCreated, ID: id, At: time.Now().UTC()})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var received Event
	if err := conn.ReadJSON(&received); err != nil {
		t.Fatalf("failed to read event: %v", err)
	}
	if received.Type != "reservations.created" || received.ResourceID != id.String() {
		t.Fatalf("unexpected event %+v", received)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
