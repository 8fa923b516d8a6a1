package http_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type userResponse struct {
	User struct {
		ID       string `json:"id"`
		FullName string `json:"fullName"`
		Email    string `json:"email"`
		Role     string `json:"role"`
	} `json:"user"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type wsEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type account struct {
	id    string
	token string
}

// End-to-end messaging flow against a running server. Mirrors the scenario
// the system is built around: two users sign up, the mentor accepts the
// mentee's connection request, both open sockets, the mentee sends a message
// and the mentor receives it as a push; an outsider is rejected with 403.
func TestMessagingEndToEnd(t *testing.T) {
	if os.Getenv("INTEGRATION_TESTS") != "1" {
		t.Skip("set INTEGRATION_TESTS=1 to run")
	}
	baseURL := getenv("SERVER_HTTP_ADDR", "http://127.0.0.1:5001")
	wsURL := strings.Replace(baseURL, "http", "ws", 1)

	suffix := fmt.Sprintf("%d", time.Now().UnixNano())
	mentor := signup(t, baseURL, "Mentor "+suffix, "mentor-"+suffix+"@test.local", "mentor")
	mentee := signup(t, baseURL, "Mentee "+suffix, "mentee-"+suffix+"@test.local", "mentee")
	outsider := signup(t, baseURL, "Outsider "+suffix, "outsider-"+suffix+"@test.local", "mentee")

	connectionID := requestConnection(t, baseURL, mentee.token, mentor.id)
	acceptConnection(t, baseURL, mentor.token, connectionID)

	// Accepting twice must fail; the pairing already left pending.
	status, body := doJSON(t, http.MethodPost, baseURL+"/connections/"+connectionID+"/accept", mentor.token, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 on double accept, got %d: %s", status, body)
	}

	mentorSocket := dialSocket(t, wsURL, mentor.token)
	defer mentorSocket.Close()
	menteeSocket := dialSocket(t, wsURL, mentee.token)
	defer menteeSocket.Close()

	// After both connect, the broadcast snapshot must list both users.
	waitForOnlineSet(t, mentorSocket, mentor.id, mentee.id)

	sendBody := map[string]string{
		"receiverId":   mentor.id,
		"connectionId": connectionID,
		"text":         "hi",
	}
	status, body = doJSON(t, http.MethodPost, baseURL+"/messages/send", mentee.token, sendBody)
	if status != http.StatusCreated {
		t.Fatalf("send status %d: %s", status, body)
	}

	event := waitForEvent(t, mentorSocket, "newMessage")
	var msg struct {
		SenderID   string `json:"senderId"`
		ReceiverID string `json:"receiverId"`
		Text       string `json:"text"`
	}
	if err := json.Unmarshal(event.Data, &msg); err != nil {
		t.Fatalf("decode push: %v", err)
	}
	if msg.SenderID != mentee.id || msg.ReceiverID != mentor.id || msg.Text != "hi" {
		t.Fatalf("unexpected pushed message: %+v", msg)
	}

	// A rapid follow-up send must land after the first in history: the
	// append order is pinned even when both writes share a timestamp.
	status, body = doJSON(t, http.MethodPost, baseURL+"/messages/send", mentee.token, map[string]string{
		"receiverId":   mentor.id,
		"connectionId": connectionID,
		"text":         "follow-up",
	})
	if status != http.StatusCreated {
		t.Fatalf("second send status %d: %s", status, body)
	}

	// History shows the persisted messages, oldest first.
	status, body = doJSON(t, http.MethodGet, baseURL+"/messages/"+mentee.id, mentor.token, nil)
	if status != http.StatusOK {
		t.Fatalf("history status %d: %s", status, body)
	}
	first := strings.Index(string(body), `"text":"hi"`)
	second := strings.Index(string(body), `"text":"follow-up"`)
	if first < 0 || second < 0 || first > second {
		t.Fatalf("history out of send order: %s", body)
	}

	// An outsider using the same connection id must be forbidden.
	status, body = doJSON(t, http.MethodPost, baseURL+"/messages/send", outsider.token, map[string]string{
		"receiverId":   mentor.id,
		"connectionId": connectionID,
		"text":         "intruding",
	})
	if status != http.StatusForbidden {
		t.Fatalf("expected 403 for outsider, got %d: %s", status, body)
	}

	// Without a token (cookie cleared at logout) the retry is rejected.
	status, _ = doJSON(t, http.MethodPost, baseURL+"/messages/send", "", sendBody)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", status)
	}
}

func signup(t *testing.T, baseURL, fullName, email, role string) account {
	t.Helper()
	payload := map[string]string{
		"fullName": fullName,
		"email":    email,
		"password": "dev-password",
		"role":     role,
	}
	body, _ := json.Marshal(payload)
	resp, err := http.Post(baseURL+"/auth/signup", "application/json", bytes.NewBuffer(body))
	if err != nil {
		t.Fatalf("signup request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("signup status %d", resp.StatusCode)
	}
	var out userResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode signup: %v", err)
	}

	token := ""
	for _, cookie := range resp.Cookies() {
		if cookie.Name == "jwt" {
			token = cookie.Value
		}
	}
	if token == "" || out.User.ID == "" {
		t.Fatalf("missing token or user id after signup")
	}
	return account{id: out.User.ID, token: token}
}

func requestConnection(t *testing.T, baseURL, token, mentorID string) string {
	t.Helper()
	status, body := doJSON(t, http.MethodPost, baseURL+"/connections/request", token, map[string]string{"mentorId": mentorID})
	if status != http.StatusCreated {
		t.Fatalf("request connection status %d: %s", status, body)
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &out); err != nil || out.ID == "" {
		t.Fatalf("decode connection id: %v", err)
	}
	return out.ID
}

func acceptConnection(t *testing.T, baseURL, token, connectionID string) {
	t.Helper()
	status, body := doJSON(t, http.MethodPost, baseURL+"/connections/"+connectionID+"/accept", token, nil)
	if status != http.StatusOK {
		t.Fatalf("accept connection status %d: %s", status, body)
	}
}

func dialSocket(t *testing.T, wsURL, token string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"/ws?token="+token, nil)
	if err != nil {
		t.Fatalf("websocket dial: %v", err)
	}
	return conn
}

func waitForOnlineSet(t *testing.T, conn *websocket.Conn, want ...string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		event := readEvent(t, conn)
		if event.Event != "getOnlineUsers" {
			continue
		}
		var users []string
		if err := json.Unmarshal(event.Data, &users); err != nil {
			t.Fatalf("decode online set: %v", err)
		}
		online := make(map[string]bool, len(users))
		for _, id := range users {
			online[id] = true
		}
		all := true
		for _, id := range want {
			if !online[id] {
				all = false
			}
		}
		if all {
			return
		}
	}
	t.Fatalf("online set never contained %v", want)
}

func waitForEvent(t *testing.T, conn *websocket.Conn, name string) wsEvent {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		event := readEvent(t, conn)
		if event.Event == name {
			return event
		}
	}
	t.Fatalf("never received %s event", name)
	return wsEvent{}
}

func readEvent(t *testing.T, conn *websocket.Conn) wsEvent {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, frame, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("websocket read: %v", err)
	}
	var event wsEvent
	if err := json.Unmarshal(frame, &event); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	return event
}

func doJSON(t *testing.T, method, url, token string, payload any) (int, []byte) {
	t.Helper()
	var bodyBytes []byte
	if payload != nil {
		var err error
		bodyBytes, err = json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, bytes.NewBuffer(bodyBytes))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp.StatusCode, body
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
