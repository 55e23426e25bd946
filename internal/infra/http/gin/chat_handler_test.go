package ginserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	gin "github.com/gin-gonic/gin"

	"homefind/internal/app/notify"
	chatsvc "homefind/internal/app/services/chat"
	"homefind/internal/infra/config"
	"homefind/internal/infra/obs"
	"homefind/internal/infra/storage/memory"
)

// testUserHeader lets tests pick the authenticated caller per request.
const testUserHeader = "X-Test-User"

func newTestServer() http.Handler {
	service := &chatsvc.Service{
		Units: memory.Factory{
			ConversationRepo: memory.NewConversationRepository(),
			MessageRepo:      memory.NewMessageRepository(),
		},
		Outbox: memory.NewOutbox(),
		Hub:    notify.NewHub(),
	}
	stubAuth := func(c *gin.Context) {
		if id := c.GetHeader(testUserHeader); id != "" {
			setPrincipal(c, principal{ID: id, Name: id})
		}
		c.Next()
	}
	server := NewServer(config.Config{Env: "test", HTTPAddr: ":0"}, obs.Middleware{}, obs.HealthHandlers{}, Handlers{
		Chat:           ChatHandler{Service: service},
		AuthMiddleware: stubAuth,
	})
	return server.Handler
}

func doRequest(t *testing.T, handler http.Handler, method, path, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set(testUserHeader, user)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), target); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func sendMessage(t *testing.T, handler http.Handler, from, to, text string) map[string]any {
	t.Helper()
	body := `{"receiverId":"` + to + `","message":"` + text + `","listingId":"l-1","listingTitle":"Cozy Loft"}`
	rec := doRequest(t, handler, http.MethodPost, "/messages/create", from, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create message: status %d, body %s", rec.Code, rec.Body.String())
	}
	var message map[string]any
	decodeBody(t, rec, &message)
	return message
}

func TestCreateMessageEndpoint(t *testing.T) {
	handler := newTestServer()

	message := sendMessage(t, handler, "alice", "bob", "hi there")
	if message["conversationId"] == "" {
		t.Fatal("response missing conversationId")
	}
	if message["message"] != "hi there" || message["senderId"] != "alice" || message["receiverId"] != "bob" {
		t.Fatalf("unexpected message body: %v", message)
	}
	if message["read"] != false {
		t.Fatal("new message must start unread")
	}
}

func TestCreateMessageRejectsMissingFields(t *testing.T) {
	handler := newTestServer()

	rec := doRequest(t, handler, http.MethodPost, "/messages/create", "alice", `{"receiverId":"bob"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]string
	decodeBody(t, rec, &resp)
	if resp["message"] != "Missing required fields" {
		t.Fatalf("message = %q", resp["message"])
	}
}

func TestEndpointsRequireAuthentication(t *testing.T) {
	handler := newTestServer()

	cases := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/messages/create"},
		{http.MethodGet, "/messages/conversations"},
		{http.MethodGet, "/messages/some-id"},
		{http.MethodPut, "/messages/read/some-id"},
		{http.MethodDelete, "/messages/delete/some-id"},
		{http.MethodDelete, "/messages/conversation/some-id"},
	}
	for _, tc := range cases {
		rec := doRequest(t, handler, tc.method, tc.path, "", "")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: status %d, want 401", tc.method, tc.path, rec.Code)
		}
	}
}

func TestGetConversationsRendersViewerUnread(t *testing.T) {
	handler := newTestServer()

	sendMessage(t, handler, "alice", "bob", "one")
	sendMessage(t, handler, "alice", "bob", "two")

	rec := doRequest(t, handler, http.MethodGet, "/messages/conversations", "bob", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var conversations []map[string]any
	decodeBody(t, rec, &conversations)
	if len(conversations) != 1 {
		t.Fatalf("got %d conversations", len(conversations))
	}
	conv := conversations[0]
	if conv["unreadCount"] != float64(2) {
		t.Fatalf("bob unreadCount = %v", conv["unreadCount"])
	}
	if conv["lastMessage"] != "two" {
		t.Fatalf("lastMessage = %v", conv["lastMessage"])
	}

	// The sender's own view carries no unread messages.
	rec = doRequest(t, handler, http.MethodGet, "/messages/conversations", "alice", "")
	decodeBody(t, rec, &conversations)
	if conversations[0]["unreadCount"] != float64(0) {
		t.Fatalf("alice unreadCount = %v", conversations[0]["unreadCount"])
	}
}

func TestGetMessagesAccessControl(t *testing.T) {
	handler := newTestServer()

	message := sendMessage(t, handler, "alice", "bob", "secret")
	conversationID := message["conversationId"].(string)

	rec := doRequest(t, handler, http.MethodGet, "/messages/"+conversationID, "mallory", "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-participant status = %d", rec.Code)
	}
	rec = doRequest(t, handler, http.MethodGet, "/messages/missing-id", "alice", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing conversation status = %d", rec.Code)
	}
	rec = doRequest(t, handler, http.MethodGet, "/messages/"+conversationID, "bob", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("participant status = %d", rec.Code)
	}
	var messages []map[string]any
	decodeBody(t, rec, &messages)
	if len(messages) != 1 || messages[0]["message"] != "secret" {
		t.Fatalf("unexpected messages: %v", messages)
	}
}

func TestMarkAsReadEndpoint(t *testing.T) {
	handler := newTestServer()

	message := sendMessage(t, handler, "alice", "bob", "ping")
	conversationID := message["conversationId"].(string)

	rec := doRequest(t, handler, http.MethodPut, "/messages/read/"+conversationID, "bob", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	decodeBody(t, rec, &resp)
	if resp["success"] != true {
		t.Fatalf("body = %v", resp)
	}

	rec = doRequest(t, handler, http.MethodGet, "/messages/conversations", "bob", "")
	var conversations []map[string]any
	decodeBody(t, rec, &conversations)
	if conversations[0]["unreadCount"] != float64(0) {
		t.Fatalf("unreadCount after read = %v", conversations[0]["unreadCount"])
	}
}

func TestDeleteMessageEndpoint(t *testing.T) {
	handler := newTestServer()

	message := sendMessage(t, handler, "alice", "bob", "typo")
	messageID := message["id"].(string)

	rec := doRequest(t, handler, http.MethodDelete, "/messages/delete/"+messageID, "bob", `{"deleteType":"everyone"}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-sender delete status = %d", rec.Code)
	}

	rec = doRequest(t, handler, http.MethodDelete, "/messages/delete/"+messageID, "alice", `{"deleteType":"bogus"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bogus deleteType status = %d", rec.Code)
	}

	rec = doRequest(t, handler, http.MethodDelete, "/messages/delete/"+messageID, "alice", `{"deleteType":"self"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("self delete status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	decodeBody(t, rec, &resp)
	if resp["success"] != true || resp["deleted"] != "self" {
		t.Fatalf("body = %v", resp)
	}

	// Hidden for the sender, still visible to the receiver.
	conversationID := message["conversationId"].(string)
	rec = doRequest(t, handler, http.MethodGet, "/messages/"+conversationID, "alice", "")
	var aliceView []map[string]any
	decodeBody(t, rec, &aliceView)
	if len(aliceView) != 0 {
		t.Fatalf("alice still sees %d messages", len(aliceView))
	}
	rec = doRequest(t, handler, http.MethodGet, "/messages/"+conversationID, "bob", "")
	var bobView []map[string]any
	decodeBody(t, rec, &bobView)
	if len(bobView) != 1 {
		t.Fatalf("bob sees %d messages", len(bobView))
	}
}

func TestDeleteConversationEndpoint(t *testing.T) {
	handler := newTestServer()

	message := sendMessage(t, handler, "alice", "bob", "bye")
	conversationID := message["conversationId"].(string)

	rec := doRequest(t, handler, http.MethodDelete, "/messages/conversation/"+conversationID, "mallory", "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-participant status = %d", rec.Code)
	}

	rec = doRequest(t, handler, http.MethodDelete, "/messages/conversation/"+conversationID, "bob", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	decodeBody(t, rec, &resp)
	if resp["success"] != true {
		t.Fatalf("body = %v", resp)
	}

	rec = doRequest(t, handler, http.MethodGet, "/messages/"+conversationID, "alice", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status after delete = %d", rec.Code)
	}
}
