package crm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/matheus3301/crmsync/internal/model"
)

const testToken = "secret"

func newFakeCRM(t *testing.T, setup func(r *gin.Engine)) *Client {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if c.GetHeader("Authorization") != "Bearer "+testToken {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "unauthorized"})
			return
		}
		c.Next()
	})
	setup(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL + "/", Account: "shop", Token: testToken}, nil)
}

func TestListChats(t *testing.T) {
	c := newFakeCRM(t, func(r *gin.Engine) {
		r.GET("/api/avito/accounts/:account/chats", func(ctx *gin.Context) {
			if ctx.Param("account") != "shop" || ctx.Query("limit") != "20" {
				ctx.Status(http.StatusBadRequest)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"chats": []gin.H{
				{"id": "c1", "unread_count": 2, "updated": 100, "last_message": gin.H{"id": "m1", "direction": "in", "text": "hi", "created": 100}},
				{"id": "c2", "account_name": "other", "updated": 50},
			}})
		})
	})

	chats, err := c.ListChats(context.Background(), 20, 0)
	if err != nil {
		t.Fatalf("ListChats: %v", err)
	}
	if len(chats) != 2 {
		t.Fatalf("got %d chats, want 2", len(chats))
	}
	if chats[0].AccountName != "shop" || chats[1].AccountName != "other" {
		t.Errorf("account names = %q, %q", chats[0].AccountName, chats[1].AccountName)
	}
	if chats[0].LastMessage == nil || chats[0].LastMessage.Text != "hi" || chats[0].UnreadCount != 2 {
		t.Errorf("chat[0] = %+v", chats[0])
	}
}

func TestListMessagesFillsChatID(t *testing.T) {
	c := newFakeCRM(t, func(r *gin.Engine) {
		r.GET("/api/avito/accounts/:account/chats/:chat/messages", func(ctx *gin.Context) {
			ctx.JSON(http.StatusOK, gin.H{"messages": []gin.H{
				{"id": "m2", "direction": "out", "created": 20, "type": "text", "content": gin.H{"text": "b"}},
				{"id": "m1", "direction": "in", "created": 10, "type": "voice", "content": gin.H{"voice": gin.H{"voice_id": "v1"}}},
			}})
		})
	})

	msgs, err := c.ListMessages(context.Background(), "c1", 50, 0)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 2 || msgs[0].ID != "m2" {
		t.Fatalf("msgs = %+v, want server order", msgs)
	}
	for _, m := range msgs {
		if m.ChatID != "c1" {
			t.Errorf("message %s chat id = %q, want c1", m.ID, m.ChatID)
		}
	}
	if msgs[1].VoiceID() != "v1" {
		t.Errorf("voice id = %q, want v1", msgs[1].VoiceID())
	}
}

func TestSendTextDefaultsEcho(t *testing.T) {
	var got sendRequest
	c := newFakeCRM(t, func(r *gin.Engine) {
		r.POST("/api/avito/accounts/:account/chats/:chat/messages", func(ctx *gin.Context) {
			if err := ctx.ShouldBindJSON(&got); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"message": gin.H{"id": "m9", "created": 99, "content": gin.H{"text": got.Text}}})
		})
	})

	m, err := c.SendText(context.Background(), "c1", "hello")
	if err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if got.Text != "hello" {
		t.Errorf("server received %q", got.Text)
	}
	if m.ID != "m9" || m.ChatID != "c1" || m.Direction != model.DirectionOut || m.Type != model.TypeText {
		t.Errorf("echo = %+v", m)
	}
}

func TestResolveVoiceURLs(t *testing.T) {
	c := newFakeCRM(t, func(r *gin.Engine) {
		r.POST("/api/avito/accounts/:account/voice-files", func(ctx *gin.Context) {
			var req voiceRequest
			if err := ctx.ShouldBindJSON(&req); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			urls := gin.H{}
			for _, id := range req.VoiceIDs {
				urls[id] = "https://cdn/" + id
			}
			ctx.JSON(http.StatusOK, gin.H{"voice_urls": urls})
		})
	})

	urls, err := c.ResolveVoiceURLs(context.Background(), "", []string{"a", "b"})
	if err != nil {
		t.Fatalf("ResolveVoiceURLs: %v", err)
	}
	if urls["a"] != "https://cdn/a" || urls["b"] != "https://cdn/b" {
		t.Errorf("urls = %v", urls)
	}
}

func TestListCallGroups(t *testing.T) {
	c := newFakeCRM(t, func(r *gin.Engine) {
		r.GET("/api/calls/grouped", func(ctx *gin.Context) {
			ctx.JSON(http.StatusOK, gin.H{
				"groups": []gin.H{{
					"phone_number": "79990000001",
					"calls": []gin.H{
						{"id": "k1", "status": "missed", "created_at": time.Date(2026, 5, 14, 10, 0, 0, 0, time.UTC)},
					},
				}},
				"stats": gin.H{"total_calls": 1, "missed_calls": 1},
			})
		})
	})

	groups, stats, err := c.ListCallGroups(context.Background(), 1, 50)
	if err != nil {
		t.Fatalf("ListCallGroups: %v", err)
	}
	calls := groups["79990000001"]
	if len(calls) != 1 || calls[0].PhoneNumber != "79990000001" || calls[0].Status != model.CallMissed {
		t.Errorf("calls = %+v", calls)
	}
	if stats.TotalCalls != 1 || stats.MissedCalls != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestUnauthorizedIsSessionExpired(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/api/avito/accounts/:account/chats", func(ctx *gin.Context) {
		ctx.Status(http.StatusUnauthorized)
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Account: "shop", Token: "stale"}, nil)
	_, err := c.ListChats(context.Background(), 0, 0)
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("err = %v, want ErrSessionExpired", err)
	}
	if IsTransient(err) {
		t.Error("session expiry must not be transient")
	}
}

func TestServerErrorIsTransient(t *testing.T) {
	c := newFakeCRM(t, func(r *gin.Engine) {
		r.POST("/api/avito/accounts/:account/chats/:chat/read", func(ctx *gin.Context) {
			ctx.String(http.StatusBadGateway, "upstream down")
		})
	})

	err := c.MarkRead(context.Background(), "c1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadGateway {
		t.Fatalf("err = %v, want APIError 502", err)
	}
	if !IsTransient(err) {
		t.Error("5xx should be transient")
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"expired", ErrSessionExpired, false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
		{"bad request", &APIError{Status: 400}, false},
		{"throttled", &APIError{Status: 429}, true},
		{"server", &APIError{Status: 503}, true},
		{"other", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
