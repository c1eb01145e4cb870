package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu   sync.Mutex
	msgs []Message
	err  error
}

func (r *recorder) Notify(_ context.Context, m Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, m)
	return r.err
}

func TestMultiAndMinSeverity(t *testing.T) {
	t.Parallel()

	boom := errors.New("unreachable")
	a := &recorder{}
	b := &recorder{err: boom}
	n := Multi{a, MinSeverity{Min: Critical, Next: b}, Nop{}}

	require.NoError(t, n.Notify(context.Background(), Message{Subject: "fill", Severity: Info}))
	assert.Len(t, a.msgs, 1)
	assert.Empty(t, b.msgs)

	err := n.Notify(context.Background(), Message{Subject: "kill switch", Severity: Critical})
	assert.ErrorIs(t, err, boom)
	assert.Len(t, a.msgs, 2)
	assert.Len(t, b.msgs, 1)
}

func TestParseSeverity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Severity
	}{
		{"", Info},
		{"info", Info},
		{"warn", Warning},
		{"warning", Warning},
		{"critical", Critical},
		{"error", Critical},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ParseSeverity(tt.in))
		})
	}
	assert.Equal(t, "critical", Critical.String())
}

// Not parallel: swaps sendMail.
func TestEmailComposesAndSends(t *testing.T) {
	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
	)
	var gotTimeout time.Duration
	sendMail = func(_ context.Context, addr string, timeout time.Duration, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTimeout, gotTo, gotMsg = addr, timeout, to, string(msg)
		return nil
	}
	t.Cleanup(func() { sendMail = deliver })

	e, err := NewEmail(EmailConfig{Host: "smtp.example.com", From: "bot@example.com", To: []string{"ops@example.com", "me@example.com"}})
	require.NoError(t, err)

	require.NoError(t, e.Notify(context.Background(), Message{Subject: "Kill switch engaged", Body: "3 errors\nflattening", Severity: Critical}))
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, defaultEmailTimeout, gotTimeout)
	assert.Equal(t, []string{"ops@example.com", "me@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: [equitybot critical] Kill switch engaged\r\n")
	assert.Contains(t, gotMsg, "To: ops@example.com, me@example.com\r\n")
	assert.Contains(t, gotMsg, "\r\n\r\n3 errors\r\nflattening\r\n")

	_, err = NewEmail(EmailConfig{Host: "smtp.example.com"})
	assert.Error(t, err)
}

func TestEmailGivesUpOnSilentServer(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	var (
		mu    sync.Mutex
		conns []net.Conn
	)
	t.Cleanup(func() {
		ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			c.Close()
		}
	})
	go func() {
		// Accept and never send the greeting.
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
		}
	}()

	host, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	e, err := NewEmail(EmailConfig{Host: host, Port: p, From: "bot@example.com", To: []string{"ops@example.com"}, Timeout: 100 * time.Millisecond})
	require.NoError(t, err)

	start := time.Now()
	err = e.Notify(context.Background(), Message{Subject: "Kill switch engaged", Severity: Critical})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestWebhookPostsEmbed(t *testing.T) {
	t.Parallel()

	var got map[string][]map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	w := NewWebhook(srv.URL)
	w.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }
	require.NoError(t, w.Notify(context.Background(), Message{Subject: "Circuit breaker", Body: "VIX 31", Severity: Warning}))

	require.Len(t, got["embeds"], 1)
	e := got["embeds"][0]
	assert.Equal(t, "Circuit breaker", e["title"])
	assert.Equal(t, "VIX 31", e["description"])
	assert.Equal(t, float64(0xF1C40F), e["color"])
	assert.Equal(t, "2025-01-02T03:04:05Z", e["timestamp"])
}

func TestWebhookErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	err := NewWebhook(srv.URL).Notify(context.Background(), Message{Subject: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestTelegramSendsToChat(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		texts []string
		chats []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"bot","username":"equitybot"}}`))
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			assert.NoError(t, r.ParseForm())
			mu.Lock()
			texts = append(texts, r.FormValue("text"))
			chats = append(chats, r.FormValue("chat_id"))
			mu.Unlock()
			_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":1700000000,"chat":{"id":42,"type":"private"},"text":"ok"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)

	tg, err := NewTelegram("TOKEN", 42, srv.URL+"/bot%s/%s")
	require.NoError(t, err)
	require.NoError(t, tg.Notify(context.Background(), Message{Subject: "Daily summary", Body: "P&L +120.00"}))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, texts, 1)
	assert.Equal(t, "Daily summary\n\nP&L +120.00", texts[0])
	assert.Equal(t, "42", chats[0])
}
