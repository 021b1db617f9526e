// Package terminal serves the REPL over a websocket so a browser
// front-end can drive interactive sessions. Each connection owns one
// engine; messages are small JSON envelopes in both directions.
package terminal

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/antibyte/retrobasic/pkg/auth"
	"github.com/antibyte/retrobasic/pkg/basic"
	"github.com/antibyte/retrobasic/pkg/configuration"
	"github.com/antibyte/retrobasic/pkg/history"
	"github.com/antibyte/retrobasic/pkg/host"
	"github.com/antibyte/retrobasic/pkg/logger"
	"github.com/antibyte/retrobasic/pkg/repl"

	"github.com/gorilla/websocket"
)

// Message is the wire envelope between client and server.
type Message struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

// message types
const (
	MessageInput    = "input"    // client -> server: one REPL line
	MessageOutput   = "output"   // server -> client: program output
	MessageError    = "error"    // server -> client: diagnostics/failures
	MessagePrompt   = "prompt"   // server -> client: ready for input
	MessageToken    = "token"    // server -> client: session JWT
	MessageAuth     = "auth"     // client -> server: password
	MessageResume   = "resume"   // client -> server: previous session JWT
)

// Server hosts websocket REPL sessions.
type Server struct {
	addr     string
	upgrader websocket.Upgrader
	hist     *history.Store
}

// NewServer builds a server for the configured address. The history
// store may be nil.
func NewServer(hist *history.Store) *Server {
	port := configuration.GetInt("Server", "port", 8372)
	return &Server{
		addr: fmt.Sprintf(":%d", port),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		hist: hist,
	}
}

// ListenAndServe blocks serving /ws until the listener fails.
func (s *Server) ListenAndServe() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	logger.Info(logger.AreaTerminal, "terminal server listening on %s", s.addr)
	return http.ListenAndServe(s.addr, mux)
}

type session struct {
	conn   *websocket.Conn
	writeMu sync.Mutex
}

func (c *session) send(msg Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(msg)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn(logger.AreaTerminal, "websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()
	sess := &session{conn: conn}

	// optional password gate before anything else
	if configuration.GetString("Server", "password_hash", "") != "" {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil || msg.Type != MessageAuth || !auth.CheckPassword(msg.Content) {
			sess.send(Message{Type: MessageError, Content: "authentication failed"})
			return
		}
	}

	// the engine writes program output straight to the socket; INPUT
	// blocks on the next input message
	inputCh := make(chan string, 16)
	h := host.NewChannelHost(inputCh, func(out string) {
		sess.send(Message{Type: MessageOutput, Content: out})
	})
	engine := repl.New(h, s.hist)

	token, err := auth.GenerateSessionToken(engine.SessionID)
	if err == nil {
		sess.send(Message{Type: MessageToken, Content: token})
	}
	sess.send(Message{Type: MessagePrompt})

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	logger.Info(logger.AreaTerminal, "session %s connected from %s", engine.SessionID, r.RemoteAddr)

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			logger.Info(logger.AreaTerminal, "session %s closed: %v", engine.SessionID, err)
			return
		}
		switch msg.Type {
		case MessageResume:
			if sid, err := auth.ValidateSessionToken(msg.Content); err == nil {
				engine.SessionID = sid
			}
		case MessageInput:
			s.runStep(ctx, sess, engine, inputCh, msg.Content)
		}
	}
}

// runStep feeds a line to the engine in a goroutine so INPUT inside
// the program can consume further input messages.
func (s *Server) runStep(ctx context.Context, sess *session, engine *repl.Engine, inputCh chan string, line string) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		diags, rerr := engine.Step(ctx, line)
		for _, d := range diags {
			sess.send(Message{Type: MessageError, Content: d.String()})
		}
		if rerr != nil {
			sess.send(Message{Type: MessageError, Content: rerr.Error()})
		}
		if engine.NeedsMore() {
			sess.send(Message{Type: MessagePrompt, Content: "..."})
		} else {
			sess.send(Message{Type: MessagePrompt})
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		default:
		}
		sess.conn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
		var msg Message
		err := sess.conn.ReadJSON(&msg)
		sess.conn.SetReadDeadline(time.Time{})
		if err == nil && msg.Type == MessageInput {
			select {
			case inputCh <- msg.Content:
			case <-done:
				return
			}
		}
	}
}

var _ basic.Host = (*host.ChannelHost)(nil)
