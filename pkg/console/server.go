// Package console serves a remote script shell over WebSocket. Every text
// frame is one script; the reply carries what the script wrote to the UART
// and its result or diagnostic. Runs are serialised across all connections
// because there is a single board.
package console

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"minic/pkg/config"
	"minic/pkg/device"
	"minic/pkg/engine"
	"minic/pkg/limits"
	"minic/pkg/native"
	"minic/pkg/value"

	"github.com/gorilla/websocket"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("minic.console")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Sessions are authenticated by token, not by origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// readLimit caps a frame well above MaxSourceSize so oversized scripts get
// a diagnostic instead of a dropped connection.
const readLimit = 4 * config.MaxSourceSize

type Options struct {
	PasswordHash string
	Secret       []byte
	TokenTTL     time.Duration
	Limits       limits.Limits
	MaxSteps     int
	// SimOptions configure the board; the UART is always routed to the
	// reply of the current run.
	SimOptions []device.SimOption
}

// Reply is the JSON answer to one script.
type Reply struct {
	Output string `json:"output,omitempty"`
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
	Yield  bool   `json:"yield,omitempty"`
}

type Server struct {
	opts    Options
	board   *device.Sim
	natives *native.Registry

	// runMu serialises runs; uart is only swapped while it is held.
	runMu sync.Mutex
	uart  *uartTap
}

// uartTap forwards UART bytes to the writer of the run in progress.
type uartTap struct {
	w io.Writer
}

func (t *uartTap) Write(p []byte) (int, error) { return t.w.Write(p) }

func New(opts Options) (*Server, error) {
	if opts.PasswordHash == "" {
		return nil, errors.New("console: no password hash configured")
	}
	if len(opts.Secret) == 0 {
		return nil, errors.New("console: no token secret configured")
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = time.Hour
	}
	if opts.Limits == (limits.Limits{}) {
		opts.Limits = limits.Default()
	}

	s := &Server{opts: opts, uart: &uartTap{w: io.Discard}}
	simOpts := append(append([]device.SimOption{}, opts.SimOptions...), device.WithUART(s.uart))
	s.board = device.NewSim(simOpts...)
	s.natives = native.Board(s.board)
	return s, nil
}

// Board exposes the simulated device, for hosts that feed inputs.
func (s *Server) Board() *device.Sim { return s.board }

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/login", s.handleLogin)
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

// ListenAndServe serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}

	errs := make(chan error, 1)
	go func() { errs <- srv.ListenAndServe() }()
	log.Infof("console listening on %s", addr)

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdown)
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if !VerifyPassword(s.opts.PasswordHash, req.Password) {
		log.Warningf("failed login from %s", r.RemoteAddr)
		http.Error(w, ErrUnauthorized.Error(), http.StatusUnauthorized)
		return
	}

	token, err := SignToken(s.opts.Secret, s.opts.TokenTTL)
	if err != nil {
		log.Errorf("sign token: %s", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"token": token})
	log.Infof("login from %s", r.RemoteAddr)
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if err := VerifyToken(bearerToken(r), s.opts.Secret); err != nil {
		log.Debugf("rejected session from %s: %s", r.RemoteAddr, err)
		http.Error(w, ErrUnauthorized.Error(), http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warningf("websocket upgrade failed: %s", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(readLimit)
	log.Infof("session opened from %s", r.RemoteAddr)

	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debugf("session from %s ended: %s", r.RemoteAddr, err)
			}
			return
		}

		var reply Reply
		if msgType != websocket.TextMessage {
			reply.Error = fmt.Sprintf("unexpected message type: %d", msgType)
		} else {
			reply = s.Execute(msg)
		}

		if err := conn.WriteJSON(reply); err != nil {
			log.Debugf("write to %s: %s", r.RemoteAddr, err)
			return
		}
	}
}

// Execute runs one script on the board and reports what it did.
func (s *Server) Execute(src []byte) Reply {
	if err := config.CheckSource(src); err != nil {
		return Reply{Error: err.Error()}
	}

	s.runMu.Lock()
	defer s.runMu.Unlock()

	var out bytes.Buffer
	s.uart.w = &out
	defer func() { s.uart.w = io.Discard }()

	s.board.ClearYield()
	res, err := engine.Run(string(src), engine.Options{
		Limits:   s.opts.Limits,
		Natives:  s.natives,
		MaxSteps: s.opts.MaxSteps,
	})

	reply := Reply{Output: out.String(), Yield: s.board.YieldRequested()}
	switch {
	case err != nil:
		reply.Error = err.Error()
	case res.MainCalled:
		reply.Result = res.Return.Inspect()
	case res.LastPopped.Type() != value.Void:
		reply.Result = res.LastPopped.Inspect()
	}
	return reply
}
