package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// controlRequest is the single message shape the local control server
// accepts: {"command": "status"|"stop"|"kill"|"restart"}.
type controlRequest struct {
	Command string `json:"command"`
	Reason  string `json:"reason,omitempty"`
}

type controlResponse struct {
	OK     bool        `json:"ok"`
	Error  string      `json:"error,omitempty"`
	Status interface{} `json:"status,omitempty"`
}

// LocalServer exposes the Supervisor over a loopback-only WebSocket so a
// CLI or menubar helper on the same host can query/control a running TARS
// instance without going through the relay (spec.md §4.13's local control
// surface, distinct from the tunnel's remote relay connection).
type LocalServer struct {
	supervisor *Supervisor
	upgrader   websocket.Upgrader

	mu         sync.Mutex
	clients    map[*websocket.Conn]struct{}
	httpServer *http.Server
}

// NewLocalServer creates a control server for sup; Run binds it to an addr
// (typically "127.0.0.1:0" or a fixed loopback port).
func NewLocalServer(sup *Supervisor) *LocalServer {
	ls := &LocalServer{
		supervisor: sup,
		clients:    make(map[*websocket.Conn]struct{}),
	}
	ls.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return true }, // loopback-only by bind address, not origin
	}
	return ls
}

// Run listens on addr until ctx is cancelled.
func (ls *LocalServer) Run(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/control", ls.handleWS)

	ls.httpServer = &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("supervisor: local control server listening", "addr", addr)
		errCh <- ls.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return ls.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("local control server: %w", err)
		}
		return nil
	}
}

func (ls *LocalServer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := ls.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("supervisor: websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ls.mu.Lock()
	ls.clients[conn] = struct{}{}
	ls.mu.Unlock()
	defer func() {
		ls.mu.Lock()
		delete(ls.clients, conn)
		ls.mu.Unlock()
	}()

	for {
		var req controlRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		resp := ls.handle(r.Context(), req)
		if err := conn.WriteJSON(resp); err != nil {
			return
		}
	}
}

func (ls *LocalServer) handle(ctx context.Context, req controlRequest) controlResponse {
	switch req.Command {
	case "status":
		return controlResponse{OK: true, Status: ls.supervisor.Status(ctx)}
	case "stop":
		if err := ls.supervisor.Stop(ctx); err != nil {
			return controlResponse{Error: err.Error()}
		}
		return controlResponse{OK: true}
	case "kill":
		if err := ls.supervisor.Kill(ctx, req.Reason); err != nil {
			return controlResponse{Error: err.Error()}
		}
		return controlResponse{OK: true}
	case "restart":
		if err := ls.supervisor.Restart(ctx); err != nil {
			return controlResponse{Error: err.Error()}
		}
		return controlResponse{OK: true}
	default:
		return controlResponse{Error: "unknown command: " + req.Command}
	}
}
