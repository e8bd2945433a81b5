// Package operator — server.go
//
// Unix domain socket server for the LACT unit operator command console.
//
// Protocol: newline-delimited JSON over a Unix domain socket.
// Socket path: /run/lactd/operator.sock (configurable).
// Permissions: 0600, owned by root. Only root can connect.
//
// Commands (JSON request → JSON response):
//
//   {"cmd":"start"}
//     → Enqueues a START command for the next scan.
//     → Response: {"ok":true}
//
//   {"cmd":"stop"}
//     → Enqueues a STOP command.
//
//   {"cmd":"prove"}
//     → Enqueues a PROVE command (only acted on while Running).
//
//   {"cmd":"reset"}
//     → Enqueues a RESET command, clearing a latched EStop alarm.
//
//   {"cmd":"set","name":"bsw_divert_pct","value":1.5}
//     → Enqueues a setpoint change; validated and applied on the scan
//       thread before the response is returned.
//     → Response: {"ok":true} or {"ok":false,"error":"..."}
//
//   {"cmd":"close_batch"}
//     → Closes the current batch. Response: {"ok":true}; the batch
//       report itself is not returned.
//
//   {"cmd":"query","tag":"AI_INLET_PRESS"}
//     → Returns the named tag's value, or every tag if "tag" is omitted.
//
//   {"cmd":"dump"}
//     → Returns every alarm ID ever raised, active or not.
//
// Security:
//   - Socket is created with 0600 permissions; only root can connect.
//   - Each connection is handled in a separate goroutine.
//   - Max concurrent connections: 4 (operator use only, not high-throughput).
//   - Max request size: 4096 bytes (prevents memory exhaustion).
//   - Connection timeout: 10s read, 10s write.
package operator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/lactplc/skidcore/internal/cmdqueue"
	"github.com/lactplc/skidcore/internal/statemachine"
)

const (
	maxConcurrentConns = 4
	maxRequestBytes    = 4096
	connTimeout        = 10 * time.Second
	replyTimeout       = 2 * time.Second
)

// Controller is the interface the operator server drives. The scan
// executive implements it; commands are enqueued, never executed on the
// calling goroutine.
type Controller interface {
	Start() bool
	Stop() bool
	Prove() bool
	Reset() bool
	Set(name string, value float64) <-chan cmdqueue.Result
	CloseBatch() <-chan cmdqueue.Result
	Query(tag string) <-chan cmdqueue.Result
	Dump() <-chan cmdqueue.Result
	State() statemachine.State
}

// Request is the JSON structure for operator commands.
type Request struct {
	Cmd   string  `json:"cmd"`
	Name  string  `json:"name,omitempty"`
	Value float64 `json:"value,omitempty"`
	Tag   string  `json:"tag,omitempty"`
}

// Response is the JSON structure for operator command responses.
type Response struct {
	OK     bool                 `json:"ok"`
	Error  string               `json:"error,omitempty"`
	State  string               `json:"state,omitempty"`
	Tags   []cmdqueue.TagValue  `json:"tags,omitempty"`
	Alarms []string             `json:"alarms,omitempty"`
}

// Server is the operator Unix domain socket server.
type Server struct {
	socketPath string
	ctrl       Controller
	log        *zap.Logger
	sem        chan struct{}
}

// NewServer creates an operator Server.
func NewServer(socketPath string, ctrl Controller, log *zap.Logger) *Server {
	return &Server{
		socketPath: socketPath,
		ctrl:       ctrl,
		log:        log,
		sem:        make(chan struct{}, maxConcurrentConns),
	}
}

// ListenAndServe starts the operator socket server. Removes any stale
// socket file before binding. Blocks until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("operator: remove stale socket %q: %w", s.socketPath, err)
	}

	dir := filepath.Dir(s.socketPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("operator: mkdir %q: %w", dir, err)
	}

	lis, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("operator: listen %q: %w", s.socketPath, err)
	}
	defer lis.Close()

	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		return fmt.Errorf("operator: chmod %q: %w", s.socketPath, err)
	}

	s.log.Info("operator socket listening", zap.String("path", s.socketPath))

	go func() {
		<-ctx.Done()
		lis.Close()
	}()

	for {
		conn, err := lis.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				s.log.Error("operator: accept error", zap.Error(err))
				continue
			}
		}

		select {
		case s.sem <- struct{}{}:
		default:
			s.log.Warn("operator: max connections reached, rejecting")
			_ = conn.Close()
			continue
		}

		go func(c net.Conn) {
			defer func() { <-s.sem }()
			defer c.Close()
			s.handleConn(c)
		}(conn)
	}
}

// handleConn handles a single operator connection: reads one JSON
// request, executes the command, writes one JSON response.
func (s *Server) handleConn(conn net.Conn) {
	_ = conn.SetDeadline(time.Now().Add(connTimeout))

	buf := make([]byte, maxRequestBytes)
	n, err := conn.Read(buf)
	if err != nil && err != io.EOF {
		s.log.Warn("operator: read error", zap.Error(err))
		return
	}

	var req Request
	if err := json.Unmarshal(buf[:n], &req); err != nil {
		s.writeResponse(conn, Response{OK: false, Error: "invalid JSON: " + err.Error()})
		return
	}

	resp := s.dispatch(req)
	s.writeResponse(conn, resp)
}

func (s *Server) dispatch(req Request) Response {
	switch req.Cmd {
	case "start":
		return okOrFull(s.ctrl.Start())
	case "stop":
		return okOrFull(s.ctrl.Stop())
	case "prove":
		return okOrFull(s.ctrl.Prove())
	case "reset":
		return okOrFull(s.ctrl.Reset())
	case "set":
		return s.await(s.ctrl.Set(req.Name, req.Value))
	case "close_batch":
		return s.await(s.ctrl.CloseBatch())
	case "query":
		return s.await(s.ctrl.Query(req.Tag))
	case "dump":
		return s.await(s.ctrl.Dump())
	case "status":
		return Response{OK: true, State: s.ctrl.State().String()}
	default:
		return Response{OK: false, Error: fmt.Sprintf("unknown command %q", req.Cmd)}
	}
}

func okOrFull(enqueued bool) Response {
	if !enqueued {
		return Response{OK: false, Error: "command queue full"}
	}
	return Response{OK: true}
}

// await waits for a queued command's reply, bounding the console's wait so
// a stalled scan thread never hangs an operator connection.
func (s *Server) await(reply <-chan cmdqueue.Result) Response {
	select {
	case res := <-reply:
		return Response{OK: res.OK, Error: res.Message, Tags: res.Tags, Alarms: res.Alarms}
	case <-time.After(replyTimeout):
		return Response{OK: false, Error: "timed out waiting for scan thread"}
	}
}

func (s *Server) writeResponse(conn net.Conn, resp Response) {
	data, _ := json.Marshal(resp)
	data = append(data, '\n')
	_, _ = conn.Write(data)
}
