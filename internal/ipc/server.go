package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/machug/woofalytics-v2-sub000/internal/logging"
)

// Handler is what the daemon implements to answer control-channel calls.
// Defined here rather than imported from package daemon to avoid an
// import cycle: daemon never needs to know about the IPC wire format.
type Handler interface {
	Status(ctx context.Context) (any, error)
	Stop(ctx context.Context) error
	EventsTail(ctx context.Context, limit int) (any, error)
	EvidenceList(ctx context.Context, limit int) (any, error)
}

// Server accepts control connections on a Unix domain socket and dispatches
// each request line to Handler.
type Server struct {
	socketPath string
	handler    Handler
	logger     *slog.Logger

	listener net.Listener
	wg       sync.WaitGroup
}

// NewServer binds the control socket, removing any stale socket file left
// behind by a prior unclean shutdown.
func NewServer(socketPath string, handler Handler, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	_ = os.Remove(socketPath)
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("ipc: listen on %s: %w", socketPath, err)
	}
	return &Server{
		socketPath: socketPath,
		handler:    handler,
		logger:     logging.NewComponentLogger(logger, "ipc_server"),
		listener:   listener,
	}, nil
}

// Serve accepts connections until ctx is cancelled or the listener closes.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("ipc: accept: %w", err)
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

// Close shuts down the listener and waits for in-flight connections to
// finish, then removes the socket file.
func (s *Server) Close() error {
	err := s.listener.Close()
	s.wg.Wait()
	_ = os.Remove(s.socketPath)
	return err
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	enc := json.NewEncoder(conn)

	for scanner.Scan() {
		var req Request
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			_ = enc.Encode(Response{OK: false, Error: fmt.Sprintf("decode request: %v", err)})
			continue
		}
		resp := s.dispatch(ctx, req)
		if err := enc.Encode(resp); err != nil {
			s.logger.Warn("failed to write ipc response",
				logging.Error(err),
				logging.String(logging.FieldEventType, "ipc_write_failed"),
			)
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, req Request) Response {
	switch req.Command {
	case CommandStatus:
		data, err := s.handler.Status(ctx)
		return toResponse(data, err)
	case CommandStop:
		err := s.handler.Stop(ctx)
		return toResponse(nil, err)
	case CommandEventsTail:
		limit := intArg(req.Args, "limit", 50)
		data, err := s.handler.EventsTail(ctx, limit)
		return toResponse(data, err)
	case CommandEvidenceList:
		limit := intArg(req.Args, "limit", 50)
		data, err := s.handler.EvidenceList(ctx, limit)
		return toResponse(data, err)
	default:
		return Response{OK: false, Error: fmt.Sprintf("unknown command %q", req.Command)}
	}
}

func toResponse(data any, err error) Response {
	if err != nil {
		return Response{OK: false, Error: err.Error()}
	}
	return Response{OK: true, Data: data}
}

func intArg(args map[string]any, key string, fallback int) int {
	if args == nil {
		return fallback
	}
	v, ok := args[key]
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return fallback
	}
}
