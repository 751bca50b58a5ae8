package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"time"
)

// ErrDaemonNotRunning is returned by the client when nothing listens on the
// socket.
var ErrDaemonNotRunning = errors.New("daemon not running")

// maxRequestBytes bounds a single request line.
const maxRequestBytes = 4096

// Handler executes one IPC request. The returned value is sent as the
// result of a single JSON line; an error becomes {"ok":false,"error":"..."}.
type Handler interface {
	HandleCommand(ctx context.Context, cmd string, args []string) (any, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, cmd string, args []string) (any, error)

// HandleCommand calls f.
func (f HandlerFunc) HandleCommand(ctx context.Context, cmd string, args []string) (any, error) {
	return f(ctx, cmd, args)
}

// Server listens on a Unix domain socket for line-based text commands and
// answers each with one JSON line.
//
// Protocol:
//   - Client sends a single line: COMMAND [arg1] [arg2] ...
//   - Server responds with one JSON line: {"ok":true,"result":...} or
//     {"ok":false,"error":"..."}. The result may itself carry an error
//     field (a stale service); only the envelope decides failure.
//   - Commands: HEALTH, LIST, GET {service}, REFRESH [service],
//     SET {darkmode|devmode} {on|off}, SETTINGS, QUIT
type Server struct {
	socketPath string
	handler    Handler
	logger     *slog.Logger
	timeout    time.Duration

	listener net.Listener
	wg       sync.WaitGroup
	done     chan struct{}
	stopOnce sync.Once
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewServer creates a server that will listen on socketPath and dispatch
// commands to handler.
func NewServer(socketPath string, handler Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		socketPath: socketPath,
		handler:    handler,
		logger:     logger,
		timeout:    30 * time.Second,
		done:       make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start begins listening. The socket file is created with mode 0600. A
// stale socket file at the path is removed first, but a live daemon on it
// is an error.
func (s *Server) Start() error {
	if c, err := net.DialTimeout("unix", s.socketPath, 200*time.Millisecond); err == nil {
		c.Close()
		return fmt.Errorf("socket %s already in use", s.socketPath)
	}
	os.Remove(s.socketPath)

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.socketPath, err)
	}
	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		ln.Close()
		return fmt.Errorf("chmod socket: %w", err)
	}
	s.listener = ln

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Stop closes the listener, cancels in-flight commands, waits for open
// connections and removes the socket file. It is safe to call more than
// once.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.cancel()
		if s.listener != nil {
			s.listener.Close()
		}
		s.wg.Wait()
		os.Remove(s.socketPath)
	})
}

// Release implements services.Handle.
func (s *Server) Release() { s.Stop() }

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				s.logger.Debug("accept failed", "error", err)
				continue
			}
		}

		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// handleConn reads one line, dispatches it and writes the response.
func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(s.timeout))

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 512), maxRequestBytes)
	if !scanner.Scan() {
		return
	}
	line := strings.TrimSpace(scanner.Text())
	if line == "" {
		return
	}

	cmd, args := parseCommand(line)
	s.logger.Debug("ipc command", "cmd", cmd, "args", args)

	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	var resp response
	result, err := s.handler.HandleCommand(ctx, cmd, args)
	if err != nil {
		resp.Error = err.Error()
	} else if resp.Result, err = json.Marshal(result); err != nil {
		resp.Error = fmt.Sprintf("encode response: %v", err)
	} else {
		resp.OK = true
	}
	if !resp.OK {
		resp.Result = nil
	}
	data, _ := json.Marshal(resp)
	fmt.Fprintf(conn, "%s\n", data)
}

// response is the envelope of every reply.
type response struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// parseCommand splits a request line into an upper-cased command name and
// its positional arguments.
//
//	HEALTH              -> "HEALTH", []
//	GET weather         -> "GET", [weather]
//	set darkmode on     -> "SET", [darkmode on]
func parseCommand(line string) (string, []string) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return "", nil
	}
	return strings.ToUpper(parts[0]), parts[1:]
}

// Client talks to a running daemon. Each call opens a new connection.
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient creates a client for the daemon at socketPath.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath, timeout: 30 * time.Second}
}

// SendCommand sends one command line and returns the raw JSON response.
func (c *Client) SendCommand(ctx context.Context, cmd string) (string, error) {
	d := net.Dialer{Timeout: 2 * time.Second}
	conn, err := d.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDaemonNotRunning, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = conn.SetDeadline(deadline)

	if _, err := fmt.Fprintf(conn, "%s\n", cmd); err != nil {
		return "", fmt.Errorf("send command: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("read response: %w", err)
		}
		return "", fmt.Errorf("empty response from daemon")
	}
	return scanner.Text(), nil
}

// Do sends cmd and decodes the result into v. A failed request is
// returned as an error; a result that merely describes a failing service
// is decoded like any other.
func (c *Client) Do(ctx context.Context, cmd string, v any) error {
	raw, err := c.SendCommand(ctx, cmd)
	if err != nil {
		return err
	}
	var resp response
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if !resp.OK {
		if resp.Error == "" {
			resp.Error = "request failed"
		}
		return errors.New(resp.Error)
	}
	if v == nil || len(resp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Result, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
