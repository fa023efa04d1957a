// Package gateway exposes the turn dispatcher over WebSocket.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"repochat/internal/domain"
	"repochat/internal/infra/middleware"
)

// sendQueueSize bounds the outbound frames buffered per connection.
const sendQueueSize = 64

// RPCHandler handles a single RPC method call.
type RPCHandler func(ctx context.Context, call *Call) (json.RawMessage, error)

// Call is one RPC request on a connection. Progress frames emitted through
// it share the request ID.
type Call struct {
	Client  *ClientInfo
	ID      uint64
	Payload json.RawMessage

	cc *clientConn
}

// Emit sends a progress frame for this call. It blocks until the frame is
// queued and returns an error once the connection or ctx is done.
func (c *Call) Emit(ctx context.Context, typ FrameType, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s frame: %w", typ, err)
	}
	return c.cc.send(ctx, Frame{Type: typ, ID: c.ID, Payload: raw})
}

// Watch subscribes the connection to bus events of chatID.
func (c *Call) Watch(chatID string) {
	c.cc.chats.Store(chatID, struct{}{})
}

// clientConn tracks a single WebSocket connection.
type clientConn struct {
	info      *ClientInfo
	ws        *websocket.Conn
	sendCh    chan Frame // buffered outbound queue
	done      chan struct{}
	closeOnce sync.Once
	chats     sync.Map // chat IDs this connection has used
}

func (cc *clientConn) send(ctx context.Context, f Frame) error {
	select {
	case cc.sendCh <- f:
		return nil
	case <-cc.done:
		return errors.New("gateway: connection closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// trySend queues f without blocking.
func (cc *clientConn) trySend(f Frame) bool {
	select {
	case cc.sendCh <- f:
		return true
	default:
		return false
	}
}

// Server is the WebSocket gateway that exposes RPC methods and forwards
// chat events to the connections using those chats.
type Server struct {
	bus        domain.EventBus // optional
	clients    sync.Map        // connID (uint64) -> *clientConn
	auth       Authenticator
	handlersMu sync.RWMutex
	handlers   map[string]RPCHandler
	logger     *slog.Logger
	addr       string
	rateLimit  *middleware.RateLimitConfig
	httpSrv    *http.Server
	bound      atomic.Value // string
	nextID     atomic.Uint64
	unsubAll   func()
	httpRoutes []httpRoute
}

type httpRoute struct {
	pattern string
	handler http.HandlerFunc
}

// NewServer creates a gateway server.
func NewServer(bus domain.EventBus, auth Authenticator, addr string, logger *slog.Logger) *Server {
	return &Server{
		bus:      bus,
		auth:     auth,
		handlers: make(map[string]RPCHandler),
		logger:   logger,
		addr:     addr,
	}
}

// SetRateLimit enables per-IP rate limiting on every route. Must be called
// before Start.
func (s *Server) SetRateLimit(cfg middleware.RateLimitConfig) {
	if cfg.RequestsPerSecond <= 0 {
		return
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	s.rateLimit = &cfg
}

// RegisterHandler adds an RPC handler for the given method name.
// Safe to call concurrently with active connections.
func (s *Server) RegisterHandler(method string, handler RPCHandler) {
	s.handlersMu.Lock()
	s.handlers[method] = handler
	s.handlersMu.Unlock()
}

// RegisterHTTPRoute adds an HTTP handler to the gateway's mux.
// Must be called before Start.
func (s *Server) RegisterHTTPRoute(pattern string, handler http.HandlerFunc) {
	s.httpRoutes = append(s.httpRoutes, httpRoute{pattern: pattern, handler: handler})
}

// Handler builds the HTTP handler serving /ws and the registered routes.
func (s *Server) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleUpgrade)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	for _, route := range s.httpRoutes {
		mux.HandleFunc(route.pattern, route.handler)
	}

	var h http.Handler = mux
	if s.rateLimit != nil {
		h = middleware.RateLimit(ctx, *s.rateLimit)(h)
	}
	h = middleware.SecurityHeaders(h)
	return middleware.RequestLog(s.logger)(h)
}

// Start begins accepting WebSocket connections. Blocks until ctx is
// cancelled.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}
	s.httpSrv = &http.Server{
		Handler:           s.Handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.bound.Store(listener.Addr().String())

	if s.bus != nil {
		s.unsubAll = s.bus.SubscribeAll(s.forwardEvent)
	}

	s.logger.Info("gateway started", "addr", s.BoundAddr())

	go func() {
		<-ctx.Done()
		_ = s.Stop(context.Background())
	}()

	if err := s.httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("gateway serve: %w", err)
	}
	return nil
}

// forwardEvent relays a bus event to every connection watching its chat.
func (s *Server) forwardEvent(_ context.Context, event domain.Event) {
	if event.ChatID == "" {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	frame := Frame{Type: FrameTypeEvent, Payload: payload}
	s.clients.Range(func(_, value any) bool {
		cc := value.(*clientConn)
		if _, ok := cc.chats.Load(event.ChatID); !ok {
			return true
		}
		if !cc.trySend(frame) {
			s.logger.Warn("gateway: dropped event for slow client", "event", string(event.Type), "chat_id", event.ChatID)
		}
		return true
	})
}

// Stop gracefully shuts down the gateway server.
func (s *Server) Stop(ctx context.Context) error {
	if s.unsubAll != nil {
		s.unsubAll()
	}

	s.clients.Range(func(key, value any) bool {
		cc := value.(*clientConn)
		cc.closeOnce.Do(func() { close(cc.done) })
		cc.ws.Close(websocket.StatusGoingAway, "server shutting down")
		s.clients.Delete(key)
		return true
	})

	if s.httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	}
	return nil
}

// BoundAddr returns the address the server bound to. Empty before Start.
func (s *Server) BoundAddr() string {
	v, _ := s.bound.Load().(string)
	return v
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	clientInfo, err := s.auth.Authenticate(requestToken(r))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{
			"localhost",
			"localhost:*",
			"127.0.0.1",
			"127.0.0.1:*",
			"[::1]",
			"[::1]:*",
		},
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}

	connID := s.nextID.Add(1)
	cc := &clientConn{
		info:   clientInfo,
		ws:     ws,
		sendCh: make(chan Frame, sendQueueSize),
		done:   make(chan struct{}),
	}
	s.clients.Store(connID, cc)

	s.logger.Info("gateway client connected", "conn_id", connID, "client", clientInfo.Name)

	ctx, cancel := context.WithCancel(r.Context())
	go s.writeLoop(cc)
	s.readLoop(ctx, cc)
	cancel()

	cc.closeOnce.Do(func() { close(cc.done) })
	s.clients.Delete(connID)
	ws.Close(websocket.StatusNormalClosure, "")
	s.logger.Info("gateway client disconnected", "conn_id", connID)
}

func (s *Server) readLoop(ctx context.Context, cc *clientConn) {
	for {
		select {
		case <-cc.done:
			return
		default:
		}

		var frame Frame
		if err := wsjson.Read(ctx, cc.ws, &frame); err != nil {
			return
		}
		if frame.Type != FrameTypeRequest {
			continue
		}
		go s.dispatchRPC(ctx, cc, frame)
	}
}

func (s *Server) writeLoop(cc *clientConn) {
	for {
		select {
		case <-cc.done:
			return
		case frame := <-cc.sendCh:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := wsjson.Write(ctx, cc.ws, frame)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (s *Server) dispatchRPC(ctx context.Context, cc *clientConn, req Frame) {
	s.handlersMu.RLock()
	handler, ok := s.handlers[req.Method]
	s.handlersMu.RUnlock()
	if !ok {
		s.sendResponse(ctx, cc, req.ID, nil, fmt.Errorf("%w: %q", domain.ErrRPCMethodNotFound, req.Method))
		return
	}

	ctx = domain.ContextWithAuthSession(ctx, cc.info.Session())
	call := &Call{Client: cc.info, ID: req.ID, Payload: req.Payload, cc: cc}
	result, err := handler(ctx, call)
	s.sendResponse(ctx, cc, req.ID, result, err)
}

func (s *Server) sendResponse(ctx context.Context, cc *clientConn, id uint64, result json.RawMessage, err error) {
	resp := Frame{
		Type:    FrameTypeResponse,
		ID:      id,
		Payload: result,
	}
	if err != nil {
		resp.Error = err.Error()
		resp.Code = string(domain.ErrorCodeOf(err))
	}
	if sendErr := cc.send(ctx, resp); sendErr != nil {
		s.logger.Warn("gateway: dropped RPC response", "frame_id", id, "error", sendErr)
	}
}
