package subscription

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/graphql-go/graphql"

	"pg-graphql/internal/gqlrequest"
	"pg-graphql/internal/planner"
)

// Protocol is the websocket subprotocol this handler speaks.
const Protocol = "graphql-transport-ws"

// Message types of the graphql-transport-ws protocol.
const (
	msgConnectionInit = "connection_init"
	msgConnectionAck  = "connection_ack"
	msgPing           = "ping"
	msgPong           = "pong"
	msgSubscribe      = "subscribe"
	msgNext           = "next"
	msgError          = "error"
	msgComplete       = "complete"
)

// Close codes mandated by the protocol.
const (
	closeBadRequest       = 4400
	closeUnauthorized     = 4401
	closeInitTimeout      = 4408
	closeTooManyInits     = 4429
	defaultInitTimeout    = 10 * time.Second
	defaultWriteQueueSize = 32
)

type wsMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type subscribePayload struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName,omitempty"`
	Variables     map[string]interface{} `json:"variables,omitempty"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// SchemaResolver returns the executable schema for a connection. The request
// context carries the role the middleware extracted before the upgrade.
type SchemaResolver func(ctx context.Context) (graphql.Schema, error)

// WSHandler serves GraphQL subscriptions over websockets. Each connection
// multiplexes independent operations keyed by client-chosen ids.
type WSHandler struct {
	resolveSchema SchemaResolver
	limits        *planner.PlanLimits
	logger        *slog.Logger
	initTimeout   time.Duration
	upgrader      websocket.Upgrader
}

// NewWSHandler creates a websocket subscription handler.
func NewWSHandler(resolve SchemaResolver, limits *planner.PlanLimits, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHandler{
		resolveSchema: resolve,
		limits:        limits,
		logger:        logger,
		initTimeout:   defaultInitTimeout,
		upgrader: websocket.Upgrader{
			Subprotocols:    []string{Protocol},
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browser clients connect from arbitrary origins; role scoping
			// happens per request, not per origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// IsWebSocketUpgrade reports whether the request asks for a websocket.
func IsWebSocketUpgrade(r *http.Request) bool {
	return websocket.IsWebSocketUpgrade(r)
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	session := &wsSession{
		handler: h,
		conn:    conn,
		ctx:     r.Context(),
		writes:  make(chan wsMessage, defaultWriteQueueSize),
		ops:     make(map[string]context.CancelFunc),
	}
	session.run()
}

// wsSession is the per-connection state. Closing the connection cancels every
// operation of this session and nothing else.
type wsSession struct {
	handler *WSHandler
	conn    *websocket.Conn
	ctx     context.Context
	schema  graphql.Schema

	writes chan wsMessage

	mu          sync.Mutex
	ops         map[string]context.CancelFunc
	initialized bool
}

func (s *wsSession) run() {
	defer s.teardown()

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	go s.writeLoop(ctx)

	initTimer := time.AfterFunc(s.handler.initTimeout, func() {
		s.close(closeInitTimeout, "connection initialisation timeout")
	})
	defer initTimer.Stop()

	for {
		var msg wsMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case msgConnectionInit:
			if !s.markInitialized() {
				s.close(closeTooManyInits, "too many initialisation requests")
				return
			}
			initTimer.Stop()
			s.send(wsMessage{Type: msgConnectionAck})

		case msgPing:
			s.send(wsMessage{Type: msgPong})

		case msgPong:
			// Unsolicited pongs are allowed and ignored.

		case msgSubscribe:
			if !s.isInitialized() {
				s.close(closeUnauthorized, "unauthorized")
				return
			}
			if msg.ID == "" {
				s.close(closeBadRequest, "subscribe requires an id")
				return
			}
			if err := s.subscribe(ctx, msg); err != nil {
				s.sendError(msg.ID, err)
			}

		case msgComplete:
			s.cancelOperation(msg.ID)

		default:
			s.close(closeBadRequest, fmt.Sprintf("unexpected message type %q", msg.Type))
			return
		}
	}
}

func (s *wsSession) subscribe(ctx context.Context, msg wsMessage) error {
	var payload subscribePayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("malformed subscribe payload: %w", err)
	}

	analysis := gqlrequest.AnalyzeEnvelope(gqlrequest.Envelope{
		Query:         payload.Query,
		OperationName: payload.OperationName,
		Variables:     payload.Variables,
	})
	if err := analysis.Validate(s.handler.limits); err != nil {
		return err
	}

	if err := s.ensureSchema(ctx); err != nil {
		return err
	}

	opCtx, cancel := context.WithCancel(ctx)

	// A new operation reusing a live id supersedes it; the predecessor is
	// canceled rather than the whole connection torn down.
	s.mu.Lock()
	if prior, ok := s.ops[msg.ID]; ok {
		prior()
	}
	s.ops[msg.ID] = cancel
	s.mu.Unlock()

	results := graphql.Subscribe(graphql.Params{
		Schema:         s.schema,
		RequestString:  payload.Query,
		OperationName:  payload.OperationName,
		VariableValues: payload.Variables,
		Context:        opCtx,
	})

	go s.pump(opCtx, msg.ID, results)
	return nil
}

// pump forwards one operation's results until the source completes or the
// operation is canceled. Demand is one message at a time: the next result is
// not read until the previous one is queued for writing.
func (s *wsSession) pump(ctx context.Context, id string, results chan *graphql.Result) {
	defer s.cancelOperation(id)

	for {
		select {
		case result, ok := <-results:
			if !ok {
				s.send(wsMessage{ID: id, Type: msgComplete})
				return
			}
			payload, err := json.Marshal(result)
			if err != nil {
				s.sendError(id, fmt.Errorf("failed to encode result: %w", err))
				return
			}
			s.send(wsMessage{ID: id, Type: msgNext, Payload: payload})
		case <-ctx.Done():
			return
		}
	}
}

func (s *wsSession) ensureSchema(ctx context.Context) error {
	if s.schema.QueryType() != nil {
		return nil
	}
	schema, err := s.handler.resolveSchema(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve schema: %w", err)
	}
	s.schema = schema
	return nil
}

func (s *wsSession) markInitialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return false
	}
	s.initialized = true
	return true
}

func (s *wsSession) isInitialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

func (s *wsSession) cancelOperation(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.ops[id]; ok {
		cancel()
		delete(s.ops, id)
	}
}

func (s *wsSession) send(msg wsMessage) {
	select {
	case s.writes <- msg:
	case <-s.ctx.Done():
	}
}

func (s *wsSession) sendError(id string, err error) {
	payload, marshalErr := json.Marshal([]errorPayload{{Message: err.Error()}})
	if marshalErr != nil {
		return
	}
	s.send(wsMessage{ID: id, Type: msgError, Payload: payload})
}

// writeLoop is the single writer for the connection.
func (s *wsSession) writeLoop(ctx context.Context) {
	for {
		select {
		case msg := <-s.writes:
			if err := s.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *wsSession) close(code int, reason string) {
	deadline := time.Now().Add(time.Second)
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), deadline)
	_ = s.conn.Close()
}

func (s *wsSession) teardown() {
	s.mu.Lock()
	for id, cancel := range s.ops {
		cancel()
		delete(s.ops, id)
	}
	s.mu.Unlock()
	_ = s.conn.Close()
}
