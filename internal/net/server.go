// Package net implements the TCP order-entry gateway in front of
// internal/lifecycle.Manager: a fixed wire protocol for placing,
// cancelling and amending orders, and a fan-out of execution/error
// reports back to the originating client. Structure and concurrency
// model (per-connection worker pool, a single session handler draining
// a shared inbound channel, tomb-scoped goroutine lifetimes) are kept
// from the teacher's own prototype server; the Engine seam and message
// shapes are replaced with internal/lifecycle's fixed-point domain.
package net

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"fenrir/internal/bus"
	"fenrir/internal/fxpt"
	"fenrir/internal/lifecycle"
	"fenrir/internal/model"
)

const (
	maxRecvSize        = 4 * 1024
	defaultNWorkers    = 10
	defaultConnTimeout = 30 * time.Second
)

var (
	ErrImproperConversion = errors.New("improper type conversion")
	ErrClientDoesNotExist = errors.New("client does not exist")
)

// ClientSession tracks one connected TCP session and the account it
// authenticated as, so fills can be routed back by account.
type ClientSession struct {
	conn    net.Conn
	account string
}

// ClientMessage links a parsed message to the connection it arrived on.
type ClientMessage struct {
	clientAddress string
	message       Message
}

// Engine is the order-handling seam the gateway depends on, satisfied
// by *lifecycle.Manager. Kept as an interface, as the teacher did, so
// the gateway can be driven by a fake in tests.
type Engine interface {
	PlaceOrder(ctx context.Context, req lifecycle.PlaceOrderRequest, now fxpt.Ts) (*model.Order, error)
	CancelOrder(ctx context.Context, orderID string, now fxpt.Ts) error
	AmendOrder(ctx context.Context, orderID string, newPrice *fxpt.Px, newQty *fxpt.Qty, now fxpt.Ts) (*model.Order, error)
}

type Server struct {
	address string
	port    int
	engine  Engine
	fills   *bus.Topic[model.Fill]
	pool    WorkerPool
	cancel  context.CancelFunc

	clientSessionsLock sync.Mutex
	clientSessions     map[string]ClientSession
	orderOwners        map[string]string // orderID -> clientAddress

	clientMessages chan ClientMessage
}

// New constructs a gateway Server. fills may be nil, in which case no
// execution reports are pushed to clients as fills occur. Requests that
// fail (a rejected placement, a failed cancel or amend) are answered with
// an error report either way; a successful request gets no
// acknowledgement of its own.
func New(address string, port int, engine Engine, fills *bus.Topic[model.Fill]) *Server {
	return &Server{
		address:        address,
		port:           port,
		engine:         engine,
		fills:          fills,
		pool:           NewWorkerPool(defaultNWorkers),
		clientSessions: make(map[string]ClientSession),
		orderOwners:    make(map[string]string),
		clientMessages: make(chan ClientMessage, 1),
	}
}

func (s *Server) Shutdown() {
	log.Info().Msg("gateway shutting down")
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Server) Run(ctx context.Context) {
	defer s.Shutdown()

	ctx, s.cancel = context.WithCancel(ctx)
	t, ctx := tomb.WithContext(ctx)

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf("%s:%d", s.address, s.port))
	if err != nil {
		log.Error().Err(err).Msg("unable to start listener")
		return
	}
	defer func() {
		if err := listener.Close(); err != nil {
			log.Error().Err(err).Msg("unable to close listener")
		}
	}()

	t.Go(func() error {
		s.pool.Setup(t, s.handleConnection)
		return nil
	})

	t.Go(func() error {
		return s.sessionHandler(t)
	})

	if s.fills != nil {
		t.Go(func() error {
			return s.fillReporter(t)
		})
	}

	log.Info().Str("address", listener.Addr().String()).Msg("gateway listening")

	for {
		select {
		case <-ctx.Done():
			return
		default:
			conn, err := listener.Accept()
			if err != nil {
				select {
				case <-ctx.Done():
					return
				default:
				}
				log.Error().Err(err).Msg("error accepting client")
				continue
			}

			log.Info().Str("address", conn.RemoteAddr().String()).Msg("client connected")
			s.addClientSession(conn)
			s.pool.Submit(conn)
		}
	}
}

// fillReporter drains the shared fills topic and forwards each fill to
// the client owning the resting or taking order, per spec.md §6's
// order-egress "fills streamed back to the originating session".
func (s *Server) fillReporter(t *tomb.Tomb) error {
	sub := s.fills.Subscribe()
	defer sub.Unsubscribe()
	for {
		select {
		case <-t.Dying():
			return nil
		case env, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if env.Lag != nil {
				log.Warn().Uint64("missed", env.Lag.Missed).Msg("gateway fill subscriber lagging")
				continue
			}
			s.sendFill(env.Value)
		}
	}
}

func (s *Server) sendFill(f model.Fill) {
	s.clientSessionsLock.Lock()
	address, ok := s.orderOwners[f.OrderID]
	var session ClientSession
	if ok {
		session, ok = s.clientSessions[address]
	}
	s.clientSessionsLock.Unlock()
	if !ok {
		return
	}

	report := executionReport(f)
	buf, err := report.Serialize()
	if err != nil {
		log.Error().Err(err).Str("orderID", f.OrderID).Msg("unable to serialize fill report")
		return
	}
	if _, err := session.conn.Write(buf); err != nil {
		log.Error().Err(err).Str("address", address).Msg("unable to send fill report")
		s.deleteClientSession(address)
	}
}

func (s *Server) ReportError(clientAddress string, orderID string, now fxpt.Ts, cause error) error {
	s.clientSessionsLock.Lock()
	session, ok := s.clientSessions[clientAddress]
	s.clientSessionsLock.Unlock()
	if !ok {
		return ErrClientDoesNotExist
	}

	report := errorReport(orderID, now, cause)
	buf, err := report.Serialize()
	if err != nil {
		return err
	}
	if _, err := session.conn.Write(buf); err != nil {
		s.deleteClientSession(clientAddress)
		return fmt.Errorf("unable to send report: %w", err)
	}
	return nil
}

// sessionHandler drains parsed messages and dispatches them into the
// engine, reporting any error back to the originating connection.
func (s *Server) sessionHandler(t *tomb.Tomb) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case message := <-s.clientMessages:
			if err := s.handleMessage(message); err != nil {
				log.Error().Err(err).Str("clientAddress", message.clientAddress).Msg("error handling message")
			}
		}
	}
}

func (s *Server) handleMessage(cm ClientMessage) error {
	now := fxpt.Ts(time.Now().UnixNano())
	ctx := context.Background()

	switch cm.message.GetType() {
	case NewOrder:
		msg, ok := cm.message.(NewOrderMessage)
		if !ok {
			return ErrInvalidMessageType
		}

		s.clientSessionsLock.Lock()
		account := s.clientSessions[cm.clientAddress].account
		if account == "" {
			account = msg.Username
		}
		s.clientSessionsLock.Unlock()

		order, err := s.engine.PlaceOrder(ctx, lifecycle.PlaceOrderRequest{
			Account:       account,
			ClientOrderID: msg.ClientOrderID,
			Symbol:        msg.Symbol,
			Side:          msg.Side,
			Type:          msg.OrderType,
			TIF:           msg.TIF,
			LimitPrice:    msg.LimitPrice,
			Quantity:      msg.Quantity,
		}, now)
		if err != nil {
			return s.ReportError(cm.clientAddress, "", now, err)
		}

		s.clientSessionsLock.Lock()
		s.orderOwners[order.ID] = cm.clientAddress
		s.clientSessionsLock.Unlock()
		return nil

	case CancelOrder:
		msg, ok := cm.message.(CancelOrderMessage)
		if !ok {
			return ErrInvalidMessageType
		}
		if err := s.engine.CancelOrder(ctx, msg.OrderID, now); err != nil {
			return s.ReportError(cm.clientAddress, msg.OrderID, now, err)
		}
		return nil

	case AmendOrder:
		msg, ok := cm.message.(AmendOrderMessage)
		if !ok {
			return ErrInvalidMessageType
		}
		var newPrice *fxpt.Px
		if msg.HasPrice {
			newPrice = &msg.NewPrice
		}
		var newQty *fxpt.Qty
		if msg.HasQty {
			newQty = &msg.NewQty
		}
		if _, err := s.engine.AmendOrder(ctx, msg.OrderID, newPrice, newQty, now); err != nil {
			return s.ReportError(cm.clientAddress, msg.OrderID, now, err)
		}
		return nil

	default:
		log.Error().Int("messageType", int(cm.message.GetType())).Msg("invalid message type")
		return ErrInvalidMessageType
	}
}

// handleConnection reads the next message off a connection and forwards
// it to sessionHandler, then resubmits the connection for its next
// message. A returned error is logged by the pool worker, which then
// takes its next task; per-connection failures are logged (or the
// connection closed) here and never returned.
func (s *Server) handleConnection(t *tomb.Tomb, task any) error {
	conn, ok := task.(net.Conn)
	if !ok {
		return ErrImproperConversion
	}

	if err := conn.SetDeadline(time.Now().Add(defaultConnTimeout)); err != nil {
		log.Error().Err(err).Str("address", conn.RemoteAddr().String()).Msg("failed setting deadline")
		s.closeConnection(conn)
		return nil
	}

	buffer := make([]byte, maxRecvSize)
	select {
	case <-t.Dying():
		return nil
	default:
		n, err := conn.Read(buffer)
		if err != nil {
			s.closeConnection(conn)
			return nil
		}

		message, err := parseMessage(buffer[:n])
		if err != nil {
			log.Error().Err(err).Str("address", conn.RemoteAddr().String()).Msg("error parsing message")
			s.pool.Submit(conn)
			return nil
		}

		select {
		case s.clientMessages <- ClientMessage{message: message, clientAddress: conn.RemoteAddr().String()}:
		case <-t.Dying():
			return nil
		}

		s.pool.Submit(conn)
	}
	return nil
}

func (s *Server) closeConnection(conn net.Conn) {
	address := conn.RemoteAddr().String()
	if err := conn.Close(); err != nil {
		log.Error().Str("address", address).Err(err).Msg("error closing connection")
	}
	s.deleteClientSession(address)
}

func (s *Server) addClientSession(conn net.Conn) {
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()
	s.clientSessions[conn.RemoteAddr().String()] = ClientSession{conn: conn}
}

func (s *Server) deleteClientSession(address string) {
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()
	delete(s.clientSessions, address)
}
