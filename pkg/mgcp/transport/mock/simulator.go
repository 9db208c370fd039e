package mock

import (
	"context"
	"net"
	"sync"
	"sync/atomic"

	"github.com/arzzra/ivr_control/pkg/logging"
	"github.com/arzzra/ivr_control/pkg/mgcp/message"
)

// Simulator медиашлюз поверх UDP, отвечающий по сценарию Behavior.
// Используется в интеграционных тестах транспорта и командой simulate.
type Simulator struct {
	conn     *net.UDPConn
	behavior Behavior
	parser   *message.Parser
	logger   logging.Logger

	notifyID atomic.Uint32
	received atomic.Uint64
	closed   atomic.Bool
	wg       sync.WaitGroup
}

// NewSimulator открывает UDP сокет шлюза и начинает обслуживать команды
func NewSimulator(addr string, b Behavior, logger logging.Logger) (*Simulator, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	s := &Simulator{
		conn:     conn,
		behavior: b,
		parser:   message.NewParser(false),
		logger:   logger.WithComponent("mgw-simulator"),
	}
	s.notifyID.Store(5000)

	s.wg.Add(1)
	go s.serve()
	return s, nil
}

// Addr возвращает адрес шлюза
func (s *Simulator) Addr() net.Addr {
	return s.conn.LocalAddr()
}

// Received количество принятых команд
func (s *Simulator) Received() uint64 {
	return s.received.Load()
}

// Close останавливает шлюз
func (s *Simulator) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := s.conn.Close()
	s.wg.Wait()
	return err
}

func (s *Simulator) serve() {
	defer s.wg.Done()

	buf := make([]byte, message.MaxMessageSize)
	for {
		n, from, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if s.closed.Load() {
				return
			}
			continue
		}

		msg, err := s.parser.ParseMessage(buf[:n])
		if err != nil {
			s.logger.Warn(context.Background(), "malformed command", logging.Err(err))
			continue
		}

		// Ответы call agent'а на наши NTFY
		req, ok := msg.(*message.Request)
		if !ok {
			continue
		}
		s.received.Add(1)
		s.handle(req, from)
	}
}

func (s *Simulator) handle(req *message.Request, from *net.UDPAddr) {
	reply := s.behavior(req)

	s.logger.Info(context.Background(), "command",
		logging.String("verb", req.Verb),
		logging.Uint32("transaction_id", req.ID),
		logging.String("endpoint", req.Endpoint),
		logging.String("signal", req.Params().Value(message.ParamSignalRequests)),
		logging.Int("code", reply.Code),
	)

	if reply.Provisional {
		s.send(message.NewResponse(message.CodeTransactionBeingExecuted, req.ID, ""), from)
	}

	resp := message.NewResponse(reply.Code, req.ID, "")
	endpoint := req.Endpoint
	if reply.SpecificEndpoint != "" {
		resp.Params().Set(message.ParamSpecificEndpointID, reply.SpecificEndpoint)
		endpoint = reply.SpecificEndpoint
	}
	s.send(resp, from)

	_, requestID := requestTransaction(req)
	for _, ev := range reply.Notifications {
		ntfy := message.NewNotify(s.notifyID.Add(1), endpoint, requestID, ev)
		s.send(ntfy, from)
	}
}

type wireMessage interface {
	Bytes() []byte
}

func (s *Simulator) send(msg wireMessage, to *net.UDPAddr) {
	if _, err := s.conn.WriteToUDP(msg.Bytes(), to); err != nil && !s.closed.Load() {
		s.logger.Warn(context.Background(), "send failed", logging.Err(err))
	}
}
