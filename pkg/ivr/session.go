package ivr

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arzzra/ivr_control/pkg/logging"
	"github.com/arzzra/ivr_control/pkg/mgcp/transaction"
	"github.com/arzzra/ivr_control/pkg/mgcp/transport"
)

// DefaultEndpointName wildcard имя IVR endpoint'а на шлюзе
const DefaultEndpointName = "mobicents/ivr/$"

// MediaSession группирует endpoint'ы одного вызова
type MediaSession struct {
	id        uuid.UUID
	createdAt time.Time
}

func (s *MediaSession) ID() uuid.UUID        { return s.id }
func (s *MediaSession) CreatedAt() time.Time { return s.createdAt }
func (s *MediaSession) String() string       { return s.id.String() }

// ControllerConfig параметры контроллера
type ControllerConfig struct {
	// EndpointName имя, под которым создаются IVR endpoint'ы
	EndpointName string
	// Allocator общий для всех endpoint'ов; по умолчанию SharedAllocator
	Allocator   transaction.Allocator
	MailboxSize int
	Logger      logging.Logger
	Metrics     *Metrics
}

type sessionEntry struct {
	session   *MediaSession
	endpoints map[*Endpoint]struct{}
}

// Controller создает медиа-сессии и IVR endpoint'ы поверх одного транспорта
type Controller struct {
	transport transport.Transport
	cfg       ControllerConfig
	logger    logging.Logger

	mu       sync.Mutex
	sessions map[uuid.UUID]*sessionEntry
	closed   bool
}

// NewController создает контроллер. Транспорт остается во владении вызывающего.
func NewController(t transport.Transport, cfg ControllerConfig) (*Controller, error) {
	if t == nil {
		return nil, errors.New("ivr: transport is required")
	}
	if cfg.EndpointName == "" {
		cfg.EndpointName = DefaultEndpointName
	}
	if cfg.Allocator == nil {
		cfg.Allocator = transaction.NewSharedAllocator(0)
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	return &Controller{
		transport: t,
		cfg:       cfg,
		logger:    cfg.Logger.WithComponent("ivr-controller"),
		sessions:  make(map[uuid.UUID]*sessionEntry),
	}, nil
}

// CreateMediaSession создает новую сессию
func (c *Controller) CreateMediaSession() (*MediaSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrControllerClosed
	}

	s := &MediaSession{id: uuid.New(), createdAt: time.Now()}
	c.sessions[s.id] = &sessionEntry{session: s, endpoints: make(map[*Endpoint]struct{})}
	c.logger.Debug(context.Background(), "media session created", logging.String("session", s.String()))
	return s, nil
}

// CreateIvrEndpoint создает IVR endpoint в сессии
func (c *Controller) CreateIvrEndpoint(session *MediaSession) (*Endpoint, error) {
	if session == nil {
		return nil, ErrUnknownSession
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrControllerClosed
	}
	entry, ok := c.sessions[session.id]
	if !ok {
		return nil, ErrUnknownSession
	}

	ep, err := NewEndpoint(EndpointConfig{
		Session:     session,
		Address:     c.cfg.EndpointName,
		Transport:   c.transport,
		Allocator:   c.cfg.Allocator,
		MailboxSize: c.cfg.MailboxSize,
		Logger:      c.cfg.Logger,
		Metrics:     c.cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	ep.onClose = c.forget
	entry.endpoints[ep] = struct{}{}
	return ep, nil
}

// DestroyEndpoint закрывает endpoint
func (c *Controller) DestroyEndpoint(ep *Endpoint) error {
	return ep.Close()
}

// DestroyMediaSession закрывает все endpoint'ы сессии и удаляет ее
func (c *Controller) DestroyMediaSession(session *MediaSession) error {
	if session == nil {
		return ErrUnknownSession
	}
	c.mu.Lock()
	entry, ok := c.sessions[session.id]
	if ok {
		delete(c.sessions, session.id)
	}
	c.mu.Unlock()
	if !ok {
		return ErrUnknownSession
	}

	closeAll(entry)
	c.logger.Debug(context.Background(), "media session destroyed", logging.String("session", session.String()))
	return nil
}

// Sessions количество живых сессий
func (c *Controller) Sessions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// Close уничтожает все сессии. Транспорт не закрывается.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	entries := c.sessions
	c.sessions = make(map[uuid.UUID]*sessionEntry)
	c.mu.Unlock()

	for _, entry := range entries {
		closeAll(entry)
	}
	return nil
}

func (c *Controller) forget(ep *Endpoint) {
	if ep.session == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.sessions[ep.session.id]; ok {
		delete(entry.endpoints, ep)
	}
}

// closeAll вызывается без блокировки контроллера: Close endpoint'а
// вызывает forget
func closeAll(entry *sessionEntry) {
	for ep := range entry.endpoints {
		_ = ep.Close()
	}
}
