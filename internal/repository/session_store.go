package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"convo-search/internal/domain"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrStoreCorruption = errors.New("session store corruption")
	ErrIDExhausted     = errors.New("could not allocate session id")
	ErrReservationUsed = errors.New("reservation already used")
)

const (
	defaultSessionTTL = 30 * time.Minute
	maxIDAttempts     = 8
)

// SessionStore guarda las sesiones de conversación vivas.
type SessionStore interface {
	Create(ctx context.Context, first domain.Turn) (domain.Session, error)
	Get(ctx context.Context, id string) (domain.Session, error)
	Append(ctx context.Context, id string, turn domain.Turn) (domain.Session, error)
	// Reserve devuelve una copia de la sesión y un turno de escritura.
	// Los turnos se confirman en el orden en que se reservaron.
	Reserve(ctx context.Context, id string) (domain.Session, Reservation, error)
	EvictExpired(ctx context.Context) int
	Len() int
}

// Reservation es un lugar en la cola de escritura de una sesión.
type Reservation interface {
	// Commit espera a las reservas previas y agrega el turno.
	Commit(ctx context.Context, turn domain.Turn) (domain.Session, error)
	// Release abandona la reserva sin bloquear a las siguientes.
	Release()
}

// StoreOption configura un MemorySessionStore.
type StoreOption func(*MemorySessionStore)

// WithTTL fija la duración de la expiración deslizante.
func WithTTL(ttl time.Duration) StoreOption {
	return func(s *MemorySessionStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithMaxSessions limita la cantidad de sesiones vivas; 0 significa sin límite.
func WithMaxSessions(max int) StoreOption {
	return func(s *MemorySessionStore) {
		if max >= 0 {
			s.max = max
		}
	}
}

// WithClock reemplaza el reloj, útil en tests.
func WithClock(now func() time.Time) StoreOption {
	return func(s *MemorySessionStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator reemplaza la generación de ids.
func WithIDGenerator(newID func() string) StoreOption {
	return func(s *MemorySessionStore) {
		if newID != nil {
			s.newID = newID
		}
	}
}

type sessionEntry struct {
	mu             sync.Mutex
	id             string
	history        []domain.Turn
	createdAt      time.Time
	lastAccessedAt time.Time
	expiresAt      time.Time
	evicted        bool
	// tail se cierra cuando la última reserva confirmó o se liberó.
	tail chan struct{}
}

func (e *sessionEntry) checkLocked(now time.Time) error {
	if e.evicted {
		return ErrSessionNotFound
	}
	if now.After(e.expiresAt) {
		e.evicted = true
		return ErrSessionNotFound
	}
	if len(e.history) == 0 {
		return ErrStoreCorruption
	}
	return nil
}

func (e *sessionEntry) snapshotLocked() domain.Session {
	history := make([]domain.Turn, len(e.history))
	for i, t := range e.history {
		history[i] = t.Clone()
	}
	return domain.Session{
		ID:             e.id,
		History:        history,
		CreatedAt:      e.createdAt,
		LastAccessedAt: e.lastAccessedAt,
		ExpiresAt:      e.expiresAt,
	}
}

// MemorySessionStore es un SessionStore en memoria con expiración deslizante.
// El mapa se protege con un RWMutex y cada sesión con su propio mutex, de modo
// que las escrituras sobre sesiones distintas no compiten entre sí.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*sessionEntry
	ttl      time.Duration
	max      int
	now      func() time.Time
	newID    func() string
}

func NewMemorySessionStore(opts ...StoreOption) *MemorySessionStore {
	s := &MemorySessionStore{
		sessions: make(map[string]*sessionEntry),
		ttl:      defaultSessionTTL,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemorySessionStore) Create(_ context.Context, first domain.Turn) (domain.Session, error) {
	now := s.now()
	entry := &sessionEntry{
		history:        []domain.Turn{first.Clone()},
		createdAt:      now,
		lastAccessedAt: now,
		expiresAt:      now.Add(s.ttl),
		tail:           closedChan(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.allocateIDLocked(now)
	if err != nil {
		return domain.Session{}, err
	}
	if s.max > 0 && len(s.sessions) >= s.max {
		s.makeRoomLocked(now)
	}
	entry.id = id
	s.sessions[id] = entry
	return entry.snapshotLocked(), nil
}

func (s *MemorySessionStore) Get(_ context.Context, id string) (domain.Session, error) {
	entry := s.lookup(id)
	if entry == nil {
		return domain.Session{}, ErrSessionNotFound
	}

	entry.mu.Lock()
	if err := entry.checkLocked(s.now()); err != nil {
		entry.mu.Unlock()
		s.dropIfEvicted(entry, err)
		return domain.Session{}, err
	}
	snap := entry.snapshotLocked()
	entry.mu.Unlock()
	return snap, nil
}

func (s *MemorySessionStore) Append(ctx context.Context, id string, turn domain.Turn) (domain.Session, error) {
	_, res, err := s.Reserve(ctx, id)
	if err != nil {
		return domain.Session{}, err
	}
	return res.Commit(ctx, turn)
}

func (s *MemorySessionStore) Reserve(_ context.Context, id string) (domain.Session, Reservation, error) {
	entry := s.lookup(id)
	if entry == nil {
		return domain.Session{}, nil, ErrSessionNotFound
	}

	entry.mu.Lock()
	if err := entry.checkLocked(s.now()); err != nil {
		entry.mu.Unlock()
		s.dropIfEvicted(entry, err)
		return domain.Session{}, nil, err
	}
	snap := entry.snapshotLocked()
	prev := entry.tail
	done := make(chan struct{})
	entry.tail = done
	entry.mu.Unlock()

	return snap, &reservation{store: s, entry: entry, prev: prev, done: done}, nil
}

// EvictExpired elimina las sesiones vencidas sin bloquear el mapa completo
// mientras revisa cada sesión.
func (s *MemorySessionStore) EvictExpired(ctx context.Context) int {
	now := s.now()

	s.mu.RLock()
	entries := make([]*sessionEntry, 0, len(s.sessions))
	for _, e := range s.sessions {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	removed := 0
	for _, e := range entries {
		if ctx.Err() != nil {
			break
		}
		e.mu.Lock()
		expired := !e.evicted && now.After(e.expiresAt)
		if expired {
			e.evicted = true
		}
		e.mu.Unlock()
		if expired && s.remove(e) {
			removed++
		}
	}
	return removed
}

// Len devuelve la cantidad de entradas presentes, vencidas o no.
func (s *MemorySessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *MemorySessionStore) lookup(id string) *sessionEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[id]
}

func (s *MemorySessionStore) remove(e *sessionEntry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.sessions[e.id]; ok && cur == e {
		delete(s.sessions, e.id)
		return true
	}
	return false
}

func (s *MemorySessionStore) dropIfEvicted(e *sessionEntry, err error) {
	if errors.Is(err, ErrSessionNotFound) {
		s.remove(e)
	}
}

// allocateIDLocked solo reutiliza un id si su dueño anterior ya venció.
func (s *MemorySessionStore) allocateIDLocked(now time.Time) (string, error) {
	for i := 0; i < maxIDAttempts; i++ {
		id := s.newID()
		if id == "" {
			continue
		}
		existing, ok := s.sessions[id]
		if !ok {
			return id, nil
		}
		existing.mu.Lock()
		stale := existing.evicted || now.After(existing.expiresAt)
		existing.evicted = existing.evicted || stale
		existing.mu.Unlock()
		if stale {
			delete(s.sessions, id)
			return id, nil
		}
	}
	return "", ErrIDExhausted
}

// makeRoomLocked descarta las vencidas y, si sigue lleno, la de acceso más antiguo.
func (s *MemorySessionStore) makeRoomLocked(now time.Time) {
	var (
		oldest       *sessionEntry
		oldestAccess time.Time
	)
	for id, e := range s.sessions {
		e.mu.Lock()
		if e.evicted || now.After(e.expiresAt) {
			e.evicted = true
			e.mu.Unlock()
			delete(s.sessions, id)
			continue
		}
		if oldest == nil || e.lastAccessedAt.Before(oldestAccess) {
			oldest = e
			oldestAccess = e.lastAccessedAt
		}
		e.mu.Unlock()
	}
	if len(s.sessions) < s.max || oldest == nil {
		return
	}
	oldest.mu.Lock()
	oldest.evicted = true
	oldest.mu.Unlock()
	delete(s.sessions, oldest.id)
}

type reservation struct {
	store *MemorySessionStore
	entry *sessionEntry
	prev  <-chan struct{}
	done  chan struct{}
	once  sync.Once
	used  bool
}

func (r *reservation) Commit(ctx context.Context, turn domain.Turn) (domain.Session, error) {
	if r.used {
		return domain.Session{}, ErrReservationUsed
	}
	r.used = true

	select {
	case <-r.prev:
	case <-ctx.Done():
		r.Release()
		return domain.Session{}, ctx.Err()
	}
	defer r.Release()

	e := r.entry
	e.mu.Lock()
	now := r.store.now()
	if err := e.checkLocked(now); err != nil {
		e.mu.Unlock()
		r.store.dropIfEvicted(e, err)
		return domain.Session{}, err
	}
	e.history = append(e.history, turn.Clone())
	e.lastAccessedAt = now
	e.expiresAt = now.Add(r.store.ttl)
	snap := e.snapshotLocked()
	e.mu.Unlock()
	return snap, nil
}

func (r *reservation) Release() {
	r.used = true
	r.once.Do(func() {
		select {
		case <-r.prev:
			close(r.done)
		default:
			go func() {
				<-r.prev
				close(r.done)
			}()
		}
	})
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
