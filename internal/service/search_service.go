package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"convo-search/internal/domain"
	"convo-search/internal/llm"
	"convo-search/internal/repository"
)

const defaultProviderTimeout = 45 * time.Second

var (
	ErrSearchServiceNotConfigured = errors.New("search service not configured")
	ErrInvalidQuery               = errors.New("invalid query")
	// ErrSessionExpired no es una falla terminal: el llamador debe repetir la
	// consulta como búsqueda nueva.
	ErrSessionExpired  = errors.New("session expired")
	ErrStoreCorruption = errors.New("session store corruption")
)

// SearchService es el motor de sesiones de búsqueda conversacional.
type SearchService struct {
	logger   *zap.Logger
	store    repository.SessionStore
	provider llm.SearchProvider
	timeout  time.Duration
	now      func() time.Time
}

func NewSearchService(logger *zap.Logger, store repository.SessionStore, provider llm.SearchProvider, timeout time.Duration) *SearchService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = defaultProviderTimeout
	}
	return &SearchService{
		logger:   logger,
		store:    store,
		provider: provider,
		timeout:  timeout,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// StartSearch siempre crea una sesión nueva. La sesión solo se registra si el
// proveedor respondió, así que una falla no deja sesiones vacías.
func (s *SearchService) StartSearch(ctx context.Context, apiKey, query string) (SearchResponse, error) {
	if s == nil || s.store == nil || s.provider == nil {
		return SearchResponse{}, ErrSearchServiceNotConfigured
	}
	cred, q, err := validateRequest(apiKey, query)
	if err != nil {
		return SearchResponse{}, err
	}

	turn, err := s.search(ctx, cred, q, nil)
	if err != nil {
		return SearchResponse{}, err
	}

	sess, err := s.store.Create(ctx, turn)
	if err != nil {
		return SearchResponse{}, s.storeError("create session", "", err)
	}

	s.logger.Info("session created",
		zap.String("session_id", sess.ID),
		zap.String("credential", cred.Fingerprint()),
	)
	return s.respond("create session", sess)
}

// ContinueSearch agrega un turno a una sesión viva. Si la sesión no existe o
// venció devuelve ErrSessionExpired.
func (s *SearchService) ContinueSearch(ctx context.Context, apiKey, sessionID, query string) (SearchResponse, error) {
	if s == nil || s.store == nil || s.provider == nil {
		return SearchResponse{}, ErrSearchServiceNotConfigured
	}
	cred, q, err := validateRequest(apiKey, query)
	if err != nil {
		return SearchResponse{}, err
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return SearchResponse{}, ErrSessionExpired
	}

	snap, res, err := s.store.Reserve(ctx, sessionID)
	if err != nil {
		return SearchResponse{}, s.storeError("reserve follow-up", sessionID, err)
	}
	// Release es idempotente; cubre errores y panics del proveedor.
	defer res.Release()

	// El proveedor se llama sin locks del store; la reserva conserva el lugar
	// del turno en el orden de llegada.
	turn, err := s.search(ctx, cred, q, snap.History)
	if err != nil {
		return SearchResponse{}, err
	}

	sess, err := res.Commit(ctx, turn)
	if err != nil {
		return SearchResponse{}, s.storeError("append follow-up", sessionID, err)
	}

	s.logger.Debug("session continued",
		zap.String("session_id", sess.ID),
		zap.Int("turns", len(sess.History)),
		zap.String("credential", cred.Fingerprint()),
	)
	return s.respond("append follow-up", sess)
}

// Converse es la máquina de estados completa: sin sesión inicia una búsqueda,
// con sesión la continúa, y si la sesión venció reinicia con la misma consulta.
func (s *SearchService) Converse(ctx context.Context, apiKey, sessionID, query string) (SearchResponse, error) {
	if strings.TrimSpace(sessionID) == "" {
		return s.StartSearch(ctx, apiKey, query)
	}

	resp, err := s.ContinueSearch(ctx, apiKey, sessionID, query)
	if !errors.Is(err, ErrSessionExpired) {
		return resp, err
	}

	s.logger.Info("session expired, restarting", zap.String("session_id", sessionID))
	resp, err = s.StartSearch(ctx, apiKey, query)
	if err != nil {
		return SearchResponse{}, err
	}
	resp.Restarted = true
	return resp, nil
}

// Transcript devuelve la sesión sin extender su vida.
func (s *SearchService) Transcript(ctx context.Context, apiKey, sessionID string) (domain.Session, error) {
	if s == nil || s.store == nil {
		return domain.Session{}, ErrSearchServiceNotConfigured
	}
	if _, err := ValidateCredential(apiKey); err != nil {
		return domain.Session{}, err
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.Session{}, ErrSessionExpired
	}

	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return domain.Session{}, s.storeError("get session", sessionID, err)
	}
	return sess, nil
}

// LiveSessions devuelve cuántas sesiones ocupan memoria.
func (s *SearchService) LiveSessions() int {
	if s == nil || s.store == nil {
		return 0
	}
	return s.store.Len()
}

func (s *SearchService) search(ctx context.Context, cred Credential, query string, history []domain.Turn) (domain.Turn, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.provider.Search(callCtx, cred.Key(), query, history)
	if err != nil {
		pe, ok := llm.AsProviderError(err)
		if !ok {
			pe = &llm.ProviderError{Kind: llm.KindUpstream, Message: "provider request failed", Err: err}
			if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
				pe.Kind, pe.Message = llm.KindTimeout, "provider timed out"
			}
		}
		s.logger.Warn("provider search failed",
			zap.String("kind", string(pe.Kind)),
			zap.String("credential", cred.Fingerprint()),
			zap.Int("history_turns", len(history)),
			zap.Error(err),
		)
		return domain.Turn{}, pe
	}

	summary := strings.TrimSpace(result.Summary)
	if summary == "" {
		return domain.Turn{}, &llm.ProviderError{Kind: llm.KindMalformed, Message: "provider returned no answer"}
	}
	sources := result.Sources
	if sources == nil {
		sources = []domain.Source{}
	}
	return domain.Turn{
		Query:     query,
		Summary:   summary,
		Sources:   sources,
		CreatedAt: s.now(),
	}, nil
}

// respond arma la respuesta con el último turno que quedó registrado.
func (s *SearchService) respond(op string, sess domain.Session) (SearchResponse, error) {
	latest, ok := sess.LatestTurn()
	if !ok {
		return SearchResponse{}, s.storeError(op, sess.ID, repository.ErrStoreCorruption)
	}
	return AssembleResponse(sess.ID, latest), nil
}

func (s *SearchService) storeError(op, sessionID string, err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.logger.Debug("request ended before the turn was stored",
			zap.String("op", op),
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return fmt.Errorf("%s: %w", op, err)
	case errors.Is(err, repository.ErrSessionNotFound):
		s.logger.Debug("session not found", zap.String("op", op), zap.String("session_id", sessionID))
		return ErrSessionExpired
	case errors.Is(err, repository.ErrStoreCorruption):
		s.logger.Error("session store invariant violated", zap.String("op", op), zap.String("session_id", sessionID))
		return fmt.Errorf("%s: %w", op, ErrStoreCorruption)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func validateRequest(apiKey, query string) (Credential, string, error) {
	cred, err := ValidateCredential(apiKey)
	if err != nil {
		return Credential{}, "", err
	}
	q := strings.TrimSpace(query)
	if q == "" {
		return Credential{}, "", ErrInvalidQuery
	}
	return cred, q, nil
}
