package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"queue-system/internal/status"
	"queue-system/models"
)

// memTokenStore mirrors the Redis store's conditional-transition contract
// in memory so engine tests can exercise real races without a server.
type memTokenStore struct {
	mu     sync.Mutex
	tokens map[string]*models.Token
	seq    int64
}

func newMemTokenStore() *memTokenStore {
	return &memTokenStore{tokens: map[string]*models.Token{}}
}

func (s *memTokenStore) CreateToken(_ context.Context, token *models.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *token
	s.tokens[token.ID] = &copied
	return nil
}

func (s *memTokenStore) GetToken(_ context.Context, id string) (*models.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.tokens[id]
	if !ok {
		return nil, fmt.Errorf("%w: token %s", status.ErrNotFound, id)
	}
	copied := *token
	return &copied, nil
}

func (s *memTokenStore) ListWaiting(_ context.Context, serviceID string) ([]models.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	waiting := []models.Token{}
	for _, token := range s.tokens {
		if token.ServiceID == serviceID && token.Status == models.TokenWaiting {
			waiting = append(waiting, *token)
		}
	}
	return waiting, nil
}

func (s *memTokenStore) Transition(_ context.Context, id string, expected, next models.TokenStatus, fields map[string]any) (*models.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.tokens[id]
	if !ok {
		return nil, fmt.Errorf("%w: token %s", status.ErrNotFound, id)
	}
	if token.Status != expected {
		return nil, fmt.Errorf("%w: token %s is %s, expected %s", status.ErrConflict, id, token.Status, expected)
	}

	token.Status = next
	for field, value := range fields {
		switch field {
		case "counter_id":
			token.CounterID, _ = value.(string)
		case "called_at":
			if ts, err := time.Parse(time.RFC3339Nano, value.(string)); err == nil {
				token.CalledAt = &ts
			}
		case "completed_at":
			if ts, err := time.Parse(time.RFC3339Nano, value.(string)); err == nil {
				token.CompletedAt = &ts
			}
		}
	}

	copied := *token
	return &copied, nil
}

func (s *memTokenStore) NextTokenNumber(_ context.Context, _, serviceCode string, _ time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return fmt.Sprintf("%s-%03d", serviceCode, s.seq), nil
}

func (s *memTokenStore) IncrementReschedules(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.tokens[id]
	if !ok {
		return fmt.Errorf("%w: token %s", status.ErrNotFound, id)
	}
	token.RescheduleCount++
	return nil
}

// memRescheduleStore enforces the one-open-offer-per-token guard and the
// conditional resolve, like its Redis counterpart.
type memRescheduleStore struct {
	mu       sync.Mutex
	requests map[string]*models.RescheduleRequest
	open     map[string]string // tokenID -> open requestID
}

func newMemRescheduleStore() *memRescheduleStore {
	return &memRescheduleStore{
		requests: map[string]*models.RescheduleRequest{},
		open:     map[string]string{},
	}
}

func (s *memRescheduleStore) CreateRequest(_ context.Context, req *models.RescheduleRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.open[req.TokenID]; exists {
		return fmt.Errorf("%w: token %s", status.ErrDuplicateOffer, req.TokenID)
	}
	copied := *req
	s.requests[req.ID] = &copied
	s.open[req.TokenID] = req.ID
	return nil
}

func (s *memRescheduleStore) GetRequest(_ context.Context, id string) (*models.RescheduleRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return nil, fmt.Errorf("%w: reschedule request %s", status.ErrNotFound, id)
	}
	copied := *req
	return &copied, nil
}

func (s *memRescheduleStore) ListPending(_ context.Context) ([]models.RescheduleRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending := []models.RescheduleRequest{}
	for _, req := range s.requests {
		if req.Status == models.ReschedulePending {
			pending = append(pending, *req)
		}
	}
	return pending, nil
}

func (s *memRescheduleStore) ResolveRequest(_ context.Context, id string, next models.RescheduleStatus, fields map[string]any) (*models.RescheduleRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[id]
	if !ok {
		return nil, fmt.Errorf("%w: reschedule request %s", status.ErrNotFound, id)
	}
	if req.Status != models.ReschedulePending {
		return nil, fmt.Errorf("%w: request %s already %s", status.ErrConflict, id, req.Status)
	}

	req.Status = next
	if value, ok := fields["resolved_at"]; ok {
		if ts, err := time.Parse(time.RFC3339Nano, value.(string)); err == nil {
			req.ResolvedAt = &ts
		}
	}
	delete(s.open, req.TokenID)

	copied := *req
	return &copied, nil
}

func (s *memRescheduleStore) SetNewToken(_ context.Context, id, tokenID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return fmt.Errorf("%w: reschedule request %s", status.ErrNotFound, id)
	}
	req.NewTokenID = tokenID
	return nil
}

// memDirectory serves fixed service/counter definitions.
type memDirectory struct {
	services map[string]models.Service
	counters map[string]models.Counter
}

func (d *memDirectory) GetService(_ context.Context, id string) (*models.Service, error) {
	service, ok := d.services[id]
	if !ok {
		return nil, fmt.Errorf("%w: service %s", status.ErrNotFound, id)
	}
	return &service, nil
}

func (d *memDirectory) GetCounter(_ context.Context, id string) (*models.Counter, error) {
	counter, ok := d.counters[id]
	if !ok {
		return nil, fmt.Errorf("%w: counter %s", status.ErrNotFound, id)
	}
	return &counter, nil
}

func (d *memDirectory) ListServices(_ context.Context) ([]models.Service, error) {
	list := []models.Service{}
	for _, service := range d.services {
		list = append(list, service)
	}
	return list, nil
}

// captureNotifier records emitted events for at-least-once assertions.
type captureNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *captureNotifier) record(kind, id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, kind+":"+id)
}

func (n *captureNotifier) has(event string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, e := range n.events {
		if e == event {
			return true
		}
	}
	return false
}

func (n *captureNotifier) TokenCreated(t *models.Token)   { n.record("created", t.ID) }
func (n *captureNotifier) TokenCalled(t *models.Token)    { n.record("called", t.ID) }
func (n *captureNotifier) TokenCompleted(t *models.Token) { n.record("completed", t.ID) }
func (n *captureNotifier) TokenNoShow(t *models.Token)    { n.record("no_show", t.ID) }
func (n *captureNotifier) TokenCancelled(t *models.Token) { n.record("cancelled", t.ID) }
func (n *captureNotifier) RescheduleOpened(r *models.RescheduleRequest) {
	n.record("reschedule_opened", r.ID)
}
func (n *captureNotifier) RescheduleResolved(r *models.RescheduleRequest) {
	n.record("reschedule_"+string(r.Status), r.ID)
}
func (n *captureNotifier) CitizenPosition(citizenID, _ string, position int) {
	n.record("position", fmt.Sprintf("%s:%d", citizenID, position))
}
