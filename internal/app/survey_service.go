package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"survey-service/internal/domain"
	"survey-service/internal/viz"
)

// SurveyStore is the persistence boundary for surveys and submissions
// (postgres in production, in-memory for tests and demo mode).
type SurveyStore interface {
	CreateSurvey(ctx context.Context, survey *domain.Survey) (int, error)
	GetSurvey(ctx context.Context, id int) (*domain.Survey, error)
	ListSurveys(ctx context.Context) ([]*domain.Survey, error)
	UpdateSurvey(ctx context.Context, survey *domain.Survey) error
	DeleteSurvey(ctx context.Context, id int) error

	ListSubmissions(ctx context.Context, surveyID int) ([]domain.Submission, error)
	AddSubmission(ctx context.Context, surveyID int, sub *domain.Submission) (int, error)
	HasSubmissionFromIP(ctx context.Context, surveyID int, ip string) (bool, error)
}

// SurveyCache fronts survey definition reads (Redis or in-memory TTL cache).
type SurveyCache interface {
	GetSurvey(ctx context.Context, id int) (*domain.Survey, error)
	Invalidate(ctx context.Context, id int) error
}

// ResultsUpdate is pushed to live results subscribers whenever a survey
// accepts a new submission.
type ResultsUpdate struct {
	SurveyID   int               `json:"surveyId"`
	Submission domain.Submission `json:"submission"`
	Total      int               `json:"total"`
}

// SurveyService contains the survey use cases.
type SurveyService struct {
	store SurveyStore
	cache SurveyCache

	mu       sync.Mutex
	sessions map[int]*liveSession

	// inflight guards against two concurrent submissions from the same
	// address racing past the stored-submission check.
	inflightMu sync.Mutex
	inflight   map[string]bool
}

func NewSurveyService(store SurveyStore, cache SurveyCache) *SurveyService {
	return &SurveyService{
		store:    store,
		cache:    cache,
		sessions: make(map[int]*liveSession),
		inflight: make(map[string]bool),
	}
}

// CreateSurvey persists a new definition and returns its assigned id.
func (s *SurveyService) CreateSurvey(ctx context.Context, survey *domain.Survey) (int, error) {
	if err := validateDefinition(survey); err != nil {
		return 0, err
	}
	return s.store.CreateSurvey(ctx, survey)
}

// GetSurvey loads a definition through the cache.
func (s *SurveyService) GetSurvey(ctx context.Context, id int) (*domain.Survey, error) {
	return s.cache.GetSurvey(ctx, id)
}

// ListSurveys returns all definitions (without fields) for the admin index.
func (s *SurveyService) ListSurveys(ctx context.Context) ([]*domain.Survey, error) {
	return s.store.ListSurveys(ctx)
}

// UpdateSurvey stores a definition update under optimistic lock and
// invalidates the cached copy.
func (s *SurveyService) UpdateSurvey(ctx context.Context, survey *domain.Survey) error {
	if err := validateDefinition(survey); err != nil {
		return err
	}
	if err := s.store.UpdateSurvey(ctx, survey); err != nil {
		return err
	}
	return s.cache.Invalidate(ctx, survey.ID)
}

// DeleteSurvey removes a survey with its submissions and closes any live
// results feed.
func (s *SurveyService) DeleteSurvey(ctx context.Context, id int) error {
	if err := s.store.DeleteSurvey(ctx, id); err != nil {
		return err
	}
	if err := s.cache.Invalidate(ctx, id); err != nil {
		return err
	}

	s.mu.Lock()
	session, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if ok {
		session.closeAll()
	}
	return nil
}

// Submissions returns all submissions recorded for a survey.
func (s *SurveyService) Submissions(ctx context.Context, surveyID int) ([]domain.Submission, error) {
	return s.store.ListSubmissions(ctx, surveyID)
}

// Submit validates a respondent's answers against the definition, enforces
// the one-submission-per-address rule, stores the submission and notifies
// live subscribers.
func (s *SurveyService) Submit(ctx context.Context, surveyID int, sub *domain.Submission, ip string) (int, error) {
	survey, err := s.cache.GetSurvey(ctx, surveyID)
	if err != nil {
		return 0, err
	}
	if err := validateSubmission(survey, sub); err != nil {
		return 0, err
	}

	key := fmt.Sprintf("%d:%s", surveyID, ip)
	s.inflightMu.Lock()
	if s.inflight[key] {
		s.inflightMu.Unlock()
		return 0, domain.ErrAlreadySubmitted
	}
	s.inflight[key] = true
	s.inflightMu.Unlock()
	defer func() {
		s.inflightMu.Lock()
		delete(s.inflight, key)
		s.inflightMu.Unlock()
	}()

	submitted, err := s.store.HasSubmissionFromIP(ctx, surveyID, ip)
	if err != nil {
		return 0, err
	}
	if submitted {
		return 0, domain.ErrAlreadySubmitted
	}

	sub.IP = ip
	if sub.Time.IsZero() {
		sub.Time = time.Now()
	}
	id, err := s.store.AddSubmission(ctx, surveyID, sub)
	if err != nil {
		return 0, err
	}
	sub.ID = id

	s.mu.Lock()
	session := s.sessions[surveyID]
	s.mu.Unlock()
	if session != nil {
		total, err := s.countSubmissions(ctx, surveyID)
		if err == nil {
			session.broadcast(ResultsUpdate{SurveyID: surveyID, Submission: *sub, Total: total})
		}
	}
	return id, nil
}

// Visualize runs the aggregation engine over a survey's submissions.
// At least one field must have a visualization mode selected.
func (s *SurveyService) Visualize(ctx context.Context, surveyID int, sel viz.Selection) ([]viz.Dataset, error) {
	if !sel.Active() {
		return nil, domain.Validationf("no visualization selected")
	}
	survey, err := s.cache.GetSurvey(ctx, surveyID)
	if err != nil {
		return nil, err
	}
	submissions, err := s.store.ListSubmissions(ctx, surveyID)
	if err != nil {
		return nil, err
	}
	return viz.Aggregate(survey.Fields, submissions, sel)
}

// SubscribeResults returns a channel of live submission events for a
// survey. The caller must invoke the returned cancel function.
func (s *SurveyService) SubscribeResults(ctx context.Context, surveyID int) (<-chan ResultsUpdate, func(), error) {
	if _, err := s.cache.GetSurvey(ctx, surveyID); err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	session, ok := s.sessions[surveyID]
	if !ok {
		session = newLiveSession()
		s.sessions[surveyID] = session
	}
	s.mu.Unlock()

	ch, cancel := session.subscribe()
	return ch, func() {
		cancel()
		s.mu.Lock()
		if session.isEmpty() {
			delete(s.sessions, surveyID)
		}
		s.mu.Unlock()
	}, nil
}

func (s *SurveyService) countSubmissions(ctx context.Context, surveyID int) (int, error) {
	subs, err := s.store.ListSubmissions(ctx, surveyID)
	if err != nil {
		return 0, err
	}
	return len(subs), nil
}

func validateDefinition(survey *domain.Survey) error {
	for _, f := range survey.Fields {
		if !f.Type.Valid() {
			return domain.Validationf("unknown field type %q", f.Type)
		}
		if (f.Type == domain.FieldSelect) != (f.Options != nil) {
			return domain.Validationf("field %q: options must be set exactly for select fields", f.Label)
		}
	}
	return nil
}

func validateSubmission(survey *domain.Survey, sub *domain.Submission) error {
	byName := make(map[string]*domain.Field, len(survey.Fields))
	for _, f := range survey.Fields {
		byName[f.Name] = f
	}

	for name := range sub.Fields {
		if _, ok := byName[name]; !ok {
			return domain.Validationf("unknown field %q", name)
		}
	}

	for _, f := range survey.Fields {
		sf, ok := sub.Fields[f.Name]
		if f.Required && (!ok || sf.Value == nil || sf.Value == "") {
			return domain.Validationf("field %q is required", f.Name)
		}
		if !ok || f.Type != domain.FieldSelect {
			continue
		}
		value, _ := sf.Value.(string)
		if value == "" {
			continue
		}
		found := false
		for _, o := range f.Options {
			if o.Value == value {
				found = true
				break
			}
		}
		if !found {
			return domain.Validationf("field %q: %q is not a declared option", f.Name, value)
		}
	}
	return nil
}

// liveSession is the per-survey registry of live results subscribers.
type liveSession struct {
	mu          sync.Mutex
	subscribers map[chan ResultsUpdate]struct{}
}

func newLiveSession() *liveSession {
	return &liveSession{subscribers: make(map[chan ResultsUpdate]struct{})}
}

func (l *liveSession) subscribe() (<-chan ResultsUpdate, func()) {
	ch := make(chan ResultsUpdate, 8)

	l.mu.Lock()
	l.subscribers[ch] = struct{}{}
	l.mu.Unlock()

	cancel := func() {
		l.mu.Lock()
		if _, ok := l.subscribers[ch]; ok {
			delete(l.subscribers, ch)
			close(ch)
		}
		l.mu.Unlock()
	}
	return ch, cancel
}

func (l *liveSession) broadcast(update ResultsUpdate) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for ch := range l.subscribers {
		select {
		case ch <- update:
		default:
			// Drop the oldest update so a slow subscriber never blocks
			// the submission path.
			select {
			case <-ch:
			default:
			}
			ch <- update
		}
	}
}

func (l *liveSession) isEmpty() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.subscribers) == 0
}

func (l *liveSession) closeAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for ch := range l.subscribers {
		close(ch)
	}
	l.subscribers = make(map[chan ResultsUpdate]struct{})
}
