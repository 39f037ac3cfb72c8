package memory

import (
	"context"
	"sync"

	"survey-service/internal/domain"
)

// SurveyStore is an in-memory implementation of app.SurveyStore, used in
// tests and when the service runs without a configured database.
type SurveyStore struct {
	mu               sync.RWMutex
	surveys          map[int]*domain.Survey
	submissions      map[int][]domain.Submission
	nextSurveyID     int
	nextFieldID      int
	nextSubmissionID int
}

func NewSurveyStore() *SurveyStore {
	return &SurveyStore{
		surveys:          make(map[int]*domain.Survey),
		submissions:      make(map[int][]domain.Submission),
		nextSurveyID:     1,
		nextFieldID:      1,
		nextSubmissionID: 1,
	}
}

func (s *SurveyStore) CreateSurvey(_ context.Context, survey *domain.Survey) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := cloneSurvey(survey)
	stored.ID = s.nextSurveyID
	s.nextSurveyID++
	stored.Version = 1

	domain.AssignFieldNames(stored.Fields)
	for _, f := range stored.Fields {
		f.ID = s.nextFieldID
		s.nextFieldID++
	}

	s.surveys[stored.ID] = stored
	return stored.ID, nil
}

func (s *SurveyStore) GetSurvey(_ context.Context, id int) (*domain.Survey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	survey, ok := s.surveys[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneSurvey(survey), nil
}

// LoadSurvey makes the store usable as a cache loader.
func (s *SurveyStore) LoadSurvey(ctx context.Context, id int) (*domain.Survey, error) {
	return s.GetSurvey(ctx, id)
}

func (s *SurveyStore) ListSurveys(_ context.Context) ([]*domain.Survey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	surveys := make([]*domain.Survey, 0, len(s.surveys))
	for id := 1; id < s.nextSurveyID; id++ {
		if survey, ok := s.surveys[id]; ok {
			header := cloneSurvey(survey)
			header.Fields = nil
			surveys = append(surveys, header)
		}
	}
	return surveys, nil
}

func (s *SurveyStore) UpdateSurvey(_ context.Context, survey *domain.Survey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.surveys[survey.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if stored.Version != survey.Version {
		return domain.ErrVersionConflict
	}

	updated := cloneSurvey(survey)
	updated.Version = stored.Version + 1
	domain.AssignFieldNames(updated.Fields)
	for _, f := range updated.Fields {
		if f.ID <= 0 {
			f.ID = s.nextFieldID
			s.nextFieldID++
		}
	}
	s.surveys[survey.ID] = updated
	return nil
}

func (s *SurveyStore) DeleteSurvey(_ context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.surveys[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.surveys, id)
	delete(s.submissions, id)
	return nil
}

func (s *SurveyStore) ListSubmissions(_ context.Context, surveyID int) ([]domain.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.surveys[surveyID]; !ok {
		return nil, domain.ErrNotFound
	}
	subs := s.submissions[surveyID]
	out := make([]domain.Submission, len(subs))
	for i, sub := range subs {
		out[i] = cloneSubmission(sub)
	}
	return out, nil
}

func (s *SurveyStore) AddSubmission(_ context.Context, surveyID int, sub *domain.Submission) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.surveys[surveyID]; !ok {
		return 0, domain.ErrNotFound
	}

	stored := cloneSubmission(*sub)
	stored.ID = s.nextSubmissionID
	s.nextSubmissionID++
	s.submissions[surveyID] = append(s.submissions[surveyID], stored)
	return stored.ID, nil
}

func (s *SurveyStore) HasSubmissionFromIP(_ context.Context, surveyID int, ip string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sub := range s.submissions[surveyID] {
		if sub.IP == ip {
			return true, nil
		}
	}
	return false, nil
}

func cloneSurvey(s *domain.Survey) *domain.Survey {
	out := &domain.Survey{
		ID:          s.ID,
		Version:     s.Version,
		Title:       s.Title,
		Description: s.Description,
	}
	if s.Fields != nil {
		out.Fields = make([]*domain.Field, len(s.Fields))
		for i, f := range s.Fields {
			cf := *f
			if f.Options != nil {
				cf.Options = make([]*domain.Option, len(f.Options))
				for j, o := range f.Options {
					co := *o
					cf.Options[j] = &co
				}
			}
			out.Fields[i] = &cf
		}
	}
	return out
}

func cloneSubmission(sub domain.Submission) domain.Submission {
	out := sub
	out.Fields = make(map[string]domain.SubmissionField, len(sub.Fields))
	for name, f := range sub.Fields {
		out.Fields[name] = f
	}
	return out
}
