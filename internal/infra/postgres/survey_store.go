// Package postgres persists surveys and submissions in PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"survey-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// SurveyStore implements app.SurveyStore on a pgx connection pool.
type SurveyStore struct {
	pool *pgxpool.Pool
}

func NewSurveyStore(pool *pgxpool.Pool) *SurveyStore {
	return &SurveyStore{pool: pool}
}

func (s *SurveyStore) CreateSurvey(ctx context.Context, survey *domain.Survey) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var surveyID int
	err = tx.QueryRow(ctx, `
		INSERT INTO surveys (title, description) VALUES ($1, $2)
		RETURNING id`,
		survey.Title, survey.Description,
	).Scan(&surveyID)
	if err != nil {
		return 0, fmt.Errorf("insert survey: %w", err)
	}

	if err := insertFields(ctx, tx, surveyID, survey.Fields); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return surveyID, nil
}

func insertFields(ctx context.Context, tx pgx.Tx, surveyID int, fields []*domain.Field) error {
	domain.AssignFieldNames(fields)
	for i, f := range fields {
		var optionsJSON []byte
		if f.Options != nil {
			var err error
			optionsJSON, err = json.Marshal(f.Options)
			if err != nil {
				return fmt.Errorf("marshal options: %w", err)
			}
		}
		err := tx.QueryRow(ctx, `
			INSERT INTO survey_fields (survey_id, position, type, name, label, required, options)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id`,
			surveyID, i, f.Type, f.Name, f.Label, f.Required, optionsJSON,
		).Scan(&f.ID)
		if err != nil {
			return fmt.Errorf("insert field: %w", err)
		}
	}
	return nil
}

func (s *SurveyStore) GetSurvey(ctx context.Context, id int) (*domain.Survey, error) {
	survey := &domain.Survey{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, version, title, description
		FROM surveys WHERE id = $1`,
		id,
	).Scan(&survey.ID, &survey.Version, &survey.Title, &survey.Description)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load survey: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, type, name, label, required, options
		FROM survey_fields
		WHERE survey_id = $1
		ORDER BY position`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("load fields: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		f := &domain.Field{}
		var optionsJSON []byte
		if err := rows.Scan(&f.ID, &f.Type, &f.Name, &f.Label, &f.Required, &optionsJSON); err != nil {
			return nil, fmt.Errorf("scan field: %w", err)
		}
		if optionsJSON != nil {
			if err := json.Unmarshal(optionsJSON, &f.Options); err != nil {
				return nil, fmt.Errorf("unmarshal options: %w", err)
			}
			if f.Options == nil {
				f.Options = []*domain.Option{}
			}
		}
		survey.Fields = append(survey.Fields, f)
	}
	return survey, rows.Err()
}

// LoadSurvey makes the store usable as a cache loader.
func (s *SurveyStore) LoadSurvey(ctx context.Context, id int) (*domain.Survey, error) {
	return s.GetSurvey(ctx, id)
}

func (s *SurveyStore) ListSurveys(ctx context.Context) ([]*domain.Survey, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, version, title, description
		FROM surveys ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list surveys: %w", err)
	}
	defer rows.Close()

	surveys := []*domain.Survey{}
	for rows.Next() {
		survey := &domain.Survey{}
		if err := rows.Scan(&survey.ID, &survey.Version, &survey.Title, &survey.Description); err != nil {
			return nil, fmt.Errorf("scan survey: %w", err)
		}
		surveys = append(surveys, survey)
	}
	return surveys, rows.Err()
}

func (s *SurveyStore) UpdateSurvey(ctx context.Context, survey *domain.Survey) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	// Optimistic lock: the update only lands if the caller saw the
	// current version.
	tag, err := tx.Exec(ctx, `
		UPDATE surveys
		SET title = $1, description = $2, version = version + 1
		WHERE id = $3 AND version = $4`,
		survey.Title, survey.Description, survey.ID, survey.Version,
	)
	if err != nil {
		return fmt.Errorf("update survey: %w", err)
	}
	if tag.RowsAffected() < 1 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM surveys WHERE id = $1)`, survey.ID).Scan(&exists); err != nil {
			return fmt.Errorf("check survey: %w", err)
		}
		if !exists {
			return domain.ErrNotFound
		}
		return domain.ErrVersionConflict
	}

	// Fields are recreated wholesale; submission values keep their own
	// snapshot of field ids and names.
	if _, err := tx.Exec(ctx, `DELETE FROM survey_fields WHERE survey_id = $1`, survey.ID); err != nil {
		return fmt.Errorf("delete fields: %w", err)
	}
	if err := insertFields(ctx, tx, survey.ID, survey.Fields); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SurveyStore) DeleteSurvey(ctx context.Context, id int) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM surveys WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete survey: %w", err)
	}
	if tag.RowsAffected() < 1 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *SurveyStore) ListSubmissions(ctx context.Context, surveyID int) ([]domain.Submission, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM surveys WHERE id = $1)`, surveyID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check survey: %w", err)
	}
	if !exists {
		return nil, domain.ErrNotFound
	}

	rows, err := s.pool.Query(ctx, `
		SELECT s.id, s.submitted_at, s.ip, v.field_id, v.name, v.label, v.value
		FROM submissions s
		INNER JOIN submission_values v ON (s.id = v.submission_id)
		WHERE s.survey_id = $1
		ORDER BY s.id`,
		surveyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	submissions := []domain.Submission{}
	for rows.Next() {
		var (
			id        int
			submitted time.Time
			ip        string
			f         domain.SubmissionField
			valueJSON []byte
		)
		if err := rows.Scan(&id, &submitted, &ip, &f.ID, &f.Name, &f.Label, &valueJSON); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		if valueJSON != nil {
			if err := json.Unmarshal(valueJSON, &f.Value); err != nil {
				return nil, fmt.Errorf("unmarshal value: %w", err)
			}
		}

		last := len(submissions) - 1
		if last < 0 || submissions[last].ID != id {
			submissions = append(submissions, domain.Submission{
				ID:     id,
				Time:   submitted,
				IP:     ip,
				Fields: map[string]domain.SubmissionField{},
			})
			last++
		}
		submissions[last].Fields[f.Name] = f
	}
	return submissions, rows.Err()
}

func (s *SurveyStore) AddSubmission(ctx context.Context, surveyID int, sub *domain.Submission) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	when := sub.Time
	if when.IsZero() {
		when = time.Now()
	}

	var submissionID int
	err = tx.QueryRow(ctx, `
		INSERT INTO submissions (survey_id, submitted_at, ip) VALUES ($1, $2, $3)
		RETURNING id`,
		surveyID, when, sub.IP,
	).Scan(&submissionID)
	if err != nil {
		return 0, fmt.Errorf("insert submission: %w", err)
	}

	for name, f := range sub.Fields {
		var valueJSON []byte
		if f.Value != nil {
			valueJSON, err = json.Marshal(f.Value)
			if err != nil {
				return 0, fmt.Errorf("marshal value: %w", err)
			}
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO submission_values (submission_id, field_id, name, label, value)
			VALUES ($1, $2, $3, $4, $5)`,
			submissionID, f.ID, name, f.Label, valueJSON,
		); err != nil {
			return 0, fmt.Errorf("insert value: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return submissionID, nil
}

func (s *SurveyStore) HasSubmissionFromIP(ctx context.Context, surveyID int, ip string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM submissions WHERE survey_id = $1 AND ip = $2
		)`,
		surveyID, ip,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check submission: %w", err)
	}
	return exists, nil
}
