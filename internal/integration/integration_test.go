package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"survey-service/internal/app"
	"survey-service/internal/domain"
	pgstore "survey-service/internal/infra/postgres"
	pgmigrations "survey-service/internal/infra/postgres/migrations"
	infraredis "survey-service/internal/infra/redis"
	"survey-service/internal/viz"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
)

func TestSurveyEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	runMigrations(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	store := pgstore.NewSurveyStore(pool)

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	cache := infraredis.NewSurveyCache(redisClient, store, 5*time.Minute)
	service := app.NewSurveyService(store, cache)

	id, err := service.CreateSurvey(ctx, sampleSurvey())
	if err != nil {
		t.Fatalf("create survey: %v", err)
	}

	survey, err := service.GetSurvey(ctx, id)
	if err != nil {
		t.Fatalf("get survey: %v", err)
	}
	if survey.Version != 1 || len(survey.Fields) != 2 {
		t.Fatalf("unexpected survey: %+v", survey)
	}
	if survey.Fields[1].Name != "favorite_color" {
		t.Fatalf("expected generated field name, got %q", survey.Fields[1].Name)
	}

	colorField := survey.Fields[1]
	for i, value := range []string{"red", "red", "blue"} {
		sub := &domain.Submission{Fields: map[string]domain.SubmissionField{
			"favorite_color": {ID: colorField.ID, Name: "favorite_color", Label: colorField.Label, Value: value},
		}}
		if _, err := service.Submit(ctx, id, sub, fmt.Sprintf("10.0.0.%d", i+1)); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}

	// A repeat from a known address is rejected.
	dup := &domain.Submission{Fields: map[string]domain.SubmissionField{
		"favorite_color": {ID: colorField.ID, Name: "favorite_color", Label: colorField.Label, Value: "blue"},
	}}
	if _, err := service.Submit(ctx, id, dup, "10.0.0.1"); !errors.Is(err, domain.ErrAlreadySubmitted) {
		t.Fatalf("expected ErrAlreadySubmitted, got %v", err)
	}

	datasets, err := service.Visualize(ctx, id, viz.Selection{"favorite_color": viz.ModePie})
	if err != nil {
		t.Fatalf("visualize: %v", err)
	}
	if len(datasets) != 1 {
		t.Fatalf("expected one dataset, got %d", len(datasets))
	}
	points := datasets[0].Points
	if len(points) != 2 || points[0].Value != 2 || points[1].Value != 1 {
		t.Fatalf("unexpected points: %+v", points)
	}

	// Update under optimistic lock; the cached definition must not survive.
	survey.Title = "Renamed"
	if err := service.UpdateSurvey(ctx, survey); err != nil {
		t.Fatalf("update survey: %v", err)
	}
	reloaded, err := service.GetSurvey(ctx, id)
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if reloaded.Title != "Renamed" || reloaded.Version != 2 {
		t.Fatalf("expected fresh definition, got %+v", reloaded)
	}

	stale := sampleSurvey()
	stale.ID = id
	stale.Version = 1
	if err := service.UpdateSurvey(ctx, stale); !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}

	// Submissions survive the field recreation that updates perform.
	subs, err := service.Submissions(ctx, id)
	if err != nil {
		t.Fatalf("submissions: %v", err)
	}
	if len(subs) != 3 {
		t.Fatalf("expected 3 submissions after update, got %d", len(subs))
	}
}

func sampleSurvey() *domain.Survey {
	return &domain.Survey{
		Title:       "Offsite feedback",
		Description: "Tell us how it went",
		Fields: []*domain.Field{
			{Type: domain.FieldText, Label: "Your name"},
			{Type: domain.FieldSelect, Label: "Favorite color", Required: true, Options: []*domain.Option{
				{Label: "Red", Value: "red"},
				{Label: "Blue", Value: "blue"},
			}},
		},
	}
}

func runMigrations(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "survey", "POSTGRES_PASSWORD": "surveypass", "POSTGRES_DB": "surveydb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://survey:surveypass@%s:%s/surveydb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
