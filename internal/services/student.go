package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/VallejoLeonardo/alumnosb/internal/mq"
	"github.com/VallejoLeonardo/alumnosb/types"
)

// StudentRepository defines persistence operations for student records.
type StudentRepository interface {
	GetByMatricula(ctx context.Context, matricula string) (types.Student, error)
	GetByEmail(ctx context.Context, email string) (types.Student, error)
	List(ctx context.Context, search string, offset, limit int) ([]types.Student, int, error)
	Create(ctx context.Context, student types.Student) (types.Student, error)
	Update(ctx context.Context, student types.Student) (types.Student, error)
	Delete(ctx context.Context, matricula string) error
}

// StudentService encapsulates student use-cases.
type StudentService struct {
	repo   StudentRepository
	events *mq.MQ
}

// NewStudentService constructs the service. events may be nil when no broker
// is configured.
func NewStudentService(repo StudentRepository, events *mq.MQ) *StudentService {
	return &StudentService{repo: repo, events: events}
}

func (s *StudentService) GetByMatricula(ctx context.Context, matricula string) (types.Student, error) {
	return s.repo.GetByMatricula(ctx, matricula)
}

func (s *StudentService) GetByEmail(ctx context.Context, email string) (types.Student, error) {
	return s.repo.GetByEmail(ctx, email)
}

func (s *StudentService) List(ctx context.Context, search string, offset, limit int) ([]types.Student, int, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return s.repo.List(ctx, search, offset, limit)
}

func (s *StudentService) Create(ctx context.Context, student types.Student) (types.Student, error) {
	created, err := s.repo.Create(ctx, student)
	if err != nil {
		return types.Student{}, err
	}
	s.publishRegistered(created)
	return created, nil
}

func (s *StudentService) Update(ctx context.Context, student types.Student) (types.Student, error) {
	return s.repo.Update(ctx, student)
}

func (s *StudentService) Delete(ctx context.Context, matricula string) error {
	return s.repo.Delete(ctx, matricula)
}

// publishRegistered emits a students.registered event. Publishing is
// best-effort: failures are logged and never affect the request.
func (s *StudentService) publishRegistered(student types.Student) {
	if s.events == nil {
		return
	}

	payload, err := json.Marshal(map[string]string{
		"matricula": student.Matricula,
		"email":     student.Email,
	})
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := s.events.Publish(ctx, mq.TopicStudentRegistered, payload, nil); err != nil {
		slog.Warn("failed to publish student registered event", "matricula", student.Matricula, "err", err)
	}
}
