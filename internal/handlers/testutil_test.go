package handlers

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/VallejoLeonardo/alumnosb/internal/auth"
	"github.com/VallejoLeonardo/alumnosb/internal/services"
	"github.com/VallejoLeonardo/alumnosb/internal/storage"
	"github.com/VallejoLeonardo/alumnosb/internal/store"
	"github.com/VallejoLeonardo/alumnosb/types"
)

const testSecret = "test-secret"

// fakeStudentRepo is an in-memory services.StudentRepository. onDelete
// mirrors the ON DELETE CASCADE on the messages foreign keys.
type fakeStudentRepo struct {
	mu       sync.Mutex
	students map[string]types.Student
	onDelete func(matricula string)
}

func newFakeStudentRepo() *fakeStudentRepo {
	return &fakeStudentRepo{students: make(map[string]types.Student)}
}

func (r *fakeStudentRepo) GetByMatricula(_ context.Context, matricula string) (types.Student, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	student, ok := r.students[matricula]
	if !ok {
		return types.Student{}, store.ErrNotFound
	}
	return student, nil
}

func (r *fakeStudentRepo) GetByEmail(_ context.Context, email string) (types.Student, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, student := range r.students {
		if student.Email == email {
			return student, nil
		}
	}
	return types.Student{}, store.ErrNotFound
}

func (r *fakeStudentRepo) List(_ context.Context, search string, offset, limit int) ([]types.Student, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	needle := strings.ToLower(search)
	matched := make([]types.Student, 0, len(r.students))
	for _, student := range r.students {
		if needle == "" ||
			strings.Contains(strings.ToLower(student.Matricula), needle) ||
			strings.Contains(strings.ToLower(student.FirstName), needle) ||
			strings.Contains(strings.ToLower(student.LastNamePaternal), needle) {
			matched = append(matched, student)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].FirstName != matched[j].FirstName {
			return matched[i].FirstName < matched[j].FirstName
		}
		return matched[i].Matricula < matched[j].Matricula
	})

	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (r *fakeStudentRepo) Create(_ context.Context, student types.Student) (types.Student, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.students[student.Matricula]; exists {
		return types.Student{}, store.ErrDuplicate
	}
	for _, existing := range r.students {
		if existing.Email == student.Email {
			return types.Student{}, store.ErrDuplicate
		}
	}
	student.CreatedAt = time.Now()
	student.UpdatedAt = student.CreatedAt
	r.students[student.Matricula] = student
	return student, nil
}

func (r *fakeStudentRepo) Update(_ context.Context, student types.Student) (types.Student, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.students[student.Matricula]; !exists {
		return types.Student{}, store.ErrNotFound
	}
	for _, existing := range r.students {
		if existing.Matricula != student.Matricula && existing.Email == student.Email {
			return types.Student{}, store.ErrDuplicate
		}
	}
	student.UpdatedAt = time.Now()
	r.students[student.Matricula] = student
	return student, nil
}

func (r *fakeStudentRepo) Delete(_ context.Context, matricula string) error {
	r.mu.Lock()
	if _, exists := r.students[matricula]; !exists {
		r.mu.Unlock()
		return store.ErrNotFound
	}
	delete(r.students, matricula)
	r.mu.Unlock()
	if r.onDelete != nil {
		r.onDelete(matricula)
	}
	return nil
}

// seed inserts a student with the given password hashed at the cheapest cost.
func (r *fakeStudentRepo) seed(matricula, firstName, email, password string) types.Student {
	hashed, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	student := types.Student{
		Matricula:        matricula,
		FirstName:        firstName,
		LastNamePaternal: "Test",
		Email:            email,
		PasswordHash:     string(hashed),
	}
	r.mu.Lock()
	r.students[matricula] = student
	r.mu.Unlock()
	return student
}

// fakeMessageRepo is an in-memory services.MessageRepository. Timestamps are
// assigned from a monotonically increasing counter so ordering is stable.
type fakeMessageRepo struct {
	mu       sync.Mutex
	nextID   int64
	messages []types.Message
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{}
}

func (r *fakeMessageRepo) Insert(_ context.Context, message types.Message) (types.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	message.ID = r.nextID
	message.SentAt = time.Unix(1700000000+r.nextID, 0)
	message.Read = false
	r.messages = append(r.messages, message)
	return message, nil
}

func (r *fakeMessageRepo) Conversation(_ context.Context, matriculaA, matriculaB string) ([]types.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]types.Message, 0)
	for _, m := range r.messages {
		if (m.SenderMatricula == matriculaA && m.RecipientMatricula == matriculaB) ||
			(m.SenderMatricula == matriculaB && m.RecipientMatricula == matriculaA) {
			result = append(result, m)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r *fakeMessageRepo) page(filter func(types.Message) bool, offset, limit int) ([]types.Message, int) {
	matched := make([]types.Message, 0)
	for _, m := range r.messages {
		if filter(m) {
			matched = append(matched, m)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })

	total := len(matched)
	if offset >= total {
		return nil, total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total
}

func (r *fakeMessageRepo) Inbox(_ context.Context, matricula string, offset, limit int) ([]types.Message, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	messages, total := r.page(func(m types.Message) bool { return m.RecipientMatricula == matricula }, offset, limit)
	return messages, total, nil
}

func (r *fakeMessageRepo) Sent(_ context.Context, matricula string, offset, limit int) ([]types.Message, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	messages, total := r.page(func(m types.Message) bool { return m.SenderMatricula == matricula }, offset, limit)
	return messages, total, nil
}

func (r *fakeMessageRepo) Delete(_ context.Context, id int64, senderMatricula string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, m := range r.messages {
		if m.ID == id && m.SenderMatricula == senderMatricula {
			r.messages = append(r.messages[:i], r.messages[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (r *fakeMessageRepo) MarkRead(_ context.Context, id int64, recipientMatricula string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, m := range r.messages {
		if m.ID == id && m.RecipientMatricula == recipientMatricula {
			r.messages[i].Read = true
			return nil
		}
	}
	return store.ErrNotFound
}

// removeParticipant drops every message sent or received by the matricula,
// the way the cascading foreign keys do.
func (r *fakeMessageRepo) removeParticipant(matricula string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.messages[:0]
	for _, m := range r.messages {
		if m.SenderMatricula != matricula && m.RecipientMatricula != matricula {
			kept = append(kept, m)
		}
	}
	r.messages = kept
}

// fakeCaptcha approves exactly one token value.
type fakeCaptcha struct {
	accepted string
}

func (c *fakeCaptcha) Verify(_ context.Context, token string) error {
	if token == c.accepted {
		return nil
	}
	return auth.ErrChallengeFailed
}

// fakeAssertions maps raw tokens to verified identities.
type fakeAssertions struct {
	identities map[string]auth.IdentityClaims
}

func (a *fakeAssertions) Verify(_ context.Context, rawToken string) (auth.IdentityClaims, error) {
	identity, ok := a.identities[rawToken]
	if !ok {
		return auth.IdentityClaims{}, auth.ErrInvalidAssertion
	}
	return identity, nil
}

type testEnv struct {
	router   *chi.Mux
	issuer   *auth.TokenIssuer
	students *fakeStudentRepo
	messages *fakeMessageRepo
}

// newTestEnv wires the routers exactly the way the server does, over
// in-memory repositories and stub verifiers.
func newTestEnv(photos *storage.Storage) *testEnv {
	studentRepo := newFakeStudentRepo()
	messageRepo := newFakeMessageRepo()
	studentRepo.onDelete = messageRepo.removeParticipant

	studentService := services.NewStudentService(studentRepo, nil)
	messageService := services.NewMessageService(messageRepo, studentRepo, nil)

	issuer := auth.NewTokenIssuer(testSecret, time.Hour)
	captcha := &fakeCaptcha{accepted: "good-captcha"}
	assertions := &fakeAssertions{identities: map[string]auth.IdentityClaims{
		"good-google-token": {Email: "laura@example.edu", Name: "Laura Mendoza"},
	}}

	authMiddleware := RequireAuth(issuer)
	studentOnly := RequireRole(auth.RoleStudent)

	router := chi.NewRouter()
	router.Get("/healthz", Healthz)
	router.Route("/auth", func(r chi.Router) {
		AuthRouter(r, NewAuthHandler(studentService, issuer, captcha, assertions), authMiddleware)
	})
	router.Route("/students", func(r chi.Router) {
		r.Use(authMiddleware, studentOnly)
		StudentRouter(r, studentService, photos)
	})
	router.Route("/messages", func(r chi.Router) {
		r.Use(authMiddleware, studentOnly)
		MessageRouter(r, messageService)
	})

	return &testEnv{
		router:   router,
		issuer:   issuer,
		students: studentRepo,
		messages: messageRepo,
	}
}

func (e *testEnv) tokenFor(student types.Student) string {
	token, err := e.issuer.Issue(student)
	if err != nil {
		panic(err)
	}
	return token
}

// tokenWithRole signs a token carrying an arbitrary role, for exercising
// the role check.
func tokenWithRole(matricula, role string) string {
	now := time.Now()
	claims := auth.Claims{
		StudentID: matricula,
		Role:      role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   matricula,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		panic(err)
	}
	return signed
}
