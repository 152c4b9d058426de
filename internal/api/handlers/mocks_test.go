package handlers_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/generally23/hlguinee/internal/api/middleware"
	"github.com/generally23/hlguinee/internal/models"
	"github.com/generally23/hlguinee/internal/services"
)

// --- Mocks ---

type MockPropertyService struct {
	mock.Mock
}

func (m *MockPropertyService) Create(ctx context.Context, ownerID primitive.ObjectID, p *models.Property) (*models.Property, error) {
	args := m.Called(ctx, ownerID, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Property), args.Error(1)
}

func (m *MockPropertyService) FindByID(ctx context.Context, id primitive.ObjectID) (*services.PropertyView, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.PropertyView), args.Error(1)
}

func (m *MockPropertyService) Search(ctx context.Context, params services.SearchParams) (*services.PropertyPage, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.PropertyPage), args.Error(1)
}

func (m *MockPropertyService) Update(ctx context.Context, id, ownerID primitive.ObjectID, upd services.PropertyUpdate) (*models.Property, error) {
	args := m.Called(ctx, id, ownerID, upd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Property), args.Error(1)
}

func (m *MockPropertyService) Delete(ctx context.Context, id, requesterID primitive.ObjectID, isAdmin bool) error {
	return m.Called(ctx, id, requesterID, isAdmin).Error(0)
}

func (m *MockPropertyService) AppendImageSets(ctx context.Context, id primitive.ObjectID, sets []models.ImageVariantSet) error {
	return m.Called(ctx, id, sets).Error(0)
}

func (m *MockPropertyService) CountImages(ctx context.Context, id primitive.ObjectID) (int, error) {
	args := m.Called(ctx, id)
	return args.Int(0), args.Error(1)
}

func (m *MockPropertyService) FindRawByID(ctx context.Context, id primitive.ObjectID) (*models.Property, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Property), args.Error(1)
}

type MockAccountService struct {
	mock.Mock
}

func (m *MockAccountService) Register(ctx context.Context, name, email, password string, role models.Role) (*models.Account, error) {
	args := m.Called(ctx, name, email, password, role)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *MockAccountService) Authenticate(ctx context.Context, email, password string) (*models.Account, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *MockAccountService) SignOut(ctx context.Context, id primitive.ObjectID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockAccountService) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *MockAccountService) MarkVerified(ctx context.Context, id primitive.ObjectID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockAccountService) SetAvatar(ctx context.Context, id primitive.ObjectID, set *models.ImageVariantSet) error {
	return m.Called(ctx, id, set).Error(0)
}

// fakeEnqueuer records enqueued tasks.
type fakeEnqueuer struct {
	mu    sync.Mutex
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{}, nil
}

func (f *fakeEnqueuer) enqueued() []*asynq.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*asynq.Task(nil), f.tasks...)
}

// fakeBlobs is an in-memory blob store. failAfter > 0 makes Put fail once
// that many objects are stored.
type fakeBlobs struct {
	mu        sync.Mutex
	objects   map[string][]byte
	failAfter int
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{objects: map[string][]byte{}}
}

func (f *fakeBlobs) Put(_ context.Context, key string, data []byte, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAfter > 0 && len(f.objects) >= f.failAfter {
		return fmt.Errorf("injected failure for %s", key)
	}
	f.objects[key] = data
	return nil
}

func (f *fakeBlobs) Get(_ context.Context, key string) ([]byte, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, "", fmt.Errorf("no such key %s", key)
	}
	return data, "application/octet-stream", nil
}

func (f *fakeBlobs) Delete(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range keys {
		delete(f.objects, key)
	}
	return nil
}

func (f *fakeBlobs) BaseURL() string { return "https://img.test/" }

func (f *fakeBlobs) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

// authAs fakes an authenticated request by seeding the context keys the
// auth middleware would set.
func authAs(id primitive.ObjectID, role models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextKeyAccountID, id.Hex())
		c.Set(middleware.ContextKeyRole, string(role))
		c.Next()
	}
}
