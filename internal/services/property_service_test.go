package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/generally23/hlguinee/internal/apperr"
	"github.com/generally23/hlguinee/internal/config"
	"github.com/generally23/hlguinee/internal/geofence"
	"github.com/generally23/hlguinee/internal/models"
	"github.com/generally23/hlguinee/internal/utils"
)

// memoryBlobStore keeps blobs in a map so cascade behavior is observable
// without S3.
type memoryBlobStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemoryBlobStore() *memoryBlobStore {
	return &memoryBlobStore{objects: map[string][]byte{}}
}

func (m *memoryBlobStore) Put(_ context.Context, key string, data []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memoryBlobStore) Get(_ context.Context, key string) ([]byte, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, "", fmt.Errorf("no such key %s", key)
	}
	return data, "application/octet-stream", nil
}

func (m *memoryBlobStore) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.objects, key)
	}
	return nil
}

func (m *memoryBlobStore) BaseURL() string { return "https://img.test/" }

func (m *memoryBlobStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

func newTestPropertyService(t *testing.T) (IPropertyService, *memoryBlobStore, *mongo.Database) {
	t.Helper()
	database := utils.SetupTestDB(t, "hlguinee_test", propertiesCollection, accountsCollection)
	blobs := newMemoryBlobStore()
	svc := NewPropertyService(database, &config.Config{}, blobs, geofence.New(""), zap.NewNop())
	return svc, blobs, database
}

func seedOwner(t *testing.T, database *mongo.Database, verified bool) primitive.ObjectID {
	t.Helper()
	now := time.Now().UTC()
	account := &models.Account{
		ID:        primitive.NewObjectID(),
		Name:      "Test Owner",
		Email:     fmt.Sprintf("%s@example.gn", primitive.NewObjectID().Hex()),
		Role:      models.RoleAgent,
		Verified:  verified,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := database.Collection(accountsCollection).InsertOne(context.Background(), account)
	require.NoError(t, err)
	return account.ID
}

func houseInConakry() *models.Property {
	return &models.Property{
		Type:    models.TypeHouse,
		Purpose: models.PurposeRent,
		Price:   800_000,
		Location: models.GeoPoint{
			Type:        "Point",
			Coordinates: []float64{-13.65, 9.55},
		},
		Address:  "Kipe, Conakry",
		Area:     300,
		AreaUnit: "m2",
		House: &models.HouseDetails{
			Rooms:     5,
			Bathrooms: 2,
			Kitchens:  1,
			YearBuilt: 2018,
		},
		Status: models.StatusListed,
	}
}

func TestCreateRejectsLocationOutsideGuinea(t *testing.T) {
	svc, _, database := newTestPropertyService(t)
	owner := seedOwner(t, database, true)

	p := houseInConakry()
	p.Location.Coordinates = []float64{2.35, 48.85} // Paris

	_, err := svc.Create(context.Background(), owner, p)
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestCreateRequiresVerifiedOwner(t *testing.T) {
	svc, _, database := newTestPropertyService(t)

	unverified := seedOwner(t, database, false)
	_, err := svc.Create(context.Background(), unverified, houseInConakry())
	require.Error(t, err)
	assert.Equal(t, apperr.KindPermission, apperr.KindOf(err))

	// Unknown accounts are turned away the same way.
	_, err = svc.Create(context.Background(), primitive.NewObjectID(), houseInConakry())
	require.Error(t, err)
	assert.Equal(t, apperr.KindPermission, apperr.KindOf(err))

	verified := seedOwner(t, database, true)
	created, err := svc.Create(context.Background(), verified, houseInConakry())
	require.NoError(t, err)
	assert.Equal(t, verified, created.OwnerID)
}

func TestCreateAndFindByID(t *testing.T) {
	svc, _, database := newTestPropertyService(t)
	owner := seedOwner(t, database, true)

	created, err := svc.Create(context.Background(), owner, houseInConakry())
	require.NoError(t, err)
	require.False(t, created.ID.IsZero())
	assert.Equal(t, owner, created.OwnerID)

	view, err := svc.FindByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, view.ID)
	assert.Empty(t, view.Images)
}

func TestSearchPaginationIsConsistent(t *testing.T) {
	svc, _, database := newTestPropertyService(t)
	owner := seedOwner(t, database, true)

	for i := 0; i < 5; i++ {
		p := houseInConakry()
		p.Price = float64(500_000 + i*100_000)
		_, err := svc.Create(context.Background(), owner, p)
		require.NoError(t, err)
	}

	// Corners around Conakry, so both the count pass and the data pass run
	// the viewport stage against the stored points.
	page, err := svc.Search(context.Background(), SearchParams{
		NorthEast: []float64{-13.0, 10.0},
		SouthWest: []float64{-14.0, 9.0},
		Sort:      "-price",
		Page:      "2",
		Limit:     "2",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(5), page.Total)
	assert.Equal(t, int64(3), page.Pages)
	require.NotNil(t, page.PrevPage)
	require.NotNil(t, page.NextPage)
	assert.Equal(t, 1, *page.PrevPage)
	assert.Equal(t, 3, *page.NextPage)

	require.Len(t, page.Properties, 2)
	assert.Equal(t, float64(700_000), page.Properties[0].Price)
	assert.Equal(t, float64(600_000), page.Properties[1].Price)
}

func TestSearchViewportBoundsResults(t *testing.T) {
	svc, _, database := newTestPropertyService(t)
	owner := seedOwner(t, database, true)
	ctx := context.Background()

	_, err := svc.Create(ctx, owner, houseInConakry())
	require.NoError(t, err)

	kankan := houseInConakry()
	kankan.Location.Coordinates = []float64{-9.3, 10.4}
	kankan.Address = "Kankan"
	created, err := svc.Create(ctx, owner, kankan)
	require.NoError(t, err)

	// A viewport covering Kankan but not Conakry.
	page, err := svc.Search(ctx, SearchParams{
		NorthEast: []float64{-8.5, 11.0},
		SouthWest: []float64{-10.0, 10.0},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
	require.Len(t, page.Properties, 1)
	assert.Equal(t, created.ID, page.Properties[0].ID)

	// No corners means no viewport constraint.
	page, err = svc.Search(ctx, SearchParams{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)
}

func TestUpdateOwnerOnlyAndRevalidates(t *testing.T) {
	svc, _, database := newTestPropertyService(t)
	owner := seedOwner(t, database, true)

	created, err := svc.Create(context.Background(), owner, houseInConakry())
	require.NoError(t, err)

	// Non-owner cannot update.
	price := float64(900_000)
	_, err = svc.Update(context.Background(), created.ID, primitive.NewObjectID(), PropertyUpdate{Price: &price})
	require.Error(t, err)
	assert.Equal(t, apperr.KindPermission, apperr.KindOf(err))

	// An update breaking the variant rules is rejected whole.
	bad := float64(50_000) // below rent minimum
	_, err = svc.Update(context.Background(), created.ID, owner, PropertyUpdate{Price: &bad})
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	updated, err := svc.Update(context.Background(), created.ID, owner, PropertyUpdate{Price: &price})
	require.NoError(t, err)
	assert.Equal(t, price, updated.Price)
}

func TestStatusChangeStampsStatusChangedAt(t *testing.T) {
	svc, _, database := newTestPropertyService(t)
	owner := seedOwner(t, database, true)

	created, err := svc.Create(context.Background(), owner, houseInConakry())
	require.NoError(t, err)
	before := created.StatusChangedAt

	time.Sleep(10 * time.Millisecond)
	rented := models.StatusRented
	updated, err := svc.Update(context.Background(), created.ID, owner, PropertyUpdate{Status: &rented})
	require.NoError(t, err)
	assert.True(t, updated.StatusChangedAt.After(before))
}

func TestDeleteCascadesBlobDeletion(t *testing.T) {
	svc, blobs, database := newTestPropertyService(t)
	owner := seedOwner(t, database, true)
	ctx := context.Background()

	created, err := svc.Create(ctx, owner, houseInConakry())
	require.NoError(t, err)

	sets := []models.ImageVariantSet{
		{SourceName: "a-4000", Names: []string{"a-500", "a-800"}},
		{SourceName: "b-2560", Names: []string{"b-500", "b-800"}},
	}
	for _, set := range sets {
		for _, key := range set.AllNames() {
			require.NoError(t, blobs.Put(ctx, key, []byte("img"), "image/jpeg"))
		}
	}
	require.NoError(t, svc.AppendImageSets(ctx, created.ID, sets))

	count, err := svc.CountImages(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, svc.Delete(ctx, created.ID, owner, false))
	assert.Zero(t, blobs.count(), "every variant key across every set must be deleted")

	_, err = svc.FindByID(ctx, created.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestAppendImageSetsSinglePersist(t *testing.T) {
	svc, _, database := newTestPropertyService(t)
	owner := seedOwner(t, database, true)
	ctx := context.Background()

	created, err := svc.Create(ctx, owner, houseInConakry())
	require.NoError(t, err)

	sets := []models.ImageVariantSet{
		{SourceName: "x-1920", Names: []string{"x-500"}},
		{SourceName: "y-1920", Names: []string{"y-500"}},
		{SourceName: "z-1920", Names: []string{"z-500"}},
	}
	require.NoError(t, svc.AppendImageSets(ctx, created.ID, sets))

	raw, err := svc.FindRawByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, sets, raw.ImagesNames)
}

func TestAppendImageSetsMissingProperty(t *testing.T) {
	svc, _, _ := newTestPropertyService(t)

	err := svc.AppendImageSets(context.Background(), primitive.NewObjectID(),
		[]models.ImageVariantSet{{SourceName: "x-1920"}})
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}
