package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/generally23/hlguinee/internal/apperr"
	"github.com/generally23/hlguinee/internal/config"
	"github.com/generally23/hlguinee/internal/models"
	"github.com/generally23/hlguinee/internal/utils"
)

func newTestAccountService(t *testing.T) (IAccountService, *memoryBlobStore) {
	t.Helper()
	database := utils.SetupTestDB(t, "hlguinee_test", accountsCollection)
	// Duplicate detection depends on the unique email index.
	_, err := database.Collection(accountsCollection).Indexes().CreateOne(
		context.Background(),
		mongo.IndexModel{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		})
	require.NoError(t, err)
	blobs := newMemoryBlobStore()
	return NewAccountService(database, &config.Config{}, blobs, zap.NewNop()), blobs
}

func TestRegisterAndAuthenticate(t *testing.T) {
	svc, _ := newTestAccountService(t)
	ctx := context.Background()

	account, err := svc.Register(ctx, "Mariama Diallo", "Mariama@Example.com", "s3cure-enough", models.RoleAgent)
	require.NoError(t, err)
	assert.Equal(t, "mariama@example.com", account.Email)
	assert.False(t, account.Verified)
	assert.NotEqual(t, "s3cure-enough", account.PasswordHash)

	signedIn, err := svc.Authenticate(ctx, "mariama@example.com", "s3cure-enough")
	require.NoError(t, err)
	assert.Equal(t, account.ID, signedIn.ID)
	assert.NotNil(t, signedIn.SignedInAt)

	_, err = svc.Authenticate(ctx, "mariama@example.com", "wrong")
	require.Error(t, err)
	assert.Equal(t, apperr.KindPermission, apperr.KindOf(err))
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _ := newTestAccountService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "A", "taken@example.com", "s3cure-enough", models.RoleClient)
	require.NoError(t, err)

	_, err = svc.Register(ctx, "B", "taken@example.com", "s3cure-enough", models.RoleClient)
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestRegisterRejectsPrivilegedRoles(t *testing.T) {
	svc, _ := newTestAccountService(t)

	_, err := svc.Register(context.Background(), "X", "x@example.com", "s3cure-enough", models.RoleAdmin)
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestMarkVerified(t *testing.T) {
	svc, _ := newTestAccountService(t)
	ctx := context.Background()

	account, err := svc.Register(ctx, "V", "v@example.com", "s3cure-enough", "")
	require.NoError(t, err)

	require.NoError(t, svc.MarkVerified(ctx, account.ID))
	found, err := svc.FindByID(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, found.Verified)
	assert.Equal(t, models.RoleClient, found.Role)
}

func TestSetAvatarReplacesOldBlobs(t *testing.T) {
	svc, blobs := newTestAccountService(t)
	ctx := context.Background()

	account, err := svc.Register(ctx, "Av", "av@example.com", "s3cure-enough", models.RoleClient)
	require.NoError(t, err)

	first := &models.ImageVariantSet{SourceName: "old-2000", Names: []string{"old-200", "old-400"}}
	for _, key := range first.AllNames() {
		require.NoError(t, blobs.Put(ctx, key, []byte("img"), "image/jpeg"))
	}
	require.NoError(t, svc.SetAvatar(ctx, account.ID, first))

	second := &models.ImageVariantSet{SourceName: "new-2000", Names: []string{"new-200", "new-400"}}
	for _, key := range second.AllNames() {
		require.NoError(t, blobs.Put(ctx, key, []byte("img"), "image/jpeg"))
	}
	require.NoError(t, svc.SetAvatar(ctx, account.ID, second))

	// Only the new set remains.
	assert.Equal(t, 3, blobs.count())
	_, _, err = blobs.Get(ctx, "old-200")
	assert.Error(t, err)

	found, err := svc.FindByID(ctx, account.ID)
	require.NoError(t, err)
	require.NotNil(t, found.AvatarNames)
	assert.Equal(t, "new-2000", found.AvatarNames.SourceName)
	assert.Equal(t, "https://img.test/new-200", found.AvatarURL)
}
