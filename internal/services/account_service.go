package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/generally23/hlguinee/internal/apperr"
	"github.com/generally23/hlguinee/internal/auth"
	"github.com/generally23/hlguinee/internal/config"
	"github.com/generally23/hlguinee/internal/db"
	"github.com/generally23/hlguinee/internal/models"
	"github.com/generally23/hlguinee/internal/storage"
)

const accountsCollection = "accounts"

// IAccountService defines the interface for account-related operations.
type IAccountService interface {
	Register(ctx context.Context, name, email, password string, role models.Role) (*models.Account, error)
	Authenticate(ctx context.Context, email, password string) (*models.Account, error)
	SignOut(ctx context.Context, id primitive.ObjectID) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Account, error)
	MarkVerified(ctx context.Context, id primitive.ObjectID) error
	SetAvatar(ctx context.Context, id primitive.ObjectID, set *models.ImageVariantSet) error
}

// accountService implements IAccountService.
type accountService struct {
	db    *mongo.Database
	cfg   *config.Config
	blobs storage.BlobStore
	log   *zap.Logger
}

// NewAccountService creates a new AccountService.
func NewAccountService(database *mongo.Database, cfg *config.Config, blobs storage.BlobStore, log *zap.Logger) IAccountService {
	return &accountService{db: database, cfg: cfg, blobs: blobs, log: log}
}

// Register creates an unverified account. The unique email index backs the
// duplicate check; a collision surfaces as a validation error.
func (s *accountService) Register(ctx context.Context, name, email, password string, role models.Role) (*models.Account, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" {
		return nil, apperr.Validation("name is required")
	}
	if email == "" || !strings.Contains(email, "@") {
		return nil, apperr.Validation("a valid email is required")
	}
	if len(password) < 8 {
		return nil, apperr.Validation("password must be at least 8 characters")
	}
	switch role {
	case models.RoleAgent, models.RoleClient:
	case "":
		role = models.RoleClient
	default:
		// Privileged roles are provisioned out of band, never self-assigned.
		return nil, apperr.Validation("role must be \"agent\" or \"client\"")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now().UTC()
	account := &models.Account{
		ID:           primitive.NewObjectID(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Verified:     false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	collection := s.db.Collection(accountsCollection)
	err = db.Try(func() error {
		_, insertErr := collection.InsertOne(ctx, account)
		return insertErr
	})
	if err != nil {
		if db.IsMongoDuplicateKeyError(err) {
			return nil, apperr.Validation("an account with this email already exists")
		}
		return nil, fmt.Errorf("failed to insert account: %w", err)
	}
	return account, nil
}

// Authenticate verifies credentials and stamps the sign-in time. The same
// error covers unknown email and bad password.
func (s *accountService) Authenticate(ctx context.Context, email, password string) (*models.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var account models.Account
	collection := s.db.Collection(accountsCollection)
	err := collection.FindOne(ctx, bson.M{"email": email}).Decode(&account)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperr.Permission("invalid email or password")
		}
		return nil, fmt.Errorf("failed to find account by email: %w", err)
	}
	if !auth.CheckPasswordHash(password, account.PasswordHash) {
		return nil, apperr.Permission("invalid email or password")
	}

	now := time.Now().UTC()
	account.SignedInAt = &now
	_, err = collection.UpdateOne(ctx, bson.M{"_id": account.ID},
		bson.M{"$set": bson.M{"signedInAt": now}})
	if err != nil {
		return nil, fmt.Errorf("failed to stamp sign-in: %w", err)
	}
	return &account, nil
}

// SignOut stamps the sign-out time.
func (s *accountService) SignOut(ctx context.Context, id primitive.ObjectID) error {
	res, err := s.db.Collection(accountsCollection).UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"signedOutAt": time.Now().UTC()}})
	if err != nil {
		return fmt.Errorf("failed to stamp sign-out: %w", err)
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("account %s not found", id.Hex())
	}
	return nil
}

func (s *accountService) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Account, error) {
	var account models.Account
	err := s.db.Collection(accountsCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&account)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperr.NotFound("account %s not found", id.Hex())
		}
		return nil, fmt.Errorf("failed to find account %s: %w", id.Hex(), err)
	}
	return &account, nil
}

// MarkVerified flips the verification flag after the emailed link is used.
func (s *accountService) MarkVerified(ctx context.Context, id primitive.ObjectID) error {
	res, err := s.db.Collection(accountsCollection).UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"verified": true, "updatedAt": time.Now().UTC()}})
	if err != nil {
		return fmt.Errorf("failed to mark account %s verified: %w", id.Hex(), err)
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("account %s not found", id.Hex())
	}
	return nil
}

// SetAvatar swaps in a freshly processed avatar rendition set and deletes the
// blobs of the previous one.
func (s *accountService) SetAvatar(ctx context.Context, id primitive.ObjectID, set *models.ImageVariantSet) error {
	account, err := s.FindByID(ctx, id)
	if err != nil {
		return err
	}

	avatarURL := s.blobs.BaseURL() + set.SourceName
	if len(set.Names) > 0 {
		avatarURL = s.blobs.BaseURL() + set.Names[0]
	}

	_, err = s.db.Collection(accountsCollection).UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{
			"avatarNames": set,
			"avatarUrl":   avatarURL,
			"updatedAt":   time.Now().UTC(),
		}})
	if err != nil {
		return fmt.Errorf("failed to set avatar for account %s: %w", id.Hex(), err)
	}

	if account.AvatarNames != nil {
		if err := s.blobs.Delete(ctx, account.AvatarNames.AllNames()...); err != nil {
			s.log.Warn("failed to delete previous avatar blobs",
				zap.String("accountId", id.Hex()), zap.Error(err))
		}
	}
	return nil
}
