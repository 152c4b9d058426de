package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/generally23/hlguinee/internal/apperr"
	"github.com/generally23/hlguinee/internal/config"
	"github.com/generally23/hlguinee/internal/db"
	"github.com/generally23/hlguinee/internal/geofence"
	"github.com/generally23/hlguinee/internal/images"
	"github.com/generally23/hlguinee/internal/models"
	"github.com/generally23/hlguinee/internal/query"
	"github.com/generally23/hlguinee/internal/storage"
	"github.com/generally23/hlguinee/internal/utils"
)

const propertiesCollection = "properties"

// SearchParams carries the raw client inputs of a property search. Page and
// Limit stay strings; the pagination calculator owns their parsing.
type SearchParams struct {
	NorthEast []float64
	SouthWest []float64
	Filters   map[string]interface{}
	Sort      string
	Page      string
	Limit     string
}

// PropertyUpdate lists the owner-mutable fields. Nil pointers mean "leave
// alone". Type, purpose, owner and location are fixed at creation.
type PropertyUpdate struct {
	Price    *float64
	Address  *string
	Area     *float64
	AreaUnit *string
	Tags     []string
	Status   *models.Status
	House    *models.HouseDetails
}

// PropertyView is the client-facing shape of one property: the document,
// its joined owner and presentation-ready image URLs.
type PropertyView struct {
	models.Property
	Owner  *models.AccountPublic `json:"owner,omitempty"`
	Images []images.ImageView    `json:"images"`
}

// PropertyPage is one page of search results.
type PropertyPage struct {
	utils.Pagination
	Properties []*PropertyView `json:"properties"`
}

// IPropertyService defines the interface for property-related operations.
type IPropertyService interface {
	Create(ctx context.Context, ownerID primitive.ObjectID, p *models.Property) (*models.Property, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (*PropertyView, error)
	Search(ctx context.Context, params SearchParams) (*PropertyPage, error)
	Update(ctx context.Context, id, ownerID primitive.ObjectID, upd PropertyUpdate) (*models.Property, error)
	Delete(ctx context.Context, id, requesterID primitive.ObjectID, isAdmin bool) error
	AppendImageSets(ctx context.Context, id primitive.ObjectID, sets []models.ImageVariantSet) error
	CountImages(ctx context.Context, id primitive.ObjectID) (int, error)
	FindRawByID(ctx context.Context, id primitive.ObjectID) (*models.Property, error)
}

// propertyService implements IPropertyService.
type propertyService struct {
	db    *mongo.Database
	cfg   *config.Config
	blobs storage.BlobStore
	fence *geofence.Validator
	log   *zap.Logger
}

// NewPropertyService creates a new PropertyService.
func NewPropertyService(database *mongo.Database, cfg *config.Config, blobs storage.BlobStore, fence *geofence.Validator, log *zap.Logger) IPropertyService {
	return &propertyService{db: database, cfg: cfg, blobs: blobs, fence: fence, log: log}
}

// Create validates the variant model, gates the location on the national
// boundary and inserts the document. The owner comes from the authenticated
// request, never from the payload, and must hold a verified account.
func (s *propertyService) Create(ctx context.Context, ownerID primitive.ObjectID, p *models.Property) (*models.Property, error) {
	var owner models.Account
	err := s.db.Collection(accountsCollection).FindOne(ctx, bson.M{"_id": ownerID}).Decode(&owner)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperr.Permission("account not found")
		}
		return nil, fmt.Errorf("failed to load account %s: %w", ownerID.Hex(), err)
	}
	if !owner.Verified {
		return nil, apperr.Permission("account must be verified before listing a property")
	}

	now := time.Now().UTC()
	p.ID = primitive.NewObjectID()
	p.OwnerID = ownerID
	p.ImagesNames = nil
	if p.Status == "" {
		p.Status = models.StatusUnlisted
	}
	p.StatusChangedAt = now
	p.CreatedAt = now
	p.UpdatedAt = now

	if err := p.Validate(); err != nil {
		return nil, err
	}

	inside, err := s.fence.Contains(p.Location.Coordinates)
	if err != nil {
		return nil, err
	}
	if !inside {
		return nil, apperr.Validation("location must be inside Guinea")
	}

	collection := s.db.Collection(propertiesCollection)
	err = db.Try(func() error {
		_, insertErr := collection.InsertOne(ctx, p)
		return insertErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to insert property for owner %s: %w", ownerID.Hex(), err)
	}
	return p, nil
}

// propertyWithOwner is the decode target of the owner-join data pass.
type propertyWithOwner struct {
	models.Property `bson:",inline"`
	Owner           *models.AccountPublic `bson:"owner,omitempty"`
}

func (s *propertyService) view(doc *propertyWithOwner) *PropertyView {
	return &PropertyView{
		Property: doc.Property,
		Owner:    doc.Owner,
		Images:   images.FormatImages(doc.ImagesNames, s.blobs.BaseURL()),
	}
}

// FindByID returns one property with its owner joined and images formatted.
func (s *propertyService) FindByID(ctx context.Context, id primitive.ObjectID) (*PropertyView, error) {
	pipeline := query.BuildPipeline(bson.D{{Key: "$match", Value: bson.M{"_id": id}}})
	pipeline = append(pipeline, query.OwnerLookupStages()...)

	cursor, err := s.db.Collection(propertiesCollection).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to query property %s: %w", id.Hex(), err)
	}
	defer cursor.Close(ctx)

	var docs []propertyWithOwner
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode property %s: %w", id.Hex(), err)
	}
	if len(docs) == 0 {
		return nil, apperr.NotFound("property %s not found", id.Hex())
	}
	return s.view(&docs[0]), nil
}

// Search runs the two-pass listing query: one pass counts the full match set,
// pagination is derived from that count, then the identical stage prefix
// fetches the requested page with the owner join appended.
func (s *propertyService) Search(ctx context.Context, params SearchParams) (*PropertyPage, error) {
	base := query.BuildPipeline(
		query.SearchStage(params.NorthEast, params.SouthWest),
		query.FilterStage(params.Filters, time.Now().UTC()),
		query.SortStage(params.Sort),
	)
	collection := s.db.Collection(propertiesCollection)

	cursor, err := collection.Aggregate(ctx, query.WithCount(base))
	if err != nil {
		return nil, fmt.Errorf("failed to count properties: %w", err)
	}
	var counts []struct {
		Total int64 `bson:"total"`
	}
	if err := cursor.All(ctx, &counts); err != nil {
		return nil, fmt.Errorf("failed to decode property count: %w", err)
	}
	var total int64
	if len(counts) > 0 {
		total = counts[0].Total
	}

	page := utils.CalculatePagination(total, params.Page, params.Limit)
	result := &PropertyPage{Pagination: page, Properties: []*PropertyView{}}
	if total == 0 {
		return result, nil
	}

	cursor, err = collection.Aggregate(ctx, query.WithPage(base, page.Skip, int64(page.Limit)))
	if err != nil {
		return nil, fmt.Errorf("failed to query properties: %w", err)
	}
	var docs []propertyWithOwner
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode properties: %w", err)
	}
	for i := range docs {
		result.Properties = append(result.Properties, s.view(&docs[i]))
	}
	return result, nil
}

// Update applies owner-mutable fields, re-validates the whole variant model
// and persists the result. Only the owner may update; admins manage removal,
// not edits.
func (s *propertyService) Update(ctx context.Context, id, ownerID primitive.ObjectID, upd PropertyUpdate) (*models.Property, error) {
	p, err := s.FindRawByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.OwnerID != ownerID {
		return nil, apperr.Permission("only the owner can update this property")
	}

	now := time.Now().UTC()
	if upd.Price != nil {
		p.Price = *upd.Price
	}
	if upd.Address != nil {
		p.Address = *upd.Address
	}
	if upd.Area != nil {
		p.Area = *upd.Area
	}
	if upd.AreaUnit != nil {
		p.AreaUnit = *upd.AreaUnit
	}
	if upd.Tags != nil {
		p.Tags = upd.Tags
	}
	if upd.House != nil {
		p.House = upd.House
	}
	if upd.Status != nil && *upd.Status != p.Status {
		p.Status = *upd.Status
		p.StatusChangedAt = now
	}
	p.UpdatedAt = now

	if err := p.Validate(); err != nil {
		return nil, err
	}

	res, err := s.db.Collection(propertiesCollection).ReplaceOne(ctx,
		bson.M{"_id": id, "ownerId": ownerID}, p)
	if err != nil {
		return nil, fmt.Errorf("failed to update property %s: %w", id.Hex(), err)
	}
	if res.MatchedCount == 0 {
		return nil, apperr.NotFound("property %s not found", id.Hex())
	}
	return p, nil
}

// Delete removes the document and every image blob it references. Blobs go
// first so a failure leaves a retryable document, never orphaned storage.
func (s *propertyService) Delete(ctx context.Context, id, requesterID primitive.ObjectID, isAdmin bool) error {
	p, err := s.FindRawByID(ctx, id)
	if err != nil {
		return err
	}
	if p.OwnerID != requesterID && !isAdmin {
		return apperr.Permission("only the owner or an admin can delete this property")
	}

	if keys := p.AllImageKeys(); len(keys) > 0 {
		if err := s.blobs.Delete(ctx, keys...); err != nil {
			return apperr.Infrastructure(err, "failed to delete images of property %s", id.Hex())
		}
	}

	if _, err := s.db.Collection(propertiesCollection).DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("failed to delete property %s: %w", id.Hex(), err)
	}
	s.log.Info("property deleted",
		zap.String("propertyId", id.Hex()),
		zap.Int("imagesDeleted", p.ImageCount()))
	return nil
}

// AppendImageSets attaches a batch of processed rendition sets in a single
// write, whatever the batch size.
func (s *propertyService) AppendImageSets(ctx context.Context, id primitive.ObjectID, sets []models.ImageVariantSet) error {
	if len(sets) == 0 {
		return nil
	}
	res, err := s.db.Collection(propertiesCollection).UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{
			"$push": bson.M{"imagesNames": bson.M{"$each": sets}},
			"$set":  bson.M{"updatedAt": time.Now().UTC()},
		})
	if err != nil {
		return fmt.Errorf("failed to append image sets to property %s: %w", id.Hex(), err)
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("property %s not found", id.Hex())
	}
	return nil
}

// CountImages returns how many photos the property currently holds. Input to
// the upload cap check.
func (s *propertyService) CountImages(ctx context.Context, id primitive.ObjectID) (int, error) {
	p, err := s.FindRawByID(ctx, id)
	if err != nil {
		return 0, err
	}
	return p.ImageCount(), nil
}

// FindRawByID fetches the bare document without joins or image formatting.
func (s *propertyService) FindRawByID(ctx context.Context, id primitive.ObjectID) (*models.Property, error) {
	var p models.Property
	err := s.db.Collection(propertiesCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&p)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperr.NotFound("property %s not found", id.Hex())
		}
		return nil, fmt.Errorf("failed to find property %s: %w", id.Hex(), err)
	}
	return &p, nil
}
