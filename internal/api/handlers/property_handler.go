package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/generally23/hlguinee/internal/api/middleware"
	"github.com/generally23/hlguinee/internal/config"
	"github.com/generally23/hlguinee/internal/images"
	"github.com/generally23/hlguinee/internal/models"
	"github.com/generally23/hlguinee/internal/services"
	"github.com/generally23/hlguinee/internal/storage"
	"github.com/generally23/hlguinee/internal/tasks"
)

// PropertyHandler handles REST requests for properties.
type PropertyHandler struct {
	cfg             *config.Config
	propertyService services.IPropertyService
	blobs           storage.BlobStore
	taskClient      TaskEnqueuer
	log             *zap.Logger
}

// TaskEnqueuer enqueues background tasks. *asynq.Client satisfies it.
type TaskEnqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// NewPropertyHandler creates a new PropertyHandler.
func NewPropertyHandler(cfg *config.Config, propertyService services.IPropertyService, blobs storage.BlobStore, taskClient TaskEnqueuer, log *zap.Logger) *PropertyHandler {
	return &PropertyHandler{
		cfg:             cfg,
		propertyService: propertyService,
		blobs:           blobs,
		taskClient:      taskClient,
		log:             log,
	}
}

func requesterID(c *gin.Context) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.GetString(middleware.ContextKeyAccountID))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid account identity"})
		return primitive.NilObjectID, false
	}
	return id, true
}

// CreateProperty handles POST /v1/property.
func (h *PropertyHandler) CreateProperty(c *gin.Context) {
	owner, ok := requesterID(c)
	if !ok {
		return
	}

	var p models.Property
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	created, err := h.propertyService.Create(c.Request.Context(), owner, &p)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// GetProperty handles GET /v1/property/:id.
func (h *PropertyHandler) GetProperty(c *gin.Context) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid property ID format"})
		return
	}

	view, err := h.propertyService.FindByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// SearchProperties handles GET /v1/property/search.
//
// Viewport corners come as "lng,lat" pairs in ne/sw; filters use the field
// name directly (type=house) or a bracketed bound (price[gte]=500000).
func (h *PropertyHandler) SearchProperties(c *gin.Context) {
	params := services.SearchParams{
		NorthEast: parseCorner(c.Query("ne")),
		SouthWest: parseCorner(c.Query("sw")),
		Filters:   parseFilters(c.Request.URL.Query()),
		Sort:      c.Query("sort"),
		Page:      c.Query("page"),
		Limit:     c.Query("limit"),
	}

	page, err := h.propertyService.Search(c.Request.Context(), params)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func parseCorner(s string) []float64 {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return nil
	}
	corner := make([]float64, 2)
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil
		}
		corner[i] = v
	}
	return corner
}

// reservedQueryKeys are search-control parameters, not filters.
var reservedQueryKeys = map[string]bool{
	"ne": true, "sw": true, "sort": true, "page": true, "limit": true,
}

func parseFilters(values url.Values) map[string]interface{} {
	filters := map[string]interface{}{}
	for key, vals := range values {
		if reservedQueryKeys[key] || len(vals) == 0 {
			continue
		}
		// price[gte]=x becomes {"price": {"gte": "x"}}
		if open := strings.Index(key, "["); open > 0 && strings.HasSuffix(key, "]") {
			field := key[:open]
			op := key[open+1 : len(key)-1]
			bounds, _ := filters[field].(map[string]string)
			if bounds == nil {
				bounds = map[string]string{}
			}
			bounds[op] = vals[0]
			filters[field] = bounds
			continue
		}
		filters[key] = vals[0]
	}
	return filters
}

type updatePropertyRequest struct {
	Price    *float64             `json:"price"`
	Address  *string              `json:"address"`
	Area     *float64             `json:"area"`
	AreaUnit *string              `json:"areaUnit"`
	Tags     []string             `json:"tags"`
	Status   *models.Status       `json:"status"`
	House    *models.HouseDetails `json:"house"`
}

// UpdateProperty handles PATCH /v1/property/:id.
func (h *PropertyHandler) UpdateProperty(c *gin.Context) {
	owner, ok := requesterID(c)
	if !ok {
		return
	}
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid property ID format"})
		return
	}

	var req updatePropertyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	updated, err := h.propertyService.Update(c.Request.Context(), id, owner, services.PropertyUpdate{
		Price:    req.Price,
		Address:  req.Address,
		Area:     req.Area,
		AreaUnit: req.AreaUnit,
		Tags:     req.Tags,
		Status:   req.Status,
		House:    req.House,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// DeleteProperty handles DELETE /v1/property/:id.
func (h *PropertyHandler) DeleteProperty(c *gin.Context) {
	requester, ok := requesterID(c)
	if !ok {
		return
	}
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid property ID format"})
		return
	}

	isAdmin := middleware.IsAdminRole(c.GetString(middleware.ContextKeyRole))
	if err := h.propertyService.Delete(c.Request.Context(), id, requester, isAdmin); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// UploadImages handles POST /v1/property/:id/images (multipart).
//
// The raw files are staged in the blob store and one task for the whole
// batch is enqueued; processing happens after the 202 goes out. The cap is
// checked here against the currently stored count; a concurrent batch can
// race past it, which is accepted.
func (h *PropertyHandler) UploadImages(c *gin.Context) {
	requester, ok := requesterID(c)
	if !ok {
		return
	}
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid property ID format"})
		return
	}

	property, err := h.propertyService.FindRawByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if property.OwnerID != requester {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the owner can add images"})
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid multipart form"})
		return
	}
	files := form.File["images"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "At least one image file is required"})
		return
	}
	if property.ImageCount()+len(files) > h.cfg.MaxImagesPerProperty {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf(
			"property already has %d images, adding %d would exceed the limit of %d",
			property.ImageCount(), len(files), h.cfg.MaxImagesPerProperty)})
		return
	}

	maxBytes := int64(h.cfg.ImageMaxSizeMB) * 1024 * 1024
	stagingKeys := make([]string, 0, len(files))
	// Staged blobs from a batch that never makes it onto the queue have no
	// reaper, so every failure after the first Put must discard them.
	discardStaged := func() {
		if len(stagingKeys) == 0 {
			return
		}
		if err := h.blobs.Delete(context.WithoutCancel(c.Request.Context()), stagingKeys...); err != nil {
			h.log.Warn("failed to discard staged uploads",
				zap.Strings("keys", stagingKeys), zap.Error(err))
		}
	}
	for _, file := range files {
		if file.Size > maxBytes {
			discardStaged()
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf(
				"%s exceeds the maximum size of %dMB", file.Filename, h.cfg.ImageMaxSizeMB)})
			return
		}

		src, err := file.Open()
		if err != nil {
			discardStaged()
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read uploaded file"})
			return
		}
		data, err := io.ReadAll(src)
		src.Close()
		if err != nil {
			discardStaged()
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read uploaded file"})
			return
		}

		key := images.StagingKey()
		contentType := file.Header.Get("Content-Type")
		if err := h.blobs.Put(c.Request.Context(), key, data, contentType); err != nil {
			discardStaged()
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to stage upload"})
			return
		}
		stagingKeys = append(stagingKeys, key)
	}

	task, err := tasks.NewImageProcessTask(id.Hex(), stagingKeys)
	if err != nil {
		discardStaged()
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue image processing"})
		return
	}
	if _, err := h.taskClient.Enqueue(task); err != nil {
		discardStaged()
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue image processing"})
		return
	}

	h.log.Info("image batch staged",
		zap.String("propertyId", id.Hex()),
		zap.Int("count", len(stagingKeys)))
	c.JSON(http.StatusAccepted, gin.H{"queued": len(stagingKeys)})
}
