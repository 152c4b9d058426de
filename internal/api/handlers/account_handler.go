package handlers

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/generally23/hlguinee/internal/apperr"
	"github.com/generally23/hlguinee/internal/auth"
	"github.com/generally23/hlguinee/internal/config"
	"github.com/generally23/hlguinee/internal/images"
	"github.com/generally23/hlguinee/internal/models"
	"github.com/generally23/hlguinee/internal/services"
	"github.com/generally23/hlguinee/internal/storage"
	"github.com/generally23/hlguinee/internal/tasks"
)

// AccountHandler handles REST requests for accounts.
type AccountHandler struct {
	cfg            *config.Config
	accountService services.IAccountService
	blobs          storage.BlobStore
	taskClient     TaskEnqueuer
	log            *zap.Logger
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(cfg *config.Config, accountService services.IAccountService, blobs storage.BlobStore, taskClient TaskEnqueuer, log *zap.Logger) *AccountHandler {
	return &AccountHandler{
		cfg:            cfg,
		accountService: accountService,
		blobs:          blobs,
		taskClient:     taskClient,
		log:            log,
	}
}

type registerRequest struct {
	Name     string      `json:"name"`
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Role     models.Role `json:"role"`
}

// Register handles POST /v1/account/register.
func (h *AccountHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	account, err := h.accountService.Register(c.Request.Context(), req.Name, req.Email, req.Password, req.Role)
	if err != nil {
		respondError(c, err)
		return
	}

	h.enqueueVerificationEmail(c, account)
	c.JSON(http.StatusCreated, account)
}

// enqueueVerificationEmail is best-effort: registration never fails because
// the mail queue is down.
func (h *AccountHandler) enqueueVerificationEmail(c *gin.Context, account *models.Account) {
	token, err := auth.GenerateJWT(account.ID.Hex(), string(account.Role), h.cfg.JwtSecret, h.cfg.JwtTTL)
	if err != nil {
		h.log.Error("failed to sign verification token",
			zap.String("accountId", account.ID.Hex()), zap.Error(err))
		return
	}
	body := fmt.Sprintf(
		"Welcome to %s!\r\n\r\nConfirm your email by posting the token below to /v1/account/verify:\r\n\r\n%s\r\n",
		h.cfg.AppName, token)
	task, err := tasks.NewEmailDeliveryTask(account.Email, "Verify your account", body)
	if err == nil {
		_, err = h.taskClient.Enqueue(task)
	}
	if err != nil {
		h.log.Error("failed to enqueue verification email",
			zap.String("accountId", account.ID.Hex()), zap.Error(err))
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login handles POST /v1/account/login.
func (h *AccountHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	account, err := h.accountService.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		// Bad credentials are a 401 here, not the usual 403.
		if apperr.KindOf(err) == apperr.KindPermission {
			c.JSON(http.StatusUnauthorized, gin.H{"error": apperr.MessageOf(err)})
			return
		}
		respondError(c, err)
		return
	}

	token, err := auth.GenerateJWT(account.ID.Hex(), string(account.Role), h.cfg.JwtSecret, h.cfg.JwtTTL)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "account": account})
}

// Logout handles POST /v1/account/logout.
func (h *AccountHandler) Logout(c *gin.Context) {
	id, ok := requesterID(c)
	if !ok {
		return
	}
	if err := h.accountService.SignOut(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Me handles GET /v1/account/me.
func (h *AccountHandler) Me(c *gin.Context) {
	id, ok := requesterID(c)
	if !ok {
		return
	}
	account, err := h.accountService.FindByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}

// GetAccount handles GET /v1/account/:id, returning the public shape.
func (h *AccountHandler) GetAccount(c *gin.Context) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid account ID format"})
		return
	}
	account, err := h.accountService.FindByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.AccountPublic{
		ID:        account.ID,
		Name:      account.Name,
		Role:      account.Role,
		Verified:  account.Verified,
		AvatarURL: account.AvatarURL,
	})
}

type verifyRequest struct {
	Token string `json:"token"`
}

// Verify handles POST /v1/account/verify with the emailed token.
func (h *AccountHandler) Verify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "A verification token is required"})
		return
	}

	claims, err := auth.ValidateJWT(req.Token, h.cfg.JwtSecret)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or expired verification token"})
		return
	}
	id, err := primitive.ObjectIDFromHex(claims.AccountID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or expired verification token"})
		return
	}

	if err := h.accountService.MarkVerified(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"verified": true})
}

// UploadAvatar handles POST /v1/account/avatar (multipart, single file).
// The raw file is staged and processed by the image worker after the 202.
func (h *AccountHandler) UploadAvatar(c *gin.Context) {
	id, ok := requesterID(c)
	if !ok {
		return
	}

	file, err := c.FormFile("avatar")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "An avatar file is required"})
		return
	}
	if file.Size > int64(h.cfg.ImageMaxSizeMB)*1024*1024 {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf(
			"%s exceeds the maximum size of %dMB", file.Filename, h.cfg.ImageMaxSizeMB)})
		return
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read uploaded file"})
		return
	}
	data, err := io.ReadAll(src)
	src.Close()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read uploaded file"})
		return
	}

	key := images.StagingKey()
	if err := h.blobs.Put(c.Request.Context(), key, data, file.Header.Get("Content-Type")); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to stage upload"})
		return
	}

	task, err := tasks.NewAvatarProcessTask(id.Hex(), key)
	if err == nil {
		_, err = h.taskClient.Enqueue(task)
	}
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue avatar processing"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"queued": 1})
}
