package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/generally23/hlguinee/internal/apperr"
	"github.com/generally23/hlguinee/internal/config"
	"github.com/generally23/hlguinee/internal/email"
	"github.com/generally23/hlguinee/internal/images"
	"github.com/generally23/hlguinee/internal/models"
	"github.com/generally23/hlguinee/internal/services"
	"github.com/generally23/hlguinee/internal/storage"
)

// Task types.
const (
	TypeEmailDelivery = "email:deliver"
	TypeImageProcess  = "image:process"
	TypeAvatarProcess = "avatar:process"
)

// QueueImages isolates image work from the rest of the background load.
const (
	QueueImages  = "images"
	QueueDefault = "default"
)

// --- Task Client (Enqueuing tasks) ---

func NewClient(rdb *redis.Client) *asynq.Client {
	return asynq.NewClient(asynq.RedisClientOpt{
		Addr:     rdb.Options().Addr,
		Password: rdb.Options().Password,
		DB:       rdb.Options().DB,
	})
}

// EmailTaskPayload is a fully rendered message awaiting delivery.
type EmailTaskPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func NewEmailDeliveryTask(to, subject, body string) (*asynq.Task, error) {
	payload, err := json.Marshal(EmailTaskPayload{To: to, Subject: subject, Body: body})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal email payload: %w", err)
	}
	return asynq.NewTask(TypeEmailDelivery, payload, asynq.Queue(QueueDefault)), nil
}

// ImageTaskPayload references one batch of staged property uploads. The raw
// bytes are parked in the blob store under the staging keys; the HTTP
// response has already gone out by the time this runs.
type ImageTaskPayload struct {
	PropertyID  string   `json:"property_id"`
	StagingKeys []string `json:"staging_keys"`
}

func NewImageProcessTask(propertyID string, stagingKeys []string) (*asynq.Task, error) {
	payload, err := json.Marshal(ImageTaskPayload{PropertyID: propertyID, StagingKeys: stagingKeys})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal image payload: %w", err)
	}
	return asynq.NewTask(TypeImageProcess, payload, asynq.Queue(QueueImages)), nil
}

// AvatarTaskPayload references one staged avatar upload.
type AvatarTaskPayload struct {
	AccountID  string `json:"account_id"`
	StagingKey string `json:"staging_key"`
}

func NewAvatarProcessTask(accountID, stagingKey string) (*asynq.Task, error) {
	payload, err := json.Marshal(AvatarTaskPayload{AccountID: accountID, StagingKey: stagingKey})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal avatar payload: %w", err)
	}
	return asynq.NewTask(TypeAvatarProcess, payload, asynq.Queue(QueueImages)), nil
}

// --- Task Server (Processing tasks) ---

// TaskProcessor handles the processing of tasks. It holds the dependencies
// the handlers need.
type TaskProcessor struct {
	cfg             *config.Config
	log             *zap.Logger
	blobs           storage.BlobStore
	pipeline        *images.Pipeline
	propertyService services.IPropertyService
	accountService  services.IAccountService
	emailSender     email.Sender
}

func NewTaskProcessor(
	cfg *config.Config,
	log *zap.Logger,
	blobs storage.BlobStore,
	pipeline *images.Pipeline,
	propertyService services.IPropertyService,
	accountService services.IAccountService,
	emailSender email.Sender,
) *TaskProcessor {
	return &TaskProcessor{
		cfg:             cfg,
		log:             log,
		blobs:           blobs,
		pipeline:        pipeline,
		propertyService: propertyService,
		accountService:  accountService,
		emailSender:     emailSender,
	}
}

// SetupServer configures an Asynq server and a mux with the handlers this
// run mode serves. The caller runs it; nil is returned for API-only mode.
func SetupServer(rdb *redis.Client, processor *TaskProcessor, isImageWorker, isBgWorker bool, log *zap.Logger) (*asynq.Server, *asynq.ServeMux) {
	if !isImageWorker && !isBgWorker {
		return nil, nil
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     rdb.Options().Addr,
			Password: rdb.Options().Password,
			DB:       rdb.Options().DB,
		},
		asynq.Config{
			Queues: map[string]int{
				QueueImages:  5,
				QueueDefault: 3,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Error("task failed",
					zap.String("type", task.Type()),
					zap.ByteString("payload", task.Payload()),
					zap.Error(err))
			}),
		},
	)

	mux := asynq.NewServeMux()
	if isBgWorker {
		mux.HandleFunc(TypeEmailDelivery, processor.HandleEmailDeliveryTask)
	}
	if isImageWorker {
		mux.HandleFunc(TypeImageProcess, processor.HandleImageProcessTask)
		mux.HandleFunc(TypeAvatarProcess, processor.HandleAvatarProcessTask)
	}
	return srv, mux
}

// --- Task Handlers ---

func (p *TaskProcessor) HandleEmailDeliveryTask(ctx context.Context, t *asynq.Task) error {
	var payload EmailTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal email task payload: %v: %w", err, asynq.SkipRetry)
	}

	from := p.cfg.SmtpFromAddress
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("To: %s\r\n", payload.To))
	sb.WriteString(fmt.Sprintf("From: %s\r\n", from))
	sb.WriteString(fmt.Sprintf("Subject: %s\r\n", payload.Subject))
	sb.WriteString("Date: " + time.Now().Format(time.RFC1123Z) + "\r\n")
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(payload.Body)
	sb.WriteString("\r\n")

	if err := p.emailSender.Send(ctx, []string{payload.To}, payload.Subject, []byte(sb.String())); err != nil {
		return fmt.Errorf("email delivery failed: %w", err)
	}
	return nil
}

// HandleImageProcessTask turns a batch of staged uploads into stored
// rendition sets and appends them to the property in one write.
//
// A bad image fails alone: it is logged, its staging blob removed, and the
// rest of the batch proceeds. Infrastructure errors abort with cleanup so
// the retry starts from intact staging blobs.
func (p *TaskProcessor) HandleImageProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload ImageTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal image task payload: %v: %w", err, asynq.SkipRetry)
	}
	propertyID, err := primitive.ObjectIDFromHex(payload.PropertyID)
	if err != nil {
		return fmt.Errorf("invalid property ID %q in payload: %w", payload.PropertyID, asynq.SkipRetry)
	}

	var (
		sets     []models.ImageVariantSet
		consumed []string
	)
	abort := func(cause error) error {
		for _, set := range sets {
			if err := p.blobs.Delete(context.WithoutCancel(ctx), set.AllNames()...); err != nil {
				p.log.Warn("failed to roll back rendition set",
					zap.String("sourceName", set.SourceName), zap.Error(err))
			}
		}
		return cause
	}

	for _, key := range payload.StagingKeys {
		data, _, err := p.blobs.Get(ctx, key)
		if err != nil {
			// Staged blob gone, e.g. a previous attempt consumed it.
			p.log.Warn("staged image missing, skipping",
				zap.String("stagingKey", key),
				zap.String("propertyId", payload.PropertyID),
				zap.Error(err))
			continue
		}

		set, err := p.pipeline.Process(ctx, data, p.cfg.PropertyImageWidths)
		if err != nil {
			if apperr.KindOf(err) == apperr.KindValidation {
				p.log.Warn("rejected property image",
					zap.String("stagingKey", key),
					zap.String("propertyId", payload.PropertyID),
					zap.String("reason", apperr.MessageOf(err)))
				consumed = append(consumed, key)
				continue
			}
			return abort(fmt.Errorf("failed to process staged image %s: %w", key, err))
		}
		sets = append(sets, *set)
		consumed = append(consumed, key)
	}

	if len(sets) > 0 {
		if err := p.propertyService.AppendImageSets(ctx, propertyID, sets); err != nil {
			if apperr.KindOf(err) == apperr.KindNotFound {
				// Property deleted while the batch was in flight.
				_ = abort(nil)
				p.cleanupStaging(ctx, payload.StagingKeys)
				return fmt.Errorf("property %s vanished mid-batch: %w", payload.PropertyID, asynq.SkipRetry)
			}
			return abort(fmt.Errorf("failed to persist rendition sets: %w", err))
		}
	}

	p.cleanupStaging(ctx, consumed)
	p.log.Info("image batch processed",
		zap.String("propertyId", payload.PropertyID),
		zap.Int("staged", len(payload.StagingKeys)),
		zap.Int("stored", len(sets)))
	return nil
}

// HandleAvatarProcessTask processes one staged avatar upload.
func (p *TaskProcessor) HandleAvatarProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload AvatarTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal avatar task payload: %v: %w", err, asynq.SkipRetry)
	}
	accountID, err := primitive.ObjectIDFromHex(payload.AccountID)
	if err != nil {
		return fmt.Errorf("invalid account ID %q in payload: %w", payload.AccountID, asynq.SkipRetry)
	}

	data, _, err := p.blobs.Get(ctx, payload.StagingKey)
	if err != nil {
		return fmt.Errorf("failed to fetch staged avatar %s: %w", payload.StagingKey, err)
	}

	set, err := p.pipeline.Process(ctx, data, p.cfg.AvatarImageWidths)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindValidation {
			p.log.Warn("rejected avatar image",
				zap.String("accountId", payload.AccountID),
				zap.String("reason", apperr.MessageOf(err)))
			p.cleanupStaging(ctx, []string{payload.StagingKey})
			return fmt.Errorf("avatar rejected: %w", asynq.SkipRetry)
		}
		return fmt.Errorf("failed to process avatar: %w", err)
	}

	if err := p.accountService.SetAvatar(ctx, accountID, set); err != nil {
		if delErr := p.blobs.Delete(context.WithoutCancel(ctx), set.AllNames()...); delErr != nil {
			p.log.Warn("failed to roll back avatar rendition set",
				zap.String("sourceName", set.SourceName), zap.Error(delErr))
		}
		return fmt.Errorf("failed to attach avatar to account %s: %w", payload.AccountID, err)
	}

	p.cleanupStaging(ctx, []string{payload.StagingKey})
	return nil
}

func (p *TaskProcessor) cleanupStaging(ctx context.Context, keys []string) {
	if len(keys) == 0 {
		return
	}
	if err := p.blobs.Delete(context.WithoutCancel(ctx), keys...); err != nil {
		p.log.Warn("failed to delete staging blobs", zap.Strings("keys", keys), zap.Error(err))
	}
}
