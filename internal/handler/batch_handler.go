package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/ingest-gate/internal/domain"
	"github.com/kursadbilgin/ingest-gate/internal/queue"
	"github.com/kursadbilgin/ingest-gate/internal/store"
)

type BatchService interface {
	GetStatus(ctx context.Context, batchDate string) (*domain.Batch, error)
	ExpectedMembers() []string
}

type TriggerService interface {
	Start(ctx context.Context, batchID string) (string, error)
}

type BatchHandler struct {
	batches   BatchService
	trigger   TriggerService
	publisher queue.Publisher
}

func NewBatchHandler(batches BatchService, trigger TriggerService, publisher queue.Publisher) (*BatchHandler, error) {
	if batches == nil {
		return nil, fmt.Errorf("batch service is required")
	}
	if trigger == nil {
		return nil, fmt.Errorf("trigger service is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("queue publisher is required")
	}
	return &BatchHandler{batches: batches, trigger: trigger, publisher: publisher}, nil
}

func RegisterBatchRoutes(router fiber.Router, batches BatchService, trigger TriggerService, publisher queue.Publisher) error {
	h, err := NewBatchHandler(batches, trigger, publisher)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/arrivals", h.AnnounceArrival)
	v1.Get("/batches/:batchDate", h.GetBatch)
	v1.Post("/batches/:batchId/retry-trigger", h.RetryTrigger)

	return nil
}

type announceArrivalRequest struct {
	BatchDate   string `json:"batchDate"`
	MemberKey   string `json:"memberKey"`
	ArtifactRef string `json:"artifactRef"`
}

type announceArrivalResponse struct {
	BatchDate   string `json:"batchDate"`
	MemberKey   string `json:"memberKey"`
	ArtifactRef string `json:"artifactRef"`
	Queued      bool   `json:"queued"`
}

type batchResponse struct {
	BatchID         string     `json:"batchId"`
	BatchDate       string     `json:"batchDate"`
	Status          string     `json:"status"`
	ExpectedMembers []string   `json:"expectedMembers"`
	ArrivedMembers  []string   `json:"arrivedMembers"`
	MissingMembers  []string   `json:"missingMembers"`
	Complete        bool       `json:"complete"`
	JobHandle       *string    `json:"jobHandle,omitempty"`
	TriggeredAt     *time.Time `json:"triggeredAt,omitempty"`
}

type retryTriggerResponse struct {
	BatchID   string `json:"batchId"`
	JobHandle string `json:"jobHandle"`
}

// AnnounceArrival enqueues an arrival notification for ingestion. The member
// file must already be in the artifact store; when artifactRef is omitted it
// defaults to the raw namespace key for the batch date and member.
func (h *BatchHandler) AnnounceArrival(c *fiber.Ctx) error {
	var req announceArrivalRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	msg := queue.ArrivalMessage{
		BatchDate:     strings.TrimSpace(req.BatchDate),
		MemberKey:     strings.ToLower(strings.TrimSpace(req.MemberKey)),
		ArtifactRef:   strings.TrimSpace(req.ArtifactRef),
		CorrelationID: requestCorrelationID(c),
	}
	if msg.ArtifactRef == "" && msg.BatchDate != "" && msg.MemberKey != "" {
		msg.ArtifactRef = store.RawKey(msg.BatchDate, msg.MemberKey)
	}
	if err := msg.Validate(); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	if err := h.publisher.Publish(c.Context(), queue.ArrivalsQueue, msg); err != nil {
		return fmt.Errorf("failed to enqueue arrival: %w", err)
	}

	return c.Status(fiber.StatusAccepted).JSON(announceArrivalResponse{
		BatchDate:   msg.BatchDate,
		MemberKey:   msg.MemberKey,
		ArtifactRef: msg.ArtifactRef,
		Queued:      true,
	})
}

// GetBatch returns the completeness snapshot for one batch date. An unknown
// date with no arrivals yet reads as an empty PENDING batch rather than 404,
// so dashboards can poll before the first file lands.
func (h *BatchHandler) GetBatch(c *fiber.Ctx) error {
	batchDate := strings.TrimSpace(c.Params("batchDate"))
	if _, err := time.Parse(domain.BatchDateLayout, batchDate); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("invalid batch date %q", batchDate))
	}

	batch, err := h.batches.GetStatus(c.Context(), batchDate)
	if errors.Is(err, domain.ErrNotFound) {
		expected := h.batches.ExpectedMembers()
		return c.Status(fiber.StatusOK).JSON(batchResponse{
			BatchDate:       batchDate,
			Status:          domain.BatchStatusPending.String(),
			ExpectedMembers: expected,
			ArrivedMembers:  []string{},
			MissingMembers:  expected,
		})
	}
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toBatchResponse(batch))
}

// RetryTrigger re-drives the transform launch for a completed batch whose
// original launch failed. Idempotent: a batch that already has a job returns
// the stored handle.
func (h *BatchHandler) RetryTrigger(c *fiber.Ctx) error {
	batchID := strings.TrimSpace(c.Params("batchId"))
	if batchID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "batch id is required")
	}

	handle, err := h.trigger.Start(c.Context(), batchID)
	if err != nil {
		if errors.Is(err, domain.ErrTriggerFailed) {
			return fiber.NewError(fiber.StatusBadGateway, err.Error())
		}
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(retryTriggerResponse{
		BatchID:   batchID,
		JobHandle: handle,
	})
}

func toBatchResponse(batch *domain.Batch) batchResponse {
	arrived := make(map[string]struct{}, len(batch.Arrived))
	for _, member := range batch.Arrived {
		arrived[member] = struct{}{}
	}
	missing := make([]string, 0)
	for _, member := range batch.ExpectedMembers {
		if _, ok := arrived[member]; !ok {
			missing = append(missing, member)
		}
	}

	arrivedMembers := batch.Arrived
	if arrivedMembers == nil {
		arrivedMembers = []string{}
	}

	return batchResponse{
		BatchID:         batch.ID,
		BatchDate:       batch.BatchDate,
		Status:          batch.Status.String(),
		ExpectedMembers: batch.ExpectedMembers,
		ArrivedMembers:  arrivedMembers,
		MissingMembers:  missing,
		Complete:        batch.IsComplete(),
		JobHandle:       batch.JobHandle,
		TriggeredAt:     batch.TriggeredAt,
	}
}

func requestCorrelationID(c *fiber.Ctx) string {
	if value := strings.TrimSpace(c.Get(fiber.HeaderXRequestID)); value != "" {
		return value
	}
	if value, ok := c.Locals("requestid").(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrUnknownMember):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	default:
		return err
	}
}
