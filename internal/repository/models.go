package repository

import (
	"strings"
	"time"

	"github.com/kursadbilgin/ingest-gate/internal/domain"
)

const memberSeparator = ","

// BatchModel is the persistence model for the batches table. The expected
// member set is frozen at creation as a sorted comma-joined list.
type BatchModel struct {
	ID              string             `gorm:"type:uuid;primaryKey"`
	BatchDate       string             `gorm:"type:varchar(10);not null;uniqueIndex:idx_batches_batch_date"`
	ExpectedMembers string             `gorm:"type:text;not null"`
	Status          domain.BatchStatus `gorm:"type:varchar(20);not null"`
	JobHandle       *string            `gorm:"type:varchar(255)"`
	TriggeredAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (BatchModel) TableName() string {
	return "batches"
}

// ArrivalModel is the persistence model for batch_arrivals. The unique
// (batch_id, member_key) index makes duplicate deliveries no-ops.
type ArrivalModel struct {
	ID          string `gorm:"type:uuid;primaryKey"`
	BatchID     string `gorm:"type:uuid;not null;uniqueIndex:idx_arrivals_batch_member"`
	MemberKey   string `gorm:"type:varchar(100);not null;uniqueIndex:idx_arrivals_batch_member"`
	ArtifactRef string `gorm:"type:varchar(1024);not null"`
	CreatedAt   time.Time
}

func (ArrivalModel) TableName() string {
	return "batch_arrivals"
}

func batchModelFromDomain(b *domain.Batch) *BatchModel {
	if b == nil {
		return nil
	}

	return &BatchModel{
		ID:              b.ID,
		BatchDate:       b.BatchDate,
		ExpectedMembers: strings.Join(b.ExpectedMembers, memberSeparator),
		Status:          b.Status,
		JobHandle:       b.JobHandle,
		TriggeredAt:     b.TriggeredAt,
		CreatedAt:       b.CreatedAt,
		UpdatedAt:       b.UpdatedAt,
	}
}

func batchModelToDomain(m *BatchModel, arrived []string) *domain.Batch {
	if m == nil {
		return nil
	}

	var expected []string
	if m.ExpectedMembers != "" {
		expected = strings.Split(m.ExpectedMembers, memberSeparator)
	}

	return &domain.Batch{
		ID:              m.ID,
		BatchDate:       m.BatchDate,
		ExpectedMembers: expected,
		Arrived:         arrived,
		Status:          m.Status,
		JobHandle:       m.JobHandle,
		TriggeredAt:     m.TriggeredAt,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func arrivalModelFromDomain(a *domain.Arrival) *ArrivalModel {
	if a == nil {
		return nil
	}

	return &ArrivalModel{
		ID:          a.ID,
		BatchID:     a.BatchID,
		MemberKey:   a.MemberKey,
		ArtifactRef: a.ArtifactRef,
		CreatedAt:   a.CreatedAt,
	}
}

func arrivalModelToDomain(m *ArrivalModel) *domain.Arrival {
	if m == nil {
		return nil
	}

	return &domain.Arrival{
		ID:          m.ID,
		BatchID:     m.BatchID,
		MemberKey:   m.MemberKey,
		ArtifactRef: m.ArtifactRef,
		CreatedAt:   m.CreatedAt,
	}
}
