package domain

import (
	"errors"
	"reflect"
	"testing"
)

func TestParseBatchStatusFromString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    BatchStatus
		wantErr bool
	}{
		{name: "valid uppercase", input: "TRIGGERED", want: BatchStatusTriggered},
		{name: "valid lowercase with spaces", input: " job_running ", want: BatchStatusJobRunning},
		{name: "invalid", input: "DONE", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseBatchStatusFromString(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("ParseBatchStatusFromString() error = %v, want ErrValidation", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("ParseBatchStatusFromString() unexpected error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("ParseBatchStatusFromString() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestBatchStatusCanTransitionTo(t *testing.T) {
	t.Parallel()

	allowed := map[BatchStatus][]BatchStatus{
		BatchStatusPending:    {BatchStatusTriggered},
		BatchStatusTriggered:  {BatchStatusJobRunning},
		BatchStatusJobRunning: {BatchStatusJobSucceeded, BatchStatusJobFailed},
	}

	all := []BatchStatus{
		BatchStatusPending,
		BatchStatusTriggered,
		BatchStatusJobRunning,
		BatchStatusJobSucceeded,
		BatchStatusJobFailed,
	}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, next := range allowed[from] {
				if next == to {
					want = true
				}
			}
			if got := from.CanTransitionTo(to); got != want {
				t.Fatalf("CanTransitionTo(%s -> %s) = %v, want %v", from, to, got, want)
			}
		}
	}

	if BatchStatusJobSucceeded.CanTransitionTo(BatchStatusPending) {
		t.Fatal("terminal status must not regress to PENDING")
	}
}

func TestBatchIsComplete(t *testing.T) {
	t.Parallel()

	b := Batch{
		BatchDate:       "2024-03-01",
		ExpectedMembers: []string{"accounts", "balances", "cards"},
		Arrived:         []string{"accounts", "balances"},
		Status:          BatchStatusPending,
	}

	if b.IsComplete() {
		t.Fatal("batch with a missing member must not be complete")
	}

	b.Arrived = append(b.Arrived, "cards")
	if !b.IsComplete() {
		t.Fatal("batch with all members arrived must be complete")
	}

	empty := Batch{Status: BatchStatusPending}
	if empty.IsComplete() {
		t.Fatal("batch without an expected set must not be complete")
	}
}

func TestBatchValidate(t *testing.T) {
	t.Parallel()

	base := Batch{
		BatchDate:       "2024-03-01",
		ExpectedMembers: []string{"accounts", "balances"},
		Status:          BatchStatusPending,
	}

	tests := []struct {
		name    string
		mutate  func(b *Batch)
		wantErr bool
	}{
		{name: "valid", mutate: func(b *Batch) {}},
		{name: "bad date", mutate: func(b *Batch) { b.BatchDate = "01/03/2024" }, wantErr: true},
		{name: "empty expected set", mutate: func(b *Batch) { b.ExpectedMembers = nil }, wantErr: true},
		{name: "duplicate member", mutate: func(b *Batch) { b.ExpectedMembers = []string{"accounts", "accounts"} }, wantErr: true},
		{name: "blank member", mutate: func(b *Batch) { b.ExpectedMembers = []string{"accounts", " "} }, wantErr: true},
		{name: "bad status", mutate: func(b *Batch) { b.Status = "DONE" }, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b := base
			b.ExpectedMembers = append([]string(nil), base.ExpectedMembers...)
			tt.mutate(&b)

			err := b.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("Validate() error = %v, want ErrValidation", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() unexpected error = %v", err)
			}
		})
	}
}

func TestNormalizeMembers(t *testing.T) {
	t.Parallel()

	got := NormalizeMembers([]string{" Cards ", "accounts", "ACCOUNTS", "", "balances"})
	want := []string{"accounts", "balances", "cards"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("NormalizeMembers() = %v, want %v", got, want)
	}
}
