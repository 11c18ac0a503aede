package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/garyjia/expense-desk/internal/application/dispatcher"
	"github.com/garyjia/expense-desk/internal/application/port/mocks"
	"github.com/garyjia/expense-desk/internal/domain/entity"
	"github.com/garyjia/expense-desk/internal/domain/event"
)

func TestNotificationService_NotifySubmitted(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mocks.NewMockMessageSender(ctrl)

	var sent string
	sender.EXPECT().SendText(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, content string) error {
		sent = content
		return nil
	})

	svc := NewNotificationService(sender, &mockLogger{})
	err := svc.NotifySubmitted(context.Background(), &entity.Expense{
		ID:          "exp-1",
		Description: "Coffee",
		SubmittedBy: "Anonymous",
		Category:    "Other",
		Amount:      dec("12.5"),
	})
	require.NoError(t, err)

	assert.Contains(t, sent, "New expense submitted")
	assert.Contains(t, sent, "ID: exp-1")
	assert.Contains(t, sent, "Amount: 12.50")
	assert.NotContains(t, sent, "Organization:")
	assert.NotContains(t, sent, "Receipt:")
}

func TestNotificationService_NotifyProcessed(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mocks.NewMockMessageSender(ctrl)

	var sent string
	sender.EXPECT().SendText(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, content string) error {
		sent = content
		return nil
	})

	processedAt := time.Date(2024, 3, 16, 8, 0, 0, 0, time.UTC)
	svc := NewNotificationService(sender, &mockLogger{})
	err := svc.NotifyProcessed(context.Background(), &entity.Expense{
		ID:            "exp-1",
		ProcessedBy:   "Alice",
		AccountingRef: "ACC-7",
		ProcessedDate: &processedAt,
	})
	require.NoError(t, err)

	assert.Contains(t, sent, "Expense processed")
	assert.Contains(t, sent, "Processed by: Alice")
	assert.Contains(t, sent, "Accounting ref: ACC-7")
	assert.Contains(t, sent, "Processed at: 2024-03-16 08:00:00")
}

func TestNotificationService_SendFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mocks.NewMockMessageSender(ctrl)
	sender.EXPECT().SendText(gomock.Any(), gomock.Any()).Return(errors.New("rate limited"))

	svc := NewNotificationService(sender, &mockLogger{})
	err := svc.NotifySubmitted(context.Background(), &entity.Expense{ID: "exp-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")

	assert.Error(t, svc.NotifyProcessed(context.Background(), nil))
}

func TestNotificationService_Register(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mocks.NewMockMessageSender(ctrl)
	sender.EXPECT().SendText(gomock.Any(), gomock.Any()).Return(nil).Times(2)

	d := dispatcher.NewDispatcher()
	NewNotificationService(sender, &mockLogger{}).Register(d)

	assert.Equal(t, 1, d.HandlerCount(event.TypeExpenseSubmitted))
	assert.Equal(t, 1, d.HandlerCount(event.TypeExpenseProcessed))
	assert.Equal(t, 0, d.HandlerCount(event.TypeExpenseDeleted))

	expense := &entity.Expense{ID: "exp-1", Status: entity.StatusSubmitted}
	require.NoError(t, d.Dispatch(context.Background(), event.NewEvent(event.TypeExpenseSubmitted, expense)))
	require.NoError(t, d.Dispatch(context.Background(), event.NewEvent(event.TypeExpenseProcessed, expense)))
}

func TestReceiptCleaner_HandleDeleted(t *testing.T) {
	tests := []struct {
		name      string
		receipt   string
		deleteErr error
		expectDel bool
		wantErr   bool
	}{
		{name: "no receipt", receipt: ""},
		{name: "removes receipt", receipt: "1-abc.png", expectDel: true},
		{name: "already gone", receipt: "1-abc.png", expectDel: true, deleteErr: entity.ErrNotFound},
		{name: "storage failure", receipt: "1-abc.png", expectDel: true, deleteErr: errors.New("io"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			receipts := mocks.NewMockReceiptStorage(ctrl)
			if tt.expectDel {
				receipts.EXPECT().Delete(gomock.Any(), tt.receipt).Return(tt.deleteErr)
			}

			cleaner := NewReceiptCleaner(receipts, &mockLogger{})
			evt := event.NewEvent(event.TypeExpenseDeleted, &entity.Expense{ID: "exp-1"}).
				WithPayload(event.KeyReceiptFile, tt.receipt)

			err := cleaner.HandleDeleted(context.Background(), evt)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestReceiptCleaner_Register(t *testing.T) {
	ctrl := gomock.NewController(t)
	receipts := mocks.NewMockReceiptStorage(ctrl)

	d := dispatcher.NewDispatcher()
	NewReceiptCleaner(receipts, &mockLogger{}).Register(d)
	assert.Equal(t, 1, d.HandlerCount(event.TypeExpenseDeleted))
}
