package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/examprep/examprep-backend/internal/config"
	"github.com/examprep/examprep-backend/internal/events"
	"github.com/examprep/examprep-backend/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderAttemptCompleted(t *testing.T) {
	exam := &model.Exam{ID: uuid.New(), Title: "Geometry", Duration: 45}
	svc := NewNotificationService(newFakeExams(exam), &fakeNotifications{}, nopLog)

	// Event data arrives JSON-decoded from the bus.
	var data map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{"score":7.5,"totalMarks":10,"autoSubmitted":true,"needsReview":false}`), &data))

	ns, err := svc.Render(context.Background(), events.Event{
		Type:       config.EventKey.AttemptCompleted,
		UserID:     studentID,
		ExamID:     exam.ID,
		OccurredAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Data:       data,
	})
	require.NoError(t, err)
	require.Len(t, ns, 2)

	assert.Equal(t, ChannelInApp, ns[0].Channel)
	assert.Equal(t, ChannelEmail, ns[1].Channel)
	assert.Equal(t, "Your result for Geometry", ns[0].Subject)
	assert.Contains(t, ns[0].Body, "You scored 7.5 out of 10 on Geometry.")
	assert.Contains(t, ns[0].Body, "submitted automatically")
	assert.Equal(t, studentID, ns[0].UserID)
}

func TestRenderPendingReviewAndStarted(t *testing.T) {
	exam := &model.Exam{ID: uuid.New(), Title: "History", Duration: 30}
	svc := NewNotificationService(newFakeExams(exam), &fakeNotifications{}, nopLog)
	ctx := context.Background()

	ns, err := svc.Render(ctx, events.Event{
		Type:   config.EventKey.AttemptCompleted,
		ExamID: exam.ID,
		Data:   map[string]any{"needsReview": true, "examTitle": "History"},
	})
	require.NoError(t, err)
	assert.Contains(t, ns[0].Body, "awaiting review")

	ns, err = svc.Render(ctx, events.Event{
		Type:   config.EventKey.AttemptStarted,
		ExamID: exam.ID,
		Data:   map[string]any{"attemptNumber": float64(2)},
	})
	require.NoError(t, err)
	require.Len(t, ns, 1)
	assert.Equal(t, "Attempt 2 started", ns[0].Subject)
	assert.Contains(t, ns[0].Body, "30 minutes")
}

func TestRenderIgnoresUnknownEvents(t *testing.T) {
	svc := NewNotificationService(newFakeExams(), &fakeNotifications{}, nopLog)

	ns, err := svc.Render(context.Background(), events.Event{Type: "exam.deleted"})
	require.NoError(t, err)
	assert.Empty(t, ns)
}

func TestSaveAndListNotifications(t *testing.T) {
	store := &fakeNotifications{}
	svc := NewNotificationService(newFakeExams(), store, nopLog)
	ctx := context.Background()

	require.NoError(t, svc.Save(ctx, []model.Notification{
		{UserID: studentID, Subject: "a"},
		{UserID: studentID + 1, Subject: "b"},
		{UserID: studentID, Subject: "c"},
	}))

	mine, err := svc.ListMine(ctx, studentID, 0)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "c", mine[0].Subject)

	require.NoError(t, svc.MarkRead(ctx, studentID, mine[0].ID))
	assert.Error(t, svc.MarkRead(ctx, studentID, 2), "cannot mark another user's notification")
}
