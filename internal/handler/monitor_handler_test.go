package handler

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/examprep/examprep-backend/internal/config"
	"github.com/examprep/examprep-backend/internal/model"
	"github.com/examprep/examprep-backend/internal/repository"
	"github.com/examprep/examprep-backend/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// monitorExams serves GetByID only; the monitor never calls anything else.
type monitorExams struct {
	service.ExamStore
	exam *model.Exam
}

func (m monitorExams) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	if id != m.exam.ID {
		return nil, repository.ErrNotFound
	}
	return m.exam, nil
}

type monitorLive struct{ attempts []repository.LiveAttempt }

func (m monitorLive) ListLiveAttempts(ctx context.Context, examID uuid.UUID) ([]repository.LiveAttempt, error) {
	return m.attempts, nil
}

// sseData yields the payload of every data line of an event stream.
func sseData(body *bufio.Scanner) <-chan string {
	out := make(chan string, 16)
	go func() {
		defer close(out)
		for body.Scan() {
			if line := body.Text(); strings.HasPrefix(line, "data:") {
				out <- strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			}
		}
	}()
	return out
}

func nextData(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case d, ok := <-ch:
		require.True(t, ok, "stream closed")
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
		return ""
	}
}

func TestMonitorStreamsSnapshotThenChanges(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	exam := &model.Exam{ID: uuid.New(), Title: "Biology Mock", TotalQuestions: 20}
	live := monitorLive{attempts: []repository.LiveAttempt{{AttemptID: uuid.New(), UserID: 7, Name: "Ada", AnsweredCount: 4}}}
	svc := service.NewMonitorService(monitorExams{exam: exam}, live, rdb, zerolog.Nop())

	r := gin.New()
	r.GET("/exams/:exam_id/monitor", NewMonitorHandler(svc, zerolog.Nop()).MonitorExamSSE)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/exams/"+exam.ID.String()+"/monitor", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := sseData(bufio.NewScanner(resp.Body))

	snapshot := nextData(t, events)
	assert.Contains(t, snapshot, `"type":"snapshot"`)
	assert.Contains(t, snapshot, `"totalQuestions":20`)
	assert.Contains(t, snapshot, `"name":"Ada"`)

	channel := config.CacheKey.ExamMonitorChannel(exam.ID.String())
	require.Eventually(t, func() bool {
		return mr.PubSubNumSub(channel)[channel] == 1
	}, 2*time.Second, 5*time.Millisecond)

	svc.AttemptChanged(context.Background(), exam.ID)

	change := nextData(t, events)
	assert.Contains(t, change, `"type":"attempt_changed"`)
	assert.Contains(t, change, exam.ID.String())
}

func TestMonitorUnknownExam(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	exam := &model.Exam{ID: uuid.New()}
	svc := service.NewMonitorService(monitorExams{exam: exam}, monitorLive{}, rdb, zerolog.Nop())
	r := gin.New()
	r.GET("/exams/:exam_id/monitor", NewMonitorHandler(svc, zerolog.Nop()).MonitorExamSSE)

	w, env := send(t, r, http.MethodGet, "/exams/"+uuid.NewString()+"/monitor", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}
