package camunda

import (
	"errors"
	"testing"
	"time"

	"house-price-workers/internal/common/config"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingHandler struct {
	calls []int64
}

func (h *recordingHandler) Handle(_ worker.JobClient, job entities.Job) {
	h.calls = append(h.calls, job.Key)
}

func TestInstrumentCallsHandler(t *testing.T) {
	h := &recordingHandler{}
	wrapped := Instrument("predict-house-price", h, nil)

	job := entities.Job{ActivatedJob: &pb.ActivatedJob{Key: 42, Type: "predict-house-price"}}
	wrapped(nil, job)

	assert.Equal(t, []int64{42}, h.calls)
}

func TestStartWorkerDisabled(t *testing.T) {
	w := StartWorker(nil, "predict-house-price", config.WorkerConfig{Enabled: false}, &recordingHandler{}, nil, zap.NewNop())
	assert.Nil(t, w)
}

func TestBackoffCapsAtMaxDelay(t *testing.T) {
	rc := &RetryConfig{MaxRetries: 5, BaseDelay: time.Second, MaxDelay: 5 * time.Second}

	assert.Equal(t, time.Second, backoff(rc, 0))
	assert.Equal(t, 4*time.Second, backoff(rc, 2))
	assert.Equal(t, 5*time.Second, backoff(rc, 3))
	assert.Equal(t, 5*time.Second, backoff(rc, 62))
}

func TestIsRetryableZeebeError(t *testing.T) {
	assert.True(t, isRetryableZeebeError(errors.New("rpc error: code = Unavailable desc = connection refused")))
	assert.True(t, isRetryableZeebeError(errors.New("context deadline exceeded")))
	assert.False(t, isRetryableZeebeError(errors.New("rpc error: code = PermissionDenied")))
}

func TestMapZeebeError(t *testing.T) {
	err := mapZeebeError(errors.New("context deadline exceeded"), "topology", 3)
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "TIMEOUT_ERROR")
	assert.Contains(t, err.Error(), "after 4 attempts")

	err = mapZeebeError(errors.New("rpc error: code = Unauthenticated"), "topology", 0)
	assert.Contains(t, err.Error(), "AUTHENTICATION_ERROR")

	err = mapZeebeError(errors.New("something odd"), "topology", 0)
	assert.Contains(t, err.Error(), "EXTERNAL_SERVICE_ERROR")
}
