//go:build e2e

// test/e2e/e2e_test.go
package e2e

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	awsnotify "house-price-workers/internal/common/aws"
	"house-price-workers/internal/common/camunda"
	"house-price-workers/internal/common/config"
	"house-price-workers/internal/common/logger"
	"house-price-workers/internal/history"
	"house-price-workers/internal/pricing"

	predicthouseprice "house-price-workers/internal/workers/valuation/predict-house-price"
	sendvaluationreport "house-price-workers/internal/workers/valuation/send-valuation-report"
)

const processID = "house-valuation"

var (
	zeebeClient zbc.Client
	zapLog      *zap.Logger
)

func TestMain(m *testing.M) {
	address := os.Getenv("E2E_ZEEBE_ADDRESS")
	if address == "" {
		address = "localhost:26500"
	}

	var err error
	zeebeClient, err = zbc.NewClient(&zbc.ClientConfig{
		GatewayAddress:         address,
		UsePlaintextConnection: true,
	})
	if err != nil {
		panic("failed to create Zeebe client: " + err.Error())
	}

	zapLog, _ = zap.NewDevelopment()

	code := m.Run()

	zeebeClient.Close()
	os.Exit(code)
}

// recordingSES captures every email instead of calling AWS.
type recordingSES struct {
	mu   sync.Mutex
	sent []*ses.SendEmailInput
}

func (r *recordingSES) SendEmail(_ context.Context, params *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, params)
	return &ses.SendEmailOutput{MessageId: aws.String("e2e-msg")}, nil
}

func (r *recordingSES) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func TestHouseValuationProcess(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if _, err := zeebeClient.NewTopologyCommand().Send(ctx); err != nil {
		t.Skipf("Zeebe gateway not reachable: %v", err)
	}

	deployProcess(t, ctx)

	mailbox := &recordingSES{}
	workers := startWorkers(t, mailbox)
	defer func() {
		for _, jw := range workers {
			jw.Close()
			jw.AwaitClose()
		}
	}()

	t.Run("valuation delivered", func(t *testing.T) {
		vars := runInstance(t, ctx, map[string]interface{}{
			"requestId": "e2e-1",
			"email":     "buyer@example.com",
			"sqft":      1500,
			"bed":       3,
			"bath":      2,
			"citi":      "Imperial, CA",
			"street":    "2304 Clark Road",
			"mainroad":  "Yes",
			"basement":  "No",
		})

		assert.Equal(t, "$379,750", vars["formattedPrice"])
		assert.Equal(t, "linear-regression", vars["model"])
		assert.Equal(t, "USD", vars["currency"])
		assert.NotEmpty(t, vars["valuationId"])
		assert.Equal(t, sendvaluationreport.StatusSent, vars["status"])
		assert.Equal(t, "e2e-msg", vars["emailMessageId"])
		assert.Equal(t, 1, mailbox.count())
	})

	t.Run("invalid features end in rejection", func(t *testing.T) {
		vars := runInstance(t, ctx, map[string]interface{}{
			"requestId": "e2e-2",
			"email":     "buyer@example.com",
			"sqft":      1500,
			"bed":       -1,
		})

		assert.NotContains(t, vars, "valuationId")
		assert.NotContains(t, vars, "status")
	})
}

func deployProcess(t *testing.T, ctx context.Context) {
	t.Helper()

	path := filepath.Join("..", "..", "bpmn", "house-valuation.bpmn")
	_, err := zeebeClient.NewDeployResourceCommand().AddResourceFile(path).Send(ctx)
	require.NoError(t, err, "deploying %s", path)
}

func startWorkers(t *testing.T, mailbox *recordingSES) []worker.JobWorker {
	t.Helper()

	log := logger.NewTestLogger(t)
	store := pricing.NewStore(pricing.StoreOptions{
		ManifestPath: filepath.Join("..", "..", "configs", "models", "manifest.json"),
		Logger:       log,
	})
	require.NoError(t, store.Warm(context.Background()))

	predictor := pricing.NewPredictor(pricing.PredictorOptions{
		Source:           store,
		Currency:         pricing.USD,
		InferenceTimeout: 2 * time.Second,
		Logger:           log,
	})
	notifier := awsnotify.NewNotifier(mailbox, nil, "valuations@example.com", "")

	wcfg := config.WorkerConfig{Enabled: true, MaxJobsActive: 5, Timeout: 30000}

	predict := predicthouseprice.NewHandler(predicthouseprice.DefaultConfig(), predictor, history.Nop{}, log)
	report := sendvaluationreport.NewHandler(sendvaluationreport.DefaultConfig(), notifier, nil, log)

	return []worker.JobWorker{
		camunda.StartWorker(zeebeClient, predicthouseprice.TaskType, wcfg, predict, nil, zapLog),
		camunda.StartWorker(zeebeClient, sendvaluationreport.TaskType, wcfg, report, nil, zapLog),
	}
}

func runInstance(t *testing.T, ctx context.Context, vars map[string]interface{}) map[string]interface{} {
	t.Helper()

	cmd, err := zeebeClient.NewCreateInstanceCommand().
		BPMNProcessId(processID).
		LatestVersion().
		VariablesFromMap(vars)
	require.NoError(t, err)

	resp, err := cmd.WithResult().Send(ctx)
	require.NoError(t, err)

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(resp.GetVariables()), &result))
	return result
}
