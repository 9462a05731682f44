package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/hrconsult-assistant/internal/config"
	"github.com/wolfman30/hrconsult-assistant/internal/conversation"
	"github.com/wolfman30/hrconsult-assistant/internal/notify"
	"github.com/wolfman30/hrconsult-assistant/internal/session"
	"github.com/wolfman30/hrconsult-assistant/pkg/logging"
)

type cannedCompletion struct{}

func (cannedCompletion) Complete(context.Context, conversation.CompletionRequest) (conversation.CompletionResult, error) {
	return conversation.CompletionResult{Text: "We help with payroll.", Tokens: 4}, nil
}

func (cannedCompletion) Stream(_ context.Context, _ conversation.CompletionRequest, onFragment func(string)) (conversation.CompletionResult, error) {
	onFragment("We help with payroll.")
	return conversation.CompletionResult{Text: "We help with payroll.", Tokens: 4}, nil
}

type silentExtraction struct{}

func (silentExtraction) Complete(context.Context, conversation.LLMRequest) (conversation.LLMResponse, error) {
	return conversation.LLMResponse{Text: "{}"}, nil
}

func testConfig() *appconfig.Config {
	return &appconfig.Config{
		SessionBackend:   "memory",
		SessionTTL:       time.Hour,
		OpenAIModel:      "gpt-4o-mini",
		MaxToolRounds:    2,
		HistoryWindow:    10,
		CaptureWorkers:   1,
		CaptureQueueSize: 4,
		PaymentCurrency:  "INR",
		BusinessTimezone: "Asia/Kolkata",
	}
}

func buildTestApp(t *testing.T, cfg *appconfig.Config) *App {
	t.Helper()
	app, err := Build(context.Background(), cfg, Options{
		Registerer: prometheus.NewRegistry(),
		Completion: cannedCompletion{},
		Extraction: silentExtraction{},
	}, logging.New("error"))
	require.NoError(t, err)
	app.Start(context.Background())
	t.Cleanup(app.Close)
	return app
}

func TestBuildRequiresConfig(t *testing.T) {
	_, err := Build(context.Background(), nil, Options{}, logging.New("error"))
	require.Error(t, err)
}

func TestBuildInMemoryServesChat(t *testing.T) {
	app := buildTestApp(t, testConfig())

	rr := httptest.NewRecorder()
	app.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	app.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/chat/sessions/s-1/messages", strings.NewReader(`{"message":"Do you do payroll?"}`)))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), "We help with payroll.")
}

func TestBuildWithoutGatewayHidesPayments(t *testing.T) {
	app := buildTestApp(t, testConfig())

	rr := httptest.NewRecorder()
	app.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/payments/orders", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = httptest.NewRecorder()
	app.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/leads", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code, "admin routes need a jwt secret")
}

func TestBuildWithGatewayRejectsTamperedSignature(t *testing.T) {
	cfg := testConfig()
	cfg.RazorpayKeyID = "rzp_test_key"
	cfg.RazorpayKeySecret = "test_secret"
	cfg.RazorpayBaseURL = "http://127.0.0.1:1"
	app := buildTestApp(t, cfg)

	body := `{"razorpay_order_id":"order_1","razorpay_payment_id":"pay_1","razorpay_signature":"deadbeef"}`
	rr := httptest.NewRecorder()
	app.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/payments/verify", strings.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), `"verified":false`)
}

func TestBuildSessionBackend(t *testing.T) {
	logger := logging.New("error")

	t.Run("memory by default", func(t *testing.T) {
		store, log := BuildSessionBackend(testConfig(), nil, logger)
		defer store.(*session.MemoryStore).Close()
		assert.IsType(t, &conversation.MemoryLog{}, log)
	})

	t.Run("redis requested but unavailable", func(t *testing.T) {
		cfg := testConfig()
		cfg.SessionBackend = "redis"
		cfg.RedisAddr = "127.0.0.1:1"
		store, _ := BuildSessionBackend(cfg, nil, logger)
		mem, ok := store.(*session.MemoryStore)
		require.True(t, ok)
		mem.Close()
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := testConfig()
		cfg.SessionBackend = "redis"
		cfg.RedisAddr = mr.Addr()
		client := BuildRedisClient(context.Background(), cfg, logger, true)
		require.NotNil(t, client)
		defer client.Close()

		store, log := BuildSessionBackend(cfg, client, logger)
		assert.IsType(t, &session.RedisStore{}, store)
		assert.IsType(t, &conversation.RedisLog{}, log)
	})
}

func TestBuildRedisClientUnreachableReturnsNil(t *testing.T) {
	cfg := testConfig()
	cfg.RedisAddr = "127.0.0.1:1"
	assert.Nil(t, BuildRedisClient(context.Background(), cfg, logging.New("error"), true))
}

func TestBuildEmailSender(t *testing.T) {
	logger := logging.New("error")

	cfg := testConfig()
	assert.IsType(t, &notify.LogSender{}, BuildEmailSender(context.Background(), cfg, logger))

	cfg.EmailProvider = "sendgrid"
	assert.IsType(t, &notify.LogSender{}, BuildEmailSender(context.Background(), cfg, logger), "no api key")

	cfg.SendGridAPIKey = "SG.test"
	cfg.EmailFromAddress = "bot@hrconsult.example"
	assert.IsType(t, &notify.SendGridSender{}, BuildEmailSender(context.Background(), cfg, logger))
}

func TestBuildExtractionClient(t *testing.T) {
	logger := logging.New("error")

	cfg := testConfig()
	client, err := BuildExtractionClient(context.Background(), cfg, logger)
	require.NoError(t, err)
	assert.IsType(t, &conversation.OpenAILLMClient{}, client)

	cfg.ExtractionFallback = "bedrock"
	client, err = BuildExtractionClient(context.Background(), cfg, logger)
	require.NoError(t, err)
	assert.IsType(t, &conversation.OpenAILLMClient{}, client, "bedrock without a model id keeps primary only")

	cfg.ExtractionFallback = "gemini"
	_, err = BuildExtractionClient(context.Background(), cfg, logger)
	require.Error(t, err)

	cfg.ExtractionFallback = "carrier-pigeon"
	_, err = BuildExtractionClient(context.Background(), cfg, logger)
	require.Error(t, err)
}

func TestLoadLocationFallsBackToUTC(t *testing.T) {
	logger := logging.New("error")
	assert.Equal(t, time.UTC, loadLocation("Mars/Olympus", logger))
	assert.Equal(t, time.UTC, loadLocation("", logger))
	assert.Equal(t, "Asia/Kolkata", loadLocation("Asia/Kolkata", logger).String())
}
