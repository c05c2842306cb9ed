package pipeline

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"appforge/internal/broker"
	"appforge/internal/bundle"
	"appforge/internal/client"
	"appforge/internal/config"
	"appforge/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient scripts a sequence of Complete outcomes.
type fakeClient struct {
	responses []fakeResponse
	calls     int
}

type fakeResponse struct {
	text string
	err  error
}

func (f *fakeClient) Complete(ctx context.Context, messages []client.Message) (string, error) {
	resp := f.responses[f.calls%len(f.responses)]
	f.calls++
	return resp.text, resp.err
}

func (f *fakeClient) Model() string { return "fake-model" }
func (f *fakeClient) Close() error  { return nil }

// transientErr satisfies net.Error, so the retry loop treats it as a
// recoverable network failure.
type transientErr struct{}

func (transientErr) Error() string   { return "connection refused" }
func (transientErr) Timeout() bool   { return false }
func (transientErr) Temporary() bool { return true }

var _ net.Error = transientErr{}

const goodResponse = "```json\n{\"index.html\": \"<h1>generated</h1>\"}\n```"

// encryptTestEnvelope builds a demo-key envelope the way the
// provisioning service does.
func encryptTestEnvelope(t *testing.T, psk, plaintext string) string {
	t.Helper()

	key := sha256.Sum256([]byte(psk))
	block, err := aes.NewCipher(key[:])
	require.NoError(t, err)

	pad := aes.BlockSize - len(plaintext)%aes.BlockSize
	padded := append([]byte(plaintext), make([]byte, pad)...)
	for i := len(plaintext); i < len(padded); i++ {
		padded[i] = byte(pad)
	}

	iv := make([]byte, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)
	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(ciphertext)
}

type fixture struct {
	pipe   *Pipeline
	broker *broker.Broker
	mat    *bundle.Materializer
	client *fakeClient
}

// newFixture wires a pipeline against a fake provisioning service and a
// scripted completion client.
func newFixture(t *testing.T, responses ...fakeResponse) *fixture {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/register-device":
			json.NewEncoder(w).Encode(map[string]string{"deviceId": "dev-test"})
		case "/api/get-api-key":
			json.NewEncoder(w).Encode(map[string]string{
				"encryptedKey": encryptTestEnvelope(t, "test-psk", "sk-demo"),
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	cfg := config.DefaultConfig()
	cfg.API.Provider = config.ProviderHosted
	cfg.API.Retry.MaxAttempts = 3
	cfg.API.Retry.RetryDelay = time.Millisecond

	st := store.Open(t.TempDir())
	br := broker.New(st, srv.URL, 5, broker.WithSecrets("test-psk", "test-secret"))
	mat, err := bundle.New(bundle.Config{Root: t.TempDir()})
	require.NoError(t, err)

	fake := &fakeClient{responses: responses}
	pipe := New(cfg, br, mat, WithClientFactory(
		func(ctx context.Context, cfg *config.Config, credential string) (client.Client, error) {
			require.NotEmpty(t, credential)
			return fake, nil
		}))
	return &fixture{pipe: pipe, broker: br, mat: mat, client: fake}
}

func TestGenerateHappyPath(t *testing.T) {
	f := newFixture(t, fakeResponse{text: goodResponse})

	result, err := f.pipe.Generate(context.Background(), "Timer", "a timer app")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Attempts)
	assert.True(t, result.UsedDemoKey)
	assert.False(t, result.Fallback)
	assert.Equal(t, StateDone, f.pipe.State())

	files, err := f.mat.Files(result.Info.ID)
	require.NoError(t, err)
	assert.Equal(t, "<h1>generated</h1>", files["index.html"])
}

func TestGenerateRetriesTransientThenSucceeds(t *testing.T) {
	f := newFixture(t,
		fakeResponse{err: transientErr{}},
		fakeResponse{err: transientErr{}},
		fakeResponse{text: goodResponse},
	)

	result, err := f.pipe.Generate(context.Background(), "Timer", "a timer app")
	require.NoError(t, err)
	assert.Equal(t, 3, result.Attempts)

	// Quota charged exactly once despite three attempts.
	status, err := f.broker.Quota()
	require.NoError(t, err)
	assert.Equal(t, 1, status.Used)
}

func TestGenerateTransientExhaustsAttempts(t *testing.T) {
	f := newFixture(t, fakeResponse{err: transientErr{}})

	_, err := f.pipe.Generate(context.Background(), "Timer", "a timer app")
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, FailureNetwork, perr.Kind)
	assert.Equal(t, 3, f.client.calls)
	assert.Equal(t, StateFailed, f.pipe.State())

	// Failed runs never charge the quota.
	status, qerr := f.broker.Quota()
	require.NoError(t, qerr)
	assert.Equal(t, 0, status.Used)
}

func TestGenerateRateLimitIsTerminal(t *testing.T) {
	f := newFixture(t, fakeResponse{err: &client.APIError{StatusCode: 429, Message: "slow down"}})

	_, err := f.pipe.Generate(context.Background(), "Timer", "a timer app")
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, FailureRateLimited, perr.Kind)
	assert.Equal(t, 1, f.client.calls, "status errors must not be retried")
}

func TestGenerateTimeoutClassified(t *testing.T) {
	f := newFixture(t, fakeResponse{err: &client.APIError{StatusCode: 504, Message: "gateway timeout"}})

	_, err := f.pipe.Generate(context.Background(), "Timer", "a timer app")
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, FailureTimeout, perr.Kind)
}

func TestGenerateUserKeyPreferred(t *testing.T) {
	f := newFixture(t, fakeResponse{text: goodResponse})
	t.Setenv("APPFORGE_API_KEY", "sk-user-key-123")

	result, err := f.pipe.Generate(context.Background(), "Timer", "a timer app")
	require.NoError(t, err)
	assert.False(t, result.UsedDemoKey)

	status, qerr := f.broker.Quota()
	require.NoError(t, qerr)
	assert.Equal(t, 0, status.Used, "user-key runs never touch the quota")
}

func TestGenerateQuotaExceeded(t *testing.T) {
	f := newFixture(t, fakeResponse{text: goodResponse})
	for i := 0; i < 5; i++ {
		require.NoError(t, f.broker.IncrementUsage())
	}

	_, err := f.pipe.Generate(context.Background(), "Timer", "a timer app")
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, FailureQuotaExceeded, perr.Kind)
	assert.Equal(t, 0, f.client.calls, "no API call without a credential")
}

func TestGenerateFallbackResponse(t *testing.T) {
	f := newFixture(t, fakeResponse{text: "<html><body>plain page</body></html>"})

	result, err := f.pipe.Generate(context.Background(), "Plain", "whatever")
	require.NoError(t, err)
	assert.True(t, result.Fallback)

	files, err := f.mat.Files(result.Info.ID)
	require.NoError(t, err)
	assert.Contains(t, files["index.html"], "plain page")
}

func TestGenerateEmptyResponse(t *testing.T) {
	f := newFixture(t, fakeResponse{text: "   \n"})

	_, err := f.pipe.Generate(context.Background(), "Empty", "whatever")
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, FailureParse, perr.Kind)
}

func TestReworkFlow(t *testing.T) {
	f := newFixture(t,
		fakeResponse{text: goodResponse},
		fakeResponse{text: "```json\n{\"index.html\": \"<h1>v2</h1>\"}\n```"},
	)

	created, err := f.pipe.Generate(context.Background(), "App", "make it")
	require.NoError(t, err)

	result, err := f.pipe.Rework(context.Background(), created.Info.ID, "make it v2")
	require.NoError(t, err)
	require.NotNil(t, result.Report)
	assert.Equal(t, created.Info.ID, result.Info.ID)

	files, err := f.mat.Files(created.Info.ID)
	require.NoError(t, err)
	assert.Equal(t, "<h1>v2</h1>", files["index.html"])
}

func TestStateObserver(t *testing.T) {
	var phases []State
	f := newFixture(t, fakeResponse{text: goodResponse})
	f.pipe.observer = func(s State) { phases = append(phases, s) }

	_, err := f.pipe.Generate(context.Background(), "App", "make it")
	require.NoError(t, err)
	assert.Equal(t, []State{
		StateAcquiringCredential,
		StateCalling,
		StateParsing,
		StateMaterializing,
		StateDone,
	}, phases)
}

func TestGenerateCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := newFixture(t, fakeResponse{err: transientErr{}})
	cancel()

	_, err := f.pipe.Generate(ctx, "App", "make it")
	require.Error(t, err)

	status, qerr := f.broker.Quota()
	require.NoError(t, qerr)
	assert.Equal(t, 0, status.Used)
}
