package broker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"appforge/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testPSK    = "test-psk"
	testSecret = "test-app-secret"
)

// newProvisioningServer fakes the registration and key-issuance
// endpoints, verifying the app secret and the HMAC proof the way the
// real service does.
func newProvisioningServer(t *testing.T, demoKey string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/register-device":
			var req struct {
				AppSecret  string `json:"appSecret"`
				DeviceInfo struct {
					Model string `json:"model"`
				} `json:"deviceInfo"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			if req.AppSecret != testSecret {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			assert.NotEmpty(t, req.DeviceInfo.Model)
			json.NewEncoder(w).Encode(map[string]string{"deviceId": "dev-abc123"})

		case "/api/get-api-key":
			var req struct {
				DeviceID string `json:"deviceId"`
				HMAC     string `json:"hmac"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			if req.HMAC != GenerateHMAC(testPSK, req.DeviceID) {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			json.NewEncoder(w).Encode(map[string]string{
				"encryptedKey": encryptEnvelope(t, testPSK, demoKey),
			})

		default:
			http.NotFound(w, r)
		}
	}))
}

func newTestBroker(t *testing.T, baseURL string) *Broker {
	t.Helper()
	st := store.Open(t.TempDir())
	return New(st, baseURL, 5, WithSecrets(testPSK, testSecret))
}

func TestRegisterDevice(t *testing.T) {
	srv := newProvisioningServer(t, "sk-demo")
	defer srv.Close()
	b := newTestBroker(t, srv.URL)

	require.NoError(t, b.RegisterDevice(context.Background()))
	id, err := b.DeviceID()
	require.NoError(t, err)
	assert.Equal(t, "dev-abc123", id)
}

func TestRegisterDeviceIdempotent(t *testing.T) {
	srv := newProvisioningServer(t, "sk-demo")
	b := newTestBroker(t, srv.URL)

	require.NoError(t, b.RegisterDevice(context.Background()))
	srv.Close()

	// Identity persisted; no second network call happens.
	require.NoError(t, b.RegisterDevice(context.Background()))
}

func TestFetchDemoKey(t *testing.T) {
	srv := newProvisioningServer(t, "sk-demo-key-xyz")
	defer srv.Close()
	b := newTestBroker(t, srv.URL)

	require.NoError(t, b.RegisterDevice(context.Background()))
	key, err := b.FetchDemoKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sk-demo-key-xyz", key)
}

func TestFetchDemoKeyCached(t *testing.T) {
	srv := newProvisioningServer(t, "sk-demo-key-xyz")
	b := newTestBroker(t, srv.URL)

	require.NoError(t, b.RegisterDevice(context.Background()))
	_, err := b.FetchDemoKey(context.Background())
	require.NoError(t, err)
	srv.Close()

	// Second fetch is served from the store.
	key, err := b.FetchDemoKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sk-demo-key-xyz", key)
}

func TestFetchDemoKeyRequiresDevice(t *testing.T) {
	b := newTestBroker(t, "http://unused.invalid")
	_, err := b.FetchDemoKey(context.Background())
	require.Error(t, err)
}

func TestFetchDemoKeyBadEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/register-device" {
			json.NewEncoder(w).Encode(map[string]string{"deviceId": "dev-1"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"encryptedKey": "not-an-envelope"})
	}))
	defer srv.Close()
	b := newTestBroker(t, srv.URL)

	require.NoError(t, b.RegisterDevice(context.Background()))
	_, err := b.FetchDemoKey(context.Background())
	require.ErrorIs(t, err, ErrEnvelope)
}

func TestClearDeviceID(t *testing.T) {
	srv := newProvisioningServer(t, "sk-demo")
	defer srv.Close()
	b := newTestBroker(t, srv.URL)

	require.NoError(t, b.RegisterDevice(context.Background()))
	_, err := b.FetchDemoKey(context.Background())
	require.NoError(t, err)

	require.NoError(t, b.ClearDeviceID())
	id, err := b.DeviceID()
	require.NoError(t, err)
	assert.Empty(t, id)

	// The cached demo key went with it.
	_, err = b.FetchDemoKey(context.Background())
	require.Error(t, err)
}
