// Package broker provisions and meters the anonymous demo credential: it
// registers a device identity, proves it with an HMAC, exchanges the proof
// for an encrypted shared API key, and enforces a client-side daily quota.
//
// Every network operation degrades to "no credential available" rather than
// failing the caller hard; the pipeline decides what to surface to users.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"appforge/internal/logging"
	"appforge/internal/security"
	"appforge/internal/store"
)

// PreSharedKey and AppSecret are baked in at build time via -ldflags.
// The PSK doubles as the HMAC signing key (raw string bytes) and, after
// SHA-256 hashing, as the AES-256 key for the credential envelope.
var (
	PreSharedKey = "appforge-dev-psk"
	AppSecret    = "appforge-dev-secret"
)

const (
	registerPath = "/api/register-device"
	apiKeyPath   = "/api/get-api-key"

	requestTimeout = 30 * time.Second
)

// Broker handles demo-credential provisioning and quota accounting.
type Broker struct {
	store      *store.Store
	httpClient *http.Client
	baseURL    string
	psk        string
	appSecret  string
	dailyLimit int

	// now is swappable for quota-window tests.
	now func() time.Time
}

// Option configures a Broker.
type Option func(*Broker)

// WithClock overrides the broker's clock.
func WithClock(now func() time.Time) Option {
	return func(b *Broker) { b.now = now }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(b *Broker) { b.httpClient = c }
}

// WithSecrets overrides the build-time PSK and app secret.
func WithSecrets(psk, appSecret string) Option {
	return func(b *Broker) {
		b.psk = psk
		b.appSecret = appSecret
	}
}

// New creates a broker talking to the provisioning service at baseURL.
func New(st *store.Store, baseURL string, dailyLimit int, opts ...Option) *Broker {
	b := &Broker{
		store:      st,
		httpClient: security.NewHTTPClient(requestTimeout),
		baseURL:    baseURL,
		psk:        PreSharedKey,
		appSecret:  AppSecret,
		dailyLimit: dailyLimit,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// DeviceID returns the persisted device identity, empty if unregistered.
func (b *Broker) DeviceID() (string, error) {
	state, err := b.store.Get()
	if err != nil {
		return "", err
	}
	return state.DeviceID, nil
}

// RegisterDevice ensures a device identity exists. It is a no-op success
// when one is already persisted. Network and parse failures are soft: the
// returned error signals "not registered yet", never a crash, and the
// caller may retry later.
func (b *Broker) RegisterDevice(ctx context.Context) error {
	state, err := b.store.Get()
	if err != nil {
		return err
	}
	if state.DeviceID != "" {
		return nil
	}

	reqBody := registerRequest{
		AppSecret: b.appSecret,
		DeviceInfo: deviceInfo{
			Model: runtime.GOOS + "/" + runtime.GOARCH,
		},
	}
	var resp registerResponse
	if err := b.postJSON(ctx, registerPath, reqBody, &resp); err != nil {
		logging.Warn("device registration failed", "error", err)
		return fmt.Errorf("device registration failed: %w", err)
	}
	if resp.DeviceID == "" {
		logging.Warn("device registration returned empty id")
		return fmt.Errorf("device registration returned empty id")
	}

	if err := b.store.Update(func(s *store.State) error {
		s.DeviceID = resp.DeviceID
		return nil
	}); err != nil {
		return err
	}
	logging.Info("device registered", "device_id", resp.DeviceID)
	return nil
}

// FetchDemoKey exchanges the device identity plus its HMAC for the shared
// demo credential. Requires a registered device. Fails closed: any
// malformed envelope, decryption error or transport error yields an empty
// key and an error, never a panic.
func (b *Broker) FetchDemoKey(ctx context.Context) (string, error) {
	state, err := b.store.Get()
	if err != nil {
		return "", err
	}
	if state.DeviceID != "" && state.DemoKey != "" {
		return state.DemoKey, nil
	}
	if state.DeviceID == "" {
		return "", fmt.Errorf("no device identity; register first")
	}

	mac := GenerateHMAC(b.psk, state.DeviceID)
	var resp apiKeyResponse
	if err := b.postJSON(ctx, apiKeyPath, apiKeyRequest{DeviceID: state.DeviceID, HMAC: mac}, &resp); err != nil {
		logging.Warn("demo key fetch failed", "error", err)
		return "", fmt.Errorf("demo key fetch failed: %w", err)
	}

	key, err := DecryptEnvelope(b.psk, resp.EncryptedKey)
	if err != nil {
		// A bad envelope with a correct PSK means server-side trouble; a
		// bad PSK means misconfiguration. Either way: log, fail closed.
		logging.Error("demo key envelope decryption failed", "error", err)
		return "", fmt.Errorf("demo key decryption failed: %w", err)
	}

	if err := b.store.Update(func(s *store.State) error {
		s.DemoKey = key
		return nil
	}); err != nil {
		return "", err
	}
	logging.Info("demo credential cached", "key", security.MaskKey(key))
	return key, nil
}

// ClearDeviceID clears the device identity and cached demo credential,
// forcing re-registration on next use.
func (b *Broker) ClearDeviceID() error {
	return b.store.Update(func(s *store.State) error {
		s.DeviceID = ""
		s.DemoKey = ""
		return nil
	})
}

type registerRequest struct {
	AppSecret  string     `json:"appSecret"`
	DeviceInfo deviceInfo `json:"deviceInfo"`
}

type deviceInfo struct {
	Model string `json:"model"`
}

type registerResponse struct {
	DeviceID string `json:"deviceId"`
}

type apiKeyRequest struct {
	DeviceID string `json:"deviceId"`
	HMAC     string `json:"hmac"`
}

type apiKeyResponse struct {
	EncryptedKey string `json:"encryptedKey"`
}

func (b *Broker) postJSON(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, path)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response from %s: %w", path, err)
	}
	return nil
}
