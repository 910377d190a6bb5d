package github

import (
	"bytes"
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Authentication constants.
const (
	maxTokenLength     = 100 // Maximum expected length for GitHub tokens
	minTokenLength     = 40  // Minimum expected length for GitHub tokens
	classicTokenLength = 40  // Length of classic GitHub tokens
	maxAppID           = 999999999
	filePermReadOnly   = 0o400 // Read-only file permissions
	filePermOwnerRW    = 0o600 // Owner read-write file permissions

	jwtLifetime          = 10 * time.Minute // GitHub Apps JWTs expire after 10 minutes max
	installationTokenLag = 5 * time.Minute  // Refresh installation tokens this long before expiry
)

// ValidateToken validates a GitHub personal access token.
func ValidateToken(token string) error {
	if token == "" {
		return ErrCredentialMissing
	}
	if len(token) > maxTokenLength || len(token) < minTokenLength {
		return fmt.Errorf("%w: invalid token length", ErrCredentialInvalid)
	}

	// Validate token format - GitHub tokens have specific prefixes
	validPrefixes := []string{"ghp_", "gho_", "ghu_", "ghs_", "ghr_", "github_pat_"}
	for _, prefix := range validPrefixes {
		if strings.HasPrefix(token, prefix) {
			return nil
		}
	}

	// Could be a classic token (40 hex chars)
	if len(token) != classicTokenLength {
		return fmt.Errorf("%w: invalid token format", ErrCredentialInvalid)
	}
	for _, r := range token {
		if (r < 'a' || r > 'f') && (r < '0' || r > '9') {
			return fmt.Errorf("%w: invalid classic token format", ErrCredentialInvalid)
		}
	}

	return nil
}

// StaticToken is a fixed personal access token.
type StaticToken string

// Token returns the trimmed token after validating it.
func (s StaticToken) Token(_ context.Context) (string, error) {
	token := strings.TrimSpace(string(s))
	if err := ValidateToken(token); err != nil {
		return "", err
	}
	return token, nil
}

// EnvTokenSource reads a personal access token from an environment variable.
type EnvTokenSource struct {
	Var string
}

// Token returns the validated token from the environment.
func (e EnvTokenSource) Token(ctx context.Context) (string, error) {
	name := e.Var
	if name == "" {
		name = "GITHUB_TOKEN"
	}
	return StaticToken(os.Getenv(name)).Token(ctx)
}

// ChainTokenSource tries each source in order. Sources reporting
// ErrCredentialMissing are skipped; any other error stops the chain.
type ChainTokenSource []TokenSource

// Token returns the first available token.
func (c ChainTokenSource) Token(ctx context.Context) (string, error) {
	for _, src := range c {
		token, err := src.Token(ctx)
		if errors.Is(err, ErrCredentialMissing) {
			continue
		}
		if err != nil {
			return "", err
		}
		return token, nil
	}
	return "", ErrCredentialMissing
}

// generateJWT generates a JWT token for GitHub App authentication.
func generateJWT(appID string, privateKey []byte, now time.Time) (string, error) {
	block, _ := pem.Decode(privateKey)
	if block == nil {
		return "", errors.New("failed to parse PEM block containing the private key")
	}

	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		// Try PKCS8 format if PKCS1 fails
		parsedKey, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return "", fmt.Errorf("failed to parse private key: %w", err)
		}
		var ok bool
		key, ok = parsedKey.(*rsa.PrivateKey)
		if !ok {
			return "", errors.New("private key is not RSA")
		}
	}

	claims := jwt.MapClaims{
		// Backdate to tolerate clock drift between us and GitHub.
		"iat": now.Add(-time.Minute).Unix(),
		"exp": now.Add(jwtLifetime - time.Minute).Unix(),
		"iss": appID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(key)
}

// validateAppID validates the GitHub App ID.
func validateAppID(appID string) error {
	appIDNum, err := strconv.Atoi(appID)
	if err != nil {
		return fmt.Errorf("GITHUB_APP_ID must be numeric: %w", err)
	}
	if appIDNum <= 0 || appIDNum > maxAppID {
		return errors.New("GITHUB_APP_ID out of valid range")
	}
	return nil
}

// ReadPrivateKeyFile reads a PEM private key, refusing files readable by others.
func ReadPrivateKeyFile(keyPath string) ([]byte, error) {
	cleanPath := filepath.Clean(keyPath)
	if !filepath.IsAbs(cleanPath) {
		return nil, errors.New("GITHUB_APP_KEY_PATH must be an absolute path")
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("cannot access private key file: %w", err)
	}
	if fileInfo.IsDir() {
		return nil, errors.New("GITHUB_APP_KEY_PATH must be a file, not a directory")
	}

	perm := fileInfo.Mode().Perm()
	if perm != filePermOwnerRW && perm != filePermReadOnly {
		return nil, fmt.Errorf("private key file has insecure permissions %04o (must be 0600 or 0400)", perm)
	}

	return os.ReadFile(cleanPath)
}

// AppTokenSource authenticates as a GitHub App installation.
// Installation tokens are cached until shortly before they expire.
type AppTokenSource struct {
	expiry         time.Time
	httpClient     HTTPDoer
	now            func() time.Time
	appID          string
	baseURL        string
	token          string
	privateKey     []byte
	installationID int64
	mu             sync.Mutex
}

// AppConfig configures an AppTokenSource.
type AppConfig struct {
	HTTPClient     HTTPDoer // nil = net/http with default timeout
	AppID          string
	BaseURL        string // empty = api.github.com
	PrivateKey     []byte
	InstallationID int64
}

// NewAppTokenSource validates the App credentials and returns a token source.
func NewAppTokenSource(cfg AppConfig) (*AppTokenSource, error) {
	if err := validateAppID(cfg.AppID); err != nil {
		return nil, err
	}
	if cfg.InstallationID <= 0 {
		return nil, errors.New("GitHub App installation ID is required")
	}
	if !bytes.Contains(cfg.PrivateKey, []byte("BEGIN RSA PRIVATE KEY")) &&
		!bytes.Contains(cfg.PrivateKey, []byte("BEGIN PRIVATE KEY")) {
		return nil, errors.New("private key does not appear to be a valid PEM private key")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &AppTokenSource{
		httpClient:     httpClient,
		now:            time.Now,
		appID:          cfg.AppID,
		baseURL:        baseURL,
		privateKey:     cfg.PrivateKey,
		installationID: cfg.InstallationID,
	}, nil
}

// Token returns a valid installation access token, creating one if needed.
func (a *AppTokenSource) Token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.token != "" && a.now().Before(a.expiry) {
		return a.token, nil
	}

	jwtToken, err := generateJWT(a.appID, a.privateKey, a.now())
	if err != nil {
		return "", fmt.Errorf("failed to generate JWT: %w", err)
	}

	slog.Info("[AUTH] Creating installation access token", "component", "auth", "installation_id", a.installationID)
	apiURL := fmt.Sprintf("%s/app/installations/%d/access_tokens", a.baseURL, a.installationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+jwtToken)
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", &NetworkError{Op: "create installation token", Err: err}
	}
	defer drainAndCloseBody(resp.Body)

	if resp.StatusCode != http.StatusCreated {
		return "", newAPIError("create installation token", resp)
	}

	var tokenResp struct {
		ExpiresAt time.Time `json:"expires_at"`
		Token     string    `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if tokenResp.Token == "" {
		return "", errors.New("received empty installation token")
	}

	a.token = tokenResp.Token
	a.expiry = tokenResp.ExpiresAt.Add(-installationTokenLag)
	slog.Info("[AUTH] Created installation access token", "component", "auth", "expires_at", tokenResp.ExpiresAt.Format(time.RFC3339))
	return a.token, nil
}
