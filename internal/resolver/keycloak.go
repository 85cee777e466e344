// internal/resolver/keycloak.go
package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "poultry-workflow/internal/common/errors"
	"poultry-workflow/internal/models"
)

// Keycloak resolves reviewers from a Keycloak realm. Officer role and
// jurisdiction live in the user's attributes (reviewer_role, region, district,
// constituency), maintained by the ministry's identity administrators.
type Keycloak struct {
	baseURL      string
	realm        string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	accessToken  string
	tokenExpiry  time.Time
}

type keycloakUser struct {
	ID         string              `json:"id"`
	Username   string              `json:"username"`
	Enabled    bool                `json:"enabled"`
	Attributes map[string][]string `json:"attributes"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func NewKeycloak(baseURL, realm, clientID, clientSecret string) *Keycloak {
	return &Keycloak{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		realm:        realm,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

// getAccessToken fetches a service-account token via the client credentials
// flow, cached until expiry.
func (k *Keycloak) getAccessToken(ctx context.Context) error {
	if k.tokenExpiry.After(time.Now()) && k.accessToken != "" {
		return nil
	}

	tokenURL := fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token", k.baseURL, k.realm)

	data := url.Values{}
	data.Set("grant_type", "client_credentials")
	data.Set("client_id", k.clientID)
	data.Set("client_secret", k.clientSecret)

	req, err := http.NewRequestWithContext(ctx, "POST", tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("keycloak token request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return fmt.Errorf("failed to decode token response: %w", err)
	}

	k.accessToken = tokenResp.AccessToken
	k.tokenExpiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	return nil
}

func (k *Keycloak) Resolve(ctx context.Context, reviewerID string) (*models.Reviewer, error) {
	if err := k.getAccessToken(ctx); err != nil {
		return nil, apperrors.NewStorageError("keycloak token", err)
	}

	userURL := fmt.Sprintf("%s/admin/realms/%s/users/%s", k.baseURL, k.realm, url.PathEscape(reviewerID))

	req, err := http.NewRequestWithContext(ctx, "GET", userURL, nil)
	if err != nil {
		return nil, apperrors.NewStorageError("keycloak request", err)
	}
	req.Header.Set("Authorization", "Bearer "+k.accessToken)

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.NewStorageError("keycloak lookup", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, apperrors.NewResourceNotFoundError("reviewer", reviewerID)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, apperrors.NewStorageError("keycloak lookup",
			fmt.Errorf("status %d: %s", resp.StatusCode, string(body)))
	}

	var user keycloakUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, apperrors.NewStorageError("keycloak decode", err)
	}
	if !user.Enabled {
		return nil, apperrors.NewResourceNotFoundError("reviewer", reviewerID)
	}

	reviewer := &models.Reviewer{
		ID:   user.ID,
		Role: models.Role(firstAttr(user.Attributes, "reviewer_role")),
		Jurisdiction: models.Jurisdiction{
			Region:       firstAttr(user.Attributes, "region"),
			District:     firstAttr(user.Attributes, "district"),
			Constituency: firstAttr(user.Attributes, "constituency"),
		},
	}
	if reviewer.Role == "" {
		// Account exists but carries no officer role; not a reviewer.
		return nil, apperrors.NewResourceNotFoundError("reviewer", reviewerID)
	}
	return reviewer, nil
}

func firstAttr(attrs map[string][]string, key string) string {
	if values, ok := attrs[key]; ok && len(values) > 0 {
		return values[0]
	}
	return ""
}
