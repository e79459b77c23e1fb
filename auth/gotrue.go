package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"casalista/config"
	"casalista/models"
)

// GoTrueClient is a Provider over the Supabase GoTrue REST API using the
// password grant. The access token JWT is decoded (not verified - the
// server is the verifier) to fill in identity claims the response body
// might omit.
type GoTrueClient struct {
	subscribers
	url     string
	anonKey string
	client  *http.Client

	mu           sync.Mutex
	accessToken  string
	refreshToken string
	identity     *models.Identity
}

func NewGoTrueClient(cfg *config.SupabaseConfig, client *http.Client) *GoTrueClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &GoTrueClient{
		url:     cfg.URL,
		anonKey: cfg.AnonKey,
		client:  client,
	}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	User         struct {
		ID           string `json:"id"`
		Email        string `json:"email"`
		UserMetadata struct {
			FullName string `json:"full_name"`
		} `json:"user_metadata"`
	} `json:"user"`
}

func (c *GoTrueClient) SignIn(ctx context.Context, email, password string) (*models.Identity, error) {
	payload, _ := json.Marshal(map[string]string{"email": email, "password": password})

	tok, err := c.token(ctx, "password", payload)
	if err != nil {
		return nil, err
	}

	identity := c.apply(tok)
	c.notify(identity)
	return identity, nil
}

// Refresh exchanges the stored refresh token for a new session. Subscribers
// are notified with the (possibly unchanged) identity.
func (c *GoTrueClient) Refresh(ctx context.Context) error {
	c.mu.Lock()
	refresh := c.refreshToken
	c.mu.Unlock()
	if refresh == "" {
		return fmt.Errorf("no session to refresh")
	}

	payload, _ := json.Marshal(map[string]string{"refresh_token": refresh})
	tok, err := c.token(ctx, "refresh_token", payload)
	if err != nil {
		return err
	}

	c.notify(c.apply(tok))
	return nil
}

func (c *GoTrueClient) SignOut(ctx context.Context) error {
	c.mu.Lock()
	token := c.accessToken
	c.accessToken = ""
	c.refreshToken = ""
	c.identity = nil
	c.mu.Unlock()

	defer c.notify(nil)

	if token == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/auth/v1/logout", nil)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("gotrue logout error %d", resp.StatusCode)
	}
	return nil
}

func (c *GoTrueClient) Subscribe(fn func(*models.Identity)) func() {
	return c.add(fn)
}

func (c *GoTrueClient) Current() *models.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// AccessToken returns the current bearer token, empty when signed out.
func (c *GoTrueClient) AccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken
}

func (c *GoTrueClient) token(ctx context.Context, grant string, payload []byte) (*tokenResponse, error) {
	endpoint := c.url + "/auth/v1/token?grant_type=" + grant
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.anonKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("gotrue error %d: %s", resp.StatusCode, string(body))
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("gotrue response missing access token")
	}
	return &tok, nil
}

func (c *GoTrueClient) apply(tok *tokenResponse) *models.Identity {
	identity := &models.Identity{
		ID:          tok.User.ID,
		Email:       tok.User.Email,
		DisplayName: tok.User.UserMetadata.FullName,
	}

	// Fall back to the JWT claims when the user object is sparse.
	if claims := decodeClaims(tok.AccessToken); claims != nil {
		if identity.ID == "" {
			identity.ID, _ = claims.GetSubject()
		}
		if identity.Email == "" {
			if email, ok := (*claims)["email"].(string); ok {
				identity.Email = email
			}
		}
	}

	c.mu.Lock()
	c.accessToken = tok.AccessToken
	c.refreshToken = tok.RefreshToken
	c.identity = identity
	c.mu.Unlock()

	return identity
}

func decodeClaims(accessToken string) *jwt.MapClaims {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(accessToken, claims); err != nil {
		return nil
	}
	return &claims
}
