// Package userdir resolves internal user ids to contact details through the
// accounts service. User management lives outside this system; this is the
// client side of that boundary.
package userdir

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/env"
	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/faults"
)

type Directory struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

func NewDirectoryFromEnv() *Directory {
	return &Directory{
		BaseURL: strings.TrimRight(env.GetEnv("ACCOUNTS_API_BASE_URL", ""), "/"),
		APIKey:  strings.TrimSpace(env.GetEnv("ACCOUNTS_API_KEY", "")),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (d *Directory) Lookup(ctx context.Context, userID string) (string, string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", "", errors.New("user id is required")
	}
	if d.BaseURL == "" {
		return "", "", errors.New("ACCOUNTS_API_BASE_URL is not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.BaseURL+"/internal/users/"+userID, nil)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Accept", "application/json")
	if d.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+d.APIKey)
	}

	resp, err := d.HTTPClient.Do(req)
	if err != nil {
		return "", "", &faults.ProviderError{Provider: "accounts", Op: "user lookup", Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", "", &faults.ProviderError{
			Provider:  "accounts",
			Op:        "user lookup",
			Retryable: resp.StatusCode >= 500,
			Err:       fmt.Errorf("status=%d body=%s", resp.StatusCode, string(body)),
		}
	}

	var out struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", "", err
	}
	if out.Email == "" {
		return "", "", errors.New("accounts service returned no email")
	}
	return out.Email, out.Name, nil
}
