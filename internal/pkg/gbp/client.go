// Package gbp talks to the Google Business Profile APIs: the OAuth consent
// and code exchange that yield a revocable offline grant, and the
// performance/review endpoints behind it.
package gbp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/caangogi/local-digital-eye-sub000/app/models"
	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/env"
	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/faults"
)

const (
	ProviderGoogle = "google"

	scopeBusinessManage = "https://www.googleapis.com/auth/business.manage"

	defaultPerformanceAPIBaseURL = "https://businessprofileperformance.googleapis.com/v1"
	defaultReviewsAPIBaseURL     = "https://mybusiness.googleapis.com/v4"
)

// ErrNoRefreshToken is returned when the provider omits the refresh token on
// a code exchange. Consent URLs force re-consent exactly to avoid this, so
// hitting it means the grant is unusable and must fail loudly.
var ErrNoRefreshToken = errors.New("token exchange returned no refresh token")

// Grant is a stored offline credential for a connected business.
type Grant struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// Client holds the OAuth configuration and API endpoints.
type Client struct {
	oauth *oauth2.Config

	PerformanceAPIBaseURL string
	ReviewsAPIBaseURL     string

	HTTPClient *http.Client
}

func NewClientFromEnv() *Client {
	base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", "http://localhost:4000"), "/")
	redirectURI := strings.TrimSpace(env.GetEnv("GOOGLE_REDIRECT_URI", ""))
	if redirectURI == "" {
		redirectURI = base + "/oauth/callback"
	}

	return &Client{
		oauth: &oauth2.Config{
			ClientID:     strings.TrimSpace(env.GetEnv("GOOGLE_CLIENT_ID", "")),
			ClientSecret: strings.TrimSpace(env.GetEnv("GOOGLE_CLIENT_SECRET", "")),
			RedirectURL:  redirectURI,
			Scopes:       []string{scopeBusinessManage},
			Endpoint:     google.Endpoint,
		},
		PerformanceAPIBaseURL: strings.TrimSpace(env.GetEnv("GBP_PERFORMANCE_API_BASE_URL", defaultPerformanceAPIBaseURL)),
		ReviewsAPIBaseURL:     strings.TrimSpace(env.GetEnv("GBP_REVIEWS_API_BASE_URL", defaultReviewsAPIBaseURL)),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// ConsentURL builds the provider consent URL. Offline access plus forced
// re-consent guarantees a refresh token even when the user already granted
// access once.
func (c *Client) ConsentURL(state string) string {
	return c.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

// ExchangeCode redeems an authorization code for an offline grant.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*Grant, error) {
	if strings.TrimSpace(code) == "" {
		return nil, errors.New("oauth code is required")
	}
	tok, err := c.oauth.Exchange(ctx, strings.TrimSpace(code))
	if err != nil {
		return nil, &faults.ProviderError{Provider: ProviderGoogle, Op: "code exchange", Retryable: true, Err: err}
	}
	if tok.RefreshToken == "" {
		return nil, ErrNoRefreshToken
	}
	return &Grant{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}, nil
}

// httpClient returns an OAuth-authenticated client for a stored grant. The
// token source refreshes through the refresh token when the access token has
// expired.
func (c *Client) httpClient(ctx context.Context, grant Grant) *http.Client {
	if c.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.HTTPClient)
	}
	tok := &oauth2.Token{
		AccessToken:  grant.AccessToken,
		RefreshToken: grant.RefreshToken,
		Expiry:       grant.Expiry,
	}
	return c.oauth.Client(ctx, tok)
}

// PerformanceReport carries the daily-metric totals for one business over
// the fetched window.
type PerformanceReport struct {
	Impressions       int64
	WebsiteClicks     int64
	CallClicks        int64
	DirectionRequests int64
}

var dailyMetrics = []string{
	"BUSINESS_IMPRESSIONS_DESKTOP_SEARCH",
	"BUSINESS_IMPRESSIONS_MOBILE_SEARCH",
	"BUSINESS_IMPRESSIONS_DESKTOP_MAPS",
	"BUSINESS_IMPRESSIONS_MOBILE_MAPS",
	"WEBSITE_CLICKS",
	"CALL_CLICKS",
	"BUSINESS_DIRECTION_REQUESTS",
}

// FetchPerformance pulls the last 30 days of daily metrics for a profile and
// sums them into a report.
func (c *Client) FetchPerformance(ctx context.Context, grant Grant, profileID string) (*PerformanceReport, error) {
	if strings.TrimSpace(profileID) == "" {
		return nil, errors.New("profile id is required")
	}

	end := time.Now().UTC()
	start := end.AddDate(0, 0, -30)

	u := fmt.Sprintf("%s/locations/%s:fetchMultiDailyMetricsTimeSeries", strings.TrimRight(c.PerformanceAPIBaseURL, "/"), profileID)
	q := make([]string, 0, len(dailyMetrics)+6)
	for _, m := range dailyMetrics {
		q = append(q, "dailyMetrics="+m)
	}
	q = append(q,
		"dailyRange.start_date.year="+strconv.Itoa(start.Year()),
		"dailyRange.start_date.month="+strconv.Itoa(int(start.Month())),
		"dailyRange.start_date.day="+strconv.Itoa(start.Day()),
		"dailyRange.end_date.year="+strconv.Itoa(end.Year()),
		"dailyRange.end_date.month="+strconv.Itoa(int(end.Month())),
		"dailyRange.end_date.day="+strconv.Itoa(end.Day()),
	)

	body, err := c.get(ctx, grant, u+"?"+strings.Join(q, "&"))
	if err != nil {
		return nil, err
	}

	type datedValue struct {
		Value string `json:"value"`
	}
	type rawResponse struct {
		MultiDailyMetricTimeSeries []struct {
			DailyMetricTimeSeries []struct {
				DailyMetric string `json:"dailyMetric"`
				TimeSeries  struct {
					DatedValues []datedValue `json:"datedValues"`
				} `json:"timeSeries"`
			} `json:"dailyMetricTimeSeries"`
		} `json:"multiDailyMetricTimeSeries"`
	}

	var raw rawResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}

	report := &PerformanceReport{}
	for _, multi := range raw.MultiDailyMetricTimeSeries {
		for _, series := range multi.DailyMetricTimeSeries {
			var total int64
			for _, dv := range series.TimeSeries.DatedValues {
				// Values arrive as decimal strings; empty means zero for the day.
				if dv.Value == "" {
					continue
				}
				n, err := strconv.ParseInt(dv.Value, 10, 64)
				if err != nil {
					continue
				}
				total += n
			}
			switch series.DailyMetric {
			case "BUSINESS_IMPRESSIONS_DESKTOP_SEARCH",
				"BUSINESS_IMPRESSIONS_MOBILE_SEARCH",
				"BUSINESS_IMPRESSIONS_DESKTOP_MAPS",
				"BUSINESS_IMPRESSIONS_MOBILE_MAPS":
				report.Impressions += total
			case "WEBSITE_CLICKS":
				report.WebsiteClicks += total
			case "CALL_CLICKS":
				report.CallClicks += total
			case "BUSINESS_DIRECTION_REQUESTS":
				report.DirectionRequests += total
			}
		}
	}
	return report, nil
}

// FetchReviews lists the reviews of a profile, mapped to the internal review
// shape with 1-5 integer stars.
func (c *Client) FetchReviews(ctx context.Context, grant Grant, profileID string) ([]models.Review, error) {
	if strings.TrimSpace(profileID) == "" {
		return nil, errors.New("profile id is required")
	}

	u := fmt.Sprintf("%s/accounts/-/locations/%s/reviews", strings.TrimRight(c.ReviewsAPIBaseURL, "/"), profileID)
	body, err := c.get(ctx, grant, u)
	if err != nil {
		return nil, err
	}

	type rawReview struct {
		ReviewID   string `json:"reviewId"`
		StarRating string `json:"starRating"`
		Comment    string `json:"comment"`
		CreateTime string `json:"createTime"`
		Reviewer   struct {
			DisplayName string `json:"displayName"`
		} `json:"reviewer"`
	}
	var raw struct {
		Reviews []rawReview `json:"reviews"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}

	out := make([]models.Review, 0, len(raw.Reviews))
	for _, r := range raw.Reviews {
		created, _ := time.Parse(time.RFC3339, r.CreateTime)
		out = append(out, models.Review{
			ReviewID:   r.ReviewID,
			Author:     r.Reviewer.DisplayName,
			Stars:      StarRatingToInt(r.StarRating),
			Comment:    r.Comment,
			CreateTime: created,
		})
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, grant Grant, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient(ctx, grant).Do(req)
	if err != nil {
		return nil, &faults.ProviderError{Provider: ProviderGoogle, Op: "api request", Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &faults.ProviderError{
			Provider:  ProviderGoogle,
			Op:        "api request",
			Retryable: resp.StatusCode >= 500,
			Err:       fmt.Errorf("status=%d body=%s", resp.StatusCode, string(body)),
		}
	}
	return body, nil
}

// StarRatingToInt maps the provider's star rating enum onto a 1-5 scale.
// Unknown values map to 0 so callers can skip them.
func StarRatingToInt(rating string) int {
	switch strings.ToUpper(strings.TrimSpace(rating)) {
	case "ONE":
		return 1
	case "TWO":
		return 2
	case "THREE":
		return 3
	case "FOUR":
		return 4
	case "FIVE":
		return 5
	default:
		return 0
	}
}
