package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"runtrack/internal/models"
)

// Multipart part names for the create-run call; the backend looks these up by
// exact key.
const (
	partMapPicture = "MAP_PICTURE"
	partRunData    = "RUN_DATA"
)

// Client talks to the run backend API.
type Client struct {
	authed  *http.Client
	plain   *http.Client
	baseURL string
}

// NewClient creates an API client. Authenticated calls carry bearer tokens
// from the token source; login and token refresh go out unauthenticated. A nil
// token source leaves every call unauthenticated (only useful before login).
func NewClient(baseURL string, tokenSource oauth2.TokenSource) *Client {
	plain := &http.Client{Timeout: 30 * time.Second}
	authed := plain
	if tokenSource != nil {
		authed = oauth2.NewClient(context.Background(), tokenSource)
	}
	return &Client{
		authed:  authed,
		plain:   plain,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// ListRuns fetches the full run list from the backend.
func (c *Client) ListRuns(ctx context.Context) ([]models.Run, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/runs", nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := c.authed.Do(req)
	if err != nil {
		return nil, errFromTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errFromStatus(resp.StatusCode)
	}

	var dtos []runDTO
	if err := json.NewDecoder(resp.Body).Decode(&dtos); err != nil {
		return nil, &Error{Kind: Serialization, Err: err}
	}

	runs := make([]models.Run, 0, len(dtos))
	for _, dto := range dtos {
		run, err := dto.toRun()
		if err != nil {
			return nil, &Error{Kind: Serialization, Err: err}
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// CreateRun uploads a run and its map image as one multipart request and
// returns the canonical run the server stored, which may carry a populated
// map picture URL.
func (c *Client) CreateRun(ctx context.Context, run models.Run, mapPicture []byte) (models.Run, error) {
	runData, err := json.Marshal(toCreateRunRequest(run))
	if err != nil {
		return models.Run{}, &Error{Kind: Serialization, Err: err}
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	pictureHeader := textproto.MIMEHeader{}
	pictureHeader.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name=%q; filename="mappicture.jpg"`, partMapPicture))
	pictureHeader.Set("Content-Type", "image/jpeg")
	picturePart, err := writer.CreatePart(pictureHeader)
	if err != nil {
		return models.Run{}, fmt.Errorf("building picture part: %w", err)
	}
	if _, err := picturePart.Write(mapPicture); err != nil {
		return models.Run{}, fmt.Errorf("writing picture part: %w", err)
	}

	dataHeader := textproto.MIMEHeader{}
	dataHeader.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q`, partRunData))
	dataHeader.Set("Content-Type", "text/plain")
	dataPart, err := writer.CreatePart(dataHeader)
	if err != nil {
		return models.Run{}, fmt.Errorf("building run data part: %w", err)
	}
	if _, err := dataPart.Write(runData); err != nil {
		return models.Run{}, fmt.Errorf("writing run data part: %w", err)
	}

	if err := writer.Close(); err != nil {
		return models.Run{}, fmt.Errorf("closing multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/run", &body)
	if err != nil {
		return models.Run{}, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.authed.Do(req)
	if err != nil {
		return models.Run{}, errFromTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.Run{}, errFromStatus(resp.StatusCode)
	}

	var dto runDTO
	if err := json.NewDecoder(resp.Body).Decode(&dto); err != nil {
		return models.Run{}, &Error{Kind: Serialization, Err: err}
	}
	created, err := dto.toRun()
	if err != nil {
		return models.Run{}, &Error{Kind: Serialization, Err: err}
	}
	return created, nil
}

// DeleteRun removes a run from the backend by id.
func (c *Client) DeleteRun(ctx context.Context, id string) error {
	endpoint := c.baseURL + "/run?" + url.Values{"id": {id}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := c.authed.Do(req)
	if err != nil {
		return errFromTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errFromStatus(resp.StatusCode)
	}
	return nil
}

// Login exchanges credentials for a session. Invalid credentials surface as
// an Unauthorized error, distinct from connectivity failures.
func (c *Client) Login(ctx context.Context, email, password string) (models.Session, error) {
	payload, err := json.Marshal(struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}{Email: email, Password: password})
	if err != nil {
		return models.Session{}, &Error{Kind: Serialization, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/login", bytes.NewReader(payload))
	if err != nil {
		return models.Session{}, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.plain.Do(req)
	if err != nil {
		return models.Session{}, errFromTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.Session{}, errFromStatus(resp.StatusCode)
	}

	var loginResp struct {
		AccessToken                    string `json:"accessToken"`
		RefreshToken                   string `json:"refreshToken"`
		AccessTokenExpirationTimestamp int64  `json:"accessTokenExpirationTimestamp"`
		UserID                         string `json:"userId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&loginResp); err != nil {
		return models.Session{}, &Error{Kind: Serialization, Err: err}
	}

	return models.Session{
		UserID:       loginResp.UserID,
		AccessToken:  loginResp.AccessToken,
		RefreshToken: loginResp.RefreshToken,
		ExpiresAt:    time.UnixMilli(loginResp.AccessTokenExpirationTimestamp),
	}, nil
}

// Logout invalidates the session on the backend. Local cleanup (clearing runs
// and the stored session) is the caller's separate responsibility.
func (c *Client) Logout(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/logout", nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := c.authed.Do(req)
	if err != nil {
		return errFromTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errFromStatus(resp.StatusCode)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
