package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"auxparty/internal/logger"
)

// ProviderClient is the surface of the external playback provider consumed by
// the monitor, the device reconciler and the scheduled playback processor.
// Tests swap in fakes; production uses SpotifyService.
type ProviderClient interface {
	GetCurrentPlayback(ctx context.Context, token string) (*PlaybackState, error)
	GetAvailableDevices(ctx context.Context, token string) ([]PlaybackDevice, error)
	TransferPlayback(ctx context.Context, token, deviceID string, play bool) error
	AddToQueue(ctx context.Context, token, trackURI, deviceID string) error
	PlayContext(ctx context.Context, token, deviceID, contextURI, offsetURI string, positionMS int) error
	PlayURIs(ctx context.Context, token, deviceID string, uris []string, positionMS int) error
	SkipToNext(ctx context.Context, token, deviceID string) error
	GetTrack(ctx context.Context, token, trackID string) (*PlaybackTrack, error)
}

// ProviderUser is the provider's account profile, fetched once at login.
type ProviderUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Product     string `json:"product"`
}

type PlaybackDevice struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Type          string `json:"type"`
	IsActive      bool   `json:"is_active"`
	VolumePercent int    `json:"volume_percent"`
}

type PlaybackArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type PlaybackAlbum struct {
	Name   string `json:"name"`
	Images []struct {
		URL string `json:"url"`
	} `json:"images"`
}

type PlaybackTrack struct {
	ID         string           `json:"id"`
	URI        string           `json:"uri"`
	Name       string           `json:"name"`
	Artists    []PlaybackArtist `json:"artists"`
	Album      PlaybackAlbum    `json:"album"`
	DurationMS int              `json:"duration_ms"`
	Explicit   bool             `json:"explicit"`
}

type PlaybackContext struct {
	URI  string `json:"uri"`
	Type string `json:"type"`
}

type PlaybackState struct {
	Item       *PlaybackTrack   `json:"item"`
	Device     *PlaybackDevice  `json:"device"`
	Context    *PlaybackContext `json:"context"`
	ProgressMS int              `json:"progress_ms"`
	IsPlaying  bool             `json:"is_playing"`
}

// RateLimitedError is returned on a provider 429. RetryAfter carries the
// provider's hint when present, zero otherwise.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("provider rate limited, retry after %s", e.RetryAfter)
	}
	return "provider rate limited"
}

func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}

type SpotifyService struct {
	client  *http.Client
	baseURL string
	log     logger.Logger
}

func NewSpotifyService() *SpotifyService {
	log := logger.New("SpotifyService")
	return &SpotifyService{
		client: &http.Client{
			Timeout: ProviderRequestTimeout,
		},
		baseURL: "https://api.spotify.com/v1",
		log:     log,
	}
}

func (s *SpotifyService) GetCurrentPlayback(ctx context.Context, token string) (*PlaybackState, error) {
	log := s.log.Function("GetCurrentPlayback")

	resp, err := s.do(ctx, http.MethodGet, "/me/player", token, nil)
	if err != nil {
		return nil, err
	}
	defer s.closeBody(resp)

	// Nothing playing on any device
	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}

	if err := s.checkStatus(resp); err != nil {
		return nil, err
	}

	var state PlaybackState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return nil, log.Err("failed to decode playback state", err)
	}

	return &state, nil
}

func (s *SpotifyService) GetAvailableDevices(ctx context.Context, token string) ([]PlaybackDevice, error) {
	log := s.log.Function("GetAvailableDevices")

	resp, err := s.do(ctx, http.MethodGet, "/me/player/devices", token, nil)
	if err != nil {
		return nil, err
	}
	defer s.closeBody(resp)

	if err := s.checkStatus(resp); err != nil {
		return nil, err
	}

	var payload struct {
		Devices []PlaybackDevice `json:"devices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, log.Err("failed to decode devices", err)
	}

	return payload.Devices, nil
}

func (s *SpotifyService) TransferPlayback(ctx context.Context, token, deviceID string, play bool) error {
	body := map[string]any{
		"device_ids": []string{deviceID},
		"play":       play,
	}

	resp, err := s.do(ctx, http.MethodPut, "/me/player", token, body)
	if err != nil {
		return err
	}
	defer s.closeBody(resp)

	return s.checkStatus(resp)
}

func (s *SpotifyService) AddToQueue(ctx context.Context, token, trackURI, deviceID string) error {
	params := url.Values{}
	params.Set("uri", trackURI)
	if deviceID != "" {
		params.Set("device_id", deviceID)
	}

	resp, err := s.do(ctx, http.MethodPost, "/me/player/queue?"+params.Encode(), token, nil)
	if err != nil {
		return err
	}
	defer s.closeBody(resp)

	return s.checkStatus(resp)
}

func (s *SpotifyService) SkipToNext(ctx context.Context, token, deviceID string) error {
	path := "/me/player/next"
	if deviceID != "" {
		path += "?device_id=" + url.QueryEscape(deviceID)
	}

	resp, err := s.do(ctx, http.MethodPost, path, token, nil)
	if err != nil {
		return err
	}
	defer s.closeBody(resp)

	return s.checkStatus(resp)
}

// GetCurrentUser fetches the authenticated account's profile. Not part of
// ProviderClient; only the login flow needs it.
func (s *SpotifyService) GetCurrentUser(ctx context.Context, token string) (*ProviderUser, error) {
	log := s.log.Function("GetCurrentUser")

	resp, err := s.do(ctx, http.MethodGet, "/me", token, nil)
	if err != nil {
		return nil, err
	}
	defer s.closeBody(resp)

	if err := s.checkStatus(resp); err != nil {
		return nil, err
	}

	var user ProviderUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, log.Err("failed to decode user profile", err)
	}

	return &user, nil
}

func (s *SpotifyService) PlayContext(
	ctx context.Context,
	token, deviceID, contextURI, offsetURI string,
	positionMS int,
) error {
	body := map[string]any{
		"context_uri": contextURI,
		"position_ms": positionMS,
	}
	if offsetURI != "" {
		body["offset"] = map[string]any{"uri": offsetURI}
	}

	return s.play(ctx, token, deviceID, body)
}

func (s *SpotifyService) PlayURIs(
	ctx context.Context,
	token, deviceID string,
	uris []string,
	positionMS int,
) error {
	body := map[string]any{
		"uris":        uris,
		"position_ms": positionMS,
	}

	return s.play(ctx, token, deviceID, body)
}

func (s *SpotifyService) play(ctx context.Context, token, deviceID string, body map[string]any) error {
	path := "/me/player/play"
	if deviceID != "" {
		path += "?device_id=" + url.QueryEscape(deviceID)
	}

	resp, err := s.do(ctx, http.MethodPut, path, token, body)
	if err != nil {
		return err
	}
	defer s.closeBody(resp)

	return s.checkStatus(resp)
}

func (s *SpotifyService) GetTrack(ctx context.Context, token, trackID string) (*PlaybackTrack, error) {
	log := s.log.Function("GetTrack")

	resp, err := s.do(ctx, http.MethodGet, "/tracks/"+url.PathEscape(trackID), token, nil)
	if err != nil {
		return nil, err
	}
	defer s.closeBody(resp)

	if err := s.checkStatus(resp); err != nil {
		return nil, err
	}

	var track PlaybackTrack
	if err := json.NewDecoder(resp.Body).Decode(&track); err != nil {
		return nil, log.Err("failed to decode track", err)
	}

	if track.ID == "" {
		return nil, log.Error("invalid track response", "trackID", trackID)
	}

	return &track, nil
}

func (s *SpotifyService) do(
	ctx context.Context,
	method, path, token string,
	body map[string]any,
) (*http.Response, error) {
	log := s.log.Function("do")

	if token == "" {
		return nil, fmt.Errorf("token cannot be empty")
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, log.Err("failed to marshal request body", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return nil, log.Err("failed to create request", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, log.Err("failed to make request", err, "method", method, "path", path)
	}

	return resp, nil
}

// checkStatus maps non-2xx responses to errors. 429 becomes a typed
// RateLimitedError carrying the Retry-After hint.
func (s *SpotifyService) checkStatus(resp *http.Response) error {
	log := s.log.Function("checkStatus")

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := time.Duration(0)
		if header := resp.Header.Get("Retry-After"); header != "" {
			if seconds, err := strconv.Atoi(header); err == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		log.Warn("provider rate limited", "retryAfter", retryAfter)
		return &RateLimitedError{RetryAfter: retryAfter}
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("invalid token")
	}

	_ = log.Error("provider API error", "statusCode", resp.StatusCode)
	return fmt.Errorf("provider API error: %d", resp.StatusCode)
}

func (s *SpotifyService) closeBody(resp *http.Response) {
	if closeErr := resp.Body.Close(); closeErr != nil {
		s.log.Warn("Failed to close response body", "error", closeErr)
	}
}
