package services

import (
	"context"
	"time"

	"auxparty/config"
	"auxparty/internal/logger"
	"auxparty/internal/repositories"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	spotifyauth "golang.org/x/oauth2/spotify"
)

// TokenResolver hands out a valid provider access token for a host identity,
// refreshing the stored token pair when needed.
type TokenResolver interface {
	AccessToken(ctx context.Context, userID uuid.UUID) (string, error)
}

type SpotifyAuthService struct {
	userRepo repositories.UserRepository
	oauth    *oauth2.Config
	log      logger.Logger
}

func NewSpotifyAuthService(config config.Config, userRepo repositories.UserRepository) *SpotifyAuthService {
	return &SpotifyAuthService{
		userRepo: userRepo,
		oauth: &oauth2.Config{
			ClientID:     config.SpotifyClientID,
			ClientSecret: config.SpotifyClientSecret,
			RedirectURL:  config.SpotifyRedirectURL,
			Endpoint:     spotifyauth.Endpoint,
			Scopes: []string{
				"user-read-playback-state",
				"user-modify-playback-state",
				"user-read-currently-playing",
				"user-read-email",
				"user-read-private",
			},
		},
		log: logger.New("SpotifyAuthService"),
	}
}

// AuthURL returns the provider consent URL for the host login flow.
func (s *SpotifyAuthService) AuthURL(state string) string {
	return s.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange trades an authorization code for a token pair.
func (s *SpotifyAuthService) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	log := s.log.Function("Exchange")

	token, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, log.Err("failed to exchange authorization code", err)
	}

	return token, nil
}

// AccessToken returns a valid access token for the user, refreshing and
// persisting the stored pair when the cached one has expired.
func (s *SpotifyAuthService) AccessToken(ctx context.Context, userID uuid.UUID) (string, error) {
	log := s.log.Function("AccessToken")

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return "", log.Err("failed to load user for token resolution", err, "userID", userID)
	}

	if !user.TokenExpired() {
		return user.SpotifyAccessToken, nil
	}

	if user.SpotifyRefreshToken == "" {
		return "", log.Error("user has no refresh token", "userID", userID)
	}

	expiry := time.Time{}
	if user.SpotifyTokenExpiry != nil {
		expiry = *user.SpotifyTokenExpiry
	}

	source := s.oauth.TokenSource(ctx, &oauth2.Token{
		AccessToken:  user.SpotifyAccessToken,
		RefreshToken: user.SpotifyRefreshToken,
		Expiry:       expiry,
	})

	refreshed, err := source.Token()
	if err != nil {
		return "", log.Err("failed to refresh access token", err, "userID", userID)
	}

	user.SpotifyAccessToken = refreshed.AccessToken
	user.SpotifyTokenExpiry = &refreshed.Expiry
	if refreshed.RefreshToken != "" {
		user.SpotifyRefreshToken = refreshed.RefreshToken
	}

	if err := s.userRepo.Update(ctx, user); err != nil {
		// The token is still usable for this request; persistence failure just
		// forces another refresh next time.
		log.Warn("failed to persist refreshed token", "userID", userID, "error", err)
	}

	log.Info("Refreshed provider access token", "userID", userID)
	return refreshed.AccessToken, nil
}
