package authController

import (
	"context"
	"time"

	"auxparty/config"
	"auxparty/internal/database"
	"auxparty/internal/logger"
	. "auxparty/internal/models"
	"auxparty/internal/repositories"
	"auxparty/internal/services"
	"auxparty/internal/utils"
)

const hostTokenTTL = 7 * 24 * time.Hour

type AuthController struct {
	userRepo    repositories.UserRepository
	spotify     *services.SpotifyService
	spotifyAuth *services.SpotifyAuthService
	db          database.DB
	Config      config.Config
	log         logger.Logger
}

type AuthControllerInterface interface {
	LoginURL(state string) string
	HandleCallback(ctx context.Context, code string) (*User, string, error)
}

func New(
	services services.Service,
	repos repositories.Repository,
	config config.Config,
	db database.DB,
) AuthControllerInterface {
	return &AuthController{
		userRepo:    repos.User,
		spotify:     services.Spotify,
		spotifyAuth: services.SpotifyAuth,
		db:          db,
		Config:      config,
		log:         logger.New("authController"),
	}
}

func (ac *AuthController) LoginURL(state string) string {
	return ac.spotifyAuth.AuthURL(state)
}

// HandleCallback completes the provider OAuth flow: exchange the code, fetch
// the account profile, upsert the user with fresh tokens, and mint the host
// session JWT.
func (ac *AuthController) HandleCallback(
	ctx context.Context,
	code string,
) (*User, string, error) {
	log := ac.log.Function("HandleCallback")

	if code == "" {
		return nil, "", log.ErrMsg("authorization code is required")
	}

	token, err := ac.spotifyAuth.Exchange(ctx, code)
	if err != nil {
		return nil, "", err
	}

	profile, err := ac.spotify.GetCurrentUser(ctx, token.AccessToken)
	if err != nil {
		return nil, "", log.Err("failed to fetch provider profile", err)
	}

	now := time.Now()
	user := &User{
		DisplayName:    profile.DisplayName,
		SpotifyUserID:  profile.ID,
		SpotifyProduct: profile.Product,
	}
	if profile.Email != "" {
		user.Email = &profile.Email
	}

	user, err = ac.userRepo.FindOrCreateSpotifyUser(ctx, user)
	if err != nil {
		return nil, "", err
	}

	user.SpotifyAccessToken = token.AccessToken
	if token.RefreshToken != "" {
		user.SpotifyRefreshToken = token.RefreshToken
	}
	expiry := token.Expiry
	user.SpotifyTokenExpiry = &expiry
	user.LastLoginAt = &now

	if err := ac.userRepo.Update(ctx, user); err != nil {
		return nil, "", err
	}

	hostToken, err := utils.GenerateHostToken(user.ID, ac.Config.JWTSecret, hostTokenTTL)
	if err != nil {
		return nil, "", log.Err("failed to sign host token", err, "userID", user.ID)
	}

	log.Info("Host logged in", "userID", user.ID, "spotifyUserID", profile.ID)
	return user, hostToken, nil
}
