package sessionController

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

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	guestTokenTTL       = 24 * time.Hour
	joinCodeMaxAttempts = 5
)

// SessionSettings is the host-editable slice of a session.
type SessionSettings struct {
	AllowExplicit      bool     `json:"allowExplicit"`
	MaxTrackDurationMS *int     `json:"maxTrackDurationMs,omitempty"`
	PreferredDeviceID  string   `json:"preferredDeviceId,omitempty"`
	BannedTrackIDs     []string `json:"bannedTrackIds,omitempty"`
	BannedArtistIDs    []string `json:"bannedArtistIds,omitempty"`
}

type SessionController struct {
	sessionRepo repositories.SessionRepository
	guestRepo   repositories.GuestRepository
	userRepo    repositories.UserRepository
	transaction *services.TransactionService
	ledger      *services.CreditLedgerService
	monitor     *services.PlaybackMonitorService
	devices     *services.DeviceReconcilerService
	db          database.DB
	Config      config.Config
	log         logger.Logger
}

type SessionControllerInterface interface {
	CreateSession(ctx context.Context, host *User, settings SessionSettings) (*Session, error)
	GetSession(ctx context.Context, sessionID uuid.UUID) (*Session, error)
	JoinSession(
		ctx context.Context,
		joinCode, guestName string,
		linkedUser *User,
	) (*Guest, string, *Session, error)
	DeactivateSession(ctx context.Context, host *User, sessionID uuid.UUID) error
	UpdateSettings(
		ctx context.Context,
		host *User,
		sessionID uuid.UUID,
		settings SessionSettings,
	) (*Session, error)
	SetGuestCredits(
		ctx context.Context,
		host *User,
		sessionID, guestID uuid.UUID,
		total int,
	) (*CreditState, error)
}

func New(
	repos repositories.Repository,
	services services.Service,
	config config.Config,
	db database.DB,
) SessionControllerInterface {
	return &SessionController{
		sessionRepo: repos.Session,
		guestRepo:   repos.Guest,
		userRepo:    repos.User,
		transaction: services.Transaction,
		ledger:      services.CreditLedger,
		monitor:     services.PlaybackMonitor,
		devices:     services.DeviceReconciler,
		db:          db,
		Config:      config,
		log:         logger.New("sessionController"),
	}
}

// CreateSession starts a new session for the host. Any previous session is
// deactivated first so the host has at most one current session.
func (sc *SessionController) CreateSession(
	ctx context.Context,
	host *User,
	settings SessionSettings,
) (*Session, error) {
	log := sc.log.Function("CreateSession")

	if host.CurrentSessionID != nil {
		if err := sc.sessionRepo.Deactivate(ctx, *host.CurrentSessionID); err != nil {
			log.Warn("failed to deactivate previous session",
				"sessionID", *host.CurrentSessionID, "error", err)
		}
		sc.monitor.StopMonitor(*host.CurrentSessionID)
	}

	session := &Session{
		HostID:             host.ID,
		IsActive:           true,
		AllowExplicit:      settings.AllowExplicit,
		MaxTrackDurationMS: settings.MaxTrackDurationMS,
		PreferredDeviceID:  settings.PreferredDeviceID,
		BannedTrackIDs:     datatypes.JSONSlice[string](settings.BannedTrackIDs),
		BannedArtistIDs:    datatypes.JSONSlice[string](settings.BannedArtistIDs),
	}

	// The join code's uniqueness is enforced by the database; collisions on a
	// 6-character code are rare enough that a bounded retry covers them.
	var err error
	for attempt := 0; attempt < joinCodeMaxAttempts; attempt++ {
		session.JoinCode, err = utils.GenerateJoinCode()
		if err != nil {
			return nil, log.Err("failed to generate join code", err)
		}

		if err = sc.sessionRepo.Create(ctx, session); err == nil {
			break
		}
	}
	if err != nil {
		return nil, log.Err("failed to create session", err, "hostID", host.ID)
	}

	host.CurrentSessionID = &session.ID
	if err := sc.userRepo.Update(ctx, host); err != nil {
		return nil, err
	}

	sc.monitor.EnsureMonitor(session.ID)

	log.Info("Session created",
		"sessionID", session.ID,
		"hostID", host.ID,
		"joinCode", session.JoinCode)
	return session, nil
}

func (sc *SessionController) GetSession(
	ctx context.Context,
	sessionID uuid.UUID,
) (*Session, error) {
	return sc.sessionRepo.GetByID(ctx, sessionID)
}

// JoinSession admits a guest by join code and mints their session token.
// Every guest gets a durable identity for credit accounting: the caller's
// account when they are logged in, a placeholder identity otherwise. Rejoins
// by the same linked account reuse the existing guest.
func (sc *SessionController) JoinSession(
	ctx context.Context,
	joinCode, guestName string,
	linkedUser *User,
) (*Guest, string, *Session, error) {
	log := sc.log.Function("JoinSession")

	if guestName == "" {
		return nil, "", nil, log.ErrMsg("guest name is required")
	}

	session, err := sc.sessionRepo.GetByJoinCode(ctx, joinCode)
	if err != nil {
		return nil, "", nil, err
	}

	if linkedUser != nil {
		existing, err := sc.guestRepo.FindBySessionAndLinkedUser(ctx, session.ID, linkedUser.ID)
		if err == nil {
			token, err := utils.GenerateGuestToken(
				existing.ID, session.ID, sc.Config.JWTSecret, guestTokenTTL)
			if err != nil {
				return nil, "", nil, log.Err("failed to sign guest token", err)
			}
			return existing, token, session, nil
		}
		if !repositories.IsNotFound(err) {
			return nil, "", nil, err
		}
	}

	guest := &Guest{
		SessionID: session.ID,
		Name:      guestName,
	}

	err = sc.transaction.Execute(ctx, func(ctx context.Context, tx *gorm.DB) error {
		identityID := uuid.Nil
		if linkedUser != nil {
			identityID = linkedUser.ID
		} else {
			identity := &User{
				DisplayName:  guestName,
				IsActive:     true,
				TotalCredits: sc.Config.GuestDailyCredits,
			}
			if err := tx.Create(identity).Error; err != nil {
				return err
			}
			identityID = identity.ID
		}

		guest.LinkedUserID = &identityID
		return sc.guestRepo.Create(ctx, guest)
	})
	if err != nil {
		return nil, "", nil, log.Err("failed to create guest", err, "sessionID", session.ID)
	}

	// Provision today's credits so the first add does not eat the reset.
	if _, err := sc.ledger.EnsureDailyCredits(ctx, *guest.LinkedUserID); err != nil {
		log.Warn("failed to provision guest credits",
			"guestID", guest.ID, "error", err)
	}

	token, err := utils.GenerateGuestToken(guest.ID, session.ID, sc.Config.JWTSecret, guestTokenTTL)
	if err != nil {
		return nil, "", nil, log.Err("failed to sign guest token", err)
	}

	log.Info("Guest joined session",
		"sessionID", session.ID,
		"guestID", guest.ID,
		"linked", linkedUser != nil)
	return guest, token, session, nil
}

func (sc *SessionController) DeactivateSession(
	ctx context.Context,
	host *User,
	sessionID uuid.UUID,
) error {
	log := sc.log.Function("DeactivateSession")

	session, err := sc.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.HostID != host.ID {
		return services.ErrNotAuthorized
	}

	if err := sc.sessionRepo.Deactivate(ctx, sessionID); err != nil {
		return err
	}

	if host.CurrentSessionID != nil && *host.CurrentSessionID == sessionID {
		host.CurrentSessionID = nil
		if err := sc.userRepo.Update(ctx, host); err != nil {
			log.Warn("failed to clear current session reference",
				"userID", host.ID, "error", err)
		}
	}

	sc.monitor.StopMonitor(sessionID)
	sc.devices.Invalidate(sessionID)

	log.Info("Session deactivated", "sessionID", sessionID, "hostID", host.ID)
	return nil
}

// UpdateSettings applies host edits to the session's policy fields. Changing
// the preferred device drops the cached device resolution.
func (sc *SessionController) UpdateSettings(
	ctx context.Context,
	host *User,
	sessionID uuid.UUID,
	settings SessionSettings,
) (*Session, error) {
	log := sc.log.Function("UpdateSettings")

	session, err := sc.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.HostID != host.ID {
		return nil, services.ErrNotAuthorized
	}
	if !session.IsActive {
		return nil, services.ErrSessionInactive
	}

	deviceChanged := session.PreferredDeviceID != settings.PreferredDeviceID

	session.AllowExplicit = settings.AllowExplicit
	session.MaxTrackDurationMS = settings.MaxTrackDurationMS
	session.PreferredDeviceID = settings.PreferredDeviceID
	session.BannedTrackIDs = datatypes.JSONSlice[string](settings.BannedTrackIDs)
	session.BannedArtistIDs = datatypes.JSONSlice[string](settings.BannedArtistIDs)

	if err := sc.sessionRepo.Update(ctx, session); err != nil {
		return nil, err
	}

	if deviceChanged {
		sc.devices.Invalidate(sessionID)
		sc.monitor.RequestImmediateSync(sessionID)
	}

	log.Info("Session settings updated", "sessionID", sessionID)
	return session, nil
}

// SetGuestCredits lets the host change a guest's daily allowance.
func (sc *SessionController) SetGuestCredits(
	ctx context.Context,
	host *User,
	sessionID, guestID uuid.UUID,
	total int,
) (*CreditState, error) {
	session, err := sc.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.HostID != host.ID {
		return nil, services.ErrNotAuthorized
	}

	guest, err := sc.guestRepo.GetByID(ctx, guestID)
	if err != nil {
		return nil, err
	}
	if guest.SessionID != sessionID || guest.LinkedUserID == nil {
		return nil, services.ErrNotAuthorized
	}

	return sc.ledger.SetTotalCredits(ctx, *guest.LinkedUserID, total)
}
