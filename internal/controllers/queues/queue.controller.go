package queueController

import (
	"context"

	"auxparty/config"
	"auxparty/internal/database"
	"auxparty/internal/logger"
	. "auxparty/internal/models"
	"auxparty/internal/repositories"
	"auxparty/internal/services"

	"github.com/google/uuid"
)

type QueueController struct {
	sessionRepo repositories.SessionRepository
	guestRepo   repositories.GuestRepository
	queue       *services.QueueService
	ledger      *services.CreditLedgerService
	skipVotes   *services.SkipVoteService
	monitor     *services.PlaybackMonitorService
	devices     *services.DeviceReconcilerService
	provider    services.ProviderClient
	tokens      services.TokenResolver
	db          database.DB
	Config      config.Config
	log         logger.Logger
}

type QueueControllerInterface interface {
	GetQueue(ctx context.Context, sessionID uuid.UUID) (*QueueSnapshot, error)
	AddTrack(ctx context.Context, sessionID uuid.UUID, actor Actor, track Track) (*QueueItem, error)
	Vote(
		ctx context.Context,
		sessionID, queueItemID uuid.UUID,
		actor Actor,
		voteType int,
	) (string, int, error)
	RemoveTrack(ctx context.Context, sessionID, queueItemID uuid.UUID, actor Actor) error
	SkipVote(
		ctx context.Context,
		sessionID uuid.UUID,
		trackID string,
		actor Actor,
	) (int, int, bool, error)
	HostSkip(ctx context.Context, sessionID uuid.UUID, host *User) error
	GetCredits(ctx context.Context, actor Actor) (*CreditState, error)
}

func New(
	repos repositories.Repository,
	services services.Service,
	config config.Config,
	db database.DB,
) QueueControllerInterface {
	return &QueueController{
		sessionRepo: repos.Session,
		guestRepo:   repos.Guest,
		queue:       services.Queue,
		ledger:      services.CreditLedger,
		skipVotes:   services.SkipVote,
		monitor:     services.PlaybackMonitor,
		devices:     services.DeviceReconciler,
		provider:    services.Spotify,
		tokens:      services.SpotifyAuth,
		db:          db,
		Config:      config,
		log:         logger.New("queueController"),
	}
}

func (qc *QueueController) GetQueue(
	ctx context.Context,
	sessionID uuid.UUID,
) (*QueueSnapshot, error) {
	return qc.queue.GetQueueWithNext(ctx, sessionID)
}

// AddTrack queues a track for the session. Guest adds spend credits first;
// the spend is refunded when the add itself fails (compensation, not
// rollback). A track that lands at the head is pushed to the provider
// immediately so the host hears it without waiting for the next poll.
func (qc *QueueController) AddTrack(
	ctx context.Context,
	sessionID uuid.UUID,
	actor Actor,
	track Track,
) (*QueueItem, error) {
	log := qc.log.Function("AddTrack")

	session, err := qc.activeSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	chargeID, err := qc.chargeIdentity(ctx, actor)
	if err != nil {
		return nil, err
	}

	if chargeID != uuid.Nil {
		if _, err := qc.ledger.SpendCredits(ctx, chargeID, services.CreditCostQueueAdd); err != nil {
			return nil, err
		}
	}

	item, err := qc.queue.AddToQueue(ctx, session, actor, track)
	if err != nil {
		qc.refund(ctx, chargeID, services.CreditCostQueueAdd, "add failed")
		return nil, err
	}

	qc.pushIfNextUp(ctx, session, item)
	qc.monitor.RequestImmediateSync(sessionID)

	log.Info("Track added",
		"sessionID", sessionID,
		"queueItemID", item.ID,
		"actor", actor.VoterKey())
	return item, nil
}

// Vote applies a vote with guest credit accounting: the first vote on an item
// costs a credit (charged before the mutation, refunded if it fails), toggling
// a vote off refunds it, and flipping direction is free.
func (qc *QueueController) Vote(
	ctx context.Context,
	sessionID, queueItemID uuid.UUID,
	actor Actor,
	voteType int,
) (string, int, error) {
	if _, err := qc.activeSession(ctx, sessionID); err != nil {
		return "", 0, err
	}

	chargeID, err := qc.chargeIdentity(ctx, actor)
	if err != nil {
		return "", 0, err
	}

	charged := false
	beforeChange := func(change services.VoteChange) error {
		if chargeID == uuid.Nil || change.Action != "add" {
			return nil
		}
		if _, err := qc.ledger.SpendCredits(ctx, chargeID, services.CreditCostVote); err != nil {
			return err
		}
		charged = true
		return nil
	}

	action, score, err := qc.queue.Vote(ctx, queueItemID, actor, voteType, beforeChange)
	if err != nil {
		if charged {
			qc.refund(ctx, chargeID, services.CreditCostVote, "vote failed")
		}
		return "", 0, err
	}

	if action == services.VoteActionRemoved && chargeID != uuid.Nil {
		qc.refund(ctx, chargeID, services.CreditCostVote, "vote removed")
	}

	// Reordering can change the head track.
	qc.monitor.RequestImmediateSync(sessionID)

	return action, score, nil
}

// RemoveTrack deletes a queue item and refunds the original adder's spend.
func (qc *QueueController) RemoveTrack(
	ctx context.Context,
	sessionID, queueItemID uuid.UUID,
	actor Actor,
) error {
	log := qc.log.Function("RemoveTrack")

	session, err := qc.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}

	item, err := qc.queue.RemoveFromQueue(ctx, session, queueItemID, actor)
	if err != nil {
		return err
	}

	if item.AddedByGuestID != nil {
		guest, err := qc.guestRepo.GetByID(ctx, *item.AddedByGuestID)
		if err != nil {
			log.Warn("failed to resolve guest for refund",
				"guestID", *item.AddedByGuestID, "error", err)
		} else if guest.LinkedUserID != nil {
			qc.refund(ctx, *guest.LinkedUserID, services.CreditCostQueueAdd, "track removed")
		}
	}

	qc.monitor.RequestImmediateSync(sessionID)
	return nil
}

// SkipVote registers a skip vote against the current track. Reaching the
// threshold skips playback on the provider and resets the tally. Returns the
// tally, the threshold, and whether the skip fired.
func (qc *QueueController) SkipVote(
	ctx context.Context,
	sessionID uuid.UUID,
	trackID string,
	actor Actor,
) (int, int, bool, error) {
	log := qc.log.Function("SkipVote")

	session, err := qc.activeSession(ctx, sessionID)
	if err != nil {
		return 0, 0, false, err
	}

	count, reached := qc.skipVotes.AddVote(sessionID, trackID, actor)
	if !reached {
		return count, qc.skipVotes.Threshold(), false, nil
	}

	if err := qc.executeSkip(ctx, session); err != nil {
		return count, qc.skipVotes.Threshold(), false, err
	}

	qc.skipVotes.Reset(sessionID)
	log.Info("Skip threshold reached, track skipped",
		"sessionID", sessionID,
		"trackID", trackID,
		"votes", count)
	return count, qc.skipVotes.Threshold(), true, nil
}

// HostSkip skips the current track without a vote. Host only.
func (qc *QueueController) HostSkip(
	ctx context.Context,
	sessionID uuid.UUID,
	host *User,
) error {
	session, err := qc.activeSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.HostID != host.ID {
		return services.ErrNotAuthorized
	}

	if err := qc.executeSkip(ctx, session); err != nil {
		return err
	}

	qc.skipVotes.Reset(sessionID)
	return nil
}

// GetCredits reports the acting guest's normalized credit state. Hosts have
// no ledger entry to report.
func (qc *QueueController) GetCredits(
	ctx context.Context,
	actor Actor,
) (*CreditState, error) {
	chargeID, err := qc.chargeIdentity(ctx, actor)
	if err != nil {
		return nil, err
	}
	if chargeID == uuid.Nil {
		return nil, services.ErrNotAuthorized
	}

	return qc.ledger.EnsureDailyCredits(ctx, chargeID)
}

func (qc *QueueController) activeSession(
	ctx context.Context,
	sessionID uuid.UUID,
) (*Session, error) {
	session, err := qc.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.IsActive {
		return nil, services.ErrSessionInactive
	}
	return session, nil
}

// chargeIdentity resolves the identity paying for an action. Hosts are free
// and resolve to uuid.Nil.
func (qc *QueueController) chargeIdentity(
	ctx context.Context,
	actor Actor,
) (uuid.UUID, error) {
	if !actor.IsGuest() {
		return uuid.Nil, nil
	}

	guest, err := qc.guestRepo.GetByID(ctx, actor.GuestID)
	if err != nil {
		return uuid.Nil, err
	}
	if guest.LinkedUserID == nil {
		return uuid.Nil, services.ErrNotAuthorized
	}
	return *guest.LinkedUserID, nil
}

// refund compensates a reserved spend. A failed refund is logged and
// alerted on, never surfaced to the original request.
func (qc *QueueController) refund(ctx context.Context, chargeID uuid.UUID, amount int, reason string) {
	if chargeID == uuid.Nil {
		return
	}

	if _, err := qc.ledger.AddCredits(ctx, chargeID, amount); err != nil {
		_ = qc.log.Function("refund").Error("credit refund failed, balance inconsistent",
			"userID", chargeID,
			"amount", amount,
			"reason", reason,
			"error", err)
	}
}

func (qc *QueueController) pushIfNextUp(ctx context.Context, session *Session, item *QueueItem) {
	log := qc.log.Function("pushIfNextUp")

	snapshot, err := qc.queue.GetQueueWithNext(ctx, session.ID)
	if err != nil || snapshot.NextUp == nil || snapshot.NextUp.ID != item.ID {
		return
	}

	token, err := qc.tokens.AccessToken(ctx, session.HostID)
	if err != nil {
		log.Warn("failed to resolve host token for push", "sessionID", session.ID, "error", err)
		return
	}

	if err := qc.provider.AddToQueue(ctx, token, item.TrackURI, ""); err != nil {
		log.Warn("failed to push added track", "sessionID", session.ID, "error", err)
		return
	}

	qc.monitor.RecordManualQueue(session.ID, item.ID)
}

func (qc *QueueController) executeSkip(ctx context.Context, session *Session) error {
	log := qc.log.Function("executeSkip")

	token, err := qc.tokens.AccessToken(ctx, session.HostID)
	if err != nil {
		return err
	}

	deviceID, err := qc.devices.EnsureDevice(ctx, session)
	if err != nil {
		log.Warn("device resolution failed, skipping on active device",
			"sessionID", session.ID, "error", err)
		deviceID = ""
	}

	if err := qc.provider.SkipToNext(ctx, token, deviceID); err != nil {
		return log.Err("failed to skip track", err, "sessionID", session.ID)
	}

	qc.monitor.RequestImmediateSync(session.ID)
	return nil
}
