package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"auxparty/internal/logger"
	. "auxparty/internal/models"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// DeviceReconcilerService resolves a usable playback device for a session and
// moves playback onto it when the provider reports activity elsewhere.
// Resolutions are cached per session with a minimum resync interval so every
// playback poll does not turn into a device listing call.
type DeviceReconcilerService struct {
	provider ProviderClient
	tokens   TokenResolver

	mu       sync.Mutex
	resolved map[uuid.UUID]*resolvedDevice
	group    singleflight.Group
	log      logger.Logger
}

// resolvedDevice caches the outcome of a reconciliation attempt, failures
// included, so a broken provider is not re-queried on every poll.
type resolvedDevice struct {
	deviceID    string
	err         error
	attemptedAt time.Time
}

func NewDeviceReconcilerService(
	provider ProviderClient,
	tokens TokenResolver,
) *DeviceReconcilerService {
	return &DeviceReconcilerService{
		provider: provider,
		tokens:   tokens,
		resolved: make(map[uuid.UUID]*resolvedDevice),
		log:      logger.New("DeviceReconcilerService"),
	}
}

// EnsureDevice returns the device ID playback should target for the session.
// Preference order: the session's preferred device when it is visible, then
// whatever device the provider reports active, then the first visible device.
// When the chosen device is not the active one, playback is transferred to it.
func (s *DeviceReconcilerService) EnsureDevice(
	ctx context.Context,
	session *Session,
) (string, error) {
	if deviceID, err, ok := s.cachedAttempt(session.ID, false); ok {
		return deviceID, err
	}

	return s.resolve(ctx, session)
}

// ForceResync bypasses the resolution cache, used when a playback call failed
// with a device error or the host changed the preferred device.
func (s *DeviceReconcilerService) ForceResync(
	ctx context.Context,
	session *Session,
) (string, error) {
	s.Invalidate(session.ID)
	return s.resolve(ctx, session)
}

// Invalidate drops the cached resolution for a session.
func (s *DeviceReconcilerService) Invalidate(sessionID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.resolved, sessionID)
}

func (s *DeviceReconcilerService) resolve(
	ctx context.Context,
	session *Session,
) (string, error) {
	result, err, _ := s.group.Do(session.ID.String(), func() (any, error) {
		// A concurrent caller may have attempted while we queued.
		if deviceID, err, ok := s.cachedAttempt(session.ID, true); ok {
			return deviceID, err
		}
		return s.reconcile(ctx, session)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (s *DeviceReconcilerService) reconcile(
	ctx context.Context,
	session *Session,
) (string, error) {
	log := s.log.Function("reconcile")

	token, err := s.tokens.AccessToken(ctx, session.HostID)
	if err != nil {
		return "", s.recordAttempt(session.ID, "",
			log.Err("failed to resolve host token", err, "sessionID", session.ID))
	}

	devices, err := s.provider.GetAvailableDevices(ctx, token)
	if err != nil {
		return "", s.recordAttempt(session.ID, "",
			log.Err("failed to list playback devices", err, "sessionID", session.ID))
	}
	if len(devices) == 0 {
		return "", s.recordAttempt(session.ID, "",
			fmt.Errorf("%w: no playback devices available", ErrTemporarilyUnavailable))
	}

	chosen := pickDevice(devices, session.PreferredDeviceID)

	if !chosen.IsActive {
		if err := s.provider.TransferPlayback(ctx, token, chosen.ID, true); err != nil {
			return "", s.recordAttempt(session.ID, "",
				log.Err("failed to transfer playback", err,
					"sessionID", session.ID,
					"deviceID", chosen.ID))
		}
		log.Info("transferred playback",
			"sessionID", session.ID,
			"deviceID", chosen.ID,
			"deviceName", chosen.Name)
	}

	s.recordAttempt(session.ID, chosen.ID, nil)

	return chosen.ID, nil
}

// recordAttempt caches the outcome, success or failure, and returns err so
// failure paths stay one-liners.
func (s *DeviceReconcilerService) recordAttempt(
	sessionID uuid.UUID,
	deviceID string,
	err error,
) error {
	s.mu.Lock()
	s.resolved[sessionID] = &resolvedDevice{
		deviceID:    deviceID,
		err:         err,
		attemptedAt: time.Now(),
	}
	s.mu.Unlock()
	return err
}

// cachedAttempt returns the last attempt's outcome when it is still inside
// the resync window. recentOnly tightens the window to the single-flight case
// where another caller just attempted.
func (s *DeviceReconcilerService) cachedAttempt(
	sessionID uuid.UUID,
	recentOnly bool,
) (string, error, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.resolved[sessionID]
	if !exists {
		return "", nil, false
	}

	window := MonitorDeviceResyncMinimum
	if recentOnly {
		window = time.Second
	}
	if time.Since(entry.attemptedAt) > window {
		return "", nil, false
	}
	return entry.deviceID, entry.err, true
}

func pickDevice(devices []PlaybackDevice, preferredID string) PlaybackDevice {
	if preferredID != "" {
		for _, device := range devices {
			if device.ID == preferredID {
				return device
			}
		}
	}
	for _, device := range devices {
		if device.IsActive {
			return device
		}
	}
	return devices[0]
}
