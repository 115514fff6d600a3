package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newReconcilerHarness() (*DeviceReconcilerService, *recordingProvider) {
	provider := &recordingProvider{
		rec:      &execRecorder{},
		devices:  []PlaybackDevice{{ID: "device-1", Name: "Living Room", IsActive: true}},
		failURIs: make(map[string]bool),
	}
	return NewDeviceReconcilerService(provider, fakeTokenResolver{token: "host-token"}), provider
}

func TestEnsureDeviceCachesResolution(t *testing.T) {
	service, provider := newReconcilerHarness()
	session := testSession()

	deviceID, err := service.EnsureDevice(context.Background(), session)
	require.NoError(t, err)
	assert.Equal(t, "device-1", deviceID)

	deviceID, err = service.EnsureDevice(context.Background(), session)
	require.NoError(t, err)
	assert.Equal(t, "device-1", deviceID)
	assert.Equal(t, 1, provider.deviceLists, "second call inside the window is a cache hit")
}

func TestEnsureDeviceCachesFailedAttempt(t *testing.T) {
	service, provider := newReconcilerHarness()
	provider.devicesErr = assert.AnError
	session := testSession()

	_, err := service.EnsureDevice(context.Background(), session)
	assert.Error(t, err)

	// A failing provider is not re-queried until the window passes
	_, err = service.EnsureDevice(context.Background(), session)
	assert.Error(t, err)
	assert.Equal(t, 1, provider.deviceLists)
}

func TestForceResyncBypassesFailedAttempt(t *testing.T) {
	service, provider := newReconcilerHarness()
	provider.devicesErr = assert.AnError
	session := testSession()

	_, err := service.EnsureDevice(context.Background(), session)
	assert.Error(t, err)

	provider.devicesErr = nil
	deviceID, err := service.ForceResync(context.Background(), session)
	require.NoError(t, err)
	assert.Equal(t, "device-1", deviceID)
	assert.Equal(t, 2, provider.deviceLists)
}

func TestEnsureDeviceTransfersToPreferred(t *testing.T) {
	service, provider := newReconcilerHarness()
	provider.devices = []PlaybackDevice{
		{ID: "device-1", Name: "Living Room", IsActive: true},
		{ID: "device-2", Name: "Kitchen", IsActive: false},
	}
	session := testSession()
	session.PreferredDeviceID = "device-2"

	deviceID, err := service.EnsureDevice(context.Background(), session)
	require.NoError(t, err)
	assert.Equal(t, "device-2", deviceID)
	assert.Contains(t, provider.rec.ops, "transfer device-2")
}
