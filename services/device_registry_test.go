package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"admsserver/models"
	"admsserver/query"
)

func TestResolveByEitherKey(t *testing.T) {
	e := newEnv(t)

	bySN, err := e.devices.Resolve(e.ctx, e.acme.ID, models.DeviceKeySerialNumber, "SN001")
	require.NoError(t, err)
	byID, err := e.devices.Resolve(e.ctx, e.acme.ID, models.DeviceKeyDeviceID, "dev-1")
	require.NoError(t, err)

	assert.Equal(t, bySN.ID, byID.ID)
	assert.Equal(t, "SN001", byID.SerialNumber)
	assert.Equal(t, "10", bySN.Settings.Get("Delay", ""))
	assert.True(t, bySN.Usable())

	_, err = e.devices.Resolve(e.ctx, e.acme.ID, models.DeviceKeySerialNumber, "NOPE")
	assert.ErrorIs(t, err, ErrDeviceNotFound)

	// devices never leak across tenants
	_, err = e.devices.Resolve(e.ctx, e.acme.ID+1, models.DeviceKeySerialNumber, "SN001")
	assert.ErrorIs(t, err, ErrDeviceNotFound)

	_, err = e.devices.Resolve(e.ctx, e.acme.ID, "mac", "x")
	assert.Error(t, err)
}

func TestResolveReturnsCopy(t *testing.T) {
	e := newEnv(t)
	d, err := e.devices.Resolve(e.ctx, e.acme.ID, models.DeviceKeySerialNumber, "SN001")
	require.NoError(t, err)
	d.Name = "changed"

	again, err := e.devices.Resolve(e.ctx, e.acme.ID, models.DeviceKeySerialNumber, "SN001")
	require.NoError(t, err)
	assert.Equal(t, "Front door", again.Name)
}

func TestKeyCollisionExcludesBothRecords(t *testing.T) {
	e := newEnv(t)
	_, err := e.devices.Register(e.ctx, models.Device{
		TenantID:     e.acme.ID,
		DeviceID:     "dev-2",
		SerialNumber: "SN001",
		IsApproved:   true,
		IsActive:     true,
	})
	require.NoError(t, err)

	_, err = e.devices.Resolve(e.ctx, e.acme.ID, models.DeviceKeySerialNumber, "SN001")
	assert.ErrorIs(t, err, ErrDeviceNotFound)
	_, err = e.devices.Resolve(e.ctx, e.acme.ID, models.DeviceKeyDeviceID, "dev-1")
	assert.ErrorIs(t, err, ErrDeviceNotFound)
	_, err = e.devices.Resolve(e.ctx, e.acme.ID, models.DeviceKeyDeviceID, "dev-2")
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestSnapshotStaysUntilInvalidated(t *testing.T) {
	e := newEnv(t)
	_, err := e.devices.Resolve(e.ctx, e.acme.ID, models.DeviceKeySerialNumber, "SN001")
	require.NoError(t, err)

	_, err = e.dbs.Central().Update(e.ctx, query.Update("devices", query.Row{"is_active": 0}).Where(
		query.Eq("serial_number", "SN001"),
	))
	require.NoError(t, err)

	d, err := e.devices.Resolve(e.ctx, e.acme.ID, models.DeviceKeySerialNumber, "SN001")
	require.NoError(t, err)
	assert.True(t, d.IsActive)

	require.NoError(t, e.devices.Invalidate(e.ctx))
	d, err = e.devices.Resolve(e.ctx, e.acme.ID, models.DeviceKeySerialNumber, "SN001")
	require.NoError(t, err)
	assert.False(t, d.IsActive)
	assert.False(t, d.Usable())
}

func TestSetStatusAndRemove(t *testing.T) {
	e := newEnv(t)

	require.NoError(t, e.devices.SetStatus(e.ctx, e.acme.ID, "SN001", false, true))
	d, err := e.devices.Resolve(e.ctx, e.acme.ID, models.DeviceKeySerialNumber, "SN001")
	require.NoError(t, err)
	assert.False(t, d.IsApproved)

	assert.ErrorIs(t, e.devices.SetStatus(e.ctx, e.acme.ID, "NOPE", true, true), ErrDeviceNotFound)

	require.NoError(t, e.devices.Remove(e.ctx, e.acme.ID, "SN001"))
	_, err = e.devices.Resolve(e.ctx, e.acme.ID, models.DeviceKeySerialNumber, "SN001")
	assert.ErrorIs(t, err, ErrDeviceNotFound)

	list, err := e.devices.List(e.ctx, e.acme.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRecordTransferMergesStamps(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.devices.RecordTransfer(e.ctx, e.acme.ID, "SN001", map[string]string{"ATTLOGStamp": "9999"}))

	list, err := e.devices.List(e.ctx, e.acme.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "9999", list[0].Settings.Get("ATTLOGStamp", ""))
	assert.Equal(t, "10", list[0].Settings.Get("Delay", ""))
	assert.NotEmpty(t, list[0].LastSyncAt)

	err = e.devices.RecordTransfer(e.ctx, e.acme.ID, "NOPE", map[string]string{"ATTLOGStamp": "1"})
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestDecodeSettingsTolerance(t *testing.T) {
	s := decodeSettings("SN001", `{"Delay":10,"TransFlag":"TransData AttLog"}`)
	assert.Equal(t, "10", s.Get("Delay", ""))
	assert.Equal(t, "TransData AttLog", s.Get("TransFlag", ""))

	assert.Empty(t, decodeSettings("SN001", "{not json"))
	assert.Empty(t, decodeSettings("SN001", ""))
}
