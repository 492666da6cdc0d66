package services

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"admsserver/models"
	"admsserver/query"
)

const attlogBody = "1001\t2024-03-01 08:59:12\t0\t1\t0\t0\n1002\t2024-03-01 09:01:44\t0\t15\t0\t0\n"

func TestSubmitDeduplicatesRetransmissions(t *testing.T) {
	e := newEnv(t)
	q := &recordingQueue{}
	ing := NewIngestor(e.dbs, e.devices, e.store, q, e.activity, time.Minute)

	queued, err := ing.Submit(e.ctx, e.device, "attlog", "9999", attlogBody)
	require.NoError(t, err)
	assert.True(t, queued)

	queued, err = ing.Submit(e.ctx, e.device, "ATTLOG", "9999", attlogBody)
	require.NoError(t, err)
	assert.False(t, queued)

	// a different stamp is a different upload
	queued, err = ing.Submit(e.ctx, e.device, "ATTLOG", "10000", attlogBody)
	require.NoError(t, err)
	assert.True(t, queued)

	assert.Equal(t, 2, q.count(JobIngest))

	var job IngestJob
	require.NoError(t, json.Unmarshal(q.jobs[0].Payload, &job))
	assert.Equal(t, QueueIngest, q.jobs[0].Queue)
	assert.Equal(t, "ATTLOG", job.Table)
	assert.Equal(t, "SN001", job.SerialNumber)
	assert.Equal(t, e.acme.ID, job.TenantID)
}

func TestIngestAttendanceEndToEnd(t *testing.T) {
	e := newEnv(t)
	e.start(t)

	queued, err := e.ingestor.Submit(e.ctx, e.device, "ATTLOG", "9999", attlogBody)
	require.NoError(t, err)
	require.True(t, queued)
	e.drain(t)

	db, _, err := e.dbs.Open(e.ctx, e.acme.ID)
	require.NoError(t, err)
	n, err := db.Count(e.ctx, query.Count("attendance_logs").Where(query.Eq("device_sn", "SN001")))
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	// the same records under another stamp are ignored by the unique key
	queued, err = e.ingestor.Submit(e.ctx, e.device, "ATTLOG", "10000", attlogBody)
	require.NoError(t, err)
	require.True(t, queued)
	e.drain(t)
	n, err = db.Count(e.ctx, query.Count("attendance_logs"))
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	list, err := e.devices.List(e.ctx, e.acme.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "10000", list[0].Settings.Get("ATTLOGStamp", ""))
	assert.NotEmpty(t, list[0].LastSyncAt)

	logs, err := e.activity.Recent(e.ctx, e.acme.ID, "SN001", 10)
	require.NoError(t, err)
	require.NotEmpty(t, logs)
	assert.Equal(t, models.DeviceActionDataUploaded, logs[0].Action)
}

func TestIngestUsersAreEncryptedAndUpserted(t *testing.T) {
	e := newEnv(t)

	run := func(body string) {
		payload, err := json.Marshal(IngestJob{
			TenantID:     e.acme.ID,
			SerialNumber: "SN001",
			Table:        "OPERLOG",
			Stamp:        "77",
			Body:         body,
		})
		require.NoError(t, err)
		require.NoError(t, e.ingestor.HandleIngest(e.ctx, payload))
	}

	run("USER PIN=7\tName=Kim Minji\tPri=0\tPasswd=\tCard=12345\tGrp=1\tTZ=0000000100000000\tVerify=0\n" +
		"FP PIN=7\tFID=6\tSize=1024\tValid=1\tTMP=ocosgoulTUEdNKVRwRQ0I27BDTEkdMEONK9KQQunMVSBK6VPLEENk9MwgQ==\n" +
		"OPLOG 4\t0\t2024-03-01 09:00:00\t0\t0\t0\t0\n")
	run("USER PIN=7\tName=Kim Minji Updated\tPri=14\tPasswd=\tCard=12345\tGrp=1\tTZ=0000000100000000\tVerify=0\n")

	db, _, err := e.dbs.Open(e.ctx, e.acme.ID)
	require.NoError(t, err)

	recs, err := db.Fetch(e.ctx, query.Select("device_users", "pin", "name", "card", "privilege"))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Kim Minji Updated", recs[0].String("name"))
	assert.Equal(t, "12345", recs[0].String("card"))
	assert.Equal(t, "14", recs[0].String("privilege"))

	var raw []byte
	require.NoError(t, db.Conn().DB.QueryRowContext(e.ctx,
		`SELECT name FROM device_users WHERE pin = '7'`).Scan(&raw))
	assert.NotContains(t, string(raw), "Kim")

	// lookups by an encrypted column go through the search hash
	rec, err := db.First(e.ctx, query.Select("device_users", "pin").Where(query.Eq("card", "12345")))
	require.NoError(t, err)
	assert.Equal(t, "7", rec.String("pin"))

	n, err := db.Count(e.ctx, query.Count("biometric_templates").Where(query.Eq("pin", "7")))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	list, err := e.devices.List(e.ctx, e.acme.ID)
	require.NoError(t, err)
	assert.Equal(t, "77", list[0].Settings.Get("OPERLOGStamp", ""))
}

func TestHandleIngestRejectsBadPayload(t *testing.T) {
	e := newEnv(t)
	assert.Error(t, e.ingestor.HandleIngest(e.ctx, []byte("{")))
}
