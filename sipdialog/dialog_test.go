package sipdialog_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vtap/sipdialog"
)

func observeRaw(t *testing.T, d *sipdialog.Dialog, raw string, at time.Time) {
	t.Helper()
	msg, err := sipdialog.ParseMessage(raw)
	require.NoError(t, err)
	d.Observe(msg, at, nil)
}

func TestCleanCallLifecycle(t *testing.T) {
	d := sipdialog.NewDialog()
	now := time.Now()

	observeRaw(t, d, "INVITE sip:bob@example.com SIP/2.0\nCall-ID: abc\nFrom: <sip:a@x>;tag=1\nTo: <sip:b@x>\nCSeq: 1 INVITE\n\n", now)
	assert.Equal(t, sipdialog.StateTrying, d.State)

	observeRaw(t, d, "SIP/2.0 100 Trying\nCall-ID: abc\nCSeq: 1 INVITE\n\n", now)
	assert.Equal(t, sipdialog.StateTrying, d.State, "100 Trying must not transition")

	observeRaw(t, d, "SIP/2.0 200 OK\nCall-ID: abc\nTo: <sip:b@x>;tag=2\nCSeq: 1 INVITE\n\n", now)
	assert.Equal(t, sipdialog.StateEstablished, d.State)

	observeRaw(t, d, "BYE sip:bob@example.com SIP/2.0\nCall-ID: abc\nCSeq: 2 BYE\n\n", now)
	assert.Equal(t, sipdialog.StateTerminated, d.State)
	assert.True(t, d.BYESeen())
}

func TestOutOfOrderByeThenOK(t *testing.T) {
	d := sipdialog.NewDialog()
	now := time.Now()
	d.State = sipdialog.StateEstablished

	observeRaw(t, d, "SIP/2.0 200 OK\nCall-ID: abc\nCSeq: 2 BYE\n\n", now)
	assert.Equal(t, sipdialog.StateTerminated, d.State)
	first := d.LastBYESeen

	later := now.Add(time.Second)
	observeRaw(t, d, "BYE sip:bob@example.com SIP/2.0\nCall-ID: abc\nCSeq: 2 BYE\n\n", later)
	assert.Equal(t, first, d.LastBYESeen, "the first of the BYE/200 pair should not be refreshed")
}

func TestEarlyFailureTerminatesFromTrying(t *testing.T) {
	d := sipdialog.NewDialog()
	now := time.Now()
	observeRaw(t, d, "INVITE sip:bob@example.com SIP/2.0\nCall-ID: abc\nCSeq: 1 INVITE\n\n", now)
	observeRaw(t, d, "SIP/2.0 486 Busy Here\nCall-ID: abc\nCSeq: 1 INVITE\n\n", now)
	assert.Equal(t, sipdialog.StateTerminated, d.State)
}

func TestSDPCreatesStreamDescriptor(t *testing.T) {
	d := sipdialog.NewDialog()
	now := time.Now()
	raw := "INVITE sip:bob@example.com SIP/2.0\nCall-ID: abc\nCSeq: 1 INVITE\n\n" +
		"v=0\no=- 0 0 IN IP4 10.0.0.1\ns=-\nc=IN IP4 10.0.0.1\nt=0 0\n" +
		"m=audio 30000 RTP/AVP 0\na=rtpmap:0 PCMU/8000\n"
	observeRaw(t, d, raw, now)
	require.Len(t, d.Streams, 1)
	assert.Equal(t, 30000, d.Streams[0].Port)
	assert.Equal(t, "PCMU", d.Streams[0].Codec)
	assert.Equal(t, 8000, d.Streams[0].ClockRate)
}

func TestUnmatchedPayloadTypeKeepsEmptyCodec(t *testing.T) {
	d := sipdialog.NewDialog()
	raw := "INVITE sip:bob@example.com SIP/2.0\nCall-ID: abc\nCSeq: 1 INVITE\n\n" +
		"m=audio 30000 RTP/AVP 97\n"
	observeRaw(t, d, raw, time.Now())
	require.Len(t, d.Streams, 1)
	assert.Equal(t, "", d.Streams[0].Codec)
	assert.Equal(t, 0, d.Streams[0].ClockRate)
}
