package qr

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionPayloadRoundTrip(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	p := NewSessionPayload(42, "abc123", "Networks", "Dr. Rao", 10001, now.Add(300*time.Second))
	assert.Equal(t, int64(1_700_000_300_000), p.ExpiresAt)

	raw, err := Encode(p)
	require.NoError(t, err)
	assert.Contains(t, raw, `"rid":42`)
	assert.Contains(t, raw, `"s_id":10001`)

	decoded, err := DecodeSession(raw)
	require.NoError(t, err)
	assert.Equal(t, p, decoded)
	assert.False(t, decoded.Expired(now))
	assert.True(t, decoded.Expired(now.Add(301*time.Second)))
}

func TestDecodeSessionRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "not json", `{"rid":0,"t":"x"}`, `{"rid":4}`} {
		_, err := DecodeSession(raw)
		assert.ErrorIs(t, err, ErrMalformed, raw)
	}
}

func TestBatchPayload(t *testing.T) {
	_, err := NewBatchPayload(1, "tok", "OS", []int64{0, -1}, time.Now())
	require.Error(t, err)

	p, err := NewBatchPayload(1, "tok", "OS", []int64{103, 101, 103}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, []int64{101, 103}, p.Rolls)

	raw, err := Encode(p)
	require.NoError(t, err)
	decoded, err := DecodeBatch(raw)
	require.NoError(t, err)
	assert.Equal(t, TypeBatch, decoded.Type)
	assert.Equal(t, p.Rolls, decoded.Rolls)

	_, err = DecodeBatch(`{"type":"session","rid":1,"t":"x"}`)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestRenderProducesPNG(t *testing.T) {
	png, err := RenderSession(NewSessionPayload(1, "tok", "OS", "F", 0, time.Now().Add(time.Minute)))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

	batch, err := NewBatchPayload(1, "tok", "OS", []int64{1, 2}, time.Now())
	require.NoError(t, err)
	png, err = RenderBatch(batch)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
}
