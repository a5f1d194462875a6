package workers

import (
	"testing"
	"time"

	"live-arena-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, time.March, 14, 12, 0, 0, 0, time.UTC)

func TestNormalizeGift(t *testing.T) {
	raw := `{"type":"gift","data":{"msgId":"9001","userId":123,"nickname":" Ana ","uniqueId":"ana_live",
		"giftName":"Money Gun","diamondCount":500,"repeatCount":2,"giftType":1,"repeatEnd":true,
		"receiverUserId":"host","fanClubLevel":4}}`
	ev, err := NormalizeFeedMessage([]byte(raw), now)
	require.NoError(t, err)

	g, ok := ev.(*models.GiftEvent)
	require.True(t, ok)
	assert.Equal(t, "9001", g.MsgID)
	assert.Equal(t, "123", g.From.ExternalID)
	assert.Equal(t, "Ana", g.From.Nickname)
	assert.Equal(t, "ana_live", g.From.Handle)
	assert.Equal(t, 4, g.From.FanClubLevel)
	assert.EqualValues(t, 500, g.UnitValue)
	assert.Equal(t, 2, g.RepeatCount)
	assert.True(t, g.Streakable)
	assert.True(t, g.RepeatEnd)
	assert.Equal(t, "host", g.ReceiverID)
}

func TestNormalizeFlatChat(t *testing.T) {
	ev, err := NormalizeFeedMessage([]byte(`{"type":"comment","msg_id":"c1","user_id":"u1","comment":"!join"}`), now)
	require.NoError(t, err)
	c, ok := ev.(*models.ChatEvent)
	require.True(t, ok)
	assert.Equal(t, "!join", c.Text)
	assert.Equal(t, models.EventChat, c.Kind())
}

func TestNormalizeMember(t *testing.T) {
	ev, err := NormalizeFeedMessage([]byte(`{"type":"member","data":{"msgId":"m1","userId":"u1","actionId":1}}`), now)
	require.NoError(t, err)
	m, ok := ev.(*models.MemberEvent)
	require.True(t, ok)
	assert.Equal(t, models.MemberJoined, m.Action)

	_, err = NormalizeFeedMessage([]byte(`{"type":"member","data":{"msgId":"m2","userId":"u1","actionId":7}}`), now)
	assert.ErrorIs(t, err, ErrUnsupportedEvent)
}

func TestNormalizeRejects(t *testing.T) {
	cases := map[string]error{
		`not json`:                                      ErrMalformedPayload,
		`{"type":"like","userId":"u1"}`:                 ErrUnsupportedEvent,
		`{"type":"gift","giftName":"Rose"}`:             ErrMissingSender,
		`{"type":"gift","userId":"u1"}`:                 ErrMalformedPayload,
		`{"type":"chat","userId":"u1","comment":"   "}`: ErrMalformedPayload,
	}
	for raw, want := range cases {
		_, err := NormalizeFeedMessage([]byte(raw), now)
		assert.ErrorIs(t, err, want, raw)
	}
}

func TestNormalizeSynthesizesMissingID(t *testing.T) {
	ev, err := NormalizeFeedMessage([]byte(`{"type":"chat","userId":"u1","comment":"hi"}`), now)
	require.NoError(t, err)
	assert.Contains(t, ev.MessageID(), "synthetic-")
}
