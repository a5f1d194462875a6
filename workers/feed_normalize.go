// workers/feed_normalize.go
package workers

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"live-arena-system/models"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

var (
	ErrMalformedPayload = errors.New("malformed feed payload")
	ErrUnsupportedEvent = errors.New("unsupported feed event")
	ErrMissingSender    = errors.New("feed event has no sender id")
)

// NormalizeFeedMessage turns one raw bridge message into a strict event record.
//
// The bridge is loose about its schema: payloads may be flat or wrapped in "data",
// ids may be numbers or strings, and field names drift between camelCase and
// snake_case. Everything that cannot be normalized is rejected here.
func NormalizeFeedMessage(raw []byte, now time.Time) (models.LiveEvent, error) {
	if !gjson.ValidBytes(raw) {
		return nil, ErrMalformedPayload
	}
	root := gjson.ParseBytes(raw)
	body := root
	if data := root.Get("data"); data.IsObject() {
		body = data
	}

	kind := strings.ToLower(first(root, "type", "event", "kind").String())
	if kind == "" {
		kind = strings.ToLower(first(body, "type", "event").String())
	}

	msgID := first(body, "msgId", "msg_id", "id").String()
	if msgID == "" {
		msgID = first(root, "msgId", "msg_id", "id").String()
	}
	if msgID == "" {
		msgID = "synthetic-" + uuid.NewString()
	}

	sender := models.Sender{
		ExternalID:   first(body, "userId", "user_id", "user.userId", "user.id").String(),
		Nickname:     strings.TrimSpace(first(body, "nickname", "user.nickname").String()),
		Handle:       strings.TrimSpace(first(body, "uniqueId", "unique_id", "user.uniqueId").String()),
		FanClubLevel: int(first(body, "fanClubLevel", "fan_club_level", "user.fanClubLevel", "userDetails.fanClubLevel").Int()),
	}

	switch kind {
	case "gift":
		if sender.ExternalID == "" {
			return nil, ErrMissingSender
		}
		name := strings.TrimSpace(first(body, "giftName", "gift_name", "gift.name").String())
		if name == "" {
			return nil, fmt.Errorf("%w: gift without name", ErrMalformedPayload)
		}
		streakable := first(body, "streakable").Bool()
		if gt := body.Get("giftType"); gt.Exists() {
			streakable = gt.Int() == 1
		}
		return &models.GiftEvent{
			MsgID:       msgID,
			From:        sender,
			ReceiverID:  first(body, "receiverUserId", "receiver_id", "receiverId", "receiver.userId").String(),
			GiftID:      int(first(body, "giftId", "gift_id", "gift.id").Int()),
			GiftName:    name,
			UnitValue:   first(body, "diamondCount", "diamond_count", "unitValue", "gift.diamondCount").Int(),
			RepeatCount: int(first(body, "repeatCount", "repeat_count").Int()),
			Streakable:  streakable,
			RepeatEnd:   first(body, "repeatEnd", "repeat_end").Bool(),
			ReceivedAt:  now,
		}, nil

	case "chat", "comment":
		if sender.ExternalID == "" {
			return nil, ErrMissingSender
		}
		text := first(body, "comment", "text", "message").String()
		if strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("%w: empty comment", ErrMalformedPayload)
		}
		return &models.ChatEvent{MsgID: msgID, From: sender, Text: text, ReceivedAt: now}, nil

	case "member", "join":
		if sender.ExternalID == "" {
			return nil, ErrMissingSender
		}
		action := models.MemberAction(first(body, "actionId", "action_id", "action").Int())
		if kind == "join" && action == 0 {
			action = models.MemberJoined
		}
		if action != models.MemberJoined && action != models.MemberLeft {
			return nil, fmt.Errorf("%w: member action %d", ErrUnsupportedEvent, action)
		}
		return &models.MemberEvent{MsgID: msgID, From: sender, Action: action, ReceivedAt: now}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedEvent, kind)
}

// first returns the first path that exists in r.
func first(r gjson.Result, paths ...string) gjson.Result {
	for _, p := range paths {
		if v := r.Get(p); v.Exists() {
			return v
		}
	}
	return gjson.Result{}
}
