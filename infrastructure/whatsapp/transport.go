package whatsapp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waCommon"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"google.golang.org/protobuf/proto"

	"github.com/jonadableite/WhatLead-sub000/dispatch/domain/common"
)

// Transport sends outbound actions over whatsmeow. It implements
// common.Transport; one Transport serves every registered instance.
type Transport struct {
	registry *Registry
	log      *logrus.Entry
}

func NewTransport(registry *Registry) *Transport {
	return &Transport{
		registry: registry,
		log:      logrus.WithField("component", "whatsapp"),
	}
}

func (t *Transport) Capabilities() common.Capabilities {
	return common.Capabilities{
		Reactions:  true,
		Presence:   true,
		MarkAsRead: true,
	}
}

// parseJID converts a target into a whatsmeow JID. Plain numbers default to
// the user server; group targets use the group server.
func parseJID(target common.Target) (types.JID, error) {
	if strings.Contains(target.Value, "@") {
		return types.ParseJID(target.Value)
	}
	if target.Kind == common.TargetGroup {
		return types.NewJID(target.Value, types.GroupServer), nil
	}
	return types.NewJID(target.Value, types.DefaultUserServer), nil
}

func (t *Transport) send(ctx context.Context, instanceID string, target common.Target, msg *waE2E.Message) (common.SendResult, error) {
	client, err := t.registry.Get(instanceID)
	if err != nil {
		return common.SendResult{ErrorCode: common.ErrCodeSendFailed}, err
	}

	jid, err := parseJID(target)
	if err != nil {
		return common.SendResult{ErrorCode: common.ErrCodeSendFailed}, fmt.Errorf("invalid JID: %w", err)
	}

	resp, err := client.SendMessage(ctx, jid, msg)
	if err != nil {
		code := common.ErrCodeSendFailed
		if ctx.Err() != nil {
			code = common.ErrCodeTimeout
		}
		return common.SendResult{ErrorCode: code}, err
	}

	return common.SendResult{
		Success:   true,
		MessageID: resp.ID,
		Timestamp: resp.Timestamp,
	}, nil
}

func (t *Transport) SendText(ctx context.Context, instanceID string, target common.Target, text string) (common.SendResult, error) {
	msg := &waE2E.Message{
		ExtendedTextMessage: &waE2E.ExtendedTextMessage{
			Text: proto.String(text),
		},
	}
	return t.send(ctx, instanceID, target, msg)
}

func (t *Transport) SendMedia(ctx context.Context, instanceID string, target common.Target, media common.MediaPayload) (common.SendResult, error) {
	client, err := t.registry.Get(instanceID)
	if err != nil {
		return common.SendResult{ErrorCode: common.ErrCodeSendFailed}, err
	}

	mType := whatsmeow.MediaDocument
	switch {
	case strings.HasPrefix(media.MimeType, "image/"):
		mType = whatsmeow.MediaImage
	case strings.HasPrefix(media.MimeType, "video/"):
		mType = whatsmeow.MediaVideo
	case strings.HasPrefix(media.MimeType, "audio/"):
		mType = whatsmeow.MediaAudio
	}

	uploaded, err := client.Upload(ctx, media.Data, mType)
	if err != nil {
		return common.SendResult{ErrorCode: common.ErrCodeSendFailed}, fmt.Errorf("failed to upload media: %w", err)
	}

	msg := &waE2E.Message{}
	switch mType {
	case whatsmeow.MediaImage:
		msg.ImageMessage = &waE2E.ImageMessage{
			URL:           proto.String(uploaded.URL),
			DirectPath:    proto.String(uploaded.DirectPath),
			MediaKey:      uploaded.MediaKey,
			Mimetype:      proto.String(media.MimeType),
			FileEncSHA256: uploaded.FileEncSHA256,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    proto.Uint64(uploaded.FileLength),
			Caption:       proto.String(media.Caption),
		}
	case whatsmeow.MediaVideo:
		msg.VideoMessage = &waE2E.VideoMessage{
			URL:           proto.String(uploaded.URL),
			DirectPath:    proto.String(uploaded.DirectPath),
			MediaKey:      uploaded.MediaKey,
			Mimetype:      proto.String(media.MimeType),
			FileEncSHA256: uploaded.FileEncSHA256,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    proto.Uint64(uploaded.FileLength),
			Caption:       proto.String(media.Caption),
		}
	case whatsmeow.MediaAudio:
		msg.AudioMessage = &waE2E.AudioMessage{
			URL:           proto.String(uploaded.URL),
			DirectPath:    proto.String(uploaded.DirectPath),
			MediaKey:      uploaded.MediaKey,
			Mimetype:      proto.String(media.MimeType),
			FileEncSHA256: uploaded.FileEncSHA256,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    proto.Uint64(uploaded.FileLength),
			PTT:           proto.Bool(media.PTT),
		}
	default:
		msg.DocumentMessage = &waE2E.DocumentMessage{
			URL:           proto.String(uploaded.URL),
			DirectPath:    proto.String(uploaded.DirectPath),
			MediaKey:      uploaded.MediaKey,
			Mimetype:      proto.String(media.MimeType),
			FileEncSHA256: uploaded.FileEncSHA256,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    proto.Uint64(uploaded.FileLength),
			Caption:       proto.String(media.Caption),
			FileName:      proto.String(media.FileName),
		}
	}

	return t.send(ctx, instanceID, target, msg)
}

func (t *Transport) SendAudio(ctx context.Context, instanceID string, target common.Target, audio common.MediaPayload) (common.SendResult, error) {
	if audio.MimeType == "" {
		audio.MimeType = "audio/ogg; codecs=opus"
	}
	audio.PTT = true
	return t.SendMedia(ctx, instanceID, target, audio)
}

func (t *Transport) SendReaction(ctx context.Context, instanceID string, target common.Target, reaction common.ReactionPayload) (common.SendResult, error) {
	if reaction.MessageID == "" {
		return common.SendResult{ErrorCode: common.ErrCodeReactionMissingRef},
			fmt.Errorf("reaction requires a message reference")
	}

	jid, err := parseJID(target)
	if err != nil {
		return common.SendResult{ErrorCode: common.ErrCodeSendFailed}, fmt.Errorf("invalid JID: %w", err)
	}

	msg := &waE2E.Message{
		ReactionMessage: &waE2E.ReactionMessage{
			Key: &waCommon.MessageKey{
				FromMe:    proto.Bool(false),
				ID:        proto.String(reaction.MessageID),
				RemoteJID: proto.String(jid.String()),
			},
			Text:              proto.String(reaction.Emoji),
			SenderTimestampMS: proto.Int64(time.Now().UnixMilli()),
		},
	}
	return t.send(ctx, instanceID, target, msg)
}

func (t *Transport) SetPresence(ctx context.Context, instanceID string, target common.Target, typing bool) error {
	client, err := t.registry.Get(instanceID)
	if err != nil {
		return err
	}

	jid, err := parseJID(target)
	if err != nil {
		return err
	}

	presence := types.ChatPresenceComposing
	if !typing {
		presence = types.ChatPresencePaused
	}

	t.log.Debugf("[WHATSAPP] Chat presence (typing: %v) to %s", typing, target.Value)
	return client.SendChatPresence(ctx, jid, presence, types.ChatPresenceMediaText)
}

func (t *Transport) MarkAsRead(ctx context.Context, instanceID string, target common.Target, messageIDs []string) error {
	client, err := t.registry.Get(instanceID)
	if err != nil {
		return err
	}

	jid, err := parseJID(target)
	if err != nil {
		return err
	}

	if client.Store == nil || client.Store.ID == nil {
		return fmt.Errorf("instance %s is not logged in", instanceID)
	}

	ids := make([]types.MessageID, len(messageIDs))
	for i, id := range messageIDs {
		ids[i] = types.MessageID(id)
	}
	return client.MarkRead(ctx, ids, time.Now(), jid, *client.Store.ID)
}
