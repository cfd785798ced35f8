package validations

import (
	"context"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/jonadableite/WhatLead-sub000/dispatch/domain/common"
	"github.com/jonadableite/WhatLead-sub000/dispatch/domain/intent"
	pkgError "github.com/jonadableite/WhatLead-sub000/pkg/error"
)

type submitIntentInput struct {
	TenantID    string
	TargetKind  string
	TargetValue string
	Type        string
	Purpose     string
}

// ValidateSubmitIntent checks the request shape before an intent is created.
// Payload consistency (the right union member for the type) is checked
// separately because it depends on the type.
func ValidateSubmitIntent(ctx context.Context, tenantID string, target common.Target, typ intent.Type, purpose intent.Purpose) error {
	input := submitIntentInput{
		TenantID:    tenantID,
		TargetKind:  string(target.Kind),
		TargetValue: target.Value,
		Type:        string(typ),
		Purpose:     string(purpose),
	}
	err := validation.ValidateStructWithContext(ctx, &input,
		validation.Field(&input.TenantID, validation.Required),
		validation.Field(&input.TargetKind, validation.Required, validation.In("USER", "GROUP")),
		validation.Field(&input.TargetValue, validation.Required),
		validation.Field(&input.Type, validation.Required,
			validation.In("TEXT", "AUDIO", "MEDIA", "REACTION")),
		validation.Field(&input.Purpose, validation.Required,
			validation.In("WARMUP", "DISPATCH", "SCHEDULE")),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}

// ValidateIntentPayload enforces the tagged-union rule: exactly the member
// matching the intent type must be populated.
func ValidateIntentPayload(typ intent.Type, payload intent.Payload) error {
	switch typ {
	case intent.TypeText:
		if payload.Text == "" {
			return pkgError.ValidationError("text payload is required for TEXT intents")
		}
	case intent.TypeMedia:
		if payload.Media == nil || len(payload.Media.Data) == 0 {
			return pkgError.ValidationError("media payload is required for MEDIA intents")
		}
	case intent.TypeAudio:
		if payload.Audio == nil || len(payload.Audio.Data) == 0 {
			return pkgError.ValidationError("audio payload is required for AUDIO intents")
		}
	case intent.TypeReaction:
		if payload.Reaction == nil || payload.Reaction.Emoji == "" {
			return pkgError.ValidationError("reaction payload is required for REACTION intents")
		}
	}
	return nil
}
