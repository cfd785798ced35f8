package validations

import (
	"context"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	pkgError "github.com/jonadableite/WhatLead-sub000/pkg/error"
)

type createInstanceInput struct {
	TenantID string
	Name     string
	Purpose  string
}

func ValidateCreateInstance(ctx context.Context, tenantID, name, purpose string) error {
	input := createInstanceInput{TenantID: tenantID, Name: name, Purpose: purpose}
	err := validation.ValidateStructWithContext(ctx, &input,
		validation.Field(&input.TenantID, validation.Required),
		validation.Field(&input.Name, validation.Required, validation.Length(1, 100)),
		validation.Field(&input.Purpose, validation.Required,
			validation.In("WARMUP", "DISPATCH", "MIXED")),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}
