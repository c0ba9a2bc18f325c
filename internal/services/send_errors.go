package services

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	apperrors "github.com/saeid-a/MedLinkBack/pkg/errors"
)

// SendFailure is the class of a rejected message write.
type SendFailure string

const (
	SendFailureIntegrity  SendFailure = "integrity"
	SendFailurePermission SendFailure = "permission"
	SendFailureSchema     SendFailure = "schema"
	SendFailureGeneric    SendFailure = "generic"
)

// ClassifySendError maps a failed message write to the error shown to the
// sender. The returned error wraps err.
func ClassifySendError(err error) (SendFailure, error) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return SendFailureGeneric, apperrors.WithCause(apperrors.ErrSendFailed, err)
	}

	switch {
	case pgErr.Code == "23503" || pgErr.Code == "23502":
		return SendFailureIntegrity, apperrors.WithCause(apperrors.ErrSendTargetMissing, err)
	case pgErr.Code == "42501" || strings.HasPrefix(pgErr.Code, "28"):
		return SendFailurePermission, apperrors.WithCause(apperrors.ErrSendPermissionDenied, err)
	case strings.HasPrefix(pgErr.Code, "42"):
		// Undefined column, table or function: the caller's schema is stale.
		return SendFailureSchema, apperrors.WithCause(apperrors.ErrSendSchemaMismatch, err)
	default:
		return SendFailureGeneric, apperrors.WithCause(apperrors.ErrSendFailed, err)
	}
}
