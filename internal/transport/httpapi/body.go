package httpapi

import (
	"io"
	"net/http"

	"github.com/gcregistry/registry/internal/apperrors"
)

const defaultMaxBodyBytes = 10 << 20 // 10 MiB

// readAll reads r.Body up to the configured limit, rejecting bodies that
// overrun it rather than silently truncating them.
func readAll(r *http.Request) ([]byte, error) {
	limit := defaultMaxBodyBytes
	body, err := io.ReadAll(io.LimitReader(r.Body, int64(limit)+1))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindValidation, "VAL_BODY_UNREADABLE", "request body could not be read", err)
	}
	if len(body) > limit {
		return nil, apperrors.Validation("VAL_BODY_TOO_LARGE", "request body exceeds the maximum accepted size").
			WithDetails("limit_bytes", limit)
	}
	return body, nil
}
