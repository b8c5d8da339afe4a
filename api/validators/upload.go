package validators

import (
	"errors"
	"io"
	"net/http"

	pkgerrors "github.com/angelmondragon/storefront-orders/pkg/errors"
)

const (
	defaultMaxUploadBytes = 5 << 20
	multipartOverhead     = 64 << 10
)

// ReadMultipartFile returns the bytes of one file field, rejecting bodies
// larger than maxBytes.
func ReadMultipartFile(w http.ResponseWriter, r *http.Request, field string, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		maxBytes = defaultMaxUploadBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, uploadTooLarge(field, maxBytes)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid multipart body")
	}

	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(map[string]string{field: "is required"})
	}
	defer file.Close()
	if header.Size > maxBytes {
		return nil, uploadTooLarge(field, maxBytes)
	}

	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read upload")
	}
	if int64(len(data)) > maxBytes {
		return nil, uploadTooLarge(field, maxBytes)
	}
	if len(data) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(map[string]string{field: "is empty"})
	}
	return data, nil
}

func uploadTooLarge(field string, maxBytes int64) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "upload too large").WithDetails(map[string]any{"field": field, "max_bytes": maxBytes})
}
