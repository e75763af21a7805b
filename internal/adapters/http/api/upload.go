package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/okian/skincheck/internal/domain/imaging"
)

const imageField = "image"

type base64Request struct {
	ImageBase64 string `json:"image_base64"`
}

// readImage extracts the encoded image from a multipart form field
// "image", a JSON body {"image_base64": ...} or a raw image body.
func readImage(w http.ResponseWriter, r *http.Request, maxBytes int64) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	ct := r.Header.Get("Content-Type")
	mediaType := ""
	if ct != "" {
		var err error
		if mediaType, _, err = mime.ParseMediaType(ct); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnsupportedMedia, err)
		}
	}

	switch {
	case mediaType == "multipart/form-data":
		if err := r.ParseMultipartForm(maxBytes); err != nil {
			return nil, bodyError(err)
		}
		f, _, err := r.FormFile(imageField)
		if err != nil {
			return nil, fmt.Errorf("%w: form field %q: %w", ErrBadRequest, imageField, err)
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			return nil, bodyError(err)
		}
		return data, nil

	case mediaType == "application/json":
		var req base64Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, bodyError(err)
		}
		if strings.TrimSpace(req.ImageBase64) == "" {
			return nil, fmt.Errorf("%w: missing image_base64", ErrBadRequest)
		}
		data, err := imaging.DecodeBase64(r.Context(), req.ImageBase64)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBadRequest, err)
		}
		return data, nil

	case mediaType == "", mediaType == "application/octet-stream", strings.HasPrefix(mediaType, "image/"):
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, bodyError(err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedMedia, mediaType)
}

func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return fmt.Errorf("%w: limit %d bytes", ErrTooLarge, tooLarge.Limit)
	}
	return fmt.Errorf("%w: %w", ErrBadRequest, err)
}

// uploadStatus maps readImage failures to a status and error code.
func uploadStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "too_large"
	case errors.Is(err, ErrUnsupportedMedia):
		return http.StatusUnsupportedMediaType, "unsupported_media_type"
	default:
		return http.StatusBadRequest, "bad_request"
	}
}
