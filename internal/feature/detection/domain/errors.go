// Package domain defines domain-level errors for the detection feature.
package domain

import "errors"

var (
	// ErrInvalidContentType indicates the declared MIME type is not of the expected family.
	ErrInvalidContentType = errors.New("invalid content type")

	// ErrEmptyUpload indicates the uploaded file has no content.
	ErrEmptyUpload = errors.New("uploaded file is empty")

	// ErrUploadTooLarge indicates the uploaded file exceeds the configured limit.
	ErrUploadTooLarge = errors.New("uploaded file is too large")

	// ErrModelLoad indicates a checkpoint or pipeline could not be loaded.
	ErrModelLoad = errors.New("model load failed")

	// ErrInference wraps decode and forward-pass failures.
	ErrInference = errors.New("inference failed")

	// ErrUnsupportedAudioFormat indicates the audio container could not be recognized.
	ErrUnsupportedAudioFormat = errors.New("unsupported audio format")
)
