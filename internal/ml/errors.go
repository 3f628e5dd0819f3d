package ml

import "errors"

var (
	// ErrInsufficientTrainingData is returned when the labeled corpus is too
	// small to train on. No version is created in that case.
	ErrInsufficientTrainingData = errors.New("insufficient training data")

	// ErrModelLoad is returned by Runtime.Reload when an artifact is missing
	// or corrupt. The previously active model keeps serving.
	ErrModelLoad = errors.New("model load failed")
)
