package server

import (
	"github.com/teranos/tabula/artifact"
	"github.com/teranos/tabula/errors"
	"github.com/teranos/tabula/pipeline"
)

// Sentinel errors for request handling. Wrap them to add context.
var (
	// ErrNotFound indicates the requested resource does not exist
	ErrNotFound = errors.New("not found")

	// ErrUnavailable indicates an optional collaborator is not configured
	ErrUnavailable = errors.New("service unavailable")

	// ErrUnsupportedFile rejects uploads that are not .csv
	ErrUnsupportedFile = errors.Sentinel("only .csv files are supported", errors.ErrInput)

	// ErrMissingConfig rejects process requests without config_json
	ErrMissingConfig = errors.Sentinel("missing config_json", errors.ErrConfig)

	// ErrFileTooLarge rejects uploads above server.max_upload_mb
	ErrFileTooLarge = errors.Sentinel("file exceeds the upload limit", errors.ErrInput)

	// ErrInvalidRequest indicates the request was malformed
	ErrInvalidRequest = errors.Sentinel("invalid request", errors.ErrInput)
)

// classify folds lower-layer lookup errors into the server's sentinels.
func classify(err error) error {
	switch {
	case errors.Is(err, artifact.ErrNotFound), errors.Is(err, pipeline.ErrRunNotFound):
		return errors.Mark(err, ErrNotFound)
	case errors.Is(err, artifact.ErrInvalidID):
		return errors.Mark(err, ErrInvalidRequest)
	default:
		return err
	}
}
