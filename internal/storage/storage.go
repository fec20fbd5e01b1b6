// Package storage is the gateway to the object store holding uploaded
// invoice artifacts.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrObjectNotFound indicates the artifact is gone from the object store.
// The extraction path must tolerate this without treating it as fatal: the
// TTL reaper may have reclaimed the object mid-flight.
var ErrObjectNotFound = errors.New("object not found")

// UploadTicket is a short-lived write URL a client uploads directly to,
// plus the object path the resulting document record will reference.
type UploadTicket struct {
	UploadURL  string `json:"upload_url"`
	ObjectPath string `json:"object_path"`
	Token      string `json:"token,omitempty"`
}

type Storage interface {
	// RequestUploadURL issues a signed write URL for a client-side upload.
	RequestUploadURL(ctx context.Context, name string, size int64, contentType string) (*UploadTicket, error)
	Upload(ctx context.Context, path string, data io.Reader, contentType string) error
	Download(ctx context.Context, path string) (io.ReadCloser, error)
	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, path string) error
	GetPublicURL(path string) string
}
