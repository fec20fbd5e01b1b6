package storage

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(handler http.HandlerFunc) (*SupabaseStorage, *httptest.Server) {
	srv := httptest.NewServer(handler)
	return NewSupabaseStorage(srv.URL, "service-key", "invoices"), srv
}

func TestRequestUploadURL(t *testing.T) {
	var gotPath, gotAuth string
	s, srv := newTestStorage(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(map[string]string{
			"url":   "/object/upload/sign/invoices/signed-path",
			"token": "upload-token",
		})
	})
	defer srv.Close()

	ticket, err := s.RequestUploadURL(context.Background(), "invoice.pdf", 2048, "application/pdf")
	require.NoError(t, err)

	assert.Equal(t, "Bearer service-key", gotAuth)
	assert.True(t, strings.HasPrefix(gotPath, "/storage/v1/object/upload/sign/invoices/"))
	assert.Equal(t, "upload-token", ticket.Token)
	assert.Contains(t, ticket.UploadURL, "/storage/v1/object/upload/sign/invoices/signed-path")

	// Object paths are date-prefixed with the original extension preserved.
	parts := strings.SplitN(ticket.ObjectPath, "/", 2)
	require.Len(t, parts, 2)
	assert.Len(t, parts[0], 8)
	assert.True(t, strings.HasSuffix(parts[1], ".pdf"))
}

func TestRequestUploadURLServerError(t *testing.T) {
	s, srv := newTestStorage(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bucket not found", http.StatusNotFound)
	})
	defer srv.Close()

	_, err := s.RequestUploadURL(context.Background(), "invoice.pdf", 2048, "application/pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestDownload(t *testing.T) {
	s, srv := newTestStorage(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/storage/v1/object/invoices/20260101/abc.pdf", r.URL.Path)
		w.Write([]byte("pdf bytes"))
	})
	defer srv.Close()

	reader, err := s.Download(context.Background(), "20260101/abc.pdf")
	require.NoError(t, err)
	defer reader.Close()

	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "pdf bytes", string(data))
}

func TestDownloadNotFound(t *testing.T) {
	s, srv := newTestStorage(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})
	defer srv.Close()

	_, err := s.Download(context.Background(), "20260101/gone.pdf")
	require.ErrorIs(t, err, ErrObjectNotFound)
}

func TestDeleteIdempotentOnMissingObject(t *testing.T) {
	s, srv := newTestStorage(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})
	defer srv.Close()

	err := s.Delete(context.Background(), "20260101/gone.pdf")
	require.NoError(t, err)
}

func TestDeleteServerError(t *testing.T) {
	s, srv := newTestStorage(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal", http.StatusInternalServerError)
	})
	defer srv.Close()

	err := s.Delete(context.Background(), "20260101/abc.pdf")
	require.Error(t, err)
}

func TestUpload(t *testing.T) {
	var gotBody string
	var gotContentType string
	s, srv := newTestStorage(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	})
	defer srv.Close()

	err := s.Upload(context.Background(), "20260101/abc.pdf", strings.NewReader("pdf bytes"), "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, "pdf bytes", gotBody)
	assert.Equal(t, "application/pdf", gotContentType)
}

func TestGetPublicURL(t *testing.T) {
	s := NewSupabaseStorage("https://example.supabase.co", "key", "invoices")
	url := s.GetPublicURL("20260101/abc.pdf")
	assert.Equal(t, "https://example.supabase.co/storage/v1/object/public/invoices/20260101/abc.pdf", url)
}
