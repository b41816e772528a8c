package storage

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/sesly/sesly-engine/internal/config"
)

func TestContentTypeFor(t *testing.T) {
	cases := []struct {
		name, want string
	}{
		{"Toplanti_Raporu_20260824_120000_ab12cd34.html", "text/html"},
		{"transcript_20260824_120000_ab12cd34.txt", "text/plain"},
		{"rapor.PDF", "application/pdf"},
		{"chunk_001.webm", "audio/webm"},
		{"noext", "application/octet-stream"},
	}
	for _, c := range cases {
		if got := ContentTypeFor(c.name); got != c.want {
			t.Errorf("ContentTypeFor(%q) = %q, want %q", c.name, got, c.want)
		}
	}
}

func TestPublicURL(t *testing.T) {
	got := PublicURL("https://proj.supabase.co/", "reports", "r.html")
	want := "https://proj.supabase.co/storage/v1/object/public/reports/r.html"
	if got != want {
		t.Errorf("PublicURL = %q, want %q", got, want)
	}
}

func TestSupabaseStoreUpload(t *testing.T) {
	var gotPath, gotAuth, gotUpsert, gotType string
	var gotBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotUpsert = r.Header.Get("x-upsert")
		gotType = r.Header.Get("Content-Type")
		buf := make([]byte, r.ContentLength)
		r.Body.Read(buf)
		gotBody = buf
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"Key":"reports/r.html"}`))
	}))
	defer srv.Close()

	store := NewSupabaseStore(srv.URL, "service-key", zerolog.Nop())
	url, err := store.Upload(context.Background(), "reports", "r.html", []byte("<html>"), "text/html")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	if gotPath != "/storage/v1/object/reports/r.html" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer service-key" {
		t.Errorf("auth = %q", gotAuth)
	}
	if gotUpsert != "true" {
		t.Errorf("x-upsert = %q", gotUpsert)
	}
	if gotType != "text/html" {
		t.Errorf("content-type = %q", gotType)
	}
	if string(gotBody) != "<html>" {
		t.Errorf("body = %q", gotBody)
	}
	if want := srv.URL + "/storage/v1/object/public/reports/r.html"; url != want {
		t.Errorf("url = %q, want %q", url, want)
	}
}

func TestSupabaseStoreUploadError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":"invalid signature"}`))
	}))
	defer srv.Close()

	store := NewSupabaseStore(srv.URL, "bad-key", zerolog.Nop())
	_, err := store.Upload(context.Background(), "reports", "r.html", []byte("x"), "text/html")
	if err == nil {
		t.Fatal("Upload succeeded on 403")
	}
}

func TestNewSelectsBackend(t *testing.T) {
	log := zerolog.Nop()

	t.Run("disabled_without_credentials", func(t *testing.T) {
		store, err := New(&config.Config{}, log)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if store.Type() != "disabled" {
			t.Errorf("Type = %q, want disabled", store.Type())
		}
		_, err = store.Upload(context.Background(), "reports", "x", nil, "")
		if !errors.Is(err, ErrNotConfigured) {
			t.Errorf("Upload err = %v, want ErrNotConfigured", err)
		}
	})

	t.Run("rest_with_service_key", func(t *testing.T) {
		cfg := &config.Config{SupabaseURL: "https://p.supabase.co", SupabaseServiceKey: "k"}
		store, err := New(cfg, log)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if store.Type() != "supabase-rest" {
			t.Errorf("Type = %q, want supabase-rest", store.Type())
		}
	})

	t.Run("s3_with_keys", func(t *testing.T) {
		cfg := &config.Config{
			SupabaseURL:      "https://p.supabase.co",
			StorageAccessKey: "ak",
			StorageSecretKey: "sk",
			StorageRegion:    "us-east-1",
		}
		store, err := New(cfg, log)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if store.Type() != "s3" {
			t.Errorf("Type = %q, want s3", store.Type())
		}
	})
}
