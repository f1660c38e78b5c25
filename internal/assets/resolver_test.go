package assets_test

import (
	"context"
	"encoding/base64"
	"errors"
	"image/color"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"cardcast/internal/assets"
	"cardcast/internal/blobstore"
	"cardcast/internal/services"
	"cardcast/internal/testsupport"
)

func TestFetchDataURI(t *testing.T) {
	resolver := assets.NewResolver(nil)
	png := testsupport.PNGBytes(t, testsupport.SolidImage(3, 2, color.RGBA{R: 9, A: 0xff}))
	ref := "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)

	asset, err := resolver.Fetch(context.Background(), ref)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if asset.MIMEType != "image/png" || asset.Path != "" {
		t.Fatalf("unexpected asset: mime=%q path=%q", asset.MIMEType, asset.Path)
	}
	img, err := assets.DecodeImage(asset)
	if err != nil {
		t.Fatalf("DecodeImage: %v", err)
	}
	if img.Bounds().Dx() != 3 || img.Bounds().Dy() != 2 {
		t.Fatalf("unexpected bounds %v", img.Bounds())
	}
}

func TestParseDataURIPercentEncoded(t *testing.T) {
	mime, data, err := assets.ParseDataURI("data:text/plain,hello%20card")
	if err != nil {
		t.Fatalf("ParseDataURI: %v", err)
	}
	if mime != "text/plain" || string(data) != "hello card" {
		t.Fatalf("unexpected result %q %q", mime, data)
	}
	if _, _, err := assets.ParseDataURI("data:image/png;base64"); err == nil {
		t.Fatal("expected error without payload")
	}
}

func TestFetchHTTP(t *testing.T) {
	png := testsupport.PNGBytes(t, testsupport.SolidImage(1, 1, color.RGBA{A: 0xff}))
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/scene.png":
			w.Header().Set("Content-Type", "application/octet-stream")
			_, _ = w.Write(png)
		case "/huge":
			_, _ = w.Write(make([]byte, 1024))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	resolver := assets.NewResolver(nil, assets.WithHTTPClient(server.Client()), assets.WithMaxBytes(512))
	asset, err := resolver.Fetch(context.Background(), server.URL+"/scene.png")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if asset.MIMEType != "image/png" {
		t.Fatalf("expected sniffed png, got %q", asset.MIMEType)
	}

	if _, err := resolver.Fetch(context.Background(), server.URL+"/missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := resolver.Fetch(context.Background(), server.URL+"/huge"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected size limit validation error, got %v", err)
	}
}

func TestFetchFileAndBlob(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	path := filepath.Join(home, "cards", "scene.png")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, testsupport.PNGBytes(t, testsupport.SolidImage(2, 2, color.RGBA{A: 0xff})), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	blobs, err := blobstore.New(filepath.Join(home, "blobs"))
	if err != nil {
		t.Fatalf("blobstore.New: %v", err)
	}
	blob, err := blobs.Put([]byte("clip"), "video/webm", "clip")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	resolver := assets.NewResolver(nil, assets.WithBlobs(blobs))
	for _, ref := range []string{"~/cards/scene.png", "file://" + path} {
		asset, err := resolver.Fetch(context.Background(), ref)
		if err != nil {
			t.Fatalf("Fetch(%q): %v", ref, err)
		}
		if asset.Path != path {
			t.Fatalf("Fetch(%q) path = %q, want %q", ref, asset.Path, path)
		}
	}

	asset, err := resolver.Fetch(context.Background(), blob.URL)
	if err != nil {
		t.Fatalf("Fetch blob: %v", err)
	}
	if string(asset.Data) != "clip" || asset.MIMEType != "video/webm" {
		t.Fatalf("unexpected blob asset %+v", asset)
	}

	if _, err := resolver.Fetch(context.Background(), filepath.Join(home, "nope.png")); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing file, got %v", err)
	}
	if _, err := assets.NewResolver(nil).Fetch(context.Background(), blob.URL); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error without blob store, got %v", err)
	}
}

func TestMaterialize(t *testing.T) {
	dir := t.TempDir()
	path, cleanup, err := assets.Materialize(assets.Asset{MIMEType: "video/mp4", Data: []byte("mp4")}, dir)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if filepath.Ext(path) != ".mp4" {
		t.Fatalf("expected .mp4 extension, got %q", path)
	}
	if data, err := os.ReadFile(path); err != nil || string(data) != "mp4" {
		t.Fatalf("unexpected materialized content %q err=%v", data, err)
	}
	cleanup()
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected cleanup to remove %s", path)
	}

	existing, noop, err := assets.Materialize(assets.Asset{Path: "/already/here.mp4"}, dir)
	if err != nil || existing != "/already/here.mp4" {
		t.Fatalf("expected passthrough path, got %q err=%v", existing, err)
	}
	noop()

	if _, _, err := assets.Materialize(assets.Asset{}, dir); err == nil {
		t.Fatal("expected error for empty asset")
	}
}

func TestDecodeImageRejectsGarbage(t *testing.T) {
	if _, err := assets.DecodeImage(assets.Asset{Ref: "x", Data: []byte("nope")}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestConfineLocal(t *testing.T) {
	root := t.TempDir()
	inside := filepath.Join(root, "cards", "scene.png")
	testsupport.WriteFixture(t, inside, 16)
	outside := testsupport.WriteFixture(t, filepath.Join(t.TempDir(), "passwd"), 16)
	escape := filepath.Join(root, "escape.png")
	if err := os.Symlink(outside, escape); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	allowed := []string{
		"",
		"data:image/png;base64,AAAA",
		"https://cdn.example.com/scene.png",
		"blob:cardcast/1b4e28ba-2fa1-11d2-883f-0016d3cca427",
		inside,
		"file://" + inside,
	}
	for _, ref := range allowed {
		if err := assets.ConfineLocal(ref, root); err != nil {
			t.Errorf("ConfineLocal(%q): unexpected error %v", ref, err)
		}
	}

	rejected := []string{
		outside,
		"file://" + outside,
		filepath.Join(root, "..", filepath.Base(filepath.Dir(outside)), "passwd"),
		escape,
	}
	for _, ref := range rejected {
		if err := assets.ConfineLocal(ref, root); !errors.Is(err, services.ErrValidation) {
			t.Errorf("ConfineLocal(%q): expected validation error, got %v", ref, err)
		}
	}

	if err := assets.ConfineLocal(inside, ""); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected local files to be refused without a root, got %v", err)
	}
}

func TestIsLocalRefAndDataURI(t *testing.T) {
	if !assets.IsLocalRef("~/cards/scene.png") || !assets.IsLocalRef("file:///tmp/a.png") {
		t.Fatal("expected paths to be local")
	}
	for _, ref := range []string{"", "data:,x", "http://example.com/a.png", "blob:cardcast/1b4e28ba-2fa1-11d2-883f-0016d3cca427"} {
		if assets.IsLocalRef(ref) {
			t.Fatalf("%q must not be local", ref)
		}
	}
	uri := assets.DataURI("image/png", []byte{1, 2, 3})
	mime, data, err := assets.ParseDataURI(uri)
	if err != nil || mime != "image/png" || len(data) != 3 {
		t.Fatalf("unexpected round trip %q %v %v", mime, data, err)
	}
}
