package model

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testToken = "t0k-pull"

type bundleFixture struct {
	server *httptest.Server
	pubB64 string
}

// newBundleServer serves manifest.json, manifest.sig and files under /bundle/.
// Entries in override replace the advertised sha256 for a path.
func newBundleServer(t *testing.T, name, version string, files map[string]string, override map[string]string) bundleFixture {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}

	manifest := Manifest{Model: name, Version: version}
	for p, body := range files {
		sum := sha256.Sum256([]byte(body))
		digest := hex.EncodeToString(sum[:])
		if o, ok := override[p]; ok {
			digest = o
		}
		manifest.Files = append(manifest.Files, ManifestFile{Path: p, SHA256: digest, Size: int64(len(body))})
	}
	manifestBytes, err := json.Marshal(manifest)
	if err != nil {
		t.Fatal(err)
	}
	sig := ed25519.Sign(priv, manifestBytes)
	sigJSON, _ := json.Marshal(ManifestSignature{Algorithm: "ed25519", Signature: base64.StdEncoding.EncodeToString(sig)})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+testToken {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		rel := strings.TrimPrefix(r.URL.Path, "/bundle/")
		switch rel {
		case "manifest.json":
			w.Write(manifestBytes)
		case "manifest.sig":
			w.Write(sigJSON)
		default:
			body, ok := files[rel]
			if !ok {
				http.NotFound(w, r)
				return
			}
			w.Write([]byte(body))
		}
	}))
	t.Cleanup(srv.Close)
	return bundleFixture{server: srv, pubB64: base64.StdEncoding.EncodeToString(pub)}
}

func (f bundleFixture) options(modelsDir, name string) InstallOptions {
	return InstallOptions{
		ModelsDir:    modelsDir,
		Name:         name,
		ManifestURL:  f.server.URL + "/bundle/manifest.json",
		SignatureURL: f.server.URL + "/bundle/manifest.sig",
		Token:        testToken,
		PublicKey:    f.pubB64,
	}
}

var tinyFiles = map[string]string{
	"vocab.txt":             "[PAD]\n[UNK]\n[CLS]\n[SEP]\n",
	"config.json":           `{"id2label":{"0":"O","1":"B-PER"}}`,
	"tokenizer/special.txt": "x",
}

func TestInstallVerifyAndState(t *testing.T) {
	modelsDir := t.TempDir()
	fx := newBundleServer(t, "tiny", "1.0.0", tinyFiles, nil)

	dir, err := Install(context.Background(), fx.options(modelsDir, "tiny"))
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	if dir != filepath.Join(modelsDir, "tiny") {
		t.Fatalf("dir=%s", dir)
	}
	for p, body := range tinyFiles {
		data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(p)))
		if err != nil || string(data) != body {
			t.Fatalf("file %s not installed correctly: %v", p, err)
		}
	}

	report, err := Verify(dir, fx.pubB64)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !report.SignatureChecked || report.Manifest.Version != "1.0.0" {
		t.Fatalf("unexpected report %+v", report)
	}

	state, err := LoadBundleState(modelsDir, "tiny")
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if state.CurrentVersion != "1.0.0" || state.PreviousVersion != "" {
		t.Fatalf("unexpected state %+v", state)
	}

	fx2 := newBundleServer(t, "tiny", "1.1.0", tinyFiles, nil)
	if _, err := Install(context.Background(), fx2.options(modelsDir, "tiny")); err != nil {
		t.Fatalf("upgrade: %v", err)
	}
	state, err = LoadBundleState(modelsDir, "tiny")
	if err != nil {
		t.Fatal(err)
	}
	if state.CurrentVersion != "1.1.0" || state.PreviousVersion != "1.0.0" {
		t.Fatalf("unexpected state after upgrade %+v", state)
	}
	if _, err := os.Stat(dir + ".bak"); !os.IsNotExist(err) {
		t.Fatalf("backup dir should be removed, stat err=%v", err)
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	modelsDir := t.TempDir()
	fx := newBundleServer(t, "tiny", "1.0.0", tinyFiles, nil)
	dir, err := Install(context.Background(), fx.options(modelsDir, "tiny"))
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "vocab.txt"), []byte("[PAD]\n[UNK]\n[CLS]\n[SEX]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Verify(dir, ""); err == nil || !strings.Contains(err.Error(), "sha256 mismatch") {
		t.Fatalf("expected sha256 mismatch, got %v", err)
	}
}

func TestInstallRejectsBadHashAndKeepsNothing(t *testing.T) {
	modelsDir := t.TempDir()
	fx := newBundleServer(t, "tiny", "1.0.0", tinyFiles, map[string]string{"vocab.txt": strings.Repeat("0", 64)})
	if _, err := Install(context.Background(), fx.options(modelsDir, "tiny")); err == nil {
		t.Fatal("expected hash mismatch")
	}
	if _, err := os.Stat(filepath.Join(modelsDir, "tiny")); !os.IsNotExist(err) {
		t.Fatalf("failed install must not activate a bundle, stat err=%v", err)
	}
	if _, err := LoadBundleState(modelsDir, "tiny"); !errors.Is(err, ErrBundleStateNotFound) {
		t.Fatalf("expected no state, got %v", err)
	}
}

func TestInstallRejectsMissingHash(t *testing.T) {
	modelsDir := t.TempDir()
	fx := newBundleServer(t, "tiny", "1.0.0", tinyFiles, map[string]string{"vocab.txt": ""})
	_, err := Install(context.Background(), fx.options(modelsDir, "tiny"))
	if err == nil || !strings.Contains(err.Error(), "has no sha256") {
		t.Fatalf("expected missing sha256 error, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(modelsDir, "tiny")); !os.IsNotExist(err) {
		t.Fatalf("rejected manifest must not activate a bundle, stat err=%v", err)
	}
}

func TestVerifyRejectsUnhashedEntries(t *testing.T) {
	cases := []struct {
		name   string
		digest string
		want   string
	}{
		{"empty", "", "has no sha256"},
		{"malformed", "abc", "malformed sha256"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, "vocab.txt"), []byte("[PAD]\n"), 0o644); err != nil {
				t.Fatal(err)
			}
			manifest, _ := json.Marshal(Manifest{Model: "tiny", Version: "1.0.0", Files: []ManifestFile{{Path: "vocab.txt", SHA256: tc.digest}}})
			if err := os.WriteFile(filepath.Join(dir, "manifest.json"), manifest, 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := Verify(dir, ""); err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q, got %v", tc.want, err)
			}
		})
	}
}

func TestInstallRejectsWrongKeyAndName(t *testing.T) {
	modelsDir := t.TempDir()
	fx := newBundleServer(t, "tiny", "1.0.0", tinyFiles, nil)
	other := newBundleServer(t, "tiny", "1.0.0", tinyFiles, nil)

	opts := fx.options(modelsDir, "tiny")
	opts.PublicKey = other.pubB64
	if _, err := Install(context.Background(), opts); err == nil || !strings.Contains(err.Error(), "verification failed") {
		t.Fatalf("expected signature failure, got %v", err)
	}

	opts = fx.options(modelsDir, "other")
	if _, err := Install(context.Background(), opts); err == nil || !strings.Contains(err.Error(), "model mismatch") {
		t.Fatalf("expected model mismatch, got %v", err)
	}

	opts = fx.options(modelsDir, "tiny")
	opts.Token = ""
	if _, err := Install(context.Background(), opts); err == nil {
		t.Fatal("expected unauthorized download to fail")
	}
}

func TestInstallRejectsTraversal(t *testing.T) {
	fx := newBundleServer(t, "tiny", "1.0.0", map[string]string{"../evil": "x"}, nil)
	if _, err := Install(context.Background(), fx.options(t.TempDir(), "tiny")); err == nil {
		t.Fatal("expected traversal to be rejected")
	}
}

func TestResolveBundlePath(t *testing.T) {
	for _, bad := range []string{"../evil", "/abs/path", "a/../../b", ""} {
		if _, err := resolveBundlePath("/tmp/bundle", bad); err == nil {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
	got, err := resolveBundlePath("/tmp/bundle", "tokenizer/vocab.txt")
	if err != nil {
		t.Fatalf("expected safe path, got %v", err)
	}
	if got != filepath.Join("/tmp/bundle", "tokenizer", "vocab.txt") {
		t.Fatalf("got %s", got)
	}
}

func TestDecodeSignatureFormats(t *testing.T) {
	raw := make([]byte, ed25519.SignatureSize)
	for i := range raw {
		raw[i] = byte(i)
	}
	for name, enc := range map[string]string{
		"hex":    hex.EncodeToString(raw),
		"base64": base64.StdEncoding.EncodeToString(raw),
		"raw64":  base64.RawStdEncoding.EncodeToString(raw),
	} {
		got, err := decodeSignature(enc)
		if err != nil || len(got) != ed25519.SignatureSize {
			t.Fatalf("%s: len=%d err=%v", name, len(got), err)
		}
	}
	if _, err := decodeSignature(base64.StdEncoding.EncodeToString([]byte("short"))); err == nil {
		t.Fatal("expected length error")
	}
}
