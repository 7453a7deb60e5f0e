package model

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/LearnCode801/Name-Entity-Recognition-NER-Project/internal/redact"
)

// ManifestFile describes one file entry in manifest.json.
type ManifestFile struct {
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
}

// Manifest mirrors manifest.json.
type Manifest struct {
	Model     string         `json:"model"`
	Version   string         `json:"version"`
	CreatedAt string         `json:"created_at,omitempty"`
	Files     []ManifestFile `json:"files"`
}

// ManifestSignature holds manifest.sig contents.
type ManifestSignature struct {
	Algorithm string `json:"algorithm"`
	Signature string `json:"signature"`
}

// InstallOptions locates a remote model bundle.
type InstallOptions struct {
	ModelsDir    string
	Name         string
	ManifestURL  string
	SignatureURL string // optional
	FileBaseURL  string // defaults to the manifest's directory
	Token        string // optional bearer token
	PublicKey    string // base64 ed25519; required when a signature is fetched
	Timeout      time.Duration
	Client       *http.Client
}

// VerifyReport summarizes a successful local verification.
type VerifyReport struct {
	Manifest         Manifest
	SignatureChecked bool
}

// Install downloads a bundle into <models_dir>/<name>. Files land in a temp
// dir first and are hash-checked; the final rename keeps a backup of the
// previous install until it succeeds.
func Install(ctx context.Context, opts InstallOptions) (string, error) {
	modelsDir := strings.TrimSpace(opts.ModelsDir)
	name := strings.TrimSpace(opts.Name)
	if modelsDir == "" {
		return "", errors.New("models dir is empty")
	}
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid model name %q", opts.Name)
	}
	if strings.TrimSpace(opts.ManifestURL) == "" {
		return "", errors.New("manifest url is empty")
	}
	if strings.TrimSpace(opts.PublicKey) != "" && strings.TrimSpace(opts.SignatureURL) == "" {
		return "", errors.New("a public key is configured but no signature url was given")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	manifestBytes, manifest, err := downloadManifest(ctx, client, opts.ManifestURL, opts.Token)
	if err != nil {
		return "", err
	}
	if manifest.Model != "" && manifest.Model != name {
		return "", fmt.Errorf("manifest model mismatch: expected %s, got %s", name, manifest.Model)
	}
	if err := validateManifest(*manifest); err != nil {
		return "", err
	}

	var sigRaw []byte
	if strings.TrimSpace(opts.SignatureURL) != "" {
		pk, err := decodeKey(opts.PublicKey)
		if err != nil {
			return "", fmt.Errorf("load manifest public key: %w", err)
		}
		sigEncoded, sigAlg, raw, err := downloadSignature(ctx, client, opts.SignatureURL, opts.Token)
		if err != nil {
			return "", err
		}
		if err := verifyManifest(manifestBytes, manifest.Version, sigEncoded, sigAlg, pk); err != nil {
			return "", err
		}
		sigRaw = raw
	}

	fileBase := strings.TrimSpace(opts.FileBaseURL)
	if fileBase == "" {
		fileBase, err = manifestDirURL(opts.ManifestURL)
		if err != nil {
			return "", err
		}
	}

	if err := os.MkdirAll(modelsDir, 0o755); err != nil {
		return "", fmt.Errorf("create models dir: %w", err)
	}
	tmpDir, err := os.MkdirTemp(modelsDir, name+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	success := false
	defer func() {
		if !success {
			os.RemoveAll(tmpDir)
		}
	}()

	redact.Logf("model: downloading bundle %s version=%s files=%d", name, manifest.Version, len(manifest.Files))
	if err := downloadBundleFiles(ctx, client, tmpDir, manifest.Files, fileBase, opts.Token); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "manifest.json"), manifestBytes, 0o644); err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}
	if sigRaw != nil {
		if err := os.WriteFile(filepath.Join(tmpDir, "manifest.sig"), sigRaw, 0o644); err != nil {
			return "", fmt.Errorf("write manifest signature: %w", err)
		}
	}

	finalDir := filepath.Join(modelsDir, name)
	backupDir := finalDir + ".bak"
	if _, err := os.Stat(finalDir); err == nil {
		_ = os.RemoveAll(backupDir)
		if err := os.Rename(finalDir, backupDir); err != nil {
			return "", fmt.Errorf("prepare existing bundle for replacement: %w", err)
		}
	}
	if err := os.Rename(tmpDir, finalDir); err != nil {
		if _, statErr := os.Stat(backupDir); statErr == nil {
			_ = os.Rename(backupDir, finalDir)
		}
		return "", fmt.Errorf("activate bundle: %w", err)
	}
	_ = os.RemoveAll(backupDir)
	success = true

	state, err := LoadBundleState(modelsDir, name)
	if err != nil && !errors.Is(err, ErrBundleStateNotFound) {
		redact.Logf("model: ignoring unreadable bundle state for %s: %v", name, err)
	}
	if state.CurrentVersion != manifest.Version {
		state.PreviousVersion = state.CurrentVersion
	}
	state.CurrentVersion = manifest.Version
	state.InstalledAt = time.Now().UTC().Format(time.RFC3339)
	if err := SaveBundleState(modelsDir, name, state); err != nil {
		return finalDir, err
	}
	return finalDir, nil
}

// Verify re-checks a local bundle against its manifest: every file's size and
// sha256, and the signature when manifest.sig is present and a key is given.
func Verify(dir, publicKey string) (*VerifyReport, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("bundle dir is empty")
	}
	manifestBytes, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var manifest Manifest
	if err := json.Unmarshal(manifestBytes, &manifest); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if err := validateManifest(manifest); err != nil {
		return nil, err
	}
	report := &VerifyReport{Manifest: manifest}

	sigPath := filepath.Join(dir, "manifest.sig")
	_, statErr := os.Stat(sigPath)
	switch {
	case strings.TrimSpace(publicKey) == "":
	case statErr != nil:
		return nil, fmt.Errorf("public key configured but manifest.sig is missing: %w", statErr)
	default:
		sigEncoded, sigAlg, err := readSignatureFile(sigPath)
		if err != nil {
			return nil, err
		}
		pk, err := decodeKey(publicKey)
		if err != nil {
			return nil, fmt.Errorf("load manifest public key: %w", err)
		}
		if err := verifyManifest(manifestBytes, manifest.Version, sigEncoded, sigAlg, pk); err != nil {
			return nil, err
		}
		report.SignatureChecked = true
	}

	for _, f := range manifest.Files {
		local, err := resolveBundlePath(dir, f.Path)
		if err != nil {
			return nil, fmt.Errorf("resolve path %s: %w", f.Path, err)
		}
		info, err := os.Stat(local)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", f.Path, err)
		}
		if f.Size > 0 && info.Size() != f.Size {
			return nil, fmt.Errorf("size mismatch for %s: expected %d got %d", f.Path, f.Size, info.Size())
		}
		sum, err := fileSHA256(local)
		if err != nil {
			return nil, fmt.Errorf("hash %s: %w", f.Path, err)
		}
		if !strings.EqualFold(sum, f.SHA256) {
			return nil, fmt.Errorf("sha256 mismatch for %s: expected %s got %s", f.Path, f.SHA256, sum)
		}
	}
	return report, nil
}

// validateManifest requires a sha256 digest for every listed file.
func validateManifest(m Manifest) error {
	if len(m.Files) == 0 {
		return errors.New("manifest lists no files")
	}
	for _, f := range m.Files {
		digest := strings.TrimSpace(f.SHA256)
		if digest == "" {
			return fmt.Errorf("manifest entry %s has no sha256", f.Path)
		}
		if _, err := hex.DecodeString(digest); err != nil || len(digest) != sha256.Size*2 {
			return fmt.Errorf("manifest entry %s has malformed sha256 %q", f.Path, f.SHA256)
		}
	}
	return nil
}

// resolveBundlePath joins a manifest-relative path onto dir, rejecting
// absolute paths and anything escaping dir.
func resolveBundlePath(dir, rel string) (string, error) {
	rel = strings.TrimSpace(rel)
	if rel == "" {
		return "", errors.New("empty path")
	}
	if filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") || strings.HasPrefix(rel, `\`) {
		return "", fmt.Errorf("absolute path %q not allowed", rel)
	}
	clean := filepath.Clean(filepath.FromSlash(rel))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes bundle dir", rel)
	}
	return filepath.Join(dir, clean), nil
}

func fileSHA256(p string) (string, error) {
	fh, err := os.Open(p)
	if err != nil {
		return "", err
	}
	defer fh.Close()
	h := sha256.New()
	if _, err := io.Copy(h, fh); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func manifestDirURL(manifestURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(manifestURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid manifest url %q", redact.String(manifestURL))
	}
	u.Path = path.Dir(u.Path)
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

func decodeKey(v string) ([]byte, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, errors.New("public key missing")
	}
	decoders := []func(string) ([]byte, error){
		base64.StdEncoding.DecodeString,
		base64.RawStdEncoding.DecodeString,
		base64.URLEncoding.DecodeString,
		base64.RawURLEncoding.DecodeString,
	}
	for _, dec := range decoders {
		if b, err := dec(v); err == nil {
			if len(b) != ed25519.PublicKeySize {
				return nil, fmt.Errorf("invalid manifest public key length: %d", len(b))
			}
			return b, nil
		}
	}
	return nil, errors.New("unable to decode manifest public key")
}

func newAuthorizedRequest(ctx context.Context, rawURL, token string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if token = strings.TrimSpace(token); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func downloadManifest(ctx context.Context, client *http.Client, rawURL, token string) ([]byte, *Manifest, error) {
	req, err := newAuthorizedRequest(ctx, rawURL, token)
	if err != nil {
		return nil, nil, fmt.Errorf("build manifest request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("download manifest: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, nil, fmt.Errorf("download manifest status: %s: %s", resp.Status, strings.TrimSpace(string(errBody)))
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, nil, fmt.Errorf("read manifest body: %w", err)
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, nil, fmt.Errorf("decode manifest: %w", err)
	}
	if strings.TrimSpace(manifest.Version) == "" {
		return nil, nil, errors.New("manifest has no version")
	}
	if len(manifest.Files) == 0 {
		return nil, nil, errors.New("manifest lists no files")
	}
	return data, &manifest, nil
}

func downloadSignature(ctx context.Context, client *http.Client, rawURL, token string) (string, string, []byte, error) {
	req, err := newAuthorizedRequest(ctx, rawURL, token)
	if err != nil {
		return "", "", nil, fmt.Errorf("build manifest signature request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", "", nil, fmt.Errorf("download manifest signature: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", "", nil, fmt.Errorf("download manifest signature status: %s: %s", resp.Status, strings.TrimSpace(string(errBody)))
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", "", nil, fmt.Errorf("read manifest signature: %w", err)
	}
	encoded, alg := parseSignature(data)
	return encoded, alg, data, nil
}

func readSignatureFile(p string) (string, string, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return "", "", fmt.Errorf("read manifest signature: %w", err)
	}
	encoded, alg := parseSignature(data)
	return encoded, alg, nil
}

// parseSignature accepts a JSON ManifestSignature or a bare encoded string.
func parseSignature(data []byte) (string, string) {
	var sig ManifestSignature
	if err := json.Unmarshal(data, &sig); err == nil && strings.TrimSpace(sig.Signature) != "" {
		return strings.TrimSpace(sig.Signature), sig.Algorithm
	}
	return strings.TrimSpace(string(data)), "ed25519"
}

func verifyManifest(manifestBytes []byte, version, sigEncoded, sigAlgorithm string, pk []byte) error {
	if len(pk) != ed25519.PublicKeySize {
		return fmt.Errorf("invalid manifest public key length: %d", len(pk))
	}
	alg := strings.ToLower(strings.TrimSpace(sigAlgorithm))
	if alg == "" {
		alg = "ed25519"
	}
	if alg != "ed25519" {
		return fmt.Errorf("unsupported signature algorithm %q", alg)
	}
	sigBytes, err := decodeSignature(sigEncoded)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}
	if !ed25519.Verify(pk, manifestBytes, sigBytes) {
		redact.Logf("model: manifest signature verify failed version=%s", version)
		return errors.New("manifest signature verification failed")
	}
	redact.Logf("model: manifest signature verified version=%s", version)
	return nil
}

// decodeSignature accepts hex or base64 (padded or raw) encodings of a
// 64-byte ed25519 signature.
func decodeSignature(v string) ([]byte, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, errors.New("signature is empty")
	}
	if len(v) == hex.EncodedLen(ed25519.SignatureSize) {
		if b, err := hex.DecodeString(v); err == nil {
			return b, nil
		}
	}
	for _, dec := range []func(string) ([]byte, error){base64.StdEncoding.DecodeString, base64.RawStdEncoding.DecodeString} {
		if b, err := dec(v); err == nil {
			if len(b) != ed25519.SignatureSize {
				return nil, fmt.Errorf("manifest signature invalid length: got %d, want %d", len(b), ed25519.SignatureSize)
			}
			return b, nil
		}
	}
	return nil, errors.New("signature is neither hex nor base64")
}

func downloadBundleFiles(ctx context.Context, client *http.Client, dir string, files []ManifestFile, baseURL, token string) error {
	for _, f := range files {
		localPath, err := resolveBundlePath(dir, f.Path)
		if err != nil {
			return fmt.Errorf("manifest entry %s: %w", f.Path, err)
		}
		if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
			return fmt.Errorf("create dir for %s: %w", f.Path, err)
		}
		remote, err := url.JoinPath(baseURL, strings.Split(filepath.ToSlash(f.Path), "/")...)
		if err != nil {
			return fmt.Errorf("build url for %s: %w", f.Path, err)
		}
		if err := downloadFile(ctx, client, remote, localPath, f, token); err != nil {
			return err
		}
	}
	return nil
}

func downloadFile(ctx context.Context, client *http.Client, remote, localPath string, f ManifestFile, token string) error {
	req, err := newAuthorizedRequest(ctx, remote, token)
	if err != nil {
		return fmt.Errorf("build file request for %s: %w", f.Path, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download file %s: %w", f.Path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("download file %s status: %s: %s", f.Path, resp.Status, strings.TrimSpace(string(errBody)))
	}

	dst, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create local file %s: %w", f.Path, err)
	}
	h := sha256.New()
	prog := newProgressLogger(f.Path, f.Size)
	n, err := io.Copy(io.MultiWriter(dst, h), io.TeeReader(resp.Body, prog))
	closeErr := dst.Close()
	prog.Finish()
	if err != nil {
		return fmt.Errorf("write file %s: %w", f.Path, err)
	}
	if closeErr != nil {
		return fmt.Errorf("close file %s: %w", f.Path, closeErr)
	}
	if f.Size > 0 && n != f.Size {
		return fmt.Errorf("size mismatch for %s: expected %d, got %d", f.Path, f.Size, n)
	}
	sum := hex.EncodeToString(h.Sum(nil))
	if !strings.EqualFold(sum, f.SHA256) {
		return fmt.Errorf("sha256 mismatch for %s: expected %s, got %s", f.Path, f.SHA256, sum)
	}
	return nil
}

type progressLogger struct {
	name       string
	total      int64
	downloaded int64
	step       int64
	next       int64
	start      time.Time
}

func newProgressLogger(name string, total int64) *progressLogger {
	step := total / 10
	if step <= 0 {
		step = 1 << 20
	}
	return &progressLogger{
		name:  name,
		total: total,
		step:  step,
		next:  step,
		start: time.Now(),
	}
}

func (p *progressLogger) Write(b []byte) (int, error) {
	n := len(b)
	p.downloaded += int64(n)
	if p.downloaded >= p.next {
		percent := int64(0)
		if p.total > 0 {
			percent = p.downloaded * 100 / p.total
		}
		redact.Logf("model: download progress %s: %d/%d bytes (%d%%)", p.name, p.downloaded, p.total, percent)
		p.next += p.step
	}
	return n, nil
}

func (p *progressLogger) Finish() {
	if p == nil {
		return
	}
	redact.Logf("model: download complete %s: %d bytes in %s", p.name, p.downloaded, time.Since(p.start).Round(time.Millisecond))
}
