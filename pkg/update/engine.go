package update

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/clustercore/clustercore/pkg/clustererr"
	"github.com/clustercore/clustercore/pkg/log"
	"github.com/clustercore/clustercore/pkg/metrics"
	"github.com/clustercore/clustercore/pkg/rpc"
	"github.com/clustercore/clustercore/pkg/types"
)

const defaultMaxBackups = 5

// Engine is one node's self-update state machine: checking the
// coordinator's catalog, downloading and verifying a signed bundle,
// and installing it with backup/rollback.
type Engine struct {
	mu sync.Mutex

	stateDir     string
	downloadsDir string
	backupsDir   string
	installRoot  string
	stateFile    string
	maxBackups   int

	registry        *rpc.Registry
	coordinatorMode bool

	currentVersion string
	lastCheckTime  int64

	publicKey  *rsa.PublicKey  // fetched lazily from the coordinator
	privateKey *rsa.PrivateKey // coordinator only, signs published bundles

	installInProgress bool

	catalog map[string]CatalogEntry // coordinator only
}

// New builds an Engine rooted under stateDir (typically
// "<Config.StateDirectory>/update_manager"), loading any persisted
// version state and, on a coordinator, its signing key.
func New(stateDir string, registry *rpc.Registry, coordinatorMode bool) (*Engine, error) {
	e := &Engine{
		stateDir:        stateDir,
		downloadsDir:    filepath.Join(stateDir, "downloads"),
		backupsDir:      filepath.Join(stateDir, "backups"),
		installRoot:     filepath.Join(stateDir, "runtime"),
		stateFile:       filepath.Join(stateDir, "update_state.json"),
		maxBackups:      defaultMaxBackups,
		registry:        registry,
		coordinatorMode: coordinatorMode,
		currentVersion:  "0.0.0",
		catalog:         make(map[string]CatalogEntry),
	}

	for _, dir := range []string{e.stateDir, e.downloadsDir, e.backupsDir, e.installRoot} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("create update directory %s: %w", dir, err)
		}
	}

	if err := e.loadState(); err != nil {
		return nil, fmt.Errorf("load update state: %w", err)
	}

	if coordinatorMode {
		key, err := loadOrCreateSigningKey(filepath.Join(stateDir, "signing_key.pem"))
		if err != nil {
			return nil, fmt.Errorf("load signing key: %w", err)
		}
		e.privateKey = key
		e.publicKey = &key.PublicKey

		if err := e.loadCatalog(); err != nil {
			return nil, fmt.Errorf("load update catalog: %w", err)
		}
	}

	return e, nil
}

func (e *Engine) loadState() error {
	data, err := os.ReadFile(e.stateFile)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	var s state
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	e.currentVersion = s.CurrentVersion
	e.lastCheckTime = s.LastCheckTime
	return nil
}

func (e *Engine) saveState() error {
	data, err := json.MarshalIndent(state{CurrentVersion: e.currentVersion, LastCheckTime: e.lastCheckTime}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(e.stateFile, data, 0600)
}

func (e *Engine) catalogFile() string { return filepath.Join(e.stateDir, "catalog.json") }

func (e *Engine) loadCatalog() error {
	data, err := os.ReadFile(e.catalogFile())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	var entries []CatalogEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	for _, entry := range entries {
		e.catalog[entry.Version] = entry
	}
	return nil
}

func (e *Engine) saveCatalog() error {
	entries := make([]CatalogEntry, 0, len(e.catalog))
	for _, entry := range e.catalog {
		entries = append(entries, entry)
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(e.catalogFile(), data, 0600)
}

// CurrentVersion returns the version this node currently has installed.
func (e *Engine) CurrentVersion() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentVersion
}

// Publish is a coordinator-only operation: it bundles srcDir, signs it,
// and adds it to the catalog workers query via CheckUpdates.
func (e *Engine) Publish(version, srcDir string) (*CatalogEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.privateKey == nil {
		return nil, clustererr.Auth("publish", "only a coordinator can publish updates")
	}

	bundle, err := buildBundle(srcDir)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(bundle)
	hash := hex.EncodeToString(sum[:])

	sig, err := signBundle(e.privateKey, bundle)
	if err != nil {
		return nil, fmt.Errorf("sign bundle for %s: %w", version, err)
	}

	bundlePath := filepath.Join(e.downloadsDir, fmt.Sprintf("update-%s.tar.gz", version))
	if err := os.WriteFile(bundlePath, bundle, 0600); err != nil {
		return nil, fmt.Errorf("persist bundle for %s: %w", version, err)
	}

	entry := CatalogEntry{
		Version:    version,
		Hash:       hash,
		Signature:  hex.EncodeToString(sig),
		BundlePath: bundlePath,
		ReleasedAt: time.Now().Unix(),
	}
	e.catalog[version] = entry
	if err := e.saveCatalog(); err != nil {
		return nil, fmt.Errorf("persist catalog: %w", err)
	}

	return &entry, nil
}

// ListUpdates returns every catalog entry, newest first.
func (e *Engine) ListUpdates() []CatalogEntry {
	e.mu.Lock()
	defer e.mu.Unlock()

	entries := make([]CatalogEntry, 0, len(e.catalog))
	for _, entry := range e.catalog {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ReleasedAt > entries[j].ReleasedAt })
	return entries
}

// PublicKeyPEM returns the coordinator's signing public key, PEM-encoded.
func (e *Engine) PublicKeyPEM() ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.publicKey == nil {
		return nil, clustererr.NotFound("public-key", "no signing key available on this node")
	}
	return encodePublicKeyPEM(e.publicKey)
}

// BundleData returns a published bundle's raw bytes, for the
// coordinator's download_update RPC handler.
func (e *Engine) BundleData(version string) ([]byte, *CatalogEntry, error) {
	e.mu.Lock()
	entry, ok := e.catalog[version]
	e.mu.Unlock()
	if !ok {
		return nil, nil, clustererr.NotFound("download", fmt.Sprintf("version %q is not published", version))
	}
	data, err := os.ReadFile(entry.BundlePath)
	if err != nil {
		return nil, nil, fmt.Errorf("read bundle for %s: %w", version, err)
	}
	return data, &entry, nil
}

// CheckUpdates queries the coordinator's catalog and returns every
// entry with a semver-greater version than this node's current one.
func (e *Engine) CheckUpdates(ctx context.Context) (*CheckResult, error) {
	raw, err := e.registry.Service("update").Target(rpc.Role(types.RoleCoordinator)).Call(ctx, "list_updates", nil)
	if err != nil {
		return nil, fmt.Errorf("query coordinator catalog: %w", err)
	}

	var entries []CatalogEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	e.mu.Lock()
	current, err := semver.NewVersion(e.currentVersion)
	e.mu.Unlock()
	if err != nil {
		current, _ = semver.NewVersion("0.0.0")
	}

	var available []CatalogEntry
	for _, entry := range entries {
		v, err := semver.NewVersion(entry.Version)
		if err != nil {
			continue
		}
		if v.Compare(current) > 0 {
			available = append(available, entry)
		}
	}

	e.mu.Lock()
	e.lastCheckTime = time.Now().Unix()
	saveErr := e.saveState()
	result := &CheckResult{CurrentVersion: e.currentVersion, AvailableUpdates: available, LastCheck: time.Unix(e.lastCheckTime, 0)}
	e.mu.Unlock()
	if saveErr != nil {
		log.WithComponent("update").Warn().Err(saveErr).Msg("failed to persist last check time")
	}

	return result, nil
}

func (e *Engine) ensurePublicKey(ctx context.Context) error {
	e.mu.Lock()
	have := e.publicKey != nil
	e.mu.Unlock()
	if have {
		return nil
	}

	raw, err := e.registry.Service("update").Target(rpc.Role(types.RoleCoordinator)).Call(ctx, "get_public_key", nil)
	if err != nil {
		return fmt.Errorf("fetch coordinator public key: %w", err)
	}
	var pemData []byte
	if err := json.Unmarshal(raw, &pemData); err != nil {
		return fmt.Errorf("decode public key response: %w", err)
	}
	key, err := parsePublicKeyPEM(pemData)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.publicKey = key
	e.mu.Unlock()
	return nil
}

// InstallUpdate downloads, verifies, backs up, and installs version.
// Any failure from extraction onward restores the pre-install backup.
func (e *Engine) InstallUpdate(ctx context.Context, version string) (*InstallResult, error) {
	e.mu.Lock()
	if e.installInProgress {
		e.mu.Unlock()
		return nil, clustererr.Conflict("install-update", "an update is already in progress")
	}
	e.installInProgress = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.installInProgress = false
		e.mu.Unlock()
	}()

	if err := e.ensurePublicKey(ctx); err != nil {
		metrics.UpdatesAppliedTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	raw, err := e.registry.Service("update").Target(rpc.Role(types.RoleCoordinator)).Call(ctx, "download_update", map[string]any{"version": version})
	if err != nil {
		metrics.UpdatesAppliedTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("download %s: %w", version, err)
	}

	var download struct {
		BundleData []byte `json:"bundle_data"`
		Signature  string `json:"signature"`
		Hash       string `json:"hash"`
	}
	if err := json.Unmarshal(raw, &download); err != nil {
		metrics.UpdatesAppliedTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("decode download response: %w", err)
	}

	sum := sha256.Sum256(download.BundleData)
	if hex.EncodeToString(sum[:]) != download.Hash {
		metrics.UpdatesAppliedTotal.WithLabelValues("integrity_error").Inc()
		return nil, clustererr.Integrity("install-update", fmt.Sprintf("hash mismatch for %s", version), nil)
	}

	sig, err := hex.DecodeString(download.Signature)
	if err != nil {
		metrics.UpdatesAppliedTotal.WithLabelValues("integrity_error").Inc()
		return nil, clustererr.Integrity("install-update", "malformed signature", err)
	}

	e.mu.Lock()
	pub := e.publicKey
	e.mu.Unlock()
	if err := verifyBundle(pub, download.BundleData, sig); err != nil {
		metrics.UpdatesAppliedTotal.WithLabelValues("integrity_error").Inc()
		return nil, err
	}

	e.mu.Lock()
	fromVersion := e.currentVersion
	e.mu.Unlock()

	backupDir, err := e.createBackup(fromVersion)
	if err != nil {
		metrics.UpdatesAppliedTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("create backup before installing %s: %w", version, err)
	}

	if err := extractBundle(download.BundleData, e.installRoot); err != nil {
		log.WithComponent("update").Error().Err(err).Str("version", version).Msg("install failed, rolling back")
		if rbErr := e.rollback(backupDir); rbErr != nil {
			log.WithComponent("update").Error().Err(rbErr).Msg("rollback also failed")
		}
		metrics.UpdatesAppliedTotal.WithLabelValues("rolled_back").Inc()
		return nil, fmt.Errorf("install %s: %w", version, err)
	}

	e.mu.Lock()
	e.currentVersion = version
	saveErr := e.saveState()
	e.mu.Unlock()
	if saveErr != nil {
		log.WithComponent("update").Warn().Err(saveErr).Msg("failed to persist new version")
	}

	e.pruneBackups()
	metrics.UpdatesAppliedTotal.WithLabelValues("success").Inc()
	log.WithComponent("update").Info().Str("version", version).Str("backup", backupDir).Msg("update installed")

	return &InstallResult{Version: version, BackupDir: backupDir}, nil
}

func (e *Engine) createBackup(fromVersion string) (string, error) {
	backupDir := filepath.Join(e.backupsDir, fmt.Sprintf("backup_%s_%d", fromVersion, time.Now().UnixNano()))
	if err := os.MkdirAll(backupDir, 0700); err != nil {
		return "", err
	}
	if err := copyDir(e.installRoot, backupDir); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(backupDir, "version.txt"), []byte(fromVersion+"\n"), 0600); err != nil {
		return "", err
	}
	return backupDir, nil
}

func (e *Engine) rollback(backupDir string) error {
	if err := os.RemoveAll(e.installRoot); err != nil {
		return fmt.Errorf("clear install root: %w", err)
	}
	if err := os.MkdirAll(e.installRoot, 0755); err != nil {
		return err
	}
	if err := copyDir(backupDir, e.installRoot); err != nil {
		return fmt.Errorf("restore from backup: %w", err)
	}
	if err := os.Remove(filepath.Join(e.installRoot, "version.txt")); err != nil && !os.IsNotExist(err) {
		log.WithComponent("update").Warn().Err(err).Msg("failed to clean up restored version marker")
	}

	versionData, err := os.ReadFile(filepath.Join(backupDir, "version.txt"))
	if err == nil {
		e.mu.Lock()
		e.currentVersion = trimNewline(string(versionData))
		saveErr := e.saveState()
		e.mu.Unlock()
		if saveErr != nil {
			return saveErr
		}
	}

	metrics.UpdatesAppliedTotal.WithLabelValues("rolled_back").Inc()
	return nil
}

// pruneBackups keeps only the maxBackups most recent backup directories.
func (e *Engine) pruneBackups() {
	entries, err := os.ReadDir(e.backupsDir)
	if err != nil {
		return
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() > entries[j].Name() })
	for i := e.maxBackups; i < len(entries); i++ {
		_ = os.RemoveAll(filepath.Join(e.backupsDir, entries[i].Name()))
	}
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

func loadOrCreateSigningKey(path string) (*rsa.PrivateKey, error) {
	if data, err := os.ReadFile(path); err == nil {
		block, _ := pem.Decode(data)
		if block == nil {
			return nil, fmt.Errorf("no PEM block in %s", path)
		}
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	}

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0600); err != nil {
		return nil, fmt.Errorf("persist signing key: %w", err)
	}
	return key, nil
}
