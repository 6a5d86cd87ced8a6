// Package installer implements plugin installation and the marketplace
// catalog: parsing a source reference (local path or a
// "owner/repo[/plugin]" shorthand), installing from a local directory or a
// remote GitHub release archive, and listing installed plugins alongside
// whatever the marketplace catalog advertises.
package installer

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"golang.org/x/sync/singleflight"

	"github.com/todoplug/hostrt/internal/abi"
	"github.com/todoplug/hostrt/internal/apperr"
	"github.com/todoplug/hostrt/internal/logger"
)

// defaultBranch is the branch name recorded in the install log when a
// catalog entry does not set its own "branch". It does not affect which
// URL is fetched: the catalog URL is passed in whole to New (cmd/tdplug
// builds it with the branch "main"), and archives come from release
// assets or an entry's archive_url.
const defaultBranch = "main"

// sourceFilename is the sidecar file recorded alongside every installed
// plugin directory, recording where it came from for future updates.
const sourceFilename = ".source"

// manifestFilename is the manifest every staged plugin is checked against
// before it is moved into pluginsDir.
const manifestFilename = "plugin.toml"

// manifestCompat is the subset of plugin.toml consulted before committing a
// staged install: just enough to reject an incompatible or malformed
// manifest the way discovery itself would, but before any file lands in
// pluginsDir.
type manifestCompat struct {
	Name                string `toml:"name"`
	Version             string `toml:"version"`
	MinInterfaceVersion string `toml:"min_interface_version"`
}

// SourceKind tags how a plugin reference resolves.
type SourceKind int

const (
	SourceLocal SourceKind = iota
	SourceRemote
)

// Source is a parsed plugin reference.
type Source struct {
	Kind SourceKind

	// SourceLocal
	Path string

	// SourceRemote: a GitHub "owner/repo[/plugin]" reference. Plugin
	// defaults to the last path segment of repo when omitted.
	Owner  string
	Repo   string
	Plugin string
}

// ParseSource classifies ref as a local filesystem path or a remote
// "owner/repo[/plugin]" shorthand.
func ParseSource(ref string) (Source, error) {
	if ref == "" {
		return Source{}, fmt.Errorf("empty plugin source")
	}
	if strings.HasPrefix(ref, "/") || strings.HasPrefix(ref, ".") {
		return Source{Kind: SourceLocal, Path: ref}, nil
	}
	if info, err := os.Stat(ref); err == nil && info.IsDir() {
		return Source{Kind: SourceLocal, Path: ref}, nil
	}

	parts := strings.Split(ref, "/")
	switch len(parts) {
	case 2:
		return Source{Kind: SourceRemote, Owner: parts[0], Repo: parts[1], Plugin: parts[1]}, nil
	case 3:
		return Source{Kind: SourceRemote, Owner: parts[0], Repo: parts[1], Plugin: parts[2]}, nil
	default:
		return Source{}, fmt.Errorf("%q is neither a local directory nor an owner/repo[/plugin] reference", ref)
	}
}

// CatalogEntry is one plugin advertised by a marketplace.toml manifest.
type CatalogEntry struct {
	Name        string `toml:"name"`
	Version     string `toml:"version"`
	Description string `toml:"description"`
	Repository  string `toml:"repository"`
	Branch      string `toml:"branch"`

	// ArchiveURL overrides the default GitHub release convention with a
	// direct archive location, for catalogs mirroring plugins outside
	// GitHub releases entirely.
	ArchiveURL string `toml:"archive_url"`
}

type catalogDoc struct {
	Plugins []CatalogEntry `toml:"plugins"`
}

// Installer installs plugins into pluginsDir, fetching remote archives
// over HTTP and deduplicating concurrent catalog/version lookups.
type Installer struct {
	pluginsDir  string
	catalogURL  string
	hostVersion string

	client       *http.Client
	versionGroup singleflight.Group

	catalog     []CatalogEntry
	catalogTime time.Time
	catalogTTL  time.Duration
}

// New creates an Installer that writes into pluginsDir and resolves the
// marketplace catalog from catalogURL (a raw marketplace.toml location).
// Every staged install is checked for interface compatibility against
// hostVersion before it is committed.
func New(pluginsDir, catalogURL, hostVersion string) *Installer {
	return &Installer{
		pluginsDir:  pluginsDir,
		catalogURL:  catalogURL,
		hostVersion: hostVersion,
		client:      &http.Client{Timeout: 30 * time.Second},
		catalogTTL:  15 * time.Minute,
	}
}

// InstallLocal copies srcDir's contents into a staging directory, checks the
// staged manifest's interface compatibility, and only then moves it into
// pluginsDir/name, recording a .source sidecar that reads "local".
func (inst *Installer) InstallLocal(name, srcDir string) error {
	log := logger.Installer()

	staging, err := os.MkdirTemp("", "tdplug-install-*")
	if err != nil {
		return apperr.LoadError(name, "creating staging directory", err)
	}
	defer os.RemoveAll(staging)

	if err := copyDir(srcDir, staging); err != nil {
		return apperr.LoadError(name, fmt.Sprintf("copying %s to staging", srcDir), err)
	}
	if err := checkManifestCompatible(staging, inst.hostVersion); err != nil {
		return apperr.ManifestError(name, "checking staged manifest", err)
	}
	if err := os.WriteFile(filepath.Join(staging, sourceFilename), []byte("local\n"), 0o644); err != nil {
		return apperr.LoadError(name, "writing .source sidecar", err)
	}

	dest := filepath.Join(inst.pluginsDir, name)
	if err := moveIntoPlace(staging, dest); err != nil {
		return apperr.LoadError(name, fmt.Sprintf("moving staged install into %s", dest), err)
	}

	log.Info().Str("plugin", name).Str("from", srcDir).Msg("plugin installed from local directory")
	return nil
}

// InstallRemote resolves src (owner/repo[/plugin]) against the marketplace
// catalog, downloads its release archive into a staging directory, checks
// the staged manifest's interface compatibility, and only then moves it
// into pluginsDir/<plugin>. An empty version installs whatever the catalog
// advertises as current; a non-empty version overrides it (`--version`).
func (inst *Installer) InstallRemote(ctx context.Context, src Source, version string) error {
	log := logger.Installer()

	entry, err := inst.resolveCatalogEntry(ctx, src)
	if err != nil {
		return err
	}
	if version != "" {
		entry.Version = version
	}

	branch := entry.Branch
	if branch == "" {
		branch = defaultBranch
	}

	archiveURL := entry.ArchiveURL
	if archiveURL == "" {
		archiveURL = releaseArchiveURL(src.Owner, src.Repo, src.Plugin, entry.Version)
	}

	staging, err := os.MkdirTemp("", "tdplug-install-*")
	if err != nil {
		return apperr.LoadError(src.Plugin, "creating staging directory", err)
	}
	defer os.RemoveAll(staging)

	if err := inst.downloadAndExtract(ctx, archiveURL, staging); err != nil {
		return apperr.LoadError(src.Plugin, fmt.Sprintf("downloading %s", archiveURL), err)
	}
	if err := checkManifestCompatible(staging, inst.hostVersion); err != nil {
		return apperr.ManifestError(src.Plugin, "checking staged manifest", err)
	}

	sourceLine := fmt.Sprintf("%s/%s\n", src.Owner, src.Repo)
	if err := os.WriteFile(filepath.Join(staging, sourceFilename), []byte(sourceLine), 0o644); err != nil {
		return apperr.LoadError(src.Plugin, "writing .source sidecar", err)
	}

	dest := filepath.Join(inst.pluginsDir, src.Plugin)
	if err := moveIntoPlace(staging, dest); err != nil {
		return apperr.LoadError(src.Plugin, fmt.Sprintf("moving staged install into %s", dest), err)
	}

	log.Info().Str("plugin", src.Plugin).Str("repo", src.Owner+"/"+src.Repo).
		Str("version", entry.Version).Str("branch", branch).Msg("plugin installed from remote archive")
	return nil
}

// checkManifestCompatible parses stagingDir's plugin.toml and rejects the
// install outright if the manifest is missing, malformed, or declares a
// min_interface_version the running host doesn't satisfy — the same check
// discovery applies to an already-installed plugin, just run before any
// file lands in pluginsDir.
func checkManifestCompatible(stagingDir, hostVersion string) error {
	raw, err := os.ReadFile(filepath.Join(stagingDir, manifestFilename))
	if err != nil {
		return fmt.Errorf("reading %s: %w", manifestFilename, err)
	}

	var mc manifestCompat
	if err := toml.Unmarshal(raw, &mc); err != nil {
		return fmt.Errorf("parsing %s: %w", manifestFilename, err)
	}
	if mc.Name == "" {
		return fmt.Errorf("manifest missing required field: name")
	}
	if mc.Version == "" {
		return fmt.Errorf("manifest missing required field: version")
	}
	if !abi.ValidSemver(mc.Version) {
		return fmt.Errorf("version %q is not valid semver", mc.Version)
	}
	if mc.MinInterfaceVersion != "" && !abi.Compatible(hostVersion, mc.MinInterfaceVersion) {
		return fmt.Errorf("requires host interface >= %s, running %s", mc.MinInterfaceVersion, hostVersion)
	}
	return nil
}

// moveIntoPlace commits a validated staging directory as dest, replacing
// anything already there. Rename is attempted first; it fails across
// filesystem boundaries (staging lives under os.TempDir, which may not
// share a filesystem with pluginsDir), so a copy-then-delete fallback
// covers that case.
func moveIntoPlace(staging, dest string) error {
	if err := os.RemoveAll(dest); err != nil {
		return err
	}
	if err := os.Rename(staging, dest); err == nil {
		return nil
	}
	if err := copyDir(staging, dest); err != nil {
		return err
	}
	return os.RemoveAll(staging)
}

// resolveCatalogEntry finds src.Plugin in the marketplace catalog,
// refreshing the catalog over the network if the cache is stale. Concurrent
// callers resolving the same reference share one in-flight fetch via
// singleflight, collapsing repeated lookups so concurrent resolutions of
// the same reference don't each hit GitHub.
func (inst *Installer) resolveCatalogEntry(ctx context.Context, src Source) (CatalogEntry, error) {
	v, err, _ := inst.versionGroup.Do(src.Owner+"/"+src.Repo+"/"+src.Plugin, func() (any, error) {
		if err := inst.refreshCatalogIfStale(ctx); err != nil {
			return nil, err
		}
		for _, e := range inst.catalog {
			if e.Name == src.Plugin {
				return e, nil
			}
		}
		return nil, fmt.Errorf("plugin %q not found in marketplace catalog", src.Plugin)
	})
	if err != nil {
		return CatalogEntry{}, apperr.LoadError(src.Plugin, "resolving catalog entry", err)
	}
	return v.(CatalogEntry), nil
}

func (inst *Installer) refreshCatalogIfStale(ctx context.Context) error {
	if time.Since(inst.catalogTime) < inst.catalogTTL && inst.catalog != nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, inst.catalogURL, nil)
	if err != nil {
		return err
	}
	resp, err := inst.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching marketplace catalog: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetching marketplace catalog: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var doc catalogDoc
	if err := toml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing marketplace catalog: %w", err)
	}

	inst.catalog = doc.Plugins
	inst.catalogTime = time.Now()
	return nil
}

// releaseArchiveURL constructs the GitHub release asset URL for a tagged
// version: releases/download/v<version>/<plugin>-<target>.tar.gz.
func releaseArchiveURL(owner, repo, plugin, version string) string {
	v := version
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return fmt.Sprintf("https://github.com/%s/%s/releases/download/%s/%s-%s.tar.gz", owner, repo, v, plugin, releaseTarget())
}

// releaseTarget identifies the platform-specific archive variant to fetch.
func releaseTarget() string {
	return runtime.GOOS + "-" + runtime.GOARCH
}

func (inst *Installer) downloadAndExtract(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := inst.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("no release archive published for platform %s at %s", releaseTarget(), url)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return extractTarGz(resp.Body, dest)
}

type tarEntry struct {
	header *tar.Header
	data   []byte
}

// extractTarGz extracts a gzip-compressed tar stream into dest, tolerating
// one level of nesting: if every entry shares a single common top-level
// directory (e.g. "myplugin-1.0.0/plugin.toml"), that directory is
// stripped so the manifest and library land directly in dest rather than
// one level down.
func extractTarGz(r io.Reader, dest string) error {
	gzr, err := gzip.NewReader(r)
	if err != nil {
		return err
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	var entries []tarEntry
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return err
		}
		entries = append(entries, tarEntry{header: header, data: data})
	}

	prefix := commonTopLevelDir(entries)

	for _, e := range entries {
		name := strings.TrimPrefix(e.header.Name, prefix)
		if name == "" {
			continue
		}
		target, err := safeJoin(dest, name)
		if err != nil {
			return err
		}

		switch e.header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(e.header.Mode))
			if err != nil {
				return err
			}
			if _, err := f.Write(e.data); err != nil {
				f.Close()
				return err
			}
			f.Close()
		}
	}
	return nil
}

// commonTopLevelDir returns "dirname/" if every entry's name begins with the
// same single top-level directory segment, or "" if entries are already
// flat (or disagree on a common root).
func commonTopLevelDir(entries []tarEntry) string {
	if len(entries) == 0 {
		return ""
	}
	var prefix string
	for i, e := range entries {
		parts := strings.SplitN(e.header.Name, "/", 2)
		if len(parts) != 2 || parts[0] == "" {
			return ""
		}
		if i == 0 {
			prefix = parts[0] + "/"
		} else if parts[0]+"/" != prefix {
			return ""
		}
	}
	return prefix
}

// safeJoin joins dest and name, rejecting any archive entry that would
// escape dest via "../" path traversal.
func safeJoin(dest, name string) (string, error) {
	target := filepath.Join(dest, name)
	if !strings.HasPrefix(target, filepath.Clean(dest)+string(os.PathSeparator)) && target != filepath.Clean(dest) {
		return "", fmt.Errorf("archive entry %q escapes destination directory", name)
	}
	return target, nil
}

// copyDir recursively copies src's contents into dst, creating dst if
// needed. Falls back to a copy (rather than a rename) since src may live on
// a different filesystem than pluginsDir.
func copyDir(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	for _, e := range entries {
		srcPath := filepath.Join(src, e.Name())
		dstPath := filepath.Join(dst, e.Name())
		if e.IsDir() {
			if err := copyDir(srcPath, dstPath); err != nil {
				return err
			}
			continue
		}
		if err := copyFile(srcPath, dstPath); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode())
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

// Installed lists every subdirectory of pluginsDir that looks like an
// installed plugin (i.e. contains a plugin.toml manifest).
func (inst *Installer) Installed() ([]string, error) {
	entries, err := os.ReadDir(inst.pluginsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(inst.pluginsDir, e.Name(), "plugin.toml")); err == nil {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Catalog returns the marketplace catalog, refreshing it if stale.
func (inst *Installer) Catalog(ctx context.Context) ([]CatalogEntry, error) {
	if err := inst.refreshCatalogIfStale(ctx); err != nil {
		return nil, err
	}
	return inst.catalog, nil
}

// Uninstall removes an installed plugin's directory entirely.
func (inst *Installer) Uninstall(name string) error {
	return os.RemoveAll(filepath.Join(inst.pluginsDir, name))
}
