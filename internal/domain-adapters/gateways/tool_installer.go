package gateways

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/hashicorp/go-version"

	"github.com/ochairo/prgate/internal/domain/entities"
	"github.com/ochairo/prgate/internal/domain/interfaces"
	"github.com/ochairo/prgate/internal/domain/interfaces/gateways"
)

// Scanner versions installed when none is requested
const (
	DefaultTrivyVersion    = "v0.48.0"
	DefaultCheckovVersion  = "2.3.0"
	DefaultConftestVersion = "v0.45.0"
)

const (
	trivyReleaseURL    = "https://github.com/aquasecurity/trivy/releases/download"
	conftestReleaseURL = "https://github.com/open-policy-agent/conftest/releases/download"
	checkovReleaseURL  = "https://github.com/bridgecrewio/checkov/releases/download"
)

// Oldest releases whose JSON output the adapters understand
var minimumVersions = map[entities.ToolName]string{
	entities.ToolTrivy:   "0.20.0",
	entities.ToolCheckov: "2.0.0",
	entities.ToolOPA:     "0.19.0",
}

// DefaultToolVersion returns the version installed for tool when none is configured
func DefaultToolVersion(tool entities.ToolName) string {
	switch tool {
	case entities.ToolTrivy:
		return DefaultTrivyVersion
	case entities.ToolCheckov:
		return DefaultCheckovVersion
	case entities.ToolOPA:
		return DefaultConftestVersion
	default:
		return ""
	}
}

// ToolInstallerConfig configures scanner installation
type ToolInstallerConfig struct {
	// InstallDir receives the binaries; callers put it on PATH
	InstallDir string

	// Mirrors maps a tool to a base URL laid out like its GitHub release
	// download path (<base>/<tag>/<asset>). Used when the primary source fails.
	Mirrors map[entities.ToolName]string

	// Verifier, when set, checks <asset>.asc next to each downloaded archive
	Verifier gateways.SignatureVerifier

	// GitHubAPIURL and Token are used to resolve the "latest" version
	GitHubAPIURL string
	Token        string

	Client *retryablehttp.Client
	Runner gateways.CommandRunner
	Logger interfaces.Logger

	// GOOS and GOARCH select release assets; default to the running platform
	GOOS   string
	GOARCH string
}

// releaseAsset locates one downloadable scanner archive
type releaseAsset struct {
	tag       string // path segment under the release base URL
	name      string
	checksums string // empty when the release publishes no checksum file
}

// installOnce records the result of the single install attempt per tool
type installOnce struct {
	once sync.Once
	err  error
}

// toolInstaller downloads and verifies scanner releases
type toolInstaller struct {
	installDir string
	mirrors    map[entities.ToolName]string
	verifier   gateways.SignatureVerifier
	downloader *releaseDownloader
	versions   *versionFetcher
	checksums  *checksumVerifier
	runner     gateways.CommandRunner
	logger     interfaces.Logger
	goos       string
	goarch     string

	mu       sync.Mutex
	attempts map[entities.ToolName]*installOnce
}

// NewToolInstaller creates a ToolProvisioner that installs each scanner at most once per run
func NewToolInstaller(cfg ToolInstallerConfig) (gateways.ToolProvisioner, error) {
	installDir := cfg.InstallDir
	if installDir == "" {
		var err error
		installDir, err = DefaultInstallDir()
		if err != nil {
			return nil, err
		}
	}

	logger := interfaces.OrNoOp(cfg.Logger)
	runner := cfg.Runner
	if runner == nil {
		runner = NewCommandRunner(logger)
	}

	return &toolInstaller{
		installDir: installDir,
		mirrors:    cfg.Mirrors,
		verifier:   cfg.Verifier,
		downloader: newReleaseDownloader(cfg.Client, logger),
		versions:   newVersionFetcher(cfg.Client, cfg.GitHubAPIURL, cfg.Token, logger),
		checksums:  NewChecksumVerifier(),
		runner:     runner,
		logger:     logger,
		goos:       stringOr(cfg.GOOS, runtime.GOOS),
		goarch:     stringOr(cfg.GOARCH, runtime.GOARCH),
		attempts:   make(map[entities.ToolName]*installOnce),
	}, nil
}

// DefaultInstallDir is <user cache dir>/prgate/bin
func DefaultInstallDir() (string, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate cache directory: %w", err)
	}
	return filepath.Join(cacheDir, "prgate", "bin"), nil
}

// Ensure installs tool at version. Repeated calls return the first result.
func (i *toolInstaller) Ensure(ctx context.Context, tool entities.ToolName, requested string) error {
	i.mu.Lock()
	attempt, ok := i.attempts[tool]
	if !ok {
		attempt = &installOnce{}
		i.attempts[tool] = attempt
	}
	i.mu.Unlock()

	attempt.once.Do(func() {
		attempt.err = i.install(ctx, tool, requested)
	})
	return attempt.err
}

func (i *toolInstaller) install(ctx context.Context, tool entities.ToolName, requested string) error {
	if strings.EqualFold(strings.TrimSpace(requested), LatestVersion) {
		tag, err := i.versions.latestVersion(ctx, tool)
		if err != nil {
			return fmt.Errorf("failed to resolve latest %s: %w", tool.DisplayName(), err)
		}
		requested = tag
	}

	v, err := resolveVersion(tool, requested)
	if err != nil {
		return err
	}

	i.logger.Info("Installing scanner",
		interfaces.F("tool", tool.DisplayName()),
		interfaces.F("version", v),
		interfaces.F("dir", i.installDir))

	switch tool {
	case entities.ToolTrivy:
		asset, err := i.trivyAsset(v)
		if err != nil {
			return err
		}
		return i.installRelease(ctx, tool, "trivy", trivyReleaseURL, asset)
	case entities.ToolOPA:
		asset, err := i.conftestAsset(v)
		if err != nil {
			return err
		}
		return i.installRelease(ctx, tool, "conftest", conftestReleaseURL, asset)
	case entities.ToolCheckov:
		return i.installCheckov(ctx, v)
	default:
		return fmt.Errorf("no installer for %s", tool)
	}
}

// installRelease tries the GitHub release, then the configured mirror
func (i *toolInstaller) installRelease(ctx context.Context, tool entities.ToolName, binary, releaseURL string, asset releaseAsset) error {
	primaryErr := i.installArchive(ctx, binary, releaseURL, asset)
	if primaryErr == nil {
		return nil
	}

	mirror := strings.TrimRight(i.mirrors[tool], "/")
	if mirror == "" {
		return primaryErr
	}

	i.logger.Warn("Release download failed, trying mirror",
		interfaces.F("tool", tool.DisplayName()),
		interfaces.F("error", primaryErr.Error()),
		interfaces.F("mirror", mirror))
	if err := i.installArchive(ctx, binary, mirror, asset); err != nil {
		return fmt.Errorf("release: %w; mirror: %w", primaryErr, err)
	}
	return nil
}

// installArchive downloads <base>/<tag>/<asset>, verifies it and extracts binary
func (i *toolInstaller) installArchive(ctx context.Context, binary, base string, asset releaseAsset) error {
	tmpDir, err := os.MkdirTemp("", "prgate-install-*")
	if err != nil {
		return fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tmpDir) //nolint:errcheck // best-effort cleanup

	prefix := base + "/" + asset.tag + "/"
	archivePath := filepath.Join(tmpDir, asset.name)
	if err := i.downloader.downloadFile(ctx, prefix+asset.name, archivePath); err != nil {
		return err
	}

	if asset.checksums != "" {
		listing, err := i.downloader.fetch(ctx, prefix+asset.checksums)
		if err != nil {
			return fmt.Errorf("failed to fetch checksums: %w", err)
		}
		expected, err := i.checksums.LookupChecksum(listing, asset.name)
		if err != nil {
			return err
		}
		if err := i.checksums.VerifyChecksum(archivePath, expected); err != nil {
			return fmt.Errorf("%s: %w", asset.name, err)
		}
	}

	if i.verifier != nil {
		signature, err := i.downloader.fetch(ctx, prefix+asset.name+".asc")
		if err != nil {
			return fmt.Errorf("failed to fetch signature: %w", err)
		}
		if err := i.verifier.VerifyDetached(archivePath, signature); err != nil {
			return fmt.Errorf("%s: %w", asset.name, err)
		}
	}

	dest := filepath.Join(i.installDir, binary)
	if err := extractBinary(archivePath, binary, dest); err != nil {
		return err
	}
	i.logger.Info("Installed scanner", interfaces.F("path", dest))
	return nil
}

// installCheckov uses pip, falling back to the standalone release zip
func (i *toolInstaller) installCheckov(ctx context.Context, v string) error {
	pipErr := i.pipInstall(ctx, "checkov=="+v)
	if pipErr == nil {
		if _, err := i.runner.LookPath("checkov"); err == nil {
			return nil
		}
		pipErr = fmt.Errorf("pip installed checkov outside PATH")
	}

	i.logger.Warn("pip install failed, trying release zip", interfaces.F("error", pipErr.Error()))
	asset, err := i.checkovAsset(v)
	if err != nil {
		return fmt.Errorf("pip: %w; release: %w", pipErr, err)
	}
	if err := i.installArchive(ctx, "checkov", checkovReleaseURL, asset); err != nil {
		return fmt.Errorf("pip: %w; release: %w", pipErr, err)
	}
	return nil
}

func (i *toolInstaller) pipInstall(ctx context.Context, requirement string) error {
	pip := ""
	for _, candidate := range []string{"pip3", "pip"} {
		if _, err := i.runner.LookPath(candidate); err == nil {
			pip = candidate
			break
		}
	}
	if pip == "" {
		return fmt.Errorf("pip is not on PATH")
	}

	result := i.runner.Run(ctx, gateways.Command{
		Name: pip,
		Args: []string{"install", "--quiet", requirement},
	})
	if result.Err != nil {
		return result.Err
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("%s install exited with code %d: %s", pip, result.ExitCode, strings.TrimSpace(result.Stderr))
	}
	return nil
}

func (i *toolInstaller) trivyAsset(v string) (releaseAsset, error) {
	osName, ok := map[string]string{"linux": "Linux", "darwin": "macOS"}[i.goos]
	arch, archOK := map[string]string{"amd64": "64bit", "arm64": "ARM64"}[i.goarch]
	if !ok || !archOK {
		return releaseAsset{}, i.unsupported(entities.ToolTrivy)
	}
	return releaseAsset{
		tag:       "v" + v,
		name:      fmt.Sprintf("trivy_%s_%s-%s.tar.gz", v, osName, arch),
		checksums: fmt.Sprintf("trivy_%s_checksums.txt", v),
	}, nil
}

func (i *toolInstaller) conftestAsset(v string) (releaseAsset, error) {
	osName, ok := map[string]string{"linux": "Linux", "darwin": "Darwin"}[i.goos]
	arch, archOK := map[string]string{"amd64": "x86_64", "arm64": "arm64"}[i.goarch]
	if !ok || !archOK {
		return releaseAsset{}, i.unsupported(entities.ToolOPA)
	}
	return releaseAsset{
		tag:       "v" + v,
		name:      fmt.Sprintf("conftest_%s_%s_%s.tar.gz", v, osName, arch),
		checksums: "checksums.txt",
	}, nil
}

func (i *toolInstaller) checkovAsset(v string) (releaseAsset, error) {
	osName, ok := map[string]string{"linux": "linux", "darwin": "darwin"}[i.goos]
	arch, archOK := map[string]string{"amd64": "X86_64", "arm64": "arm64"}[i.goarch]
	if !ok || !archOK {
		return releaseAsset{}, i.unsupported(entities.ToolCheckov)
	}
	// checkov release tags carry no "v" and publish no checksum file
	return releaseAsset{
		tag:  v,
		name: fmt.Sprintf("checkov_%s_%s.zip", osName, arch),
	}, nil
}

func (i *toolInstaller) unsupported(tool entities.ToolName) error {
	return fmt.Errorf("no %s release for %s/%s", tool.DisplayName(), i.goos, i.goarch)
}

// resolveVersion validates requested (or the default) and returns it without a "v" prefix
func resolveVersion(tool entities.ToolName, requested string) (string, error) {
	raw := strings.TrimSpace(requested)
	if raw == "" {
		raw = DefaultToolVersion(tool)
	}
	raw = strings.TrimPrefix(raw, "v")

	v, err := version.NewVersion(raw)
	if err != nil {
		return "", fmt.Errorf("invalid %s version %q: %w", tool.DisplayName(), requested, err)
	}
	if minimum, ok := minimumVersions[tool]; ok && v.LessThan(version.Must(version.NewVersion(minimum))) {
		return "", fmt.Errorf("%s %s is older than the oldest supported release %s", tool.DisplayName(), raw, minimum)
	}
	return raw, nil
}
