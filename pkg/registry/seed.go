package registry

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/pipelineforge/pipelineforge/pkg/domain"
	"github.com/pipelineforge/pipelineforge/pkg/shared/logging"
)

// dockerHubSource maps a private-registry-style hyphenated name prefix
// back to its public DockerHub (or other public registry) source, the
// fixed translation table.
var dockerHubSource = map[string]string{
	"curlimages-curl":                "curlimages/curl",
	"sonarsource-sonar-scanner-cli":  "sonarsource/sonar-scanner-cli",
	"aquasec-trivy":                  "aquasec/trivy",
	"kaniko-executor":                "gcr.io/kaniko-project/executor",
	"bitnami-git":                    "bitnami/git",
	"hadolint-hadolint":              "hadolint/hadolint",
	"checkmarx-kics":                 "checkmarx/kics",
	"grafana-grafana":                "grafana/grafana",
}

// SkipPatterns is the static set of name fragments bypassed entirely by
// Seed: images that live in their own well-known registry and never need
// mirroring.
var SkipPatterns = []string{
	"kaniko-executor",
	"kaniko",
}

// ShouldSkip reports whether ref's canonical name matches a skip pattern.
func ShouldSkip(ref domain.ImageReference) bool {
	namePart := strings.SplitN(ref.Canonical(), ":", 2)[0]
	for _, pattern := range SkipPatterns {
		if strings.Contains(namePart, pattern) {
			return true
		}
	}
	return false
}

// publicReference builds the canonical public source reference for ref,
// applying the translation table and the bare-name → library/<name>
// fallback.
func publicReference(ref domain.ImageReference) string {
	namePart, tag := splitCanonical(ref)

	if hubName, ok := dockerHubSource[namePart]; ok {
		if strings.Contains(strings.SplitN(hubName, "/", 2)[0], ".") {
			return fmt.Sprintf("docker://%s:%s", hubName, tag)
		}
		return fmt.Sprintf("docker://docker.io/%s:%s", hubName, tag)
	}

	if ref.Namespace != "" {
		// A namespaced image that wasn't folded through the translation
		// table still carries its original namespace/name split.
		if strings.Contains(ref.Namespace, ".") {
			return fmt.Sprintf("docker://%s/%s:%s", ref.Namespace, ref.Name, tag)
		}
		return fmt.Sprintf("docker://docker.io/%s/%s:%s", ref.Namespace, ref.Name, tag)
	}

	return fmt.Sprintf("docker://docker.io/library/%s:%s", ref.Name, tag)
}

func splitCanonical(ref domain.ImageReference) (name, tag string) {
	parts := strings.SplitN(ref.Canonical(), ":", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return parts[0], "latest"
}

// seedRunner abstracts the external copy subprocess for testability.
type seedRunner interface {
	Copy(ctx context.Context, src, dst, username, password string) error
}

type execSeedRunner struct{}

func (execSeedRunner) Copy(ctx context.Context, src, dst, username, password string) error {
	args := []string{
		"copy",
		"--dest-tls-verify=false",
		"--src-tls-verify=false",
	}
	if username != "" {
		args = append(args, fmt.Sprintf("--dest-creds=%s:%s", username, password))
	}
	args = append(args, src, dst)

	cmd := exec.CommandContext(ctx, "skopeo", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("skopeo copy %s -> %s: %w (stderr: %s)", src, dst, err, truncate(stderr.String(), 500))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// Seed copies ref from its public source into the private registry. It is
// best-effort: the returned error, when non-nil, never blocks artifact
// generation — callers record it in the seeding summary instead.
func (g *Gateway) Seed(ctx context.Context, ref domain.ImageReference) error {
	if ShouldSkip(ref) {
		return nil
	}

	if g.locker != nil {
		release, locked, err := g.acquireLock(ctx, ref)
		if err != nil {
			g.logger.Warn("seed lock unavailable, proceeding without dedup", zap.Error(err))
		} else if !locked {
			return nil
		} else {
			defer release()
		}
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.SeedTimeout)
	defer cancel()

	src := publicReference(ref)
	dst := fmt.Sprintf("docker://%s/%s/%s", g.cfg.Host, g.cfg.RepositoryPath, ref.Canonical())

	fields := logging.RegistryFields("seed", ref.Canonical(), g.cfg.RepositoryPath)
	g.logger.Info("seeding image", toZapFields(fields)...)

	if err := g.runner.Copy(ctx, src, dst, g.cfg.Username, g.cfg.Password); err != nil {
		g.logger.Warn("image seed failed", toZapFields(fields.Error(err))...)
		return err
	}

	g.logger.Info("image seeded", toZapFields(fields)...)
	return nil
}
