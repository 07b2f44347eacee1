// Package registry implements the registry gateway: existence checks
// against the private container registry and best-effort copy-from-public
// seeding of missing images.
package registry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/remote/transport"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/pipelineforge/pipelineforge/pkg/domain"
	"github.com/pipelineforge/pipelineforge/pkg/shared/logging"
)

// ExistsStatus is the tri-state result of an existence check: the registry
// gateway never reports a network failure as a hard error, only as
// Unknown.
type ExistsStatus int

const (
	ExistsAbsent ExistsStatus = iota
	ExistsPresent
	ExistsUnknown
)

func (s ExistsStatus) String() string {
	switch s {
	case ExistsPresent:
		return "present"
	case ExistsAbsent:
		return "absent"
	default:
		return "unknown"
	}
}

// Config holds the gateway's connection details.
type Config struct {
	// Host is the private registry's address from the generator's
	// perspective, e.g. "registry.internal.example.com:5000".
	Host string
	// RepositoryPath is the path prefix all seeded images are copied
	// under, e.g. "apm-repo/demo".
	RepositoryPath string
	// Username/Password authenticate both the v2 API and the seed
	// subprocess.
	Username string
	Password string
	// SeedTool is carried from configuration; the seed runner always
	// invokes "skopeo" from PATH and does not read this field.
	SeedTool string
	// ExistsTimeout and SeedTimeout bound each respective operation.
	ExistsTimeout time.Duration
	SeedTimeout   time.Duration
	// InsecureTLS allows plain HTTP against the private registry, which
	// policy treats as HTTP-only.
	InsecureTLS bool
}

// Gateway is the registry gateway component.
type Gateway struct {
	cfg     Config
	logger  *zap.Logger
	breaker *gobreaker.CircuitBreaker
	locker  *redis.Client
	runner  seedRunner
}

// Option configures a Gateway at construction time.
type Option func(*Gateway)

// WithRedisLock enables a distributed per-image-ref dedup lock, so that
// concurrent seed requests for the same image funnel through one copy.
func WithRedisLock(client *redis.Client) Option {
	return func(g *Gateway) { g.locker = client }
}

// NewGateway builds a Gateway.
func NewGateway(cfg Config, logger *zap.Logger, opts ...Option) *Gateway {
	g := &Gateway{
		cfg:    cfg,
		logger: logger,
		runner: execSeedRunner{},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "registry-gateway",
			MaxRequests: 1,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Exists checks whether ref's canonical form is present in the private
// registry. Network failures collapse to ExistsUnknown rather than an
// error: callers must treat Unknown as "may exist", a non-blocking
// warning, never a hard failure.
func (g *Gateway) Exists(ctx context.Context, ref domain.ImageReference) (ExistsStatus, error) {
	privateRef := g.privateReference(ref)

	ctx, cancel := context.WithTimeout(ctx, g.cfg.ExistsTimeout)
	defer cancel()

	result, err := g.breaker.Execute(func() (interface{}, error) {
		nameOpts := []name.Option{name.WithDefaultRegistry(g.cfg.Host)}
		if g.cfg.InsecureTLS {
			nameOpts = append(nameOpts, name.Insecure)
		}
		parsed, err := name.ParseReference(privateRef, nameOpts...)
		if err != nil {
			return nil, err
		}
		opts := []remote.Option{remote.WithContext(ctx)}
		if g.cfg.Username != "" {
			opts = append(opts, remote.WithAuth(&authn.Basic{Username: g.cfg.Username, Password: g.cfg.Password}))
		}
		_, err = remote.Head(parsed, opts...)
		if isNotFound(err) {
			// An absent image is an expected, routine outcome of a Head
			// check, not a breaker failure: counting it against the
			// breaker would trip it during normal seeding, where most
			// candidate images are absent by design.
			return ExistsAbsent, nil
		}
		if err != nil {
			return nil, err
		}
		return ExistsPresent, nil
	})

	fields := logging.RegistryFields("exists", ref.Canonical(), g.cfg.RepositoryPath)
	if err != nil {
		g.logger.Warn("registry existence check failed, treating as unknown", toZapFields(fields.Error(err))...)
		return ExistsUnknown, nil
	}

	status, _ := result.(ExistsStatus)
	if status == ExistsAbsent {
		g.logger.Debug("image absent from private registry", toZapFields(fields)...)
		return ExistsAbsent, nil
	}
	g.logger.Debug("image present in private registry", toZapFields(fields)...)
	return ExistsPresent, nil
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var transportErr *transport.Error
	if errors.As(err, &transportErr) {
		return transportErr.StatusCode == http.StatusNotFound
	}
	return strings.Contains(err.Error(), "MANIFEST_UNKNOWN") || strings.Contains(err.Error(), "NAME_UNKNOWN")
}

// privateReference builds the private-registry-qualified reference for
// ref's canonical (Nexus-normalized) form.
func (g *Gateway) privateReference(ref domain.ImageReference) string {
	return fmt.Sprintf("%s/%s/%s", g.cfg.Host, g.cfg.RepositoryPath, ref.Canonical())
}

func toZapFields(f logging.Fields) []zap.Field {
	out := make([]zap.Field, 0, len(f))
	for k, v := range f {
		out = append(out, zap.Any(k, v))
	}
	return out
}
