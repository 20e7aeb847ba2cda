package catalog

import (
	"context"
	"fmt"
	"sort"
	"time"

	"lcfetch/pkg/config"
	"lcfetch/pkg/errors"
	"lcfetch/pkg/logger"
	"lcfetch/pkg/ratelimit"
	"lcfetch/pkg/retry"
)

// Querier is the catalog lookup interface used by the fetch stage
type Querier interface {
	Query(ctx context.Context, q Query) (*Response, error)
}

// Set fans a query out over the configured catalog instances, paced by a
// rate limiter. Instances without a token are omitted at construction time
// rather than failing the whole run.
type Set struct {
	clients []*Client
	limiter ratelimit.Limiter
	retrier *retry.Retrier
	logger  logger.Logger
}

// NewSet builds the instance set from configuration. Returns a
// config_missing error when no instance has a usable token.
func NewSet(cfg *config.Config, log logger.Logger) (*Set, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	names := make([]string, 0, len(cfg.Catalog.Instances))
	for name := range cfg.Catalog.Instances {
		names = append(names, name)
	}
	sort.Strings(names)

	timeout := time.Duration(cfg.Catalog.Timeout) * time.Second

	var clients []*Client
	for _, name := range names {
		instance := cfg.Catalog.Instances[name]
		if instance.Token == "" {
			log.WarnWithFields("catalog instance omitted: no token configured", map[string]interface{}{
				"instance": name,
			})
			continue
		}
		baseURL := fmt.Sprintf("%s://%s:%d", cfg.Catalog.Protocol, instance.Host, cfg.Catalog.Port)
		clients = append(clients, NewClient(name, baseURL, instance.Token, timeout, log))
	}

	if len(clients) == 0 {
		return nil, &errors.Error{
			Type:    errors.ErrorTypeConfigMissing,
			Message: "no catalog instance has a token configured",
		}
	}

	retrier := retry.NewHTTPRetrier(
		cfg.Retry.MaxAttempts,
		time.Duration(cfg.Retry.InitialBackoff)*time.Second,
		time.Duration(cfg.Retry.MaxBackoff)*time.Second,
		cfg.Retry.Multiplier,
		log,
	)

	return &Set{
		clients: clients,
		limiter: ratelimit.NewTokenBucket(cfg.RateLimit.RequestsPerMinute, time.Minute),
		retrier: retrier,
		logger:  log,
	}, nil
}

// Instances returns the names of the connected instances
func (s *Set) Instances() []string {
	names := make([]string, 0, len(s.clients))
	for _, c := range s.clients {
		names = append(names, c.Name())
	}
	return names
}

// Query sends the find query to each instance in turn and returns the first
// successful response. Transport faults are retried per instance; a
// non-success status is final for that instance.
func (s *Set) Query(ctx context.Context, q Query) (*Response, error) {
	s.limiter.Wait()

	var lastErr error
	for _, client := range s.clients {
		response, err := retry.DoWithResult(func() (*Response, error) {
			return client.Query(ctx, q)
		}, s.retrier.WithContext(ctx).Config())
		if err == nil {
			return response, nil
		}

		lastErr = err
		s.logger.WarnWithFields("catalog instance query failed", map[string]interface{}{
			"instance": client.Name(),
			"error":    err.Error(),
		})
	}

	return nil, fmt.Errorf("all catalog instances failed: %w", lastErr)
}
