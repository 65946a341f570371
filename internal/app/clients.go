package app

import (
	"fmt"
	"os"
	"strings"

	"github.com/attestra/attestra-backend/internal/pkg/logger"
	"github.com/attestra/attestra-backend/internal/platform/contentai"
	"github.com/attestra/attestra-backend/internal/platform/gcs"
	"github.com/attestra/attestra-backend/internal/platform/redisx"
	"github.com/attestra/attestra-backend/internal/providers"
	"github.com/attestra/attestra-backend/internal/render"
)

type Clients struct {
	Cache     redisx.Cache
	Bucket    gcs.BucketService
	ContentAI contentai.Client
	Renderer  render.CertificateRenderer
	Providers *providers.Registry
}

// wireClients builds external dependencies. The content client is required;
// redis, gcs, and the certificate renderer are optional and degrade to nil.
func wireClients(log *logger.Logger) (Clients, error) {
	log.Info("Wiring clients...")
	var clients Clients

	if strings.TrimSpace(os.Getenv("REDIS_ADDR")) != "" {
		cache, err := redisx.New(log)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis cache: %w", err)
		}
		clients.Cache = cache
	} else {
		log.Warn("REDIS_ADDR not set, tenant config cache disabled")
	}

	if strings.TrimSpace(os.Getenv("EVIDENCE_GCS_BUCKET_NAME")) != "" {
		bucket, err := gcs.NewBucketService(log)
		if err != nil {
			return Clients{}, fmt.Errorf("init gcs bucket: %w", err)
		}
		clients.Bucket = bucket
	} else {
		log.Warn("EVIDENCE_GCS_BUCKET_NAME not set, gcs archive provider disabled")
	}

	content, err := contentai.NewFromEnv(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init content client: %w", err)
	}
	clients.ContentAI = content

	renderer, err := render.NewCertificateRenderer(log)
	if err != nil {
		log.Warn("certificate renderer unavailable, uploads proceed without certificates", "error", err)
	} else {
		clients.Renderer = renderer
	}

	provs := []providers.ComplianceProvider{providers.NewComplyArkProvider(log, nil)}
	if clients.Bucket != nil {
		provs = append(provs, providers.NewGCSArchiveProvider(log, clients.Bucket))
	}
	registry, err := providers.NewRegistry(provs...)
	if err != nil {
		return Clients{}, fmt.Errorf("init provider registry: %w", err)
	}
	clients.Providers = registry

	return clients, nil
}

func (c Clients) Close() {
	if c.Cache != nil {
		_ = c.Cache.Close()
	}
	if c.Bucket != nil {
		_ = c.Bucket.Close()
	}
}
