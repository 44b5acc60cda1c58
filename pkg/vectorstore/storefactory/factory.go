// Package storefactory selects and constructs a vectorstore.Store
// backend from configuration (spec §4.4: "exactly two backends").
package storefactory

import (
	"github.com/localrag/localrag/pkg/ragerrors"
	"github.com/localrag/localrag/pkg/vectorstore"
	"github.com/localrag/localrag/pkg/vectorstore/chromembackend"
	"github.com/localrag/localrag/pkg/vectorstore/qdrantbackend"
)

// Backend identifies which Store implementation to build.
type Backend string

const (
	// BackendChromem is the embedded, on-disk chromem-go store.
	BackendChromem Backend = "chromem"
	// BackendQdrant is the remote Qdrant gRPC store.
	BackendQdrant Backend = "qdrant"
)

// Config configures whichever backend Type selects. The unused struct
// is left zero-valued.
type Config struct {
	Type Backend

	// Chromem fields.
	PersistDir string

	// Qdrant fields.
	Host   string
	Port   int
	APIKey string
	UseTLS bool

	// Dimension is the fixed vector width both collections are created
	// with. Required for both backends.
	Dimension int
}

// SetDefaults applies the teacher's zero-config convention: an unset
// Type defaults to the embedded backend, which needs no external
// service to run.
func (c *Config) SetDefaults() {
	if c.Type == "" {
		c.Type = BackendChromem
	}
}

// Validate checks that the fields required by the selected backend are
// present.
func (c Config) Validate() error {
	if c.Dimension <= 0 {
		return ragerrors.New(ragerrors.ConfigInvalid, "storefactory.Validate", "dimension must be positive", nil)
	}
	switch c.Type {
	case BackendChromem:
		if c.PersistDir == "" {
			return ragerrors.New(ragerrors.ConfigInvalid, "storefactory.Validate", "persist-dir is required for the chromem backend", nil)
		}
		return nil
	case BackendQdrant:
		if c.Host == "" {
			return ragerrors.New(ragerrors.ConfigInvalid, "storefactory.Validate", "host is required for the qdrant backend", nil)
		}
		return nil
	default:
		return ragerrors.New(ragerrors.ConfigInvalid, "storefactory.Validate", "unknown vector store backend: "+string(c.Type), nil)
	}
}

// New builds a Store for the configured backend. It does not call Init;
// the caller does that before using the Store.
func New(cfg Config) (vectorstore.Store, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Type {
	case BackendChromem:
		return chromembackend.New(chromembackend.Config{
			PersistDir: cfg.PersistDir,
			Dimension:  cfg.Dimension,
		}), nil

	case BackendQdrant:
		return qdrantbackend.New(qdrantbackend.Config{
			Host:      cfg.Host,
			Port:      cfg.Port,
			APIKey:    cfg.APIKey,
			UseTLS:    cfg.UseTLS,
			Dimension: cfg.Dimension,
		})

	default:
		return nil, ragerrors.New(ragerrors.ConfigInvalid, "storefactory.New", "unknown vector store backend: "+string(cfg.Type), nil)
	}
}
