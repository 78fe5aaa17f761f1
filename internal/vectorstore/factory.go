package vectorstore

import (
	"fmt"

	"go.uber.org/zap"
)

// Backend identifies which store implementation is serving requests.
type Backend string

const (
	BackendQdrant  Backend = "qdrant"
	BackendChromem Backend = "chromem"
	BackendMemory  Backend = "memory"

	// BackendAuto walks the fallback chain: qdrant, then chromem, then
	// the in-process store.
	BackendAuto Backend = "auto"
)

// FactoryConfig selects and configures a backend.
type FactoryConfig struct {
	// Provider picks the backend, or BackendAuto for the fallback chain.
	Provider Backend

	Qdrant  QdrantConfig
	Chromem ChromemConfig
	Memory  MemoryConfig
}

// Open constructs a Store according to the configured provider. With an
// explicit provider a construction failure is returned as-is; with
// BackendAuto each failed backend is logged at Warn and the next one in the
// chain is tried. The memory backend cannot fail, so Open with BackendAuto
// always yields a usable store.
func Open(config FactoryConfig, logger *zap.Logger) (Store, Backend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch config.Provider {
	case BackendQdrant:
		s, err := NewQdrantStore(config.Qdrant, logger)
		if err != nil {
			return nil, "", fmt.Errorf("opening qdrant store: %w", err)
		}
		return s, BackendQdrant, nil
	case BackendChromem:
		s, err := NewChromemStore(config.Chromem, logger)
		if err != nil {
			return nil, "", fmt.Errorf("opening chromem store: %w", err)
		}
		return s, BackendChromem, nil
	case BackendMemory:
		s, err := NewMemoryStore(config.Memory, logger)
		if err != nil {
			return nil, "", fmt.Errorf("opening memory store: %w", err)
		}
		return s, BackendMemory, nil
	case BackendAuto, "":
		return openChain(config, logger)
	default:
		return nil, "", fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, config.Provider)
	}
}

func openChain(config FactoryConfig, logger *zap.Logger) (Store, Backend, error) {
	if s, err := NewQdrantStore(config.Qdrant, logger); err == nil {
		return s, BackendQdrant, nil
	} else {
		logger.Warn("qdrant unavailable, falling back to file-backed store", zap.Error(err))
	}

	if s, err := NewChromemStore(config.Chromem, logger); err == nil {
		return s, BackendChromem, nil
	} else {
		logger.Warn("file-backed store unavailable, falling back to in-memory store", zap.Error(err))
	}

	s, err := NewMemoryStore(config.Memory, logger)
	if err != nil {
		return nil, "", fmt.Errorf("opening memory store: %w", err)
	}
	logger.Warn("using in-memory vector store, documents will not persist")
	return s, BackendMemory, nil
}
