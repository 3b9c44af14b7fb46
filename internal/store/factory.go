package store

import (
	"log"
	"path/filepath"

	"gateport/internal/config"
)

// New builds the store selected by the configuration. A failing Redis
// connection falls back to the file store rather than aborting startup.
func New(cfg *config.Config) (Store, error) {
	switch cfg.Store {
	case config.StoreNone:
		log.Println("💾 Session persistence disabled")
		return Disabled{}, nil

	case config.StoreRedis:
		st, err := NewRedis(cfg.RedisHost, cfg.RedisPort, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			log.Printf("⚠️ Redis connection failed: %v", err)
			log.Println("💾 Falling back to file session store")
			return newFileStore(cfg)
		}
		log.Printf("💾 Using Redis session store: %s:%s", cfg.RedisHost, cfg.RedisPort)
		return st, nil

	default:
		return newFileStore(cfg)
	}
}

func newFileStore(cfg *config.Config) (Store, error) {
	st, err := NewFile(filepath.Join(cfg.DataDir, "sessions"))
	if err != nil {
		return nil, err
	}
	log.Printf("💾 Using file session store: %s", st.Dir())
	return st, nil
}
