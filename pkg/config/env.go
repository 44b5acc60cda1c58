package config

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/localrag/localrag/pkg/ragerrors"
)

// loadEnvFiles loads .env.local then .env into the process environment,
// lowest priority last (an already-set process env var always wins,
// godotenv.Load never overwrites an existing key).
func loadEnvFiles() error {
	for _, f := range []string{".env.local", ".env"} {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			return ragerrors.New(ragerrors.ConfigInvalid, "config.loadEnvFiles", "failed reading "+f, err)
		}
	}
	return nil
}
