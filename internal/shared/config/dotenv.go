package config

import (
	"errors"
	"io/fs"
	"log"

	"github.com/subosito/gotenv"
)

// loadEnvFiles loads KEY=VALUE pairs from the given files if they exist.
// Variables already present in the environment win.
func loadEnvFiles(paths ...string) {
	for _, path := range paths {
		if err := gotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Printf("config: skip env file %s: %v", path, err)
		}
	}
}
