// Package guard forces test mode before any runtime side effects start.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("FABRICA_TEST_MODE") == "" {
			_ = os.Setenv("FABRICA_TEST_MODE", "1")
		}
	})
}
