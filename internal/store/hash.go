package store

import (
	"fmt"

	"github.com/zeebo/xxh3"
)

// ContentHash is the change-detection hash stored in files.hash.
func ContentHash(src []byte) string {
	return fmt.Sprintf("%x", xxh3.Hash128(src).Bytes())
}
