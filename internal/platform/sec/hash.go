// Copyright (c) 2026 DLMS. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// StorageKey derives a storage key from a secret-bearing identifier.
//
// Workspace ids travel in cookies and act as bearer credentials for the
// gateway, so they must never appear verbatim in Redis keys or database rows.
func StorageKey(prefix, secret string) string {
	sum := blake2b.Sum256([]byte(secret))
	return prefix + hex.EncodeToString(sum[:16])
}
