// Package identity maps application user ids to the numeric identities
// the media transport requires. One mapping, used everywhere: mixing two
// mappings within a session breaks participant-to-stream correlation.
package identity

import (
	"hash/fnv"

	"github.com/shojbahmed330/voicebook/internal/domain"
)

// mediaUIDSpace keeps mapped ids inside the transport's uid range.
const mediaUIDSpace = 10_000_000

// MediaUID folds a user id into a stable non-negative integer below
// mediaUIDSpace. FNV-1a keeps collision probability low across an active
// user population without depending on the id's alphabet.
func MediaUID(id domain.UserID) uint32 {
	h := fnv.New32a()
	h.Write([]byte(id))
	return h.Sum32() % mediaUIDSpace
}
