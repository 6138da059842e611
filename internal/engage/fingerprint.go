package engage

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/okian/funnel/internal/domain/model"
)

// Fingerprint derives the cache key for an engagement request from its
// semantic content: decision point, flavour, and the parameter set. Two
// requests with equal content share a slot regardless of map identity.
//
// encoding/json writes map keys in sorted order at every nesting level, so
// the marshaled parameters are already canonical. Parameters that fail to
// marshal are hashed from their fmt rendering so they never share a slot
// with the empty-parameter request.
func Fingerprint(decisionPoint, flavour string, params model.Params) string {
	var digest string
	if len(params) > 0 {
		data, err := json.Marshal(params)
		if err != nil {
			data = []byte(fmt.Sprintf("unmarshalable:%v", params))
		}
		sum := sha256.Sum256(data)
		digest = hex.EncodeToString(sum[:])
	}
	return decisionPoint + "|" + flavour + "|" + digest
}
