package plugin

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/cuemby/katalog/pkg/types"
)

// IdentityKey computes the stable SHA-256 identity of an actor from
// its type, plugin id and canonicalized config. Two actors with equal
// identity keys are the same logical actor regardless of their
// human-friendly Name.
func IdentityKey(actorType types.ActorType, pluginID string, config map[string]any) (string, error) {
	canonical, err := json.Marshal(config)
	if err != nil {
		return "", fmt.Errorf("identity key: canonicalize config: %w", err)
	}
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s", actorType, pluginID, canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}
