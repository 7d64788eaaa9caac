package agent

import (
	"strconv"

	"github.com/google/uuid"
)

var idNamespace = uuid.MustParse("6f1c2b7e-4a0d-4c2e-9d59-3b8a1f0e7c21")

// derivedID is stable for the same world, agent, time and purpose, so a
// replayed step emits the same input and operation ids.
func derivedID(worldID, agentID string, now int64, purpose string) string {
	name := worldID + "/" + agentID + "/" + strconv.FormatInt(now, 10) + "/" + purpose
	return uuid.NewSHA1(idNamespace, []byte(name)).String()
}
