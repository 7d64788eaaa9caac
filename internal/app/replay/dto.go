package replay

import "aitown/internal/domain/history"

type Request struct {
	WorldID     string
	LocationIDs []string
	// Packed returns the raw buffers instead of decoded samples.
	Packed bool
}

type Response struct {
	WorldID   string            `json:"worldId"`
	Locations []LocationHistory `json:"locations"`
}

type LocationHistory struct {
	LocationID string                 `json:"locationId"`
	Start      int64                  `json:"start"`
	Packed     []byte                 `json:"packed,omitempty"`
	Fields     []history.FieldHistory `json:"fields,omitempty"`
}
