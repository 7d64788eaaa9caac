package replay

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"aitown/internal/app/ports"
	"aitown/internal/domain/history"
)

var ErrInvalidRequest = errors.New("invalid replay request")

// UseCase serves the location histories written by the last committed step,
// so clients can interpolate motion between snapshots.
type UseCase struct {
	State ports.WorldStateRepository
}

func (u UseCase) Execute(ctx context.Context, req Request) (Response, error) {
	req.WorldID = strings.TrimSpace(req.WorldID)
	if req.WorldID == "" {
		return Response{}, ErrInvalidRequest
	}
	rows, err := u.State.Histories(ctx, req.WorldID)
	if err != nil {
		return Response{}, err
	}
	want := map[string]bool{}
	for _, id := range req.LocationIDs {
		if id = strings.TrimSpace(id); id != "" {
			want[id] = true
		}
	}
	out := Response{WorldID: req.WorldID, Locations: make([]LocationHistory, 0, len(rows))}
	for _, row := range rows {
		if len(want) > 0 && !want[row.LocationID] {
			continue
		}
		buf, err := history.Unpack(row.Buffer)
		if err != nil {
			return Response{}, fmt.Errorf("location %s: %w", row.LocationID, err)
		}
		entry := LocationHistory{LocationID: row.LocationID, Start: buf.Start()}
		if req.Packed {
			entry.Packed = row.Buffer
		} else {
			entry.Fields = buf.Fields()
		}
		out.Locations = append(out.Locations, entry)
	}
	return out, nil
}
