// Package ingest owns the upstream feed connections. Each listener emits
// normalized-shape data points at its own cadence; a live listener that
// exhausts its failure budget hands over to a synthetic generator so the
// downstream pipeline keeps receiving data.
package ingest

import (
	"context"

	"github.com/Tankman61/VibeTrade/internal/models"
)

// Emit hands one data point to the pipeline. Listeners hold no shared
// mutable state; calling emit is their only side effect.
type Emit func(point models.DataPoint)

// Listener maintains one upstream source.
type Listener interface {
	// Run blocks until ctx is cancelled. Connection errors are
	// recoverable and never propagate out.
	Run(ctx context.Context, emit Emit)
	// Source identifies which feed this listener covers.
	Source() models.Source
	// Status reports health for the operational surface.
	Status() models.ListenerStatus
}

// Listener modes reported through Status.
const (
	ModeConnecting = "connecting"
	ModeLive       = "live"
	ModeSynthetic  = "synthetic"
)

// DegradeCallback is invoked once when a live listener gives up on its
// upstream and switches to synthetic data.
type DegradeCallback func(source models.Source)
