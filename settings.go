package impact

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/akmonengine/impact/broadphase"
	"github.com/akmonengine/impact/constraint"
	"github.com/akmonengine/impact/narrowphase"
	"github.com/go-gl/mathgl/mgl64"
)

const DEFAULT_WORKERS = 1

var (
	ErrInvalidSettings       = errors.New("invalid world settings")
	ErrBodyCapacityExhausted = errors.New("body capacity exhausted")
	ErrUnknownBody           = errors.New("unknown body")
	ErrBodyAlreadyAdded      = errors.New("body already added")
	ErrNilShape              = errors.New("body has no shape")
)

// BroadPhaseKind selects the broad phase implementation.
type BroadPhaseKind int

const (
	BroadPhaseTree BroadPhaseKind = iota
	BroadPhaseGrid
)

// Settings configures a World.
type Settings struct {
	MaxBodies int
	Workers   int
	// Gravity acceleration (m/s², or N/kg)
	Gravity mgl64.Vec3
	// CollisionSteps splits every Step in that many collision and integration steps
	CollisionSteps int

	// SpeculativeContactDistance is added to the relative motion of a pair to decide how far
	// apart two shapes may be and still get a contact
	SpeculativeContactDistance float64
	PenetrationSlop            float64
	BaumgarteFactor            float64
	MinVelocityForRestitution  float64
	VelocitySteps              int
	PositionSteps              int

	TimeBeforeSleep        float64
	SleepVelocityThreshold float64

	// LinearCastThreshold is the fraction of its inner radius a linear cast body must move
	// in one step before it is swept
	LinearCastThreshold float64

	BroadPhaseKind BroadPhaseKind
	GridCellSize   float64
	GridCells      int
	Layers         broadphase.Layers

	ActiveEdgeMode   narrowphase.ActiveEdgeMode
	CollectFacesMode narrowphase.CollectFacesMode

	Logger *slog.Logger
}

func DefaultSettings() Settings {
	return Settings{
		MaxBodies:                  10240,
		Workers:                    DEFAULT_WORKERS,
		Gravity:                    mgl64.Vec3{0, -9.81, 0},
		CollisionSteps:             1,
		SpeculativeContactDistance: 0.02,
		PenetrationSlop:            constraint.DefaultPenetrationSlop,
		BaumgarteFactor:            constraint.DefaultBaumgarteFactor,
		MinVelocityForRestitution:  constraint.DefaultMinVelocityForRestitution,
		VelocitySteps:              10,
		PositionSteps:              2,
		TimeBeforeSleep:            0.5,
		SleepVelocityThreshold:     0.03,
		LinearCastThreshold:        0.75,
		BroadPhaseKind:             BroadPhaseTree,
		GridCellSize:               4,
		GridCells:                  4096,
		Layers:                     broadphase.DefaultLayers(),
		ActiveEdgeMode:             narrowphase.CollideOnlyWithActive,
		CollectFacesMode:           narrowphase.CollectFaces,
	}
}

func invalid(field string, value any) error {
	return fmt.Errorf("%w: %s = %v", ErrInvalidSettings, field, value)
}

// Validate reports the first field out of range.
func (s Settings) Validate() error {
	switch {
	case s.MaxBodies <= 0:
		return invalid("MaxBodies", s.MaxBodies)
	case s.Workers < 0:
		return invalid("Workers", s.Workers)
	case s.CollisionSteps < 1:
		return invalid("CollisionSteps", s.CollisionSteps)
	case s.SpeculativeContactDistance < 0:
		return invalid("SpeculativeContactDistance", s.SpeculativeContactDistance)
	case s.PenetrationSlop < 0:
		return invalid("PenetrationSlop", s.PenetrationSlop)
	case s.BaumgarteFactor <= 0 || s.BaumgarteFactor > 1:
		return invalid("BaumgarteFactor", s.BaumgarteFactor)
	case s.MinVelocityForRestitution < 0:
		return invalid("MinVelocityForRestitution", s.MinVelocityForRestitution)
	case s.VelocitySteps < 1:
		return invalid("VelocitySteps", s.VelocitySteps)
	case s.PositionSteps < 0:
		return invalid("PositionSteps", s.PositionSteps)
	case s.TimeBeforeSleep < 0:
		return invalid("TimeBeforeSleep", s.TimeBeforeSleep)
	case s.SleepVelocityThreshold < 0:
		return invalid("SleepVelocityThreshold", s.SleepVelocityThreshold)
	case s.LinearCastThreshold < 0:
		return invalid("LinearCastThreshold", s.LinearCastThreshold)
	case s.BroadPhaseKind != BroadPhaseTree && s.BroadPhaseKind != BroadPhaseGrid:
		return invalid("BroadPhaseKind", s.BroadPhaseKind)
	case s.BroadPhaseKind == BroadPhaseGrid && s.GridCellSize <= 0:
		return invalid("GridCellSize", s.GridCellSize)
	case s.BroadPhaseKind == BroadPhaseGrid && s.GridCells <= 0:
		return invalid("GridCells", s.GridCells)
	case s.Layers.BroadPhase == nil || s.Layers.ObjectVsLayer == nil || s.Layers.ObjectLayerPair == nil:
		return invalid("Layers", "missing table")
	}
	return nil
}

func (s Settings) solverSettings() constraint.Settings {
	return constraint.Settings{
		PenetrationSlop:           s.PenetrationSlop,
		BaumgarteFactor:           s.BaumgarteFactor,
		MinVelocityForRestitution: s.MinVelocityForRestitution,
		WarmStartRatio:            constraint.DefaultWarmStartRatio,
	}
}
