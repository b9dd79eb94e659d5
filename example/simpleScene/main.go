package main

import (
	"log/slog"
	"os"

	"github.com/akmonengine/impact"
	"github.com/akmonengine/impact/actor"
	"github.com/akmonengine/impact/broadphase"
	"github.com/akmonengine/impact/collector"
	"github.com/akmonengine/impact/narrowphase"
	"github.com/go-gl/mathgl/mgl64"
)

const (
	dt       = 1.0 / 60.0
	maxSteps = 600
)

// setupScene drops a tilted cube, a stack of spheres and a fast bullet on a floor.
func setupScene(world *impact.World) (*actor.RigidBody, error) {
	floor := actor.NewBodySettings(actor.NewBox(mgl64.Vec3{50, 1, 50}, 0.05), mgl64.Vec3{0, -1, 0}, actor.MotionTypeStatic)
	floor.ObjectLayer = broadphase.LayerNonMoving
	if _, err := world.CreateAndAddBody(floor, false); err != nil {
		return nil, err
	}

	cube := actor.NewBodySettings(actor.NewBox(mgl64.Vec3{1.5, 1.5, 1.5}, 0.05), mgl64.Vec3{-5, 5, -5}, actor.MotionTypeDynamic)
	cube.ObjectLayer = broadphase.LayerMoving
	cube.Rotation = mgl64.QuatRotate(mgl64.DegToRad(70), mgl64.Vec3{0, 0, 1})
	cube.Restitution = 0.8
	cube.UserData = "cube"
	cubeBody, err := world.CreateAndAddBody(cube, true)
	if err != nil {
		return nil, err
	}

	for i := range 5 {
		sphere := actor.NewBodySettings(&actor.Sphere{Radius: 0.5}, mgl64.Vec3{5, 0.5 + float64(i), 5}, actor.MotionTypeDynamic)
		sphere.ObjectLayer = broadphase.LayerMoving
		if _, err := world.CreateAndAddBody(sphere, false); err != nil {
			return nil, err
		}
	}

	bullet := actor.NewBodySettings(&actor.Sphere{Radius: 0.1}, mgl64.Vec3{5, 20, 5}, actor.MotionTypeDynamic)
	bullet.ObjectLayer = broadphase.LayerMoving
	bullet.MotionQuality = actor.MotionQualityLinearCast
	bullet.LinearVelocity = mgl64.Vec3{0, -200, 0}
	bullet.UserData = "bullet"
	if _, err := world.CreateAndAddBody(bullet, true); err != nil {
		return nil, err
	}

	world.OptimizeBroadPhase()
	return cubeBody, nil
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	settings := impact.DefaultSettings()
	settings.Workers = 4
	settings.Logger = logger
	world, err := impact.NewWorld(settings)
	if err != nil {
		logger.Error("create world", slog.Any("error", err))
		os.Exit(1)
	}
	defer world.Close()

	world.Events.Subscribe(impact.COLLISION_ENTER, func(event impact.Event) {
		e := event.(impact.CollisionEnterEvent)
		logger.Info("collision", slog.Uint64("body_a", uint64(e.BodyA.ID)), slog.Uint64("body_b", uint64(e.BodyB.ID)))
	})
	world.Events.Subscribe(impact.ON_SLEEP, func(event impact.Event) {
		logger.Info("sleep", slog.Uint64("body", uint64(event.(impact.SleepEvent).Body.ID)))
	})

	cube, err := setupScene(world)
	if err != nil {
		logger.Error("setup scene", slog.Any("error", err))
		os.Exit(1)
	}

	for step := range maxSteps {
		world.Step(dt)
		if step%60 == 0 {
			logger.Info("cube",
				slog.Int("step", step),
				slog.Any("position", cube.Transform.Position),
				slog.Any("velocity", cube.Velocity),
				slog.Bool("sleeping", cube.IsSleeping))
		}
	}

	// look down on the cube
	hit := collector.NewClosestHit[narrowphase.RayCastResult]()
	origin := cube.Transform.Position.Add(mgl64.Vec3{0, 10, 0})
	world.CastRay(narrowphase.Ray{Origin: origin, Direction: mgl64.Vec3{0, -20, 0}}, narrowphase.DefaultRayCastSettings(), hit, impact.QueryFilter{})
	if hit.HadHit() {
		logger.Info("ray hit", slog.Uint64("body", uint64(hit.Hit.BodyID)), slog.Any("point", origin.Add(mgl64.Vec3{0, -20 * hit.Hit.Fraction, 0})))
	}
}
