// Command visualize is a read-only demo viewer: it runs one domain
// decomposition across a simulated rank group, loads the resulting
// per-rank layout into an ark world, and renders it as a rank-colored
// scatter plot. It never feeds back into the decomposition it displays.
package main

import (
	"flag"
	"fmt"
	"os"

	rl "github.com/gen2brain/raylib-go/raylib"
	"github.com/mlange-42/ark/ecs"

	"github.com/cosmosim/decomp/cluster"
	"github.com/cosmosim/decomp/config"
	"github.com/cosmosim/decomp/decomp"
	"github.com/cosmosim/decomp/particle"
	"github.com/cosmosim/decomp/peano"
)

const (
	screenWidth  = 1024
	screenHeight = 1024
)

var (
	configPath  = flag.String("config", "", "Path to a YAML config file (embedded defaults used if empty)")
	ntask       = flag.Int("ntask", 6, "Number of simulated ranks")
	partPerTask = flag.Int("part-per-task", 4000, "Initial particle count seeded on each rank")
	seed        = flag.Int64("seed", 1, "Base RNG seed; rank r is seeded with seed+r")
)

// point is the one component the demo world carries: a projected screen
// position and the rank that owns the particle after decomposition.
type point struct {
	X, Y float32
	Rank int
}

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "visualize: loading config: %v\n", err)
		os.Exit(1)
	}
	if err := peano.SetBits(cfg.TopTree.PeanoBits); err != nil {
		fmt.Fprintf(os.Stderr, "visualize: %v\n", err)
		os.Exit(1)
	}

	positions, ranks, err := runOneDecomposition(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "visualize: %v\n", err)
		os.Exit(1)
	}

	world := ecs.NewWorld()
	pointMap := ecs.NewMap1[point](world)
	for i := range positions {
		pointMap.NewEntity(&point{
			X:    float32(positions[i].X),
			Y:    float32(positions[i].Y),
			Rank: ranks[i],
		})
	}
	pointFilter := ecs.NewFilter1[point](world)

	vp := newViewport(screenWidth, screenHeight, float32(cfg.Box.Size))

	rl.InitWindow(screenWidth, screenHeight, "decomp visualize")
	defer rl.CloseWindow()
	rl.SetTargetFPS(60)

	for !rl.WindowShouldClose() {
		if rl.IsMouseButtonDown(rl.MouseLeftButton) {
			d := rl.GetMouseDelta()
			vp.pan(-d.X/vp.zoom, -d.Y/vp.zoom)
		}
		if wheel := rl.GetMouseWheelMove(); wheel != 0 {
			vp.zoomBy(1 + wheel*0.1)
		}

		rl.BeginDrawing()
		rl.ClearBackground(rl.Color{R: 10, G: 10, B: 16, A: 255})

		query := pointFilter.Query()
		for query.Next() {
			p := query.Get()
			if !vp.isVisible(p.X, p.Y, 2) {
				continue
			}
			sx, sy := vp.worldToScreen(p.X, p.Y)
			rl.DrawCircle(int32(sx), int32(sy), 2, rankColor(p.Rank, *ntask))
		}

		rl.DrawText(fmt.Sprintf("ranks=%d  particles/rank=%d", *ntask, *partPerTask), 10, 10, 18, rl.LightGray)
		rl.EndDrawing()
	}
}

// runOneDecomposition seeds a uniform population on every simulated rank,
// runs a single decomposition to convergence, and flattens the result
// into parallel position/owning-rank slices for the demo world.
func runOneDecomposition(cfg *config.Config) (positions []particle.Vec3, ranks []int, err error) {
	managers := make([]*particle.Manager, *ntask)
	errs := cluster.Run(*ntask, func(c *cluster.Comm) error {
		m := particle.UniformPopulation(*partPerTask, cfg.Memory.MaxPart, cfg.Memory.MaxPartBh, cfg.Box.Size, *seed+int64(c.Rank()))
		managers[c.Rank()] = m
		d := decomp.New(c, m, cfg)
		_, err := d.Run()
		return err
	})
	for r, e := range errs {
		if e != nil {
			return nil, nil, fmt.Errorf("rank %d: %w", r, e)
		}
	}

	for rank, m := range managers {
		for i := 0; i < m.NumPart(); i++ {
			positions = append(positions, m.P[i].Position)
			ranks = append(ranks, rank)
		}
	}
	return positions, ranks, nil
}

// rankColor assigns each rank a distinct hue around the color wheel, the
// same fade-by-category idea the teacher's particle renderer used for
// organism types.
func rankColor(rank, ntask int) rl.Color {
	if ntask < 1 {
		ntask = 1
	}
	hue := float32(rank%ntask) / float32(ntask) * 360
	return rl.ColorFromHSV(hue, 0.7, 0.95)
}
