// Command sdf-basic-pipe wires three nodes into a linear SDF pipe
// (double, then add one) and runs it for a fixed number of iterations,
// printing each result as it is produced.
package main

import (
	"context"
	"fmt"
	"log"

	"go.lepak.sg/mare"
)

func main() {
	rt, err := mare.Init(mare.Config{})
	if err != nil {
		log.Fatal(err)
	}
	defer rt.Shutdown()

	in, err := mare.NewSDFChannel[int](1)
	if err != nil {
		log.Fatal(err)
	}
	mid, err := mare.NewSDFChannel[int](1)
	if err != nil {
		log.Fatal(err)
	}
	out, err := mare.NewSDFChannel[int](1)
	if err != nil {
		log.Fatal(err)
	}

	double := mare.NewSDFNode("double", mare.SDFUnary(func(x int) (int, error) {
		return x * 2, nil
	}), []mare.SDFChan{in.Chan()}, []mare.SDFChan{mid.Chan()})

	addOne := mare.NewSDFNode("add-one", mare.SDFUnary(func(x int) (int, error) {
		return x + 1, nil
	}), []mare.SDFChan{mid.Chan()}, []mare.SDFChan{out.Chan()})

	g := rt.CreateSDFGraph()
	if err := g.AddNode(double); err != nil {
		log.Fatal(err)
	}
	if err := g.AddNode(addOne); err != nil {
		log.Fatal(err)
	}

	const iterations = 10
	ctx := context.Background()

	go func() {
		for i := 0; i < iterations; i++ {
			if err := in.Write(ctx, i); err != nil {
				return
			}
		}
	}()

	go func() {
		for i := 0; i < iterations; i++ {
			v, err := out.Read(ctx)
			if err != nil {
				return
			}
			fmt.Printf("iteration %d: %d\n", i, v)
		}
	}()

	if err := g.LaunchAndWait(ctx, iterations); err != nil {
		log.Fatal(err)
	}
}
