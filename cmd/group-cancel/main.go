// Command group-cancel launches a group of cooperative tasks and cancels
// the group partway through, demonstrating AbortOnCancel. Each task also
// carries a cancel handler; a group cancel does not invoke it (only
// Task.Cancel on a running task does), so its line is not printed here.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.lepak.sg/mare"
)

func main() {
	rt, err := mare.Init(mare.Config{})
	if err != nil {
		log.Fatal(err)
	}
	defer rt.Shutdown()

	g := rt.CreateGroup("workers")

	const n = 8
	tasks := make([]*mare.Task, n)
	for i := 0; i < n; i++ {
		i := i
		tasks[i] = rt.CreateGroupedTask(func(ctx *mare.Context) error {
			for iter := 0; ; iter++ {
				if err := ctx.AbortOnCancel(); err != nil {
					return err
				}
				time.Sleep(10 * time.Millisecond)
				if iter == 3 {
					return nil
				}
			}
		}, mare.DefaultAttrs(), func() {
			fmt.Printf("task %d: canceled while running\n", i)
		}, g)
	}

	for _, t := range tasks {
		if err := t.Launch(); err != nil {
			log.Fatal(err)
		}
	}

	time.Sleep(15 * time.Millisecond)
	fmt.Println("canceling group")
	g.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := g.WaitFor(ctx); err != nil {
		fmt.Println("group finished with error:", err)
	} else {
		fmt.Println("group finished without error")
	}
}
