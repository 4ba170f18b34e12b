// Command hello-after launches two tasks joined by After: the second does
// not become ready to run until the first has completed.
package main

import (
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

	first := rt.CreateTask(func(ctx *mare.Context) error {
		fmt.Println("first: running")
		return nil
	}, mare.DefaultAttrs(), nil)

	second := rt.CreateTask(func(ctx *mare.Context) error {
		fmt.Println("second: running, after first completed")
		return nil
	}, mare.DefaultAttrs(), nil)

	if err := mare.After(first, second); err != nil {
		log.Fatal(err)
	}

	if err := second.Launch(); err != nil {
		log.Fatal(err)
	}
	if err := first.Launch(); err != nil {
		log.Fatal(err)
	}

	if err := second.WaitFor(); err != nil {
		log.Fatal(err)
	}
	fmt.Println("done")
}
