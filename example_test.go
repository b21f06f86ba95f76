package tether_test

import (
	"context"
	"fmt"

	"github.com/aretw0/tether"
	"github.com/aretw0/tether/pkg/registry"
)

// Example demonstrates the minimal server loop: a method table, a session,
// and two frames.
func Example() {
	target := registry.New()
	target.Method("hello", func(ctx context.Context, args []any) (any, error) {
		name, _ := args[0].(string)
		return "Hello, " + name + "!", nil
	})

	sess := tether.New(target)
	ctx := context.Background()

	sess.HandleMessage(ctx, []byte(`["push", ["pipeline", 0, ["hello"], ["World"]]]`))
	resp := sess.HandleMessage(ctx, []byte(`["pull", 1]`))
	fmt.Println(string(resp))

	// Output: ["resolve",1,"Hello, World!"]
}

// Example_pipelining chains a second call onto the result of the first
// without an intermediate pull.
func Example_pipelining() {
	target := registry.New()
	target.Method("makeUser", func(ctx context.Context, args []any) (any, error) {
		return map[string]any{"id": "u1"}, nil
	})
	target.Method("getBio", func(ctx context.Context, args []any) (any, error) {
		id, _ := args[0].(string)
		return "bio of " + id, nil
	})

	sess := tether.New(target)
	ctx := context.Background()

	sess.HandleMessage(ctx, []byte(`["push", ["pipeline", 0, ["makeUser"]]]`))
	sess.HandleMessage(ctx, []byte(`["push", ["pipeline", 0, ["getBio"], [["pipeline", 1, ["id"]]]]]`))
	resp := sess.HandleMessage(ctx, []byte(`["pull", 2]`))
	fmt.Println(string(resp))

	// Output: ["resolve",2,"bio of u1"]
}
