package piecekit_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/piecekit"
)

func stepStrings(steps []piecekit.Step) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = s.String()
	}
	return out
}

func TestFlattenOrdering(t *testing.T) {
	// Root P with child C; P registers command "ping", C registers command
	// "pong" and listener "on_ready". Attach must run [ping, pong, on_ready]
	// and detach the exact reverse.
	root := piecekit.New(piecekit.WithName("p"))
	child := piecekit.New(piecekit.WithName("c"))
	require.NoError(t, root.AddChild(child))

	_, err := root.AddCommand("ping", func() {})
	require.NoError(t, err)
	_, err = child.AddCommand("pong", func() {})
	require.NoError(t, err)
	_, err = child.AddListener("on_ready", func() {})
	require.NoError(t, err)

	plan, err := root.Flatten()
	require.NoError(t, err)

	attach := stepStrings(plan.AttachSteps())
	want := []string{
		`register command "ping" (p)`,
		`register command "pong" (p/c[0])`,
		`register listener "on_ready" (p/c[0])`,
	}
	if diff := cmp.Diff(want, attach); diff != "" {
		t.Fatalf("attach order mismatch (-want +got):\n%s", diff)
	}

	detach := stepStrings(plan.DetachSteps())
	wantDetach := []string{
		`unregister listener "on_ready" (p/c[0])`,
		`unregister command "pong" (p/c[0])`,
		`unregister command "ping" (p)`,
	}
	if diff := cmp.Diff(wantDetach, detach); diff != "" {
		t.Fatalf("detach order mismatch (-want +got):\n%s", diff)
	}
}

func TestFlattenHookOrdering(t *testing.T) {
	// Load hooks concatenate in traversal order; unload hooks in the
	// reverse of it, because teardown must undo the most-recently
	// initialized state first.
	root := piecekit.New(piecekit.WithName("root"))
	child := piecekit.New(piecekit.WithName("child"))
	require.NoError(t, root.AddChild(child))

	nop := func(context.Context) error { return nil }
	for _, p := range []*piecekit.Piece{root, child} {
		require.NoError(t, p.AddHook(piecekit.PreLoad, nop))
		require.NoError(t, p.AddHook(piecekit.PostLoad, nop))
		require.NoError(t, p.AddHook(piecekit.PreUnload, nop))
		require.NoError(t, p.AddHook(piecekit.PostUnload, nop))
	}

	plan, err := root.Flatten()
	require.NoError(t, err)

	attach := stepStrings(plan.AttachSteps())
	wantAttach := []string{
		"pre_load hook (root)",
		"pre_load hook (root/child[0])",
		"post_load hook (root)",
		"post_load hook (root/child[0])",
	}
	if diff := cmp.Diff(wantAttach, attach); diff != "" {
		t.Fatalf("attach hooks mismatch (-want +got):\n%s", diff)
	}

	detach := stepStrings(plan.DetachSteps())
	wantDetach := []string{
		"pre_unload hook (root/child[0])",
		"pre_unload hook (root)",
		"post_unload hook (root/child[0])",
		"post_unload hook (root)",
	}
	if diff := cmp.Diff(wantDetach, detach); diff != "" {
		t.Fatalf("detach hooks mismatch (-want +got):\n%s", diff)
	}
}

func TestFlattenStepCounts(t *testing.T) {
	root := piecekit.New(piecekit.WithName("root"))
	child := piecekit.New(piecekit.WithName("child"))
	require.NoError(t, root.AddChild(child))

	_, err := root.AddCommand("a", func() {})
	require.NoError(t, err)
	_, err = child.AddCommand("b", func() {})
	require.NoError(t, err)
	_, err = child.AddListener("on_x", func() {})
	require.NoError(t, err)
	require.NoError(t, root.AddHook(piecekit.PreLoad, func(context.Context) error { return nil }))
	require.NoError(t, child.AddHook(piecekit.PostLoad, func(context.Context) error { return nil }))
	require.NoError(t, root.AddLoop("tick", time.Second, func(context.Context) error { return nil }))

	plan, err := root.Flatten()
	require.NoError(t, err)

	// 3 items + 2 load hooks + 1 loop.
	assert.Len(t, plan.AttachSteps(), 6)
	// 3 items + 0 unload hooks + 1 loop.
	assert.Len(t, plan.DetachSteps(), 4)
}

func TestFlattenDuplicateAcrossTree(t *testing.T) {
	// P and C both register command "ping": flatten must fail, naming both
	// declaring paths.
	root := piecekit.New(piecekit.WithName("p"))
	child := piecekit.New(piecekit.WithName("c"))
	require.NoError(t, root.AddChild(child))

	_, err := root.AddCommand("ping", func() {})
	require.NoError(t, err)
	_, err = child.AddCommand("ping", func() {})
	require.NoError(t, err) // legal per piece; the collision surfaces at flatten

	_, err = root.Flatten()
	var dup *piecekit.DuplicateIdentityError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, piecekit.KindCommand, dup.Kind)
	assert.Equal(t, "ping", dup.Identity)
	assert.Equal(t, "p", dup.FirstPath)
	assert.Equal(t, "p/c[0]", dup.SecondPath)
}

func TestFlattenDuplicateBetweenSiblings(t *testing.T) {
	root := piecekit.New(piecekit.WithName("root"))
	a := piecekit.New(piecekit.WithName("a"))
	b := piecekit.New(piecekit.WithName("b"))
	require.NoError(t, root.AddChild(a))
	require.NoError(t, root.AddChild(b))

	_, err := a.AddListener("on_message", func() {})
	require.NoError(t, err)
	_, err = b.AddListener("on_message", func() {})
	require.NoError(t, err)

	_, err = root.Flatten()
	var dup *piecekit.DuplicateIdentityError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "root/a[0]", dup.FirstPath)
	assert.Equal(t, "root/b[1]", dup.SecondPath)
}

func TestFlattenEmptyPiece(t *testing.T) {
	p := piecekit.New()
	plan, err := p.Flatten()
	require.NoError(t, err)
	assert.True(t, plan.Empty())
}

func TestFlattenHooksOnlyPieceIsValid(t *testing.T) {
	p := piecekit.New()
	require.NoError(t, p.AddHook(piecekit.PreLoad, func(context.Context) error { return nil }))
	plan, err := p.Flatten()
	require.NoError(t, err)
	assert.Len(t, plan.AttachSteps(), 1)
	assert.False(t, plan.Empty())
}

func TestFlattenIsDeterministic(t *testing.T) {
	build := func() *piecekit.Piece {
		root := piecekit.New(piecekit.WithName("root"))
		child := piecekit.New(piecekit.WithName("child"))
		require.NoError(t, root.AddChild(child))
		_, err := root.AddCommand("ping", func() {})
		require.NoError(t, err)
		_, err = child.AddListener("on_ready", func() {})
		require.NoError(t, err)
		return root
	}

	t.Run("re-flattening returns the identical cached plan", func(t *testing.T) {
		root := build()
		first, err := root.Flatten()
		require.NoError(t, err)
		second, err := root.Flatten()
		require.NoError(t, err)
		assert.Same(t, first, second)
	})

	t.Run("equal trees flatten to structurally equal plans", func(t *testing.T) {
		planA, err := build().Flatten()
		require.NoError(t, err)
		planB, err := build().Flatten()
		require.NoError(t, err)

		if diff := cmp.Diff(stepStrings(planA.AttachSteps()), stepStrings(planB.AttachSteps())); diff != "" {
			t.Fatalf("attach plans differ:\n%s", diff)
		}
		if diff := cmp.Diff(stepStrings(planA.DetachSteps()), stepStrings(planB.DetachSteps())); diff != "" {
			t.Fatalf("detach plans differ:\n%s", diff)
		}
	})
}

func TestFlattenFailureDoesNotFreeze(t *testing.T) {
	root := piecekit.New(piecekit.WithName("root"))
	_, err := root.AddCommand("ping", func() {})
	require.NoError(t, err)
	child := piecekit.New(piecekit.WithName("child"))
	_, err = child.AddCommand("ping", func() {})
	require.NoError(t, err)
	require.NoError(t, root.AddChild(child))

	_, err = root.Flatten()
	require.Error(t, err)

	// The tree stays mutable so the author can fix the collision.
	_, err = child.AddCommand("pong", func() {})
	require.NoError(t, err)
}
