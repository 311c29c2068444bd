package store

import (
	"testing"

	"github.com/cuemby/katalog/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestCreateActor_ReusesByIdentity(t *testing.T) {
	s, _ := newTestStore(t)

	a1 := &types.Actor{
		Name: "fake-1", PluginID: "fake.assets", Type: types.ActorTypeSource,
		IdentityKey: "fake:seed=1", Config: map[string]any{"seed": float64(1)},
	}
	require.NoError(t, s.CreateActor(a1))
	require.NotZero(t, a1.ID)

	a2 := &types.Actor{
		Name: "fake-1-again", PluginID: "fake.assets", Type: types.ActorTypeSource,
		IdentityKey: "fake:seed=1",
	}
	require.NoError(t, s.CreateActor(a2))
	require.Equal(t, a1.ID, a2.ID)
	require.Equal(t, "fake-1", a2.Name)
}

func TestListActors_FiltersByType(t *testing.T) {
	s, _ := newTestStore(t)

	source := &types.Actor{Name: "src", PluginID: "fake.assets", Type: types.ActorTypeSource, IdentityKey: "src-1"}
	proc := &types.Actor{Name: "proc", PluginID: "fake.enrich", Type: types.ActorTypeProcessor, IdentityKey: "proc-1"}
	require.NoError(t, s.CreateActor(source))
	require.NoError(t, s.CreateActor(proc))

	sources, err := s.ListActors(types.ActorTypeSource)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	require.Equal(t, "src", sources[0].Name)

	all, err := s.ListActors("")
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestSetActorDisabled(t *testing.T) {
	s, _ := newTestStore(t)
	a := &types.Actor{Name: "src", PluginID: "fake.assets", Type: types.ActorTypeSource, IdentityKey: "src-1"}
	require.NoError(t, s.CreateActor(a))

	require.NoError(t, s.SetActorDisabled(a.ID, true))
	got, err := s.GetActor(a.ID)
	require.NoError(t, err)
	require.True(t, got.Disabled)
}
