package state

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func activeCount(ps ProviderSettings) int {
	n := 0
	for _, c := range ps.Credentials {
		if c.IsActive {
			n++
		}
	}
	return n
}

func requireExclusive(t *testing.T, ps ProviderSettings) {
	t.Helper()
	want := 0
	if len(ps.Credentials) > 0 {
		want = 1
	}
	require.Equal(t, want, activeCount(ps), "credentials: %+v", ps.Credentials)
}

func TestCredentialExclusivityUnderRandomOps(t *testing.T) {
	app := newHarness().open(t)
	rng := rand.New(rand.NewSource(7))

	var ids []string
	for step := 0; step < 300; step++ {
		switch op := rng.Intn(3); {
		case op == 0 || len(ids) == 0:
			c, err := app.AddCredential(ProviderOpenRouter, "key", "sk-or-x")
			require.NoError(t, err)
			ids = append(ids, c.ID)
		case op == 1:
			i := rng.Intn(len(ids))
			require.NoError(t, app.DeleteCredential(ProviderOpenRouter, ids[i]))
			ids = append(ids[:i], ids[i+1:]...)
		default:
			require.NoError(t, app.SetActiveCredential(ProviderOpenRouter, ids[rng.Intn(len(ids))]))
		}
		ps, err := app.ProviderSettings(ProviderOpenRouter)
		require.NoError(t, err)
		require.Len(t, ps.Credentials, len(ids))
		requireExclusive(t, ps)
	}
}

func TestAddCredentialActivatesOnlyFirst(t *testing.T) {
	app := newHarness().open(t)

	first, err := app.AddCredential(ProviderGemini, "work", "AIza-1")
	require.NoError(t, err)
	require.True(t, first.IsActive)

	second, err := app.AddCredential(ProviderGemini, "home", "AIza-2")
	require.NoError(t, err)
	require.False(t, second.IsActive)
	require.NotEqual(t, first.ID, second.ID)
}

func TestUpdateCredentialKeepsActiveFlag(t *testing.T) {
	app := newHarness().open(t)
	a, _ := app.AddCredential(ProviderGemini, "a", "s1")
	b, _ := app.AddCredential(ProviderGemini, "b", "s2")

	require.NoError(t, app.UpdateCredential(ProviderGemini, b.ID, CredentialUpdate{Label: String("renamed"), Secret: String("s3")}))

	ps, _ := app.ProviderSettings(ProviderGemini)
	require.Equal(t, a.ID, ps.Credentials[0].ID)
	require.True(t, ps.Credentials[0].IsActive)
	require.Equal(t, "renamed", ps.Credentials[1].Label)
	require.Equal(t, "s3", ps.Credentials[1].Secret)
	require.False(t, ps.Credentials[1].IsActive)

	err := app.UpdateCredential(ProviderGemini, "missing", CredentialUpdate{})
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestDeleteActivePromotesFirstRemaining(t *testing.T) {
	app := newHarness().open(t)
	a, _ := app.AddCredential(ProviderGemini, "a", "s1")
	b, _ := app.AddCredential(ProviderGemini, "b", "s2")
	c, _ := app.AddCredential(ProviderGemini, "c", "s3")
	require.NoError(t, app.SetActiveCredential(ProviderGemini, c.ID))

	require.NoError(t, app.DeleteCredential(ProviderGemini, c.ID))

	ps, _ := app.ProviderSettings(ProviderGemini)
	require.Len(t, ps.Credentials, 2)
	require.Equal(t, a.ID, ps.Credentials[0].ID)
	require.True(t, ps.Credentials[0].IsActive)
	require.Equal(t, b.ID, ps.Credentials[1].ID)
	require.False(t, ps.Credentials[1].IsActive)
}

func TestDeleteOnlyActiveCredentialFallsBackToHardcodedModel(t *testing.T) {
	app := newHarness().open(t)
	require.Equal(t, ProviderGemini, app.ActiveProvider())

	c, err := app.AddCredential(ProviderGemini, "only", "AIza-1")
	require.NoError(t, err)
	require.NoError(t, app.SetDefaultModel(ProviderGemini, "gemini-pro"))
	require.Equal(t, "gemini-pro", app.ChatParams().Model)

	require.NoError(t, app.DeleteCredential(ProviderGemini, c.ID))

	ps, _ := app.ProviderSettings(ProviderGemini)
	require.Empty(t, ps.Credentials)
	require.Equal(t, DefaultGeminiModel, app.ChatParams().Model)
}

func TestDeleteCredentialWithSurvivorUsesProviderDefault(t *testing.T) {
	app := newHarness().open(t)
	a, _ := app.AddCredential(ProviderGemini, "a", "s1")
	_, _ = app.AddCredential(ProviderGemini, "b", "s2")
	require.NoError(t, app.SetDefaultModel(ProviderGemini, "gemini-pro"))
	app.UpdateChatParams(ParamsUpdate{Model: String("something-else")})

	require.NoError(t, app.DeleteCredential(ProviderGemini, a.ID))
	require.Equal(t, "gemini-pro", app.ChatParams().Model)
}

func TestDeleteOnInactiveProviderLeavesModel(t *testing.T) {
	app := newHarness().open(t)
	c, _ := app.AddCredential(ProviderOpenRouter, "or", "sk-or")
	app.UpdateChatParams(ParamsUpdate{Model: String("pinned")})

	require.NoError(t, app.DeleteCredential(ProviderOpenRouter, c.ID))
	require.Equal(t, "pinned", app.ChatParams().Model)
}

func TestSetActiveCredentialCascadesOnActiveProvider(t *testing.T) {
	app := newHarness().open(t)
	_, _ = app.AddCredential(ProviderGemini, "a", "s1")
	b, _ := app.AddCredential(ProviderGemini, "b", "s2")
	require.NoError(t, app.SetDefaultModel(ProviderGemini, "gemini-pro"))
	app.UpdateChatParams(ParamsUpdate{Model: String("manual")})

	require.NoError(t, app.SetActiveCredential(ProviderGemini, b.ID))

	ps, _ := app.ProviderSettings(ProviderGemini)
	active, ok := ps.Active()
	require.True(t, ok)
	require.Equal(t, b.ID, active.ID)
	require.Equal(t, "gemini-pro", app.ChatParams().Model)

	require.True(t, errors.Is(app.SetActiveCredential(ProviderGemini, "nope"), ErrNotFound))
	ps, _ = app.ProviderSettings(ProviderGemini)
	requireExclusive(t, ps)
}

func TestSetDefaultModelCascadeNeedsUsableCredential(t *testing.T) {
	app := newHarness().open(t)

	require.NoError(t, app.SetDefaultModel(ProviderGemini, "gemini-pro"))
	require.Equal(t, DefaultGeminiModel, app.ChatParams().Model, "no credential, no cascade")

	c, _ := app.AddCredential(ProviderGemini, "blank", "")
	require.NoError(t, app.SetDefaultModel(ProviderGemini, "gemini-pro-vision"))
	require.Equal(t, DefaultGeminiModel, app.ChatParams().Model, "empty secret, no cascade")

	require.NoError(t, app.UpdateCredential(ProviderGemini, c.ID, CredentialUpdate{Secret: String("AIza")}))
	require.NoError(t, app.SetDefaultModel(ProviderGemini, "gemini-pro"))
	require.Equal(t, "gemini-pro", app.ChatParams().Model)

	require.NoError(t, app.SetDefaultModel(ProviderOpenRouter, "openai/gpt-4o-mini"))
	require.Equal(t, "gemini-pro", app.ChatParams().Model, "inactive provider")
}

func TestSetEndpointOnlyForAggregator(t *testing.T) {
	app := newHarness().open(t)

	require.NoError(t, app.SetEndpoint(ProviderOpenRouter, "https://proxy.example/api/v1"))
	require.NoError(t, app.SetEndpoint(ProviderGemini, "https://ignored.example"))

	or, _ := app.ProviderSettings(ProviderOpenRouter)
	gm, _ := app.ProviderSettings(ProviderGemini)
	require.Equal(t, "https://proxy.example/api/v1", or.Endpoint)
	require.Empty(t, gm.Endpoint)
}

func TestUnknownProviderRejected(t *testing.T) {
	app := newHarness().open(t)
	_, err := app.AddCredential(Provider("Bard"), "x", "y")
	require.True(t, errors.Is(err, ErrUnknownProvider))
}

func TestNormalizeRepairsStoredFlags(t *testing.T) {
	ps := ProviderSettings{Credentials: []Credential{{ID: "a"}, {ID: "b"}}}
	ps.normalize()
	require.True(t, ps.Credentials[0].IsActive)
	require.False(t, ps.Credentials[1].IsActive)

	ps = ProviderSettings{Credentials: []Credential{{ID: "a", IsActive: true}, {ID: "b", IsActive: true}}}
	ps.normalize()
	require.Equal(t, 1, activeCount(ps))
	require.True(t, ps.Credentials[0].IsActive)
}

func TestChatTargetRequiresUsableCredential(t *testing.T) {
	app := newHarness().open(t)

	_, err := app.ChatTarget()
	require.True(t, errors.Is(err, ErrMissingCredential))

	_, _ = app.AddCredential(ProviderGemini, "main", "AIza-secret")
	target, err := app.ChatTarget()
	require.NoError(t, err)
	require.Equal(t, ProviderGemini, target.Provider)
	require.Equal(t, "AIza-secret", target.Credential.Secret)
	require.Equal(t, DefaultGeminiModel, target.Params.Model)

	_, err = app.TargetFor(ProviderOpenRouter)
	require.True(t, errors.Is(err, ErrMissingCredential))
}
