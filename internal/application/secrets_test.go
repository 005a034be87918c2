package application_test

import (
	"context"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/mergebridge/internal/application"
	"github.com/ericfisherdev/mergebridge/internal/domain/port/driven"
)

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  string
	}{
		{name: "long token", value: "ghp_1234567890abcdefXYZ", want: "ghp_1*****efXYZ"},
		{name: "exactly eleven", value: "abcdefghijk", want: "abcde*****ghijk"},
		{name: "ten or fewer fully masked", value: "abcdefghij", want: "**********"},
		{name: "empty", value: "", want: ""},
		{name: "multi-byte kept whole", value: "pässwörd-ünïcødé", want: "pässw*****ïcødé"},
		{name: "short multi-byte counts runes", value: "ünïcødé", want: "*******"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := application.MaskSecret(tt.value)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
		})
	}
}

func TestSecretService_SaveAndLoad(t *testing.T) {
	store := newMemorySecrets()
	svc := application.NewSecretService(store, nil, discardLogger())
	ctx := context.Background()

	require.NoError(t, svc.Save(ctx, application.SecretKeySourceControlToken, "  ghp_abcdefghijklmnop  "))

	value, ok, err := svc.Load(ctx, application.SecretKeySourceControlToken)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "ghp_abcdefghijklmnop", value)

	masked, ok, err := svc.LoadMasked(ctx, application.SecretKeySourceControlToken)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "ghp_a*****lmnop", masked)
}

func TestSecretService_LoadMissing(t *testing.T) {
	svc := application.NewSecretService(newMemorySecrets(), nil, discardLogger())

	value, ok, err := svc.Load(context.Background(), application.SecretKeySourceControlUsername)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, value)
}

func TestSecretService_Validation(t *testing.T) {
	svc := application.NewSecretService(newMemorySecrets(), nil, discardLogger())
	ctx := context.Background()

	assert.ErrorIs(t, svc.Save(ctx, "Bad Key", "x"), application.ErrInvalidSecretKey)
	assert.ErrorIs(t, svc.Save(ctx, application.SecretKeySourceControlToken, "   "), application.ErrEmptySecret)
}

func TestSecretService_SaveSourceControlToken_Verify(t *testing.T) {
	store := newMemorySecrets()
	factory := func(token string) driven.SourceControlClient {
		return &fakeSourceControl{userFn: func(context.Context) (string, error) {
			assert.Equal(t, "ghp_verifyme", token)
			return "octocat", nil
		}}
	}
	svc := application.NewSecretService(store, factory, discardLogger())
	ctx := context.Background()

	login, err := svc.SaveSourceControlToken(ctx, "ghp_verifyme", true)
	require.NoError(t, err)
	assert.Equal(t, "octocat", login)

	username, _ := store.Get(ctx, application.SecretKeySourceControlUsername)
	assert.Equal(t, "octocat", username)
}

func TestSecretService_SaveSourceControlToken_VerifyFailureStoresNothing(t *testing.T) {
	store := newMemorySecrets()
	factory := func(string) driven.SourceControlClient {
		return &fakeSourceControl{userFn: func(context.Context) (string, error) {
			return "", driven.ErrTransport
		}}
	}
	svc := application.NewSecretService(store, factory, discardLogger())

	_, err := svc.SaveSourceControlToken(context.Background(), "ghp_bad", true)
	assert.ErrorIs(t, err, driven.ErrTransport)

	token, _ := store.Get(context.Background(), application.SecretKeySourceControlToken)
	assert.Empty(t, token)
}
