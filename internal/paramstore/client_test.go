package paramstore

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/require"

	"github.com/voice-notes-ai/backend/config"
)

type fakeAPI struct {
	getOut *ssm.GetParameterOutput
	getErr error
	names  []string
}

func (f *fakeAPI) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.names = append(f.names, *in.Name)
	return f.getOut, f.getErr
}

func strPtr(s string) *string { return &s }

func TestGetParameter_HappyPath(t *testing.T) {
	api := &fakeAPI{getOut: &ssm.GetParameterOutput{Parameter: &types.Parameter{
		Name: strPtr("p"), Value: strPtr("gsk_123\n"), Type: types.ParameterTypeSecureString,
	}}}
	client, err := New(api)
	require.NoError(t, err)
	v, err := client.GetParameter(context.Background(), " p ")
	require.NoError(t, err)
	require.Equal(t, "gsk_123", v)
	require.Equal(t, []string{"p"}, api.names)
}

func TestGetParameter_MissingValue(t *testing.T) {
	api := &fakeAPI{getOut: &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: strPtr("p")}}}
	client, err := New(api)
	require.NoError(t, err)
	_, err = client.GetParameter(context.Background(), "p")
	require.ErrorContains(t, err, "missing value")
}

func TestGetParameter_APIError(t *testing.T) {
	client, err := New(&fakeAPI{getErr: errors.New("boom")})
	require.NoError(t, err)
	_, err = client.GetParameter(context.Background(), "p")
	require.ErrorContains(t, err, "boom")
}

func TestGetParameter_EmptyName(t *testing.T) {
	client, err := New(&fakeAPI{})
	require.NoError(t, err)
	_, err = client.GetParameter(context.Background(), "  ")
	require.ErrorContains(t, err, "required")
}

func TestGetParameter_ClientNotInitialized(t *testing.T) {
	_, err := (&Client{}).GetParameter(context.Background(), "p")
	require.ErrorContains(t, err, "not initialized")
}

func TestNew_NilAPI(t *testing.T) {
	_, err := New(nil)
	require.ErrorContains(t, err, "must not be nil")
}

type mapGetter map[string]string

func (m mapGetter) GetParameter(_ context.Context, name string) (string, error) {
	v, ok := m[name]
	if !ok {
		return "", errors.New("ParameterNotFound: " + name)
	}
	return v, nil
}

func TestResolveAPIKeys_FillsOnlyEmpty(t *testing.T) {
	cfg := &config.Config{}
	cfg.Chat.APIKey = "from-env"
	g := mapGetter{
		"/voice-notes/groq_api_key":   "gsk",
		"/voice-notes/openai_api_key": "from-ssm",
	}
	require.NoError(t, ResolveAPIKeys(context.Background(), g, "/voice-notes/", cfg, nil))
	require.Equal(t, "gsk", cfg.Transcription.APIKey)
	require.Equal(t, "from-env", cfg.Chat.APIKey)
}

func TestResolveAPIKeys_ReportsMissing(t *testing.T) {
	cfg := &config.Config{}
	err := ResolveAPIKeys(context.Background(), mapGetter{"/p/openai_api_key": "sk"}, "/p", cfg, nil)
	require.ErrorContains(t, err, "groq_api_key")
	require.Equal(t, "sk", cfg.Chat.APIKey)
	require.Empty(t, cfg.Transcription.APIKey)
}
