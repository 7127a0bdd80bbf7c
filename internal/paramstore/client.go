package paramstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"go.uber.org/zap"

	"github.com/voice-notes-ai/backend/config"
)

// Parameter names under the configured prefix.
const (
	TranscriptionKeyParam = "groq_api_key"
	ChatKeyParam          = "openai_api_key"
)

// ssmAPI is the subset of *ssm.Client used here.
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Getter reads a single decrypted parameter.
type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// Client wraps SSM Parameter Store reads.
type Client struct {
	api ssmAPI
}

// New creates a Client with the given SSM API implementation.
func New(api ssmAPI) (*Client, error) {
	if api == nil {
		return nil, errors.New("paramstore: api must not be nil")
	}
	return &Client{api: api}, nil
}

// GetParameter returns the decrypted value of name.
func (c *Client) GetParameter(ctx context.Context, name string) (string, error) {
	if c.api == nil {
		return "", errors.New("paramstore: client not initialized")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("paramstore: name is required")
	}

	withDecryption := true
	out, err := c.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: &withDecryption,
	})
	if err != nil {
		return "", fmt.Errorf("paramstore: get parameter %q: %w", name, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("paramstore: parameter %q missing value", name)
	}
	return strings.TrimSpace(*out.Parameter.Value), nil
}

// ResolveAPIKeys fills empty API keys in cfg from <prefix>/<param>.
// Keys already present in the environment win. A failed lookup is an error
// only when the key is still empty afterwards.
func ResolveAPIKeys(ctx context.Context, g Getter, prefix string, cfg *config.Config, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	prefix = strings.TrimRight(prefix, "/")
	targets := []struct {
		param string
		dst   *string
	}{
		{TranscriptionKeyParam, &cfg.Transcription.APIKey},
		{ChatKeyParam, &cfg.Chat.APIKey},
	}
	var errs []error
	for _, t := range targets {
		if *t.dst != "" {
			continue
		}
		name := prefix + "/" + t.param
		v, err := g.GetParameter(ctx, name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		*t.dst = v
		logger.Info("api key loaded from parameter store", zap.String("param", name))
	}
	return errors.Join(errs...)
}
