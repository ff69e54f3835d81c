package sentiment

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/nimazasinich/crypto-dt-source-sub009/errors"
)

// Label is a headline sentiment class.
type Label string

// Headline labels.
const (
	LabelBullish Label = "bullish"
	LabelBearish Label = "bearish"
	LabelNeutral Label = "neutral"
)

const classifierPrompt = "You label cryptocurrency news headlines. " +
	"Answer with exactly one word: bullish, bearish, or neutral."

// maxHeadlineLen bounds what is sent to the model.
const maxHeadlineLen = 500

// chatCompleter is the slice of the OpenAI client the classifier uses.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// ClassifierConfig configures the headline classifier.
type ClassifierConfig struct {
	APIKey  string
	BaseURL string // empty uses the default OpenAI endpoint
	Model   string // default gpt-4o-mini
}

// Classifier labels headlines through an OpenAI-compatible chat endpoint.
type Classifier struct {
	api   chatCompleter
	model string
}

// NewClassifier creates a classifier. BaseURL supports self-hosted
// OpenAI-compatible endpoints.
func NewClassifier(cfg ClassifierConfig) (*Classifier, error) {
	if cfg.APIKey == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig,
			"Classifier", "NewClassifier", "no API key")
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Classifier{
		api:   openai.NewClientWithConfig(clientCfg),
		model: cfg.Model,
	}, nil
}

// Classify labels one headline.
func (c *Classifier) Classify(ctx context.Context, headline string) (Label, error) {
	headline = strings.TrimSpace(headline)
	if headline == "" {
		return "", errors.WrapInvalid(
			fmt.Errorf("empty headline"), "Classifier", "Classify", "validate input")
	}
	if len(headline) > maxHeadlineLen {
		headline = headline[:maxHeadlineLen]
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0,
		MaxTokens:   4,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: classifierPrompt},
			{Role: openai.ChatMessageRoleUser, Content: headline},
		},
	})
	if err != nil {
		return "", errors.WrapTransient(err, "Classifier", "Classify", "chat completion")
	}
	if len(resp.Choices) == 0 {
		return "", errors.WrapTransient(
			fmt.Errorf("no choices in response"), "Classifier", "Classify", "read completion")
	}

	return parseLabel(resp.Choices[0].Message.Content)
}

// parseLabel maps the model's answer to a label, tolerating punctuation
// and casing but nothing semantically loose.
func parseLabel(answer string) (Label, error) {
	cleaned := strings.ToLower(strings.TrimSpace(answer))
	cleaned = strings.Trim(cleaned, ".!\"' ")

	switch Label(cleaned) {
	case LabelBullish:
		return LabelBullish, nil
	case LabelBearish:
		return LabelBearish, nil
	case LabelNeutral:
		return LabelNeutral, nil
	default:
		return "", errors.WrapInvalid(
			fmt.Errorf("unrecognized label %q", answer), "Classifier", "parseLabel", "map answer")
	}
}
