package llm

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/kyleking/sql-agent/internal/errors"
)

// Bedrock API modes
const (
	BedrockAuto     = "auto"
	BedrockConverse = "converse"
	BedrockInvoke   = "invoke"
)

const bedrockAnthropicVersion = "bedrock-2023-05-31"

// bedrockAPI is the part of the runtime client Bedrock calls
type bedrockAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Bedrock generates through AWS Bedrock, using either the Converse API or a
// model-specific InvokeModel body. The mode is fixed at construction.
type Bedrock struct {
	client    bedrockAPI
	model     string
	mode      string
	maxTokens int
}

// NewBedrock loads AWS credentials the usual way (environment, shared files, IAM role)
func NewBedrock(ctx context.Context, region, model, mode string, maxTokens int) (*Bedrock, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeConfig, "failed to load AWS configuration").
			WithSuggestion("Set AWS_REGION and AWS credentials or an AWS profile")
	}

	return NewBedrockWithClient(bedrockruntime.NewFromConfig(awsCfg), model, mode, maxTokens)
}

func NewBedrockWithClient(client bedrockAPI, model, mode string, maxTokens int) (*Bedrock, error) {
	resolved, err := resolveBedrockMode(model, mode)
	if err != nil {
		return nil, err
	}

	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	return &Bedrock{client: client, model: model, mode: resolved, maxTokens: maxTokens}, nil
}

// resolveBedrockMode picks converse for Amazon Nova models and invoke for the rest
func resolveBedrockMode(model, mode string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case BedrockConverse:
		return BedrockConverse, nil
	case BedrockInvoke:
		return BedrockInvoke, nil
	case BedrockAuto, "":
		if strings.Contains(strings.ToLower(model), "nova") {
			return BedrockConverse, nil
		}

		return BedrockInvoke, nil
	default:
		return "", errors.NewConfigError("unsupported bedrock api mode: "+mode, "llm.bedrock_api")
	}
}

func (b *Bedrock) GetName() string {
	return ProviderBedrock + ":" + b.model
}

// Mode is the resolved API mode
func (b *Bedrock) Mode() string {
	return b.mode
}

func (b *Bedrock) Generate(ctx context.Context, prompt string, temperature float64) (string, error) {
	return b.GenerateWithSystem(ctx, "", prompt, temperature)
}

func (b *Bedrock) GenerateWithSystem(ctx context.Context, system, user string, temperature float64) (string, error) {
	if b.mode == BedrockConverse {
		return b.converse(ctx, system, user, temperature)
	}

	return b.invoke(ctx, system, user, temperature)
}

func (b *Bedrock) converse(ctx context.Context, system, user string, temperature float64) (string, error) {
	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(b.model),
		Messages: []types.Message{{
			Role:    types.ConversationRoleUser,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: user}},
		}},
		InferenceConfig: &types.InferenceConfiguration{
			Temperature: aws.Float32(float32(temperature)),
			MaxTokens:   aws.Int32(int32(b.maxTokens)),
		},
	}

	if system != "" {
		input.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: system}}
	}

	out, err := b.client.Converse(ctx, input)
	if err != nil {
		return "", errors.Wrapf(err, errors.ErrTypeGeneration, "bedrock converse failed for %s", b.model)
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return "", errors.New(errors.ErrTypeGeneration, "bedrock converse returned no message")
	}

	var parts []string
	for _, block := range msg.Value.Content {
		if text, ok := block.(*types.ContentBlockMemberText); ok {
			parts = append(parts, text.Value)
		}
	}

	if len(parts) == 0 {
		return "", errors.New(errors.ErrTypeGeneration, "bedrock converse returned no text")
	}

	return strings.Join(parts, ""), nil
}

// novaInvokeRequest is the native Amazon Nova body
type novaInvokeRequest struct {
	System          []novaText    `json:"system,omitempty"`
	Messages        []novaMessage `json:"messages"`
	InferenceConfig novaInference `json:"inferenceConfig"`
}

type novaMessage struct {
	Role    string     `json:"role"`
	Content []novaText `json:"content"`
}

type novaText struct {
	Text string `json:"text"`
}

type novaInference struct {
	Temperature  float64 `json:"temperature"`
	MaxNewTokens int     `json:"max_new_tokens"`
}

type novaInvokeResponse struct {
	Output struct {
		Message novaMessage `json:"message"`
	} `json:"output"`
}

// bedrockAnthropicRequest is the Claude messages body for InvokeModel
type bedrockAnthropicRequest struct {
	AnthropicVersion string             `json:"anthropic_version"`
	MaxTokens        int                `json:"max_tokens"`
	Temperature      float64            `json:"temperature"`
	System           string             `json:"system,omitempty"`
	Messages         []anthropicMessage `json:"messages"`
}

func (b *Bedrock) invoke(ctx context.Context, system, user string, temperature float64) (string, error) {
	nova := strings.Contains(strings.ToLower(b.model), "nova")

	var body interface{}
	if nova {
		req := novaInvokeRequest{
			Messages:        []novaMessage{{Role: "user", Content: []novaText{{Text: user}}}},
			InferenceConfig: novaInference{Temperature: temperature, MaxNewTokens: b.maxTokens},
		}
		if system != "" {
			req.System = []novaText{{Text: system}}
		}
		body = req
	} else {
		body = bedrockAnthropicRequest{
			AnthropicVersion: bedrockAnthropicVersion,
			MaxTokens:        b.maxTokens,
			Temperature:      temperature,
			System:           system,
			Messages:         []anthropicMessage{{Role: "user", Content: user}},
		}
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrTypeInternal, "failed to marshal bedrock request")
	}

	out, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.model),
		Body:        raw,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return "", errors.Wrapf(err, errors.ErrTypeGeneration, "bedrock invoke failed for %s", b.model)
	}

	if !nova {
		return parseAnthropicResponse(out.Body)
	}

	var resp novaInvokeResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return "", errors.Wrap(err, errors.ErrTypeGeneration, "failed to parse bedrock response")
	}

	if len(resp.Output.Message.Content) == 0 {
		return "", errors.New(errors.ErrTypeGeneration, "bedrock invoke returned no text")
	}

	return resp.Output.Message.Content[0].Text, nil
}
