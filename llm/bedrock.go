package llm

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/m4xw311/studyagent/errors"
	"github.com/m4xw311/studyagent/session"
)

// BedrockLLMClient is a client for the Anthropic models on AWS Bedrock.
type BedrockLLMClient struct {
	client  *bedrockruntime.Client
	modelID string
}

// NewBedrockLLMClient creates a new BedrockLLMClient.
// It requires AWS credentials to be configured in the environment.
func NewBedrockLLMClient(ctx context.Context, modelID string) (*BedrockLLMClient, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load AWS config")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	// Retries are decided by the agent loop.
	cfg.RetryMaxAttempts = 1

	return &BedrockLLMClient{
		client:  bedrockruntime.NewFromConfig(cfg),
		modelID: modelID,
	}, nil
}

// Chat sends a chat request to the Anthropic model via AWS Bedrock.
func (b *BedrockLLMClient) Chat(ctx context.Context, messages []session.Message) (string, error) {
	systemPrompt, rest := splitSystem(messages)

	requestBody, err := createAnthropicRequest(convertMessagesToAnthropicFormat(rest), systemPrompt)
	if err != nil {
		return "", errors.Wrapf(err, "failed to create Anthropic request")
	}

	resp, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.modelID),
		ContentType: aws.String("application/json"),
		Body:        requestBody,
	})
	if err != nil {
		var re *awshttp.ResponseError
		if errors.As(err, &re) {
			return "", &StatusError{Status: re.HTTPStatusCode(), Message: re.Err.Error(), Err: err}
		}
		return "", errors.Wrapf(err, "failed to invoke Bedrock model")
	}

	return processBedrockResponse(resp.Body)
}

// convertMessagesToAnthropicFormat converts our internal message format to Anthropic's format.
func convertMessagesToAnthropicFormat(messages []session.Message) []map[string]interface{} {
	var anthropicMessages []map[string]interface{}
	for _, msg := range messages {
		role := session.RoleUser
		if msg.Role == session.RoleAssistant {
			if msg.Content == "" {
				continue
			}
			role = session.RoleAssistant
		}
		anthropicMessages = append(anthropicMessages, map[string]interface{}{
			"role": role,
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": msg.Content,
				},
			},
		})
	}
	return anthropicMessages
}

// createAnthropicRequest creates the request body for Anthropic models on Bedrock.
func createAnthropicRequest(messages []map[string]interface{}, systemPrompt string) ([]byte, error) {
	request := map[string]interface{}{
		"anthropic_version": "bedrock-2023-05-31",
		"max_tokens":        4096,
		"messages":          messages,
	}

	if systemPrompt != "" {
		request["system"] = systemPrompt
	}

	return json.Marshal(request)
}

// processBedrockResponse extracts the text blocks of a Bedrock response body.
func processBedrockResponse(body []byte) (string, error) {
	var response struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		Error interface{} `json:"error"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return "", errors.Wrapf(ErrMalformedResponse, "failed to unmarshal Bedrock response: %v", err)
	}
	if response.Error != nil {
		return "", errors.Wrapf(ErrMalformedResponse, "Bedrock API error: %v", response.Error)
	}
	if response.Content == nil {
		return "", errors.Wrapf(ErrMalformedResponse, "Bedrock response has no content")
	}

	var text string
	for _, item := range response.Content {
		if item.Type == "text" {
			text += item.Text
		}
	}
	return text, nil
}
