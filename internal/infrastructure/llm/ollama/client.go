package ollama

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/invoice-ingest/internal/infrastructure/resilience"
)

type Client struct {
	baseURL     string
	genModel    string
	visionModel string
	httpClient  *http.Client
	executor    *resilience.Executor
}

type Options struct {
	HTTPTimeout        time.Duration
	ResilienceExecutor *resilience.Executor
}

func New(baseURL, genModel, visionModel string) *Client {
	return NewWithOptions(baseURL, genModel, visionModel, Options{})
}

func NewWithOptions(baseURL, genModel, visionModel string, options Options) *Client {
	timeout := options.HTTPTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	if strings.TrimSpace(visionModel) == "" {
		visionModel = genModel
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		genModel:    genModel,
		visionModel: visionModel,
		httpClient:  &http.Client{Timeout: timeout},
		executor:    options.ResilienceExecutor,
	}
}

type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) GenerateFromPrompt(ctx context.Context, prompt string) (string, error) {
	return g.client.generateText(ctx, prompt)
}

// ChatMessage is one /api/chat message. Images are raw bytes and get base64 encoded on the wire.
type ChatMessage struct {
	Role    string
	Content string
	Images  [][]byte
}

type wireMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

// ChatJSON sends messages to the vision model and asks for a JSON formatted reply.
func (c *Client) ChatJSON(ctx context.Context, messages []ChatMessage) (string, error) {
	wire := make([]wireMessage, 0, len(messages))
	for _, msg := range messages {
		item := wireMessage{Role: msg.Role, Content: msg.Content}
		for _, img := range msg.Images {
			item.Images = append(item.Images, base64.StdEncoding.EncodeToString(img))
		}
		wire = append(wire, item)
	}

	reqBody := map[string]any{
		"model":    c.visionModel,
		"messages": wire,
		"stream":   false,
		"format":   "json",
	}
	var response struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := c.postJSON(ctx, "/api/chat", reqBody, &response, "chat"); err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Message.Content), nil
}

// GenerateJSON runs a text-only prompt against the vision model in JSON mode.
func (c *Client) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]any{
		"model":  c.visionModel,
		"prompt": prompt,
		"stream": false,
		"format": "json",
	}
	return c.generate(ctx, reqBody)
}

func (c *Client) generateText(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]any{
		"model":  c.genModel,
		"prompt": prompt,
		"stream": false,
	}
	return c.generate(ctx, reqBody)
}

func (c *Client) generate(ctx context.Context, reqBody map[string]any) (string, error) {
	var response struct {
		Response string `json:"response"`
	}
	if err := c.postJSON(ctx, "/api/generate", reqBody, &response, "generate"); err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}
