package embedding

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"time"

	cohere "github.com/cohere-ai/cohere-go/v2"
	cohereclient "github.com/cohere-ai/cohere-go/v2/client"
)

// cohereTextEmbedder serves text embeddings from the Cohere Embed API.
type cohereTextEmbedder struct {
	client *cohereclient.Client
	model  string
}

func newCohereTextEmbedder(apiKey, model string) *cohereTextEmbedder {
	// Force HTTP/1.1; the Cohere endpoint intermittently resets HTTP/2
	// streams on large batches.
	httpClient := &http.Client{
		Timeout: 60 * time.Second,
		Transport: &http.Transport{
			TLSNextProto:      make(map[string]func(authority string, c *tls.Conn) http.RoundTripper),
			ForceAttemptHTTP2: false,
		},
	}
	client := cohereclient.NewClient(
		cohereclient.WithToken(apiKey),
		cohereclient.WithHTTPClient(httpClient),
	)
	return &cohereTextEmbedder{client: client, model: model}
}

func (c *cohereTextEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.client.V2.Embed(ctx, &cohere.V2EmbedRequest{
		Texts:          []string{text},
		Model:          c.model,
		InputType:      cohere.EmbedInputTypeSearchDocument,
		EmbeddingTypes: []cohere.EmbeddingType{cohere.EmbeddingTypeFloat},
	})
	if err != nil {
		return nil, fmt.Errorf("cohere embed: %w", err)
	}
	if resp == nil || resp.Embeddings == nil || resp.Embeddings.Float == nil {
		return nil, errors.New("cohere embed returned no float embeddings")
	}
	floats := resp.Embeddings.Float
	if len(floats) != 1 {
		return nil, fmt.Errorf("cohere embed returned %d vectors for one text", len(floats))
	}

	vec := make([]float32, len(floats[0]))
	for i, v := range floats[0] {
		vec[i] = float32(v)
	}
	return vec, nil
}
