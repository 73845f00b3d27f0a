package remoteapi

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"chat-ai-orchestrator/internal/domain/model"
)

var (
	encOnce sync.Once
	encoder *tiktoken.Tiktoken
)

// estimateTokens is a best-effort prompt-token count for metrics and logs.
// cl100k_base is close enough across the supported backends; counting
// failures degrade to zero, never to an error.
func estimateTokens(history []model.Message) int {
	encOnce.Do(func() {
		enc, err := tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
		if err == nil {
			encoder = enc
		}
	})
	if encoder == nil {
		return 0
	}
	total := 0
	for _, m := range history {
		total += len(encoder.Encode(m.Content, nil, nil))
		total += 4 // per-message framing overhead
	}
	return total
}
