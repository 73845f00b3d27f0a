package remoteapi

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"chat-ai-orchestrator/internal/infra/metrics"
)

// The three stream decoders below normalize the flavor wire formats into
// plain text deltas pushed through emit. They share the rules of the
// contract: partial lines are buffered across reads, malformed payloads are
// skipped with a debug log (never fatal), and emit's error aborts the
// decode (cancellation path). Callers own the reader and must close it on
// every exit path.

const doneSentinel = "[DONE]"

const maxLineBytes = 1 << 20

func newLineScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return sc
}

// decodeTokenDeltaSSE handles the OpenAI-style event stream: "data: " lines
// carrying {choices:[{delta:{content}}]} payloads until the [DONE] sentinel.
func decodeTokenDeltaSSE(r io.Reader, emit func(string) error, log *zerolog.Logger) error {
	sc := newLineScanner(r)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		payload, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		if payload == doneSentinel {
			return nil
		}
		var ev struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			log.Debug().Err(err).Str("payload", payload).Msg("skipping malformed token-delta payload")
			metrics.ObserveParseWarning(FlavorOpenAI)
			continue
		}
		if len(ev.Choices) > 0 && ev.Choices[0].Delta.Content != "" {
			if err := emit(ev.Choices[0].Delta.Content); err != nil {
				return err
			}
		}
	}
	return sc.Err()
}

// decodeTypedEventSSE handles the Anthropic-style event stream: only
// content_block_delta events contribute text, from their delta.text field.
func decodeTypedEventSSE(r io.Reader, emit func(string) error, log *zerolog.Logger) error {
	sc := newLineScanner(r)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		payload, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var ev struct {
			Type  string `json:"type"`
			Delta struct {
				Text string `json:"text"`
			} `json:"delta"`
		}
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			log.Debug().Err(err).Str("payload", payload).Msg("skipping malformed typed-event payload")
			metrics.ObserveParseWarning(FlavorAnthropic)
			continue
		}
		if ev.Type != "content_block_delta" || ev.Delta.Text == "" {
			continue
		}
		if err := emit(ev.Delta.Text); err != nil {
			return err
		}
	}
	return sc.Err()
}

// decodeNDJSON handles the Ollama-style stream: one JSON object per line,
// message.content deltas, terminated by an object with done:true even when
// more bytes remain buffered.
func decodeNDJSON(r io.Reader, emit func(string) error, log *zerolog.Logger) error {
	sc := newLineScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var ev struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			Done bool `json:"done"`
		}
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			log.Debug().Err(err).Str("line", line).Msg("skipping malformed ndjson line")
			metrics.ObserveParseWarning(FlavorOllama)
			continue
		}
		if ev.Message.Content != "" {
			if err := emit(ev.Message.Content); err != nil {
				return err
			}
		}
		if ev.Done {
			return nil
		}
	}
	return sc.Err()
}

type decodeFunc func(io.Reader, func(string) error, *zerolog.Logger) error

func decoderFor(flavor string) decodeFunc {
	switch flavor {
	case FlavorOpenAI:
		return decodeTokenDeltaSSE
	case FlavorAnthropic:
		return decodeTypedEventSSE
	default:
		return decodeNDJSON
	}
}
