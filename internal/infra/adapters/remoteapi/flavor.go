package remoteapi

import "fmt"

// Wire-protocol flavors of the remote adapter. Switching flavor changes the
// endpoint shape and credential requirement, never the session semantics.
const (
	FlavorOpenAI    = "openai"    // token-delta SSE
	FlavorAnthropic = "anthropic" // typed-event SSE
	FlavorOllama    = "ollama"    // newline-delimited JSON, local server
)

const anthropicVersion = "2023-06-01"

func validFlavor(f string) bool {
	switch f {
	case FlavorOpenAI, FlavorAnthropic, FlavorOllama:
		return true
	}
	return false
}

// requiresKey reports whether the flavor needs a credential. The Ollama
// flavor assumes a local server and takes none.
func requiresKey(f string) bool {
	return f == FlavorOpenAI || f == FlavorAnthropic
}

func defaultEndpoint(f string) string {
	switch f {
	case FlavorOpenAI:
		return "https://api.openai.com/v1"
	case FlavorAnthropic:
		return "https://api.anthropic.com/v1"
	default:
		return "http://localhost:11434"
	}
}

func defaultModel(f string) string {
	switch f {
	case FlavorOpenAI:
		return "gpt-4o-mini"
	case FlavorAnthropic:
		return "claude-3-5-sonnet-latest"
	default:
		return "llama3.2"
	}
}

func chatPath(f string) string {
	switch f {
	case FlavorOpenAI:
		return "/chat/completions"
	case FlavorAnthropic:
		return "/messages"
	default:
		return "/api/chat"
	}
}

func keySettingName(f string) string {
	return fmt.Sprintf("api_key_%s", f)
}
