package webgpu

import "chat-ai-orchestrator/internal/domain/model"

// catalog is the process-wide read-only model table. Querying it never
// requires initialization.
var catalog = []model.ModelSpec{
	{
		ID:            "llama-3.2-1b-instruct-q4",
		DisplayName:   "Llama 3.2 1B",
		Description:   "Smallest tier; fast responses, short context",
		VRAMMB:        880,
		ContextLength: 4096,
	},
	{
		ID:            "llama-3.2-3b-instruct-q4",
		DisplayName:   "Llama 3.2 3B",
		Description:   "Balanced tier for mid-range GPUs",
		VRAMMB:        1900,
		ContextLength: 4096,
	},
	{
		ID:            "llama-3.1-8b-instruct-q4",
		DisplayName:   "Llama 3.1 8B",
		Description:   "Largest tier; needs a discrete GPU",
		VRAMMB:        4600,
		ContextLength: 8192,
	},
}

// Catalog returns a copy of the static model table.
func Catalog() []model.ModelSpec {
	out := make([]model.ModelSpec, len(catalog))
	copy(out, catalog)
	return out
}

func specByID(id string) (model.ModelSpec, bool) {
	for _, s := range catalog {
		if s.ID == id {
			return s, true
		}
	}
	return model.ModelSpec{}, false
}
