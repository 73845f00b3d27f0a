package model

// ProviderKind distinguishes local (in-process / on-host) backends from
// remote HTTP backends.
type ProviderKind string

const (
	KindLocal  ProviderKind = "local"
	KindRemote ProviderKind = "remote"
)

// Known provider names. The selection priority table in the registry is
// keyed by these.
const (
	ProviderOnDevice  = "on-device"
	ProviderWebGPU    = "webgpu"
	ProviderRemoteAPI = "remote-api"
)

// ProviderDescriptor identifies a backend. Immutable for the adapter's
// lifetime.
type ProviderDescriptor struct {
	Name        string       `json:"name"`
	Kind        ProviderKind `json:"kind"`
	Description string       `json:"description"`
}

// Availability is the result of probing a backend. It is computed fresh on
// every probe and never cached across selection cycles.
type Availability struct {
	Available         bool   `json:"available"`
	Reason            string `json:"reason,omitempty"`
	RequiresDownload  bool   `json:"requires_download,omitempty"`
	DownloadSizeBytes int64  `json:"download_size_bytes,omitempty"`
}

// ProgressPhase is the coarse load state of an adapter.
type ProgressPhase string

const (
	PhaseDownloading ProgressPhase = "downloading"
	PhaseLoading     ProgressPhase = "loading"
	PhaseReady       ProgressPhase = "ready"
)

// Progress describes an adapter's current download/load state. Transient;
// queried on demand, never persisted.
type Progress struct {
	Phase       ProgressPhase `json:"phase"`
	Percentage  int           `json:"percentage"`
	LoadedBytes int64         `json:"loaded_bytes,omitempty"`
	TotalBytes  int64         `json:"total_bytes,omitempty"`
	CurrentFile string        `json:"current_file,omitempty"`
}

// ModelSpec is one entry of a static model catalog (GPU adapter tiers).
type ModelSpec struct {
	ID            string `json:"id"`
	DisplayName   string `json:"display_name"`
	Description   string `json:"description"`
	VRAMMB        int    `json:"vram_mb"`
	ContextLength int    `json:"context_length"`
}
