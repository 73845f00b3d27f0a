package repository

import (
	"context"
)

// Well-known settings keys used by the backend adapters.
const (
	SettingAPIBackendFlavor = "api_backend_flavor"
	SettingAPIModelID       = "api_model_id"
	SettingAPIEndpoint      = "api_endpoint"
	SettingAPIKeyPrefix     = "api_key_" // + flavor; value stored encrypted
	SettingOnDeviceModel    = "ondevice_model"
	SettingWebGPUModel      = "webgpu_model"
)

// SettingsStore is the port for the persisted key-value configuration the
// adapters read and write (API keys, model selections, endpoint overrides).
// Values are opaque strings; JSON encoding is the caller's concern. A
// missing key yields domain.ErrNotFound.
type SettingsStore interface {
	Load(ctx context.Context, key string) (string, error)
	Save(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	// Clear removes every stored setting. Used by the full-reset path.
	Clear(ctx context.Context) error
}
