// pkg/registry/schema.go
package registry

// Model kinds understood by the pricing package.
const (
	KindLinear = "linear"
	KindTree   = "tree"
)

// ModelManifest lists the model artifacts served side by side and,
// optionally, the ordered input columns they were trained on.
type ModelManifest struct {
	Version     string       `json:"version"`
	LastUpdated string       `json:"lastUpdated"`
	Columns     []string     `json:"columns,omitempty"`
	Models      []ModelEntry `json:"models"`
}

type ModelEntry struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Kind        string `json:"kind"`
	Path        string `json:"path"` // relative to the manifest file
	Note        string `json:"note,omitempty"`
	Version     string `json:"version,omitempty"`
}
