// cmd/tools/model-manifest/main.go
package main

import (
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"house-price-workers/internal/pricing"
	"house-price-workers/pkg/registry"
)

var manifestPath string

func main() {
	addCmd := flag.NewFlagSet("add", flag.ExitOnError)
	updateCmd := flag.NewFlagSet("update", flag.ExitOnError)
	removeCmd := flag.NewFlagSet("remove", flag.ExitOnError)
	listCmd := flag.NewFlagSet("list", flag.ExitOnError)
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)

	for _, fs := range []*flag.FlagSet{addCmd, updateCmd, removeCmd, listCmd, validateCmd} {
		fs.StringVar(&manifestPath, "manifest", "configs/models/manifest.json", "Path to the model manifest")
	}

	// Add command flags
	idAdd := addCmd.String("id", "", "Model ID (e.g., linear-regression)")
	displayName := addCmd.String("displayName", "", "Display Name (e.g., Linear Regression)")
	kind := addCmd.String("kind", registry.KindLinear, "Artifact kind (linear, tree)")
	path := addCmd.String("path", "", "Artifact path, relative to the manifest")
	note := addCmd.String("note", "", "Explanatory note shown with the estimate")
	version := addCmd.String("version", "1.0.0", "Version")

	// Update command flags
	idUpdate := updateCmd.String("id", "", "Model ID to update")
	field := updateCmd.String("field", "", "Field to update (displayName, kind, path, note, version)")
	value := updateCmd.String("value", "", "New value for the field")

	idRemove := removeCmd.String("id", "", "Model ID to remove")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "add":
		addCmd.Parse(os.Args[2:])
		if *idAdd == "" || *path == "" {
			fmt.Println("Error: id and path are required for add.")
			addCmd.Usage()
			os.Exit(1)
		}
		entry := registry.ModelEntry{
			ID:          *idAdd,
			DisplayName: *displayName,
			Kind:        *kind,
			Path:        *path,
			Note:        *note,
			Version:     *version,
		}
		if err := addModel(manifestPath, entry); err != nil {
			fmt.Printf("Error adding model: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Added model: %s\n", *idAdd)

	case "update":
		updateCmd.Parse(os.Args[2:])
		if *idUpdate == "" || *field == "" {
			fmt.Println("Error: id and field are required for update.")
			updateCmd.Usage()
			os.Exit(1)
		}
		if err := updateModel(manifestPath, *idUpdate, *field, *value); err != nil {
			fmt.Printf("Error updating model: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Updated model %s, field %s to %s\n", *idUpdate, *field, *value)

	case "remove":
		removeCmd.Parse(os.Args[2:])
		if *idRemove == "" {
			fmt.Println("Error: id is required for remove.")
			removeCmd.Usage()
			os.Exit(1)
		}
		if err := removeModel(manifestPath, *idRemove); err != nil {
			fmt.Printf("Error removing model: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Removed model: %s\n", *idRemove)

	case "list":
		listCmd.Parse(os.Args[2:])
		if err := listModels(manifestPath); err != nil {
			fmt.Printf("Error listing models: %v\n", err)
			os.Exit(1)
		}

	case "validate":
		validateCmd.Parse(os.Args[2:])
		if err := validateManifest(manifestPath); err != nil {
			fmt.Printf("Manifest validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Manifest validation passed.")

	case "help":
		fallthrough
	default:
		help()
	}
}

func addModel(path string, entry registry.ModelEntry) error {
	m, err := registry.LoadManifest(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to load manifest: %w", err)
		}
		m = &registry.ModelManifest{Version: "1.0.0"}
	}

	if _, exists := m.Find(entry.ID); exists {
		return fmt.Errorf("model with ID %s already exists", entry.ID)
	}

	m.Models = append(m.Models, entry)
	if err := m.Validate(); err != nil {
		return err
	}
	m.LastUpdated = time.Now().UTC().Format(time.RFC3339)
	return registry.SaveManifest(m, path)
}

func updateModel(path, id, field, value string) error {
	m, err := registry.LoadManifest(path)
	if err != nil {
		return fmt.Errorf("failed to load manifest: %w", err)
	}

	entry, found := m.Find(id)
	if !found {
		return fmt.Errorf("model with ID %s not found", id)
	}

	switch field {
	case "displayName":
		entry.DisplayName = value
	case "kind":
		entry.Kind = value
	case "path":
		entry.Path = value
	case "note":
		entry.Note = value
	case "version":
		entry.Version = value
	default:
		return fmt.Errorf("unknown field: %s", field)
	}

	if err := m.Validate(); err != nil {
		return err
	}
	m.LastUpdated = time.Now().UTC().Format(time.RFC3339)
	return registry.SaveManifest(m, path)
}

func removeModel(path, id string) error {
	m, err := registry.LoadManifest(path)
	if err != nil {
		return fmt.Errorf("failed to load manifest: %w", err)
	}

	kept := m.Models[:0]
	for _, entry := range m.Models {
		if entry.ID != id {
			kept = append(kept, entry)
		}
	}
	if len(kept) == len(m.Models) {
		return fmt.Errorf("model with ID %s not found", id)
	}
	m.Models = kept
	m.LastUpdated = time.Now().UTC().Format(time.RFC3339)
	return registry.SaveManifest(m, path)
}

func listModels(path string) error {
	m, err := registry.LoadManifest(path)
	if err != nil {
		return fmt.Errorf("failed to load manifest: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tKIND\tVERSION\tPATH")
	for _, e := range m.Models {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.ID, e.Label(), e.Kind, e.Version, e.Path)
	}
	return w.Flush()
}

// validateManifest checks the manifest itself, then loads every artifact and
// compares its feature names with the manifest columns.
func validateManifest(path string) error {
	m, err := registry.LoadManifest(path)
	if err != nil {
		return fmt.Errorf("failed to load manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return err
	}

	for _, entry := range m.Models {
		artifact, err := pricing.LoadArtifact(registry.ResolvePath(path, entry))
		if err != nil {
			return fmt.Errorf("model %s: %w", entry.ID, err)
		}
		if artifact.Kind() != entry.Kind {
			return fmt.Errorf("model %s: manifest kind %q, artifact kind %q", entry.ID, entry.Kind, artifact.Kind())
		}
		if len(m.Columns) == 0 {
			continue
		}
		if err := sameColumns(m.Columns, artifact.FeatureNames()); err != nil {
			return fmt.Errorf("model %s: %w", entry.ID, err)
		}
	}
	return nil
}

func sameColumns(want, got []string) error {
	if len(want) != len(got) {
		return fmt.Errorf("artifact has %d features, manifest lists %d columns", len(got), len(want))
	}
	for i := range want {
		if want[i] != got[i] {
			return fmt.Errorf("column %d is %q in the manifest but %q in the artifact", i, want[i], got[i])
		}
	}
	return nil
}

func help() {
	fmt.Println("Usage: model-manifest <command> [flags]")
	fmt.Println("Commands:")
	fmt.Println("  add       Add a model to the manifest")
	fmt.Println("  update    Update one field of a model")
	fmt.Println("  remove    Remove a model")
	fmt.Println("  list      List the models")
	fmt.Println("  validate  Validate the manifest and its artifacts")
	fmt.Println("Use 'model-manifest <command> -h' for command flags.")
}
