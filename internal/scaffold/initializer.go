package scaffold

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dyluth/microchain/internal/config"
	"github.com/dyluth/microchain/internal/printer"
)

//go:embed templates/*
var templatesFS embed.FS

// FileInfo represents a file to be created during initialization
type FileInfo struct {
	Path        string
	Content     []byte
	Permissions os.FileMode
}

// EnvExampleFile lists the secrets microchain reads from .env
const EnvExampleFile = ".env.example"

// Initialize writes microchain.yml and .env.example into dir.
// If force is true, existing files are replaced.
func Initialize(dir string, force bool) ([]string, error) {
	if !force {
		if err := CheckExisting(dir); err != nil {
			return nil, err
		}
	}

	files, err := getTemplateFiles()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	var written []string
	for _, file := range files {
		path := filepath.Join(dir, file.Path)
		if err := os.WriteFile(path, file.Content, file.Permissions); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", file.Path, err)
		}
		written = append(written, file.Path)
	}

	// The template must load with the same rules as a user's file
	if _, err := config.Load(filepath.Join(dir, config.DefaultFile)); err != nil {
		return nil, fmt.Errorf("created %s is invalid: %w", config.DefaultFile, err)
	}

	return written, nil
}

// getTemplateFiles reads all template files
func getTemplateFiles() ([]FileInfo, error) {
	cfg, err := templatesFS.ReadFile("templates/microchain.yml.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to read %s template: %w", config.DefaultFile, err)
	}

	env, err := templatesFS.ReadFile("templates/env.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to read %s template: %w", EnvExampleFile, err)
	}

	return []FileInfo{
		{Path: config.DefaultFile, Content: cfg, Permissions: 0644},
		{Path: EnvExampleFile, Content: env, Permissions: 0644},
	}, nil
}

// PrintSuccess prints the created files and next steps
func PrintSuccess(written []string) {
	printer.Success("Successfully initialized microchain project!\n")
	printer.Println("\nCreated:")
	for _, f := range written {
		printer.Printf("  ✓ %s\n", f)
	}
	printer.Println("\nNext steps:")
	printer.Printf("  1. Copy %s to .env and set OPENAI_API_KEY\n", EnvExampleFile)
	printer.Printf("  2. Adjust %s if needed\n", config.DefaultFile)
	printer.Println("  3. Run 'microchain generate --description \"...\" --scenario \"...\"'")
}
