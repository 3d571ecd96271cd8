package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/bij27/hohm.studio/internal/manifest"
	"github.com/bij27/hohm.studio/internal/models"
)

var (
	manifestOnce sync.Once
	manifestLib  *manifest.Library
	manifestGen  *manifest.Generator
	manifestErr  error
)

func generator() (*manifest.Generator, *manifest.Library, error) {
	manifestOnce.Do(func() {
		manifestLib, manifestErr = manifest.DefaultLibrary()
		if manifestErr != nil {
			return
		}
		var graph *manifest.Graph
		graph, manifestErr = manifest.DefaultGraph()
		if manifestErr != nil {
			return
		}
		manifestGen = manifest.NewGenerator(manifestLib, graph)
	})
	return manifestGen, manifestLib, manifestErr
}

// ListPoses returns the pose library.
func ListPoses(w http.ResponseWriter, r *http.Request) {
	enableCORS(w)
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	_, lib, err := generator()
	if err != nil {
		log.Printf("Pose library error: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(lib.All())
}

// GenerateManifest builds a session manifest from either an explicit
// pose sequence or auto-generation options.
func GenerateManifest(w http.ResponseWriter, r *http.Request) {
	enableCORS(w)
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req models.GenerateManifestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	gen, _, err := generator()
	if err != nil {
		log.Printf("Pose library error: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	m, err := gen.Generate(manifest.Options{
		DurationMins: req.DurationMins,
		Focus:        req.Focus,
		Difficulty:   req.Difficulty,
		PoseIDs:      req.PoseIDs,
		Style:        req.Style,
		Seed:         req.Seed,
	})
	if err != nil {
		log.Printf("Manifest generation failed: %v", err)
		http.Error(w, "Failed to generate manifest", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(m)
}
