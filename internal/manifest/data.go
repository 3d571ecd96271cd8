package manifest

import _ "embed"

//go:embed data/poses.json
var defaultPoses []byte

//go:embed data/transitions.json
var defaultTransitions []byte

// DefaultLibrary parses the bundled pose catalog.
func DefaultLibrary() (*Library, error) {
	return ParseLibrary(defaultPoses)
}

// DefaultGraph parses the bundled transition graph.
func DefaultGraph() (*Graph, error) {
	return ParseGraph(defaultTransitions)
}
