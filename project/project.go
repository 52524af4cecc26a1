// Package project detects the type of the repository a plan operates on and
// the commands used to validate changes in it. The plan consults a Detector
// when generating validation steps; anything implementing the interface can
// stand in for the default marker-file detection.
package project

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
)

// ErrNoRoot indicates the detection root does not exist.
var ErrNoRoot = errors.New("project root does not exist")

// Type identifies a detected project flavor.
type Type string

const (
	TypeGo      Type = "go"
	TypeNode    Type = "node"
	TypePython  Type = "python"
	TypeRust    Type = "rust"
	TypeJava    Type = "java"
	TypeUnknown Type = "unknown"
)

// Info describes a detected project and its validation commands.
type Info struct {
	// Type is the detected project flavor.
	Type Type

	// TestCommand runs the project's test suite.
	TestCommand string

	// BuildCommand builds the project, empty if not applicable.
	BuildCommand string

	// Markers are the files whose presence drove the detection.
	Markers []string
}

// Detector yields project information for a root directory.
type Detector interface {
	// Detect inspects root and returns the best-matching project info.
	// Unrecognized projects return Type=unknown with generic commands.
	Detect(root string) (Info, error)
}

// marker maps an indicator file to its project type and commands.
type marker struct {
	file  string
	typ   Type
	test  string
	build string
	// weight breaks ties when several markers are present; higher wins.
	weight int
}

var markers = []marker{
	{"go.mod", TypeGo, "go test ./...", "go build ./...", 10},
	{"Cargo.toml", TypeRust, "cargo test", "cargo build", 10},
	{"package.json", TypeNode, "npm test", "npm run build", 8},
	{"pyproject.toml", TypePython, "pytest", "", 8},
	{"setup.py", TypePython, "pytest", "", 6},
	{"requirements.txt", TypePython, "pytest", "", 4},
	{"pom.xml", TypeJava, "mvn test", "mvn package", 8},
	{"build.gradle", TypeJava, "gradle test", "gradle build", 8},
}

// MarkerDetector detects a project by marker files in its root directory.
type MarkerDetector struct{}

// NewDetector creates the default marker-file detector.
func NewDetector() *MarkerDetector {
	return &MarkerDetector{}
}

// Detect implements Detector.
func (d *MarkerDetector) Detect(root string) (Info, error) {
	if root == "" {
		root = "."
	}
	if _, err := os.Stat(root); err != nil {
		return Info{}, ErrNoRoot
	}

	var found []marker
	var evidence []string
	for _, m := range markers {
		if _, err := os.Stat(filepath.Join(root, m.file)); err == nil {
			found = append(found, m)
			evidence = append(evidence, m.file)
		}
	}

	if len(found) == 0 {
		return Info{Type: TypeUnknown, TestCommand: "make test"}, nil
	}

	sort.Slice(found, func(i, j int) bool { return found[i].weight > found[j].weight })
	best := found[0]
	return Info{
		Type:         best.typ,
		TestCommand:  best.test,
		BuildCommand: best.build,
		Markers:      evidence,
	}, nil
}

// StaticDetector returns a fixed Info, useful in tests and for callers that
// already know their project type.
type StaticDetector struct {
	Info Info
}

// Detect implements Detector.
func (d *StaticDetector) Detect(root string) (Info, error) {
	return d.Info, nil
}
