package tools

import (
	"embed"
	"io/fs"
	"os"

	"github.com/sirupsen/logrus"
)

//go:embed knowledge/*.md
var embeddedKnowledge embed.FS

// Knowledge document names.
const (
	DocAbout        = "about.md"
	DocExperience   = "experience.md"
	DocTechnologies = "technologies.md"
	DocContact      = "contact.md"
)

// Knowledge serves the markdown documents the server tools answer from.
type Knowledge struct {
	fsys   fs.FS
	logger logrus.FieldLogger
}

// NewKnowledge reads documents from dir, or from the embedded defaults when
// dir is empty.
func NewKnowledge(dir string, logger logrus.FieldLogger) *Knowledge {
	var fsys fs.FS
	if dir != "" {
		fsys = os.DirFS(dir)
	} else {
		sub, err := fs.Sub(embeddedKnowledge, "knowledge")
		if err != nil {
			panic(err)
		}
		fsys = sub
	}
	return NewKnowledgeFS(fsys, logger)
}

// NewKnowledgeFS reads documents from fsys.
func NewKnowledgeFS(fsys fs.FS, logger logrus.FieldLogger) *Knowledge {
	return &Knowledge{fsys: fsys, logger: logger}
}

// Read returns the document, or "" if it cannot be read.
func (k *Knowledge) Read(name string) string {
	data, err := fs.ReadFile(k.fsys, name)
	if err != nil {
		k.logger.WithError(err).WithField("document", name).Error("Failed to read knowledge file")
		return ""
	}
	return string(data)
}
