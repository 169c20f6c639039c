package params

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFile reads raw job parameters from a YAML file. Unknown keys are
// rejected so that a misspelled field fails loudly instead of defaulting.
func LoadFile(path string) (Raw, error) {
	f, err := os.Open(path)
	if err != nil {
		return Raw{}, fmt.Errorf("failed to open parameters file '%s': %w", path, err)
	}
	defer f.Close()

	var doc struct {
		ParticipantName string    `yaml:"participant_name"`
		Category        string    `yaml:"category"`
		Level           yaml.Node `yaml:"level"`
		Hardcore        bool      `yaml:"hardcore"`
		Platform        string    `yaml:"platform"`
	}
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return Raw{}, fmt.Errorf("failed to decode parameters file '%s': %w", path, err)
	}

	// Level stays a string so that `level: 10` and `level: "10"` reach the
	// validator identically and a malformed value is reported there.
	return Raw{
		ParticipantName: doc.ParticipantName,
		Category:        doc.Category,
		Level:           doc.Level.Value,
		Hardcore:        doc.Hardcore,
		Platform:        doc.Platform,
	}, nil
}
