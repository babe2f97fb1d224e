package classsync

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// CurriculumShape fixes the curriculum geometry used when converting a
// (unit, lesson) position into a completion percentage.
type CurriculumShape struct {
	TotalUnits     int `yaml:"total_units" json:"total_units"`
	LessonsPerUnit int `yaml:"lessons_per_unit" json:"lessons_per_unit"`
}

// TotalLessons returns the number of lessons in the whole curriculum.
func (s CurriculumShape) TotalLessons() int {
	return s.TotalUnits * s.LessonsPerUnit
}

// Config holds the tunable behavior of the engine.
type Config struct {
	// ConflictResolution selects how detected conflicts are handled:
	// merge (default, auto-resolve where safe), manual, or delayed.
	ConflictResolution ResolutionMode `yaml:"conflict_resolution" json:"conflict_resolution"`

	// MaxBatchSize caps the number of content ids accepted by a single
	// BatchSynchronize call.
	MaxBatchSize int `yaml:"max_batch_size" json:"max_batch_size"`

	// ContentPriorities maps content types to operation priority.
	ContentPriorities map[ContentType]Priority `yaml:"content_priorities" json:"content_priorities"`

	// Curriculum is the shape used for progress percentage computation.
	Curriculum CurriculumShape `yaml:"curriculum" json:"curriculum"`

	// DeviationThreshold is the percentage-point deviation above which
	// catch-up actions are recommended.
	DeviationThreshold float64 `yaml:"deviation_threshold" json:"deviation_threshold"`
}

// DefaultConfig returns the engine defaults: automatic merge resolution,
// batches of at most 50 content ids, lesson content prioritized over
// assignments and materials, a 10x10 curriculum, and a 20-point
// deviation threshold.
func DefaultConfig() Config {
	return Config{
		ConflictResolution: ModeMerge,
		MaxBatchSize:       50,
		ContentPriorities: map[ContentType]Priority{
			ContentLesson:     PriorityHigh,
			ContentAssignment: PriorityMedium,
			ContentMaterial:   PriorityLow,
		},
		Curriculum: CurriculumShape{
			TotalUnits:     10,
			LessonsPerUnit: 10,
		},
		DeviationThreshold: 20,
	}
}

// Validate checks the configuration for contract violations.
func (c Config) Validate() error {
	if !c.ConflictResolution.IsValid() {
		return fmt.Errorf("invalid conflict_resolution mode %q", c.ConflictResolution)
	}
	if c.MaxBatchSize <= 0 {
		return fmt.Errorf("max_batch_size must be positive, got %d", c.MaxBatchSize)
	}
	if c.Curriculum.TotalUnits <= 0 || c.Curriculum.LessonsPerUnit <= 0 {
		return fmt.Errorf("curriculum shape must be positive, got %dx%d",
			c.Curriculum.TotalUnits, c.Curriculum.LessonsPerUnit)
	}
	if c.DeviationThreshold < 0 {
		return fmt.Errorf("deviation_threshold must be non-negative, got %v", c.DeviationThreshold)
	}
	for contentType, priority := range c.ContentPriorities {
		switch priority {
		case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		default:
			return fmt.Errorf("invalid priority %q for content type %q", priority, contentType)
		}
	}
	return nil
}

// PriorityFor returns the configured priority for a content type, falling
// back to medium for unknown types.
func (c Config) PriorityFor(contentType ContentType) Priority {
	if p, ok := c.ContentPriorities[contentType]; ok {
		return p
	}
	return PriorityMedium
}

// ParseConfig unmarshals a YAML configuration document on top of the
// defaults, so partial files only override what they mention.
func ParseConfig(data []byte) (Config, error) {
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

// LoadConfig reads and parses a YAML configuration file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return ParseConfig(data)
}
