package config

// ProductConfig is the top-level YAML structure of a product file.
type ProductConfig struct {
	Version string         `yaml:"version" validate:"required"`
	Product string         `yaml:"product" validate:"required"`
	Engine  EngineConf     `yaml:"engine"`
	Blocks  []BlockDef     `yaml:"blocks" validate:"required,min=1,dive"`
	Context map[string]any `yaml:"context"` // forwarded to producers
}

// EngineConf holds session settings.
type EngineConf struct {
	QueueDepth       int    `yaml:"queue_depth" validate:"gte=1"`
	CommandTimeoutMs int    `yaml:"command_timeout_ms" validate:"gte=1"`
	LogLevel         string `yaml:"log_level" validate:"oneof=debug info warn error"`
}

// BlockDef declares one block kind.
type BlockDef struct {
	ID          string   `yaml:"id" validate:"required"`
	Description string   `yaml:"description"`
	DependsOn   []string `yaml:"depends_on"`
	Producers   []string `yaml:"producers"`
	Skip        bool     `yaml:"skip"`
	// Seed, when set, creates the block with this content at startup.
	Seed *string `yaml:"seed,omitempty"`
}
