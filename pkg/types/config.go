// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// ModelBackend identifies the vision model service used for recognition.
type ModelBackend string

const (
	BackendOpenAI ModelBackend = "openai"
	BackendGemini ModelBackend = "gemini"
	BackendVertex ModelBackend = "vertex"
)

// ModelConfig holds settings for the vision model that turns page images
// into Markdown.
type ModelConfig struct {
	// Backend selects the client: openai (any OpenAI-compatible
	// chat/completions endpoint), gemini, or vertex.
	Backend ModelBackend `json:"backend" yaml:"backend" mapstructure:"backend" validate:"oneof=openai gemini vertex"`

	// Name is the model identifier (e.g. "qwen-vl-max", "gemini-2.0-flash").
	Name string `json:"name" yaml:"name" mapstructure:"name"`

	// URL is the base URL of the OpenAI-compatible API; requests go to
	// <url>/chat/completions.
	URL string `json:"url,omitempty" yaml:"url,omitempty" mapstructure:"url"`

	// APIKey authenticates openai and gemini requests. Falls back to
	// .secrets/ when empty.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// Project and Region address Vertex AI.
	Project string `json:"project,omitempty" yaml:"project,omitempty" mapstructure:"project"`
	Region  string `json:"region,omitempty" yaml:"region,omitempty" mapstructure:"region"`

	// MaxRetries is the retry budget for throttled or unavailable calls (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries" validate:"gte=0"`

	// Timeout bounds a single recognition request (default 120s).
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout" validate:"gte=0"`
}

// PDF2ImgConfig holds rasterization settings.
type PDF2ImgConfig struct {
	// DPI is the render resolution (default 200).
	DPI int `json:"dpi" yaml:"dpi" mapstructure:"dpi" validate:"gte=36,lte=1200"`

	// Quality is the JPEG quality 1-100 (default 95).
	Quality int `json:"quality" yaml:"quality" mapstructure:"quality" validate:"gte=1,lte=100"`

	// ThreadCount bounds how many pages render concurrently (default 4).
	ThreadCount int `json:"thread_count" yaml:"thread_count" mapstructure:"thread_count" validate:"gte=1"`

	// PdftoppmPath locates the pdftoppm binary; empty searches PATH.
	PdftoppmPath string `json:"pdftoppm_path,omitempty" yaml:"pdftoppm_path,omitempty" mapstructure:"pdftoppm_path"`

	// MaxWidth downscales wider pages to this width; 0 keeps the rendered size.
	MaxWidth int `json:"max_width" yaml:"max_width" mapstructure:"max_width" validate:"gte=0"`
}

// Img2MarkdownConfig holds page recognition settings.
type Img2MarkdownConfig struct {
	// DelayBetweenRequests paces page requests to the model (default 500ms).
	DelayBetweenRequests time.Duration `json:"delay_between_requests" yaml:"delay_between_requests" mapstructure:"delay_between_requests" validate:"gte=0"`

	// ErrorPlaceholder stands in for a page that could not be recognized.
	// Such pages are dropped from the joined document.
	ErrorPlaceholder string `json:"error_placeholder" yaml:"error_placeholder" mapstructure:"error_placeholder"`
}

// StoreBackend selects where task records live.
type StoreBackend string

const (
	StoreFile      StoreBackend = "file"
	StoreSQLite    StoreBackend = "sqlite"
	StoreFirestore StoreBackend = "firestore"
)

// TaskManagerConfig holds task persistence and run settings.
type TaskManagerConfig struct {
	// TasksDir holds task records, cancel markers and run leases (default "tasks").
	TasksDir string `json:"tasks_dir" yaml:"tasks_dir" mapstructure:"tasks_dir" validate:"required"`

	// TaskFilePrefix prefixes record file names (default "task_").
	TaskFilePrefix string `json:"task_file_prefix" yaml:"task_file_prefix" mapstructure:"task_file_prefix"`

	// Store selects the record backend: file, sqlite, or firestore.
	Store StoreBackend `json:"store" yaml:"store" mapstructure:"store" validate:"oneof=file sqlite firestore"`

	// ItemDelay is the pause between processed items.
	ItemDelay time.Duration `json:"item_delay" yaml:"item_delay" mapstructure:"item_delay" validate:"gte=0"`

	// BatchSize is how many items are processed between two persists (default 1).
	BatchSize int `json:"batch_size" yaml:"batch_size" mapstructure:"batch_size" validate:"gte=1"`

	// Resume skips completed items on start (default true).
	Resume bool `json:"resume" yaml:"resume" mapstructure:"resume"`

	// MaxAttempts caps retries of a failed item across resumes (default 3, 0 = no cap).
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts" mapstructure:"max_attempts" validate:"gte=0"`

	// SkipExisting marks an item skipped when its output already exists.
	SkipExisting bool `json:"skip_existing" yaml:"skip_existing" mapstructure:"skip_existing"`

	FirestoreProject    string `json:"firestore_project,omitempty" yaml:"firestore_project,omitempty" mapstructure:"firestore_project" validate:"required_if=Store firestore"`
	FirestoreCollection string `json:"firestore_collection,omitempty" yaml:"firestore_collection,omitempty" mapstructure:"firestore_collection"`
}

// PathsConfig holds the default input and output roots.
type PathsConfig struct {
	PDFInput       string `json:"pdf_input" yaml:"pdf_input" mapstructure:"pdf_input"`
	ImageOutput    string `json:"image_output" yaml:"image_output" mapstructure:"image_output"`
	MarkdownOutput string `json:"markdown_output" yaml:"markdown_output" mapstructure:"markdown_output"`
}

// SplitMethod selects how a Markdown document is cut into sections.
type SplitMethod string

const (
	SplitAuto    SplitMethod = "auto"
	SplitHeaders SplitMethod = "headers"
	SplitLength  SplitMethod = "length"
)

// SplitConfig holds Markdown splitting settings.
type SplitConfig struct {
	Method SplitMethod `json:"method" yaml:"method" mapstructure:"method" validate:"oneof=auto headers length"`

	// MaxChars is the length cap of a length-split section (default 3000).
	MaxChars int `json:"max_chars" yaml:"max_chars" mapstructure:"max_chars" validate:"gte=1"`

	// MinChars merges shorter sections into the section that follows (default 500).
	MinChars int `json:"min_chars" yaml:"min_chars" mapstructure:"min_chars" validate:"gte=0,ltefield=MaxChars"`

	// MaxHeaderLevel is the deepest heading level that starts a section (default 2).
	MaxHeaderLevel int `json:"max_header_level" yaml:"max_header_level" mapstructure:"max_header_level" validate:"gte=1,lte=6"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `json:"level" yaml:"level" mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `json:"format" yaml:"format" mapstructure:"format" validate:"oneof=console json"`
}

// Config groups every setting the CLI reads from docflow.yaml.
type Config struct {
	Model        ModelConfig        `json:"model" yaml:"model" mapstructure:"model"`
	PDF2Img      PDF2ImgConfig      `json:"pdf2img" yaml:"pdf2img" mapstructure:"pdf2img"`
	Img2Markdown Img2MarkdownConfig `json:"img2markdown" yaml:"img2markdown" mapstructure:"img2markdown"`
	TaskManager  TaskManagerConfig  `json:"task_manager" yaml:"task_manager" mapstructure:"task_manager"`
	Paths        PathsConfig        `json:"paths" yaml:"paths" mapstructure:"paths"`
	Split        SplitConfig        `json:"split" yaml:"split" mapstructure:"split"`
	Log          LogConfig          `json:"log" yaml:"log" mapstructure:"log"`
}

// Prompts holds the model prompts loaded from prompts.yaml.
type Prompts struct {
	Img2Markdown PromptPair `json:"img2markdown" yaml:"img2markdown"`
}

// PromptPair is a system instruction plus the per-image user prompt.
type PromptPair struct {
	System     string `json:"system" yaml:"system"`
	UserPrompt string `json:"user_prompt" yaml:"user_prompt"`
}
