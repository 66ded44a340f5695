package services

import (
	"strings"
	"time"

	"github.com/temirov/paperdigest/internal/arxiv"
	"github.com/temirov/paperdigest/internal/llm"
	"github.com/temirov/paperdigest/internal/pipeline"
	"github.com/temirov/paperdigest/internal/publish"
	"github.com/temirov/paperdigest/internal/server"
	pathutils "github.com/temirov/paperdigest/internal/utils/path"
)

const (
	// DefaultPapersDirectory holds one JSON document per paper.
	DefaultPapersDirectory = "data/papers"
	// DefaultSettingsPath is the analysis settings document.
	DefaultSettingsPath = "data/config.json"
	// DefaultAPIKeySource names where the chat-completion API key is read from.
	DefaultAPIKeySource = "env:DEEPSEEK_API_KEY"
)

// Configuration groups the domain sections of the application configuration.
type Configuration struct {
	Storage  StorageConfiguration  `mapstructure:"storage"`
	Arxiv    ArxivConfiguration    `mapstructure:"arxiv"`
	LLM      LLMConfiguration      `mapstructure:"llm"`
	Publish  publish.Options       `mapstructure:"publish"`
	Pipeline PipelineConfiguration `mapstructure:"pipeline"`
	Server   server.Options        `mapstructure:"server"`
}

// StorageConfiguration locates the paper documents and the settings document.
type StorageConfiguration struct {
	PapersDirectory string `mapstructure:"papers_dir"`
	SettingsPath    string `mapstructure:"settings_path"`
}

// ArxivConfiguration overrides the arXiv endpoints and politeness intervals.
type ArxivConfiguration struct {
	APIURL         string        `mapstructure:"api_url"`
	HTMLBaseURL    string        `mapstructure:"html_base_url"`
	UserAgent      string        `mapstructure:"user_agent"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	QueryInterval  time.Duration `mapstructure:"query_interval"`
	HTMLInterval   time.Duration `mapstructure:"html_interval"`
}

// LLMConfiguration selects the OpenAI-compatible chat endpoint.
type LLMConfiguration struct {
	BaseURL        string        `mapstructure:"base_url"`
	Model          string        `mapstructure:"model"`
	ReasoningModel string        `mapstructure:"reasoning_model"`
	APIKeySource   string        `mapstructure:"api_key_source"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// PipelineConfiguration declares the unattended run.
// A zero Interval follows the fetch_interval of the settings document.
type PipelineConfiguration struct {
	Steps    []pipeline.StepConfiguration `mapstructure:"steps"`
	Cleanup  bool                         `mapstructure:"cleanup"`
	Interval time.Duration                `mapstructure:"interval"`
}

// Sanitize trims values and applies defaults to every section.
func (configuration Configuration) Sanitize() Configuration {
	sanitized := configuration
	sanitized.Storage = configuration.Storage.Sanitize()
	sanitized.Arxiv = configuration.Arxiv.Sanitize()
	sanitized.LLM = configuration.LLM.Sanitize()
	sanitized.Publish = configuration.Publish.Sanitize()
	sanitized.Server = configuration.Server.Sanitize()
	return sanitized
}

// Sanitize applies the default storage locations and expands a leading ~.
func (configuration StorageConfiguration) Sanitize() StorageConfiguration {
	homeExpander := pathutils.NewHomeExpander()
	return StorageConfiguration{
		PapersDirectory: homeExpander.ResolveDirectory(configuration.PapersDirectory, DefaultPapersDirectory),
		SettingsPath:    homeExpander.ResolveDirectory(configuration.SettingsPath, DefaultSettingsPath),
	}
}

// Sanitize applies the public arXiv endpoints.
func (configuration ArxivConfiguration) Sanitize() ArxivConfiguration {
	sanitized := configuration
	sanitized.APIURL = defaultIfBlank(configuration.APIURL, arxiv.DefaultAPIURL)
	sanitized.HTMLBaseURL = defaultIfBlank(configuration.HTMLBaseURL, arxiv.DefaultHTMLBaseURL)
	sanitized.UserAgent = defaultIfBlank(configuration.UserAgent, arxiv.DefaultUserAgent)
	return sanitized
}

// Sanitize applies the DeepSeek defaults.
func (configuration LLMConfiguration) Sanitize() LLMConfiguration {
	sanitized := configuration
	sanitized.BaseURL = defaultIfBlank(configuration.BaseURL, llm.DefaultBaseURL)
	sanitized.Model = defaultIfBlank(configuration.Model, llm.DefaultModel)
	sanitized.ReasoningModel = defaultIfBlank(configuration.ReasoningModel, llm.DefaultReasoningModel)
	sanitized.APIKeySource = defaultIfBlank(configuration.APIKeySource, DefaultAPIKeySource)
	return sanitized
}

// StepConfiguration returns the declared steps, or the default run when none are declared.
func (configuration PipelineConfiguration) StepConfiguration() pipeline.Configuration {
	if len(configuration.Steps) == 0 {
		return pipeline.DefaultConfiguration()
	}
	return pipeline.Configuration{Steps: configuration.Steps}
}

func defaultIfBlank(value string, fallback string) string {
	trimmed := strings.TrimSpace(value)
	if len(trimmed) == 0 {
		return fallback
	}
	return trimmed
}
