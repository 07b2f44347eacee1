package config

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Config", func() {
	var (
		tempDir    string
		configFile string
	)

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "config-test")
		Expect(err).NotTo(HaveOccurred())
		configFile = filepath.Join(tempDir, "config.yaml")
	})

	AfterEach(func() {
		os.RemoveAll(tempDir)
	})

	Describe("Load", func() {
		Context("when config file exists with valid content", func() {
			BeforeEach(func() {
				validConfig := `
server:
  webhook_port: "8080"
  metrics_port: "9090"

llm:
  endpoint: "http://localhost:11434"
  model: "codellama"
  timeout: "300s"
  retry_count: 3
  provider: "local"
  temperature: 0.3
  max_tokens: 500

registry:
  url: "https://registry.internal.example.com"
  namespace: "apm-repo"

generator:
  dry_run: false
  max_concurrent: 5
  cooldown_period: "5m"
  max_fix_attempts: 10
  strict_fix_policy: false
  monitor_interval: "30s"
  discovery_timeout: "10s"
  max_progress_events: 200
  workspace_ttl: "1h"

filters:
  - name: "production-filter"
    conditions:
      platform:
        - "hosted-pipeline"
        - "runner-service"
      branch:
        - "main"
        - "release"

logging:
  level: "info"
  format: "json"

webhook:
  port: "8080"
  path: "/webhook"
`
				err := os.WriteFile(configFile, []byte(validConfig), 0644)
				Expect(err).NotTo(HaveOccurred())
			})

			It("should load configuration successfully", func() {
				config, err := Load(configFile)
				Expect(err).NotTo(HaveOccurred())
				Expect(config).NotTo(BeNil())

				Expect(config.Server.WebhookPort).To(Equal("8080"))
				Expect(config.Server.MetricsPort).To(Equal("9090"))

				Expect(config.LLM.Endpoint).To(Equal("http://localhost:11434"))
				Expect(config.LLM.Model).To(Equal("codellama"))
				Expect(config.LLM.Timeout).To(Equal(300 * time.Second))
				Expect(config.LLM.RetryCount).To(Equal(3))
				Expect(config.LLM.Provider).To(Equal("local"))
				Expect(config.LLM.Temperature).To(Equal(float32(0.3)))
				Expect(config.LLM.MaxTokens).To(Equal(500))

				Expect(config.Registry.URL).To(Equal("https://registry.internal.example.com"))
				Expect(config.Registry.Namespace).To(Equal("apm-repo"))

				Expect(config.Generator.DryRun).To(BeFalse())
				Expect(config.Generator.MaxConcurrent).To(Equal(5))
				Expect(config.Generator.CooldownPeriod).To(Equal(5 * time.Minute))
				Expect(config.Generator.MaxFixAttempts).To(Equal(10))
				Expect(config.Generator.MaxProgressEvents).To(Equal(200))

				Expect(config.Filters).To(HaveLen(1))
				Expect(config.Filters[0].Name).To(Equal("production-filter"))
				Expect(config.Filters[0].Conditions["platform"]).To(ContainElements("hosted-pipeline", "runner-service"))
				Expect(config.Filters[0].Conditions["branch"]).To(ContainElements("main", "release"))

				Expect(config.Logging.Level).To(Equal("info"))
				Expect(config.Logging.Format).To(Equal("json"))

				Expect(config.Webhook.Port).To(Equal("8080"))
				Expect(config.Webhook.Path).To(Equal("/webhook"))
			})
		})

		Context("when config file has minimal content", func() {
			BeforeEach(func() {
				minimalConfig := `
server:
  webhook_port: "3000"

llm:
  endpoint: "http://localhost:8080"
  model: "test-model"
  provider: "local"
`
				err := os.WriteFile(configFile, []byte(minimalConfig), 0644)
				Expect(err).NotTo(HaveOccurred())
			})

			It("should load with defaults for missing values", func() {
				config, err := Load(configFile)
				Expect(err).NotTo(HaveOccurred())

				Expect(config.Server.WebhookPort).To(Equal("3000"))
				Expect(config.LLM.Endpoint).To(Equal("http://localhost:8080"))
				Expect(config.LLM.Model).To(Equal("test-model"))

				Expect(config.Registry.Namespace).To(Equal("default"))
				Expect(config.Generator.MaxConcurrent).To(Equal(5))
				Expect(config.Generator.MaxFixAttempts).To(Equal(10))
				Expect(config.LLM.Provider).To(Equal("local"))
			})
		})

		Context("when config file does not exist", func() {
			It("should return an error", func() {
				_, err := Load("/nonexistent/config.yaml")
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("failed to read config file"))
			})
		})

		Context("when config file has invalid YAML", func() {
			BeforeEach(func() {
				invalidConfig := `
server:
  webhook_port: "8080"
  invalid_yaml: [
llm:
  endpoint: "test"
`
				err := os.WriteFile(configFile, []byte(invalidConfig), 0644)
				Expect(err).NotTo(HaveOccurred())
			})

			It("should return an error", func() {
				_, err := Load(configFile)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("failed to parse config file"))
			})
		})

		Context("when config has invalid duration formats", func() {
			BeforeEach(func() {
				invalidDurationConfig := `
server:
  webhook_port: "8080"

llm:
  endpoint: "http://localhost:11434"
  model: "test"
  timeout: "invalid-duration"
  provider: "local"

generator:
  cooldown_period: "not-a-duration"
`
				err := os.WriteFile(configFile, []byte(invalidDurationConfig), 0644)
				Expect(err).NotTo(HaveOccurred())
			})

			It("should return an error", func() {
				_, err := Load(configFile)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("failed to parse config file"))
			})
		})
	})

	Describe("validate", func() {
		var config *Config

		BeforeEach(func() {
			config = &Config{
				Server: ServerConfig{
					WebhookPort: "8080",
					MetricsPort: "9090",
				},
				LLM: LLMConfig{
					Endpoint:    "http://localhost:11434",
					Model:       "codellama",
					Timeout:     300 * time.Second,
					RetryCount:  3,
					Provider:    "local",
					Temperature: 0.3,
					MaxTokens:   500,
				},
				Registry: RegistryConfig{
					URL:       "https://registry.internal.example.com",
					Namespace: "apm-repo",
				},
				Generator: GeneratorConfig{
					DryRun:         false,
					MaxConcurrent:  5,
					CooldownPeriod: 5 * time.Minute,
				},
				Logging: LoggingConfig{
					Level:  "info",
					Format: "json",
				},
			}
		})

		Context("when config is valid", func() {
			It("should pass validation", func() {
				err := validate(config)
				Expect(err).NotTo(HaveOccurred())
			})
		})

		Context("when LLM provider is invalid", func() {
			BeforeEach(func() {
				config.LLM.Provider = "invalid"
			})

			It("should return validation error", func() {
				err := validate(config)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("unsupported LLM provider"))
			})
		})

		Context("when LLM endpoint is missing", func() {
			BeforeEach(func() {
				config.LLM.Endpoint = ""
			})

			It("should set default endpoint", func() {
				err := validate(config)
				Expect(err).NotTo(HaveOccurred())
				Expect(config.LLM.Endpoint).To(Equal("http://localhost:8080"))
			})
		})

		Context("when LLM model is missing", func() {
			BeforeEach(func() {
				config.LLM.Model = ""
			})

			It("should return validation error", func() {
				err := validate(config)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("LLM model is required for local provider"))
			})
		})

		Context("when LLM temperature is out of range", func() {
			BeforeEach(func() {
				config.LLM.Temperature = 1.5
			})

			It("should return validation error", func() {
				err := validate(config)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("LLM temperature must be between 0.0 and 1.0"))
			})
		})

		Context("when LLM max tokens is invalid", func() {
			BeforeEach(func() {
				config.LLM.MaxTokens = 0
			})

			It("should return validation error", func() {
				err := validate(config)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("LLM max tokens must be greater than 0"))
			})
		})

		Context("when registry namespace is empty", func() {
			BeforeEach(func() {
				config.Registry.Namespace = ""
			})

			It("should return validation error", func() {
				err := validate(config)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("registry namespace is required"))
			})
		})

		Context("when max concurrent generations is invalid", func() {
			BeforeEach(func() {
				config.Generator.MaxConcurrent = 0
			})

			It("should return validation error", func() {
				err := validate(config)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("max concurrent generations must be greater than 0"))
			})
		})

		Context("when max concurrent generations is negative", func() {
			BeforeEach(func() {
				config.Generator.MaxConcurrent = -1
			})

			It("should return validation error", func() {
				err := validate(config)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("max concurrent generations must be greater than 0"))
			})
		})

		Context("when LLM retry count is negative", func() {
			BeforeEach(func() {
				config.LLM.RetryCount = -1
			})

			It("should pass validation", func() {
				err := validate(config)
				Expect(err).NotTo(HaveOccurred())
			})
		})

		Context("when cooldown period is negative", func() {
			BeforeEach(func() {
				config.Generator.CooldownPeriod = -1 * time.Minute
			})

			It("should pass validation", func() {
				err := validate(config)
				Expect(err).NotTo(HaveOccurred())
			})
		})

		Context("when LLM timeout is negative", func() {
			BeforeEach(func() {
				config.LLM.Timeout = -1 * time.Second
			})

			It("should pass validation", func() {
				err := validate(config)
				Expect(err).NotTo(HaveOccurred())
			})
		})
	})

	Describe("loadFromEnv", func() {
		var config *Config

		BeforeEach(func() {
			config = &Config{}
			os.Clearenv()
		})

		Context("when environment variables are set", func() {
			BeforeEach(func() {
				os.Setenv("LLM_ENDPOINT", "http://test:8080")
				os.Setenv("LLM_MODEL", "test-model")
				os.Setenv("LLM_PROVIDER", "local")
				os.Setenv("WEBHOOK_PORT", "3000")
				os.Setenv("METRICS_PORT", "9999")
				os.Setenv("LOG_LEVEL", "debug")
				os.Setenv("DRY_RUN", "true")
			})

			AfterEach(func() {
				os.Clearenv()
			})

			It("should load values from environment", func() {
				err := loadFromEnv(config)
				Expect(err).NotTo(HaveOccurred())

				Expect(config.LLM.Endpoint).To(Equal("http://test:8080"))
				Expect(config.LLM.Model).To(Equal("test-model"))
				Expect(config.LLM.Provider).To(Equal("local"))
				Expect(config.Server.WebhookPort).To(Equal("3000"))
				Expect(config.Server.MetricsPort).To(Equal("9999"))
				Expect(config.Logging.Level).To(Equal("debug"))
				Expect(config.Generator.DryRun).To(BeTrue())
			})
		})

		Context("when no environment variables are set", func() {
			It("should not modify config", func() {
				originalConfig := *config
				err := loadFromEnv(config)
				Expect(err).NotTo(HaveOccurred())
				Expect(*config).To(Equal(originalConfig))
			})
		})
	})
})
