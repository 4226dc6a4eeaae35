package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ppiankov/hopqa/internal/model"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage hopqa configuration",
	Long: `Manage hopqa configuration files and settings.

Configuration hierarchy (highest to lowest priority):
1. CLI flags
2. Environment variables (HOPQA_*, e.g. HOPQA_CONCURRENCY_WORKERS)
3. Config file (./hopqa.yaml or ~/.hopqa/config.yaml)
4. Defaults`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the effective configuration after merging defaults, config file, env vars and flags. API keys are masked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		if configFile := viper.ConfigFileUsed(); configFile != "" && fileExists(configFile) {
			fmt.Fprintf(os.Stderr, "Configuration file: %s\n\n", configFile)
		} else {
			fmt.Fprintf(os.Stderr, "No configuration file found (using defaults)\n\n")
		}

		cfg.LLM.APIKey = maskKey(cfg.LLM.APIKey)
		cfg.Vision.APIKey = maskKey(cfg.Vision.APIKey)

		fmt.Println("═══════════════════════════════════════════════════════════")
		fmt.Println("  Current Configuration")
		fmt.Println("═══════════════════════════════════════════════════════════")
		fmt.Println()

		yamlData, err := yaml.Marshal(cfg)
		if err != nil {
			return eris.Wrap(err, "marshal config")
		}
		fmt.Println(string(yamlData))

		fmt.Println("═══════════════════════════════════════════════════════════")
		fmt.Println()
		fmt.Println("Configuration hierarchy (highest to lowest priority):")
		fmt.Println("  1. CLI flags")
		fmt.Println("  2. Environment variables (HOPQA_*, OPENAI_API_KEY, ANTHROPIC_API_KEY,")
		fmt.Println("     OPEN_MODEL_API_KEY, OPEN_MODEL_API_BASE, OLLAMA_BASE_URL)")
		fmt.Println("  3. Config file (./hopqa.yaml or ~/.hopqa/config.yaml)")
		fmt.Println("  4. Defaults")
		fmt.Println()

		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize default configuration file",
	Long:  `Create a default configuration file at ~/.hopqa/config.yaml with all available options.`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		home, err := os.UserHomeDir()
		if err != nil {
			return eris.Wrap(err, "find home directory")
		}

		configDir := filepath.Join(home, ".hopqa")
		configPath := filepath.Join(configDir, "config.yaml")

		if _, err := os.Stat(configPath); err == nil {
			return eris.Errorf("config file already exists: %s\nUse 'hopqa config show' to view it, or delete it first to recreate", configPath)
		}

		if err := os.MkdirAll(configDir, 0755); err != nil {
			return eris.Wrap(err, "create config directory")
		}

		yamlData, err := yaml.Marshal(model.DefaultConfig())
		if err != nil {
			return eris.Wrap(err, "marshal config")
		}

		var b strings.Builder
		b.WriteString("# hopqa configuration file\n")
		b.WriteString("#\n")
		b.WriteString("# Configuration hierarchy (highest to lowest priority):\n")
		b.WriteString("#   1. CLI flags\n")
		b.WriteString("#   2. Environment variables (HOPQA_*)\n")
		b.WriteString("#   3. This config file\n")
		b.WriteString("#   4. Built-in defaults\n")
		b.WriteString("#\n")
		b.WriteString("# range.end <= 0 processes every caption file from range.start on.\n")
		b.WriteString("# retry.max_retries counts total attempts per oracle call.\n\n")
		b.Write(yamlData)
		b.WriteString("\n# API keys (recommended to use environment variables instead):\n")
		b.WriteString("#   export OPENAI_API_KEY=sk-...\n")
		b.WriteString("#   export ANTHROPIC_API_KEY=sk-ant-...\n")
		b.WriteString("#   export OPEN_MODEL_API_KEY=...       # fallback for either provider\n")
		b.WriteString("#   export OPEN_MODEL_API_BASE=https://...\n")
		b.WriteString("#   export OLLAMA_BASE_URL=http://localhost:11434\n")

		if err := os.WriteFile(configPath, []byte(b.String()), 0600); err != nil {
			return eris.Wrap(err, "write config file")
		}

		fmt.Printf("✓ Created default configuration: %s\n", configPath)
		fmt.Printf("\nTo view the configuration:\n")
		fmt.Printf("  hopqa config show\n")
		fmt.Printf("\nTo customize, edit the file with your preferred editor:\n")
		fmt.Printf("  $EDITOR %s\n", configPath)
		fmt.Printf("\n")

		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}

// setDefaults registers every key of the default config with v. Viper only
// consults the environment for keys it knows about, so this is what makes
// HOPQA_* overrides work without a config file.
func setDefaults(v *viper.Viper) {
	data, err := yaml.Marshal(model.DefaultConfig())
	if err != nil {
		return
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return
	}
	setDefaultTree(v, "", tree)

	// omitempty keys never appear in the marshaled defaults
	for _, section := range []string{"llm", "vision"} {
		for _, key := range []string{"api_key", "http_proxy", "https_proxy", "no_proxy"} {
			v.SetDefault(section+"."+key, "")
		}
	}
}

func setDefaultTree(v *viper.Viper, prefix string, tree map[string]any) {
	for k, val := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := val.(map[string]any); ok {
			setDefaultTree(v, key, sub)
			continue
		}
		v.SetDefault(key, val)
	}
}

// loadConfig decodes the merged viper state into a Config
func loadConfig() (model.Config, error) {
	return decodeConfig(viper.GetViper())
}

func decodeConfig(v *viper.Viper) (model.Config, error) {
	var cfg model.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, eris.Wrap(err, "decode configuration")
	}
	if v.GetBool("verbose") {
		cfg.Log.Level = "debug"
	}

	defaults := model.DefaultConfig()
	applyEnvFallbacks(&cfg.LLM, defaults.LLM)
	applyEnvFallbacks(&cfg.Vision, defaults.Vision)
	return cfg, nil
}

// applyEnvFallbacks fills an unset API key from the provider's conventional
// variable, then from OPEN_MODEL_API_KEY. A base URL still at its default is
// replaced by OPEN_MODEL_API_BASE, or OLLAMA_BASE_URL for ollama.
func applyEnvFallbacks(c *model.LLMConfig, def model.LLMConfig) {
	provider := strings.ToLower(c.Provider)

	if c.APIKey == "" {
		switch provider {
		case "openai":
			c.APIKey = os.Getenv("OPENAI_API_KEY")
		case "anthropic", "claude":
			c.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}
	if c.APIKey == "" && provider != "ollama" {
		c.APIKey = os.Getenv("OPEN_MODEL_API_KEY")
	}

	if c.BaseURL != "" && c.BaseURL != def.BaseURL {
		return
	}
	if provider == "ollama" {
		if u := os.Getenv("OLLAMA_BASE_URL"); u != "" {
			c.BaseURL = u
		}
		return
	}
	if u := os.Getenv("OPEN_MODEL_API_BASE"); u != "" {
		c.BaseURL = u
	}
}

func maskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}
