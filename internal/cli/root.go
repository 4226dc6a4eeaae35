package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is overridden at build time with -ldflags "-X ..."
var version = "v0.1.0"

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "hopqa",
	Short: "hopqa - multi-hop video QA curation pipeline",
	Long: `hopqa turns per-video caption logs into a filtered set of multi-hop
question/answer pairs.

Six stages run in order, each reading the previous stage's results directory:
  1. generate    oracle writes candidate questions from the temporal log
  2. dedup       drop candidates that cite the same segment twice
  3. leakage     batch audit for answers leaked by their question
  4. logic       check the answer follows from the cited segments
  5. necessity   check no proper subset of segments is enough
  6. visual      vision oracle checks the answer against the clips

Every stage can be re-run: finished work is skipped.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Display the version number of hopqa.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("hopqa %s\n", version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./hopqa.yaml or $HOME/.hopqa/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	setDefaults(viper.GetViper())

	switch {
	case cfgFile != "":
		viper.SetConfigFile(cfgFile)
	case fileExists(localConfigFile):
		viper.SetConfigFile(localConfigFile)
	default:
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}
		viper.AddConfigPath(filepath.Join(home, ".hopqa"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// HOPQA_LLM_BASE_URL overrides llm.base_url, and so on
	viper.SetEnvPrefix("HOPQA")
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

const localConfigFile = "hopqa.yaml"

var envKeyReplacer = strings.NewReplacer(".", "_")

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
