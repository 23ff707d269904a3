package cmd

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/killallgit/vidchat/pkg/config"
	"github.com/killallgit/vidchat/pkg/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "vidchat",
	Short: "Chat with your video library",
	Long: `Ask an assistant to find moments in an indexed video library.
Replies stream into the terminal together with the matching clips.`,
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
	RunE:              runChat,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is .vidchat/settings.yaml)")

	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level")
	viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.PersistentFlags().StringP("transport", "t", config.TransportAgent, "stream source: text, agent or langchain")
	viper.BindPFlag("transport.kind", rootCmd.PersistentFlags().Lookup("transport"))

	rootCmd.PersistentFlags().String("index-id", "", "video index to search")
	viper.BindPFlag("agent.index_id", rootCmd.PersistentFlags().Lookup("index-id"))

	rootCmd.PersistentFlags().Bool("json", false, "show attached clips as highlighted JSON")
	viper.BindPFlag("render.highlight_json", rootCmd.PersistentFlags().Lookup("json"))

	rootCmd.PersistentFlags().StringP("prompt", "p", "", "ask a single question and exit")

	rootCmd.AddCommand(chatCmd)
}

func initConfig(cmd *cobra.Command, args []string) error {
	// A missing .env is fine
	_ = godotenv.Load()

	if _, err := config.Load(cfgFile); err != nil {
		return err
	}
	if err := logger.Init(); err != nil {
		return err
	}
	if used := config.GetConfigFileUsed(); used != "" {
		logger.Debug("Using config file", "path", used)
	}
	return nil
}
