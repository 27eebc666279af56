package cli

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/pendergraft/permitclaim/pkg/client"
)

var (
	cfgFile    string
	server     string
	apiKey     string
	jsonOutput bool
)

// Execute runs the CLI
func Execute(version string) error {
	rootCmd := &cobra.Command{
		Use:           "permitclaim",
		Short:         "Permit2 reward claim CLI",
		Long:          `permitclaim inspects, imports and claims Permit2 rewards through a permitclaim server.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: permitclaim.toml or .permitclaim.toml)")
	rootCmd.PersistentFlags().StringVar(&server, "server", "", "server URL (default from config)")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "API key for authentication")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print raw JSON responses")

	rootCmd.AddCommand(createListCmd())
	rootCmd.AddCommand(createGetCmd())
	rootCmd.AddCommand(createImportCmd())
	rootCmd.AddCommand(createCheckCmd())
	rootCmd.AddCommand(createClaimCmd())
	rootCmd.AddCommand(createInvalidateCmd())
	rootCmd.AddCommand(createAuthCmd())
	rootCmd.AddCommand(createConfigCmd())

	return rootCmd.Execute()
}

// getServer returns the server URL from flag, env, config file, or default
func getServer() string {
	// 1. Command line flag
	if server != "" {
		return server
	}

	// 2. Environment variable
	if env := os.Getenv("PERMITCLAIM_SERVER"); env != "" {
		return env
	}

	// 3. Project config file (TOML)
	if config := loadProjectConfigSilent(); config != nil && config.Server != "" {
		return config.Server
	}

	// 4. Global config file (YAML)
	if global := loadGlobalConfig(); global != nil && global.Server != "" {
		return global.Server
	}

	// 5. Default
	return "http://localhost:8080"
}

// getAPIKey returns the API key from flag, env, or credentials file
func getAPIKey() string {
	// 1. Command line flag
	if apiKey != "" {
		return apiKey
	}

	// 2. Environment variable
	if env := os.Getenv("PERMITCLAIM_API_KEY"); env != "" {
		return env
	}

	// 3. Credentials file (keyed by server URL)
	if cred := getCredential(getServer()); cred != "" {
		return cred
	}

	return ""
}

func newClient() *client.Client {
	return client.New(getServer(), getAPIKey())
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
