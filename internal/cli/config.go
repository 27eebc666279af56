package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// projectConfigFiles is the search order for project config files
var projectConfigFiles = []string{"permitclaim.toml", ".permitclaim.toml"}

// ProjectConfig is the project-level TOML configuration
type ProjectConfig struct {
	Server      string `toml:"server"`
	NetworkID   int64  `toml:"network_id,omitempty"`  // default --network filter for list
	Beneficiary string `toml:"beneficiary,omitempty"` // default --beneficiary filter for list
}

// GlobalConfig is the user configuration (stored in ~/.permitclaim/config.yaml)
type GlobalConfig struct {
	Server string `yaml:"server"`
}

func createConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration commands",
	}

	cmd.AddCommand(createConfigInitCmd())
	cmd.AddCommand(createConfigShowCmd())

	return cmd
}

func createConfigInitCmd() *cobra.Command {
	var serverURL string
	var beneficiary string
	var networkID int64
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create config file",
		Long: `Create a permitclaim.toml configuration file in the current directory.

EXAMPLES:
  permitclaim config init --server https://claims.example.com
  permitclaim config init --beneficiary 0x4007CE2083c7F3E18097aeB3A39bb8eC149a341d --network 100
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(ProjectConfig{Server: serverURL, NetworkID: networkID, Beneficiary: beneficiary}, force)
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "server URL")
	cmd.Flags().StringVar(&beneficiary, "beneficiary", "", "default beneficiary filter")
	cmd.Flags().Int64Var(&networkID, "network", 0, "default network filter")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing config")

	return cmd
}

func createConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow()
		},
	}
}

func runConfigInit(cfg ProjectConfig, force bool) error {
	configPath := projectConfigFiles[0]

	for _, name := range projectConfigFiles {
		if _, err := os.Stat(name); err == nil && !force {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", name)
		}
	}

	f, err := os.OpenFile(configPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	defer f.Close()

	fmt.Fprintln(f, "# permitclaim project configuration")
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("Created %s\n", configPath)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Run 'permitclaim auth login' to store an API key")
	fmt.Println("  2. Run 'permitclaim import <claim-url>' to store rewards")
	return nil
}

func runConfigShow() error {
	fmt.Println("Configuration sources (in order of precedence):")
	fmt.Println()

	fmt.Println("1. Command line flags")
	fmt.Println("   --server, --api-key, --config")
	fmt.Println()

	fmt.Println("2. Environment variables")
	if v := os.Getenv("PERMITCLAIM_SERVER"); v != "" {
		fmt.Printf("   PERMITCLAIM_SERVER=%s\n", v)
	} else {
		fmt.Println("   PERMITCLAIM_SERVER=(not set)")
	}
	if v := os.Getenv("PERMITCLAIM_API_KEY"); v != "" {
		fmt.Printf("   PERMITCLAIM_API_KEY=%s\n", maskAPIKey(v))
	} else {
		fmt.Println("   PERMITCLAIM_API_KEY=(not set)")
	}
	fmt.Println()

	fmt.Println("3. Project config (permitclaim.toml or .permitclaim.toml)")
	projectConfig, configPath, err := loadProjectConfig()
	switch {
	case os.IsNotExist(err):
		fmt.Println("   (not found)")
	case err != nil:
		fmt.Printf("   Error: %v\n", err)
	default:
		fmt.Printf("   Loaded from: %s\n", configPath)
		if projectConfig.Server != "" {
			fmt.Printf("   server: %s\n", projectConfig.Server)
		}
		if projectConfig.NetworkID != 0 {
			fmt.Printf("   network_id: %d\n", projectConfig.NetworkID)
		}
		if projectConfig.Beneficiary != "" {
			fmt.Printf("   beneficiary: %s\n", projectConfig.Beneficiary)
		}
	}
	fmt.Println()

	fmt.Println("4. Global config (~/.permitclaim/config.yaml)")
	if global := loadGlobalConfig(); global != nil && global.Server != "" {
		fmt.Printf("   server: %s\n", global.Server)
	} else {
		fmt.Println("   (not found)")
	}
	fmt.Println()

	fmt.Println("Effective configuration:")
	fmt.Printf("   Server:  %s\n", getServer())
	if key := getAPIKey(); key != "" {
		fmt.Printf("   API Key: %s\n", maskAPIKey(key))
	} else {
		fmt.Println("   API Key: (not set)")
	}
	return nil
}

// loadProjectConfig loads the project config from the first matching config file.
func loadProjectConfig() (*ProjectConfig, string, error) {
	if cfgFile != "" {
		config, err := loadProjectConfigFromPath(cfgFile)
		if err != nil {
			return nil, cfgFile, err
		}
		return config, cfgFile, nil
	}

	for _, name := range projectConfigFiles {
		if _, err := os.Stat(name); err == nil {
			config, err := loadProjectConfigFromPath(name)
			if err != nil {
				return nil, name, err
			}
			return config, name, nil
		}
	}
	return nil, "", os.ErrNotExist
}

func loadProjectConfigFromPath(path string) (*ProjectConfig, error) {
	var config ProjectConfig
	if _, err := toml.DecodeFile(path, &config); err != nil {
		if os.IsNotExist(err) {
			return nil, err
		}
		return nil, fmt.Errorf("parsing TOML: %w", err)
	}
	return &config, nil
}

// loadProjectConfigSilent returns nil for a missing file and warns on parse failures.
func loadProjectConfigSilent() *ProjectConfig {
	config, _, err := loadProjectConfig()
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load project config: %v\n", err)
		}
		return nil
	}
	return config
}

func loadGlobalConfig() *GlobalConfig {
	data, err := os.ReadFile(filepath.Join(credentialsDir(), "config.yaml"))
	if err != nil {
		return nil
	}
	var cfg GlobalConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to parse global config: %v\n", err)
		return nil
	}
	return &cfg
}
