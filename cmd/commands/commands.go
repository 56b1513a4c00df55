package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/pterm/pterm/putils"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cinderchain/cinder/pkg/core"
	"github.com/cinderchain/cinder/pkg/node"
)

const version = "v0.1.0"

// StartCmd returns the start command.
func StartCmd() *cobra.Command {
	return startCmd
}

// InitCmd returns the init command.
func InitCmd() *cobra.Command {
	return initCmd
}

// VersionCmd returns the version command.
func VersionCmd() *cobra.Command {
	return versionCmd
}

func init() {
	cobra.OnInitialize(initConfig)

	for _, cmd := range []*cobra.Command{startCmd, initCmd, versionCmd} {
		registerFlags(cmd)
	}
}

// registerFlags declares the shared flags and binds them into viper when the
// command runs. Resolution order: explicit flag, then CINDER_* environment
// variable, then config file, then the flag default.
func registerFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("db", "pebble", "Database backend (leveldb, pebble, memory)")
	cmd.PersistentFlags().String("data-dir", defaultDataDir(), "Data directory")
	cmd.PersistentFlags().String("p2p", "0.0.0.0:26656", "P2P listen address")
	cmd.PersistentFlags().String("rpc", "127.0.0.1:26657", "RPC listen address")
	cmd.PersistentFlags().String("chain-id", "cinder-1", "Chain ID")

	cmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		return viper.BindPFlags(cmd.PersistentFlags())
	}
}

// defaultDataDir returns the default data directory.
func defaultDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./.cinder"
	}
	return filepath.Join(homeDir, ".cinder")
}

// initConfig reads the config file and environment overrides.
func initConfig() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME/.cinder")
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("cinder")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		pterm.Info.Println("Using config file:", viper.ConfigFileUsed())
	}
}

func dataDir() string {
	return viper.GetString("data-dir")
}

func genesisPath() string {
	return filepath.Join(dataDir(), "genesis.json")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("cinder", version)
	},
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a cinder node",
	RunE: func(cmd *cobra.Command, args []string) error {
		pterm.DefaultBigText.WithLetters(
			putils.LettersFromStringWithStyle("Cin", pterm.FgRed.ToStyle()),
			putils.LettersFromStringWithStyle("der", pterm.FgDarkGray.ToStyle()),
		).Render()

		logger := slog.New(pterm.NewSlogHandler(&pterm.DefaultLogger))

		genesis, err := core.GenesisFromJSON(genesisPath())
		if err != nil {
			pterm.Info.Println("No genesis file found, using defaults. Run `cinder init` to create one.")
			genesis = core.DefaultGenesis()
			genesis.ChainID = viper.GetString("chain-id")
		}

		n, err := node.New(node.Config{
			DataDir:    dataDir(),
			DBBackend:  viper.GetString("db"),
			ListenAddr: viper.GetString("p2p"),
			RPCAddr:    viper.GetString("rpc"),
			Genesis:    genesis,
			Logger:     logger,
		})
		if err != nil {
			return err
		}
		if err := n.Start(); err != nil {
			return err
		}

		pterm.Info.Printfln("RPC listening on %s", viper.GetString("rpc"))
		pterm.Info.Println("Node started. Press Ctrl+C to stop.")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		pterm.Info.Println("Shutting down...")
		n.Stop()
		return nil
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the data directory and genesis file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := os.MkdirAll(dataDir(), 0700); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}

		if _, err := os.Stat(genesisPath()); err == nil {
			return fmt.Errorf("genesis file already exists at %s", genesisPath())
		}

		genesis := core.DefaultGenesis()
		genesis.ChainID = viper.GetString("chain-id")
		if err := genesis.ToJSON(genesisPath()); err != nil {
			return fmt.Errorf("writing genesis file: %w", err)
		}

		pterm.Success.Printfln("Genesis configuration saved to %s", genesisPath())
		return nil
	},
}
