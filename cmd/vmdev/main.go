package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jbweber/vmdev/internal/config"
	"github.com/jbweber/vmdev/internal/output"
)

var (
	version = "dev"
	commit  = "unknown"
)

// Global flags and the state PersistentPreRunE derives from them.
var (
	configPath   string
	logLevel     string
	logFormat    string
	outputFormat string
	noHeaders    bool

	cfg *config.Config
	log *logrus.Logger
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "vmdev",
	Short: "vmdev - VM device model and libvirt device XML codec",
	Long: `vmdev turns declarative VM device descriptions into libvirt domain
device XML and back, and plugs devices into running domains.

Device sets are YAML resources of kind DeviceSet. Host settings such as the
libvirt socket, console directory and lease layout come from
` + config.DefaultPath + ` when present.`,
	Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath, cmd.Flags().Changed("config"))
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		if logFormat != "" {
			cfg.Log.Format = logFormat
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		log, err = cfg.Logger()
		if err != nil {
			return err
		}
		log.SetOutput(os.Stderr)
		return output.ValidateFormat(outputFormat)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", config.DefaultPath, "host configuration file")
	flags.StringVar(&logLevel, "log-level", "", "log level (overrides the config file)")
	flags.StringVar(&logFormat, "log-format", "", "log format: text or json (overrides the config file)")
	flags.StringVarP(&outputFormat, "output", "o", "table", "output format: table, yaml or json")
	flags.BoolVar(&noHeaders, "no-headers", false, "omit table headers")

	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(identifyCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(storeCmd)
	rootCmd.AddCommand(attachCmd)
	rootCmd.AddCommand(detachCmd)
	rootCmd.AddCommand(updateBandwidthCmd)
	rootCmd.AddCommand(setTicketCmd)
	rootCmd.AddCommand(netinfoCmd)
	rootCmd.AddCommand(testConnCmd)
}

func newFormatter() (output.Formatter, error) {
	return output.NewFormatter(output.Options{
		Format:    output.Format(outputFormat),
		NoHeaders: noHeaders,
	})
}

var testConnCmd = &cobra.Command{
	Use:   "test-conn",
	Short: "Test libvirt connection",
	Long:  `Test connectivity to the libvirt daemon and display version information.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("Testing libvirt connection to %s...\n", cfg.Libvirt.Socket)

		client, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		defer closeClient(client)

		fmt.Println("✓ Connected to libvirt daemon")

		if err := client.Ping(); err != nil {
			return fmt.Errorf("connection test failed: %w", err)
		}

		v, err := client.Version()
		if err != nil {
			return fmt.Errorf("failed to get libvirt version: %w", err)
		}
		fmt.Printf("✓ Libvirt version: %s\n", v)

		hostname, err := client.Libvirt().ConnectGetHostname()
		if err != nil {
			return fmt.Errorf("failed to get hostname: %w", err)
		}
		fmt.Printf("✓ Hypervisor hostname: %s\n", hostname)

		fmt.Println("\nConnection test successful!")
		return nil
	},
}
