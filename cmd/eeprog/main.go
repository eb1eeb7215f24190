//go:build !(rp2040 || rp2350)

// Command eeprog reads and programs 24Cxx EEPROMs from a workstation through
// a Bus Pirate, or against a simulated part with --sim.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"eeprog-go/services/config"
	"eeprog-go/services/console"
	"eeprog-go/services/programmer"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	flagPort     string
	flagDevice   string
	flagSim      bool
	flagLogLevel string
	flagAddress  uint8
	flagBusHz    uint32
	flagVerify   bool
	flagOut      string

	log zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "eeprog",
	Short: "Read and program 24Cxx serial EEPROMs",
	Long: `Read and program 24Cxx serial EEPROMs over a Bus Pirate in binary I2C mode.

Bus Pirate connections:
  - GND  -> GND
  - MOSI -> SDA
  - CLK  -> SCL
  - 3.3V -> VCC (the supply and pull-ups are switched on)

Examples:
  eeprog dump --port /dev/ttyUSB0 -o camera.hex
  eeprog program --port /dev/ttyUSB0 --verify camera.hex
  eeprog console --sim`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		lvl, err := zerolog.ParseLevel(flagLogLevel)
		if err != nil {
			return errors.Wrapf(err, "log level %q", flagLogLevel)
		}
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(lvl).With().Timestamp().Logger()
		return nil
	},
}

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Write the profile's dump range as Intel hex",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := openTarget()
		if err != nil {
			return err
		}
		defer t.Close()

		out := os.Stdout
		if flagOut != "" && flagOut != "-" {
			f, err := os.Create(flagOut)
			if err != nil {
				return errors.Wrap(err, "creating dump file")
			}
			defer f.Close()
			out = f
		}
		w := bufio.NewWriter(out)
		start, end := t.profile.DumpRange()
		n, err := programmer.Dump(cmd.Context(), t.dev, w, start, end, log)
		if ferr := w.Flush(); err == nil {
			err = ferr
		}
		if err != nil {
			return err
		}
		log.Info().Int("bytes", n).Uint16("start", start).Int("end", end).Msg("dumped")
		return nil
	},
}

var programCmd = &cobra.Command{
	Use:   "program <file.hex>",
	Short: "Program an Intel hex file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return errors.Wrap(err, "opening hex file")
		}
		defer f.Close()

		t, err := openTarget()
		if err != nil {
			return err
		}
		defer t.Close()

		_, err = programmer.Program(cmd.Context(), t.dev, f, programmer.Options{Verify: flagVerify, Log: log})
		return errors.Wrap(err, args[0])
	},
}

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Run the interactive programmer menu on stdin/stdout",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := openTarget()
		if err != nil {
			return err
		}
		defer t.Close()

		start, end := t.profile.DumpRange()
		s := console.New(bufio.NewReader(os.Stdin), os.Stdout, t.dev, console.Config{
			DumpStart: start,
			DumpEnd:   end,
		})
		return s.Run(cmd.Context())
	},
}

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "List the addresses that acknowledge on the bus",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := openTarget()
		if err != nil {
			return err
		}
		defer t.Close()

		found, err := programmer.Scan(t.i2c, log)
		if err != nil {
			return err
		}
		want := uint16(t.dev.SlaveAddress(0))
		for _, a := range found {
			mark := ""
			if a == want {
				mark = "  <- " + t.profile.Device
			}
			fmt.Printf("0x%02X%s\n", a, mark)
		}
		if len(found) == 0 {
			log.Warn().Msg("no target answered")
		}
		return nil
	},
}

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List the embedded device profiles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, id := range config.Devices() {
			p, err := config.Load(id)
			if err != nil {
				return err
			}
			fmt.Printf("%-16s %-8s addr=0x%02X bus=%dHz\n", id, p.Family, p.Address, p.BusHz)
		}
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flagPort, "port", "p", "", "Bus Pirate serial port")
	pf.StringVarP(&flagDevice, "device", "d", config.DefaultDevice, "device profile ("+strings.Join(config.Devices(), ", ")+")")
	pf.BoolVar(&flagSim, "sim", false, "use a simulated part instead of a Bus Pirate")
	pf.StringVar(&flagLogLevel, "log-level", "info", "log level (debug, info, warn, error)")
	pf.Uint8Var(&flagAddress, "address", 0, "7-bit slave address (overrides the profile)")
	pf.Uint32Var(&flagBusHz, "bus-hz", 0, "bus clock in Hz (overrides the profile)")

	programCmd.Flags().BoolVar(&flagVerify, "verify", false, "read every record back after writing it")
	dumpCmd.Flags().StringVarP(&flagOut, "output", "o", "-", "output file")

	rootCmd.AddCommand(dumpCmd, programCmd, consoleCmd, probeCmd, profilesCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "eeprog:", err)
		os.Exit(1)
	}
}
