// Package cmd implements the mercury command line using cobra.
package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/truebasic2011/mercury/internal/config"
)

const longHelp = `mercury reads packets from a network interface or a capture file, extracts
fingerprint metadata (TCP SYN, TLS ClientHello, HTTP request, DNS query) and
writes either JSON fingerprint records or selected packets in PCAP format.

Exactly one input is required: [-c or --capture] an interface, [-r or --read]
a pcap/pcapng file, or [-T or --test] a built-in test packet. [-f or --fingerprint] writes JSON records and [-w or --write]
writes packets; with neither, JSON records go to stdout. With more than one
thread the output is a file set: a directory holding one file per thread.

Examples:
  mercury -c eth0 -w foo.pcap           # capture from eth0, write to foo.pcap
  mercury -c eth0 -w foo.pcap -t cpu    # as above, with one thread per CPU
  mercury -c eth0 -w foo.pcap -t cpu -s # as above, selecting packet metadata
  mercury -r foo.pcap -f foo.json       # read foo.pcap, write fingerprints
  mercury -c eth0 -w foo.pcap -s=tls    # keep only packets with a TLS ClientHello
  mercury -T -p 1000                    # process the test packet 1000 times`

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"capture": "input.capture",
	"read":    "input.read",
	"test":    "input.test",
	"loop":    "input.loop",
	"bpf":     "input.bpf",
	"buffer":  "input.buffer_fraction",

	"fingerprint": "output.fingerprint",
	"write":       "output.write",
	"limit":       "output.limit",
	"overwrite":   "output.overwrite",
	"compress":    "output.compress",
	"select":      "output.select",

	"kafka-brokers": "output.kafka.brokers",
	"kafka-topic":   "output.kafka.topic",

	"threads":    "threads",
	"queue-size": "queue_size",
	"adaptive":   "adaptive",
	"user":       "user",
	"directory":  "directory",
	"verbose":    "verbose",

	"metrics-listen": "metrics.listen",
	"log-level":      "log.level",
	"log-format":     "log.format",
	"log-file":       "log.file.path",
}

// Execute runs the root command. This is called by main.main().
func Execute() error {
	root := NewRootCommand()
	err := root.Execute()
	var ue *reportedError
	if err != nil && !errors.As(err, &ue) {
		fmt.Fprintf(root.ErrOrStderr(), "error: %v\n", err)
	}
	return err
}

// NewRootCommand builds the command tree with its own viper instance.
func NewRootCommand() *cobra.Command {
	v := viper.New()
	var configFile string
	var multiple int

	root := &cobra.Command{
		Use:           "mercury",
		Short:         "mercury - packet metadata capture and analysis",
		Long:          longHelp,
		Version:       "0.1.0",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, v, configFile, multiple)
			if err != nil {
				return usageError(cmd, err)
			}
			return run(cmd.Context(), cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "read options from a YAML, JSON or TOML file")
	pf.StringP("capture", "c", "", "capture packets from interface `i`")
	pf.StringP("read", "r", "", "read packets from pcap or pcapng file `r`")
	pf.IntP("loop", "p", 1, "process the read file `n` times")
	pf.IntVarP(&multiple, "multiple", "m", 0, "alias for --loop")
	pf.String("bpf", "", "BPF filter for live capture: an expression, tcpdump -ddd output, or @file")
	pf.Float64P("buffer", "b", 0.01, "capture ring size as a fraction of physical memory")
	pf.StringP("fingerprint", "f", "", "write JSON fingerprint records to file or file set `f`")
	pf.StringP("write", "w", "", "write packets in PCAP format to file or file set `w`")
	pf.Uint64P("limit", "l", 0, "rotate output files after `l` records (0 disables rotation)")
	pf.BoolP("overwrite", "o", false, "truncate existing output files instead of refusing them")
	pf.Bool("compress", false, "zstd-compress output files")
	pf.StringP("select", "s", "", "write only packets with metadata; -s=tls,http,dns,tcp limits the kinds")
	pf.Lookup("select").NoOptDefVal = "all"
	pf.BoolP("test", "T", false, "use a built-in TLS ClientHello packet as input")
	pf.StringSlice("kafka-brokers", nil, "publish fingerprint records to these Kafka brokers")
	pf.String("kafka-topic", "", "Kafka topic for fingerprint records")
	pf.StringP("threads", "t", "1", "number of capture threads, or \"cpu\" for one per CPU")
	pf.Int("queue-size", 1<<16, "per-thread output queue capacity in records")
	pf.Bool("adaptive", false, "shed load adaptively under overload (capture + write only)")
	pf.StringP("user", "u", "", "switch to user `u` after capture setup; output files are owned by u")
	pf.StringP("directory", "d", "", "change to directory `d` before opening any file")
	pf.BoolP("verbose", "v", false, "report threads, files and final statistics")
	pf.String("metrics-listen", "", "serve Prometheus metrics on this address")
	pf.String("log-level", "info", "log level: debug, info, warn or error")
	pf.String("log-format", "text", "log format: json or text")
	pf.String("log-file", "", "also write logs to this file, rotated")

	for name, key := range flagKeys {
		if err := v.BindPFlag(key, pf.Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", name, err))
		}
	}

	root.AddCommand(newValidateCommand(v, &configFile, &multiple))
	return root
}

// loadConfig merges flags, file and environment, then validates.
func loadConfig(cmd *cobra.Command, v *viper.Viper, file string, multiple int) (*config.Config, error) {
	if cmd.Flags().Changed("multiple") {
		v.Set("input.loop", multiple)
	}
	cfg, err := config.Load(v, file)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// reportedError is an error already printed together with the usage text.
type reportedError struct{ error }

func (e *reportedError) Unwrap() error { return e.error }

// usageError prints the short usage line after a configuration error.
func usageError(cmd *cobra.Command, err error) error {
	fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
	printUsage(cmd.ErrOrStderr(), cmd.Root().PersistentFlags())
	return &reportedError{err}
}

func printUsage(w io.Writer, fs *pflag.FlagSet) {
	fmt.Fprintf(w, "usage: mercury [INPUT] [OUTPUT] [OPTIONS]\n%s", fs.FlagUsages())
}
