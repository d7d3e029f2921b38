package callmarket

import (
	"path/filepath"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/unimarket/callmarket/monitoring"
)

const (
	// DefaultExecutionFeeBase is the default base fee in quote units
	// that is charged per matched order.
	DefaultExecutionFeeBase = 1

	// DefaultExecutionFeeRate is the default execution fee rate in
	// parts per million that is charged per matched order.
	DefaultExecutionFeeRate = 1000

	// defaultBatchInterval is the default time between two batch
	// clearing attempts.
	defaultBatchInterval = 10 * time.Minute

	// defaultMaxOrderVolume is the default per-order volume cap.
	defaultMaxOrderVolume = 1_000_000_000

	// defaultLogLevel is the default log level that is used for all
	// loggers and sub systems.
	defaultLogLevel = "info"

	// defaultLogDirname is the default directory name where the log
	// files will be stored.
	defaultLogDirname = "logs"

	// defaultMaxLogFiles is the default number of log files to keep.
	defaultMaxLogFiles = 3

	// defaultMaxLogFileSize is the default file size of 10 MB that a
	// log file can grow to before it is rotated.
	defaultMaxLogFileSize = 10
)

var (
	// DefaultBaseDir is the default root data directory where the
	// server will store all its data.
	DefaultBaseDir = btcutil.AppDataDir("callmarket", false)

	defaultLogDir = filepath.Join(DefaultBaseDir, defaultLogDirname)
)

// EtcdConfig holds the connection parameters of the backing etcd cluster.
type EtcdConfig struct {
	Host     string `long:"host" description:"etcd instance address"`
	User     string `long:"user" description:"etcd user name"`
	Password string `long:"password" description:"etcd password"`
}

// Config holds the full server configuration.
type Config struct {
	Network string `long:"network" description:"network namespace to run under" choice:"regtest" choice:"testnet" choice:"mainnet" choice:"simnet"`
	BaseDir string `long:"basedir" description:"The base directory where the server stores all its data"`

	BatchInterval time.Duration `long:"batchinterval" description:"The interval between two batch clearing attempts: 30s, 10m, etc"`

	ExecFeeBase int64  `long:"execfeebase" description:"The execution base fee in quote units that is charged per matched order."`
	ExecFeeRate uint32 `long:"execfeerate" description:"The execution fee rate in parts per million that is charged per matched order."`

	MaxOrderVolume uint64 `long:"maxordervolume" description:"The maximum volume a single order may tender."`

	LogDir         string `long:"logdir" description:"Directory to log output."`
	MaxLogFiles    int    `long:"maxlogfiles" description:"Maximum logfiles to keep (0 for no rotation)"`
	MaxLogFileSize int    `long:"maxlogfilesize" description:"Maximum logfile size in MB"`

	DebugLevel string `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`
	Profile    string `long:"profile" description:"Enable HTTP profiling on given port -- NOTE port must be between 1024 and 65535"`

	Etcd       *EtcdConfig                  `group:"etcd" namespace:"etcd"`
	Prometheus *monitoring.PrometheusConfig `group:"prometheus" namespace:"prometheus"`
}

// DefaultConfig returns the default config for a callmarket server.
func DefaultConfig() *Config {
	return &Config{
		Network:        "mainnet",
		BaseDir:        DefaultBaseDir,
		BatchInterval:  defaultBatchInterval,
		ExecFeeBase:    DefaultExecutionFeeBase,
		ExecFeeRate:    DefaultExecutionFeeRate,
		MaxOrderVolume: defaultMaxOrderVolume,
		Etcd: &EtcdConfig{
			Host: "localhost:2379",
		},
		Prometheus: &monitoring.PrometheusConfig{
			ListenAddr: "localhost:8989",
		},
		MaxLogFiles:    defaultMaxLogFiles,
		MaxLogFileSize: defaultMaxLogFileSize,
		DebugLevel:     defaultLogLevel,
		LogDir:         defaultLogDir,
	}
}
