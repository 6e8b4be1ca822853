// Package config loads the options of a trace session from the environment,
// an optional .env file and an optional config file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/rs/xid"

	"github.com/sarchlab/tasktrace/archive"
)

// EventModel selects which kind of program is being traced.
type EventModel string

// Event models.
const (
	EventModelOMP       EventModel = "omp"
	EventModelSerial    EventModel = "serial"
	EventModelTaskGraph EventModel = "taskgraph"
)

// SetValue parses an event model name.
func (m *EventModel) SetValue(s string) error {
	v := EventModel(strings.ToLower(strings.TrimSpace(s)))

	switch v {
	case EventModelOMP, EventModelSerial, EventModelTaskGraph:
		*m = v
		return nil
	case "":
		*m = EventModelOMP
		return nil
	}

	return fmt.Errorf("unknown event model %q", s)
}

// PropertyValue is the value recorded as the archive's event model property.
// Serial programs share the event model of runtime-traced ones.
func (m EventModel) PropertyValue() string {
	switch m {
	case EventModelOMP, EventModelSerial:
		return "OMP"
	case EventModelTaskGraph:
		return "TASKGRAPH"
	default:
		return "UNKNOWN"
	}
}

// LocationGroupName names the process-level location group of an archive.
func (m EventModel) LocationGroupName() string {
	switch m {
	case EventModelOMP:
		return "OMP Process"
	case EventModelSerial:
		return "Serial Process"
	case EventModelTaskGraph:
		return "Task-graph Process"
	default:
		return "Unknown Process"
	}
}

// Backend names where archives are stored.
type Backend string

// Backends.
const (
	BackendSQLite     Backend = "sqlite"
	BackendMySQL      Backend = "mysql"
	BackendClickHouse Backend = "clickhouse"
	BackendMongoDB    Backend = "mongodb"
)

// Options configure a trace session.
type Options struct {
	TracePath      string     `yaml:"trace_path" json:"trace_path" toml:"trace_path" env:"TASKTRACE_TRACE_PATH" env-default:"trace" env-description:"directory in which archives are created"`
	TraceName      string     `yaml:"trace_name" json:"trace_name" toml:"trace_name" env:"TASKTRACE_TRACE_NAME" env-default:"tasktrace" env-description:"archive name prefix, a random one is generated when empty"`
	AppendHostname bool       `yaml:"append_hostname" json:"append_hostname" toml:"append_hostname" env:"TASKTRACE_APPEND_HOSTNAME" env-default:"false" env-description:"append the host name to the archive name"`
	Hostname       string     `yaml:"hostname" json:"hostname" toml:"hostname" env:"TASKTRACE_HOSTNAME" env-description:"host name to append instead of the system one"`
	EventModel     EventModel `yaml:"event_model" json:"event_model" toml:"event_model" env:"TASKTRACE_EVENT_MODEL" env-default:"omp" env-description:"omp, serial or taskgraph"`

	Backend       Backend `yaml:"backend" json:"backend" toml:"backend" env:"TASKTRACE_BACKEND" env-default:"sqlite" env-description:"sqlite, mysql, clickhouse or mongodb"`
	BackendAddr   string  `yaml:"backend_addr" json:"backend_addr" toml:"backend_addr" env:"TASKTRACE_BACKEND_ADDR" env-description:"server address (host:port, or a URI for mongodb)"`
	BackendUser   string  `yaml:"backend_user" json:"backend_user" toml:"backend_user" env:"TASKTRACE_BACKEND_USER" env-description:"server user name"`
	BackendPass   string  `yaml:"backend_password" json:"backend_password" toml:"backend_password" env:"TASKTRACE_BACKEND_PASSWORD" env-description:"server password"`
	BackendDB     string  `yaml:"backend_database" json:"backend_database" toml:"backend_database" env:"TASKTRACE_BACKEND_DATABASE" env-default:"default" env-description:"clickhouse database"`
	MonitorPort   int     `yaml:"monitor_port" json:"monitor_port" toml:"monitor_port" env:"TASKTRACE_MONITOR_PORT" env-default:"0" env-description:"port of the live monitor, 0 disables it"`
	OpenBrowser   bool    `yaml:"open_browser" json:"open_browser" toml:"open_browser" env:"TASKTRACE_OPEN_BROWSER" env-default:"false" env-description:"open the live monitor in a browser"`
	LogLevel      string  `yaml:"log_level" json:"log_level" toml:"log_level" env:"TASKTRACE_LOG_LEVEL" env-default:"warn" env-description:"debug, info, warn or error"`
	ReportAtClose bool    `yaml:"report" json:"report" toml:"report" env:"TASKTRACE_REPORT" env-default:"true" env-description:"print a resource usage report when tracing stops"`
}

// Load reads the options. A .env file in the working directory is loaded
// into the environment first if present. When path is not empty the file is
// read as well, with the environment taking precedence.
func Load(path string) (Options, error) {
	var opts Options

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return opts, fmt.Errorf("load .env: %w", err)
	}

	var err error
	if path != "" {
		err = cleanenv.ReadConfig(path, &opts)
	} else {
		err = cleanenv.ReadEnv(&opts)
	}

	if err != nil {
		return opts, fmt.Errorf("read config: %w", err)
	}

	return opts, opts.Validate()
}

// Default returns the options as they are with an empty environment.
func Default() Options {
	return Options{
		TracePath:     "trace",
		TraceName:     "tasktrace",
		EventModel:    EventModelOMP,
		Backend:       BackendSQLite,
		BackendDB:     "default",
		LogLevel:      "warn",
		ReportAtClose: true,
	}
}

// Validate checks the options for values that cannot work.
func (o Options) Validate() error {
	if o.TracePath == "" {
		return errors.New("config: trace path must not be empty")
	}

	switch o.EventModel {
	case EventModelOMP, EventModelSerial, EventModelTaskGraph:
	default:
		return fmt.Errorf("config: unknown event model %q", o.EventModel)
	}

	switch o.Backend {
	case BackendSQLite, BackendMySQL, BackendClickHouse, BackendMongoDB:
	default:
		return fmt.Errorf("config: unknown backend %q", o.Backend)
	}

	if o.MonitorPort < 0 || o.MonitorPort > 65535 {
		return fmt.Errorf("config: invalid monitor port %d", o.MonitorPort)
	}

	return nil
}

// ArchiveName returns <name>[.<hostname>].<pid>.
func (o Options) ArchiveName(pid int) string {
	name := o.TraceName
	if name == "" {
		name = "tasktrace_" + xid.New().String()
	}

	if o.AppendHostname {
		host := o.Hostname
		if host == "" {
			host, _ = os.Hostname()
		}

		if host != "" {
			name += "." + host
		}
	}

	return name + "." + strconv.Itoa(pid)
}

// Opener returns the archive opener of the configured backend.
func (o Options) Opener() (archive.Opener, error) {
	switch o.Backend {
	case BackendSQLite, "":
		return archive.OpenSQLite, nil
	case BackendMySQL:
		host, port := splitHostPort(o.BackendAddr)
		return archive.MySQLOpener(archive.MySQLOptions{
			Username: o.BackendUser,
			Password: o.BackendPass,
			Address:  host,
			Port:     port,
		}), nil
	case BackendClickHouse:
		addr := o.BackendAddr
		if addr == "" {
			addr = "localhost:9000"
		}

		return archive.ClickHouseOpener(archive.ClickHouseOptions{
			Addr:     []string{addr},
			Database: o.BackendDB,
			Username: o.BackendUser,
			Password: o.BackendPass,
		}), nil
	case BackendMongoDB:
		uri := o.BackendAddr
		if uri == "" {
			uri = "mongodb://localhost:27017"
		}

		return archive.MongoDBOpener(uri), nil
	}

	return nil, fmt.Errorf("config: unknown backend %q", o.Backend)
}

func splitHostPort(addr string) (string, int) {
	host, portStr, found := strings.Cut(addr, ":")
	if !found {
		return host, 0
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, 0
	}

	return host, port
}

// Describe lists the environment variables the options are read from.
func Describe() string {
	var opts Options

	text, err := cleanenv.GetDescription(&opts, nil)
	if err != nil {
		return err.Error()
	}

	return text
}
