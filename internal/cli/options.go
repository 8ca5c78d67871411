package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/FranksOps/rankwatch/internal/fingerprint"
	"github.com/FranksOps/rankwatch/internal/pagestore"
	"github.com/FranksOps/rankwatch/internal/report"
	"github.com/FranksOps/rankwatch/internal/serp"
)

const envPrefix = "RANKWATCH"

// History backends selectable with --history.
const (
	historyNone     = "none"
	historySQLite   = "sqlite"
	historyPostgres = "postgres"
	historyJSON     = "json"
	historyCSV      = "csv"
)

// Options is the resolved configuration of one invocation, merged from
// flags, RANKWATCH_* environment variables and an optional config file.
type Options struct {
	Query   string
	Base    string
	Domains []string
	Engine  string
	Pages   int
	Params  url.Values

	MaxAge  time.Duration
	Refresh bool
	Format  report.Format
	Output  string

	Timeout        time.Duration
	Retries        int
	Delay          time.Duration
	Jitter         float64
	ProxyFile      string
	Fingerprint    fingerprint.Profile
	UserAgent      string
	AcceptLanguage string
	AdMarkers      []string
	RespectRobots  bool

	History    string
	HistoryDSN string
	Limit      int

	MetricsPort int
	Workers     int
	LogLevel    slog.Level
	WireLog     string
	NoColor     bool
}

func registerFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "config file (yaml, toml or json)")
	fs.StringP("query", "q", "", "search query (required)")
	fs.StringP("base", "b", ".", "base directory for captured pages")
	fs.StringSliceP("domain", "d", nil, "comma separated hosts to highlight")
	fs.StringP("google", "g", serp.DefaultEngine, "search engine origin")
	fs.IntP("pages", "p", 10, fmt.Sprintf("number of result pages to fetch (max %d)", pagestore.MaxPages))
	fs.StringSlice("param", nil, "extra search parameter as key=value (repeatable)")
	fs.Duration("max-age", 12*time.Hour, "reuse captured pages younger than this")
	fs.Bool("refresh", false, "ignore captured pages and fetch again")
	fs.String("format", string(report.FormatText), "report format: text, json, html or xlsx")
	fs.StringP("output", "o", "", "report file (default <querydir>/report.<ext>)")
	fs.Duration("timeout", 30*time.Second, "per-request timeout")
	fs.Int("retries", 2, "retries for transient fetch failures")
	fs.Duration("delay", 2*time.Second, "pause between page requests")
	fs.Float64("jitter", 0.3, "random fraction added to or removed from --delay")
	fs.String("proxy-file", "", "file with one proxy URL per line")
	fs.String("fingerprint", "", "TLS fingerprint: chrome, firefox, safari, go or random (default matches the user agent)")
	fs.String("user-agent", "", "fixed User-Agent (default picks a browser)")
	fs.String("accept-language", "", "Accept-Language header")
	fs.StringSlice("ad-marker", serp.DefaultAdMarkers, "labels identifying sponsored listings")
	fs.Bool("respect-robots", false, "obey the engine's robots.txt")
	fs.String("history", historyNone, "ranking history backend: none, sqlite, postgres, json or csv")
	fs.String("history-dsn", "", "history location (default <base>/history.<ext>)")
	fs.Int("limit", 0, "number of stored runs to show, 0 for all")
	fs.Int("metrics-port", 0, "expose Prometheus metrics on this port")
	fs.Int("workers", 4, "pages parsed concurrently")
	fs.String("log-level", "info", "log level: debug, info, warn or error")
	fs.String("wirelog", "", "file receiving every request and response as JSON")
	fs.Bool("no-color", false, "disable colored console output")
}

// newViper binds fs into a fresh viper instance and reads the config file
// named by --config, if any.
func newViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("cli: bind flags: %w", err)
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("cli: read config %s: %w", path, err)
		}
	}
	return v, nil
}

// list flattens slice values that may arrive comma separated from the
// environment or a config file.
func list(v *viper.Viper, key string) []string {
	var out []string
	for _, item := range v.GetStringSlice(key) {
		for part := range strings.SplitSeq(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func parseParams(pairs []string) (url.Values, error) {
	params := url.Values{}
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("cli: invalid --param %q, want key=value", p)
		}
		params.Add(key, value)
	}
	return params, nil
}

func loadOptions(v *viper.Viper) (Options, error) {
	o := Options{
		Query:          strings.TrimSpace(v.GetString("query")),
		Base:           v.GetString("base"),
		Domains:        list(v, "domain"),
		Engine:         v.GetString("google"),
		Pages:          v.GetInt("pages"),
		MaxAge:         v.GetDuration("max-age"),
		Refresh:        v.GetBool("refresh"),
		Output:         v.GetString("output"),
		Timeout:        v.GetDuration("timeout"),
		Retries:        v.GetInt("retries"),
		Delay:          v.GetDuration("delay"),
		Jitter:         v.GetFloat64("jitter"),
		ProxyFile:      v.GetString("proxy-file"),
		UserAgent:      v.GetString("user-agent"),
		AcceptLanguage: v.GetString("accept-language"),
		AdMarkers:      list(v, "ad-marker"),
		RespectRobots:  v.GetBool("respect-robots"),
		History:        strings.ToLower(v.GetString("history")),
		HistoryDSN:     v.GetString("history-dsn"),
		Limit:          v.GetInt("limit"),
		MetricsPort:    v.GetInt("metrics-port"),
		Workers:        v.GetInt("workers"),
		WireLog:        v.GetString("wirelog"),
		NoColor:        v.GetBool("no-color"),
	}

	var errs []error
	if o.Query == "" {
		errs = append(errs, errors.New("cli: --query is required"))
	}
	if o.Pages < 1 || o.Pages > pagestore.MaxPages {
		errs = append(errs, fmt.Errorf("cli: --pages must be between 1 and %d, got %d", pagestore.MaxPages, o.Pages))
	}
	if o.Jitter < 0 || o.Jitter > 1 {
		errs = append(errs, fmt.Errorf("cli: --jitter must be between 0 and 1, got %g", o.Jitter))
	}
	if o.Retries < 0 {
		errs = append(errs, fmt.Errorf("cli: --retries must not be negative"))
	}

	var err error
	if o.Params, err = parseParams(list(v, "param")); err != nil {
		errs = append(errs, err)
	}
	if o.Format, err = report.ParseFormat(v.GetString("format")); err != nil {
		errs = append(errs, err)
	}
	if o.Fingerprint, err = fingerprint.ParseProfile(v.GetString("fingerprint")); err != nil {
		errs = append(errs, err)
	}
	if err := o.LogLevel.UnmarshalText([]byte(v.GetString("log-level"))); err != nil {
		errs = append(errs, fmt.Errorf("cli: --log-level: %w", err))
	}

	switch o.History {
	case "", historyNone:
		o.History = historyNone
	case historySQLite, historyJSON, historyCSV:
		if o.HistoryDSN == "" {
			o.HistoryDSN = filepath.Join(o.Base, "history."+historyExt(o.History))
		}
	case historyPostgres:
		if o.HistoryDSN == "" {
			errs = append(errs, errors.New("cli: --history postgres needs --history-dsn"))
		}
	default:
		errs = append(errs, fmt.Errorf("cli: unknown history backend %q", o.History))
	}

	return o, errors.Join(errs...)
}

func historyExt(backend string) string {
	switch backend {
	case historySQLite:
		return "db"
	case historyJSON:
		return "ndjson"
	default:
		return backend
	}
}
