/*
Copyright © 2026 the Binning authors.
This file is part of Binning.

Binning is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

Binning is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with Binning.  If not, see <http://www.gnu.org/licenses/>.
*/

package binningutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/binning"
	"github.com/spatialmodel/binning/binstore"
	"github.com/spatialmodel/binning/cloud"
	"github.com/spatialmodel/binning/product"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// Mode selects the stages of a binning run.
type Mode int

// Binning run modes.
const (
	// ModeRun performs spatial binning followed by temporal reduction.
	ModeRun Mode = iota
	// ModeSpatial only bins products into a persistent store.
	ModeSpatial
	// ModeTemporal only reduces a persistent store into a bin file.
	ModeTemporal
)

func (m Mode) spatial() bool  { return m == ModeRun || m == ModeSpatial }
func (m Mode) temporal() bool { return m == ModeRun || m == ModeTemporal }

// dateLayout is the layout of StartTime and StopTime.
const dateLayout = "2006-01-02"

// StoreConfig selects the spatial bin store.
type StoreConfig struct {
	Driver string
	DSN    string `toml:",omitempty"`
}

// Config is the validated configuration of a binning run.
type Config struct {
	NumRows       int
	SuperSampling int
	SliceHeight   int
	MaskExpr      string            `toml:",omitempty"`
	Variables     map[string]string `toml:",omitempty"`
	Aggregators   []binning.AggregatorConfig
	Region        string   `toml:",omitempty"`
	Inputs        []string `toml:",omitempty"`
	OutputFile    string   `toml:",omitempty"`
	StartTime     string   `toml:",omitempty"`
	StopTime      string   `toml:",omitempty"`
	Store         StoreConfig
	Partitions    int
	Workers       int
	LatName       string
	LonName       string
	LogFile       string `toml:",omitempty"`
	LogLevel      string

	ctx         *binning.BinningContext
	region      *binning.Region
	start, stop time.Time
	level       logrus.Level
}

// LoadConfig reads the configuration from cfg and checks that it is
// complete for mode. All errors in the binning setup, such as unknown
// aggregators or invalid expressions, are reported here, before any
// product is read.
func LoadConfig(cfg *viper.Viper, mode Mode) (*Config, error) {
	c := &Config{
		NumRows:       cfg.GetInt("NumRows"),
		SuperSampling: cfg.GetInt("SuperSampling"),
		SliceHeight:   cfg.GetInt("SliceHeight"),
		MaskExpr:      os.ExpandEnv(cfg.GetString("MaskExpr")),
		Region:        os.ExpandEnv(cfg.GetString("Region")),
		StartTime:     cfg.GetString("StartTime"),
		StopTime:      cfg.GetString("StopTime"),
		Store: StoreConfig{
			Driver: strings.ToLower(cfg.GetString("Store.Driver")),
			DSN:    os.ExpandEnv(cfg.GetString("Store.DSN")),
		},
		Partitions: cfg.GetInt("Partitions"),
		Workers:    cfg.GetInt("Workers"),
		LatName:    cfg.GetString("LatName"),
		LonName:    cfg.GetString("LonName"),
		LogLevel:   cfg.GetString("LogLevel"),
	}
	var err error
	if c.Variables, err = GetStringMapString("Variables", cfg); err != nil {
		return nil, err
	}
	for k, v := range c.Variables {
		c.Variables[k] = os.ExpandEnv(strings.NewReplacer("\r\n", " ", "\n", " ").Replace(v))
	}
	if c.Aggregators, err = getAggregators("Aggregators", cfg); err != nil {
		return nil, err
	}
	if c.ctx, err = binning.NewBinningContext(c.NumRows, c.SuperSampling, c.MaskExpr, c.variables(), c.Aggregators); err != nil {
		return nil, fmt.Errorf("binning: invalid binning configuration: %w", err)
	}
	if err := product.CheckExpressions(c.ctx.VariableContext); err != nil {
		return nil, fmt.Errorf("binning: invalid binning configuration: %w", err)
	}
	c.NumRows = c.ctx.Grid.NumRows()
	c.SuperSampling = c.ctx.SuperSampling

	if c.region, err = loadRegion(c.Region); err != nil {
		return nil, err
	}
	if c.start, c.stop, err = parseTimeRange(c.StartTime, c.StopTime); err != nil {
		return nil, err
	}
	if c.level, err = logrus.ParseLevel(c.LogLevel); err != nil {
		return nil, fmt.Errorf("binning: invalid LogLevel: %w", err)
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.Partitions < 1 {
		c.Partitions = 1
	}

	switch c.Store.Driver {
	case "", binstore.DriverMemory:
		c.Store.Driver = binstore.DriverMemory
		if mode != ModeRun {
			return nil, fmt.Errorf("binning: the spatial and temporal commands need a persistent store; set Store.Driver to %s or %s",
				binstore.DriverSQLite, binstore.DriverPostgres)
		}
	case binstore.DriverSQLite, binstore.DriverPostgres:
		if c.Store.DSN == "" {
			return nil, fmt.Errorf("binning: Store.DSN must be set for the %s store", c.Store.Driver)
		}
	default:
		return nil, fmt.Errorf("binning: unsupported Store.Driver %q", c.Store.Driver)
	}

	if mode.spatial() {
		if c.Inputs, err = expandInputs(cfg.GetStringSlice("Inputs")); err != nil {
			return nil, err
		}
	}
	if mode.temporal() {
		if c.OutputFile, err = checkOutputFile(cfg.GetString("OutputFile")); err != nil {
			return nil, err
		}
	}
	c.LogFile = checkLogFile(os.ExpandEnv(cfg.GetString("LogFile")), c.OutputFile)
	return c, nil
}

// BinningContext returns the binning context built from the configuration.
func (c *Config) BinningContext() *binning.BinningContext { return c.ctx }

// variables returns the configured variables in name order.
func (c *Config) variables() []binning.Variable {
	names := make([]string, 0, len(c.Variables))
	for name := range c.Variables {
		names = append(names, name)
	}
	sort.Strings(names)
	vars := make([]binning.Variable, len(names))
	for i, name := range names {
		vars[i] = binning.Variable{Name: name, Expr: c.Variables[name]}
	}
	return vars
}

// NewLogger returns a logger writing to w and, if LogFile is set, to
// LogFile. The returned function closes the log file.
func (c *Config) NewLogger(w io.Writer) (*logrus.Logger, func() error, error) {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339Nano,
		DisableSorting:  true,
	})
	log.SetLevel(c.level)
	log.SetOutput(w)
	if c.LogFile == "" {
		return log, func() error { return nil }, nil
	}
	f, err := os.Create(c.LogFile)
	if err != nil {
		return nil, nil, fmt.Errorf("binning: creating log file: %w", err)
	}
	log.SetOutput(io.MultiWriter(w, f))
	return log, f.Close, nil
}

// GetStringMapString returns a map[string]string from a viper configuration,
// accounting for the fact that it might be a json object if it was set
// from a command line argument.
func GetStringMapString(varName string, cfg *viper.Viper) (map[string]string, error) {
	switch i := cfg.Get(varName).(type) {
	case nil:
		return map[string]string{}, nil
	case map[string]string:
		return i, nil
	case map[string]interface{}:
		return cast.ToStringMapStringE(i)
	case string:
		o := make(map[string]string)
		if strings.TrimSpace(i) == "" {
			return o, nil
		}
		if err := json.NewDecoder(bytes.NewBufferString(i)).Decode(&o); err != nil {
			return nil, fmt.Errorf("binning: parsing %s: %w", varName, err)
		}
		return o, nil
	default:
		return nil, fmt.Errorf("binning: invalid type for %s: %#v", varName, i)
	}
}

// getAggregators returns the aggregator configurations, which are a JSON
// array when set from the command line and a list of tables when set in
// a configuration file.
func getAggregators(varName string, cfg *viper.Viper) ([]binning.AggregatorConfig, error) {
	var o []binning.AggregatorConfig
	switch i := cfg.Get(varName).(type) {
	case nil:
	case string:
		if strings.TrimSpace(i) == "" {
			break
		}
		if err := json.Unmarshal([]byte(i), &o); err != nil {
			return nil, fmt.Errorf("binning: parsing %s: %w", varName, err)
		}
	default:
		if err := cfg.UnmarshalKey(varName, &o); err != nil {
			return nil, fmt.Errorf("binning: parsing %s: %w", varName, err)
		}
	}
	if len(o) == 0 {
		return nil, fmt.Errorf("binning: there are no aggregators specified. Please fill in " +
			"the Aggregators configuration and try again")
	}
	for j := range o {
		o[j].Type = strings.ToUpper(o[j].Type)
	}
	return o, nil
}

// expandInputs expands environment variables and glob patterns in the
// input paths. URLs are kept as they are.
func expandInputs(inputs []string) ([]string, error) {
	var o []string
	for _, s := range inputs {
		s = os.ExpandEnv(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if cloud.IsBlob(s) || cloud.IsHTTP(s) {
			o = append(o, s)
			continue
		}
		matches, err := filepath.Glob(s)
		if err != nil {
			return nil, fmt.Errorf("binning: invalid input pattern %q: %w", s, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("binning: input %q does not match any file", s)
		}
		o = append(o, matches...)
	}
	if len(o) == 0 {
		return nil, fmt.Errorf("binning: there are no input products specified. Please fill in " +
			"the Inputs configuration and try again")
	}
	return o, nil
}

// checkOutputFile makes sure that the output file is specified and its
// directory exists, and expand any environment variables.
func checkOutputFile(f string) (string, error) {
	if f == "" {
		return "", fmt.Errorf(`binning: you need to specify an output file configuration variable (for example: OutputFile="l3.nc")`)
	}
	f = os.ExpandEnv(f)
	if cloud.IsBlob(f) {
		u, err := url.Parse(f)
		if err != nil {
			return f, err
		}
		bucket, err := cloud.OpenBucket(context.TODO(), u.Scheme+"://"+u.Host)
		if err != nil {
			return f, fmt.Errorf("binning: error when checking OutputFile location: %v", err)
		}
		bucket.Close()
		return f, nil
	}
	outdir := filepath.Dir(f)
	if _, err := os.Stat(outdir); err != nil {
		return f, fmt.Errorf("binning: the OutputFile directory doesn't exist: %v", err)
	}
	return f, nil
}

// checkLogFile fills in a default value for the log file path if one isn't
// specified. There is no default for blob outputs.
func checkLogFile(logFile, outputFile string) string {
	if logFile == "" && outputFile != "" && !cloud.IsBlob(outputFile) {
		logFile = strings.TrimSuffix(outputFile, filepath.Ext(outputFile)) + ".log"
	}
	return logFile
}

// parseTimeRange parses the optional start and stop days of the
// binning period.
func parseTimeRange(startTime, stopTime string) (start, stop time.Time, err error) {
	if startTime != "" {
		if start, err = time.Parse(dateLayout, startTime); err != nil {
			return start, stop, fmt.Errorf("binning: invalid StartTime: %w", err)
		}
	}
	if stopTime != "" {
		if stop, err = time.Parse(dateLayout, stopTime); err != nil {
			return start, stop, fmt.Errorf("binning: invalid StopTime: %w", err)
		}
	}
	if !start.IsZero() && !stop.IsZero() && stop.Before(start) {
		return start, stop, fmt.Errorf("binning: StopTime %s is before StartTime %s", stopTime, startTime)
	}
	return start, stop, nil
}
