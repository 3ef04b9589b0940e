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

// Package binningutil holds the command-line interface and configuration
// of the binning program.
package binningutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"runtime"
	"strings"

	"github.com/spatialmodel/binning"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Cfg holds configuration information and the commands that use it.
type Cfg struct {
	*viper.Viper

	Root, versionCmd, runCmd, spatialCmd, temporalCmd, infoCmd *cobra.Command
}

type option struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

// InitializeConfig creates the commands and binds their flags to a new
// configuration.
func InitializeConfig() *Cfg {
	cfg := &Cfg{Viper: viper.New()}

	cfg.Root = &cobra.Command{
		Use:   "binning",
		Short: "A Level-3 binning engine for satellite products.",
		Long: `binning aggregates the pixels of satellite products into the bins of a
global equal-area grid and writes the result as a Level-3 bin file.
Use the subcommands specified below to access the functionality.

Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'BINNING_var' where 'var' is the
name of the variable to be set, with dots replaced by underscores. Many
configuration variables are additionally allowed to contain environment
variables within them.
Refer to https://github.com/spf13/viper for additional configuration information.`,
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		PersistentPreRunE: func(*cobra.Command, []string) error { return cfg.setConfig() },
	}

	cfg.versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Long:  "version prints the version number of this version of binning.",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("binning v%s\n", binning.Version)
		},
		DisableAutoGenTag: true,
	}

	cfg.runCmd = &cobra.Command{
		Use:   "run",
		Short: "Bin products and write a bin file.",
		Long: `run bins every input product spatially, reduces the spatial bins
of all products into temporal bins and writes them to the output file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cfg.execute(cmd, ModeRun)
		},
		DisableAutoGenTag: true,
	}

	cfg.spatialCmd = &cobra.Command{
		Use:   "spatial",
		Short: "Bin products into a persistent store.",
		Long: `spatial bins every input product spatially and saves the spatial bins
in the store given by Store.Driver and Store.DSN, which must not be the
in-memory store. Use the temporal command to reduce the stored bins.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cfg.execute(cmd, ModeSpatial)
		},
		DisableAutoGenTag: true,
	}

	cfg.temporalCmd = &cobra.Command{
		Use:   "temporal",
		Short: "Reduce stored spatial bins and write a bin file.",
		Long: `temporal reduces the spatial bins saved in a persistent store by
earlier spatial runs into temporal bins and writes them to the output file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cfg.execute(cmd, ModeTemporal)
		},
		DisableAutoGenTag: true,
	}

	cfg.infoCmd = &cobra.Command{
		Use:   "info [file]",
		Short: "Print a summary of a bin file.",
		Long: `info prints the grid, the features and the first records of a bin file.
The file defaults to OutputFile.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cfg.GetString("OutputFile")
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return fmt.Errorf("binning: no bin file specified")
			}
			return Info(cmd.Context(), cmd.OutOrStdout(), path, cfg.GetInt("InfoRecords"))
		},
		DisableAutoGenTag: true,
	}

	binFlags := []*pflag.FlagSet{cfg.runCmd.Flags(), cfg.spatialCmd.Flags(), cfg.temporalCmd.Flags()}
	spatialFlags := []*pflag.FlagSet{cfg.runCmd.Flags(), cfg.spatialCmd.Flags()}
	temporalFlags := []*pflag.FlagSet{cfg.runCmd.Flags(), cfg.temporalCmd.Flags()}
	storeFlags := []*pflag.FlagSet{cfg.runCmd.Flags(), cfg.spatialCmd.Flags(), cfg.temporalCmd.Flags()}

	// Options are the configuration options available to binning.
	options := []option{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{cfg.Root.PersistentFlags()},
		},
		{
			name: "NumRows",
			usage: `
              NumRows is the number of rows of the planetary grid. It must be
              even. The default gives bins of about 9.28 km.`,
			defaultVal: binning.DefaultNumRows,
			flagsets:   binFlags,
		},
		{
			name: "SuperSampling",
			usage: `
              SuperSampling is the number of sub-pixel samples along each pixel
              edge. Each pixel contributes SuperSampling² observations.`,
			defaultVal: 1,
			flagsets:   binFlags,
		},
		{
			name: "SliceHeight",
			usage: `
              SliceHeight is the number of pixel rows read from a product at once.`,
			defaultVal: 64,
			flagsets:   spatialFlags,
		},
		{
			name: "MaskExpr",
			usage: `
              MaskExpr is an expression over the product bands. Pixels for which
              it is false or zero are not binned. An empty mask accepts all pixels.`,
			defaultVal: "",
			flagsets:   binFlags,
		},
		{
			name: "Variables",
			usage: `
              Variables maps variable names to expressions over the product bands,
              for example {"chl_log": "log10(chl)"}. Variables read by an
              aggregator that are not listed here read the band of the same name.`,
			defaultVal: map[string]string{},
			flagsets:   binFlags,
		},
		{
			name: "Aggregators",
			usage: `
              Aggregators lists the aggregators as a JSON array, for example
              [{"type": "AVG", "varName": "chl"}]. Supported types are AVG,
              AVG_ML, MIN_MAX, ON_MAX_SET and PERCENTILE.`,
			defaultVal: "",
			flagsets:   binFlags,
		},
		{
			name: "Region",
			usage: `
              Region restricts binning to a region, given either as a bounding box
              "lonMin,latMin,lonMax,latMax" or as the path to a GeoJSON or
              shapefile holding polygons in geographic coordinates.`,
			defaultVal: "",
			flagsets:   binFlags,
		},
		{
			name: "Inputs",
			usage: `
              Inputs lists the products to be binned. Entries can be local paths,
              glob patterns, or URLs with the http, https, file, gs or s3 scheme.`,
			shorthand:  "i",
			defaultVal: []string{},
			flagsets:   spatialFlags,
		},
		{
			name: "OutputFile",
			usage: `
              OutputFile is the path of the bin file to write. It can be a local
              path or a file, gs or s3 URL.`,
			shorthand:  "o",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{cfg.runCmd.Flags(), cfg.temporalCmd.Flags(), cfg.infoCmd.Flags()},
		},
		{
			name: "StartTime",
			usage: `
              StartTime is the first day of the binning period (yyyy-MM-dd).`,
			defaultVal: "",
			flagsets:   temporalFlags,
		},
		{
			name: "StopTime",
			usage: `
              StopTime is the last day of the binning period (yyyy-MM-dd).`,
			defaultVal: "",
			flagsets:   temporalFlags,
		},
		{
			name: "Store.Driver",
			usage: `
              Store.Driver selects where spatial bins are kept before temporal
              reduction: memory, sqlite or pgx (PostgreSQL).`,
			defaultVal: "memory",
			flagsets:   storeFlags,
		},
		{
			name: "Store.DSN",
			usage: `
              Store.DSN is the data source name of the sqlite or pgx store.`,
			defaultVal: "",
			flagsets:   storeFlags,
		},
		{
			name: "Partitions",
			usage: `
              Partitions is the number of row partitions reduced in parallel.`,
			defaultVal: runtime.NumCPU(),
			flagsets:   temporalFlags,
		},
		{
			name: "Workers",
			usage: `
              Workers is the number of products binned in parallel.`,
			defaultVal: runtime.NumCPU(),
			flagsets:   spatialFlags,
		},
		{
			name: "LatName",
			usage: `
              LatName is the name of the latitude band of the products.`,
			defaultVal: "lat",
			flagsets:   spatialFlags,
		},
		{
			name: "LonName",
			usage: `
              LonName is the name of the longitude band of the products.`,
			defaultVal: "lon",
			flagsets:   spatialFlags,
		},
		{
			name: "LogFile",
			usage: `
              LogFile is the path to the desired logfile location. It can include
              environment variables. If LogFile is left blank, the logfile will be
              saved in the same location as the OutputFile.`,
			defaultVal: "",
			flagsets:   binFlags,
		},
		{
			name: "LogLevel",
			usage: `
              LogLevel is the minimum level of logged messages: debug, info,
              warn or error.`,
			defaultVal: "info",
			flagsets:   []*pflag.FlagSet{cfg.Root.PersistentFlags()},
		},
		{
			name: "InfoRecords",
			usage: `
              InfoRecords is the number of bin records printed by info.`,
			defaultVal: 5,
			flagsets:   []*pflag.FlagSet{cfg.infoCmd.Flags()},
		},
	}

	// Set the prefix for configuration environment variables.
	cfg.SetEnvPrefix("BINNING")
	cfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	cfg.AutomaticEnv()

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch v := option.defaultVal.(type) {
			case string:
				set.StringP(option.name, option.shorthand, v, option.usage)
			case []string:
				set.StringSliceP(option.name, option.shorthand, v, option.usage)
			case bool:
				set.BoolP(option.name, option.shorthand, v, option.usage)
			case int:
				set.IntP(option.name, option.shorthand, v, option.usage)
			case float64:
				set.Float64P(option.name, option.shorthand, v, option.usage)
			case map[string]string:
				b := bytes.NewBuffer(nil)
				json.NewEncoder(b).Encode(v)
				set.StringP(option.name, option.shorthand, strings.TrimSpace(b.String()), option.usage)
			default:
				panic("invalid argument type")
			}
		}
		cfg.BindPFlag(option.name, option.flagsets[0].Lookup(option.name))
	}

	// Link the commands together.
	cfg.Root.AddCommand(cfg.versionCmd)
	cfg.Root.AddCommand(cfg.runCmd)
	cfg.Root.AddCommand(cfg.spatialCmd)
	cfg.Root.AddCommand(cfg.temporalCmd)
	cfg.Root.AddCommand(cfg.infoCmd)
	return cfg
}

// setConfig finds and reads in the configuration file, if there is one.
func (cfg *Cfg) setConfig() error {
	if cfgpath := cfg.GetString("config"); cfgpath != "" {
		cfg.SetConfigFile(cfgpath)
		if err := cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("binning: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// execute loads the configuration for mode, sets up logging and runs
// the corresponding stage.
func (cfg *Cfg) execute(cmd *cobra.Command, mode Mode) error {
	c, err := LoadConfig(cfg.Viper, mode)
	if err != nil {
		return err
	}
	log, closeLog, err := c.NewLogger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer closeLog()
	log.WithField("version", binning.Version).Info("binning starting")
	return Run(cmd.Context(), c, mode, log)
}
