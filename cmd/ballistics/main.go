// Command ballistics prints a trajectory table for one shot, or serves the
// trajectory API with -listen.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/banshee-data/ballistics/internal/api"
	"github.com/banshee-data/ballistics/internal/ballistics"
	"github.com/banshee-data/ballistics/internal/config"
	"github.com/banshee-data/ballistics/internal/units"
	"github.com/banshee-data/ballistics/internal/version"
)

// optionalFloat is a float flag that records whether it was set.
type optionalFloat struct {
	v **float64
}

func (o optionalFloat) String() string {
	if o.v == nil || *o.v == nil {
		return ""
	}
	return strconv.FormatFloat(**o.v, 'g', -1, 64)
}

func (o optionalFloat) Set(s string) error {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*o.v = &f
	return nil
}

type cliOptions struct {
	in        ballistics.Input
	inputFile string

	configPath    string
	velocityUnits string
	step          int
	maxRange      int
	jsonOut       bool

	listen      string
	remote      string
	showVersion bool
}

func parseArgs(args []string, stderr io.Writer) (*cliOptions, error) {
	o := &cliOptions{}
	var model, twist string

	fs := flag.NewFlagSet("ballistics", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.Float64Var(&o.in.MuzzleVelocity, "mv", 2700, "Muzzle velocity (ft/s)")
	fs.Float64Var(&o.in.BallisticCoefficient, "bc", 0.475, "Ballistic coefficient")
	fs.StringVar(&model, "model", "", "Drag model: G1 or G7 (default from config)")
	fs.Float64Var(&o.in.BulletWeight, "weight", 168, "Bullet weight (grains)")
	fs.Float64Var(&o.in.ZeroRange, "zero", 100, "Zero range (yards)")
	fs.Float64Var(&o.in.SightHeight, "sight-height", 1.5, "Sight height above bore (inches)")
	fs.Float64Var(&o.in.WindSpeed, "wind", 0, "Wind speed (mph)")
	fs.Float64Var(&o.in.WindDirection, "wind-dir", 90, "Wind direction (degrees, 90 = full value from the right)")
	fs.Float64Var(&o.in.Temperature, "temp", 15, "Air temperature (°C)")
	fs.Var(optionalFloat{&o.in.Pressure}, "pressure", "Station pressure (hPa)")
	fs.Var(optionalFloat{&o.in.DensityAltitude}, "density-altitude", "Density altitude (ft), overrides -pressure")
	fs.Float64Var(&o.in.Humidity, "humidity", 50, "Relative humidity (percent)")
	fs.Float64Var(&o.in.Latitude, "lat", 0, "Latitude (degrees) for Coriolis")
	fs.Float64Var(&o.in.Azimuth, "azimuth", 0, "Azimuth of fire (degrees)")
	fs.BoolVar(&o.in.IncludeCoriolis, "coriolis", false, "Include Coriolis deflection")
	fs.BoolVar(&o.in.IncludeSpinDrift, "spin-drift", false, "Include spin drift")
	fs.StringVar(&twist, "twist", ballistics.TwistRight, "Barrel twist direction: right or left")
	fs.StringVar(&o.in.ClickUnit, "click-unit", "", "Turret unit: moa or mil (default from config)")
	fs.Float64Var(&o.in.ClickSize, "click-size", 0, "Turret click size in click units (default from config)")
	fs.StringVar(&o.inputFile, "input", "", "Read the shot from a JSON file instead of flags")

	fs.StringVar(&o.configPath, "config", "", "Path to a tuning JSON file (default "+config.DefaultConfigPath+" if present)")
	fs.StringVar(&o.velocityUnits, "units", "", "Velocity units: "+units.GetValidUnitsString())
	fs.IntVar(&o.step, "step", 0, "Range step (yards), overrides config")
	fs.IntVar(&o.maxRange, "max-range", 0, "Maximum range (yards), overrides config")
	fs.BoolVar(&o.jsonOut, "json", false, "Print rows as JSON")

	fs.StringVar(&o.listen, "listen", "", "Serve the HTTP API on this address instead of printing a table")
	fs.StringVar(&o.remote, "remote", "", "Solve on a remote ballistics server at this base URL")
	fs.BoolVar(&o.showVersion, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	if model != "" {
		m, err := ballistics.ParseDragModel(model)
		if err != nil {
			return nil, err
		}
		o.in.DragModel = m
	}
	o.in.TwistDirection = twist
	if o.velocityUnits != "" && !units.IsValid(o.velocityUnits) {
		return nil, fmt.Errorf("invalid -units %q (valid: %s)", o.velocityUnits, units.GetValidUnitsString())
	}
	if o.listen != "" && o.remote != "" {
		return nil, errors.New("-listen and -remote are mutually exclusive")
	}
	return o, nil
}

// loadTuning reads path, or the default config when path is empty and the
// default file exists. Otherwise the built-in defaults apply.
func loadTuning(path string) (*config.TuningConfig, error) {
	if path == "" {
		if _, err := os.Stat(config.DefaultConfigPath); err != nil {
			return config.EmptyTuningConfig(), nil
		}
		path = config.DefaultConfigPath
	}
	return config.LoadTuningConfig(path)
}

func readInputFile(path string) (ballistics.Input, error) {
	var in ballistics.Input
	data, err := os.ReadFile(path)
	if err != nil {
		return in, fmt.Errorf("failed to read input file: %w", err)
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return in, fmt.Errorf("failed to parse input file: %w", err)
	}
	return in, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	o, err := parseArgs(args, stderr)
	if err != nil {
		return err
	}
	if o.showVersion {
		fmt.Fprintln(stdout, version.Get())
		return nil
	}

	tuning, err := loadTuning(o.configPath)
	if err != nil {
		return err
	}
	if o.step > 0 {
		tuning.StepYards = &o.step
	}
	if o.maxRange > 0 {
		tuning.MaxRangeYards = &o.maxRange
	}
	if o.velocityUnits != "" {
		tuning.VelocityUnits = &o.velocityUnits
	}
	if err := tuning.Validate(); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}

	if o.listen != "" {
		return serve(ctx, o.listen, tuning)
	}

	in := o.in
	if o.inputFile != "" {
		if in, err = readInputFile(o.inputFile); err != nil {
			return err
		}
	}
	req := api.TrajectoryRequest{Input: in}
	velocityUnits := tuning.GetVelocityUnits()

	var rows []ballistics.TrajectoryRow
	if o.remote != "" {
		resp, err := api.NewClient(o.remote, nil).Trajectory(ctx, req, velocityUnits)
		if err != nil {
			return err
		}
		rows = resp.Rows
	} else {
		rows, err = api.NewServer(tuning).Solve(req, velocityUnits)
		if err != nil {
			return err
		}
	}

	if o.jsonOut {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}
	return writeTable(stdout, rows, velocityUnits, tuning.ApplyDefaults(in).ClickUnit)
}

func serve(ctx context.Context, addr string, tuning *config.TuningConfig) error {
	timeout := tuning.GetRequestTimeout()
	server := &http.Server{
		Addr:              addr,
		Handler:           api.NewServer(tuning).Handler(),
		ReadHeaderTimeout: timeout,
		WriteTimeout:      timeout + time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("%s listening on %s", version.Get(), addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
	log.Printf("Graceful shutdown complete")
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		log.Fatal(err)
	}
}
