package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jc2k/cwstatsd"
	"github.com/jc2k/cwstatsd/pkg/backends"
	"github.com/jc2k/cwstatsd/pkg/cloudproviders"
	"github.com/jc2k/cwstatsd/pkg/statsd"
	"github.com/jc2k/cwstatsd/pkg/util"
)

const (
	// ParamVerbose enables verbose logging.
	ParamVerbose = "verbose"
	// ParamProfile enables profiler endpoint on the specified address and port.
	ParamProfile = "profile"
	// ParamJSON makes logger log in JSON format.
	ParamJSON = "json"
	// ParamConfigPath provides file with configuration.
	ParamConfigPath = "config-path"
	// ParamVersion makes program output its version.
	ParamVersion = "version"

	hostLookupTimeout = 30 * time.Second
)

func main() {
	v, version, err := setupConfiguration()
	if err != nil {
		if err == pflag.ErrHelp {
			return
		}
		logrus.Fatalf("Error while parsing configuration: %v", err)
	}
	if version {
		fmt.Printf("Version: %s - Commit: %s - Date: %s\n", Version, GitCommit, BuildDate)
		return
	}
	if err := run(v); err != nil {
		logrus.Fatalf("%v", err)
	}
}

func run(v *viper.Viper) error {
	ctx, cancelFunc := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancelFunc()

	logrus.WithFields(logrus.Fields{
		"version":   Version,
		"commit":    GitCommit,
		"buildDate": BuildDate,
	}).Info("Starting server")
	s, err := constructServer(ctx, v)
	if err != nil {
		return err
	}

	profileAddr := v.GetString(ParamProfile)
	if profileAddr != "" {
		go func() {
			logrus.Errorf("Profiler server failed: %v", http.ListenAndServe(profileAddr, nil))
		}()
	}

	if err := s.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server error: %v", err)
	}
	return nil
}

func constructServer(ctx context.Context, v *viper.Viper) (*statsd.Server, error) {
	logger := logrus.StandardLogger()

	// Host
	host, instance, err := lookupHost(ctx, logger, v)
	if err != nil {
		return nil, err
	}
	// Publishers
	publishers, err := backends.InitPublishers(v.GetStringSlice(cwstatsd.ParamPublishers), v, logger, host, instance)
	if err != nil {
		return nil, err
	}
	// Filter
	filter, err := statsd.NewFilterFromViper(v)
	if err != nil {
		return nil, err
	}
	// Percentiles
	pt, err := cwstatsd.ParsePercentiles(v.GetStringSlice(cwstatsd.ParamPercentThreshold))
	if err != nil {
		return nil, err
	}

	return &statsd.Server{
		Logger:              logger,
		Publishers:          publishers,
		MetricsAddr:         v.GetString(cwstatsd.ParamMetricsAddr),
		Namespace:           v.GetString(cwstatsd.ParamNamespace),
		InternalNamespace:   v.GetString(cwstatsd.ParamInternalNamespace),
		StatserType:         v.GetString(cwstatsd.ParamStatserType),
		FlushInterval:       v.GetDuration(cwstatsd.ParamFlushInterval),
		FlushOffset:         v.GetDuration(cwstatsd.ParamFlushOffset),
		FlushAligned:        v.GetBool(cwstatsd.ParamFlushAligned),
		PublishTimeout:      v.GetDuration(cwstatsd.ParamPublishTimeout),
		ShutdownTimeout:     v.GetDuration(cwstatsd.ParamShutdownTimeout),
		PercentThreshold:    pt,
		ExpiryIntervalGauge: v.GetDuration(cwstatsd.ParamExpiryIntervalGauge),
		Filter:              filter,
		MaxReaders:          v.GetInt(cwstatsd.ParamMaxReaders),
		ConnPerReader:       v.GetBool(cwstatsd.ParamConnPerReader),
		ReceiveBufferSize:   v.GetInt(cwstatsd.ParamReceiveBufferSize),
		BadLinesPerMinute:   v.GetFloat64(cwstatsd.ParamBadLinesPerMinute),
		HTTPAddr:            v.GetString(cwstatsd.ParamHTTPAddr),
	}, nil
}

// lookupHost creates the configured host provider and describes the local host with it.  Both are nil if no
// provider is configured.
func lookupHost(ctx context.Context, logger logrus.FieldLogger, v *viper.Viper) (cwstatsd.HostProvider, *cwstatsd.Instance, error) {
	name := v.GetString(cwstatsd.ParamCloudProvider)
	host, err := cloudproviders.Get(logger, name, v)
	if err != nil {
		return nil, nil, fmt.Errorf("cloud provider %q: %w", name, err)
	}
	if host == nil {
		logger.Info("No cloud provider specified")
		return nil, nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, hostLookupTimeout)
	defer cancel()
	instance, err := host.SelfInstance(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("cloud provider %q: %w", name, err)
	}
	return host, instance, nil
}

func setupConfiguration() (*viper.Viper, bool, error) {
	v := viper.New()
	defer setupLogger(v) // Apply logging configuration in case of early exit
	util.InitViper(v, "")

	var version bool

	cmd := pflag.NewFlagSet(os.Args[0], pflag.ContinueOnError)

	cmd.BoolVar(&version, ParamVersion, false, "Print the version and exit")
	cmd.Bool(ParamVerbose, false, "Verbose")
	cmd.Bool(ParamJSON, false, "Log in JSON format")
	cmd.String(ParamProfile, "", "Enable profiler endpoint on the specified address and port")
	cmd.String(ParamConfigPath, "", "Path to the configuration file")

	cwstatsd.AddFlags(cmd)

	cmd.VisitAll(func(flag *pflag.Flag) {
		if err := v.BindPFlag(flag.Name, flag); err != nil {
			panic(err) // Should never happen
		}
	})

	if err := cmd.Parse(os.Args[1:]); err != nil {
		return nil, false, err
	}

	configPath := v.GetString(ParamConfigPath)
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, false, err
		}
	}

	return v, version, nil
}

func setupLogger(v *viper.Viper) {
	if v.GetBool(ParamVerbose) {
		logrus.SetLevel(logrus.DebugLevel)
	}
	if v.GetBool(ParamJSON) {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
}
