package profiling

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/getmentor/consultations-api/config"
	"github.com/getmentor/consultations-api/pkg/logger"
	"github.com/grafana/pyroscope-go"
	"go.uber.org/zap"
)

const defaultAppName = "consultations-api"

// Identity labels every uploaded profile
type Identity struct {
	ServiceName string
	Namespace   string
	Version     string
	InstanceID  string
	Environment string
}

func (id Identity) tags() map[string]string {
	return map[string]string{
		"service_name":    id.ServiceName,
		"namespace":       id.Namespace,
		"environment":     id.Environment,
		"service_version": id.Version,
		"instance":        id.InstanceID,
	}
}

var sampleTypes = map[string][]pyroscope.ProfileType{
	"cpu":           {pyroscope.ProfileCPU},
	"alloc_space":   {pyroscope.ProfileAllocSpace},
	"alloc_objects": {pyroscope.ProfileAllocObjects},
	"inuse_space":   {pyroscope.ProfileInuseSpace},
	"goroutines":    {pyroscope.ProfileGoroutines},
	"mutex":         {pyroscope.ProfileMutexCount, pyroscope.ProfileMutexDuration},
	"block":         {pyroscope.ProfileBlockCount, pyroscope.ProfileBlockDuration},
}

// Slot commits contend on per-aggregate locks, so mutex and block profiles are on by default
var defaultSampleTypes = "cpu,alloc_space,alloc_objects,goroutines,mutex,block"

// InitProfiler starts continuous profiling and returns its stop function.
// Disabled profiling returns a no-op stop.
func InitProfiler(cfg config.ProfilingConfig, id Identity) (func(), error) {
	if !cfg.Enabled {
		logger.Info("Continuous profiling disabled")
		return func() {}, nil
	}

	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("profiling endpoint is required when profiling is enabled")
	}
	interval := time.Duration(cfg.UploadIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 15 * time.Second
	}

	types, err := parseSampleTypes(cfg.SampleTypes)
	if err != nil {
		return nil, err
	}

	appName := strings.TrimSpace(cfg.AppName)
	if appName == "" {
		appName = defaultAppName
	}

	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: appName,
		ServerAddress:   endpoint,
		UploadRate:      interval,
		ProfileTypes:    types,
		Tags:            id.tags(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start profiler: %w", err)
	}

	logger.Info("Continuous profiling initialized",
		zap.String("application_name", appName),
		zap.String("endpoint", endpoint),
		zap.Duration("upload_interval", interval),
		zap.Int("profile_types", len(types)),
	)

	return func() {
		if stopErr := profiler.Stop(); stopErr != nil {
			logger.Error("Failed to stop profiler", zap.Error(stopErr))
		}
	}, nil
}

// Do runs fn with an operation label attached to the samples it produces
func Do(ctx context.Context, operation string, fn func(context.Context)) {
	pyroscope.TagWrapper(ctx, pyroscope.Labels("operation", operation), fn)
}

func parseSampleTypes(value string) ([]pyroscope.ProfileType, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		value = defaultSampleTypes
	}

	var types []pyroscope.ProfileType
	seen := map[pyroscope.ProfileType]bool{}
	for _, raw := range strings.Split(value, ",") {
		key := strings.ToLower(strings.TrimSpace(raw))
		if key == "" {
			continue
		}
		mapped, ok := sampleTypes[key]
		if !ok {
			return nil, fmt.Errorf("unsupported O11Y_PROFILING_SAMPLE_TYPES value %q (known: %s)", key, knownSampleTypes())
		}
		for _, t := range mapped {
			if !seen[t] {
				seen[t] = true
				types = append(types, t)
			}
		}
	}

	if len(types) == 0 {
		return parseSampleTypes(defaultSampleTypes)
	}
	return types, nil
}

func knownSampleTypes() string {
	keys := make([]string, 0, len(sampleTypes))
	for k := range sampleTypes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}
