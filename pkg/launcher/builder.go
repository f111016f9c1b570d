package launcher

import (
	"fmt"
	"log/slog"

	"github.com/jrepp/pylaunch/pkg/debugtarget"
	"github.com/jrepp/pylaunch/pkg/launchconfig"
	"github.com/jrepp/pylaunch/pkg/procstart"
	"github.com/jrepp/pylaunch/pkg/telemetry"
)

// Builder provides a fluent interface for constructing a Launcher.
//
// Usage:
//
//	l, err := launcher.NewBuilder().
//	    WithConfigFile("launch.yaml").
//	    WithTelemetry(sink).
//	    Build()
//
// All builder methods return the builder for method chaining. The first
// error is kept and reported by Build.
type Builder struct {
	config *launchconfig.Configuration
	opts   []Option
	err    error
}

// NewBuilder creates a new Builder
func NewBuilder() *Builder {
	return &Builder{}
}

// WithConfig sets the run configuration
func (b *Builder) WithConfig(config *launchconfig.Configuration) *Builder {
	if b.err != nil {
		return b
	}
	if config == nil {
		b.err = fmt.Errorf("configuration cannot be nil")
		return b
	}
	b.config = config
	return b
}

// WithConfigFile loads the run configuration from a launch.yaml file
func (b *Builder) WithConfigFile(path string) *Builder {
	if b.err != nil {
		return b
	}
	if path == "" {
		b.err = fmt.Errorf("configuration file path cannot be empty")
		return b
	}
	config, err := launchconfig.Load(path)
	if err != nil {
		b.err = err
		return b
	}
	b.config = config
	return b
}

// WithProcessFactory sets the process-start-info factory
func (b *Builder) WithProcessFactory(f procstart.Factory) *Builder {
	if b.err != nil {
		return b
	}
	if f == nil {
		b.err = fmt.Errorf("process factory cannot be nil")
		return b
	}
	b.opts = append(b.opts, WithProcessFactory(f))
	return b
}

// WithSpawner sets the process spawner
func (b *Builder) WithSpawner(s procstart.Spawner) *Builder {
	if b.err != nil {
		return b
	}
	if s == nil {
		b.err = fmt.Errorf("spawner cannot be nil")
		return b
	}
	b.opts = append(b.opts, WithSpawner(s))
	return b
}

// WithDebugTargetFactory sets the debug-target-info factory
func (b *Builder) WithDebugTargetFactory(f debugtarget.Factory) *Builder {
	if b.err != nil {
		return b
	}
	if f == nil {
		b.err = fmt.Errorf("debug target factory cannot be nil")
		return b
	}
	b.opts = append(b.opts, WithDebugTargetFactory(f))
	return b
}

// WithTelemetry sets the telemetry sink. Nil disables telemetry.
func (b *Builder) WithTelemetry(t telemetry.Logger) *Builder {
	if b.err != nil {
		return b
	}
	b.opts = append(b.opts, WithTelemetry(t))
	return b
}

// WithLogger sets the logger
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	if b.err != nil {
		return b
	}
	b.opts = append(b.opts, WithLogger(logger))
	return b
}

// Build validates the configuration and creates the Launcher
func (b *Builder) Build() (*Launcher, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.config == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if err := b.config.Validate(); err != nil {
		return nil, err
	}
	return New(b.config, b.opts...), nil
}

// MustBuild creates the Launcher and panics on error
func (b *Builder) MustBuild() *Launcher {
	l, err := b.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build launcher: %v", err))
	}
	return l
}
