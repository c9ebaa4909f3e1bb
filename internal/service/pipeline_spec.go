package service

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/slipway-ci/slipway/internal/util"
)

// Definition describes one pipeline: which branches may trigger it, the
// test stage that gates everything behind it, the deploy stage, and the
// optional image build and cron schedule.
type Definition struct {
	Name             string        `yaml:"name"`
	Branches         []string      `yaml:"branches"`
	ConcurrencyGroup string        `yaml:"concurrency_group"`
	Policy           string        `yaml:"concurrency_policy"`
	Schedule         *ScheduleSpec `yaml:"schedule"`
	Image            *ImageRef     `yaml:"image"`
	Test             StageSpec     `yaml:"test"`
	Deploy           DeploySpec    `yaml:"deploy"`
}

type ScheduleSpec struct {
	Cron   string `yaml:"cron"`
	Branch string `yaml:"branch"`
}

// ImageRef points at an image spec file relative to the pipeline
// directory. When set, the release image is built between the test and
// deploy stages and its reference is exported to the deploy steps.
type ImageRef struct {
	Spec string `yaml:"spec"`
}

type StageSpec struct {
	Steps []StepSpec `yaml:"steps"`
}

type DeploySpec struct {
	StageSpec `yaml:",inline"`
	Remote    *RemoteSpec `yaml:"remote"`
}

// RemoteSpec ships an artifact to a deploy host over SFTP and runs the
// deploy steps there instead of locally. With ship_image set, the
// release image is saved to a tar archive, uploaded to dest and loaded
// into the remote engine before the deploy steps run.
type RemoteSpec struct {
	Host      string `yaml:"host"`
	User      string `yaml:"user"`
	KeyPath   string `yaml:"key_path"`
	Artifact  string `yaml:"artifact"`
	Dest      string `yaml:"dest"`
	ShipImage bool   `yaml:"ship_image"`
	Engine    string `yaml:"engine"`
}

// LoadEngine is the container engine that loads the shipped image on
// the deploy host.
func (r *RemoteSpec) LoadEngine() string {
	if r.Engine == "" {
		return "docker"
	}
	return r.Engine
}

type StepSpec struct {
	Name           string `yaml:"name"`
	Script         string `yaml:"script"`
	TimeoutSeconds int64  `yaml:"timeout_seconds"`
}

func (s StepSpec) Timeout(fallback time.Duration) time.Duration {
	if s.TimeoutSeconds > 0 {
		return time.Duration(s.TimeoutSeconds) * time.Second
	}
	return fallback
}

// BranchAllowed reports whether branch is on the allow-list. A trigger
// for any other branch is acknowledged and discarded.
func (d *Definition) BranchAllowed(branch string) bool {
	return slices.Contains(d.Branches, branch)
}

// Group returns the concurrency group token. Pipelines that omit it get
// a group of their own, so unrelated pipelines never serialize against
// each other by accident.
func (d *Definition) Group() string {
	if d.ConcurrencyGroup != "" {
		return d.ConcurrencyGroup
	}
	return d.Name
}

func (d *Definition) LockPolicy(fallback LockPolicy) LockPolicy {
	if d.Policy == "" {
		return fallback
	}
	return LockPolicy(d.Policy)
}

func (d *Definition) Validate() error {
	if d.Name == "" {
		return ConfigError{Message: "pipeline name is empty"}
	}
	if len(d.Branches) == 0 {
		return ConfigError{Message: fmt.Sprintf("pipeline %q has no allowed branches", d.Name)}
	}
	if len(d.Test.Steps) == 0 {
		return ConfigError{Message: fmt.Sprintf("pipeline %q has no test steps", d.Name)}
	}
	if len(d.Deploy.Steps) == 0 && d.Deploy.Remote == nil {
		return ConfigError{Message: fmt.Sprintf("pipeline %q has no deploy steps", d.Name)}
	}
	switch d.Policy {
	case "", string(PolicyQueue), string(PolicyReplace):
	default:
		return ConfigError{
			Message: fmt.Sprintf("pipeline %q has unknown concurrency policy %q", d.Name, d.Policy),
		}
	}
	if d.Image != nil && d.Image.Spec == "" {
		return ConfigError{
			Message: fmt.Sprintf("pipeline %q declares an image without a spec file", d.Name),
		}
	}
	if d.Schedule != nil {
		if d.Schedule.Branch == "" {
			return ConfigError{Message: fmt.Sprintf("pipeline %q schedule has no branch", d.Name)}
		}
		if !d.BranchAllowed(d.Schedule.Branch) {
			return ConfigError{
				Message: fmt.Sprintf(
					"pipeline %q schedule branch %q is not on the allow-list",
					d.Name, d.Schedule.Branch,
				),
			}
		}
	}
	if r := d.Deploy.Remote; r != nil {
		if r.Host == "" || r.User == "" || r.KeyPath == "" {
			return ConfigError{
				Message: fmt.Sprintf("pipeline %q remote deploy needs host, user and key_path", d.Name),
			}
		}
		if r.ShipImage && d.Image == nil {
			return ConfigError{
				Message: fmt.Sprintf("pipeline %q ships an image but declares none", d.Name),
			}
		}
		if r.ShipImage && r.Dest == "" {
			return ConfigError{
				Message: fmt.Sprintf("pipeline %q ships an image but has no dest", d.Name),
			}
		}
		switch r.Engine {
		case "", "docker", "podman":
		default:
			return ConfigError{
				Message: fmt.Sprintf("pipeline %q has unknown remote engine %q", d.Name, r.Engine),
			}
		}
	}
	return nil
}

// LoadDefinition parses a single pipeline definition. The file name,
// sanitized, is the pipeline name unless the definition sets one.
func LoadDefinition(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ConfigError{Message: fmt.Sprintf("reading pipeline definition: %v", err)}
	}
	def := new(Definition)
	if err := yaml.Unmarshal(data, def); err != nil {
		return nil, ConfigError{Message: fmt.Sprintf("parsing %s: %v", filepath.Base(path), err)}
	}
	if def.Name == "" {
		base := filepath.Base(path)
		def.Name = util.SanitizeName(strings.TrimSuffix(base, filepath.Ext(base)))
	}
	if def.Image != nil && def.Image.Spec != "" && !filepath.IsAbs(def.Image.Spec) {
		def.Image.Spec = filepath.Join(filepath.Dir(path), def.Image.Spec)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

// LoadDefinitions loads every *.yml and *.yaml file under dir, keyed by
// pipeline name. Duplicate names are a configuration error.
func LoadDefinitions(dir string) (map[string]*Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, ConfigError{Message: fmt.Sprintf("reading pipeline directory: %v", err)}
	}

	defs := make(map[string]*Definition)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yml" && ext != ".yaml" {
			continue
		}
		def, err := LoadDefinition(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		if _, ok := defs[def.Name]; ok {
			return nil, ConfigError{Message: fmt.Sprintf("duplicate pipeline name %q", def.Name)}
		}
		defs[def.Name] = def
	}
	return defs, nil
}
