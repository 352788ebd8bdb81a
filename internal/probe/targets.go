package probe

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	dbconnector "visionhealth-backend"
	"visionhealth-backend/internal/monitor"
)

type TargetConfig struct {
	ServiceName string          `yaml:"service_name"`
	Endpoint    string          `yaml:"endpoint"`
	TimeoutMs   int             `yaml:"timeout_ms"`
	Kind        string          `yaml:"kind"`
	Database    *DatabaseConfig `yaml:"database"`
}

type DatabaseConfig struct {
	dbconnector.ConnectionConfig `yaml:",inline"`
	PasswordEnc                  string `yaml:"password_enc"`
}

type TargetsFile struct {
	Targets []TargetConfig `yaml:"targets"`
}

// Targets is the resolved probe set: what the engine iterates and the
// connection settings of database targets keyed by service name.
type Targets struct {
	Probes    []monitor.ProbeTarget
	Databases map[string]dbconnector.ConnectionConfig
}

// DefaultTargets lists the analytics services of a standard deployment.
func DefaultTargets() Targets {
	return Targets{
		Probes: []monitor.ProbeTarget{
			{ServiceName: "yolo-detection", Endpoint: "http://yolo-detection:8000/health", TimeoutMs: 5000},
			{ServiceName: "face-service", Endpoint: "http://face-service:8001/health", TimeoutMs: 5000},
			{ServiceName: "reid-service", Endpoint: "http://reid-service:8002/health", TimeoutMs: 5000},
			{ServiceName: "fusion", Endpoint: "http://fusion:8003/health", TimeoutMs: 5000},
			{ServiceName: "mediamtx", Endpoint: "http://mediamtx:9997/v3/paths/list", TimeoutMs: 3000},
		},
		Databases: map[string]dbconnector.ConnectionConfig{},
	}
}

func LoadTargets(path string, dec Decryptor) (Targets, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Targets{}, err
	}
	return ParseTargets(data, dec)
}

func ParseTargets(data []byte, dec Decryptor) (Targets, error) {
	var file TargetsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Targets{}, fmt.Errorf("parse targets: %w", err)
	}
	if len(file.Targets) == 0 {
		return Targets{}, errors.New("no probe targets configured")
	}
	targets := Targets{Databases: map[string]dbconnector.ConnectionConfig{}}
	seen := map[string]bool{}
	for i, tc := range file.Targets {
		name := strings.TrimSpace(tc.ServiceName)
		if name == "" {
			return Targets{}, fmt.Errorf("targets[%d]: service_name is required", i)
		}
		if seen[name] {
			return Targets{}, fmt.Errorf("targets[%d]: duplicate service_name %q", i, name)
		}
		seen[name] = true
		if tc.TimeoutMs < 0 {
			return Targets{}, fmt.Errorf("targets[%d]: timeout_ms must be >= 0", i)
		}

		kind := normalizeKind(tc.Kind)
		target := monitor.ProbeTarget{ServiceName: name, Endpoint: strings.TrimSpace(tc.Endpoint), TimeoutMs: tc.TimeoutMs, Kind: kind}
		switch {
		case kind == KindHTTP:
			if target.Endpoint == "" {
				return Targets{}, fmt.Errorf("targets[%d]: endpoint is required", i)
			}
		case dbconnector.SupportedType(kind):
			cfg, err := resolveDatabase(tc.Database, kind, dec)
			if err != nil {
				return Targets{}, fmt.Errorf("targets[%d]: %w", i, err)
			}
			targets.Databases[name] = cfg
			if target.Endpoint == "" {
				target.Endpoint = dbconnector.DescribeConfig(cfg)
			}
		default:
			return Targets{}, fmt.Errorf("targets[%d]: unsupported kind %q", i, tc.Kind)
		}
		targets.Probes = append(targets.Probes, target)
	}
	return targets, nil
}

func resolveDatabase(db *DatabaseConfig, kind string, dec Decryptor) (dbconnector.ConnectionConfig, error) {
	if db == nil {
		return dbconnector.ConnectionConfig{}, errors.New("database settings are required")
	}
	cfg := db.ConnectionConfig
	if cfg.Type == "" {
		cfg.Type = kind
	}
	if strings.TrimSpace(cfg.Host) == "" {
		return dbconnector.ConnectionConfig{}, errors.New("database host is required")
	}
	if db.PasswordEnc != "" {
		if dec == nil {
			return dbconnector.ConnectionConfig{}, errors.New("password_enc set but no encryption key configured")
		}
		plain, err := dec.Decrypt(db.PasswordEnc)
		if err != nil {
			return dbconnector.ConnectionConfig{}, fmt.Errorf("decrypt password: %w", err)
		}
		cfg.Password = plain
	}
	return cfg, nil
}
