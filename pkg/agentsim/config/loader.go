package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mocksnmp/agentsim/models"
)

// Load reads every configuration section under paths.Root and returns a
// fully defaulted models.Config. Errors from individual files are
// accumulated and returned together so operators see all problems at once.
// A missing file is not an error: its section keeps its zero value.
func Load(paths Paths, logger *slog.Logger) (*models.Config, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}

	var (
		cfg  models.Config
		errs []string
	)

	if err := decodeInto(paths.Root, "endpoints.yaml", &cfg.Endpoints, "endpoints", logger); err != nil {
		errs = append(errs, err.Error())
	}
	if err := decodeInto(paths.Root, "contexts.yaml", &cfg.Contexts, "contexts", logger); err != nil {
		errs = append(errs, err.Error())
	}
	if err := decodeInto(paths.Root, "v3_users.yaml", &cfg.V3Users, "v3_users", logger); err != nil {
		errs = append(errs, err.Error())
	}
	if err := decodeSingle(paths.Root, "behaviors.yaml", &cfg.Behaviors, logger); err != nil {
		errs = append(errs, err.Error())
	}
	if err := decodeInto(paths.Root, "counters.yaml", &cfg.Counters, "counters", logger); err != nil {
		errs = append(errs, err.Error())
	}
	if err := decodeInto(paths.Root, "state_machines.yaml", &cfg.StateMachines, "state_machines", logger); err != nil {
		errs = append(errs, err.Error())
	}
	if err := decodeSingle(paths.Root, "restart.yaml", &cfg.Restart, logger); err != nil {
		errs = append(errs, err.Error())
	}
	if err := decodeSingle(paths.Root, "limits.yaml", &cfg.Limits, logger); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("config: %d error(s):\n  %s", len(errs), strings.Join(errs, "\n  "))
	}

	cfg.WithDefaults()
	logger.Info("config: loaded",
		"endpoints", len(cfg.Endpoints),
		"contexts", len(cfg.Contexts),
		"v3_users", len(cfg.V3Users),
		"counters", len(cfg.Counters),
		"state_machines", len(cfg.StateMachines),
	)
	return &cfg, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ─────────────────────────────────────────────────────────────────────────────

// decodeInto decodes a top-level YAML list field (e.g. "endpoints:") from
// file into slice. Missing files are not an error.
func decodeInto[T any](root, file string, slice *[]T, key string, logger *slog.Logger) error {
	path := filepath.Join(root, file)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	var raw map[string][]T
	if err := decodeFile(path, &raw); err != nil {
		return fmt.Errorf("config: decode %s: %w", path, err)
	}
	*slice = raw[key]
	logger.Debug("config: loaded section", "file", path, "count", len(*slice))
	return nil
}

// decodeSingle decodes the whole file directly into out (used for the
// object-shaped sections: behaviors, restart, limits).
func decodeSingle(root, file string, out any, logger *slog.Logger) error {
	path := filepath.Join(root, file)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := decodeFile(path, out); err != nil {
		return fmt.Errorf("config: decode %s: %w", path, err)
	}
	logger.Debug("config: loaded section", "file", path)
	return nil
}

// decodeFile opens path and unmarshals the YAML content into out.
func decodeFile(path string, out any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(false) // be lenient — extra keys are fine
	return dec.Decode(out)
}

// ─────────────────────────────────────────────────────────────────────────────
// no-op logger writer
// ─────────────────────────────────────────────────────────────────────────────

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
