package core

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/huangsam/codeaudit/internal/contract"
	"github.com/huangsam/codeaudit/schema"
)

// BuildStatus gathers the store status and checks every configured
// dependency. Failed checks are reported, not returned as errors.
func BuildStatus(ctx context.Context, cfg *contract.Config, env *Env) schema.StatusReport {
	report := schema.StatusReport{}

	status, err := env.Store.GetStatus(ctx)
	report.Store = status
	if err != nil {
		report.Checks = append(report.Checks, schema.HealthCheck{Name: "store", OK: false, Detail: err.Error()})
	} else {
		report.Checks = append(report.Checks, schema.HealthCheck{
			Name:   "store",
			OK:     status.Connected,
			Detail: fmt.Sprintf("%s backend, %d runs", status.Backend, status.TotalRuns),
		})
	}

	for _, src := range cfg.Services {
		report.Checks = append(report.Checks, serviceCheck(cfg, src))
	}
	report.Checks = append(report.Checks, allocatorCheck(cfg.Tasks))
	if len(cfg.Tasks.DispatchCmd) > 0 {
		report.Checks = append(report.Checks, commandCheck("task-dispatcher", cfg.Tasks.DispatchCmd))
	}
	report.Checks = append(report.Checks, staleRunsCheck(ctx, cfg, env))
	return report
}

func serviceCheck(cfg *contract.Config, src schema.Source) schema.HealthCheck {
	name := string(src)
	switch src {
	case schema.SourceCodeRabbit:
		return credentialCheck(name, "github-token", cfg.CodeRabbit.GitHubToken, cfg.CodeRabbit.GitHubBaseURL)
	case schema.SourceSonarCloud:
		return credentialCheck(name, "sonar-token", cfg.Sonar.Token, cfg.Sonar.BaseURL)
	case schema.SourceCodacy:
		return credentialCheck(name, "codacy-token", cfg.Codacy.Token, cfg.Codacy.BaseURL)
	case schema.SourceCodeFactor:
		return credentialCheck(name, "codefactor-token", cfg.CodeFactor.Token, cfg.CodeFactor.BaseURL)
	case schema.SourceSARIF:
		if len(cfg.SARIFFiles) == 0 {
			return schema.HealthCheck{Name: name, OK: false, Detail: "no sarif-files configured"}
		}
		var missing []string
		for _, f := range cfg.SARIFFiles {
			if _, err := os.Stat(f); err != nil {
				missing = append(missing, f)
			}
		}
		if len(missing) > 0 {
			return schema.HealthCheck{Name: name, OK: false, Detail: "missing " + strings.Join(missing, ", ")}
		}
		return schema.HealthCheck{Name: name, OK: true, Detail: fmt.Sprintf("%d files", len(cfg.SARIFFiles))}
	default:
		return schema.HealthCheck{Name: name, OK: false, Detail: "unknown source"}
	}
}

func credentialCheck(name, key, token, baseURL string) schema.HealthCheck {
	if token == "" {
		return schema.HealthCheck{Name: name, OK: false, Detail: key + " not set"}
	}
	return schema.HealthCheck{Name: name, OK: true, Detail: baseURL}
}

func allocatorCheck(tc contract.TaskConfig) schema.HealthCheck {
	if tc.Allocator == contract.AllocatorCommand {
		return commandCheck("task-allocator", tc.AllocateCmd)
	}
	return schema.HealthCheck{Name: "task-allocator", OK: true, Detail: "local sequence"}
}

// commandCheck verifies that a subprocess boundary can be started.
func commandCheck(name string, argv []string) schema.HealthCheck {
	if len(argv) == 0 {
		return schema.HealthCheck{Name: name, OK: false, Detail: "no command configured"}
	}
	path, err := exec.LookPath(argv[0])
	if err != nil {
		return schema.HealthCheck{Name: name, OK: false, Detail: err.Error()}
	}
	return schema.HealthCheck{Name: name, OK: true, Detail: path}
}

func staleRunsCheck(ctx context.Context, cfg *contract.Config, env *Env) schema.HealthCheck {
	staleAfter := cfg.StaleAfter
	if staleAfter <= 0 {
		staleAfter = contract.DefaultStaleAfter
	}
	stale, err := env.Store.StaleRuns(ctx, env.now().Add(-staleAfter))
	if err != nil {
		return schema.HealthCheck{Name: "stale-runs", OK: false, Detail: err.Error()}
	}
	if len(stale) > 0 {
		ids := make([]string, len(stale))
		for i, r := range stale {
			ids[i] = fmt.Sprint(r.ID)
		}
		return schema.HealthCheck{Name: "stale-runs", OK: false, Detail: "runs never completed: " + strings.Join(ids, ", ")}
	}
	return schema.HealthCheck{Name: "stale-runs", OK: true, Detail: "none"}
}
