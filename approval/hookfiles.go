package approval

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// HookScriptName is the generated PreToolUse hook script.
	HookScriptName = "pre-tool-use.sh"
	// SettingsFileName is the generated agent settings file.
	SettingsFileName = "settings.json"

	// DefaultHookTimeout is how long the hook waits for the gateway.
	DefaultHookTimeout = 120 * time.Second

	// hookTimeoutSlack keeps the agent from killing the hook before the
	// hook's own timeout can answer deny.
	hookTimeoutSlack = 10 * time.Second
)

// HookFilesConfig describes the hook to register with the agent.
type HookFilesConfig struct {
	// Binary is the executable implementing "hook pre-tool-use".
	Binary     string
	GatewayURL string
	// Matcher selects the tools the hook runs for. Defaults to "*".
	Matcher string
	// SafeTools overrides the hook's read-only allow-list when non-nil.
	SafeTools []string
	Timeout   time.Duration
}

// WriteHookFiles writes the hook script and a settings file registering it
// into dir and returns the settings path, suitable for
// agent.StartRequest.SettingsPath.
func WriteHookFiles(dir string, cfg HookFilesConfig) (string, error) {
	if cfg.Binary == "" {
		return "", errors.New("hook binary is required")
	}
	if cfg.GatewayURL == "" {
		return "", errors.New("gateway URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultHookTimeout
	}
	if cfg.Matcher == "" {
		cfg.Matcher = "*"
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating hook directory: %w", err)
	}

	scriptPath := filepath.Join(dir, HookScriptName)
	command := fmt.Sprintf("exec %s hook pre-tool-use --gateway %s --timeout %s",
		shellQuote(cfg.Binary), shellQuote(cfg.GatewayURL), cfg.Timeout)
	if cfg.SafeTools != nil {
		command += " --safe-tools " + shellQuote(strings.Join(cfg.SafeTools, ","))
	}
	script := "#!/bin/sh\n" + command + "\n"
	if err := os.WriteFile(scriptPath, []byte(script), 0755); err != nil {
		return "", fmt.Errorf("writing %s: %w", scriptPath, err)
	}

	data, err := json.MarshalIndent(hookSettings(scriptPath, cfg), "", "    ")
	if err != nil {
		return "", fmt.Errorf("marshaling hook settings: %w", err)
	}
	settingsPath := filepath.Join(dir, SettingsFileName)
	if err := os.WriteFile(settingsPath, data, 0644); err != nil {
		return "", fmt.Errorf("writing %s: %w", settingsPath, err)
	}
	return settingsPath, nil
}

func hookSettings(scriptPath string, cfg HookFilesConfig) map[string]any {
	return map[string]any{
		"hooks": map[string]any{
			"PreToolUse": []map[string]any{
				{
					"matcher": cfg.Matcher,
					"hooks": []map[string]any{
						{
							"type":    "command",
							"command": shellQuote(scriptPath),
							"timeout": int((cfg.Timeout + hookTimeoutSlack).Seconds()),
						},
					},
				},
			},
		},
	}
}

// shellQuote wraps s in single quotes for /bin/sh.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
