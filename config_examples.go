package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml"
)

const secretsConfigExample = `# Copy to state/secrets.toml. Values here override config.toml and are
# never written back by the miner.

# Solo mining: the account passphrase, sent with every submission.
# secret_phrase = ""

# Optional Discord notices.
# discord_bot_token = ""
`

const envExample = `# Copy to .env in the data directory. Environment variables win over files.
# GOPOC_URL=http://127.0.0.1:8124
# GOPOC_NUMERIC_ID=
# GOPOC_SECRET_PHRASE=
# GOPOC_TARGET_DEADLINE=
# GOPOC_START_NONCE=
# GOPOC_DISCORD_BOT_TOKEN=
`

func ensureExampleFiles(dataDir string) error {
	if dataDir == "" {
		dataDir = defaultDataDir
	}
	examplesDir := filepath.Join(dataDir, "examples")
	if err := os.MkdirAll(examplesDir, 0o755); err != nil {
		return fmt.Errorf("create examples directory: %w", err)
	}
	config, err := exampleConfigBytes()
	if err != nil {
		return err
	}
	files := map[string][]byte{
		"config.toml.example":  config,
		"secrets.toml.example": []byte(secretsConfigExample),
		"env.example":          []byte(envExample),
	}
	for name, contents := range files {
		if err := writeFileAtomic(filepath.Join(examplesDir, name), contents, false); err != nil {
			return err
		}
	}
	return nil
}

func exampleHeader(text string) []byte {
	return []byte(fmt.Sprintf("# Generated %s example (copy to a real config and edit as needed)\n\n", text))
}

func exampleConfigBytes() ([]byte, error) {
	cfg := defaultConfig()
	cfg.NumericID = 1234567890
	cfg.TargetDeadline = 86400 * 30
	cfg.MinerName = "rig-01"
	fc := buildFileConfig(cfg)
	data, err := toml.Marshal(fc)
	if err != nil {
		return nil, fmt.Errorf("encode config example: %w", err)
	}
	return append(exampleHeader("base config"), data...), nil
}

// rewriteConfigFile writes cfg atomically and keeps the previous file as
// config.toml.bak.
func rewriteConfigFile(path string, cfg Config) error {
	data, err := toml.Marshal(buildFileConfig(cfg))
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return writeFileAtomic(path, data, true)
}

// writeFileAtomic replaces path through a synced temp file in the same
// directory. With keepBackup the old file survives as path+".bak".
func writeFileAtomic(path string, data []byte, keepBackup bool) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err = os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}

	if keepBackup {
		if err = backupExisting(path); err != nil {
			return err
		}
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename %s to %s: %w", tmpName, path, err)
	}
	return nil
}

func backupExisting(path string) error {
	bakPath := path + ".bak"
	_, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil
	case err != nil:
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := os.Remove(bakPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", bakPath, err)
	}
	if err := os.Rename(path, bakPath); err != nil {
		return fmt.Errorf("rename %s to %s: %w", path, bakPath, err)
	}
	return nil
}
