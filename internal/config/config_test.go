package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VishrutSumeruDigita/divinepic-ec2-lambda/internal/compute"
)

func TestLoader_Load_CreatesDefaultIfMissing(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	loader, err := NewLoader()
	require.NoError(t, err)

	cfg, err := loader.Load()
	require.NoError(t, err)

	// Check defaults
	assert.Equal(t, "", cfg.Instance.ID)
	assert.Equal(t, defaultRegion, cfg.Instance.Region)
	assert.Equal(t, "test", cfg.Instance.Environment)
	assert.Equal(t, "cpu", cfg.Instance.DeviceClass)
	assert.Equal(t, defaultServicePort, cfg.Service.Port)
	assert.Equal(t, defaultHealthPath, cfg.Service.HealthPath)
	assert.Equal(t, defaultProcessPath, cfg.Service.ProcessPath)
	assert.Equal(t, defaultLookback, cfg.Idle.Lookback)
	assert.Equal(t, defaultGPUFloor, cfg.Idle.GPUFloorPercent)
	assert.Contains(t, cfg.Journal.Path, "journal.json")
	assert.Equal(t, defaultListenAddr, cfg.Server.Listen)

	// Verify file was created
	_, err = os.Stat(loader.Path())
	assert.NoError(t, err)
}

func TestLoader_Load_EnvironmentCadenceDefaults(t *testing.T) {
	t.Run("test environment idles slowly", func(t *testing.T) {
		tmpHome := t.TempDir()
		t.Setenv("HOME", tmpHome)
		t.Setenv("DIVINEPIC_ENVIRONMENT", "test")

		loader, err := NewLoader()
		require.NoError(t, err)
		cfg, err := loader.Load()
		require.NoError(t, err)

		assert.Equal(t, 2*time.Hour, cfg.Idle.Threshold)
		assert.Equal(t, 10*time.Minute, cfg.Idle.SampleInterval)
		assert.Equal(t, 10*time.Minute, cfg.Relay.Timeout)
	})

	t.Run("production cycles faster with longer relay headroom", func(t *testing.T) {
		tmpHome := t.TempDir()
		t.Setenv("HOME", tmpHome)
		t.Setenv("DIVINEPIC_ENVIRONMENT", "production")

		loader, err := NewLoader()
		require.NoError(t, err)
		cfg, err := loader.Load()
		require.NoError(t, err)

		assert.Equal(t, time.Hour, cfg.Idle.Threshold)
		assert.Equal(t, 5*time.Minute, cfg.Idle.SampleInterval)
		assert.Equal(t, 15*time.Minute, cfg.Relay.Timeout)
	})
}

func TestLoader_Load_ReadsExistingConfig(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	configDir := filepath.Join(tmpHome, ".config", "divinepic")
	require.NoError(t, os.MkdirAll(configDir, 0755))

	configContent := `
instance:
  id: i-0abc123
  region: us-east-1
  environment: production
  device_class: gpu
idle:
  threshold: 90m
  gpu_floor_percent: 25
journal:
  path: ~/custom/journal.json
`
	require.NoError(t, os.WriteFile(
		filepath.Join(configDir, "config.yaml"),
		[]byte(configContent),
		0644,
	))

	loader, err := NewLoader()
	require.NoError(t, err)

	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, "i-0abc123", cfg.Instance.ID)
	assert.Equal(t, "us-east-1", cfg.Instance.Region)
	assert.Equal(t, compute.EnvProduction, cfg.Environment())
	assert.Equal(t, compute.DeviceGPU, cfg.DeviceClass())
	assert.Equal(t, 90*time.Minute, cfg.Idle.Threshold, "explicit threshold wins over the environment default")
	assert.Equal(t, 5*time.Minute, cfg.Idle.SampleInterval, "unset interval still gets the production default")
	assert.Equal(t, 25.0, cfg.Idle.GPUFloorPercent)
	assert.Equal(t, filepath.Join(tmpHome, "custom", "journal.json"), cfg.Journal.Path)
}

func TestLoader_Load_EnvVarOverride(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)
	t.Setenv("DIVINEPIC_INSTANCE_ID", "i-0def456")
	t.Setenv("DIVINEPIC_REGION", "eu-west-1")

	loader, err := NewLoader()
	require.NoError(t, err)

	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, "i-0def456", cfg.Instance.ID)
	assert.Equal(t, "eu-west-1", cfg.Instance.Region)
}

func TestLoader_Get(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	loader, err := NewLoader()
	require.NoError(t, err)

	_, err = loader.Load()
	require.NoError(t, err)

	t.Run("valid key returns value", func(t *testing.T) {
		val, err := loader.Get("service.port")
		require.NoError(t, err)
		assert.Equal(t, defaultServicePort, val)
	})

	t.Run("invalid key returns error", func(t *testing.T) {
		_, err := loader.Get("invalid.key")
		assert.ErrorIs(t, err, ErrInvalidKey)
	})
}

func TestLoader_Set(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	loader, err := NewLoader()
	require.NoError(t, err)

	_, err = loader.Load()
	require.NoError(t, err)

	t.Run("sets valid key", func(t *testing.T) {
		err := loader.Set("instance.id", "i-0abc123")
		require.NoError(t, err)

		val, err := loader.Get("instance.id")
		require.NoError(t, err)
		assert.Equal(t, "i-0abc123", val)
	})

	t.Run("rejects invalid key", func(t *testing.T) {
		err := loader.Set("invalid.key", "value")
		assert.ErrorIs(t, err, ErrInvalidKey)
	})

	t.Run("rejects invalid environment", func(t *testing.T) {
		err := loader.Set("instance.environment", "staging")
		assert.ErrorIs(t, err, ErrInvalidEnvironment)
	})

	t.Run("rejects invalid device class", func(t *testing.T) {
		err := loader.Set("instance.device_class", "tpu")
		assert.ErrorIs(t, err, ErrInvalidDeviceClass)
	})
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Instance: InstanceConfig{ID: "i-0abc123", Region: "ap-south-1", Environment: "test", DeviceClass: "cpu"},
			Service:  ServiceConfig{Port: 8000, HealthPath: "/health", ProcessPath: "/upload-images/"},
			Journal:  JournalConfig{Path: "/tmp/journal.json"},
			Server:   ServerConfig{Listen: ":8080"},
		}
	}

	t.Run("valid config", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("missing instance id", func(t *testing.T) {
		cfg := valid()
		cfg.Instance.ID = ""
		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "ID")
	})

	t.Run("unknown environment", func(t *testing.T) {
		cfg := valid()
		cfg.Instance.Environment = "staging"
		assert.Error(t, cfg.Validate())
	})

	t.Run("unknown device class", func(t *testing.T) {
		cfg := valid()
		cfg.Instance.DeviceClass = "tpu"
		assert.Error(t, cfg.Validate())
	})

	t.Run("port out of range", func(t *testing.T) {
		cfg := valid()
		cfg.Service.Port = 70000
		assert.Error(t, cfg.Validate())
	})
}

func TestValidateKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr error
	}{
		{"instance.id is valid", "instance.id", nil},
		{"instance.environment is valid", "instance.environment", nil},
		{"service.port is valid", "service.port", nil},
		{"idle.threshold is valid", "idle.threshold", nil},
		{"idle.gpu_floor_percent is valid", "idle.gpu_floor_percent", nil},
		{"journal.path is valid", "journal.path", nil},
		{"server.listen is valid", "server.listen", nil},
		{"instance is valid", "instance", nil},
		{"unknown.key returns error", "unknown.key", ErrInvalidKey},
		{"empty key returns error", "", ErrInvalidKey},
		{"random key returns error", "foo", ErrInvalidKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateKey(tt.key)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoader_expandPath(t *testing.T) {
	tmpHome := "/home/test"
	loader := &Loader{homeDir: tmpHome}

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"expands ~/ prefix", "~/foo", filepath.Join(tmpHome, "foo")},
		{"expands ~ alone", "~", tmpHome},
		{"preserves absolute path", "/absolute/path", "/absolute/path"},
		{"preserves relative path", "relative/path", "relative/path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := loader.expandPath(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}
