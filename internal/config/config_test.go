package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var keys = []string{
	"CONFIG_FILE", "APP_ENV", "LOG_LEVEL", "BLE_TRANSPORT", "BLE_ADAPTER", "BLE_DEVICE_NAME",
	"BLE_TARGET_NAME", "BLE_SCAN_DURATION", "BLE_SUPERVISOR_PERIOD", "BLE_STEP_TIMEOUT",
	"BLE_LOCAL_MTU", "BLE_WRITE_FOLLOWUP_DELAY", "CLIENT_ID", "CLIENT_POSITION",
	"SAMPLE_INTERVAL", "SENSOR_SOURCE", "I2C_BUS", "BME280_ADDRESS", "MQTT_BROKER",
	"MQTT_PORT", "MQTT_CLIENT_ID", "MQTT_TOPIC_PREFIX", "SQLITE_PATH", "HTTP_ADDR", "GPIO_WINDOW_PIN",
	"GPIO_PUMP_PIN", "GPIO_LED_OK_PIN", "GPIO_LED_FAULT_PIN", "SIM_LINK_DROP_INTERVAL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}

	if cfg.AppEnv != "dev" {
		t.Errorf("AppEnv = %q, want dev", cfg.AppEnv)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want info", cfg.LogLevel)
	}
	if cfg.BLETransport != "native" {
		t.Errorf("BLETransport = %q, want native", cfg.BLETransport)
	}
	if cfg.BLEDeviceName != "Greenhouse" || cfg.BLETargetName != "Greenhouse" {
		t.Errorf("names = %q/%q, want Greenhouse/Greenhouse", cfg.BLEDeviceName, cfg.BLETargetName)
	}
	if cfg.BLEScanDuration != 30*time.Second {
		t.Errorf("BLEScanDuration = %v, want 30s", cfg.BLEScanDuration)
	}
	if cfg.BLESupervisorPeriod != 30*time.Second {
		t.Errorf("BLESupervisorPeriod = %v, want 30s", cfg.BLESupervisorPeriod)
	}
	if cfg.BLEStepTimeout != 20*time.Second {
		t.Errorf("BLEStepTimeout = %v, want 20s", cfg.BLEStepTimeout)
	}
	if cfg.BLELocalMTU != 500 {
		t.Errorf("BLELocalMTU = %d, want 500", cfg.BLELocalMTU)
	}
	if cfg.BME280Address != 0x76 {
		t.Errorf("BME280Address = %#x, want 0x76", cfg.BME280Address)
	}
	if cfg.MQTTPort != 1883 {
		t.Errorf("MQTTPort = %d, want 1883", cfg.MQTTPort)
	}
	if cfg.MQTTTopicPrefix != "greenhouse" {
		t.Errorf("MQTTTopicPrefix = %q, want greenhouse", cfg.MQTTTopicPrefix)
	}
	if cfg.SimLinkDropInterval != 0 {
		t.Errorf("SimLinkDropInterval = %v, want 0", cfg.SimLinkDropInterval)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
	}
}

func TestLoadFromEnv_HTTPOff(t *testing.T) {
	clearEnv(t)
	t.Setenv("HTTP_ADDR", "off")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.HTTPAddr != "" {
		t.Errorf("HTTPAddr = %q, want empty", cfg.HTTPAddr)
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "prod")
	t.Setenv("LOG_LEVEL", "warning")
	t.Setenv("BLE_TRANSPORT", "sim")
	t.Setenv("BLE_DEVICE_NAME", "GH-2")
	t.Setenv("BLE_STEP_TIMEOUT", "0s")
	t.Setenv("CLIENT_ID", "0x0102")
	t.Setenv("CLIENT_POSITION", "3")
	t.Setenv("MQTT_TOPIC_PREFIX", "farm/gh/")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.LogLevel != slog.LevelWarn {
		t.Errorf("LogLevel = %v, want warn", cfg.LogLevel)
	}
	if cfg.BLETargetName != "GH-2" {
		t.Errorf("BLETargetName = %q, want device name GH-2", cfg.BLETargetName)
	}
	if cfg.BLEStepTimeout != 0 {
		t.Errorf("BLEStepTimeout = %v, want 0", cfg.BLEStepTimeout)
	}
	if cfg.ClientID != 0x0102 || cfg.ClientPosition != 3 {
		t.Errorf("client = %d/%d, want 258/3", cfg.ClientID, cfg.ClientPosition)
	}
	if cfg.MQTTTopicPrefix != "farm/gh" {
		t.Errorf("MQTTTopicPrefix = %q, want farm/gh", cfg.MQTTTopicPrefix)
	}
}

func TestLoadFromEnv_File(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "greenhouse.yaml")
	data := "ble_transport: sim\nsample_interval: 2s\nMQTT_PORT: 1884\nclient_id: 9\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("CLIENT_ID", "12")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.BLETransport != "sim" {
		t.Errorf("BLETransport = %q, want sim", cfg.BLETransport)
	}
	if cfg.SampleInterval != 2*time.Second {
		t.Errorf("SampleInterval = %v, want 2s", cfg.SampleInterval)
	}
	if cfg.MQTTPort != 1884 {
		t.Errorf("MQTTPort = %d, want 1884", cfg.MQTTPort)
	}
	if cfg.ClientID != 12 {
		t.Errorf("ClientID = %d, want env value 12", cfg.ClientID)
	}
}

func TestLoadFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		key, value, want string
	}{
		{"APP_ENV", "staging", "APP_ENV"},
		{"LOG_LEVEL", "loud", "LOG_LEVEL"},
		{"BLE_TRANSPORT", "usb", "BLE_TRANSPORT"},
		{"BLE_SCAN_DURATION", "0s", "BLE_SCAN_DURATION"},
		{"BLE_SUPERVISOR_PERIOD", "soon", "BLE_SUPERVISOR_PERIOD"},
		{"BLE_STEP_TIMEOUT", "-1s", "BLE_STEP_TIMEOUT"},
		{"BLE_LOCAL_MTU", "22", "BLE_LOCAL_MTU"},
		{"CLIENT_ID", "70000", "CLIENT_ID"},
		{"CLIENT_POSITION", "256", "CLIENT_POSITION"},
		{"SAMPLE_INTERVAL", "-5s", "SAMPLE_INTERVAL"},
		{"SENSOR_SOURCE", "dht22", "SENSOR_SOURCE"},
		{"MQTT_PORT", "mqtt", "MQTT_PORT"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := LoadFromEnv()
			if err == nil {
				t.Fatalf("LoadFromEnv() error = nil, want error for %s=%q", tt.key, tt.value)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want mention of %s", err, tt.want)
			}
		})
	}
}

func TestLoadFromEnv_MissingFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	if _, err := LoadFromEnv(); err == nil {
		t.Fatal("LoadFromEnv() error = nil, want error for missing file")
	}
}
