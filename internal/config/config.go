package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	AppEnv   string
	LogLevel slog.Level

	// BLETransport selects the radio: "native" (BlueZ) or "sim" (in-process).
	BLETransport          string
	BLEAdapter            string
	BLEDeviceName         string
	BLETargetName         string
	BLEScanDuration       time.Duration
	BLESupervisorPeriod   time.Duration
	BLEStepTimeout        time.Duration
	BLELocalMTU           uint16
	BLEWriteFollowUpDelay time.Duration

	ClientID       uint16
	ClientPosition uint8
	SampleInterval time.Duration
	// SensorSource is "bme280" or "synthetic".
	SensorSource  string
	I2CBus        string
	BME280Address uint16

	MQTTBroker      string
	MQTTPort        int
	MQTTClientID    string
	MQTTTopicPrefix string

	SQLitePath string
	// HTTPAddr is the listen address of the server node status API. Empty
	// disables it.
	HTTPAddr string

	// GPIO pin names as known to periph; empty disables the output.
	GPIOWindowPin   string
	GPIOPumpPin     string
	GPIOLedOKPin    string
	GPIOLedFaultPin string

	// SimLinkDropInterval makes the simulated radio drop every link with a
	// supervision timeout at this period. Zero disables.
	SimLinkDropInterval time.Duration
}

// LoadFromEnv reads the configuration from the environment. When CONFIG_FILE
// names a YAML file, its keys (env names, any case) provide defaults that the
// environment overrides.
func LoadFromEnv() (Config, error) {
	file := map[string]string{}
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		var err error
		file, err = readFile(path)
		if err != nil {
			return Config{}, err
		}
	}
	src := source{file: file}

	appEnv := src.str("APP_ENV", "dev")
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	level, err := parseLogLevel(src.str("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, err
	}

	transport := src.str("BLE_TRANSPORT", "native")
	switch transport {
	case "native", "sim":
	default:
		return Config{}, fmt.Errorf("invalid BLE_TRANSPORT %q (allowed: native, sim)", transport)
	}

	deviceName := src.str("BLE_DEVICE_NAME", "Greenhouse")
	targetName := src.str("BLE_TARGET_NAME", deviceName)

	scanDuration, err := src.duration("BLE_SCAN_DURATION", "30s")
	if err != nil {
		return Config{}, err
	}
	if scanDuration <= 0 {
		return Config{}, fmt.Errorf("BLE_SCAN_DURATION must be positive, got %v", scanDuration)
	}

	supervisorPeriod, err := src.duration("BLE_SUPERVISOR_PERIOD", "30s")
	if err != nil {
		return Config{}, err
	}
	if supervisorPeriod <= 0 {
		return Config{}, fmt.Errorf("BLE_SUPERVISOR_PERIOD must be positive, got %v", supervisorPeriod)
	}

	stepTimeout, err := src.duration("BLE_STEP_TIMEOUT", "20s")
	if err != nil {
		return Config{}, err
	}
	if stepTimeout < 0 {
		return Config{}, fmt.Errorf("BLE_STEP_TIMEOUT must not be negative, got %v", stepTimeout)
	}

	localMTU, err := src.unsigned("BLE_LOCAL_MTU", "500", 16)
	if err != nil {
		return Config{}, err
	}
	if localMTU < 23 || localMTU > 517 {
		return Config{}, fmt.Errorf("BLE_LOCAL_MTU must be in [23, 517], got %d", localMTU)
	}

	followUp, err := src.duration("BLE_WRITE_FOLLOWUP_DELAY", "0s")
	if err != nil {
		return Config{}, err
	}
	if followUp < 0 {
		return Config{}, fmt.Errorf("BLE_WRITE_FOLLOWUP_DELAY must not be negative, got %v", followUp)
	}

	clientID, err := src.unsigned("CLIENT_ID", "1", 16)
	if err != nil {
		return Config{}, err
	}
	position, err := src.unsigned("CLIENT_POSITION", "0", 8)
	if err != nil {
		return Config{}, err
	}

	sampleInterval, err := src.duration("SAMPLE_INTERVAL", "10s")
	if err != nil {
		return Config{}, err
	}
	if sampleInterval <= 0 {
		return Config{}, fmt.Errorf("SAMPLE_INTERVAL must be positive, got %v", sampleInterval)
	}

	sensorSource := src.str("SENSOR_SOURCE", "bme280")
	switch sensorSource {
	case "bme280", "synthetic":
	default:
		return Config{}, fmt.Errorf("invalid SENSOR_SOURCE %q (allowed: bme280, synthetic)", sensorSource)
	}

	bme280Address, err := src.unsigned("BME280_ADDRESS", "0x76", 16)
	if err != nil {
		return Config{}, err
	}

	mqttPort, err := src.integer("MQTT_PORT", "1883")
	if err != nil {
		return Config{}, err
	}

	httpAddr := src.str("HTTP_ADDR", ":8080")
	if httpAddr == "off" {
		httpAddr = ""
	}

	simDrop, err := src.duration("SIM_LINK_DROP_INTERVAL", "0s")
	if err != nil {
		return Config{}, err
	}
	if simDrop < 0 {
		return Config{}, fmt.Errorf("SIM_LINK_DROP_INTERVAL must not be negative, got %v", simDrop)
	}

	return Config{
		AppEnv:                appEnv,
		LogLevel:              level,
		BLETransport:          transport,
		BLEAdapter:            src.str("BLE_ADAPTER", "hci0"),
		BLEDeviceName:         deviceName,
		BLETargetName:         targetName,
		BLEScanDuration:       scanDuration,
		BLESupervisorPeriod:   supervisorPeriod,
		BLEStepTimeout:        stepTimeout,
		BLELocalMTU:           uint16(localMTU),
		BLEWriteFollowUpDelay: followUp,
		ClientID:              uint16(clientID),
		ClientPosition:        uint8(position),
		SampleInterval:        sampleInterval,
		SensorSource:          sensorSource,
		I2CBus:                src.str("I2C_BUS", ""),
		BME280Address:         uint16(bme280Address),
		MQTTBroker:            src.str("MQTT_BROKER", "localhost"),
		MQTTPort:              mqttPort,
		MQTTClientID:          src.str("MQTT_CLIENT_ID", "greenhouse-server"),
		MQTTTopicPrefix:       strings.TrimSuffix(src.str("MQTT_TOPIC_PREFIX", "greenhouse"), "/"),
		SQLitePath:            src.str("SQLITE_PATH", "../dev/sqlite/greenhouse.db"),
		HTTPAddr:              httpAddr,
		GPIOWindowPin:         src.str("GPIO_WINDOW_PIN", ""),
		GPIOPumpPin:           src.str("GPIO_PUMP_PIN", ""),
		GPIOLedOKPin:          src.str("GPIO_LED_OK_PIN", ""),
		GPIOLedFaultPin:       src.str("GPIO_LED_FAULT_PIN", ""),
		SimLinkDropInterval:   simDrop,
	}, nil
}

func readFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read CONFIG_FILE %q: %w", path, err)
	}
	raw := map[string]string{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse CONFIG_FILE %q: %w", path, err)
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		out[strings.ToUpper(strings.TrimSpace(k))] = v
	}
	return out, nil
}

// source resolves a key from the environment, then the file, then a default.
type source struct {
	file map[string]string
}

func (s source) str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	if v := strings.TrimSpace(s.file[key]); v != "" {
		return v
	}
	return def
}

func (s source) duration(key, def string) (time.Duration, error) {
	raw := s.str(key, def)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

func (s source) integer(key, def string) (int, error) {
	raw := s.str(key, def)
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func (s source) unsigned(key, def string, bits int) (uint64, error) {
	raw := s.str(key, def)
	n, err := strconv.ParseUint(raw, 0, bits)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
