// iotf is a command-line client for the IBM Watson IoT Platform.
//
// It publishes device events over MQTT or HTTP and prints decoded messages
// received on a topic:
//
//	iotf -config configs/device.yaml publish -event status -format json -data '{"cpu":12}'
//	iotf -config configs/app.yaml subscribe -topic 'iot-2/type/+/id/+/evt/+/fmt/+' -duration 30s
//	iotf -config configs/device.yaml health
//
// The configuration file may also be named by IOTF_CONFIG.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nerrad567/watson-iot-client/internal/infrastructure/config"
	"github.com/nerrad567/watson-iot-client/internal/infrastructure/database"
	"github.com/nerrad567/watson-iot-client/internal/infrastructure/httpapi"
	"github.com/nerrad567/watson-iot-client/internal/infrastructure/influxdb"
	"github.com/nerrad567/watson-iot-client/internal/infrastructure/logging"
	"github.com/nerrad567/watson-iot-client/internal/infrastructure/mqtt"
	"github.com/nerrad567/watson-iot-client/internal/iotf"
	"github.com/nerrad567/watson-iot-client/internal/iotf/codecs"
	"github.com/nerrad567/watson-iot-client/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/iotf.yaml"

// errUsage marks command-line mistakes; main exits with status 2 for them.
var errUsage = errors.New("usage")

func main() {
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - args: Command-line arguments without the program name
//   - stdout: Destination for received events
//
// Returns:
//   - error: nil on success, or error describing failure
func run(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("iotf", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configPath := fs.String("config", "", "configuration file (default $IOTF_CONFIG or "+defaultConfigPath+")")
	showVersion := fs.Bool("version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}

	if *showVersion {
		fmt.Fprintf(stdout, "iotf %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("%w: expected a command: publish, subscribe or health", errUsage)
	}

	cfg, err := config.Load(getConfigPath(*configPath))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := logging.New(cfg.Logging, cfg.Platform.ClientID, version)
	defer log.Close() //nolint:errcheck // Best effort on exit
	log.Debug("configuration loaded",
		"transport", cfg.Transport,
		"client_id", cfg.Platform.ClientID,
	)

	command, rest := fs.Arg(0), fs.Args()[1:]
	switch command {
	case "publish":
		return runPublish(ctx, cfg, log, rest)
	case "subscribe":
		return runSubscribe(ctx, cfg, log, rest, stdout)
	case "health":
		return runHealth(ctx, cfg, log, stdout)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, command)
	}
}

// getConfigPath returns the configuration file path.
// Checks the -config flag, then IOTF_CONFIG, then the default.
func getConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if path := os.Getenv("IOTF_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

type publishArgs struct {
	typeID   string
	deviceID string
	event    string
	format   string
	data     string
	count    int
	qos      int
}

func parsePublishArgs(args []string) (publishArgs, error) {
	var p publishArgs
	fs := flag.NewFlagSet("publish", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&p.typeID, "type", "", "device type (default: from a device client id)")
	fs.StringVar(&p.deviceID, "id", "", "device id (default: from a device client id)")
	fs.StringVar(&p.event, "event", "status", "event name")
	fs.StringVar(&p.format, "format", codecs.FormatJSON, "message format")
	fs.StringVar(&p.data, "data", "", "message data")
	fs.IntVar(&p.count, "count", 1, "number of events to publish")
	fs.IntVar(&p.qos, "qos", -1, "MQTT QoS (default: mqtt.qos)")
	if err := fs.Parse(args); err != nil {
		return p, fmt.Errorf("%w: %w", errUsage, err)
	}
	if p.count < 1 {
		return p, fmt.Errorf("%w: -count must be at least 1", errUsage)
	}
	if p.qos > 2 {
		return p, fmt.Errorf("%w: -qos must be 0, 1 or 2", errUsage)
	}
	return p, nil
}

// runPublish connects, publishes count events and disconnects.
func runPublish(ctx context.Context, cfg *config.Config, log *logging.Logger, args []string) error {
	p, err := parsePublishArgs(args)
	if err != nil {
		return err
	}

	reg := iotf.NewCodecRegistry()
	codecs.Register(reg)

	data, err := parseData(reg, p.format, p.data)
	if err != nil {
		return err
	}

	if p.typeID == "" && p.deviceID == "" {
		p.typeID, p.deviceID, _ = deviceIdentity(cfg.Platform.ClientID)
	}

	recorder, closeRecorder := openStatsRecorder(ctx, cfg, log)
	defer closeRecorder()

	switch cfg.Transport {
	case config.TransportHTTP:
		if p.typeID == "" || p.deviceID == "" {
			return fmt.Errorf("%w: -type and -id are required unless the client id is a device id", errUsage)
		}
		client, err := httpapi.New(cfg, log, httpapi.WithCodecRegistry(reg))
		if err != nil {
			return err
		}
		for i := 0; i < p.count; i++ {
			if err := client.PublishEvent(ctx, p.typeID, p.deviceID, p.event, p.format, iotf.NewMessage(data)); err != nil {
				return err
			}
		}
		if recorder != nil {
			recorder.RecordClientStats(client.Stats())
		}
		log.Info("published events", "count", p.count, "transport", cfg.Transport)
		return nil

	default:
		qos := byte(cfg.MQTT.QoS) //nolint:gosec // Validated to 0-2
		if p.qos >= 0 {
			qos = byte(p.qos)
		}

		client, closeStore, err := newMQTTClient(ctx, cfg, log, reg, recorder)
		if err != nil {
			return err
		}
		defer closeStore()

		if err := client.Connect(ctx); err != nil {
			return err
		}
		defer client.Disconnect() //nolint:errcheck // Always nil

		return publishMQTT(ctx, client, p, qos, data, isDevice(cfg.Platform.ClientID))
	}
}

// publishMQTT publishes and waits for every acknowledgement.
func publishMQTT(ctx context.Context, client *mqtt.Client, p publishArgs, qos byte, data any, device bool) error {
	results := make(chan error, p.count)
	onComplete := func(err error) { results <- err }

	for i := 0; i < p.count; i++ {
		var err error
		msg := iotf.NewMessage(data)
		if device {
			_, err = client.PublishEvent(p.event, p.format, msg, qos, onComplete)
		} else {
			_, err = client.PublishDeviceEvent(p.typeID, p.deviceID, p.event, p.format, msg, qos, onComplete)
		}
		if err != nil {
			return err
		}
	}

	for i := 0; i < p.count; i++ {
		select {
		case err := <-results:
			if err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// runSubscribe prints decoded messages until the duration elapses or ctx
// is cancelled.
func runSubscribe(ctx context.Context, cfg *config.Config, log *logging.Logger, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("subscribe", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	topic := fs.String("topic", "", "topic filter (default: device commands or all device events)")
	duration := fs.Duration("duration", 0, "stop after this long (default: until interrupted)")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	if cfg.Transport != config.TransportMQTT {
		return fmt.Errorf("%w: subscribe requires the mqtt transport", errUsage)
	}

	if *topic == "" {
		*topic = mqtt.Topics{}.AllDeviceEvents()
		if isDevice(cfg.Platform.ClientID) {
			*topic = mqtt.Topics{}.AllDeviceCommands()
		}
	}

	reg := iotf.NewCodecRegistry()
	codecs.Register(reg)

	recorder, closeRecorder := openStatsRecorder(ctx, cfg, log)
	defer closeRecorder()

	client, closeStore, err := newMQTTClient(ctx, cfg, log, reg, recorder)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer client.Disconnect() //nolint:errcheck // Always nil

	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	out := &eventPrinter{w: stdout}
	if err := client.Subscribe(*topic, byte(cfg.MQTT.QoS), out.print); err != nil { //nolint:gosec // Validated to 0-2
		return err
	}
	log.Info("subscribed", "topic", *topic)

	<-ctx.Done()
	return nil
}

// runHealth connects with the configured transport and checks it along
// with the message store and statistics export.
func runHealth(ctx context.Context, cfg *config.Config, log *logging.Logger, stdout io.Writer) error {
	recorder, closeRecorder := openStatsRecorder(ctx, cfg, log)
	defer closeRecorder()

	var checker iotf.HealthChecker
	switch cfg.Transport {
	case config.TransportHTTP:
		client, err := httpapi.New(cfg, log)
		if err != nil {
			return err
		}
		if err := client.HealthCheck(ctx); err != nil {
			return err
		}
		checker, _ = recorder.(iotf.HealthChecker)

	default:
		client, closeStore, err := newMQTTClient(ctx, cfg, log, iotf.NewCodecRegistry(), recorder)
		if err != nil {
			return err
		}
		defer closeStore()

		if err := client.Connect(ctx); err != nil {
			return err
		}
		defer client.Disconnect() //nolint:errcheck // Always nil
		checker = client
	}

	if checker != nil {
		if err := checker.HealthCheck(ctx); err != nil {
			return err
		}
	}
	fmt.Fprintf(stdout, "%s: ok\n", cfg.Transport)
	return nil
}

// newMQTTClient builds the MQTT client, with the SQLite store when enabled.
// The returned func closes the store's database.
func newMQTTClient(ctx context.Context, cfg *config.Config, log *logging.Logger, reg *iotf.CodecRegistry, recorder iotf.StatsRecorder) (*mqtt.Client, func(), error) {
	opts := []mqtt.Option{mqtt.WithCodecRegistry(reg)}
	if recorder != nil {
		opts = append(opts, mqtt.WithStatsRecorder(recorder))
	}

	closeStore := func() {}
	if cfg.Store.Enabled {
		db, err := database.Open(ctx, cfg.Store)
		if err != nil {
			return nil, nil, fmt.Errorf("opening store: %w", err)
		}
		if err := db.Migrate(ctx, migrations.FS, migrations.Dir); err != nil {
			db.Close() //nolint:errcheck // Best effort cleanup on error path
			return nil, nil, fmt.Errorf("running migrations: %w", err)
		}
		log.Debug("message store ready", "path", cfg.Store.Path)

		opts = append(opts, mqtt.WithStore(mqtt.NewSQLiteStore(db, cfg.Platform.ClientID, log)))
		closeStore = func() {
			if err := db.Close(); err != nil {
				log.Error("error closing store", "error", err)
			}
		}
	}

	client, err := mqtt.New(cfg, log, opts...)
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	return client, closeStore, nil
}

// openStatsRecorder connects to InfluxDB when enabled. Failure to connect
// is logged and statistics are not exported.
func openStatsRecorder(ctx context.Context, cfg *config.Config, log *logging.Logger) (iotf.StatsRecorder, func()) {
	if !cfg.InfluxDB.Enabled {
		return nil, func() {}
	}
	client, err := influxdb.Connect(ctx, cfg.InfluxDB, log)
	if err != nil {
		log.Warn("statistics export disabled", "error", err)
		return nil, func() {}
	}
	return client, func() {
		if err := client.Close(); err != nil {
			log.Error("error closing influxdb", "error", err)
		}
	}
}

// parseData turns the -data flag into message data for format.
func parseData(reg *iotf.CodecRegistry, format, raw string) (any, error) {
	switch format {
	case codecs.FormatJSON, codecs.FormatJSONIoTF:
		if raw == "" {
			raw = "{}"
		}
		msg, err := reg.Decode(codecs.FormatJSON, []byte(raw))
		if err != nil {
			return nil, fmt.Errorf("%w: -data: %w", errUsage, err)
		}
		return msg.Data, nil
	case codecs.FormatBinary:
		return []byte(raw), nil
	default:
		return raw, nil
	}
}

// deviceIdentity splits a device client id "d:{org}:{type}:{id}".
func deviceIdentity(clientID string) (typeID, deviceID string, ok bool) {
	parts := strings.Split(clientID, ":")
	if len(parts) != 4 || parts[0] != "d" {
		return "", "", false
	}
	return parts[2], parts[3], true
}

func isDevice(clientID string) bool {
	_, _, ok := deviceIdentity(clientID)
	return ok
}

// eventPrinter writes one line per received event.
type eventPrinter struct {
	w io.Writer
}

func (p *eventPrinter) print(evt mqtt.Event) error {
	ts := evt.Message.Timestamp.UTC().Format(time.RFC3339)
	_, err := fmt.Fprintf(p.w, "%s %s [%s] %v\n", ts, evt.Topic, evt.Format, formatData(evt.Message.Data))
	return err
}

func formatData(data any) any {
	switch d := data.(type) {
	case []byte:
		return fmt.Sprintf("%d bytes", len(d))
	case codecs.XMLNode:
		return fmt.Sprintf("<%s>", d.XMLName.Local)
	default:
		return d
	}
}
