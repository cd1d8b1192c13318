package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/skyline-rigging/flyer-controller/config"
	"github.com/skyline-rigging/flyer-controller/controller"
	"github.com/skyline-rigging/flyer-controller/gamepad"
	"github.com/skyline-rigging/flyer-controller/led"
	"github.com/skyline-rigging/flyer-controller/logging"
	"github.com/skyline-rigging/flyer-controller/metrics"
	"github.com/skyline-rigging/flyer-controller/node"
	"github.com/skyline-rigging/flyer-controller/vision"
	"github.com/skyline-rigging/flyer-controller/web"
)

// transportWriter adapts one of node.Transport's per-target send methods
// to led.Writer, so the LED animator package never has to import node
// directly (see led/animator.go's Writer doc comment).
type transportWriter func([]byte) error

func (w transportWriter) Write(data []byte) error { return w(data) }

func main() {
	configPath := flag.String("config", "./config.yaml", "path to the controller's YAML config file")
	logPath := flag.String("log", "./flyer-controller.log", "path to the rotating log file")
	flag.Parse()

	logger := logging.New(logging.DefaultConfig(*logPath), "main")

	cfg, err := config.Load(*configPath)
	if err != nil {
		// Fatal per spec §7: "config file unreadable at startup — process
		// abort with diagnostic".
		logger.Fatalf("config: %v", err)
	}
	sharedCfg := config.NewSharedFile(*configPath, cfg)

	winchAddrs := make(map[int]string, len(cfg.Winches))
	for i, w := range cfg.Winches {
		winchAddrs[i] = w.Address
	}
	transport, err := node.NewTransport(cfg.Bot.ControllerAddress, cfg.Bot.FlyerAddress, winchAddrs, logging.New(logging.DefaultConfig(*logPath), "node"))
	if err != nil {
		logger.Fatalf("node: %v", err)
	}

	models := buildLEDModels(transport, cfg)
	ledAnimator := led.Start(models, cfg.Lighting.Animator.FrameRate, cfg.Lighting.Animator.FilterParam, logging.New(logging.DefaultConfig(*logPath), "led"))

	ctrl := controller.New(
		sharedCfg,
		transport,
		ledAnimator,
		gamepad.NoOp{},
		vision.NoOp{},
		metrics.NoOp{},
		logging.New(logging.DefaultConfig(*logPath), "controller"),
	)

	web.Start(ctrl.Bus(), sharedCfg, logging.New(logging.DefaultConfig(*logPath), "web"))

	done := make(chan struct{})
	go ctrl.Run(done)

	waitForShutdownSignal()
	close(done)
}

// buildLEDModels pairs each node's pixel-position model with the
// transport writer that node's colors get sent through (spec §4.7's
// flyer-top/flyer-ring/per-winch pixel strings).
func buildLEDModels(transport *node.Transport, cfg *config.Config) []led.WriterMapping {
	models := []led.WriterMapping{
		{Writer: transportWriter(transport.SendFlyerLEDs), Pixels: led.FlyerModel()},
	}
	for i := range cfg.Winches {
		id := i
		models = append(models, led.WriterMapping{
			Writer: transportWriter(func(data []byte) error { return transport.SendWinchLEDs(id, data) }),
			Pixels: led.WinchModel(id),
		})
	}
	return models
}

// waitForShutdownSignal blocks until SIGINT or SIGTERM — the controller
// process is expected to run until killed (spec §5).
func waitForShutdownSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
}
